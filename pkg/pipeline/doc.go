// Package pipeline implements the bounded multi-producer queue carrying DeviceDataMessage from every DeviceWorker to
// DataProcessingService. FIFO is guaranteed per producer (device); no
// ordering is guaranteed across devices. When full, Submit sheds the oldest
// queued message for the same device (or, if that device has none queued,
// the oldest message overall) rather than blocking the producer.
package pipeline
