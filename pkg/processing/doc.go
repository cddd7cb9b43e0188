// Package processing implements DataProcessingService: a
// pool of worker goroutines draining the Pipeline, writing every scan
// result to the cache, evaluating alarms on changed points, and
// propagating raw-point changes into the virtual-point engine. It holds
// non-owning references to the cache writer and the two engines.
package processing
