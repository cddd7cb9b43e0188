package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pulseone-io/collector/pkg/model"
)

// DefaultCapacity is the default bounded queue capacity.
const DefaultCapacity = 10_000

// Stats reports the counters requires.
type Stats struct {
	TotalReceived int64
	TotalDelivered int64
	CurrentQueueSize int64
	ShedCount int64
}

// Pipeline is the bounded multi-producer, multi-consumer queue of
// DeviceDataMessage. Workers hold a
// non-owning Submit handle; Pipeline alone owns the underlying queue.
type Pipeline struct {
	capacity int

	mu sync.Mutex
	queue []model.DeviceDataMessage
	wake chan struct{}

	totalReceived atomic.Int64
	totalDelivered atomic.Int64
	shedCount atomic.Int64
}

// New constructs a Pipeline with the given capacity. capacity<=0 uses
// DefaultCapacity.
func New(capacity int) *Pipeline {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Pipeline{
		capacity: capacity,
		queue: make([]model.DeviceDataMessage, 0, capacity),
		wake: make(chan struct{}, 1),
	}
}

// Submit enqueues msg, returning true if it was queued without shedding and
// false if an older message had to be dropped to make room (see
// evictOldest). Submit never
// blocks.
func (p *Pipeline) Submit(msg model.DeviceDataMessage) bool {
	p.totalReceived.Add(1)

	p.mu.Lock()
	shed := false
	if len(p.queue) >= p.capacity {
		shed = p.evictOldest(msg.DeviceID)
	}
	p.queue = append(p.queue, msg)
	p.mu.Unlock()

	p.notify()

	if shed {
		p.shedCount.Add(1)
	}
	return !shed
}

// evictOldest removes the oldest queued message for deviceID, or (if none
// exists) the oldest message overall, to make room for an incoming one.
// Caller must hold p.mu.
func (p *Pipeline) evictOldest(deviceID model.DeviceID) bool {
	for i, m := range p.queue {
		if m.DeviceID == deviceID {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			return true
		}
	}
	if len(p.queue) > 0 {
		p.queue = p.queue[1:]
		return true
	}
	return false
}

func (p *Pipeline) notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Dequeue blocks until a message is available or ctx is done.
func (p *Pipeline) Dequeue(ctx context.Context) (model.DeviceDataMessage, bool) {
	for {
		p.mu.Lock()
		if len(p.queue) > 0 {
			msg := p.queue[0]
			p.queue = p.queue[1:]
			p.mu.Unlock()
			p.totalDelivered.Add(1)
			return msg, true
		}
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return model.DeviceDataMessage{}, false
		case <-p.wake:
		}
	}
}

// Stats returns a point-in-time snapshot of the queue's counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	size := int64(len(p.queue))
	p.mu.Unlock()
	return Stats{
		TotalReceived: p.totalReceived.Load(),
		TotalDelivered: p.totalDelivered.Load(),
		CurrentQueueSize: size,
		ShedCount: p.shedCount.Load(),
	}
}
