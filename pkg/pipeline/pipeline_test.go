package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/pulseone-io/collector/pkg/model"
)

func msg(deviceID model.DeviceID, seq int64) model.DeviceDataMessage {
	return model.NewDeviceDataMessage(deviceID, model.ProtocolModbusTCP, seq, nil)
}

// TestBoundedQueueShedsOldestE5 reproduces the documented scenario: a
// capacity-8 queue fed 32 messages for one device sheds all but the last 8,
// in FIFO order, and counts at least 24 sheds.
func TestBoundedQueueShedsOldestE5(t *testing.T) {
	p := New(8)

	for seq := int64(0); seq < 32; seq++ {
		p.Submit(msg(1, seq))
	}

	stats := p.Stats()
	if stats.TotalReceived != 32 {
		t.Fatalf("TotalReceived = %d, want 32", stats.TotalReceived)
	}
	if stats.CurrentQueueSize != 8 {
		t.Fatalf("CurrentQueueSize = %d, want 8", stats.CurrentQueueSize)
	}
	if stats.ShedCount < 24 {
		t.Fatalf("ShedCount = %d, want >= 24", stats.ShedCount)
	}

	for want := int64(24); want < 32; want++ {
		got, ok := dequeueNow(p)
		if !ok {
			t.Fatalf("expected a message for seq %d, queue empty", want)
		}
		if got.Timestamp != want {
			t.Fatalf("dequeued seq %d, want %d (oldest-shed ordering broken)", got.Timestamp, want)
		}
	}
}

// TestEvictOldestPreservesOtherDevices checks the per-device guarantee: a
// full queue sheds the offending device's oldest entry, not another
// device's messages, when the offending device has one queued.
func TestEvictOldestPreservesOtherDevices(t *testing.T) {
	p := New(4)

	p.Submit(msg(1, 0))
	p.Submit(msg(2, 0))
	p.Submit(msg(1, 1))
	p.Submit(msg(2, 1))

	if shed := !p.Submit(msg(1, 2)); !shed {
		t.Fatal("expected the 5th submission on a full queue to report a shed")
	}

	var survivors []model.DeviceDataMessage
	for {
		got, ok := dequeueNow(p)
		if !ok {
			break
		}
		survivors = append(survivors, got)
	}

	if len(survivors) != 4 {
		t.Fatalf("expected 4 survivors, got %d", len(survivors))
	}

	seqByDevice := map[model.DeviceID][]int64{}
	for _, s := range survivors {
		seqByDevice[s.DeviceID] = append(seqByDevice[s.DeviceID], s.Timestamp)
	}

	// device 2 was never touched by the eviction: both its messages survive.
	if got := seqByDevice[2]; len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Fatalf("device 2 survivors = %v, want [0 1] untouched", got)
	}
	// device 1's oldest (seq 0) was shed to make room; seq 1 and the
	// newly-submitted seq 2 both survive.
	if got := seqByDevice[1]; len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("device 1 survivors = %v, want [1 2] (oldest shed)", got)
	}
}

// dequeueNow drains one already-queued message without blocking; Dequeue
// itself blocks when the queue is empty, which these tests never want to
// exercise against a known, already-settled backlog.
func dequeueNow(p *Pipeline) (model.DeviceDataMessage, bool) {
	p.mu.Lock()
	if len(p.queue) == 0 {
		p.mu.Unlock()
		return model.DeviceDataMessage{}, false
	}
	m := p.queue[0]
	p.queue = p.queue[1:]
	p.mu.Unlock()
	p.totalDelivered.Add(1)
	return m, true
}

func TestDequeueBlocksUntilSubmit(t *testing.T) {
	p := New(4)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan model.DeviceDataMessage, 1)
	go func() {
		m, ok := p.Dequeue(ctx)
		if ok {
			done <- m
		}
	}()

	time.Sleep(20 * time.Millisecond)
	p.Submit(msg(7, 99))

	select {
	case m := <-done:
		if m.DeviceID != 7 || m.Timestamp != 99 {
			t.Fatalf("got %+v, want device 7 seq 99", m)
		}
	case <-ctx.Done():
		t.Fatal("Dequeue did not unblock after Submit")
	}
}
