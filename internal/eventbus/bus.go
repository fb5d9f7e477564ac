// Package eventbus fans timer lifecycle events out to in-process listeners
// such as the metrics recorder. Publish never blocks; a slow subscriber
// loses events rather than stalling the engine.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

type Type string

const (
	TimerStarted   Type = "timer.started"
	TimerPaused    Type = "timer.paused"
	TimerCompleted Type = "timer.completed"
	TimerExtended  Type = "timer.extended"
	TimerTick      Type = "timer.tick"
	EditFailed     Type = "notify.edit_failed"
	JobRun         Type = "job.run"
)

type Event struct {
	Type   Type
	Time   time.Time
	UserID int64
	TaskID int64
	// Seconds is the spent total for timer events and the run duration
	// for job events.
	Seconds int64
	// Name labels job events.
	Name string
}

type Bus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func New() *Bus {
	return &Bus{subs: map[uint64]chan Event{}}
}

// Publish is a no-op on a nil Bus.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe returns a buffered channel and a func that removes the
// subscription and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}
