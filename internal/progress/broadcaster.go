// Package progress fans out live pipeline updates to connected observers.
package progress

import (
	"log/slog"
	"sync"

	"github.com/jfellner/veritest-go/internal/models"
)

// observerBuffer bounds how many undelivered events one observer may hold.
// Publishing never blocks: events beyond the buffer are dropped for that
// observer only.
const observerBuffer = 16

// Observer receives broadcast events on its channel until Unsubscribe.
type Observer struct {
	id int
	ch chan models.ProgressEvent
}

// Events returns the observer's receive channel. It is closed on Unsubscribe.
func (o *Observer) Events() <-chan models.ProgressEvent {
	return o.ch
}

// Broadcaster is a single-writer fan-out registry of live observers. Events
// published while no observer is connected are lost; there is no replay.
// Construct one instance per process (or per test); there is no package
// singleton.
type Broadcaster struct {
	mu        sync.Mutex
	observers map[int]*Observer
	nextID    int
}

// NewBroadcaster creates an empty observer registry.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{observers: make(map[int]*Observer)}
}

// Subscribe registers a new observer. The observer receives every event
// published after this call, in publish order, until it unsubscribes or
// falls behind by more than the buffer.
func (b *Broadcaster) Subscribe() *Observer {
	b.mu.Lock()
	defer b.mu.Unlock()

	obs := &Observer{
		id: b.nextID,
		ch: make(chan models.ProgressEvent, observerBuffer),
	}
	b.nextID++
	b.observers[obs.id] = obs
	return obs
}

// Unsubscribe removes an observer and closes its channel. Safe to call twice.
func (b *Broadcaster) Unsubscribe(obs *Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.observers[obs.id]; !ok {
		return
	}
	delete(b.observers, obs.id)
	close(obs.ch)
}

// Publish delivers an event to every connected observer. A full observer
// buffer drops the event for that observer; other observers and the
// publisher are unaffected.
func (b *Broadcaster) Publish(event models.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, obs := range b.observers {
		select {
		case obs.ch <- event:
		default:
			slog.Warn("dropping progress event for slow observer",
				"observer", obs.id, "status", event.Status, "job_id", event.JobID)
		}
	}
}

// ObserverCount reports how many observers are connected.
func (b *Broadcaster) ObserverCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.observers)
}
