package refresh

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// EventType distinguishes refresh lifecycle events.
type EventType string

const (
	// EventStarted precedes all per-project work for one invocation.
	EventStarted EventType = "started"

	// EventProjectRefreshed follows one project's successful refresh.
	EventProjectRefreshed EventType = "project_refreshed"

	// EventFailed follows one project's refresh after retries exhausted.
	EventFailed EventType = "failed"

	// EventCompleted follows the whole batch.
	EventCompleted EventType = "completed"
)

// Event is an ephemeral message delivered to registered listeners.
// Events are not persisted.
type Event struct {
	Type EventType
	Time time.Time

	// RunID correlates all events of one invocation (UUIDv7, sortable by
	// creation time).
	RunID string

	// ProjectID is set on project_refreshed and failed events.
	ProjectID string

	// Changes is the per-project change count on project_refreshed events.
	Changes int

	// Err carries the failure on failed events.
	Err string

	// Result is the batch outcome on completed events.
	Result *Result
}

// Listener receives refresh events. Listeners run synchronously on the
// emitting goroutine; keep them fast.
type Listener func(Event)

// listenerSet is the registry of event listeners. It owns its own lock,
// independent of the manager's, and that lock is never held while a
// listener runs.
type listenerSet struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]Listener
	log    *slog.Logger
}

func newListenerSet(log *slog.Logger) *listenerSet {
	return &listenerSet{subs: make(map[int]Listener), log: log}
}

// add registers a listener and returns its removal handle.
func (s *listenerSet) add(l Listener) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.subs[s.nextID] = l
	return s.nextID
}

// remove unregisters a listener. Unknown ids are a no-op.
func (s *listenerSet) remove(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

// emit delivers the event to every listener. A panicking listener is
// recovered and logged; it cannot abort the refresh pipeline.
func (s *listenerSet) emit(ev Event) {
	s.mu.Lock()
	listeners := make([]Listener, 0, len(s.subs))
	for _, l := range s.subs {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		s.deliver(l, ev)
	}
}

func (s *listenerSet) deliver(l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Warn("event listener panicked",
				"event", ev.Type, "run", ev.RunID, "panic", fmt.Sprint(r))
		}
	}()
	l(ev)
}
