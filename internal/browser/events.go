// File: internal/browser/events.go
package browser

import "sync"

// tabEvents fans navigation-complete events out to a tab's subscribers.
// Events that arrive before the first subscriber are buffered as a count and
// replayed on subscription, so a fast initial page load cannot slip past the
// controller that is still wiring itself up.
type tabEvents struct {
	mu       sync.Mutex
	nextID   int
	handlers map[int]func()
	pending  int
}

func newTabEvents() *tabEvents {
	return &tabEvents{handlers: make(map[int]func())}
}

// fire delivers one navigation-complete event. Handlers run outside the
// lock; with no subscribers the event is buffered.
func (e *tabEvents) fire() {
	e.mu.Lock()
	if len(e.handlers) == 0 {
		e.pending++
		e.mu.Unlock()
		return
	}
	fns := make([]func(), 0, len(e.handlers))
	for _, fn := range e.handlers {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// listen subscribes fn and returns an idempotent stop function. Buffered
// events are replayed to the new subscriber immediately.
func (e *tabEvents) listen(fn func()) (stop func()) {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.handlers[id] = fn
	replay := e.pending
	e.pending = 0
	e.mu.Unlock()

	for i := 0; i < replay; i++ {
		fn()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.handlers, id)
			e.mu.Unlock()
		})
	}
}
