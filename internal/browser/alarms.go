// File: internal/browser/alarms.go
package browser

import (
	"sync"
	"time"
)

// alarmRegistry tracks named one-shot timers. The capture command arms a
// watchdog alarm per tab; the run controller clears it on teardown.
type alarmRegistry struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newAlarmRegistry() *alarmRegistry {
	return &alarmRegistry{timers: make(map[string]*time.Timer)}
}

// set arms (or re-arms) the named alarm. fn runs once after d unless the
// alarm is cleared first.
func (r *alarmRegistry) set(name string, d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.timers[name]; ok {
		t.Stop()
	}
	r.timers[name] = time.AfterFunc(d, func() {
		r.mu.Lock()
		delete(r.timers, name)
		r.mu.Unlock()
		fn()
	})
}

// clear stops and forgets the named alarm. Unknown names are a no-op.
func (r *alarmRegistry) clear(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.timers[name]; ok {
		t.Stop()
		delete(r.timers, name)
	}
}

// clearAll stops every pending alarm; used on shutdown.
func (r *alarmRegistry) clearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, t := range r.timers {
		t.Stop()
		delete(r.timers, name)
	}
}
