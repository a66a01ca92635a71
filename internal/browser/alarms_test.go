// File: internal/browser/alarms_test.go
package browser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlarmRegistry(t *testing.T) {
	t.Run("fires after the deadline", func(t *testing.T) {
		r := newAlarmRegistry()
		fired := make(chan struct{})
		r.set("tabA", time.Millisecond, func() { close(fired) })

		select {
		case <-fired:
		case <-time.After(time.Second):
			require.Fail(t, "alarm never fired")
		}

		r.mu.Lock()
		_, ok := r.timers["tabA"]
		r.mu.Unlock()
		assert.False(t, ok, "A fired alarm should remove itself from the registry.")
	})

	t.Run("clear prevents firing", func(t *testing.T) {
		r := newAlarmRegistry()
		fired := make(chan struct{}, 1)
		r.set("tabB", 20*time.Millisecond, func() { fired <- struct{}{} })
		r.clear("tabB")

		select {
		case <-fired:
			assert.Fail(t, "cleared alarm still fired")
		case <-time.After(60 * time.Millisecond):
		}
	})

	t.Run("clearing an unknown name is a no-op", func(t *testing.T) {
		r := newAlarmRegistry()
		assert.NotPanics(t, func() { r.clear("never-set") })
	})

	t.Run("re-arming replaces the previous timer", func(t *testing.T) {
		r := newAlarmRegistry()
		which := make(chan string, 2)
		r.set("tabC", time.Hour, func() { which <- "stale" })
		r.set("tabC", time.Millisecond, func() { which <- "fresh" })

		select {
		case got := <-which:
			assert.Equal(t, "fresh", got, "Only the most recent arming should fire.")
		case <-time.After(time.Second):
			require.Fail(t, "re-armed alarm never fired")
		}
	})

	t.Run("clearAll stops every pending alarm", func(t *testing.T) {
		r := newAlarmRegistry()
		fired := make(chan struct{}, 2)
		r.set("tabD", 20*time.Millisecond, func() { fired <- struct{}{} })
		r.set("tabE", 20*time.Millisecond, func() { fired <- struct{}{} })
		r.clearAll()

		select {
		case <-fired:
			assert.Fail(t, "alarm fired after clearAll")
		case <-time.After(60 * time.Millisecond):
		}

		r.mu.Lock()
		remaining := len(r.timers)
		r.mu.Unlock()
		assert.Zero(t, remaining)
	})
}
