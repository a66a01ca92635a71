// File: internal/runner/interfaces.go
package runner

import (
	"context"

	"github.com/kfallows/citewright/internal/catalog"
)

// TabID identifies one automated browser tab.
type TabID string

// AlarmName returns the conventional watchdog alarm name for a tab. The
// alarm itself is owned by the caller/platform; the controller only clears
// it on teardown.
func AlarmName(tab TabID) string {
	return "tab" + string(tab)
}

// ActionExecutor performs a single scripted action inside a tab. RunAction
// blocks until the action settles; errors are fatal for the whole run.
type ActionExecutor interface {
	RunAction(ctx context.Context, tab TabID, action catalog.Action) (Result, error)

	// ElementExists reports whether a selector currently matches in the tab.
	// Backs the implicit-login probe.
	ElementExists(ctx context.Context, tab TabID, selector string) (bool, error)
}

// TabPlatform provides browser tab lifecycle primitives.
type TabPlatform interface {
	// OpenTab creates a tab at url. When active is false the tab stays in
	// the background.
	OpenTab(ctx context.Context, url string, active bool) (TabID, error)

	// Listen subscribes fn to navigation-complete events for the given tab
	// only. The returned stop function unsubscribes and is safe to call
	// more than once.
	Listen(tab TabID, fn func()) (stop func(), err error)

	CloseTab(tab TabID) error
	ActivateTab(tab TabID) error

	// ClearAlarm cancels a named watchdog alarm; unknown names are a no-op.
	ClearAlarm(name string)
}
