// File: internal/runner/controller.go
// The step/phase state machine driving one citation-capture task. One
// controller owns one tab; navigation-complete events trigger step cycles
// until the task finalizes, fails, or is silently abandoned.
package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kfallows/citewright/internal/catalog"
)

// Phase is the coarse stage of a task. It moves LOGIN -> SEARCH exactly once
// and never reverts.
type Phase int

const (
	PhaseLogin Phase = iota
	PhaseSearch
)

func (p Phase) String() string {
	if p == PhaseLogin {
		return "login"
	}
	return "search"
}

// Controller executes one automation task against a provider/source pair.
// All state mutation is funneled through the step cycle under mu; instances
// share nothing and react only to their own tab's events.
type Controller struct {
	logger *zap.Logger
	runID  string

	providerID string
	sourceID   string
	provider   catalog.Provider
	source     catalog.Source

	// Immutable after construction.
	userData   map[string]string
	callParams map[string]string
	article    map[string]string

	exec ActionExecutor
	tabs TabPlatform
	sink MessageSink

	mu         sync.Mutex
	phase      Phase
	step       int
	done       bool
	tabID      TabID
	runCtx     context.Context
	stopListen func()
}

// New constructs a controller. The source id is overridden by the provider's
// forced default source when one is configured. Provider options may carry
// "<providerID>.<key>" entries that override the plain <key> entry for this
// provider only.
func New(
	cat *catalog.Catalog,
	providerID, sourceID string,
	options, sourceParams, article map[string]string,
	exec ActionExecutor,
	tabs TabPlatform,
	sink MessageSink,
	logger *zap.Logger,
) (*Controller, error) {
	if exec == nil || tabs == nil || sink == nil {
		return nil, fmt.Errorf("runner: executor, tab platform and message sink are required")
	}

	provider, err := cat.Provider(providerID)
	if err != nil {
		return nil, err
	}
	if provider.DefaultSource != "" {
		sourceID = provider.DefaultSource
	}
	source, err := cat.Source(sourceID)
	if err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	return &Controller{
		logger: logger.Named("runner").With(
			zap.String("run_id", runID),
			zap.String("provider", providerID),
			zap.String("source", sourceID),
		),
		runID:      runID,
		providerID: providerID,
		sourceID:   sourceID,
		provider:   provider,
		source:     source,
		userData:   buildUserData(providerID, provider, options),
		callParams: copyParams(sourceParams),
		article:    copyParams(article),
		exec:       exec,
		tabs:       tabs,
		sink:       sink,
	}, nil
}

// buildUserData merges the provider's bib name with caller options, then
// applies the provider-namespaced override escape hatch.
func buildUserData(providerID string, p catalog.Provider, options map[string]string) map[string]string {
	bibName := p.BibName
	if bibName == "" {
		bibName = p.Name
	}
	data := map[string]string{"bibName": bibName}
	for k, v := range options {
		if !strings.Contains(k, ".") {
			data[k] = v
		}
	}
	prefix := providerID + "."
	for k, v := range options {
		if strings.HasPrefix(k, prefix) {
			data[strings.TrimPrefix(k, prefix)] = v
		}
	}
	return data
}

func copyParams(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Run opens the automated tab at the computed start URL and subscribes to
// its navigation-complete events. The task then advances one step cycle per
// delivered event; completion is reported through the message sink.
func (c *Controller) Run(ctx context.Context) error {
	startURL, err := c.startURL()
	if err != nil {
		return err
	}

	tab, err := c.tabs.OpenTab(ctx, startURL, false)
	if err != nil {
		return fmt.Errorf("failed to open tab for %q: %w", startURL, err)
	}

	c.mu.Lock()
	c.tabID = tab
	c.runCtx = ctx
	c.mu.Unlock()

	stop, err := c.tabs.Listen(tab, c.onNavigated)
	if err != nil {
		return fmt.Errorf("failed to subscribe to tab %s: %w", tab, err)
	}

	c.mu.Lock()
	c.stopListen = stop
	if c.done {
		// A buffered navigation event replayed during Listen can finish the
		// whole run before stopListen was assigned; release it now.
		c.teardownLocked()
	}
	c.mu.Unlock()

	c.logger.Info("Capture task started.", zap.String("start_url", startURL), zap.String("tab", string(tab)))
	return nil
}

// startURL resolves the task's entry URL. A provider start overrides the
// source's; builder functions win over templates and skip substitution.
func (c *Controller) startURL() (string, error) {
	article, params := c.article, c.effectiveParams()
	switch {
	case c.provider.StartFunc != nil:
		return c.provider.StartFunc(article, params), nil
	case c.provider.Start != "":
		return BuildURL(c.provider.Start, article, params), nil
	case c.source.StartFunc != nil:
		return c.source.StartFunc(article, params), nil
	case c.source.Start != "":
		return BuildURL(c.source.Start, article, params), nil
	}
	return "", fmt.Errorf("provider %q and source %q define no start URL", c.providerID, c.sourceID)
}

// effectiveParams derives the layered parameter merge for this run.
func (c *Controller) effectiveParams() map[string]string {
	return MergeParams(c.source.DefaultParams, c.provider.Params[c.sourceID], c.callParams)
}

// onNavigated is the navigation-complete handler for the controller's own
// tab. After the task is done it degrades to idempotent cleanup.
func (c *Controller) onNavigated() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done {
		c.teardownLocked()
		return
	}
	c.stepCycleLocked()
}

// stepCycleLocked runs step cycles until the controller suspends for the
// next navigation event or reaches a terminal state. The fast-path loop is
// bounded by action-list length, so it cannot spin.
func (c *Controller) stepCycleLocked() {
	for {
		fastPath := c.runStepLocked()
		if c.done || !fastPath {
			return
		}
	}
}

// runStepLocked executes one step cycle and reports whether the fast path
// applied (no navigation expected, continue synchronously).
func (c *Controller) runStepLocked() bool {
	ctx := c.runCtx

	// Implicit-login probe, only ever at (login, 0).
	if c.phase == PhaseLogin && c.step == 0 && c.source.LoggedIn != "" {
		loggedIn, err := c.exec.ElementExists(ctx, c.tabID, c.source.LoggedIn)
		if err != nil {
			c.failLocked(err.Error())
			return false
		}
		if loggedIn {
			c.logger.Debug("Already logged in; skipping login sequence.")
			c.phase = PhaseSearch
			c.step = 0
		}
	}

	lists := ActionLists(c.provider, c.source, c.phase)
	if c.step >= len(lists) {
		c.failLocked(fmt.Sprintf("no action list for %s step %d", c.phase, c.step))
		return false
	}
	list := lists[c.step]
	if len(list) == 0 {
		c.failLocked("Unknown action in source")
		return false
	}

	var result Result
	fastPath := false
	for _, a := range list {
		if a.IsNotification() {
			c.sink.Deliver(Message{Kind: MessageStatus, Text: a.Message})
			continue
		}

		action := a
		if action.URL != "" {
			action.URL = BuildURL(action.URL, c.article, c.effectiveParams())
		}
		if action.Value != "" {
			action.Value = substitute(action.Value, "user.", c.userData)
		}

		res, err := c.exec.RunAction(ctx, c.tabID, action)
		if err != nil {
			c.failLocked(err.Error())
			return false
		}
		result = res

		if result.Kind == ResultContinue {
			if result.Continue == nil || !result.Continue(c.viewLocked()) {
				c.abandonLocked()
				return false
			}
			// A passing predicate keeps the run going but is not the
			// executor saying boolean true; the result stays a continuation
			// and never qualifies for the skip fast path.
		}

		// Strict boolean-true only; truthy text does not qualify.
		if action.SkipToNext && result.isTrue() {
			fastPath = true
			break
		}
	}

	// Final step: last index of the search sequence.
	searchLists := ActionLists(c.provider, c.source, PhaseSearch)
	if c.phase == PhaseSearch && c.step == len(searchLists)-1 {
		c.finalizeLocked(result)
		return false
	}

	c.step++
	if c.step >= len(lists) {
		if c.phase == PhaseLogin {
			// Phase-exhaustion promotion; converges on the same state as
			// the login probe.
			c.phase = PhaseSearch
			c.step = 0
		} else {
			// Unreachable while the final-step check above holds.
			c.failLocked("search sequence overran its action lists")
			return false
		}
	}

	return fastPath
}

// finalizeLocked ends the run. Non-empty extracted content is a success: one
// success message, the tab is closed, listeners released. Empty content is
// routed through the failure path.
func (c *Controller) finalizeLocked(result Result) {
	c.done = true

	var content string
	if result.Kind == ResultText {
		content = result.Text
	}
	if content == "" {
		c.deliverFailureLocked("failed to find content")
		return
	}

	c.logger.Info("Capture succeeded.", zap.Int("content_bytes", len(content)))
	c.sink.Deliver(Message{Kind: MessageSuccess, Text: content})
	if err := c.tabs.CloseTab(c.tabID); err != nil {
		c.logger.Warn("Failed to close tab after success.", zap.Error(err))
	}
	c.teardownLocked()
}

// failLocked terminates the run with a failure message. The tab is left to
// the platform; only the controller's own listeners and alarm are released.
func (c *Controller) failLocked(msg string) {
	c.done = true
	c.deliverFailureLocked(msg)
}

func (c *Controller) deliverFailureLocked(msg string) {
	c.logger.Error("Capture failed.",
		zap.String("reason", msg),
		zap.String("phase", c.phase.String()),
		zap.Int("step", c.step),
	)
	c.sink.Deliver(Message{Kind: MessageFailure, Text: msg})
	c.teardownLocked()
}

// abandonLocked is the silent give-up path: no messages, cleanup only.
func (c *Controller) abandonLocked() {
	c.done = true
	c.logger.Debug("Run abandoned by continuation predicate.")
	c.teardownLocked()
}

// teardownLocked releases the navigation listener and the watchdog alarm.
// Safe to invoke repeatedly; late events land here harmlessly.
func (c *Controller) teardownLocked() {
	if c.stopListen != nil {
		c.stopListen()
		c.stopListen = nil
	}
	if c.tabID != "" {
		c.tabs.ClearAlarm(AlarmName(c.tabID))
	}
}

// ActivateTab brings the automated tab to the foreground. It has no effect
// on state machine progression and is a no-op once the task is done.
func (c *Controller) ActivateTab() {
	c.mu.Lock()
	done, tab := c.done, c.tabID
	c.mu.Unlock()

	if done || tab == "" {
		return
	}
	if err := c.tabs.ActivateTab(tab); err != nil {
		c.logger.Warn("Failed to activate tab.", zap.Error(err))
	}
}

// Done reports whether the task has reached a terminal state.
func (c *Controller) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// TabID returns the identity of the automated tab, empty before Run.
func (c *Controller) TabID() TabID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tabID
}

// RunID returns the unique identifier of this task.
func (c *Controller) RunID() string { return c.runID }

// ProviderID returns the resolved provider id.
func (c *Controller) ProviderID() string { return c.providerID }

// SourceID returns the resolved source id (after any provider default).
func (c *Controller) SourceID() string { return c.sourceID }

// viewLocked snapshots the state continuation predicates may consult.
func (c *Controller) viewLocked() View {
	return View{Phase: c.phase, Step: c.step, UserData: c.userData}
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Step returns the current step index.
func (c *Controller) Step() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

// UserData returns the merged provider options for this run.
func (c *Controller) UserData() map[string]string { return c.userData }
