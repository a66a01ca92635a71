// File: internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kfallows/citewright/internal/config"
	"github.com/kfallows/citewright/internal/runner"
)

const shutdownGracePeriod = 15 * time.Second

// tab binds a chromedp target to its identity and event fan-out.
type tab struct {
	id     runner.TabID
	ctx    context.Context
	cancel context.CancelFunc
	events *tabEvents
}

// Manager owns the headless browser process and implements the tab platform
// consumed by the run controller: tab lifecycle, navigation-complete events,
// named watchdog alarms and per-host navigation pacing.
type Manager struct {
	logger *zap.Logger
	cfg    *config.Config

	mu       sync.RWMutex
	tabs     map[runner.TabID]*tab
	limiters map[string]*rate.Limiter

	alarms *alarmRegistry
	wg     sync.WaitGroup

	allocCtx    context.Context
	allocCancel context.CancelFunc

	// Browser startup is deferred until the first tab is requested.
	initOnce sync.Once
}

var _ runner.TabPlatform = (*Manager)(nil)

// NewManager creates a browser manager. The browser process itself is not
// launched until the first OpenTab call.
func NewManager(cfg *config.Config, logger *zap.Logger) *Manager {
	return &Manager{
		logger:   logger.Named("browser"),
		cfg:      cfg,
		tabs:     make(map[runner.TabID]*tab),
		limiters: make(map[string]*rate.Limiter),
		alarms:   newAlarmRegistry(),
	}
}

// initialize builds the exec allocator once. Allocator construction cannot
// fail; the browser process itself launches lazily on the first tab context.
func (m *Manager) initialize() {
	m.initOnce.Do(func() {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", m.cfg.Browser.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-first-run", true),
		)
		if m.cfg.Browser.DisableCache {
			opts = append(opts, chromedp.Flag("disk-cache-size", "0"))
		}
		if m.cfg.Browser.UserAgent != "" {
			opts = append(opts, chromedp.UserAgent(m.cfg.Browser.UserAgent))
		}
		for _, arg := range m.cfg.Browser.Args {
			name, value, found := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
			if found {
				opts = append(opts, chromedp.Flag(name, value))
			} else {
				opts = append(opts, chromedp.Flag(name, true))
			}
		}

		m.allocCtx, m.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
		m.logger.Info("Browser allocator initialized.", zap.Bool("headless", m.cfg.Browser.Headless))
	})
}

// OpenTab creates a tab, subscribes to its load events and kicks off the
// initial navigation without waiting for it; the navigation-complete event
// reaches subscribers through Listen.
func (m *Manager) OpenTab(ctx context.Context, rawURL string, active bool) (runner.TabID, error) {
	m.initialize()
	if err := m.waitNavigationSlot(ctx, rawURL); err != nil {
		return "", err
	}

	tabCtx, cancel := chromedp.NewContext(m.allocCtx)
	t := &tab{
		id:     runner.TabID(uuid.New().String()),
		ctx:    tabCtx,
		cancel: cancel,
		events: newTabEvents(),
	}

	// Load events fire once per completed navigation. The fan-out runs on
	// its own goroutine: ListenTarget callbacks must never block or call
	// back into chromedp.
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if _, ok := ev.(*page.EventLoadEventFired); ok {
			go t.events.fire()
		}
	})

	m.mu.Lock()
	m.tabs[t.id] = t
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		navCtx, navCancel := context.WithTimeout(tabCtx, m.cfg.Network.NavigationTimeout)
		defer navCancel()
		if err := chromedp.Run(navCtx, chromedp.Navigate(rawURL)); err != nil {
			m.logger.Warn("Initial navigation failed.",
				zap.String("tab", string(t.id)), zap.String("url", rawURL), zap.Error(err))
			return
		}
		if active {
			if err := m.ActivateTab(t.id); err != nil {
				m.logger.Debug("Failed to foreground new tab.", zap.Error(err))
			}
		}
	}()

	m.logger.Debug("Tab opened.", zap.String("tab", string(t.id)), zap.String("url", rawURL))
	return t.id, nil
}

// Listen subscribes fn to navigation-complete events for one tab.
func (m *Manager) Listen(id runner.TabID, fn func()) (func(), error) {
	t, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	return t.events.listen(fn), nil
}

// CloseTab gracefully closes the tab's target and forgets it.
func (m *Manager) CloseTab(id runner.TabID) error {
	m.mu.Lock()
	t, ok := m.tabs[id]
	delete(m.tabs, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown tab %s", id)
	}

	if err := chromedp.Cancel(t.ctx); err != nil {
		t.cancel()
		return fmt.Errorf("failed to close tab %s: %w", id, err)
	}
	m.logger.Debug("Tab closed.", zap.String("tab", string(id)))
	return nil
}

// ActivateTab brings the tab's target to the foreground.
func (m *Manager) ActivateTab(id runner.TabID) error {
	t, err := m.lookup(id)
	if err != nil {
		return err
	}
	return chromedp.Run(t.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return page.BringToFront().Do(ctx)
	}))
}

// SetAlarm arms a named watchdog timer; fn runs once after d unless cleared.
func (m *Manager) SetAlarm(name string, d time.Duration, fn func()) {
	m.alarms.set(name, d, fn)
}

// ClearAlarm cancels a named watchdog timer.
func (m *Manager) ClearAlarm(name string) {
	m.alarms.clear(name)
}

// tabContext exposes a tab's chromedp context to the action executor.
func (m *Manager) tabContext(id runner.TabID) (context.Context, error) {
	t, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	return t.ctx, nil
}

func (m *Manager) lookup(id runner.TabID) (*tab, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tabs[id]
	if !ok {
		return nil, fmt.Errorf("unknown tab %s", id)
	}
	return t, nil
}

// waitNavigationSlot paces tab openings per target host so capture batches
// do not hammer one provider.
func (m *Manager) waitNavigationSlot(ctx context.Context, rawURL string) error {
	if m.cfg.Network.NavigationsPerSecond <= 0 {
		return nil
	}
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}

	m.mu.Lock()
	limiter, ok := m.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(m.cfg.Network.NavigationsPerSecond), 1)
		m.limiters[host] = limiter
	}
	m.mu.Unlock()

	return limiter.Wait(ctx)
}

// Shutdown closes every tab, stops pending alarms and tears down the
// browser process, waiting up to a grace period for stragglers.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down browser manager.")

	m.alarms.clearAll()

	m.mu.Lock()
	open := make([]*tab, 0, len(m.tabs))
	for _, t := range m.tabs {
		open = append(open, t)
	}
	m.tabs = make(map[runner.TabID]*tab)
	m.mu.Unlock()

	for _, t := range open {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for tab goroutines during shutdown.", zap.Error(ctx.Err()))
	case <-time.After(shutdownGracePeriod):
		m.logger.Warn("Grace period elapsed waiting for tab goroutines.")
	}

	if m.allocCancel != nil {
		m.allocCancel()
	}
	m.logger.Info("Browser manager shutdown complete.")
	return nil
}
