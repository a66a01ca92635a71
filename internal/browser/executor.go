// File: internal/browser/executor.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/kfallows/citewright/internal/catalog"
	"github.com/kfallows/citewright/internal/runner"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultActionTimeout = 20 * time.Second

// Executor drives catalog actions inside browser tabs. It is the CDP-backed
// implementation of the run controller's action executor.
type Executor struct {
	manager *Manager
	logger  *zap.Logger
}

var _ runner.ActionExecutor = (*Executor)(nil)

func NewExecutor(manager *Manager, logger *zap.Logger) *Executor {
	return &Executor{manager: manager, logger: logger.Named("executor")}
}

// RunAction dispatches one catalog action against the given tab. Interactive
// kinds resolve to a true boolean result on completion; probing and
// extracting kinds carry their own payloads.
func (e *Executor) RunAction(ctx context.Context, id runner.TabID, action catalog.Action) (runner.Result, error) {
	tabCtx, err := e.manager.tabContext(id)
	if err != nil {
		return runner.Result{}, err
	}

	timeout, guard := actionTimeout(action)
	opCtx, cancel := context.WithTimeout(tabCtx, guard)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	e.logger.Debug("Running action.",
		zap.String("tab", string(id)), zap.String("kind", action.Kind), zap.String("selector", action.Selector))

	switch action.Kind {
	case "navigate":
		err = chromedp.Run(opCtx, chromedp.Navigate(action.URL))
	case "click":
		err = chromedp.Run(opCtx, chromedp.Click(action.Selector, chromedp.ByQuery))
	case "type":
		err = chromedp.Run(opCtx, chromedp.SendKeys(action.Selector, action.Value, chromedp.ByQuery))
	case "submit":
		err = chromedp.Run(opCtx, chromedp.Submit(action.Selector, chromedp.ByQuery))
	case "waitvisible":
		err = chromedp.Run(opCtx, chromedp.WaitVisible(action.Selector, chromedp.ByQuery))
	case "sleep":
		err = chromedp.Run(opCtx, chromedp.Sleep(timeout))

	case "exists":
		found, existsErr := e.selectorExists(opCtx, action.Selector)
		if existsErr != nil {
			return runner.Result{}, existsErr
		}
		return runner.BoolResult(found), nil

	case "extract":
		text, extractErr := e.extractText(opCtx, action.Selector)
		if extractErr != nil {
			return runner.Result{}, extractErr
		}
		return runner.TextResult(text), nil

	case "eval":
		text, evalErr := e.evalScript(opCtx, action.Value)
		if evalErr != nil {
			return runner.Result{}, evalErr
		}
		return runner.TextResult(text), nil

	case "guard":
		// The presence check runs now, while the tab is in the state the
		// preceding actions left it in; the result is consulted later.
		found, guardErr := e.selectorExists(opCtx, action.Selector)
		if guardErr != nil {
			return runner.Result{}, guardErr
		}
		return runner.ContinueResult(func(runner.View) bool { return found }), nil

	default:
		return runner.Result{}, fmt.Errorf("unsupported action kind %q", action.Kind)
	}

	if err != nil {
		return runner.Result{}, fmt.Errorf("action %q failed on %q: %w", action.Kind, action.Selector, err)
	}
	return runner.BoolResult(true), nil
}

// ElementExists reports whether a selector currently matches in the tab.
func (e *Executor) ElementExists(ctx context.Context, id runner.TabID, selector string) (bool, error) {
	tabCtx, err := e.manager.tabContext(id)
	if err != nil {
		return false, err
	}
	opCtx, cancel := context.WithTimeout(tabCtx, defaultActionTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return e.selectorExists(opCtx, selector)
}

func (e *Executor) selectorExists(ctx context.Context, selector string) (bool, error) {
	script := fmt.Sprintf(`document.querySelector(%s) !== null`, jsonEncode(selector))
	var found bool
	if err := e.evaluate(ctx, script, &found); err != nil {
		return false, fmt.Errorf("presence check for %q failed: %w", selector, err)
	}
	return found, nil
}

func (e *Executor) extractText(ctx context.Context, selector string) (string, error) {
	script := fmt.Sprintf(
		`(() => { const n = document.querySelector(%s); return n && n.textContent ? n.textContent.trim() : ""; })()`,
		jsonEncode(selector))
	var text string
	if err := e.evaluate(ctx, script, &text); err != nil {
		return "", fmt.Errorf("extraction from %q failed: %w", selector, err)
	}
	return text, nil
}

// evalScript runs an arbitrary page script and stringifies whatever comes
// back. Non-string return values keep their JSON form.
func (e *Executor) evalScript(ctx context.Context, script string) (string, error) {
	var raw jsoniter.RawMessage
	if err := e.evaluate(ctx, script, &raw); err != nil {
		return "", fmt.Errorf("script evaluation failed: %w", err)
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}
	return strings.TrimSpace(string(raw)), nil
}

func (e *Executor) evaluate(ctx context.Context, script string, out interface{}) error {
	return chromedp.Run(ctx, chromedp.Evaluate(script, out,
		func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithReturnByValue(true).WithAwaitPromise(true)
		}))
}

// actionTimeout resolves the action's nominal duration and the guard
// deadline for its context. For sleep the nominal duration is consumed in
// full, so the guard gets headroom on top; a guard equal to the sleep would
// always expire first.
func actionTimeout(action catalog.Action) (timeout, guard time.Duration) {
	timeout = defaultActionTimeout
	if action.TimeoutMs > 0 {
		timeout = time.Duration(action.TimeoutMs) * time.Millisecond
	}
	guard = timeout
	if action.Kind == "sleep" {
		guard = timeout + defaultActionTimeout
	}
	return timeout, guard
}

// jsonEncode renders a string as a JS string literal so selectors with
// quotes survive embedding in evaluated scripts.
func jsonEncode(s string) string {
	encoded, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(encoded)
}
