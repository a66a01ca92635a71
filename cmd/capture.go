// File: cmd/capture.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kfallows/citewright/internal/browser"
	"github.com/kfallows/citewright/internal/catalog"
	"github.com/kfallows/citewright/internal/citation"
	"github.com/kfallows/citewright/internal/config"
	"github.com/kfallows/citewright/internal/observability"
	"github.com/kfallows/citewright/internal/runner"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// donePollInterval paces the fallback check for runs that end without a
// terminal message (silent aborts).
const donePollInterval = 250 * time.Millisecond

// captureOutcome is the per-article report the command prints when done.
type captureOutcome struct {
	RunID    string            `json:"run_id"`
	Article  map[string]string `json:"article"`
	Success  bool              `json:"success"`
	Failure  string            `json:"failure,omitempty"`
	Citation *citation.Record  `json:"citation,omitempty"`
}

// newCaptureCmd creates the `capture` command: log in through a provider,
// search a source for one or more articles and capture their citations.
func newCaptureCmd() *cobra.Command {
	var (
		options      []string
		sourceParams []string
		article      = map[string]*string{}
	)

	captureCmd := &cobra.Command{
		Use:   "capture",
		Short: "Captures formatted citations for one or more articles",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("catalog.path", cmd.Flags().Lookup("catalog")); err != nil {
				return err
			}
			return viper.BindPFlag("browser.concurrency", cmd.Flags().Lookup("concurrency"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.Capture.ProviderID, _ = cmd.Flags().GetString("provider")
			cfg.Capture.SourceID, _ = cmd.Flags().GetString("source")
			cfg.Capture.ArticleFile, _ = cmd.Flags().GetString("articles")
			cfg.Capture.JSONOutput, _ = cmd.Flags().GetBool("json")
			if cfg.Capture.Options, err = parseKeyValues(options); err != nil {
				return fmt.Errorf("invalid --option: %w", err)
			}
			if cfg.Capture.SourceParams, err = parseKeyValues(sourceParams); err != nil {
				return fmt.Errorf("invalid --param: %w", err)
			}

			articles, err := collectArticles(cfg.Capture.ArticleFile, article)
			if err != nil {
				return err
			}
			if len(articles) == 0 {
				return fmt.Errorf("nothing to capture: pass --title (and friends) or --articles")
			}

			cat, err := catalog.Load(cfg.Catalog.Path)
			if err != nil {
				return fmt.Errorf("failed to load catalog: %w", err)
			}

			manager := browser.NewManager(cfg, logger)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := manager.Shutdown(shutdownCtx); err != nil {
					logger.Warn("Error during browser shutdown.", zap.Error(err))
				}
			}()
			executor := browser.NewExecutor(manager, logger)

			logger.Info("Starting capture batch.",
				zap.String("provider", cfg.Capture.ProviderID),
				zap.Int("articles", len(articles)),
				zap.Int("concurrency", cfg.Browser.Concurrency))

			outcomes := make([]captureOutcome, len(articles))
			sem := semaphore.NewWeighted(int64(cfg.Browser.Concurrency))
			group, groupCtx := errgroup.WithContext(ctx)
			for i, art := range articles {
				i, art := i, art
				group.Go(func() error {
					if err := sem.Acquire(groupCtx, 1); err != nil {
						return err
					}
					defer sem.Release(1)
					outcomes[i] = runCapture(groupCtx, cfg, cat, manager, executor, art, logger)
					return nil
				})
			}
			if err := group.Wait(); err != nil {
				return fmt.Errorf("capture batch aborted: %w", err)
			}

			return reportOutcomes(cmd, outcomes, cfg.Capture.JSONOutput)
		},
	}

	captureCmd.Flags().StringP("provider", "p", "", "Provider to log in through (required).")
	captureCmd.Flags().StringP("source", "s", "", "Source to search. Defaults to the provider's configured source.")
	captureCmd.Flags().StringArrayVar(&options, "option", nil, "Login/user option as key=value; repeatable. Keys may be provider-scoped (proxy.username=...).")
	captureCmd.Flags().StringArrayVar(&sourceParams, "param", nil, "Source parameter override as key=value; repeatable.")
	captureCmd.Flags().String("articles", "", "JSON file with an array of articles to capture in one batch.")
	captureCmd.Flags().Bool("json", false, "Emit machine-readable JSON instead of human output.")
	captureCmd.Flags().String("catalog", "", "Path to a catalog file merged over the built-in definitions.")
	captureCmd.Flags().IntP("concurrency", "j", 0, "Concurrent captures in a batch. (Overrides config/env)")

	for _, field := range []string{"title", "author", "year", "doi"} {
		article[field] = captureCmd.Flags().String(field, "", "Article "+field+".")
	}
	_ = captureCmd.MarkFlagRequired("provider")

	return captureCmd
}

// runCapture drives a single article through the controller and waits for
// its terminal message. A watchdog alarm closes the tab if the run stalls
// past the task timeout.
func runCapture(
	ctx context.Context,
	cfg *config.Config,
	cat *catalog.Catalog,
	manager *browser.Manager,
	executor *browser.Executor,
	article map[string]string,
	logger *zap.Logger,
) captureOutcome {
	outcome := captureOutcome{Article: article}

	messages := make(chan runner.Message, 16)
	sink := runner.SinkFunc(func(m runner.Message) {
		select {
		case messages <- m:
		default:
			logger.Warn("Dropping message: sink buffer full.", zap.String("text", m.Text))
		}
	})

	ctrl, err := runner.New(cat, cfg.Capture.ProviderID, cfg.Capture.SourceID,
		cfg.Capture.Options, cfg.Capture.SourceParams, article,
		executor, manager, sink, logger)
	if err != nil {
		outcome.Failure = err.Error()
		return outcome
	}
	outcome.RunID = ctrl.RunID()

	taskCtx, cancel := context.WithTimeout(ctx, cfg.Network.TaskTimeout)
	defer cancel()
	if err := ctrl.Run(taskCtx); err != nil {
		outcome.Failure = err.Error()
		return outcome
	}

	// The watchdog only fires on a stalled run; normal teardown clears it.
	tabID := ctrl.TabID()
	manager.SetAlarm(runner.AlarmName(tabID), cfg.Network.TaskTimeout, func() {
		logger.Warn("Watchdog fired; closing stalled tab.",
			zap.String("run_id", ctrl.RunID()), zap.String("tab", string(tabID)))
		if err := manager.CloseTab(tabID); err != nil {
			logger.Debug("Watchdog tab close failed.", zap.Error(err))
		}
	})

	// Terminal messages are delivered in the same critical section that
	// marks the run done, so once Done() reads true a non-blocking drain
	// sees everything.
	poll := time.NewTicker(donePollInterval)
	defer poll.Stop()
	for {
		select {
		case m := <-messages:
			if consumeMessage(m, &outcome, ctrl, logger) {
				return outcome
			}
		case <-poll.C:
			if !ctrl.Done() {
				continue
			}
			for {
				select {
				case m := <-messages:
					if consumeMessage(m, &outcome, ctrl, logger) {
						return outcome
					}
				default:
					// Terminal without a message: the run abandoned silently.
					outcome.Failure = "run abandoned: source had no matching result"
					return outcome
				}
			}
		case <-taskCtx.Done():
			outcome.Failure = fmt.Sprintf("capture timed out after %s", cfg.Network.TaskTimeout)
			return outcome
		}
	}
}

// consumeMessage folds one controller message into the outcome and reports
// whether it was terminal.
func consumeMessage(m runner.Message, outcome *captureOutcome, ctrl *runner.Controller, logger *zap.Logger) bool {
	switch m.Kind {
	case runner.MessageStatus:
		logger.Info(m.Text, zap.String("run_id", ctrl.RunID()))
		return false
	case runner.MessageSuccess:
		outcome.Success = true
		rec, err := citation.Parse(m.Text)
		if err != nil {
			logger.Warn("Captured citation did not normalize; keeping it raw.",
				zap.String("run_id", ctrl.RunID()), zap.Error(err))
			rec = &citation.Record{Format: citation.FormatUnknown, Raw: m.Text}
		}
		outcome.Citation = rec
		return true
	case runner.MessageFailure:
		outcome.Failure = m.Text
		return true
	default:
		return false
	}
}

// collectArticles assembles the batch from a JSON file, single-article
// flags, or both.
func collectArticles(path string, flags map[string]*string) ([]map[string]string, error) {
	var articles []map[string]string

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read articles file: %w", err)
		}
		if err := json.Unmarshal(data, &articles); err != nil {
			return nil, fmt.Errorf("failed to parse articles file %s: %w", path, err)
		}
	}

	single := map[string]string{}
	for field, value := range flags {
		if *value != "" {
			single[field] = *value
		}
	}
	if len(single) > 0 {
		articles = append(articles, single)
	}
	return articles, nil
}

// parseKeyValues turns repeated key=value flags into a map.
func parseKeyValues(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("%q is not key=value", pair)
		}
		out[key] = value
	}
	return out, nil
}

// reportOutcomes prints the batch result, human-readable or as JSON.
func reportOutcomes(cmd *cobra.Command, outcomes []captureOutcome, asJSON bool) error {
	out := cmd.OutOrStdout()

	if asJSON {
		data, err := json.MarshalIndent(outcomes, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode outcomes: %w", err)
		}
		fmt.Fprintln(out, string(data))
	} else {
		for _, o := range outcomes {
			label := o.Article["title"]
			if label == "" {
				label = o.Article["doi"]
			}
			if o.Success {
				fmt.Fprintf(out, "ok   %s\n%s\n", label, o.Citation.Raw)
			} else {
				fmt.Fprintf(out, "FAIL %s: %s\n", label, o.Failure)
			}
		}
	}

	var failed int
	for _, o := range outcomes {
		if !o.Success {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d captures failed", failed, len(outcomes))
	}
	return nil
}
