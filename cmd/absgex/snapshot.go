package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/absgex/internal/marketday"
	"github.com/dgnsrekt/absgex/internal/notify"
	"github.com/dgnsrekt/absgex/internal/service"
)

func snapshotCmd() *cobra.Command {
	var (
		underlyings  []string
		at           string
		stateFile    string
		runOnStartup bool
		once         bool
	)

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Archive option chains on a daily schedule",
		Long: `Run as a daemon that archives the 0DTE option chain for each
configured underlying once per trading day, at the scheduled wall-clock
time in the market timezone. Non-trading days are skipped.

Notifications are sent via ntfy when NTFY_ENABLED=true (see NTFY_* env).

Examples:
  # Archive SPY and QQQ at 16:15 New York time every trading day
  absgex snapshot --underlyings SPY,QQQ --at 16:15

  # One immediate run, then exit
  absgex snapshot --underlyings SPY --once`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(underlyings) == 0 {
				return fmt.Errorf("at least one underlying is required")
			}
			hour, minute, err := parseClock(at)
			if err != nil {
				return err
			}

			// A snapshot run without the archive sink would do nothing.
			cfg.Archive.Enabled = true
			svc := buildService()

			resolver := marketday.NewResolver(cfg.Market.Timezone)

			notifyCfg := notify.LoadConfig()
			if err := notifyCfg.Validate(); err != nil {
				return err
			}
			notifier := notify.New(notifyCfg, logger)

			tracker := newRunTracker(stateFile)
			ctx := cmd.Context()

			if once {
				runSnapshot(ctx, svc, resolver, notifier, underlyings, logger)
				return nil
			}

			logger.Info("snapshot daemon started",
				zap.Strings("underlyings", underlyings),
				zap.String("schedule", fmt.Sprintf("%02d:%02d %s", hour, minute, cfg.Market.Timezone)),
			)

			if runOnStartup && shouldRun(resolver, tracker, hour, minute, true) {
				date := runSnapshot(ctx, svc, resolver, notifier, underlyings, logger)
				markRun(tracker, date, logger)
			}

			ticker := time.NewTicker(1 * time.Minute)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					logger.Info("snapshot daemon stopping")
					return nil

				case <-ticker.C:
					if shouldRun(resolver, tracker, hour, minute, false) {
						date := runSnapshot(ctx, svc, resolver, notifier, underlyings, logger)
						markRun(tracker, date, logger)
					}
				}
			}
		},
	}

	cmd.Flags().StringSliceVar(&underlyings, "underlyings", nil, "underlyings to archive (comma separated)")
	cmd.Flags().StringVar(&at, "at", "16:15", "daily run time HH:MM in the market timezone")
	cmd.Flags().StringVar(&stateFile, "state-file", "data/.snapshot-state", "file recording the last completed run")
	cmd.Flags().BoolVar(&runOnStartup, "run-on-startup", false, "run immediately if today's snapshot is missing")
	cmd.Flags().BoolVar(&once, "once", false, "run once and exit")

	return cmd
}

func parseClock(at string) (hour, minute int, err error) {
	parsed, err := time.Parse("15:04", at)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q (expected HH:MM)", at)
	}
	return parsed.Hour(), parsed.Minute(), nil
}

// shouldRun checks if conditions are met for triggering a snapshot run.
func shouldRun(resolver *marketday.Resolver, tracker *runTracker, hour, minute int, ignoreClock bool) bool {
	today := resolver.Today()

	if tracker.alreadyRan(today.Format("2006-01-02")) {
		return false
	}
	if !resolver.IsTradingDay(today) {
		return false
	}
	if ignoreClock {
		return true
	}

	now := time.Now().In(resolver.Location())
	return now.Hour() == hour && now.Minute() == minute
}

// runSnapshot archives the chain for every underlying and reports the
// outcome. A failed underlying does not stop the rest of the run.
func runSnapshot(ctx context.Context, svc *service.Service, resolver *marketday.Resolver, notifier notify.Notifier, underlyings []string, logger *zap.Logger) string {
	date := resolver.Today().Format("2006-01-02")
	start := time.Now()

	result := &notify.RunResult{Date: date}
	for _, underlying := range underlyings {
		_, err := svc.Profile(ctx, service.Request{Underlying: underlying, ForceRefresh: true})
		if err != nil {
			logger.Error("snapshot failed",
				zap.String("underlying", underlying),
				zap.String("date", date),
				zap.Error(err),
			)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", strings.ToUpper(underlying), err))
			continue
		}
		result.Archived = append(result.Archived, strings.ToUpper(underlying))
	}
	result.Duration = time.Since(start)

	logger.Info("snapshot run complete",
		zap.String("date", date),
		zap.Int("archived", len(result.Archived)),
		zap.Int("failed", len(result.Errors)),
		zap.Duration("duration", result.Duration),
	)

	var notifyErr error
	if result.Failed() {
		notifyErr = notifier.SendFailure(ctx, result)
	} else {
		notifyErr = notifier.SendSuccess(ctx, result)
	}
	if notifyErr != nil {
		logger.Warn("notification failed", zap.Error(notifyErr))
	}

	return date
}

func markRun(tracker *runTracker, date string, logger *zap.Logger) {
	if err := tracker.setLastRunDate(date); err != nil {
		logger.Error("failed to update snapshot state", zap.Error(err))
	}
}

// runTracker records the last completed run so a restart does not
// re-archive the same session.
type runTracker struct {
	stateFile string
}

func newRunTracker(stateFile string) *runTracker {
	return &runTracker{stateFile: stateFile}
}

func (t *runTracker) lastRunDate() string {
	data, err := os.ReadFile(t.stateFile)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (t *runTracker) setLastRunDate(date string) error {
	dir := filepath.Dir(t.stateFile)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}
	return os.WriteFile(t.stateFile, []byte(date+"\n"), 0600)
}

func (t *runTracker) alreadyRan(date string) bool {
	return t.lastRunDate() == date
}
