package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/petal-labs/namewatch/journal"
)

var standardCronParser = cron.NewParser(
	cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow,
)

func parseCronExpressionUTC(expr string) (cron.Schedule, error) {
	clean := strings.TrimSpace(expr)
	if clean == "" {
		return nil, fmt.Errorf("cron expression is required")
	}

	upper := strings.ToUpper(clean)
	if strings.Contains(upper, "CRON_TZ=") || strings.Contains(upper, "TZ=") {
		return nil, fmt.Errorf("cron expression must be UTC-only (timezone prefixes are not allowed)")
	}

	schedule, err := standardCronParser.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule, nil
}

// pruner deletes journal records older than the retention window on a
// cron schedule.
type pruner struct {
	journal   journal.Journal
	schedule  cron.Schedule
	retention time.Duration
	logger    *slog.Logger
}

func newPruner(j journal.Journal, cfg JournalConfig, logger *slog.Logger) (*pruner, error) {
	if cfg.Retention <= 0 {
		return nil, nil
	}
	schedule, err := parseCronExpressionUTC(cfg.PruneSchedule)
	if err != nil {
		return nil, fmt.Errorf("daemon: prune schedule: %w", err)
	}
	return &pruner{
		journal:   j,
		schedule:  schedule,
		retention: cfg.Retention,
		logger:    logger,
	}, nil
}

// run prunes on the configured schedule until ctx is cancelled.
func (p *pruner) run(ctx context.Context) {
	for {
		now := time.Now().UTC()
		next := p.schedule.Next(now)

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		p.prune(ctx)
	}
}

// prune runs a single pruning pass.
func (p *pruner) prune(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-p.retention)
	removed, err := p.journal.Prune(ctx, cutoff)
	if err != nil {
		p.logger.Error("journal prune failed", "error", err)
		return
	}
	if removed > 0 {
		p.logger.Info("journal pruned", "removed", removed, "cutoff", cutoff)
	}
}
