package journal

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// ParseCron parses a five field cron expression
func ParseCron(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(expr)
}

// Pruner deletes journal entries older than the retention on a cron
// schedule
type Pruner struct {
	store     *Store
	schedule  cron.Schedule
	retention time.Duration
	now       func() time.Time
}

// NewPruner creates a pruner for store
func NewPruner(store *Store, expr string, retention time.Duration) (*Pruner, error) {
	sched, err := ParseCron(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid prune cron %q: %w", expr, err)
	}
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %v", retention)
	}
	return &Pruner{store: store, schedule: sched, retention: retention, now: time.Now}, nil
}

// NextRun returns the next scheduled prune after t
func (p *Pruner) NextRun(t time.Time) time.Time {
	return p.schedule.Next(t)
}

// PruneNow deletes entries older than the retention
func (p *Pruner) PruneNow() (int64, error) {
	return p.store.Prune(p.now().Add(-p.retention))
}

// Run prunes on schedule until ctx is cancelled
func (p *Pruner) Run(ctx context.Context) error {
	for {
		next := p.NextRun(p.now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			n, err := p.PruneNow()
			if err != nil {
				log.Printf("[journal] Prune failed: %v", err)
				continue
			}
			log.Printf("[journal] Pruned %d envelopes", n)
		}
	}
}
