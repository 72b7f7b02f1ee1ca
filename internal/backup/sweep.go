package backup

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Target is one instance the sweeper can back up.
type Target interface {
	Name() string
	TriggerBackupNow() error
}

// Sweeper triggers a fleet-wide backup on a cron schedule, on top of the
// per-instance period actors.
type Sweeper struct {
	schedule cron.Schedule
	list     func() []Target
}

// NewSweeper parses the cron expression and builds a sweeper. An empty
// expression disables the sweep.
func NewSweeper(expr string, list func() []Target) (*Sweeper, error) {
	if expr == "" {
		return nil, nil
	}

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid backup schedule %q: %w", expr, err)
	}

	return &Sweeper{schedule: schedule, list: list}, nil
}

// Start runs the sweep loop until the context is cancelled.
func (sw *Sweeper) Start(ctx context.Context) {
	go func() {
		for {
			next := sw.schedule.Next(time.Now())
			select {
			case <-ctx.Done():
				log.Printf("[BackupSweep] stopping")
				return
			case <-time.After(time.Until(next)):
			}

			targets := sw.list()
			log.Printf("[BackupSweep] sweeping %d instances", len(targets))
			for _, target := range targets {
				if err := target.TriggerBackupNow(); err != nil {
					log.Printf("[BackupSweep] backup failed for %s: %v", target.Name(), err)
				}
			}
		}
	}()
}
