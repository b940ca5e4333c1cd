package monitor

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Schedule triggers check cycles on a cron cadence when the process runs in
// serve mode. External schedulers can hit the HTTP trigger instead; both go
// through the same Runner.
type Schedule struct {
	cron *cron.Cron
	log  *zap.Logger
}

// NewSchedule registers runner on spec (e.g. "@every 1m"). Each cycle gets
// its own deadline so a stuck cycle cannot pile up behind the next tick.
func NewSchedule(log *zap.Logger, runner *Runner, spec string, cycleTimeout time.Duration) (*Schedule, error) {
	if cycleTimeout <= 0 {
		cycleTimeout = 5 * time.Minute
	}
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
		defer cancel()
		summary, err := runner.RunCycle(ctx)
		if err != nil {
			log.Warn("scheduled_cycle_error", zap.Error(err))
			return
		}
		log.Info("scheduled_cycle_done",
			zap.Int("checked", summary.Checked),
			zap.Int("up", summary.Up),
			zap.Int("down", summary.Down),
		)
	})
	if err != nil {
		return nil, err
	}
	return &Schedule{cron: c, log: log}, nil
}

func (s *Schedule) Start() { s.cron.Start() }

// Stop halts scheduling and returns a context that closes once a cycle in
// progress has finished.
func (s *Schedule) Stop() context.Context { return s.cron.Stop() }
