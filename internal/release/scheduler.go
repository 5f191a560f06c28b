package release

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSchedule fires at 02:20 UTC on the first day of every month.
const DefaultSchedule = "20 2 1 * *"

// Scheduler runs the tagger on a cron schedule in UTC.
type Scheduler struct {
	cron   *cron.Cron
	tagger *Tagger
	logger *zap.Logger
}

// NewScheduler validates the schedule and registers the tagger job. An
// empty schedule uses the default monthly one.
func NewScheduler(tagger *Tagger, schedule string, logger *zap.Logger) (*Scheduler, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := cron.New(cron.WithLocation(time.UTC))
	s := &Scheduler{
		cron:   c,
		tagger: tagger,
		logger: logger,
	}

	if _, err := c.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid release schedule %q: %w", schedule, err)
	}

	logger.Info("release scheduler configured", zap.String("schedule", schedule))
	return s, nil
}

func (s *Scheduler) run() {
	res, err := s.tagger.Run(context.Background())
	if err != nil {
		s.logger.Error("scheduled release failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled release finished",
		zap.String("tag", res.Tag),
		zap.String("outcome", res.Outcome))
}

// Start begins firing scheduled runs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
