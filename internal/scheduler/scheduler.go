// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a named periodic task. An empty Schedule disables the job.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context, now time.Time) error
}

// Scheduler fires jobs on cron expressions evaluated in UTC. A job still
// running when its next tick arrives skips that tick.
type Scheduler struct {
	jobs   []Job
	logger *slog.Logger
	cron   *cron.Cron
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New creates a new Scheduler for jobs.
func New(logger *slog.Logger, jobs ...Job) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		jobs:   jobs,
		logger: logger,
		cron:   newCron(logger),
	}
}

func newCron(logger *slog.Logger) *cron.Cron {
	cl := cronLogger{logger}
	return cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
}

// Validate reports whether schedule is a valid cron expression.
func Validate(schedule string) error {
	if _, err := cronParser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	return nil
}

// Start registers the enabled jobs and starts the cron ticker. Jobs run with
// ctx, so cancelling it aborts in-flight work.
func (s *Scheduler) Start(ctx context.Context) error {
	for _, job := range s.jobs {
		if job.Schedule == "" {
			s.logger.Info("job disabled", "name", job.Name)
			continue
		}
		_, err := s.cron.AddFunc(job.Schedule, func() {
			now := time.Now().UTC()
			s.logger.Info("cron firing job", "name", job.Name)
			if err := job.Run(ctx, now); err != nil {
				s.logger.Error("scheduled job failed", "name", job.Name, "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("schedule %s: invalid cron schedule %q: %w", job.Name, job.Schedule, err)
		}
		s.logger.Info("scheduled job", "name", job.Name, "schedule", job.Schedule)
	}

	s.cron.Start()
	return nil
}

// Stop stops the cron ticker. The returned context is done once running
// jobs have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// cronLogger routes cron's internal logging to slog.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
