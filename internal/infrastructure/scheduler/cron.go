// Package scheduler triggers recurring jobs from cron expressions.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"TrendsScanner/internal/ports"
)

// CronScheduler runs jobs on standard five-field cron expressions. A job that
// is still running when its next tick fires is skipped.
type CronScheduler struct {
	cron     *cron.Cron
	location *time.Location
	parser   cron.Parser
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler builds a scheduler evaluating expressions in loc.
func NewCronScheduler(loc *time.Location, logger *slog.Logger) *CronScheduler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	cronLogger := slogCronLogger{logger: logger}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithParser(parser),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	return &CronScheduler{cron: c, location: loc, parser: parser}
}

// Add registers job under spec. It must be called before Start.
func (c *CronScheduler) Add(spec string, job func(time.Time)) error {
	if job == nil {
		return fmt.Errorf("job for %q is nil", spec)
	}
	if _, err := c.parser.Parse(spec); err != nil {
		return fmt.Errorf("parse cron %q: %w", spec, err)
	}
	if _, err := c.cron.AddFunc(spec, func() { job(time.Now().In(c.location)) }); err != nil {
		return fmt.Errorf("add cron %q: %w", spec, err)
	}
	return nil
}

// Start begins dispatching in the background.
func (c *CronScheduler) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.cron.Start()
	return nil
}

// Stop halts dispatching and waits for running jobs or ctx, whichever ends first.
func (c *CronScheduler) Stop(ctx context.Context) error {
	done := c.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type slogCronLogger struct {
	logger *slog.Logger
}

func (l slogCronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l slogCronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
