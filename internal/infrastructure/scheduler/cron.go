package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"NewsDigest/internal/ports"
	"NewsDigest/pkg/logger"
)

// CronScheduler runs jobs on standard five-field cron expressions.
type CronScheduler struct {
	spec       string
	loc        *time.Location
	runOnStart bool
	log        cron.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler builds a scheduler for spec evaluated in loc. With runOnStart the
// primary job also fires once immediately after Start.
func NewCronScheduler(spec string, loc *time.Location, runOnStart bool, log *slog.Logger) *CronScheduler {
	if loc == nil {
		loc = time.UTC
	}
	cronLog := logger.NewCron(log, "cron")
	return &CronScheduler{
		spec:       spec,
		loc:        loc,
		runOnStart: runOnStart,
		log:        cronLog,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog)),
		),
	}
}

// Schedule adds a secondary job. Overlapping runs of the same job are skipped.
func (c *CronScheduler) Schedule(spec string, job func(time.Time)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("schedule %q: scheduler already started", spec)
	}
	_, err := c.add(spec, job)
	return err
}

// Start registers job on the primary expression and starts the cron loop. The loop
// stops when ctx is cancelled or Stop is called.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	wrapped, err := c.add(c.spec, job)
	if err != nil {
		return err
	}

	c.cron.Start()
	c.running = true
	if c.runOnStart {
		go wrapped.Run()
	}

	go func() {
		<-ctx.Done()
		_ = c.Stop(context.Background())
	}()
	return nil
}

// Stop halts scheduling and waits for running jobs until ctx expires.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	done := c.cron.Stop()
	c.mu.Unlock()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next reports the next activation time of the primary expression after from.
func (c *CronScheduler) Next(from time.Time) (time.Time, error) {
	schedule, err := cron.ParseStandard(c.spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron %q: %w", c.spec, err)
	}
	return schedule.Next(from.In(c.loc)), nil
}

func (c *CronScheduler) add(spec string, job func(time.Time)) (cron.Job, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron %q: %w", spec, err)
	}
	wrapped := cron.NewChain(cron.SkipIfStillRunning(c.log)).Then(cron.FuncJob(func() {
		job(time.Now().In(c.loc))
	}))
	c.cron.Schedule(schedule, wrapped)
	return wrapped, nil
}
