// Package scheduler pushes the boss report on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/HendryAvila/pmtools/internal/notify"
	"github.com/HendryAvila/pmtools/internal/report"
)

// Reporter builds and publishes reports. *report.Aggregator satisfies it.
type Reporter interface {
	Generate(ctx context.Context, opts report.Options) (*report.Report, error)
	Publish(ctx context.Context, r *report.Report, dest notify.Destination) notify.DeliveryResult
}

// Config describes the scheduled report.
type Config struct {
	// Schedule is a standard 5-field cron expression or a descriptor
	// such as "@daily" or "@every 1h".
	Schedule string
	Window   string
	// Channel filters the report and is where it is delivered.
	Channel string
	// Destination overrides where the report is delivered.
	Destination string
	Timeout     time.Duration
}

// ReportJob is one scheduled report run. It implements cron.Job.
type ReportJob struct {
	reporter Reporter
	opts     report.Options
	dest     notify.Destination
	timeout  time.Duration
	logger   *slog.Logger
}

// Run generates and publishes the report. Failures are logged only.
func (j *ReportJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	if _, err := j.RunOnce(ctx); err != nil {
		j.logger.Error("scheduled report failed", "error", err)
	}
}

// RunOnce generates and publishes the report, returning the delivery result.
func (j *ReportJob) RunOnce(ctx context.Context) (notify.DeliveryResult, error) {
	r, err := j.reporter.Generate(ctx, j.opts)
	if err != nil {
		return notify.DeliveryResult{}, fmt.Errorf("generating report: %w", err)
	}
	res := j.reporter.Publish(ctx, r, j.dest)
	if !res.Success {
		return res, fmt.Errorf("publishing report to %s: %s", res.Channel, res.Error)
	}
	j.logger.Info("scheduled report published",
		"window", r.Window.Name, "channel", res.Channel, "attempts", res.Attempts, "total", r.Total)
	return res, nil
}

// Scheduler runs a ReportJob on its cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	entry    cron.EntryID
	job      *ReportJob
	schedule string
	logger   *slog.Logger
	started  bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New parses cfg.Schedule and prepares the report job. The schedule is
// evaluated in UTC.
func New(cfg Config, reporter Reporter, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{schedule: cfg.Schedule, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	sched, err := cron.ParseStandard(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", cfg.Schedule, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	dest := cfg.Destination
	if dest == "" {
		dest = cfg.Channel
	}

	opt := report.DefaultOptions()
	opt.Window = cfg.Window
	opt.Channel = cfg.Channel
	s.job = &ReportJob{
		reporter: reporter,
		opts:     opt,
		dest:     notify.Destination{Channel: dest},
		timeout:  timeout,
		logger:   s.logger,
	}

	cl := cronLogger{s.logger}
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	s.entry = s.cron.Schedule(sched, s.job)
	return s, nil
}

// Job returns the scheduled job, for running it on demand.
func (s *Scheduler) Job() *ReportJob { return s.job }

// Start begins running the job on schedule in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.started = true
	s.logger.Info("report scheduler started", "schedule", s.schedule, "channel", s.job.dest.Channel)
}

// Stop halts the schedule and waits for a running job to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	if !s.started {
		return
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("report scheduler stop timed out")
	}
	s.started = false
}

// Next returns the next scheduled run. It is zero until the scheduler has
// started and computed it.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
