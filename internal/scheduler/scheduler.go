package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/Dan9191/advance-service/internal/service"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Runner executes one deduction batch
type Runner interface {
	RunOnce(ctx context.Context) (service.DeductionReport, error)
}

// Scheduler triggers the deduction batch on a cron schedule evaluated in the business timezone.
// Overlapping runs are skipped rather than queued.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	log     *logrus.Logger
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// New validates spec and registers the batch job. The job does not run until Start.
func New(spec string, loc *time.Location, runner Runner, log *logrus.Logger) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		runner:  runner,
		log:     log,
		timeout: time.Hour,
		ctx:     ctx,
		cancel:  cancel,
	}

	logger := cron.PrintfLogger(log)
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid deduction schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.log.Info("Starting deduction scheduler")
	s.cron.Start()
}

// Stop halts the schedule, cancels a running batch and waits for it to return
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("deduction batch still running: %w", ctx.Err())
	}
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	started := time.Now()
	report, err := s.runner.RunOnce(ctx)
	if err != nil {
		s.log.Errorf("Deduction batch failed: %v", err)
		return
	}
	s.log.WithFields(logrus.Fields{
		"due":      report.Due,
		"applied":  report.Applied,
		"skipped":  report.Skipped,
		"failed":   report.Failed,
		"duration": time.Since(started).String(),
	}).Info("Deduction batch finished")
}
