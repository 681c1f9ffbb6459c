// Package jobs runs scheduled background work with github.com/robfig/cron/v3.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/israelreshef/delivery-app-sub000/internal/logx"
)

const sweepTimeout = 30 * time.Second

type sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// SweepJob re-dispatches pending orders that have no live offer round.
type SweepJob struct {
	sweeper sweeper
	spec    string
	cron    *cron.Cron
	logger  logx.Logger
}

// NewSweepJob creates a job that runs on spec, e.g. "@every 10s".
func NewSweepJob(s sweeper, spec string, logger logx.Logger) *SweepJob {
	if logger == nil {
		logger = logx.Nop()
	}
	return &SweepJob{
		sweeper: s,
		spec:    spec,
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:  logger.With(logx.String("component", "dispatch_sweep_job")),
	}
}

// Start schedules the job. It fails on an invalid spec.
func (j *SweepJob) Start() error {
	if _, err := j.cron.AddFunc(j.spec, j.run); err != nil {
		return err
	}
	j.cron.Start()
	j.logger.Info("dispatch sweep job started", logx.String("spec", j.spec))
	return nil
}

func (j *SweepJob) run() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	if _, err := j.sweeper.Sweep(ctx); err != nil {
		j.logger.Error("dispatch sweep failed", logx.Err(err))
	}
}

// Stop stops scheduling and waits for a running sweep.
func (j *SweepJob) Stop() {
	<-j.cron.Stop().Done()
	j.logger.Info("dispatch sweep job stopped")
}
