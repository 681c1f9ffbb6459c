package app

import (
	"go.uber.org/dig"

	"github.com/israelreshef/delivery-app-sub000/internal/config"
	"github.com/israelreshef/delivery-app-sub000/internal/jobs"
	"github.com/israelreshef/delivery-app-sub000/internal/logx"
	"github.com/israelreshef/delivery-app-sub000/internal/service/dispatch"
)

func registerJobs(container *dig.Container) error {
	return provideAll(container,
		func(cfg *config.Config, engine *dispatch.Engine, logger logx.Logger) *jobs.SweepJob {
			return jobs.NewSweepJob(engine, cfg.Dispatch.SweepSpec, logger)
		},
	)
}
