package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/dig"

	"github.com/israelreshef/delivery-app-sub000/internal/config"
	"github.com/israelreshef/delivery-app-sub000/internal/logx"
	"github.com/israelreshef/delivery-app-sub000/internal/transport/kafka"
)

// WorkerRunner runs the intake worker
type WorkerRunner struct {
	runFn func(*dig.Container) error
}

// NewWorkerRunner returns a new WorkerRunner
func NewWorkerRunner() *WorkerRunner {
	return &WorkerRunner{runFn: runWorker}
}

// MustRun consumes intake events until the context is cancelled.
func (r *WorkerRunner) MustRun(container *dig.Container) {
	err := r.runFn(container)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	panic(err)
}

func runWorker(container *dig.Container) error {
	return container.Invoke(workerRun)
}

// workerRun needs a shared database: orders it creates are dispatched by the
// service's sweep.
func workerRun(
	ctx context.Context,
	cfg *config.Config,
	logger logx.Logger,
	consumer *kafka.Consumer,
	publisher *kafka.Publisher,
	st *storage,
) error {
	if cfg == nil || cfg.Storage != config.StoragePostgres {
		return fmt.Errorf("intake worker requires STORAGE=%s", config.StoragePostgres)
	}
	if consumer == nil {
		return fmt.Errorf("kafka consumer is nil: worker container misconfigured")
	}

	pubCtx, stopPublisher := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	if publisher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = publisher.Run(pubCtx)
		}()
	}
	defer func() {
		stopPublisher()
		wg.Wait()
		closeResources(logger, publisher, consumer, nil, st)
	}()

	logger.Info("intake worker started", logx.String("topic", cfg.Kafka.IntakeTopic))
	return consumer.Run(ctx)
}
