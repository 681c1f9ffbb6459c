package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"

	"github.com/israelreshef/delivery-app-sub000/internal/http/pprofserver"
	"github.com/israelreshef/delivery-app-sub000/internal/jobs"
	"github.com/israelreshef/delivery-app-sub000/internal/logx"
	"github.com/israelreshef/delivery-app-sub000/internal/realtime"
	"github.com/israelreshef/delivery-app-sub000/internal/service/dispatch"
	"github.com/israelreshef/delivery-app-sub000/internal/transport/kafka"
)

const shutdownTimeout = 15 * time.Second

// Runner runs the dispatch service
type Runner struct {
	runFn func(*dig.Container) error
	exit  func(int)
}

// NewRunner returns a new Runner
func NewRunner() *Runner {
	return &Runner{runFn: run, exit: os.Exit}
}

// MustRun runs the service until its context is cancelled and exits non-zero on failure.
func (r *Runner) MustRun(container *dig.Container) {
	err := r.runFn(container)
	if err == nil {
		return
	}
	logger := containerLogger(container)
	switch {
	case errors.Is(err, context.Canceled):
		logger.Info("shutdown requested, exiting")
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("startup aborted: startup timeout exceeded")
	default:
		logger.Error("run error", logx.Err(err))
		if r.exit != nil {
			r.exit(1)
		}
	}
}

func containerLogger(container *dig.Container) logx.Logger {
	var logger logx.Logger
	if err := container.Invoke(func(l logx.Logger) { logger = l }); err != nil || logger == nil {
		return NewLogger("info")
	}
	return logger
}

type runIn struct {
	dig.In

	Ctx       context.Context
	Logger    logx.Logger
	Server    *http.Server
	Sweep     *jobs.SweepJob
	Engine    *dispatch.Engine
	Hub       *realtime.Hub
	Pprof     *pprofserver.Server   `optional:"true"`
	Publisher *kafka.Publisher      `optional:"true"`
	Consumer  *kafka.Consumer       `optional:"true"`
	Storage   *storage              `optional:"true"`
	Redis     redis.UniversalClient `optional:"true"`
}

func run(container *dig.Container) error {
	return container.Invoke(appRun)
}

func appRun(in runIn) error {
	if err := in.Sweep.Start(); err != nil {
		return fmt.Errorf("start sweep job: %w", err)
	}
	// подбираем заказы, оставшиеся pending после рестарта
	in.Engine.TriggerSweep()

	bgCtx, stopBackground := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	if in.Publisher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = in.Publisher.Run(bgCtx)
		}()
	}
	if in.Consumer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := in.Consumer.Run(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				in.Logger.Error("intake consumer stopped", logx.Err(err))
			}
		}()
	}

	serverErr := startServer(in.Server, in.Logger)
	in.Pprof.Start()

	var runErr error
	select {
	case <-in.Ctx.Done():
		runErr = in.Ctx.Err()
		in.Logger.Info("shutting down dispatch service")
	case err := <-serverErr:
		runErr = fmt.Errorf("http server: %w", err)
	}

	gracefulShutdown(in.Server, in.Logger, shutdownTimeout)
	shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	if err := in.Pprof.Shutdown(shCtx); err != nil {
		in.Logger.Warn("pprof shutdown error", logx.Err(err))
	}
	cancel()

	in.Sweep.Stop()
	in.Engine.Close()
	// publisher дописывает очередь после отмены контекста
	stopBackground()
	wg.Wait()
	in.Hub.Close()
	closeResources(in.Logger, in.Publisher, in.Consumer, in.Redis, in.Storage)
	return runErr
}

func startServer(server *http.Server, logger logx.Logger) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("dispatch service listening", logx.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	return errCh
}

func gracefulShutdown(srv *http.Server, logger logx.Logger, timeout time.Duration) {
	shCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		logger.Error("graceful shutdown error", logx.Err(err))
	}
}

func closeResources(logger logx.Logger, publisher *kafka.Publisher, consumer *kafka.Consumer, rdb redis.UniversalClient, st *storage) {
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logger.Error("kafka consumer close error", logx.Err(err))
		}
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka producer close error", logx.Err(err))
		}
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			logger.Error("redis close error", logx.Err(err))
		}
	}
	st.Close()
}
