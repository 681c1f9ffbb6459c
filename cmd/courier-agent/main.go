package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/israelreshef/delivery-app-sub000/internal/app"
	"github.com/israelreshef/delivery-app-sub000/internal/config"
	"github.com/israelreshef/delivery-app-sub000/internal/courierclient"
	"github.com/israelreshef/delivery-app-sub000/internal/logx"
)

const requestTimeout = 10 * time.Second

// walker drifts around a start point to feed the location beacon.
type walker struct {
	mu       sync.Mutex
	lat, lng float64
}

func (w *walker) next() (float64, float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lat += (rand.Float64() - 0.5) * 0.001
	w.lng += (rand.Float64() - 0.5) * 0.001
	return w.lat, w.lng
}

func main() {
	cfg, err := config.LoadAgent(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "courier-agent:", err)
		os.Exit(2)
	}
	logger := app.NewLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("courier agent stopped", logx.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Agent, logger logx.Logger) error {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	store, err := courierclient.OpenStore(cfg.QueuePath())
	if err != nil {
		return err
	}
	defer store.Close()

	// Тель-Авив, центр
	pos := &walker{lat: 32.0853, lng: 34.7818}
	client := courierclient.NewClient(cfg.ServerURL, cfg.Token, requestTimeout)
	agent := courierclient.NewAgent(courierclient.Options{
		CourierID:        cfg.CourierID,
		DeviceID:         cfg.DeviceID,
		AutoAccept:       cfg.AutoAccept,
		Position:         pos.next,
		LocationInterval: cfg.LocationInterval,
	}, client, store, logger)
	sock := courierclient.NewSocket(cfg.ServerURL, cfg.Token, cfg.CourierID, agent.Events(), logger)

	logger.Info("courier agent started",
		logx.String("server", cfg.ServerURL),
		logx.String("queue", cfg.QueuePath()),
		logx.Bool("auto_accept", cfg.AutoAccept),
	)
	return agent.Run(ctx, sock)
}
