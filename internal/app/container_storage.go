package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"

	"github.com/israelreshef/delivery-app-sub000/internal/config"
	"github.com/israelreshef/delivery-app-sub000/internal/domain"
	"github.com/israelreshef/delivery-app-sub000/internal/idempotency"
	"github.com/israelreshef/delivery-app-sub000/internal/location"
	"github.com/israelreshef/delivery-app-sub000/internal/logx"
	"github.com/israelreshef/delivery-app-sub000/internal/ports/ordertx"
	"github.com/israelreshef/delivery-app-sub000/internal/repository"
	"github.com/israelreshef/delivery-app-sub000/internal/repository/memory"
)

const (
	dbConnectRetries = 10
	dbConnectDelay   = time.Second
	redisPingTimeout = 3 * time.Second
)

// OrderStore is satisfied by memory.Store and repository.OrderRepo.
type OrderStore interface {
	ordertx.Runner
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	ListOrders(ctx context.Context, f domain.OrderFilter) ([]domain.Order, error)
	ListPending(ctx context.Context, limit int) ([]domain.Order, error)
	ActiveOrderForCourier(ctx context.Context, courierID int64) (*domain.Order, error)
}

// CourierStore is satisfied by memory.Store and repository.CourierRepo.
type CourierStore interface {
	Get(ctx context.Context, id int64) (*domain.Courier, error)
	List(ctx context.Context, limit, offset *int) ([]domain.Courier, error)
	ListEligible(ctx context.Context) ([]domain.Courier, error)
	Create(ctx context.Context, c *domain.Courier) (int64, error)
	UpdatePartial(ctx context.Context, u domain.PartialCourierUpdate) (bool, error)
	SetOnline(ctx context.Context, courierID int64, online bool) (bool, error)
}

var (
	_ OrderStore   = (*memory.Store)(nil)
	_ CourierStore = (*memory.Store)(nil)
	_ OrderStore   = (*repository.OrderRepo)(nil)
	_ CourierStore = (*repository.CourierRepo)(nil)
)

// storage is the selected backend. pool is nil for the in-memory store.
type storage struct {
	Orders   OrderStore
	Couriers CourierStore
	pool     *pgxpool.Pool
}

func (s *storage) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func registerStorage(container *dig.Container, dbConnect dbConnectFunc) error {
	provider := func(ctx context.Context, cfg *config.Config, logger logx.Logger) (*storage, error) {
		return openStorage(ctx, cfg, logger, dbConnect)
	}
	return provideAll(container, provider)
}

func openStorage(ctx context.Context, cfg *config.Config, logger logx.Logger, dbConnect dbConnectFunc) (*storage, error) {
	if cfg.Storage != config.StoragePostgres {
		s := memory.NewStore()
		logger.Info("using in-memory storage")
		return &storage{Orders: s, Couriers: s}, nil
	}

	pool, err := dbConnect(ctx, logger, cfg.DB.DSN(), dbConnectRetries, dbConnectDelay)
	if err != nil {
		return nil, err
	}
	if err := repository.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &storage{
		Orders:   repository.NewOrderRepo(pool),
		Couriers: repository.NewCourierRepo(pool),
		pool:     pool,
	}, nil
}

func registerCache(container *dig.Container) error {
	return provideAll(container,
		newRedisClient,
		newLocationCache,
		newIdempotencyStore,
	)
}

// newRedisClient returns nil when REDIS_ADDR is empty.
func newRedisClient(ctx context.Context, cfg *config.Config, logger logx.Logger) (redis.UniversalClient, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
	}
	logger.Info("redis connected", logx.String("addr", cfg.Redis.Addr))
	return rdb, nil
}

func newLocationCache(cfg *config.Config, rdb redis.UniversalClient) location.Cache {
	if rdb == nil {
		return location.NewMemoryCache(cfg.Location.TTL)
	}
	return location.NewRedisCache(rdb, cfg.Location.TTL)
}

func newIdempotencyStore(rdb redis.UniversalClient) idempotency.Store {
	if rdb == nil {
		return idempotency.NewMemoryStore()
	}
	return idempotency.NewRedisStore(rdb)
}
