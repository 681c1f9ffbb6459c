package app

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/dig"

	"github.com/israelreshef/delivery-app-sub000/internal/auth"
	"github.com/israelreshef/delivery-app-sub000/internal/config"
	"github.com/israelreshef/delivery-app-sub000/internal/gateway/proof"
	"github.com/israelreshef/delivery-app-sub000/internal/http/handlers"
	mw "github.com/israelreshef/delivery-app-sub000/internal/http/middleware"
	"github.com/israelreshef/delivery-app-sub000/internal/http/middleware/ratelimit"
	"github.com/israelreshef/delivery-app-sub000/internal/http/pprofserver"
	"github.com/israelreshef/delivery-app-sub000/internal/http/router"
	"github.com/israelreshef/delivery-app-sub000/internal/idempotency"
	"github.com/israelreshef/delivery-app-sub000/internal/location"
	"github.com/israelreshef/delivery-app-sub000/internal/logx"
	"github.com/israelreshef/delivery-app-sub000/internal/realtime"
	"github.com/israelreshef/delivery-app-sub000/internal/service/courier"
	"github.com/israelreshef/delivery-app-sub000/internal/service/dispatch"
	"github.com/israelreshef/delivery-app-sub000/internal/service/orders"
	"github.com/israelreshef/delivery-app-sub000/internal/service/tracking"
)

const idempotencyTTL = 24 * time.Hour

func registerHTTP(container *dig.Container) error {
	serverProvider := func(cfg *config.Config, mux http.Handler) *http.Server {
		return &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
	}
	pprofProvider := func(cfg *config.Config, logger logx.Logger) *pprofserver.Server {
		return pprofserver.New(pprofserver.Config{
			Addr: cfg.Pprof.Addr,
			User: cfg.Pprof.User,
			Pass: cfg.Pprof.Pass,
		}, logger)
	}
	return provideAll(container,
		newRateLimitClock,
		newRateLimiter,
		newRateLimitMiddleware,
		newLocationThrottle,
		newRealtimeHandler,
		newRouterHandlers,
		newRouterMiddleware,
		router.New,
		serverProvider,
		pprofProvider,
	)
}

type realtimeIn struct {
	dig.In
	Logger   logx.Logger
	Hub      *realtime.Hub
	Orders   *orders.Service
	Tracking *tracking.Service
	Tokens   *auth.Verifier
	Throttle ratelimit.Limiter `name:"location_throttle"`
}

func newRealtimeHandler(in realtimeIn) *realtime.Handler {
	return realtime.NewHandler(in.Hub, in.Orders, in.Tracking, in.Tokens, in.Throttle, in.Logger.With(logx.String("component", "realtime")))
}

type routerHandlersIn struct {
	dig.In
	Logger   logx.Logger
	Orders   *orders.Service
	Couriers *courier.Service
	Engine   *dispatch.Engine
	Proofs   proof.Store
	Nearby   location.Cache
	Realtime *realtime.Handler
}

func newRouterHandlers(in routerHandlersIn) router.Handlers {
	return router.Handlers{
		Base:     handlers.New(in.Logger),
		Orders:   handlers.NewOrderHandler(in.Logger, in.Orders),
		Couriers: handlers.NewCourierHandler(in.Logger, in.Couriers, in.Orders, in.Engine, in.Proofs),
		Admin:    handlers.NewAdminHandler(in.Logger, in.Engine, in.Nearby),
		Realtime: in.Realtime,
		Metrics:  promhttp.Handler(),
	}
}

func newRouterMiddleware(
	logger logx.Logger,
	tokens *auth.Verifier,
	limiter *ratelimit.Middleware,
	store idempotency.Store,
) router.Middleware {
	return router.Middleware{
		Auth:        mw.Auth(logger, tokens),
		RateLimit:   limiter.Handler(),
		Idempotency: mw.Idempotency(logger, store, idempotencyTTL),
	}
}
