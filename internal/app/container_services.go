package app

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"

	"github.com/israelreshef/delivery-app-sub000/internal/auth"
	"github.com/israelreshef/delivery-app-sub000/internal/config"
	"github.com/israelreshef/delivery-app-sub000/internal/gateway"
	"github.com/israelreshef/delivery-app-sub000/internal/gateway/pricing"
	"github.com/israelreshef/delivery-app-sub000/internal/gateway/proof"
	"github.com/israelreshef/delivery-app-sub000/internal/location"
	"github.com/israelreshef/delivery-app-sub000/internal/logx"
	"github.com/israelreshef/delivery-app-sub000/internal/realtime"
	"github.com/israelreshef/delivery-app-sub000/internal/service/courier"
	"github.com/israelreshef/delivery-app-sub000/internal/service/dispatch"
	"github.com/israelreshef/delivery-app-sub000/internal/service/orders"
	"github.com/israelreshef/delivery-app-sub000/internal/service/tracking"
)

const serviceTimeout = 3 * time.Second

type gatewaysIn struct {
	dig.In
	Cfg     *config.Config
	Logger  logx.Logger
	Retries prometheus.Counter `name:"gateway_retries_total"`
}

func registerGateways(container *dig.Container) error {
	return provideAll(container, newQuoter, newProofStore)
}

func newRetrier(g config.Gateway, logger logx.Logger, retries prometheus.Counter) *gateway.Retrier {
	return gateway.NewRetrier(gateway.RetryConfig{
		MaxAttempts: g.MaxAttempts,
		BaseDelay:   g.BaseDelay,
		MaxDelay:    g.MaxDelay,
	}, logger, retries)
}

// newQuoter returns nil without PRICING_URL; drafts then keep their own price.
func newQuoter(in gatewaysIn) orders.Quoter {
	g := in.Cfg.Pricing
	if g.URL == "" {
		return nil
	}
	return pricing.NewClient(g.URL, g.Timeout, newRetrier(g, in.Logger.With(logx.String("gateway", "pricing")), in.Retries))
}

// newProofStore falls back to content digests without PROOF_URL.
func newProofStore(in gatewaysIn) proof.Store {
	g := in.Cfg.Proof
	if g.URL == "" {
		return proof.DigestStore{}
	}
	return proof.NewHTTPStore(g.URL, g.Timeout, newRetrier(g, in.Logger.With(logx.String("gateway", "proof")), in.Retries))
}

func registerOrders(container *dig.Container) error {
	return provideAll(container, newOrderService)
}

func newOrderService(st *storage, quoter orders.Quoter, logger logx.Logger) *orders.Service {
	return orders.NewService(st.Orders, quoter, serviceTimeout, logger.With(logx.String("component", "orders")))
}

func registerService(container *dig.Container) error {
	if err := registerOrders(container); err != nil {
		return err
	}
	return provideAll(container,
		func(cfg *config.Config) *auth.Verifier { return auth.NewVerifier(cfg.Auth.Secret) },
		newCourierService,
		newHub,
		newEngine,
		newTrackingService,
	)
}

func newCourierService(st *storage, logger logx.Logger) *courier.Service {
	return courier.NewService(st.Couriers, serviceTimeout, logger.With(logx.String("component", "courier")))
}

type hubIn struct {
	dig.In
	Logger      logx.Logger
	Orders      *orders.Service
	Couriers    *courier.Service
	Connections prometheus.Gauge       `name:"realtime_connections"`
	Dropped     *prometheus.CounterVec `name:"realtime_dropped_total"`
}

func newHub(in hubIn) *realtime.Hub {
	h := realtime.NewHub(in.Logger.With(logx.String("component", "realtime")), 0, realtime.HubMetrics{
		Connections: in.Connections,
		Dropped:     in.Dropped,
	})
	in.Orders.Subscribe(h)
	in.Couriers.Subscribe(h)
	return h
}

type engineIn struct {
	dig.In
	Cfg       *config.Config
	Logger    logx.Logger
	Storage   *storage
	Cache     location.Cache
	Orders    *orders.Service
	Couriers  *courier.Service
	Hub       *realtime.Hub
	Offers    *prometheus.CounterVec `name:"dispatch_offers_total"`
	Searching prometheus.Counter     `name:"dispatch_searching_total"`
}

// newEngine subscribes the engine to order and availability changes.
func newEngine(in engineIn) *dispatch.Engine {
	d := in.Cfg.Dispatch
	e := dispatch.NewEngine(
		in.Orders,
		in.Storage.Couriers,
		dispatch.NewScoreRanker(in.Cache, d.MaxRadiusKm),
		in.Hub,
		dispatch.Config{OfferTTL: d.OfferTTL, BatchSize: d.BatchSize, SweepLimit: d.SweepLimit},
		in.Logger.With(logx.String("component", "dispatch")),
		dispatch.Metrics{Offers: in.Offers, Searching: in.Searching},
	)
	in.Orders.Subscribe(e)
	in.Couriers.Subscribe(e)
	return e
}

func newTrackingService(cache location.Cache, o *orders.Service, c *courier.Service, hub *realtime.Hub, logger logx.Logger) *tracking.Service {
	s := tracking.NewService(cache, o, hub, logger.With(logx.String("component", "tracking")))
	o.Subscribe(s)
	c.Subscribe(s)
	return s
}
