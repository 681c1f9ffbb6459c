package app

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"

	"github.com/israelreshef/delivery-app-sub000/internal/metrics"
)

type metricsOut struct {
	dig.Out

	RateLimitExceededTotal prometheus.Counter     `name:"rate_limit_exceeded_total"`
	GatewayRetriesTotal    prometheus.Counter     `name:"gateway_retries_total"`
	DispatchOffersTotal    *prometheus.CounterVec `name:"dispatch_offers_total"`
	DispatchSearchingTotal prometheus.Counter     `name:"dispatch_searching_total"`
	RealtimeConnections    prometheus.Gauge       `name:"realtime_connections"`
	RealtimeDroppedTotal   *prometheus.CounterVec `name:"realtime_dropped_total"`
	EventsPublishedTotal   *prometheus.CounterVec `name:"order_events_published_total"`
}

// provideMetrics registers the collectors in the default registry. A collector
// that is already registered (a second container in one process) is reused.
func provideMetrics() (metricsOut, error) {
	var (
		out metricsOut
		err error
	)
	if out.RateLimitExceededTotal, err = register("rate_limit_exceeded_total", metrics.NewRateLimitExceededTotal()); err != nil {
		return metricsOut{}, err
	}
	if out.GatewayRetriesTotal, err = register("gateway_retries_total", metrics.NewGatewayRetriesTotal()); err != nil {
		return metricsOut{}, err
	}
	if out.DispatchOffersTotal, err = register("dispatch_offers_total", metrics.NewDispatchOffersTotal()); err != nil {
		return metricsOut{}, err
	}
	if out.DispatchSearchingTotal, err = register("dispatch_searching_total", metrics.NewDispatchSearchingTotal()); err != nil {
		return metricsOut{}, err
	}
	if out.RealtimeConnections, err = register("realtime_connections", metrics.NewRealtimeConnections()); err != nil {
		return metricsOut{}, err
	}
	if out.RealtimeDroppedTotal, err = register("realtime_dropped_total", metrics.NewRealtimeDroppedTotal()); err != nil {
		return metricsOut{}, err
	}
	if out.EventsPublishedTotal, err = register("order_events_published_total", metrics.NewEventsPublishedTotal()); err != nil {
		return metricsOut{}, err
	}
	return out, nil
}

func register[T prometheus.Collector](name string, c T) (T, error) {
	if err := prometheus.DefaultRegisterer.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, fmt.Errorf("register %s: %w", name, err)
	}
	return c, nil
}
