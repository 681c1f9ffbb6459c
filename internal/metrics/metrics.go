package metrics

import "github.com/prometheus/client_golang/prometheus"

// NewRateLimitExceededTotal returns a Prometheus counter for the number of rejected HTTP requests due to rate limiting
func NewRateLimitExceededTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rate_limit_exceeded_total",
		Help: "Total number of rejected HTTP requests due to rate limiting",
	})
}

// NewGatewayRetriesTotal returns a Prometheus counter for the number of retry attempts performed by gateways
func NewGatewayRetriesTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_retries_total",
		Help: "Total number of retry attempts performed by gateways",
	})
}

// NewDispatchOffersTotal returns a counter of offer outcomes: offered, accepted, rejected, expired, lost, withdrawn
func NewDispatchOffersTotal() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_offers_total",
		Help: "Total number of courier offers by outcome",
	}, []string{"outcome"})
}

// NewDispatchSearchingTotal returns a counter of offer rounds that ran out of candidates
func NewDispatchSearchingTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_searching_total",
		Help: "Total number of offer rounds that ran out of candidate couriers",
	})
}

// NewRealtimeConnections returns a gauge of open realtime connections
func NewRealtimeConnections() prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_connections",
		Help: "Number of open realtime connections",
	})
}

// NewRealtimeDroppedTotal returns a counter of dropped realtime messages by reason
func NewRealtimeDroppedTotal() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_dropped_total",
		Help: "Total number of realtime messages or connections dropped",
	}, []string{"reason"})
}

// NewEventsPublishedTotal returns a counter of order events published to the broker by result
func NewEventsPublishedTotal() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_events_published_total",
		Help: "Total number of order events published to the broker",
	}, []string{"result"})
}
