package app

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"

	"github.com/israelreshef/delivery-app-sub000/internal/config"
	"github.com/israelreshef/delivery-app-sub000/internal/idempotency"
	"github.com/israelreshef/delivery-app-sub000/internal/logx"
	"github.com/israelreshef/delivery-app-sub000/internal/service/intake"
	"github.com/israelreshef/delivery-app-sub000/internal/service/orders"
	"github.com/israelreshef/delivery-app-sub000/internal/transport/kafka"
)

var (
	newSyncProducer = kafka.NewSyncProducer
	newConsumer     = kafka.NewConsumer
)

func registerEvents(container *dig.Container) error {
	return provideAll(container,
		newPublisher,
		newIntakeProcessor,
		newIntakeConsumer,
	)
}

type publisherIn struct {
	dig.In
	Cfg       *config.Config
	Logger    logx.Logger
	Orders    *orders.Service
	Published *prometheus.CounterVec `name:"order_events_published_total"`
}

// newPublisher returns nil when brokers or the events topic are not configured.
func newPublisher(in publisherIn) (*kafka.Publisher, error) {
	k := in.Cfg.Kafka
	if len(k.Brokers) == 0 || k.EventsTopic == "" {
		return nil, nil
	}
	producer, err := newSyncProducer(k.Brokers)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	p := kafka.NewPublisher(producer, k.EventsTopic, 0, in.Logger.With(logx.String("component", "order_events")), in.Published)
	in.Orders.Subscribe(p)
	return p, nil
}

func newIntakeProcessor(o *orders.Service, dedup idempotency.Store, logger logx.Logger) *intake.Processor {
	return intake.NewProcessor(o, dedup, logger.With(logx.String("component", "intake")))
}

// newIntakeConsumer returns nil when Kafka is not configured.
func newIntakeConsumer(cfg *config.Config, logger logx.Logger, p *intake.Processor) (*kafka.Consumer, error) {
	k := cfg.Kafka
	c, err := newConsumer(logger.With(logx.String("component", "intake_consumer")), k.Brokers, k.GroupID, k.IntakeTopic, p.Handle)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return c, nil
}
