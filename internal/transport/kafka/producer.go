package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/israelreshef/delivery-app-sub000/internal/domain"
	"github.com/israelreshef/delivery-app-sub000/internal/logx"
)

const defaultPublishBuffer = 1024

// Event types on the order stream.
const (
	EventOrderCreated       = "order_created"
	EventOrderStatusChanged = "order_status_changed"
)

// NewSyncProducer connects a producer that waits for all in-sync replicas.
func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	return sarama.NewSyncProducer(brokers, cfg)
}

// Publisher streams committed order changes to a topic, keyed by order id.
// OrderChanged only enqueues; a single Run loop sends in enqueue order.
type Publisher struct {
	producer  sarama.SyncProducer
	topic     string
	logger    logx.Logger
	queue     chan *sarama.ProducerMessage
	published *prometheus.CounterVec
	newID     func() string
}

// NewPublisher creates a Publisher. published may be nil.
func NewPublisher(p sarama.SyncProducer, topic string, buffer int, logger logx.Logger, published *prometheus.CounterVec) *Publisher {
	if buffer <= 0 {
		buffer = defaultPublishBuffer
	}
	if logger == nil {
		logger = logx.Nop()
	}
	return &Publisher{
		producer:  p,
		topic:     topic,
		logger:    logger,
		queue:     make(chan *sarama.ProducerMessage, buffer),
		published: published,
		newID:     func() string { return uuid.NewString() },
	}
}

// OrderChanged implements orders.Listener.
func (p *Publisher) OrderChanged(_ context.Context, ch domain.OrderChange) {
	o := ch.Order
	dto := OrderEventDTO{
		EventID:        p.newID(),
		Type:           EventOrderStatusChanged,
		OrderID:        o.ID,
		OrderNumber:    o.Number,
		Status:         string(o.Status),
		PreviousStatus: string(ch.Previous),
		CourierID:      o.CourierID,
		Version:        o.Version,
		At:             o.UpdatedAt,
	}
	if ch.Created() {
		dto.Type = EventOrderCreated
	}
	if dto.At.IsZero() {
		dto.At = time.Now().UTC()
	}
	value, err := json.Marshal(dto)
	if err != nil {
		p.count("error")
		p.logger.Error("kafka encode event failed", logx.Int64("order_id", o.ID), logx.Err(err))
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(strconv.FormatInt(o.ID, 10)),
		Value: sarama.ByteEncoder(value),
	}
	select {
	case p.queue <- msg:
	default:
		p.count("dropped")
		p.logger.Warn("kafka publish queue full, event dropped",
			logx.Int64("order_id", o.ID),
			logx.String("status", dto.Status),
		)
	}
}

// Run sends queued events until ctx is done, then flushes what is left.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case msg := <-p.queue:
			p.send(msg)
		case <-ctx.Done():
			for {
				select {
				case msg := <-p.queue:
					p.send(msg)
				default:
					return nil
				}
			}
		}
	}
}

func (p *Publisher) send(msg *sarama.ProducerMessage) {
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.count("error")
		p.logger.Error("kafka publish failed", logx.String("topic", msg.Topic), logx.Err(err))
		return
	}
	p.count("ok")
	p.logger.Debug("kafka event published",
		logx.Int("partition", int(partition)),
		logx.Int64("offset", offset),
	)
}

func (p *Publisher) count(result string) {
	if p.published != nil {
		p.published.WithLabelValues(result).Inc()
	}
}

// Close closes the underlying producer.
func (p *Publisher) Close() error {
	return p.producer.Close()
}
