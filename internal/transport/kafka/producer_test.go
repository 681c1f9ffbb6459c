package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/israelreshef/delivery-app-sub000/internal/domain"
	"github.com/israelreshef/delivery-app-sub000/internal/transport/kafka"
)

func expectEvent(t *testing.T, typ string, orderID int64, status string) mocks.ValueChecker {
	return func(val []byte) error {
		var ev kafka.OrderEventDTO
		if err := json.Unmarshal(val, &ev); err != nil {
			return err
		}
		if ev.Type != typ || ev.OrderID != orderID || ev.Status != status || ev.EventID == "" {
			t.Errorf("unexpected event %+v", ev)
		}
		return nil
	}
}

func TestPublisher_SendsInCommitOrder(t *testing.T) {
	t.Parallel()

	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(expectEvent(t, kafka.EventOrderCreated, 7, "pending"))
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(expectEvent(t, kafka.EventOrderStatusChanged, 7, "assigned"))
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	published := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "events_test"}, []string{"result"})
	p := kafka.NewPublisher(sp, "order-events", 8, nil, published)

	cid := int64(3)
	ctx := context.Background()
	p.OrderChanged(ctx, domain.OrderChange{Order: domain.Order{ID: 7, Number: "ORD-1", Status: domain.OrderPending, Version: 1}})
	p.OrderChanged(ctx, domain.OrderChange{
		Order:    domain.Order{ID: 7, Status: domain.OrderAssigned, CourierID: &cid, Version: 2},
		Previous: domain.OrderPending,
	})
	p.OrderChanged(ctx, domain.OrderChange{Order: domain.Order{ID: 8, Status: domain.OrderCancelled}, Previous: domain.OrderPending})

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- p.Run(runCtx) }()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(published.WithLabelValues("ok")) == 2 &&
			testutil.ToFloat64(published.WithLabelValues("error")) == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, p.Close())
}

func TestPublisher_DropsWhenQueueFull(t *testing.T) {
	t.Parallel()

	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndSucceed()

	published := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "events_full_test"}, []string{"result"})
	p := kafka.NewPublisher(sp, "order-events", 1, nil, published)

	p.OrderChanged(context.Background(), domain.OrderChange{Order: domain.Order{ID: 1, Status: domain.OrderPending}})
	p.OrderChanged(context.Background(), domain.OrderChange{Order: domain.Order{ID: 2, Status: domain.OrderPending}})
	require.Equal(t, 1.0, testutil.ToFloat64(published.WithLabelValues("dropped")))

	// остаток отправляется при остановке
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Run(ctx))
	require.Equal(t, 1.0, testutil.ToFloat64(published.WithLabelValues("ok")))
	require.NoError(t, p.Close())
}

func TestNewSyncProducer_NoBrokers(t *testing.T) {
	t.Parallel()

	_, err := kafka.NewSyncProducer(nil)
	require.Error(t, err)
}

func TestToDomain(t *testing.T) {
	t.Parallel()

	cid := int64(5)
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	ev, err := kafka.ToDomain(kafka.SubmissionDTO{
		EventID:    " e-1 ",
		Type:       " order_cancelled ",
		OrderID:    9,
		CustomerID: &cid,
		Reason:     "  changed mind ",
		CreatedAt:  ts,
	})
	require.NoError(t, err)
	require.Equal(t, "e-1", ev.Key)
	require.Equal(t, "order_cancelled", ev.Type)
	require.Equal(t, int64(9), ev.OrderID)
	require.Equal(t, "changed mind", ev.Reason)
	require.Nil(t, ev.Draft)
	require.Equal(t, ts, ev.CreatedAt)

	_, err = kafka.ToDomain(kafka.SubmissionDTO{})
	var perm kafka.PermanentError
	require.True(t, errors.As(err, &perm))
}
