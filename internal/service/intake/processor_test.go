package intake_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/israelreshef/delivery-app-sub000/internal/apperr"
	"github.com/israelreshef/delivery-app-sub000/internal/domain"
	"github.com/israelreshef/delivery-app-sub000/internal/idempotency"
	"github.com/israelreshef/delivery-app-sub000/internal/repository/memory"
	"github.com/israelreshef/delivery-app-sub000/internal/service/intake"
	"github.com/israelreshef/delivery-app-sub000/internal/service/orders"
	testlog "github.com/israelreshef/delivery-app-sub000/internal/testutil"
)

func draft() *domain.OrderDraft {
	return &domain.OrderDraft{
		CustomerID: 4,
		Pickup: domain.Stop{
			Address: domain.Address{Street: "1 Herzl", City: "Tel Aviv", Lat: 32.07, Lng: 34.78},
			Contact: domain.Contact{Name: "A", Phone: "+972500000001"},
		},
		Dropoff: domain.Stop{
			Address: domain.Address{Street: "2 Dizengoff", City: "Tel Aviv", Lat: 32.08, Lng: 34.77},
			Contact: domain.Contact{Name: "B", Phone: "+972500000002"},
		},
	}
}

func newProcessor(t *testing.T) (*intake.Processor, *orders.Service, *testlog.Recorder) {
	t.Helper()
	rec := testlog.New()
	svc := orders.NewService(memory.NewStore(), nil, time.Second, nil)
	return intake.NewProcessor(svc, idempotency.NewMemoryStore(), rec.Logger()), svc, rec
}

func TestProcessor_SubmittedCreatesPendingOrderOnce(t *testing.T) {
	t.Parallel()

	p, svc, rec := newProcessor(t)
	ctx := context.Background()
	ev := intake.Event{Key: "shop-1:77", Type: "order_submitted", Draft: draft()}

	require.NoError(t, p.Handle(ctx, ev))
	require.NoError(t, p.Handle(ctx, ev))

	list, err := svc.List(ctx, domain.OrderFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, domain.OrderPending, list[0].Status)
	require.Equal(t, int64(4), list[0].CustomerID)
	require.Len(t, rec.Find("intake: duplicate event skipped"), 1)
}

func TestProcessor_InvalidSubmissionIsTerminal(t *testing.T) {
	t.Parallel()

	p, _, _ := newProcessor(t)
	d := draft()
	d.Pickup.Address.City = ""

	err := p.Handle(context.Background(), intake.Event{Type: "order_submitted", Draft: d})
	require.ErrorIs(t, err, apperr.ErrValidation)
	require.True(t, apperr.IsTerminal(err))

	err = p.Handle(context.Background(), intake.Event{Type: "order_submitted"})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestProcessor_Cancelled(t *testing.T) {
	t.Parallel()

	p, svc, _ := newProcessor(t)
	ctx := context.Background()
	o, err := svc.Create(ctx, *draft())
	require.NoError(t, err)

	require.NoError(t, p.Handle(ctx, intake.Event{Type: " Canceled ", OrderID: o.ID, Reason: "shop closed"}))
	got, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderCancelled, got.Status)
	require.Equal(t, "cancelled: shop closed", got.History[len(got.History)-1].Note)

	// повторная отмена не ошибка
	require.NoError(t, p.Handle(ctx, intake.Event{Type: "order_cancelled", OrderID: o.ID}))

	err = p.Handle(ctx, intake.Event{Type: "order_cancelled", OrderID: 999})
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestProcessor_UnknownTypeIgnored(t *testing.T) {
	t.Parallel()

	p, svc, _ := newProcessor(t)
	require.NoError(t, p.Handle(context.Background(), intake.Event{Type: "order_paid", Draft: draft()}))

	list, err := svc.List(context.Background(), domain.OrderFilter{})
	require.NoError(t, err)
	require.Empty(t, list)
}

type failingOrders struct{ err error }

func (f failingOrders) Create(context.Context, domain.OrderDraft) (*domain.Order, error) {
	return nil, f.err
}

func (f failingOrders) Cancel(context.Context, orders.CancelCommand) (*domain.Order, error) {
	return nil, f.err
}

func TestProcessor_TransientFailureReleasesKey(t *testing.T) {
	t.Parallel()

	dedup := idempotency.NewMemoryStore()
	boom := errors.New("db down")
	p := intake.NewProcessor(failingOrders{err: boom}, dedup, nil)
	ev := intake.Event{Key: "k1", Type: "order_submitted", Draft: draft()}

	require.ErrorIs(t, p.Handle(context.Background(), ev), boom)

	fresh, err := dedup.Claim(context.Background(), "intake:k1", time.Minute)
	require.NoError(t, err)
	require.True(t, fresh)
}
