package orders_test

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/israelreshef/delivery-app-sub000/internal/apperr"
	"github.com/israelreshef/delivery-app-sub000/internal/domain"
	"github.com/israelreshef/delivery-app-sub000/internal/logx"
	"github.com/israelreshef/delivery-app-sub000/internal/repository/memory"
	"github.com/israelreshef/delivery-app-sub000/internal/service/orders"
	testlog "github.com/israelreshef/delivery-app-sub000/internal/testutil"
)

type stubQuoter struct {
	calls int
	fn    func(context.Context, domain.OrderDraft) (int64, error)
}

func (s *stubQuoter) Quote(ctx context.Context, d domain.OrderDraft) (int64, error) {
	s.calls++
	if s.fn == nil {
		return 0, errors.New("stubQuoter: nil")
	}
	return s.fn(ctx, d)
}

type changeRecorder struct {
	mu      sync.Mutex
	changes []domain.OrderChange
}

func (r *changeRecorder) OrderChanged(_ context.Context, ch domain.OrderChange) {
	r.mu.Lock()
	r.changes = append(r.changes, ch)
	r.mu.Unlock()
}

func (r *changeRecorder) statuses() []domain.OrderStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.OrderStatus, 0, len(r.changes))
	for _, ch := range r.changes {
		out = append(out, ch.Order.Status)
	}
	return out
}

func draft() domain.OrderDraft {
	return domain.OrderDraft{
		CustomerID: 10,
		Pickup: domain.Stop{
			Address: domain.Address{Street: "1 Herzl St", City: "Tel Aviv", Lat: 32.07, Lng: 34.78},
			Contact: domain.Contact{Name: "Dana", Phone: "+972500000001"},
		},
		Dropoff: domain.Stop{
			Address: domain.Address{Street: "5 Jaffa Rd", City: "Jerusalem", Lat: 31.78, Lng: 35.22},
			Contact: domain.Contact{Name: "Avi", Phone: "+972500000002"},
		},
		Package: domain.Package{Description: "books", WeightKg: 2, Size: domain.SizeSmall},
	}
}

func newService(t *testing.T, q orders.Quoter, logger logx.Logger) (*orders.Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	if logger == nil {
		logger = logx.Nop()
	}
	return orders.NewService(store, q, time.Second, logger), store
}

func seedCourier(t *testing.T, store *memory.Store, phone string, onboarding domain.OnboardingStatus) int64 {
	t.Helper()
	id, err := store.Create(context.Background(), &domain.Courier{
		Name:        "courier " + phone,
		Phone:       phone,
		VehicleType: domain.VehicleCar,
		Onboarding:  onboarding,
		Available:   true,
	})
	require.NoError(t, err)
	return id
}

func TestCreate_ValidationNamesField(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*domain.OrderDraft)
		field  string
	}{
		{"no customer", func(d *domain.OrderDraft) { d.CustomerID = 0 }, "customer_id"},
		{"no pickup street", func(d *domain.OrderDraft) { d.Pickup.Address.Street = " " }, "pickup.street"},
		{"no pickup city", func(d *domain.OrderDraft) { d.Pickup.Address.City = "" }, "pickup.city"},
		{"no dropoff contact", func(d *domain.OrderDraft) { d.Dropoff.Contact.Name = "" }, "dropoff.contact_name"},
		{"no dropoff phone", func(d *domain.OrderDraft) { d.Dropoff.Contact.Phone = "" }, "dropoff.contact_phone"},
		{"bad size", func(d *domain.OrderDraft) { d.Package.Size = "huge" }, "package.size"},
		{"insured without value", func(d *domain.OrderDraft) { d.Insured = true }, "insured_value"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc, store := newService(t, nil, nil)
			d := draft()
			tt.mutate(&d)

			_, err := svc.Create(context.Background(), d)
			require.ErrorIs(t, err, apperr.ErrValidation)
			var verr *apperr.ValidationError
			require.True(t, errors.As(err, &verr))
			require.Equal(t, tt.field, verr.Field)

			list, err := store.ListOrders(context.Background(), domain.OrderFilter{})
			require.NoError(t, err)
			require.Empty(t, list)
		})
	}
}

func TestCreate_StoresPendingOrder(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, nil, nil)
	rec := &changeRecorder{}
	svc.Subscribe(rec)

	price := int64(2500)
	d := draft()
	d.PriceCents = &price
	o, err := svc.Create(context.Background(), d)
	require.NoError(t, err)

	require.Equal(t, domain.OrderPending, o.Status)
	require.Regexp(t, regexp.MustCompile(`^ORD-[0-9A-F]{8}$`), o.Number)
	require.Equal(t, int64(2500), o.PriceCents)
	require.Equal(t, domain.PriorityNormal, o.Priority)
	require.Equal(t, domain.DeliveryStandard, o.DeliveryType)
	require.Len(t, o.History, 1)
	require.Equal(t, "order created", o.History[0].Note)

	got, err := svc.Get(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, o.Number, got.Number)
	require.Len(t, got.History, 1)

	require.Len(t, rec.changes, 1)
	require.True(t, rec.changes[0].Created())
}

func TestCreate_QuotesMissingPrice(t *testing.T) {
	t.Parallel()

	q := &stubQuoter{fn: func(context.Context, domain.OrderDraft) (int64, error) { return 1890, nil }}
	svc, _ := newService(t, q, nil)

	o, err := svc.Create(context.Background(), draft())
	require.NoError(t, err)
	require.Equal(t, int64(1890), o.PriceCents)
	require.Equal(t, 1, q.calls)

	price := int64(100)
	d := draft()
	d.PriceCents = &price
	_, err = svc.Create(context.Background(), d)
	require.NoError(t, err)
	require.Equal(t, 1, q.calls)
}

func TestCreate_QuoteFailureLeavesPriceUnset(t *testing.T) {
	t.Parallel()

	rec := testlog.New()
	q := &stubQuoter{fn: func(context.Context, domain.OrderDraft) (int64, error) {
		return 0, apperr.Network("quote", errors.New("connection refused"))
	}}
	svc, _ := newService(t, q, rec.Logger())

	o, err := svc.Create(context.Background(), draft())
	require.NoError(t, err)
	require.Zero(t, o.PriceCents)
	require.Len(t, rec.Find("price quote failed"), 1)
}

func TestAssign_TakesCourier(t *testing.T) {
	t.Parallel()

	svc, store := newService(t, nil, nil)
	ctx := context.Background()
	cid := seedCourier(t, store, "+972501111111", domain.OnboardingActive)
	o, err := svc.Create(ctx, draft())
	require.NoError(t, err)

	got, err := svc.Assign(ctx, o.ID, cid)
	require.NoError(t, err)
	require.Equal(t, domain.OrderAssigned, got.Status)
	require.True(t, got.OwnedBy(cid))
	require.Equal(t, o.Version+1, got.Version)
	require.Len(t, got.History, 2)

	c, err := store.Get(ctx, cid)
	require.NoError(t, err)
	require.False(t, c.Available)

	active, err := svc.ActiveForCourier(ctx, cid)
	require.NoError(t, err)
	require.Equal(t, o.ID, active.ID)
}

func TestAssign_ConcurrentCallersOneWins(t *testing.T) {
	t.Parallel()

	svc, store := newService(t, nil, nil)
	ctx := context.Background()
	o, err := svc.Create(ctx, draft())
	require.NoError(t, err)

	const n = 8
	couriers := make([]int64, n)
	for i := range couriers {
		couriers[i] = seedCourier(t, store, fmt.Sprintf("+97250000%04d", i), domain.OnboardingActive)
	}

	var (
		wg      sync.WaitGroup
		errs    = make([]error, n)
		start   = make(chan struct{})
		winners int
	)
	for i := range couriers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.Assign(ctx, o.ID, couriers[i])
		}(i)
	}
	close(start)
	wg.Wait()

	var winner int64
	for i, err := range errs {
		if err == nil {
			winners++
			winner = couriers[i]
			continue
		}
		var aerr *apperr.AlreadyAssignedError
		require.True(t, errors.As(err, &aerr), "unexpected error: %v", err)
		require.Equal(t, o.ID, aerr.OrderID)
	}
	require.Equal(t, 1, winners)

	for _, cid := range couriers {
		c, err := store.Get(ctx, cid)
		require.NoError(t, err)
		require.Equal(t, cid != winner, c.Available, "courier %d", cid)
	}
}

func TestAssign_CourierUnavailable(t *testing.T) {
	t.Parallel()

	svc, store := newService(t, nil, nil)
	ctx := context.Background()
	fresh := seedCourier(t, store, "+972502222222", domain.OnboardingNew)
	busy := seedCourier(t, store, "+972503333333", domain.OnboardingActive)

	first, err := svc.Create(ctx, draft())
	require.NoError(t, err)
	second, err := svc.Create(ctx, draft())
	require.NoError(t, err)

	_, err = svc.Assign(ctx, first.ID, fresh)
	require.ErrorIs(t, err, apperr.ErrCourierUnavailable)

	_, err = svc.Assign(ctx, first.ID, busy)
	require.NoError(t, err)
	_, err = svc.Assign(ctx, second.ID, busy)
	require.ErrorIs(t, err, apperr.ErrCourierUnavailable)

	got, err := svc.Get(ctx, second.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderPending, got.Status)

	_, err = svc.Assign(ctx, 404, busy)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestTransition_Rules(t *testing.T) {
	t.Parallel()

	svc, store := newService(t, nil, nil)
	ctx := context.Background()
	owner := seedCourier(t, store, "+972504444444", domain.OnboardingActive)
	o, err := svc.Create(ctx, draft())
	require.NoError(t, err)

	_, err = svc.Transition(ctx, orders.TransitionCommand{OrderID: o.ID, Status: domain.OrderDelivered})
	var terr *apperr.TransitionError
	require.True(t, errors.As(err, &terr))
	require.Equal(t, "pending", terr.From)

	_, err = svc.Transition(ctx, orders.TransitionCommand{OrderID: o.ID, Status: domain.OrderAssigned})
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)

	_, err = svc.Transition(ctx, orders.TransitionCommand{OrderID: o.ID, Status: "lost"})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Transition(ctx, orders.TransitionCommand{OrderID: 999, Status: domain.OrderCancelled})
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.Assign(ctx, o.ID, owner)
	require.NoError(t, err)

	stranger := int64(777)
	_, err = svc.Transition(ctx, orders.TransitionCommand{OrderID: o.ID, Status: domain.OrderPickedUp, CourierID: &stranger})
	var nerr *apperr.NotOwnerError
	require.True(t, errors.As(err, &nerr))
	require.Equal(t, stranger, nerr.CourierID)

	got, err := svc.Transition(ctx, orders.TransitionCommand{OrderID: o.ID, Status: domain.OrderPickedUp, CourierID: &owner, Note: "at the door"})
	require.NoError(t, err)
	require.Equal(t, domain.OrderPickedUp, got.Status)
	require.Equal(t, "at the door", got.History[len(got.History)-1].Note)
}

func TestTransition_DeliveredReleasesCourier(t *testing.T) {
	t.Parallel()

	svc, store := newService(t, nil, nil)
	rec := &changeRecorder{}
	svc.Subscribe(rec)
	ctx := context.Background()
	cid := seedCourier(t, store, "+972505555555", domain.OnboardingActive)

	o, err := svc.Create(ctx, draft())
	require.NoError(t, err)
	_, err = svc.Assign(ctx, o.ID, cid)
	require.NoError(t, err)
	_, err = svc.Transition(ctx, orders.TransitionCommand{OrderID: o.ID, Status: domain.OrderPickedUp, CourierID: &cid})
	require.NoError(t, err)
	_, err = svc.Transition(ctx, orders.TransitionCommand{OrderID: o.ID, Status: domain.OrderInTransit, CourierID: &cid})
	require.NoError(t, err)
	done, err := svc.Transition(ctx, orders.TransitionCommand{
		OrderID: o.ID, Status: domain.OrderDelivered, CourierID: &cid, ProofRef: "sha256:abc",
	})
	require.NoError(t, err)
	require.Equal(t, "sha256:abc", done.ProofRef)
	require.Len(t, done.History, 5)

	c, err := store.Get(ctx, cid)
	require.NoError(t, err)
	require.True(t, c.Available)
	require.Equal(t, 1, c.TotalDeliveries)

	require.Equal(t, []domain.OrderStatus{
		domain.OrderPending, domain.OrderAssigned, domain.OrderPickedUp, domain.OrderInTransit, domain.OrderDelivered,
	}, rec.statuses())
	last := rec.changes[len(rec.changes)-1]
	require.Equal(t, domain.OrderInTransit, last.Previous)
	require.NotNil(t, last.ReleasedCourierID)
	require.Equal(t, cid, *last.ReleasedCourierID)

	_, err = svc.Transition(ctx, orders.TransitionCommand{OrderID: o.ID, Status: domain.OrderCancelled})
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestCancel_CustomerScope(t *testing.T) {
	t.Parallel()

	svc, store := newService(t, nil, nil)
	ctx := context.Background()
	cid := seedCourier(t, store, "+972506666666", domain.OnboardingActive)
	o, err := svc.Create(ctx, draft())
	require.NoError(t, err)
	_, err = svc.Assign(ctx, o.ID, cid)
	require.NoError(t, err)

	other := int64(11)
	_, err = svc.Cancel(ctx, orders.CancelCommand{OrderID: o.ID, CustomerID: &other})
	require.ErrorIs(t, err, apperr.ErrNotFound)

	owner := int64(10)
	got, err := svc.Cancel(ctx, orders.CancelCommand{OrderID: o.ID, CustomerID: &owner, Reason: "changed my mind"})
	require.NoError(t, err)
	require.Equal(t, domain.OrderCancelled, got.Status)
	require.Equal(t, "cancelled: changed my mind", got.History[len(got.History)-1].Note)

	c, err := store.Get(ctx, cid)
	require.NoError(t, err)
	require.True(t, c.Available)
	require.Zero(t, c.TotalDeliveries)
}

func TestList_FiltersAndValidates(t *testing.T) {
	t.Parallel()

	svc, store := newService(t, nil, nil)
	ctx := context.Background()
	cid := seedCourier(t, store, "+972507777777", domain.OnboardingActive)
	a, err := svc.Create(ctx, draft())
	require.NoError(t, err)
	_, err = svc.Create(ctx, draft())
	require.NoError(t, err)
	_, err = svc.Assign(ctx, a.ID, cid)
	require.NoError(t, err)

	pending, err := svc.List(ctx, domain.OrderFilter{Status: domain.OrderPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)

	queue, err := svc.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, queue, 1)

	_, err = svc.List(ctx, domain.OrderFilter{Status: "lost"})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.ActiveForCourier(ctx, 12345)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}
