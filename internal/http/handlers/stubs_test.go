package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/israelreshef/delivery-app-sub000/internal/auth"
	"github.com/israelreshef/delivery-app-sub000/internal/domain"
	"github.com/israelreshef/delivery-app-sub000/internal/logx"
	"github.com/israelreshef/delivery-app-sub000/internal/service/orders"
	"github.com/israelreshef/delivery-app-sub000/internal/wire"
)

func testLogger() logx.Logger { return logx.Nop() }

var (
	admin    = auth.Claims{Role: auth.RoleAdmin}
	courier7 = auth.Claims{Role: auth.RoleCourier, SubjectID: 7}
	customer = auth.Claims{Role: auth.RoleCustomer, SubjectID: 42}
)

// newRequest builds a request carrying claims and chi url params given as name/value pairs.
func newRequest(t *testing.T, method, target string, body any, cl *auth.Claims, params ...string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)

	routeCtx := chi.NewRouteContext()
	for i := 0; i+1 < len(params); i += 2 {
		routeCtx.URLParams.Add(params[i], params[i+1])
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	if cl != nil {
		ctx = auth.WithClaims(ctx, *cl)
	}
	return req.WithContext(ctx)
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) wire.Error {
	t.Helper()
	var e wire.Error
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&e))
	return e
}

type stubOrderUsecase struct {
	createFn     func(ctx context.Context, d domain.OrderDraft) (*domain.Order, error)
	getFn        func(ctx context.Context, id int64) (*domain.Order, error)
	listFn       func(ctx context.Context, f domain.OrderFilter) ([]domain.Order, error)
	assignFn     func(ctx context.Context, orderID, courierID int64) (*domain.Order, error)
	transitionFn func(ctx context.Context, cmd orders.TransitionCommand) (*domain.Order, error)
	cancelFn     func(ctx context.Context, cmd orders.CancelCommand) (*domain.Order, error)
	activeFn     func(ctx context.Context, courierID int64) (*domain.Order, error)
}

func (s *stubOrderUsecase) Create(ctx context.Context, d domain.OrderDraft) (*domain.Order, error) {
	return s.createFn(ctx, d)
}

func (s *stubOrderUsecase) Get(ctx context.Context, id int64) (*domain.Order, error) {
	return s.getFn(ctx, id)
}

func (s *stubOrderUsecase) List(ctx context.Context, f domain.OrderFilter) ([]domain.Order, error) {
	return s.listFn(ctx, f)
}

func (s *stubOrderUsecase) Assign(ctx context.Context, orderID, courierID int64) (*domain.Order, error) {
	return s.assignFn(ctx, orderID, courierID)
}

func (s *stubOrderUsecase) Transition(ctx context.Context, cmd orders.TransitionCommand) (*domain.Order, error) {
	return s.transitionFn(ctx, cmd)
}

func (s *stubOrderUsecase) Cancel(ctx context.Context, cmd orders.CancelCommand) (*domain.Order, error) {
	return s.cancelFn(ctx, cmd)
}

func (s *stubOrderUsecase) ActiveForCourier(ctx context.Context, courierID int64) (*domain.Order, error) {
	return s.activeFn(ctx, courierID)
}

type stubCourierUsecase struct {
	getFn           func(ctx context.Context, id int64) (*domain.Courier, error)
	listFn          func(ctx context.Context, limit, offset *int) ([]domain.Courier, error)
	createFn        func(ctx context.Context, c *domain.Courier) (int64, error)
	updatePartialFn func(ctx context.Context, u domain.PartialCourierUpdate) (bool, error)
	availabilityFn  func(ctx context.Context, id int64, online bool) (*domain.Courier, error)
}

func (s *stubCourierUsecase) Get(ctx context.Context, id int64) (*domain.Courier, error) {
	return s.getFn(ctx, id)
}

func (s *stubCourierUsecase) List(ctx context.Context, limit, offset *int) ([]domain.Courier, error) {
	return s.listFn(ctx, limit, offset)
}

func (s *stubCourierUsecase) Create(ctx context.Context, c *domain.Courier) (int64, error) {
	return s.createFn(ctx, c)
}

func (s *stubCourierUsecase) UpdatePartial(ctx context.Context, u domain.PartialCourierUpdate) (bool, error) {
	return s.updatePartialFn(ctx, u)
}

func (s *stubCourierUsecase) SetAvailability(ctx context.Context, id int64, online bool) (*domain.Courier, error) {
	return s.availabilityFn(ctx, id, online)
}

type stubDispatch struct {
	acceptFn func(ctx context.Context, orderID, courierID int64) (*domain.Order, error)
	rejectFn func(ctx context.Context, orderID, courierID int64) error
	offers   []domain.Offer
}

func (s *stubDispatch) Accept(ctx context.Context, orderID, courierID int64) (*domain.Order, error) {
	return s.acceptFn(ctx, orderID, courierID)
}

func (s *stubDispatch) Reject(ctx context.Context, orderID, courierID int64) error {
	return s.rejectFn(ctx, orderID, courierID)
}

func (s *stubDispatch) Snapshot() []domain.Offer { return s.offers }

type stubProofs struct {
	saveFn func(ctx context.Context, orderNumber string, image []byte) (string, error)
}

func (s *stubProofs) Save(ctx context.Context, orderNumber string, image []byte) (string, error) {
	return s.saveFn(ctx, orderNumber, image)
}

type stubNearby struct {
	nearbyFn func(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]domain.NearbyCourier, error)
}

func (s *stubNearby) Nearby(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]domain.NearbyCourier, error) {
	return s.nearbyFn(ctx, lat, lng, radiusKm, limit)
}

func int64Ptr(v int64) *int64 { return &v }
