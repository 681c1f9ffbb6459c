package handlers

import (
	"context"

	"github.com/israelreshef/delivery-app-sub000/internal/domain"
	"github.com/israelreshef/delivery-app-sub000/internal/service/orders"
)

type orderUsecase interface {
	Create(ctx context.Context, d domain.OrderDraft) (*domain.Order, error)
	Get(ctx context.Context, id int64) (*domain.Order, error)
	List(ctx context.Context, f domain.OrderFilter) ([]domain.Order, error)
	Assign(ctx context.Context, orderID, courierID int64) (*domain.Order, error)
	Transition(ctx context.Context, cmd orders.TransitionCommand) (*domain.Order, error)
	Cancel(ctx context.Context, cmd orders.CancelCommand) (*domain.Order, error)
	ActiveForCourier(ctx context.Context, courierID int64) (*domain.Order, error)
}

type courierUsecase interface {
	Get(ctx context.Context, id int64) (*domain.Courier, error)
	List(ctx context.Context, limit, offset *int) ([]domain.Courier, error)
	Create(ctx context.Context, c *domain.Courier) (int64, error)
	UpdatePartial(ctx context.Context, u domain.PartialCourierUpdate) (bool, error)
	SetAvailability(ctx context.Context, id int64, online bool) (*domain.Courier, error)
}

type dispatchUsecase interface {
	Accept(ctx context.Context, orderID, courierID int64) (*domain.Order, error)
	Reject(ctx context.Context, orderID, courierID int64) error
	Snapshot() []domain.Offer
}

type nearbySearch interface {
	Nearby(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]domain.NearbyCourier, error)
}

type proofStore interface {
	Save(ctx context.Context, orderNumber string, image []byte) (string, error)
}
