package dispatch

import (
	"context"
	"time"

	"github.com/israelreshef/delivery-app-sub000/internal/domain"
)

type orderService interface {
	Get(ctx context.Context, id int64) (*domain.Order, error)
	Assign(ctx context.Context, orderID, courierID int64) (*domain.Order, error)
	ListPending(ctx context.Context, limit int) ([]domain.Order, error)
}

type courierSource interface {
	ListEligible(ctx context.Context) ([]domain.Courier, error)
}

// Notifier delivers offer traffic to couriers and watchers. Calls must not block.
type Notifier interface {
	OfferOrder(ctx context.Context, courierID int64, o domain.Order, expiresAt time.Time)
	RevokeOffer(ctx context.Context, courierID, orderID int64, reason string)
	SearchingForCourier(ctx context.Context, o domain.Order)
}

// Ranker orders candidates best first and drops those that cannot take the order.
type Ranker interface {
	Rank(ctx context.Context, o domain.Order, candidates []domain.Courier) ([]domain.Courier, error)
}
