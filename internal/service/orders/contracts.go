package orders

import (
	"context"

	"github.com/israelreshef/delivery-app-sub000/internal/domain"
	"github.com/israelreshef/delivery-app-sub000/internal/ports/ordertx"
)

type orderRepository interface {
	ordertx.Runner
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	ListOrders(ctx context.Context, f domain.OrderFilter) ([]domain.Order, error)
	ListPending(ctx context.Context, limit int) ([]domain.Order, error)
	ActiveOrderForCourier(ctx context.Context, courierID int64) (*domain.Order, error)
}

// Quoter prices a draft in cents.
type Quoter interface {
	Quote(ctx context.Context, d domain.OrderDraft) (int64, error)
}

// Listener receives committed changes. For a given order, calls arrive in
// commit order. Implementations must not block.
type Listener interface {
	OrderChanged(ctx context.Context, ch domain.OrderChange)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, ch domain.OrderChange)

// OrderChanged calls f.
func (f ListenerFunc) OrderChanged(ctx context.Context, ch domain.OrderChange) { f(ctx, ch) }
