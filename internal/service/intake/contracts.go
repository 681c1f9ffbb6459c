//go:generate mockgen -source=contracts.go -destination=mocks_test.go -package=intake_test

package intake

import (
	"context"
	"time"

	"github.com/israelreshef/delivery-app-sub000/internal/domain"
	"github.com/israelreshef/delivery-app-sub000/internal/service/orders"
)

// OrderPort is the subset of the order store used by intake.
type OrderPort interface {
	Create(ctx context.Context, d domain.OrderDraft) (*domain.Order, error)
	Cancel(ctx context.Context, cmd orders.CancelCommand) (*domain.Order, error)
}

// Deduper claims event keys; see idempotency.Store.
type Deduper interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}
