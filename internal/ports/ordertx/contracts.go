package ordertx

import (
	"context"

	"github.com/israelreshef/delivery-app-sub000/internal/domain"
)

// Repository is the set of operations available inside one transaction.
// Lookups return (nil, nil) when the row does not exist.
type Repository interface {
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	InsertOrder(ctx context.Context, o *domain.Order) error
	// CompareAndSetStatus moves the order from (from, version) to `to`, bumping the version.
	// It reports false when the stored status or version no longer match.
	CompareAndSetStatus(ctx context.Context, id int64, from domain.OrderStatus, version int64, to domain.OrderStatus, courierID *int64) (bool, error)
	AppendHistory(ctx context.Context, id int64, e domain.HistoryEntry) error
	SetProofRef(ctx context.Context, id int64, ref string) error

	GetCourier(ctx context.Context, id int64) (*domain.Courier, error)
	// CompareAndSetAvailability flips is_available from `from` to `to` and reports whether it did.
	CompareAndSetAvailability(ctx context.Context, courierID int64, from, to bool) (bool, error)
	IncrementDeliveries(ctx context.Context, courierID int64) error
}

// Runner opens a transaction and executes fn within it.
type Runner interface {
	WithTx(ctx context.Context, fn func(tx Repository) error) error
}
