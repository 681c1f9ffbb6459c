// Package location keeps the last known position of every courier.
package location

import (
	"context"

	"github.com/israelreshef/delivery-app-sub000/internal/domain"
)

// Cache stores courier positions for a limited time.
// Get returns (nil, nil) for unknown or expired couriers.
type Cache interface {
	Set(ctx context.Context, courierID int64, loc domain.Location) error
	Get(ctx context.Context, courierID int64) (*domain.Location, error)
	Nearby(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]domain.NearbyCourier, error)
	Remove(ctx context.Context, courierID int64) error
}
