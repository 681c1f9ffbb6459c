package courier

import (
	"context"

	"github.com/israelreshef/delivery-app-sub000/internal/domain"
)

// courierRepository defines storage operations required by the business layer.
type courierRepository interface {
	Get(ctx context.Context, id int64) (*domain.Courier, error)
	List(ctx context.Context, limit, offset *int) ([]domain.Courier, error)
	Create(ctx context.Context, c *domain.Courier) (int64, error)
	UpdatePartial(ctx context.Context, u domain.PartialCourierUpdate) (bool, error)
	SetOnline(ctx context.Context, courierID int64, online bool) (bool, error)
}

// AvailabilityListener is told when a courier goes online or offline by choice.
type AvailabilityListener interface {
	CourierAvailabilityChanged(ctx context.Context, c domain.Courier)
}
