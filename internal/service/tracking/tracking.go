// Package tracking accepts courier positions and fans them out to watchers.
package tracking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/israelreshef/delivery-app-sub000/internal/apperr"
	"github.com/israelreshef/delivery-app-sub000/internal/domain"
	"github.com/israelreshef/delivery-app-sub000/internal/location"
	"github.com/israelreshef/delivery-app-sub000/internal/logx"
)

// Broadcaster delivers a position to the admin room and, when orderID is set,
// to that order's room.
type Broadcaster interface {
	CourierLocation(ctx context.Context, courierID int64, loc domain.Location, orderID *int64)
}

type activeOrders interface {
	ActiveForCourier(ctx context.Context, courierID int64) (*domain.Order, error)
}

// Service records courier positions.
type Service struct {
	cache  location.Cache
	orders activeOrders
	out    Broadcaster
	logger logx.Logger
	now    func() time.Time

	mu sync.RWMutex
	// courier id -> active order id, 0 when the courier is known to be free
	active map[int64]int64
}

// NewService creates a tracking Service.
func NewService(cache location.Cache, orders activeOrders, out Broadcaster, logger logx.Logger) *Service {
	if logger == nil {
		logger = logx.Nop()
	}
	return &Service{
		cache:  cache,
		orders: orders,
		out:    out,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		active: make(map[int64]int64),
	}
}

// UpdateLocation stores the position and broadcasts it.
func (s *Service) UpdateLocation(ctx context.Context, courierID int64, lat, lng float64) (domain.Location, error) {
	if courierID <= 0 {
		return domain.Location{}, apperr.Validation("courier_id", "must be positive")
	}
	if !domain.ValidCoordinates(lat, lng) {
		return domain.Location{}, apperr.Validation("coordinates", "out of range")
	}

	loc := domain.Location{Lat: lat, Lng: lng, RecordedAt: s.now()}
	if err := s.cache.Set(ctx, courierID, loc); err != nil {
		return domain.Location{}, err
	}

	orderID, err := s.activeOrder(ctx, courierID)
	if err != nil {
		// позицию всё равно отдаём админам
		s.logger.Warn("active order lookup failed",
			logx.Int64("courier_id", courierID),
			logx.Err(err),
		)
	}
	var ref *int64
	if orderID > 0 {
		ref = &orderID
	}
	if s.out != nil {
		s.out.CourierLocation(ctx, courierID, loc, ref)
	}
	return loc, nil
}

// Nearby lists couriers around a point, nearest first.
func (s *Service) Nearby(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]domain.NearbyCourier, error) {
	if !domain.ValidCoordinates(lat, lng) {
		return nil, apperr.Validation("coordinates", "out of range")
	}
	if radiusKm <= 0 {
		return nil, apperr.Validation("radius_km", "must be positive")
	}
	return s.cache.Nearby(ctx, lat, lng, radiusKm, limit)
}

func (s *Service) activeOrder(ctx context.Context, courierID int64) (int64, error) {
	s.mu.RLock()
	id, ok := s.active[courierID]
	s.mu.RUnlock()
	if ok {
		return id, nil
	}

	o, err := s.orders.ActiveForCourier(ctx, courierID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		id = 0
	case err != nil:
		return 0, err
	default:
		id = o.ID
	}

	s.mu.Lock()
	// событие могло прийти раньше, чем завершился запрос
	if _, ok := s.active[courierID]; !ok {
		s.active[courierID] = id
	}
	id = s.active[courierID]
	s.mu.Unlock()
	return id, nil
}

// OrderChanged keeps the courier -> active order index current.
func (s *Service) OrderChanged(_ context.Context, ch domain.OrderChange) {
	if ch.Order.CourierID == nil {
		return
	}
	cid := *ch.Order.CourierID
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case ch.Order.Status.Active():
		s.active[cid] = ch.Order.ID
	case ch.Order.Status.Terminal():
		if s.active[cid] == ch.Order.ID {
			s.active[cid] = 0
		}
	}
}

// CourierAvailabilityChanged forgets the position of a courier who went
// offline so they drop out of nearby searches.
func (s *Service) CourierAvailabilityChanged(ctx context.Context, c domain.Courier) {
	if c.Eligible() {
		return
	}
	if err := s.cache.Remove(ctx, c.ID); err != nil {
		s.logger.Warn("forget courier location", logx.Int64("courier_id", c.ID), logx.Err(err))
	}
}
