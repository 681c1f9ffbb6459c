package courier

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/israelreshef/delivery-app-sub000/internal/apperr"
	"github.com/israelreshef/delivery-app-sub000/internal/domain"
	"github.com/israelreshef/delivery-app-sub000/internal/logx"
)

// Service coordinates courier business logic and orchestrates repository calls.
type Service struct {
	repo             courierRepository
	operationTimeout time.Duration
	logger           logx.Logger

	mu        sync.RWMutex
	listeners []AvailabilityListener
}

// NewService creates and configures a courier Service.
func NewService(r courierRepository, timeout time.Duration, logger logx.Logger) *Service {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = logx.Nop()
	}
	return &Service{repo: r, operationTimeout: timeout, logger: logger}
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.operationTimeout)
}

// Subscribe registers l for availability changes made through SetAvailability.
func (s *Service) Subscribe(l AvailabilityListener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// validateCreate validates a courier for creation and fills defaults.
func validateCreate(c *domain.Courier) error {
	if c == nil {
		return apperr.Validation("courier", "required")
	}
	if strings.TrimSpace(c.Name) == "" {
		return apperr.Validation("name", "required")
	}
	if !domain.ValidatePhone(c.Phone) {
		return apperr.Validation("phone", "must be +<10-15 digits>")
	}
	if c.VehicleType == "" {
		c.VehicleType = domain.VehicleBicycle
	}
	if !c.VehicleType.Valid() {
		return apperr.Validation("vehicle_type", "unknown vehicle")
	}
	if c.Onboarding == "" {
		c.Onboarding = domain.OnboardingNew
	}
	if !c.Onboarding.Valid() {
		return apperr.Validation("onboarding", "unknown onboarding status")
	}
	if c.Rating < 0 || c.Rating > 5 {
		return apperr.Validation("rating", "must be within 0..5")
	}
	// новый курьер всегда офлайн
	c.Available = false
	return nil
}

func validateUpdate(u *domain.PartialCourierUpdate) error {
	if u.ID <= 0 {
		return apperr.Validation("id", "must be positive")
	}
	if u.Empty() {
		return apperr.Validation("body", "nothing to update")
	}
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return apperr.Validation("name", "must not be blank")
	}
	if u.Phone != nil && !domain.ValidatePhone(*u.Phone) {
		return apperr.Validation("phone", "must be +<10-15 digits>")
	}
	if u.VehicleType != nil && !u.VehicleType.Valid() {
		return apperr.Validation("vehicle_type", "unknown vehicle")
	}
	if u.Onboarding != nil && !u.Onboarding.Valid() {
		return apperr.Validation("onboarding", "unknown onboarding status")
	}
	if u.Rating != nil && (*u.Rating < 0 || *u.Rating > 5) {
		return apperr.Validation("rating", "must be within 0..5")
	}
	return nil
}

// Get retrieves a courier by its ID.
func (s *Service) Get(ctx context.Context, id int64) (*domain.Courier, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperr.ErrNotFound
	}
	return c, nil
}

// List returns couriers with optional pagination
func (s *Service) List(ctx context.Context, limit, offset *int) ([]domain.Courier, error) {
	if (limit != nil && *limit < 0) || (offset != nil && *offset < 0) {
		return nil, apperr.Validation("limit", "must not be negative")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.repo.List(ctx, limit, offset)
}

// Create persists a new courier and returns its generated ID.
func (s *Service) Create(ctx context.Context, c *domain.Courier) (int64, error) {
	if err := validateCreate(c); err != nil {
		return 0, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	id, err := s.repo.Create(ctx, c)
	if err != nil {
		return 0, err
	}
	s.logger.Info("courier registered",
		logx.String("event", "courier_registered"),
		logx.Int64("courier_id", id),
		logx.String("vehicle", string(c.VehicleType)),
	)
	return id, nil
}

// UpdatePartial applies a partial update to a courier. It returns true if a row was updated.
func (s *Service) UpdatePartial(ctx context.Context, u domain.PartialCourierUpdate) (bool, error) {
	if err := validateUpdate(&u); err != nil {
		return false, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ok, err := s.repo.UpdatePartial(ctx, u)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, apperr.ErrNotFound
	}
	return true, nil
}

// SetAvailability puts a courier online or offline. Repeating the current
// state is a no-op. Going online while holding an active order is a conflict.
func (s *Service) SetAvailability(ctx context.Context, id int64, online bool) (*domain.Courier, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	changed, err := s.repo.SetOnline(ctx, id, online)
	if err != nil {
		return nil, err
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperr.ErrNotFound
	}
	if !changed {
		if c.Available == online {
			return c, nil
		}
		return nil, fmt.Errorf("courier %d holds an active order: %w", id, apperr.ErrConflict)
	}

	s.logger.Info("courier availability changed",
		logx.String("event", "courier_availability_changed"),
		logx.Int64("courier_id", id),
		logx.Bool("available", c.Available),
	)

	s.mu.RLock()
	ls := s.listeners
	s.mu.RUnlock()
	for _, l := range ls {
		l.CourierAvailabilityChanged(context.WithoutCancel(ctx), *c)
	}
	return c, nil
}
