package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/israelreshef/delivery-app-sub000/internal/apperr"
	"github.com/israelreshef/delivery-app-sub000/internal/domain"
	"github.com/israelreshef/delivery-app-sub000/internal/logx"
	"github.com/israelreshef/delivery-app-sub000/internal/ports/ordertx"
)

const (
	maxNumberAttempts = 3
	maxListLimit      = 500
	defaultListLimit  = 50
)

// TransitionCommand moves an order along its lifecycle.
// CourierID is set when a courier issues the command and must own the order.
type TransitionCommand struct {
	OrderID   int64
	Status    domain.OrderStatus
	CourierID *int64
	Note      string
	ProofRef  string
}

// CancelCommand cancels an order. CustomerID is set when a customer cancels.
type CancelCommand struct {
	OrderID    int64
	CustomerID *int64
	Reason     string
}

// Service owns order state. All writes for one order are serialised.
type Service struct {
	repo             orderRepository
	quoter           Quoter
	locks            *keyedLocks
	operationTimeout time.Duration
	logger           logx.Logger
	now              func() time.Time
	newNumber        func() string

	mu        sync.RWMutex
	listeners []Listener
}

// NewService creates a new order Service. quoter may be nil.
func NewService(repo orderRepository, quoter Quoter, timeout time.Duration, logger logx.Logger) *Service {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = logx.Nop()
	}
	return &Service{
		repo:             repo,
		quoter:           quoter,
		locks:            newKeyedLocks(),
		operationTimeout: timeout,
		logger:           logger,
		now:              func() time.Time { return time.Now().UTC() },
		newNumber:        orderNumber,
	}
}

func orderNumber() string {
	return "ORD-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.operationTimeout)
}

// Subscribe registers l for every committed change.
func (s *Service) Subscribe(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

func (s *Service) notify(ctx context.Context, ch domain.OrderChange) {
	s.mu.RLock()
	ls := s.listeners
	s.mu.RUnlock()
	// слушатели не должны зависеть от отмены запроса
	ctx = context.WithoutCancel(ctx)
	for _, l := range ls {
		l.OrderChanged(ctx, domain.OrderChange{
			Order:             ch.Order.Clone(),
			Previous:          ch.Previous,
			ReleasedCourierID: ch.ReleasedCourierID,
		})
	}
}

// Create validates the draft and stores a new pending order.
func (s *Service) Create(ctx context.Context, d domain.OrderDraft) (*domain.Order, error) {
	if err := validateDraft(&d); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	price := int64(0)
	switch {
	case d.PriceCents != nil:
		price = *d.PriceCents
	case s.quoter != nil:
		p, err := s.quoter.Quote(ctx, d)
		if err != nil {
			s.logger.Warn("price quote failed",
				logx.Int64("customer_id", d.CustomerID),
				logx.Err(err),
			)
		} else {
			price = p
		}
	}

	now := s.now()
	o := &domain.Order{
		CustomerID:        d.CustomerID,
		Pickup:            d.Pickup,
		Dropoff:           d.Dropoff,
		Package:           d.Package,
		PriceCents:        price,
		Insured:           d.Insured,
		InsuredValueCents: d.InsuredValueCents,
		Priority:          d.Priority,
		DeliveryType:      d.DeliveryType,
		Status:            domain.OrderPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	created := domain.HistoryEntry{Status: domain.OrderPending, At: now, Note: "order created"}
	var err error
	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		o.Number = s.newNumber()
		err = s.repo.WithTx(ctx, func(tx ordertx.Repository) error {
			if err := tx.InsertOrder(ctx, o); err != nil {
				return err
			}
			return tx.AppendHistory(ctx, o.ID, created)
		})
		if !errors.Is(err, apperr.ErrConflict) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	o.History = []domain.HistoryEntry{created}

	s.logger.Info("order created",
		logx.String("event", "order_created"),
		logx.Int64("order_id", o.ID),
		logx.String("number", o.Number),
		logx.Int64("customer_id", o.CustomerID),
	)

	unlock := s.locks.lock(o.ID)
	s.notify(ctx, domain.OrderChange{Order: *o})
	unlock()

	out := o.Clone()
	return &out, nil
}

// Transition applies a lifecycle change. Assignment goes through Assign only.
func (s *Service) Transition(ctx context.Context, cmd TransitionCommand) (*domain.Order, error) {
	if !cmd.Status.Valid() {
		return nil, apperr.Validation("status", "unknown status")
	}

	unlock := s.locks.lock(cmd.OrderID)
	defer unlock()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		updated  domain.Order
		previous domain.OrderStatus
		released *int64
	)
	err := s.repo.WithTx(ctx, func(tx ordertx.Repository) error {
		o, err := tx.GetOrder(ctx, cmd.OrderID)
		if err != nil {
			return err
		}
		if o == nil {
			return apperr.ErrNotFound
		}
		if cmd.CourierID != nil && !o.OwnedBy(*cmd.CourierID) {
			return &apperr.NotOwnerError{OrderID: o.ID, CourierID: *cmd.CourierID}
		}
		if cmd.Status == domain.OrderAssigned || !domain.CanTransition(o.Status, cmd.Status) {
			return &apperr.TransitionError{From: string(o.Status), To: string(cmd.Status)}
		}

		previous = o.Status
		released, err = s.commit(ctx, tx, o, cmd.Status, nil, cmd.Note)
		if err != nil {
			return err
		}
		if cmd.ProofRef != "" {
			if err := tx.SetProofRef(ctx, o.ID, cmd.ProofRef); err != nil {
				return err
			}
			o.ProofRef = cmd.ProofRef
		}
		updated = *o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order status changed",
		logx.String("event", "order_status_changed"),
		logx.Int64("order_id", updated.ID),
		logx.String("from", string(previous)),
		logx.String("to", string(updated.Status)),
	)

	s.notify(ctx, domain.OrderChange{Order: updated, Previous: previous, ReleasedCourierID: released})
	out := updated.Clone()
	return &out, nil
}

// commit moves o to `to` inside tx and mirrors the change onto o.
// It returns the courier made available again, if any.
func (s *Service) commit(ctx context.Context, tx ordertx.Repository, o *domain.Order, to domain.OrderStatus, courierID *int64, note string) (*int64, error) {
	ok, err := tx.CompareAndSetStatus(ctx, o.ID, o.Status, o.Version, to, courierID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("order %d changed concurrently: %w", o.ID, apperr.ErrConflict)
	}

	now := s.now()
	entry := domain.HistoryEntry{Status: to, At: now, Note: note}
	if err := tx.AppendHistory(ctx, o.ID, entry); err != nil {
		return nil, err
	}
	o.Status = to
	o.Version++
	o.UpdatedAt = now
	o.History = append(o.History, entry)
	if courierID != nil {
		id := *courierID
		o.CourierID = &id
	}

	if !to.Terminal() || o.CourierID == nil {
		return nil, nil
	}

	cid := *o.CourierID
	if to == domain.OrderDelivered {
		if err := tx.IncrementDeliveries(ctx, cid); err != nil {
			return nil, err
		}
	}
	freed, err := tx.CompareAndSetAvailability(ctx, cid, false, true)
	if err != nil {
		return nil, err
	}
	if !freed {
		s.logger.Warn("courier already available on release",
			logx.Int64("order_id", o.ID),
			logx.Int64("courier_id", cid),
		)
		return nil, nil
	}
	return &cid, nil
}

// Assign binds a pending order to an active, available courier.
func (s *Service) Assign(ctx context.Context, orderID, courierID int64) (*domain.Order, error) {
	unlock := s.locks.lock(orderID)
	defer unlock()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var updated domain.Order
	err := s.repo.WithTx(ctx, func(tx ordertx.Repository) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o == nil {
			return apperr.ErrNotFound
		}
		if o.Status != domain.OrderPending {
			return &apperr.AlreadyAssignedError{OrderID: o.ID, CourierID: o.CourierID, Status: string(o.Status)}
		}

		c, err := tx.GetCourier(ctx, courierID)
		if err != nil {
			return err
		}
		if c == nil {
			return fmt.Errorf("courier %d: %w", courierID, apperr.ErrNotFound)
		}
		if c.Onboarding != domain.OnboardingActive {
			return fmt.Errorf("courier %d is %s: %w", courierID, c.Onboarding, apperr.ErrCourierUnavailable)
		}
		taken, err := tx.CompareAndSetAvailability(ctx, courierID, true, false)
		if err != nil {
			return err
		}
		if !taken {
			return fmt.Errorf("courier %d is busy: %w", courierID, apperr.ErrCourierUnavailable)
		}

		if _, err := s.commit(ctx, tx, o, domain.OrderAssigned, &courierID, fmt.Sprintf("assigned to courier %d", courierID)); err != nil {
			if errors.Is(err, apperr.ErrConflict) {
				return &apperr.AlreadyAssignedError{OrderID: o.ID, Status: string(o.Status)}
			}
			return err
		}
		updated = *o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("courier assigned",
		logx.String("event", "courier_assigned"),
		logx.Int64("order_id", updated.ID),
		logx.Int64("courier_id", courierID),
	)

	s.notify(ctx, domain.OrderChange{Order: updated, Previous: domain.OrderPending})
	out := updated.Clone()
	return &out, nil
}

// Cancel cancels an order. A customer may only cancel their own orders;
// other customers' orders are reported as missing.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*domain.Order, error) {
	if cmd.CustomerID != nil {
		o, err := s.Get(ctx, cmd.OrderID)
		if err != nil {
			return nil, err
		}
		if o.CustomerID != *cmd.CustomerID {
			return nil, apperr.ErrNotFound
		}
	}
	note := "cancelled"
	if r := strings.TrimSpace(cmd.Reason); r != "" {
		note = "cancelled: " + r
	}
	return s.Transition(ctx, TransitionCommand{OrderID: cmd.OrderID, Status: domain.OrderCancelled, Note: note})
}

// Get returns an order by id.
func (s *Service) Get(ctx context.Context, id int64) (*domain.Order, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	o, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, apperr.ErrNotFound
	}
	return o, nil
}

// List returns orders matching f.
func (s *Service) List(ctx context.Context, f domain.OrderFilter) ([]domain.Order, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Validation("status", "unknown status")
	}
	if f.Limit < 0 || f.Offset < 0 {
		return nil, apperr.Validation("limit", "must not be negative")
	}
	if f.Limit == 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.repo.ListOrders(ctx, f)
}

// ListPending returns pending orders, oldest first.
func (s *Service) ListPending(ctx context.Context, limit int) ([]domain.Order, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.repo.ListPending(ctx, limit)
}

// ActiveForCourier returns the courier's active order or ErrNotFound.
func (s *Service) ActiveForCourier(ctx context.Context, courierID int64) (*domain.Order, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	o, err := s.repo.ActiveOrderForCourier(ctx, courierID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, apperr.ErrNotFound
	}
	return o, nil
}
