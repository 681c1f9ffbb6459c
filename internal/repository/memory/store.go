// Package memory is the in-process storage backend. A single mutex makes
// every transaction serializable; staged writes are applied on commit only.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/israelreshef/delivery-app-sub000/internal/apperr"
	"github.com/israelreshef/delivery-app-sub000/internal/domain"
	"github.com/israelreshef/delivery-app-sub000/internal/ports/ordertx"
)

// Store keeps orders and couriers in maps.
type Store struct {
	mu            sync.Mutex
	orders        map[int64]*domain.Order
	couriers      map[int64]*domain.Courier
	nextOrderID   int64
	nextCourierID int64
	now           func() time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		orders:   make(map[int64]*domain.Order),
		couriers: make(map[int64]*domain.Courier),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithTx runs fn against a staged view and commits it if fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(tx ordertx.Repository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &txView{
		s:        s,
		orders:   make(map[int64]*domain.Order),
		couriers: make(map[int64]*domain.Courier),
		nextID:   s.nextOrderID,
	}
	if err := fn(tx); err != nil {
		return err
	}
	for id, o := range tx.orders {
		s.orders[id] = o
	}
	for id, c := range tx.couriers {
		s.couriers[id] = c
	}
	s.nextOrderID = tx.nextID
	return nil
}

// GetOrder returns a copy of the order or nil.
func (s *Store) GetOrder(_ context.Context, id int64) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	cp := o.Clone()
	return &cp, nil
}

// ListOrders returns orders matching f, newest first.
func (s *Store) ListOrders(_ context.Context, f domain.OrderFilter) ([]domain.Order, error) {
	s.mu.Lock()
	out := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.CourierID != 0 && !o.OwnedBy(f.CourierID) {
			continue
		}
		if f.CustomerID != 0 && o.CustomerID != f.CustomerID {
			continue
		}
		out = append(out, o.Clone())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return paginate(out, f.Offset, f.Limit), nil
}

// ListPending returns up to limit pending orders, oldest first.
func (s *Store) ListPending(_ context.Context, limit int) ([]domain.Order, error) {
	s.mu.Lock()
	out := make([]domain.Order, 0)
	for _, o := range s.orders {
		if o.Status == domain.OrderPending {
			out = append(out, o.Clone())
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, 0, limit), nil
}

// ActiveOrderForCourier returns the courier's assigned/picked_up/in_transit order or nil.
func (s *Store) ActiveOrderForCourier(_ context.Context, courierID int64) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.Status.Active() && o.OwnedBy(courierID) {
			cp := o.Clone()
			return &cp, nil
		}
	}
	return nil, nil
}

// Get returns a courier copy or nil.
func (s *Store) Get(_ context.Context, id int64) (*domain.Courier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.couriers[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

// List returns couriers ordered by id. If limit/offset are nil, returns the full list.
func (s *Store) List(_ context.Context, limit, offset *int) ([]domain.Courier, error) {
	out := s.sortedCouriers(func(domain.Courier) bool { return true })
	off, lim := 0, 0
	if offset != nil {
		off = *offset
	}
	if limit != nil {
		lim = *limit
		if lim == 0 {
			return []domain.Courier{}, nil
		}
	}
	return paginate(out, off, lim), nil
}

// ListEligible returns available, onboarded couriers.
func (s *Store) ListEligible(_ context.Context) ([]domain.Courier, error) {
	return s.sortedCouriers(domain.Courier.Eligible), nil
}

// Create stores a courier and returns its id. Phones are unique.
func (s *Store) Create(_ context.Context, c *domain.Courier) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.couriers {
		if existing.Phone == c.Phone {
			return 0, apperr.ErrConflict
		}
	}
	s.nextCourierID++
	cp := *c
	cp.ID = s.nextCourierID
	s.couriers[cp.ID] = &cp
	return cp.ID, nil
}

// UpdatePartial applies non-nil fields and reports whether the courier exists.
func (s *Store) UpdatePartial(_ context.Context, u domain.PartialCourierUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.couriers[u.ID]
	if !ok {
		return false, nil
	}
	if u.Phone != nil {
		for id, existing := range s.couriers {
			if id != u.ID && existing.Phone == *u.Phone {
				return false, apperr.ErrConflict
			}
		}
		c.Phone = *u.Phone
	}
	if u.Name != nil {
		c.Name = *u.Name
	}
	if u.VehicleType != nil {
		c.VehicleType = *u.VehicleType
	}
	if u.Onboarding != nil {
		c.Onboarding = *u.Onboarding
	}
	if u.Rating != nil {
		c.Rating = *u.Rating
	}
	return true, nil
}

// SetOnline toggles availability. Going online is refused while the courier
// holds an active order. It reports whether the flag changed.
func (s *Store) SetOnline(_ context.Context, courierID int64, online bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.couriers[courierID]
	if !ok || c.Available == online {
		return false, nil
	}
	if online {
		for _, o := range s.orders {
			if o.Status.Active() && o.OwnedBy(courierID) {
				return false, nil
			}
		}
	}
	c.Available = online
	return true, nil
}

func (s *Store) sortedCouriers(keep func(domain.Courier) bool) []domain.Courier {
	s.mu.Lock()
	out := make([]domain.Courier, 0, len(s.couriers))
	for _, c := range s.couriers {
		if keep(*c) {
			out = append(out, *c)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// txView stages writes of one transaction. The Store mutex is held by WithTx.
type txView struct {
	s        *Store
	orders   map[int64]*domain.Order
	couriers map[int64]*domain.Courier
	nextID   int64
}

func (t *txView) order(id int64) *domain.Order {
	if o, ok := t.orders[id]; ok {
		return o
	}
	o, ok := t.s.orders[id]
	if !ok {
		return nil
	}
	cp := o.Clone()
	t.orders[id] = &cp
	return &cp
}

func (t *txView) courier(id int64) *domain.Courier {
	if c, ok := t.couriers[id]; ok {
		return c
	}
	c, ok := t.s.couriers[id]
	if !ok {
		return nil
	}
	cp := *c
	t.couriers[id] = &cp
	return &cp
}

func (t *txView) GetOrder(_ context.Context, id int64) (*domain.Order, error) {
	o := t.order(id)
	if o == nil {
		return nil, nil
	}
	cp := o.Clone()
	return &cp, nil
}

func (t *txView) InsertOrder(_ context.Context, o *domain.Order) error {
	for _, existing := range t.s.orders {
		if strings.EqualFold(existing.Number, o.Number) {
			return apperr.ErrConflict
		}
	}
	t.nextID++
	o.ID = t.nextID
	o.Version = 1
	now := t.s.now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	cp := o.Clone()
	t.orders[o.ID] = &cp
	return nil
}

func (t *txView) CompareAndSetStatus(_ context.Context, id int64, from domain.OrderStatus, version int64, to domain.OrderStatus, courierID *int64) (bool, error) {
	o := t.order(id)
	if o == nil || o.Status != from || o.Version != version {
		return false, nil
	}
	o.Status = to
	o.Version++
	o.UpdatedAt = t.s.now()
	if courierID != nil {
		cid := *courierID
		o.CourierID = &cid
	}
	return true, nil
}

func (t *txView) AppendHistory(_ context.Context, id int64, e domain.HistoryEntry) error {
	o := t.order(id)
	if o == nil {
		return apperr.ErrNotFound
	}
	o.History = append(o.History, e)
	return nil
}

func (t *txView) SetProofRef(_ context.Context, id int64, ref string) error {
	o := t.order(id)
	if o == nil {
		return apperr.ErrNotFound
	}
	o.ProofRef = ref
	return nil
}

func (t *txView) GetCourier(_ context.Context, id int64) (*domain.Courier, error) {
	c := t.courier(id)
	if c == nil {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (t *txView) CompareAndSetAvailability(_ context.Context, courierID int64, from, to bool) (bool, error) {
	c := t.courier(courierID)
	if c == nil || c.Available != from {
		return false, nil
	}
	c.Available = to
	return true, nil
}

func (t *txView) IncrementDeliveries(_ context.Context, courierID int64) error {
	c := t.courier(courierID)
	if c == nil {
		return apperr.ErrNotFound
	}
	c.TotalDeliveries++
	return nil
}

var _ ordertx.Repository = (*txView)(nil)
