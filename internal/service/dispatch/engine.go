// Package dispatch offers pending orders to couriers and turns acceptances into assignments.
package dispatch

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/israelreshef/delivery-app-sub000/internal/apperr"
	"github.com/israelreshef/delivery-app-sub000/internal/domain"
	"github.com/israelreshef/delivery-app-sub000/internal/logx"
)

// Revoke reasons sent with offer_revoked.
const (
	ReasonExpired  = "expired"
	ReasonAssigned = "assigned_to_another_courier"
	ReasonClosed   = "order_closed"
	ReasonOffline  = "courier_offline"
)

// Config tunes the engine.
type Config struct {
	OfferTTL   time.Duration
	BatchSize  int
	SweepLimit int
}

// Metrics are optional engine counters.
type Metrics struct {
	Offers    *prometheus.CounterVec
	Searching prometheus.Counter
}

// round is the live offer state of one order. Guarded by Engine.mu.
type round struct {
	orderID     int64
	order       domain.Order
	outstanding map[int64]struct{}
	tried       map[int64]struct{}
	remaining   int
	offeredAt   time.Time
	expiresAt   time.Time
	wake        chan struct{}
	done        bool
}

func (r *round) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Engine runs one offer loop per pending order.
type Engine struct {
	orders   orderService
	couriers courierSource
	ranker   Ranker
	notifier Notifier
	cfg      Config
	logger   logx.Logger
	metrics  Metrics
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	sweeping atomic.Bool

	mu     sync.Mutex
	closed bool
	rounds map[int64]*round
	// courier id -> order id of the courier's outstanding offer
	offered map[int64]int64
}

// NewEngine creates an Engine. Call Close to stop its goroutines.
func NewEngine(orders orderService, couriers courierSource, ranker Ranker, notifier Notifier, cfg Config, logger logx.Logger, m Metrics) *Engine {
	if cfg.OfferTTL <= 0 {
		cfg.OfferTTL = 25 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.SweepLimit <= 0 {
		cfg.SweepLimit = 100
	}
	if logger == nil {
		logger = logx.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		orders:   orders,
		couriers: couriers,
		ranker:   ranker,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
		ctx:      ctx,
		cancel:   cancel,
		rounds:   make(map[int64]*round),
		offered:  make(map[int64]int64),
	}
}

// Dispatch starts an offer round for the order unless one is already live.
func (e *Engine) Dispatch(orderID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	if _, ok := e.rounds[orderID]; ok {
		return false
	}
	r := &round{
		orderID:     orderID,
		outstanding: make(map[int64]struct{}),
		tried:       make(map[int64]struct{}),
		wake:        make(chan struct{}, 1),
	}
	e.rounds[orderID] = r
	e.wg.Add(1)
	go e.run(r)
	return true
}

func (e *Engine) run(r *round) {
	defer e.wg.Done()
	for {
		if !e.offerBatch(r) {
			return
		}

		e.mu.Lock()
		wait := time.Until(r.expiresAt)
		e.mu.Unlock()
		timer := time.NewTimer(wait)

	waiting:
		for {
			select {
			case <-e.ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				e.expire(r)
				break waiting
			case <-r.wake:
				e.mu.Lock()
				done, empty := r.done, len(r.outstanding) == 0
				e.mu.Unlock()
				if done {
					timer.Stop()
					return
				}
				if empty {
					timer.Stop()
					break waiting
				}
			}
		}
	}
}

// offerBatch sends the next batch of offers. It returns false when the round is over.
func (e *Engine) offerBatch(r *round) bool {
	ctx := e.ctx
	for {
		o, err := e.orders.Get(ctx, r.orderID)
		if err != nil || o.Status != domain.OrderPending {
			if err != nil && !errors.Is(err, apperr.ErrNotFound) && ctx.Err() == nil {
				e.logger.Warn("dispatch: reload order failed", logx.Int64("order_id", r.orderID), logx.Err(err))
			}
			e.finish(r)
			return false
		}

		all, err := e.couriers.ListEligible(ctx)
		if err != nil {
			if ctx.Err() == nil {
				e.logger.Warn("dispatch: list couriers failed", logx.Int64("order_id", r.orderID), logx.Err(err))
			}
			e.finish(r)
			return false
		}

		e.mu.Lock()
		if r.done {
			e.mu.Unlock()
			return false
		}
		candidates := make([]domain.Courier, 0, len(all))
		for _, c := range all {
			if _, tried := r.tried[c.ID]; tried {
				continue
			}
			if other, busy := e.offered[c.ID]; busy && other != r.orderID {
				continue
			}
			candidates = append(candidates, c)
		}
		e.mu.Unlock()

		ranked, err := e.ranker.Rank(ctx, *o, candidates)
		if err != nil {
			e.logger.Warn("dispatch: rank failed", logx.Int64("order_id", r.orderID), logx.Err(err))
			e.finish(r)
			return false
		}
		if len(ranked) == 0 {
			e.exhausted(r, *o)
			return false
		}

		batch := ranked
		if len(batch) > e.cfg.BatchSize {
			batch = batch[:e.cfg.BatchSize]
		}

		e.mu.Lock()
		if r.done {
			e.mu.Unlock()
			return false
		}
		now := e.now()
		var sent []int64
		for _, c := range batch {
			// кандидата мог забрать другой заказ, пока шло ранжирование
			if other, busy := e.offered[c.ID]; busy && other != r.orderID {
				continue
			}
			r.outstanding[c.ID] = struct{}{}
			r.tried[c.ID] = struct{}{}
			e.offered[c.ID] = r.orderID
			sent = append(sent, c.ID)
		}
		if len(sent) == 0 {
			e.mu.Unlock()
			continue
		}
		r.order = *o
		r.offeredAt = now
		r.expiresAt = now.Add(e.cfg.OfferTTL)
		r.remaining = len(ranked) - len(sent)
		expiresAt := r.expiresAt
		e.mu.Unlock()

		for _, cid := range sent {
			e.notifier.OfferOrder(ctx, cid, *o, expiresAt)
			e.count("offered")
		}
		e.logger.Info("order offered",
			logx.String("event", "order_offered"),
			logx.Int64("order_id", o.ID),
			logx.Any("couriers", sent),
			logx.Time("expires_at", expiresAt),
		)
		return true
	}
}

func (e *Engine) exhausted(r *round, o domain.Order) {
	e.finish(r)
	e.logger.Info("no courier found",
		logx.String("event", "searching_for_courier"),
		logx.Int64("order_id", o.ID),
	)
	if e.metrics.Searching != nil {
		e.metrics.Searching.Inc()
	}
	e.notifier.SearchingForCourier(e.ctx, o)
}

func (e *Engine) expire(r *round) {
	e.mu.Lock()
	if r.done {
		e.mu.Unlock()
		return
	}
	expired := e.clearOutstandingLocked(r, nil)
	e.mu.Unlock()

	for _, cid := range expired {
		e.notifier.RevokeOffer(e.ctx, cid, r.orderID, ReasonExpired)
		e.count("expired")
	}
}

// clearOutstandingLocked drops every outstanding offer of r except keep and returns the dropped couriers.
func (e *Engine) clearOutstandingLocked(r *round, keep *int64) []int64 {
	dropped := make([]int64, 0, len(r.outstanding))
	for cid := range r.outstanding {
		if e.offered[cid] == r.orderID {
			delete(e.offered, cid)
		}
		if keep != nil && *keep == cid {
			continue
		}
		dropped = append(dropped, cid)
	}
	r.outstanding = make(map[int64]struct{})
	sort.Slice(dropped, func(i, j int) bool { return dropped[i] < dropped[j] })
	return dropped
}

func (e *Engine) finish(r *round) {
	e.mu.Lock()
	e.finishLocked(r)
	e.mu.Unlock()
}

func (e *Engine) finishLocked(r *round) {
	if r.done {
		return
	}
	r.done = true
	e.clearOutstandingLocked(r, nil)
	if e.rounds[r.orderID] == r {
		delete(e.rounds, r.orderID)
	}
	r.signal()
}

// closeRound ends the order's round and revokes offers held by anyone but winner.
func (e *Engine) closeRound(ctx context.Context, orderID int64, winner *int64, reason string) {
	e.mu.Lock()
	r, ok := e.rounds[orderID]
	if !ok {
		e.mu.Unlock()
		return
	}
	revoked := e.clearOutstandingLocked(r, winner)
	e.finishLocked(r)
	e.mu.Unlock()

	for _, cid := range revoked {
		e.notifier.RevokeOffer(ctx, cid, orderID, reason)
		e.count("lost")
	}
}

// Accept turns a live offer into an assignment.
func (e *Engine) Accept(ctx context.Context, orderID, courierID int64) (*domain.Order, error) {
	e.mu.Lock()
	r, ok := e.rounds[orderID]
	live := ok && !r.done
	if live {
		_, live = r.outstanding[courierID]
	}
	e.mu.Unlock()
	if !live {
		return nil, e.noOffer(ctx, orderID, courierID)
	}

	o, err := e.orders.Assign(ctx, orderID, courierID)
	if err != nil {
		var already *apperr.AlreadyAssignedError
		if !errors.As(err, &already) {
			// курьер не может взять заказ, предлагаем следующему
			e.withdraw(r, courierID)
		}
		e.logger.Info("offer acceptance failed",
			logx.Int64("order_id", orderID),
			logx.Int64("courier_id", courierID),
			logx.Err(err),
		)
		return nil, err
	}

	e.count("accepted")
	e.closeRound(ctx, orderID, &courierID, ReasonAssigned)
	return o, nil
}

// Reject declines a live offer; the next batch is offered.
func (e *Engine) Reject(ctx context.Context, orderID, courierID int64) error {
	e.mu.Lock()
	r, ok := e.rounds[orderID]
	live := ok && !r.done
	if live {
		_, live = r.outstanding[courierID]
	}
	e.mu.Unlock()
	if !live {
		return e.noOffer(ctx, orderID, courierID)
	}

	e.withdraw(r, courierID)
	e.count("rejected")
	e.logger.Info("offer rejected",
		logx.String("event", "offer_rejected"),
		logx.Int64("order_id", orderID),
		logx.Int64("courier_id", courierID),
	)
	return nil
}

func (e *Engine) withdraw(r *round, courierID int64) {
	e.mu.Lock()
	delete(r.outstanding, courierID)
	if e.offered[courierID] == r.orderID {
		delete(e.offered, courierID)
	}
	e.mu.Unlock()
	r.signal()
}

func (e *Engine) noOffer(ctx context.Context, orderID, courierID int64) error {
	o, err := e.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status != domain.OrderPending {
		return &apperr.AlreadyAssignedError{OrderID: o.ID, CourierID: o.CourierID, Status: string(o.Status)}
	}
	return &apperr.OfferExpiredError{OrderID: orderID, CourierID: courierID}
}

// Sweep starts rounds for pending orders that have none. Concurrent calls
// return immediately while a sweep is running.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	if !e.sweeping.CompareAndSwap(false, true) {
		return 0, nil
	}
	defer e.sweeping.Store(false)

	pending, err := e.orders.ListPending(ctx, e.cfg.SweepLimit)
	if err != nil {
		return 0, err
	}
	started := 0
	for _, o := range pending {
		if e.Dispatch(o.ID) {
			started++
		}
	}
	if started > 0 {
		e.logger.Info("sweep dispatched orders", logx.Int("started", started), logx.Int("pending", len(pending)))
	}
	return started, nil
}

// TriggerSweep runs Sweep in the background.
func (e *Engine) TriggerSweep() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		if _, err := e.Sweep(e.ctx); err != nil && e.ctx.Err() == nil {
			e.logger.Warn("sweep failed", logx.Err(err))
		}
	}()
}

// Snapshot lists live offers ordered by order id.
func (e *Engine) Snapshot() []domain.Offer {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.Offer, 0, len(e.rounds))
	for _, r := range e.rounds {
		if len(r.outstanding) == 0 {
			continue
		}
		out = append(out, domain.Offer{
			OrderID:     r.orderID,
			Outstanding: sortedIDs(r.outstanding),
			Tried:       sortedIDs(r.tried),
			Remaining:   r.remaining,
			OfferedAt:   r.offeredAt,
			ExpiresAt:   r.expiresAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}

// OrderChanged reacts to committed order changes.
func (e *Engine) OrderChanged(ctx context.Context, ch domain.OrderChange) {
	switch {
	case ch.Created():
		e.Dispatch(ch.Order.ID)
	case ch.Order.Status != domain.OrderPending:
		reason := ReasonClosed
		if ch.Order.Status == domain.OrderAssigned {
			reason = ReasonAssigned
		}
		e.closeRound(ctx, ch.Order.ID, ch.Order.CourierID, reason)
	}
	if ch.ReleasedCourierID != nil {
		e.TriggerSweep()
	}
}

// CourierAvailabilityChanged sweeps when a courier comes online and hands the
// offer of a courier gone offline to the next candidate.
func (e *Engine) CourierAvailabilityChanged(ctx context.Context, c domain.Courier) {
	if c.Eligible() {
		e.TriggerSweep()
		return
	}

	e.mu.Lock()
	orderID, ok := e.offered[c.ID]
	r := e.rounds[orderID]
	if !ok || r == nil || r.done {
		e.mu.Unlock()
		return
	}
	if _, live := r.outstanding[c.ID]; !live {
		e.mu.Unlock()
		return
	}
	delete(r.outstanding, c.ID)
	delete(e.offered, c.ID)
	e.mu.Unlock()
	r.signal()

	e.notifier.RevokeOffer(ctx, c.ID, orderID, ReasonOffline)
	e.count("withdrawn")
	e.logger.Info("offer withdrawn",
		logx.Int64("order_id", orderID),
		logx.Int64("courier_id", c.ID),
		logx.String("reason", ReasonOffline),
	)
}

// Close stops every round and waits for the goroutines.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
}

func (e *Engine) count(outcome string) {
	if e.metrics.Offers != nil {
		e.metrics.Offers.WithLabelValues(outcome).Inc()
	}
}

func sortedIDs(m map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
