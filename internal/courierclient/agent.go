package courierclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/israelreshef/delivery-app-sub000/internal/apperr"
	"github.com/israelreshef/delivery-app-sub000/internal/domain"
	"github.com/israelreshef/delivery-app-sub000/internal/logx"
	"github.com/israelreshef/delivery-app-sub000/internal/realtime"
	"github.com/israelreshef/delivery-app-sub000/internal/wire"
)

const refreshTimeout = 5 * time.Second

// Outcome tells the courier how far an action got.
type Outcome int

const (
	// OutcomeConfirmed means the server applied the action.
	OutcomeConfirmed Outcome = iota + 1
	// OutcomeSavedOffline means the action waits in the queue.
	OutcomeSavedOffline
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConfirmed:
		return "status updated"
	case OutcomeSavedOffline:
		return "saved offline"
	default:
		return "unknown"
	}
}

type apiClient interface {
	UpdateStatus(ctx context.Context, orderID int64, status, note, podImage, key string) (*wire.Order, error)
	ActiveOrder(ctx context.Context) (*wire.Order, error)
	Accept(ctx context.Context, courierID, orderID int64) (*wire.Order, error)
	Reject(ctx context.Context, courierID, orderID int64) error
	SetAvailability(ctx context.Context, courierID int64, available bool) (*wire.Courier, error)
}

type socketConn interface {
	Run(ctx context.Context) error
	Connected() bool
	SendLocation(lat, lng float64) error
}

// Options configure an Agent.
type Options struct {
	CourierID  int64
	DeviceID   string
	AutoAccept bool
	// Position is polled every LocationInterval when both are set.
	Position         func() (lat, lng float64)
	LocationInterval time.Duration
}

// Agent is the courier device: it records actions, replays them after
// connectivity loss and reports the courier's position while online.
type Agent struct {
	opts   Options
	api    apiClient
	store  *Store
	queue  *Queue
	logger logx.Logger

	kick chan struct{}

	mu      sync.Mutex
	online  bool
	onShift bool
	active  *wire.Order
	sock    socketConn
}

// NewAgent creates an Agent persisting into store.
func NewAgent(opts Options, api apiClient, store *Store, logger logx.Logger) *Agent {
	if logger == nil {
		logger = logx.Nop()
	}
	logger = logger.With(logx.Int64("courier_id", opts.CourierID), logx.String("device_id", opts.DeviceID))
	return &Agent{
		opts:   opts,
		api:    api,
		store:  store,
		queue:  NewQueue(store, opts.DeviceID, logger),
		logger: logger,
		kick:   make(chan struct{}, 1),
	}
}

// Events binds the agent to a socket.
func (a *Agent) Events() SocketEvents {
	return SocketEvents{
		OnConnected:    a.Connected,
		OnDisconnected: a.Disconnected,
		OnOffer:        a.HandleOffer,
		OnRevoked:      a.offerRevoked,
		OnOrder:        a.OrderUpdated,
	}
}

// Online reports whether actions are sent directly.
func (a *Agent) Online() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.online
}

// ActiveOrder returns the last known order in progress.
func (a *Agent) ActiveOrder() *wire.Order {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active == nil {
		return nil
	}
	o := *a.active
	return &o
}

// Pending returns the number of queued actions.
func (a *Agent) Pending() int {
	n, err := a.queue.Len()
	if err != nil {
		a.logger.Error("read queue length", logx.Err(err))
	}
	return n
}

// UpdateStatus moves orderID to status.
func (a *Agent) UpdateStatus(ctx context.Context, orderID int64, status, note string) (Outcome, error) {
	return a.submit(ctx, Action{Type: ActionStatus, OrderID: orderID, Status: status, Note: note})
}

// CompleteDelivery marks orderID delivered with a proof image.
func (a *Agent) CompleteDelivery(ctx context.Context, orderID int64, proof, note string) (Outcome, error) {
	return a.submit(ctx, Action{
		Type:    ActionComplete,
		OrderID: orderID,
		Status:  string(domain.OrderDelivered),
		Note:    note,
		Proof:   proof,
	})
}

// submit always records the action first so a crash mid-request cannot lose
// it, then sends it directly when online and nothing older is pending.
// A non-network failure of a direct send is returned together with
// OutcomeSavedOffline when the entry stays queued.
func (a *Agent) submit(ctx context.Context, act Action) (Outcome, error) {
	if act.OrderID <= 0 {
		return 0, apperr.Validation("order_id", "required")
	}
	act.Status = strings.TrimSpace(act.Status)
	if !domain.OrderStatus(act.Status).Valid() {
		return 0, apperr.Validation("status", "unknown status "+act.Status)
	}

	e, err := a.queue.Enqueue(act)
	if err != nil {
		return 0, err
	}
	if !a.Online() {
		a.logger.Info("action saved offline", logx.Int64("seq", int64(e.Seq)), logx.String("status", act.Status))
		return OutcomeSavedOffline, nil
	}

	err = a.queue.Send(ctx, e, a)
	switch {
	case err == nil:
		return OutcomeConfirmed, nil
	case errors.Is(err, errNotHead):
		a.kickDrain()
		return OutcomeSavedOffline, nil
	case isDroppable(err):
		return 0, err
	case errors.Is(err, apperr.ErrNetwork):
		a.logger.Warn("server unreachable, action saved offline", logx.Int64("seq", int64(e.Seq)), logx.Err(err))
		a.setOnline(false)
		a.kickDrain()
		return OutcomeSavedOffline, nil
	default:
		a.kickDrain()
		return OutcomeSavedOffline, err
	}
}

// SubmitAction replays one queued action.
func (a *Agent) SubmitAction(ctx context.Context, act Action, key string) error {
	o, err := a.api.UpdateStatus(ctx, act.OrderID, act.Status, act.Note, act.Proof, key)
	if err != nil {
		return err
	}
	a.setActive(o)
	return nil
}

// Drain replays queued actions once.
func (a *Agent) Drain(ctx context.Context) (DrainReport, error) {
	rep, err := a.queue.Drain(ctx, a)
	if rep.Sent+rep.Dropped > 0 {
		a.logger.Info("queue drained",
			logx.Int("sent", rep.Sent),
			logx.Int("dropped", rep.Dropped),
			logx.Int("remaining", rep.Remaining),
		)
	}
	switch {
	case err == nil:
		if a.linkUp() {
			a.setOnline(true)
		}
	case errors.Is(err, apperr.ErrNetwork):
		a.setOnline(false)
	}
	return rep, err
}

// ReportLocation sends a position. Positions are never queued: it returns
// false when the report was dropped.
func (a *Agent) ReportLocation(lat, lng float64) bool {
	a.mu.Lock()
	sock, online := a.sock, a.online
	a.mu.Unlock()
	if !online || sock == nil {
		return false
	}
	if err := sock.SendLocation(lat, lng); err != nil {
		a.logger.Debug("location dropped", logx.Err(err))
		return false
	}
	return true
}

// Connected is called once the socket joined.
func (a *Agent) Connected(ctx context.Context) {
	a.setOnline(true)
	go func() {
		a.refresh(ctx)
		a.kickDrain()
	}()
}

// Disconnected is called when the joined session drops.
func (a *Agent) Disconnected(err error) {
	a.logger.Warn("connection lost", logx.Err(err))
	a.setOnline(false)
}

// refresh re-reads the active order and starts the shift on first connect.
func (a *Agent) refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	o, err := a.api.ActiveOrder(ctx)
	if err != nil {
		a.logger.Warn("fetch active order", logx.Err(err))
		return
	}
	a.mu.Lock()
	a.active = o
	onShift := a.onShift
	a.mu.Unlock()

	if onShift || o != nil {
		return
	}
	if err := a.StartShift(ctx); err != nil {
		a.logger.Warn("start shift", logx.Err(err))
	}
}

// StartShift makes the courier available for offers.
func (a *Agent) StartShift(ctx context.Context) error {
	return a.setShift(ctx, true)
}

// EndShift stops offers.
func (a *Agent) EndShift(ctx context.Context) error {
	return a.setShift(ctx, false)
}

func (a *Agent) setShift(ctx context.Context, on bool) error {
	if _, err := a.api.SetAvailability(ctx, a.opts.CourierID, on); err != nil {
		return err
	}
	a.mu.Lock()
	a.onShift = on
	a.mu.Unlock()
	a.saveState()
	return nil
}

// HandleOffer accepts the offer when the agent runs in auto-accept mode.
func (a *Agent) HandleOffer(ctx context.Context, offer realtime.OrderOffer) {
	a.logger.Info("order offered",
		logx.Int64("order_id", offer.Order.ID),
		logx.Time("expires_at", offer.ExpiresAt),
	)
	if !a.opts.AutoAccept {
		return
	}
	go func() {
		if _, err := a.Accept(ctx, offer.Order.ID); err != nil {
			a.logger.Info("offer not taken", logx.Int64("order_id", offer.Order.ID), logx.String("code", apperr.Code(err)))
		}
	}()
}

// Accept takes an offered order.
func (a *Agent) Accept(ctx context.Context, orderID int64) (*wire.Order, error) {
	o, err := a.api.Accept(ctx, a.opts.CourierID, orderID)
	if err != nil {
		return nil, err
	}
	a.setActive(o)
	return o, nil
}

// Reject declines an offered order.
func (a *Agent) Reject(ctx context.Context, orderID int64) error {
	return a.api.Reject(ctx, a.opts.CourierID, orderID)
}

func (a *Agent) offerRevoked(orderID int64, reason string) {
	a.logger.Info("offer revoked", logx.Int64("order_id", orderID), logx.String("reason", reason))
}

// OrderUpdated applies a pushed order change.
func (a *Agent) OrderUpdated(o wire.Order) {
	if o.CourierID == nil || *o.CourierID != a.opts.CourierID {
		a.mu.Lock()
		if a.active != nil && a.active.ID == o.ID {
			a.active = nil
		}
		a.mu.Unlock()
		return
	}
	a.setActive(&o)
}

func (a *Agent) setActive(o *wire.Order) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case o == nil:
		return
	case domain.OrderStatus(o.Status).Terminal():
		if a.active != nil && a.active.ID == o.ID {
			a.active = nil
		}
	default:
		cp := *o
		a.active = &cp
	}
}

func (a *Agent) setOnline(online bool) {
	a.mu.Lock()
	changed := a.online != online
	a.online = online
	a.mu.Unlock()
	if changed {
		a.saveState()
	}
}

func (a *Agent) saveState() {
	a.mu.Lock()
	st := State{CourierID: a.opts.CourierID, OnShift: a.onShift, Online: a.online}
	a.mu.Unlock()
	if err := a.store.SaveState(st); err != nil {
		a.logger.Error("save device state", logx.Err(err))
	}
}

func (a *Agent) linkUp() bool {
	a.mu.Lock()
	sock := a.sock
	a.mu.Unlock()
	return sock != nil && sock.Connected()
}

func (a *Agent) kickDrain() {
	select {
	case a.kick <- struct{}{}:
	default:
	}
}

// Run drives sock, the drain loop and the location beacon until ctx is done.
func (a *Agent) Run(ctx context.Context, sock socketConn) error {
	st, err := a.store.LoadState()
	if err != nil {
		return err
	}
	if st.CourierID != 0 && st.CourierID != a.opts.CourierID {
		return fmt.Errorf("queue belongs to courier %d, not %d", st.CourierID, a.opts.CourierID)
	}
	a.mu.Lock()
	a.sock = sock
	a.onShift = st.OnShift
	a.mu.Unlock()

	if n := a.Pending(); n > 0 {
		a.logger.Info("actions pending from previous run", logx.Int("count", n))
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.drainLoop(ctx)
	}()
	if a.opts.Position != nil && a.opts.LocationInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.beacon(ctx)
		}()
	}

	err = sock.Run(ctx)
	wg.Wait()
	return err
}

// drainLoop is the only caller of Drain while the agent runs. After a failed
// drain it retries with backoff while the socket stays joined.
func (a *Agent) drainLoop(ctx context.Context) {
	delay := minBackoff
	var retry <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.kick:
		case <-retry:
		}
		retry = nil
		if !a.linkUp() {
			// дождёмся OnConnected
			continue
		}
		if _, err := a.Drain(ctx); err == nil {
			delay = minBackoff
			continue
		}
		if ctx.Err() != nil {
			return
		}
		retry = time.After(delay)
		delay *= 2
		if delay > maxBackoff {
			delay = maxBackoff
		}
	}
}

func (a *Agent) beacon(ctx context.Context) {
	t := time.NewTicker(a.opts.LocationInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.ReportLocation(a.opts.Position())
		}
	}
}
