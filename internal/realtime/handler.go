package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/israelreshef/delivery-app-sub000/internal/apperr"
	"github.com/israelreshef/delivery-app-sub000/internal/auth"
	"github.com/israelreshef/delivery-app-sub000/internal/domain"
	"github.com/israelreshef/delivery-app-sub000/internal/http/middleware/ratelimit"
	"github.com/israelreshef/delivery-app-sub000/internal/logx"
	"github.com/israelreshef/delivery-app-sub000/internal/service/orders"
	"github.com/israelreshef/delivery-app-sub000/internal/wire"
)

const requestTimeout = 5 * time.Second

type orderService interface {
	Get(ctx context.Context, id int64) (*domain.Order, error)
	Transition(ctx context.Context, cmd orders.TransitionCommand) (*domain.Order, error)
}

type locationService interface {
	UpdateLocation(ctx context.Context, courierID int64, lat, lng float64) (domain.Location, error)
}

type tokenParser interface {
	Parse(token string) (auth.Claims, error)
}

// Handler upgrades HTTP requests and serves the inbound protocol.
type Handler struct {
	hub      *Hub
	orders   orderService
	tracking locationService
	tokens   tokenParser
	throttle ratelimit.Limiter
	logger   logx.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a Handler. throttle limits location reports per courier.
func NewHandler(hub *Hub, orders orderService, tracking locationService, tokens tokenParser, throttle ratelimit.Limiter, logger logx.Logger) *Handler {
	if throttle == nil {
		throttle = ratelimit.NopLimiter{}
	}
	if logger == nil {
		logger = logx.Nop()
	}
	return &Handler{
		hub:      hub,
		orders:   orders,
		tracking: tracking,
		tokens:   tokens,
		throttle: throttle,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// токен проверяется в join, origin не ограничиваем
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and runs its pumps.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("realtime: upgrade failed", logx.Err(err))
		return
	}
	c := newClient(h.hub, conn)
	h.hub.register(c)
	go c.writePump()
	go c.readPump(h.handle)
}

func (h *Handler) handle(c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.fail(c, apperr.Validation("message", "malformed json"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var err error
	switch env.Type {
	case TypePing:
		h.hub.send(c, TypePong, struct{}{})
	case TypeJoin:
		err = h.join(ctx, c, env.Data)
	case TypeTrack:
		err = h.track(ctx, c, env.Data)
	case TypeLeave:
		err = h.leave(c, env.Data)
	case TypeLocationUpdate, TypeCourierLocationUpdate:
		err = h.location(ctx, c, env.Data)
	case TypeStatusUpdate:
		h.status(ctx, c, env.Data)
	default:
		err = apperr.Validation("type", fmt.Sprintf("unknown message type %q", env.Type))
	}
	if err != nil {
		h.fail(c, err)
	}
}

func (h *Handler) fail(c *Client, err error) {
	h.hub.send(c, TypeError, errorMessage(err))
}

func errorMessage(err error) ErrorMessage {
	return ErrorMessage{Code: apperr.Code(err), Message: err.Error()}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return apperr.Validation("data", "required")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperr.Validation("data", "malformed payload")
	}
	return nil
}

func (h *Handler) join(ctx context.Context, c *Client, data json.RawMessage) error {
	var req JoinRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	claims, err := h.tokens.Parse(req.Token)
	if err != nil {
		return err
	}
	if string(claims.Role) != req.Role {
		return fmt.Errorf("token role %s does not match %s: %w", claims.Role, req.Role, apperr.ErrUnauthorized)
	}
	if claims.Role != auth.RoleAdmin && claims.SubjectID != req.ID {
		return fmt.Errorf("token subject does not match: %w", apperr.ErrUnauthorized)
	}

	var rooms []string
	switch claims.Role {
	case auth.RoleAdmin:
		rooms = append(rooms, RoomAdmin)
	case auth.RoleCourier:
		rooms = append(rooms, RoomCourier(claims.SubjectID))
	}
	if req.OrderID != nil {
		if err := h.mayTrack(ctx, claims, *req.OrderID); err != nil {
			return err
		}
		rooms = append(rooms, RoomOrder(*req.OrderID))
	}

	c.setIdentity(claims)
	for _, room := range rooms {
		h.hub.join(c, room)
	}
	h.hub.send(c, TypeJoined, Joined{Rooms: h.hub.roomsOf(c)})
	return nil
}

// mayTrack checks that the caller may watch the order.
func (h *Handler) mayTrack(ctx context.Context, cl auth.Claims, orderID int64) error {
	o, err := h.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	switch cl.Role {
	case auth.RoleAdmin:
		return nil
	case auth.RoleCustomer:
		if o.CustomerID == cl.SubjectID {
			return nil
		}
		// чужой заказ для клиента не существует
		return apperr.ErrNotFound
	case auth.RoleCourier:
		if o.OwnedBy(cl.SubjectID) {
			return nil
		}
		return &apperr.NotOwnerError{OrderID: orderID, CourierID: cl.SubjectID}
	}
	return apperr.ErrUnauthorized
}

func (h *Handler) track(ctx context.Context, c *Client, data json.RawMessage) error {
	cl, ok := c.identity()
	if !ok {
		return fmt.Errorf("join first: %w", apperr.ErrUnauthorized)
	}
	var req TrackRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if err := h.mayTrack(ctx, cl, req.OrderID); err != nil {
		return err
	}
	h.hub.join(c, RoomOrder(req.OrderID))
	h.hub.send(c, TypeJoined, Joined{Rooms: h.hub.roomsOf(c)})
	return nil
}

func (h *Handler) leave(c *Client, data json.RawMessage) error {
	var req LeaveRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	h.hub.leave(c, req.Room)
	h.hub.send(c, TypeJoined, Joined{Rooms: h.hub.roomsOf(c)})
	return nil
}

func (h *Handler) courier(c *Client) (int64, error) {
	cl, ok := c.identity()
	if !ok || cl.Role != auth.RoleCourier {
		return 0, fmt.Errorf("courier session required: %w", apperr.ErrUnauthorized)
	}
	return cl.SubjectID, nil
}

func (h *Handler) location(ctx context.Context, c *Client, data json.RawMessage) error {
	courierID, err := h.courier(c)
	if err != nil {
		return err
	}
	var req LocationRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if req.CourierID != 0 && req.CourierID != courierID {
		return fmt.Errorf("location for courier %d: %w", req.CourierID, apperr.ErrNotOwner)
	}
	if !h.throttle.Allow("courier:" + strconv.FormatInt(courierID, 10)) {
		h.hub.countDropped("throttled")
		return nil
	}
	_, err = h.tracking.UpdateLocation(ctx, courierID, req.Lat, req.Lng)
	return err
}

func (h *Handler) status(ctx context.Context, c *Client, data json.RawMessage) {
	var req StatusRequest
	res := StatusResult{}
	err := decode(data, &req)
	res.RequestID = req.RequestID

	var courierID int64
	if err == nil {
		courierID, err = h.courier(c)
	}
	var o *domain.Order
	if err == nil {
		o, err = h.orders.Transition(ctx, orders.TransitionCommand{
			OrderID:   req.OrderID,
			Status:    domain.OrderStatus(req.Status),
			CourierID: &courierID,
			Note:      req.Note,
			ProofRef:  req.ProofRef,
		})
	}
	if err != nil {
		em := errorMessage(err)
		res.Error = &em
		var terr *apperr.TransitionError
		if !errors.As(err, &terr) {
			h.logger.Debug("realtime: status update rejected", logx.Err(err))
		}
	} else {
		w := wire.FromOrder(*o)
		res.OK = true
		res.Order = &w
	}
	h.hub.send(c, TypeStatusUpdateResult, res)
}
