package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/israelreshef/delivery-app-sub000/internal/apperr"
	"github.com/israelreshef/delivery-app-sub000/internal/auth"
	"github.com/israelreshef/delivery-app-sub000/internal/domain"
	"github.com/israelreshef/delivery-app-sub000/internal/logx"
	"github.com/israelreshef/delivery-app-sub000/internal/service/orders"
	"github.com/israelreshef/delivery-app-sub000/internal/wire"
)

type assignRequest struct {
	CourierID int64 `json:"courier_id"`
}

type statusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// OrderHandler serves order endpoints for customers and admins.
type OrderHandler struct {
	logger logx.Logger
	uc     orderUsecase
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(logger logx.Logger, uc orderUsecase) *OrderHandler {
	if logger == nil {
		logger = logx.Nop()
	}
	return &OrderHandler{logger: logger, uc: uc}
}

// Create handles POST /orders. Customers always order for themselves.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	cl, err := allow(r, auth.RoleCustomer, auth.RoleAdmin)
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	var req wire.CreateOrder
	if !decodeJSON(h.logger, w, r, &req) {
		return
	}
	d := req.ToDraft()
	if cl.Role == auth.RoleCustomer {
		d.CustomerID = cl.SubjectID
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()
	o, err := h.uc.Create(ctx, d)
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	w.Header().Set("Location", "/orders/"+strconv.FormatInt(o.ID, 10))
	writeJSON(h.logger, w, r, http.StatusCreated, wire.FromOrder(*o))
}

// Get handles GET /orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	cl, err := caller(r)
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	id, err := idFromURL(r, "id")
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()
	o, err := h.uc.Get(ctx, id)
	if err == nil {
		err = visible(cl, o)
	}
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, wire.FromOrder(*o))
}

// visible hides other customers' orders and refuses couriers that do not own the order.
func visible(cl auth.Claims, o *domain.Order) error {
	switch cl.Role {
	case auth.RoleAdmin:
		return nil
	case auth.RoleCustomer:
		if o.CustomerID == cl.SubjectID {
			return nil
		}
		return apperr.ErrNotFound
	case auth.RoleCourier:
		if o.OwnedBy(cl.SubjectID) {
			return nil
		}
		return &apperr.NotOwnerError{OrderID: o.ID, CourierID: cl.SubjectID}
	}
	return apperr.ErrUnauthorized
}

// List handles GET /orders?status=&limit=&offset=. Non-admins see their own orders only.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	cl, err := caller(r)
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}

	f := domain.OrderFilter{Status: domain.OrderStatus(strings.TrimSpace(r.URL.Query().Get("status")))}
	if limit != nil {
		f.Limit = *limit
	}
	if offset != nil {
		f.Offset = *offset
	}
	switch cl.Role {
	case auth.RoleCustomer:
		f.CustomerID = cl.SubjectID
	case auth.RoleCourier:
		f.CourierID = cl.SubjectID
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()
	list, err := h.uc.List(ctx, f)
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, wire.FromOrders(list))
}

// Cancel handles POST /orders/{id}/cancel.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	cl, err := allow(r, auth.RoleCustomer, auth.RoleAdmin)
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	id, err := idFromURL(r, "id")
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	var req cancelRequest
	if r.ContentLength != 0 && !decodeJSON(h.logger, w, r, &req) {
		return
	}

	cmd := orders.CancelCommand{OrderID: id, Reason: req.Reason}
	if cl.Role == auth.RoleCustomer {
		cmd.CustomerID = &cl.SubjectID
	}
	ctx, cancel := withTimeout(r.Context())
	defer cancel()
	o, err := h.uc.Cancel(ctx, cmd)
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, wire.FromOrder(*o))
}

// Assign handles POST /orders/{id}/assign {courier_id}. Admin only.
func (h *OrderHandler) Assign(w http.ResponseWriter, r *http.Request) {
	if _, err := allow(r, auth.RoleAdmin); err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	id, err := idFromURL(r, "id")
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	var req assignRequest
	if !decodeJSON(h.logger, w, r, &req) {
		return
	}
	if req.CourierID <= 0 {
		writeAppError(h.logger, w, r, apperr.Validation("courier_id", "required"))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()
	o, err := h.uc.Assign(ctx, id, req.CourierID)
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, wire.FromOrder(*o))
}

// AdminStatus handles PUT /admin/orders/{id}/status {status, note?}. Ownership
// is not checked; the transition table still applies.
func (h *OrderHandler) AdminStatus(w http.ResponseWriter, r *http.Request) {
	if _, err := allow(r, auth.RoleAdmin); err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	id, err := idFromURL(r, "id")
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	var req statusRequest
	if !decodeJSON(h.logger, w, r, &req) {
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()
	o, err := h.uc.Transition(ctx, orders.TransitionCommand{
		OrderID: id,
		Status:  domain.OrderStatus(strings.TrimSpace(req.Status)),
		Note:    req.Note,
	})
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, wire.FromOrder(*o))
}
