package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/israelreshef/delivery-app-sub000/internal/apperr"
	"github.com/israelreshef/delivery-app-sub000/internal/auth"
	"github.com/israelreshef/delivery-app-sub000/internal/domain"
	"github.com/israelreshef/delivery-app-sub000/internal/gateway/proof"
	"github.com/israelreshef/delivery-app-sub000/internal/logx"
	"github.com/israelreshef/delivery-app-sub000/internal/service/orders"
	"github.com/israelreshef/delivery-app-sub000/internal/wire"
)

type courierCreateRequest struct {
	Name        string  `json:"name"`
	Phone       string  `json:"phone"`
	VehicleType string  `json:"vehicle_type,omitempty"`
	Onboarding  string  `json:"onboarding_status,omitempty"`
	Rating      float64 `json:"rating,omitempty"`
}

type courierPatchRequest struct {
	Name        *string  `json:"name,omitempty"`
	Phone       *string  `json:"phone,omitempty"`
	VehicleType *string  `json:"vehicle_type,omitempty"`
	Onboarding  *string  `json:"onboarding_status,omitempty"`
	Rating      *float64 `json:"rating,omitempty"`
}

type availabilityRequest struct {
	Available *bool `json:"available"`
}

type courierStatusRequest struct {
	Status   string `json:"status"`
	Note     string `json:"note,omitempty"`
	PodImage string `json:"pod_image,omitempty"`
}

// CourierHandler serves courier registry and courier-app endpoints.
type CourierHandler struct {
	logger   logx.Logger
	couriers courierUsecase
	orders   orderUsecase
	dispatch dispatchUsecase
	proofs   proofStore
}

// NewCourierHandler creates a CourierHandler. proofs stores pod_image uploads.
func NewCourierHandler(logger logx.Logger, couriers courierUsecase, orders orderUsecase, dispatch dispatchUsecase, proofs proofStore) *CourierHandler {
	if logger == nil {
		logger = logx.Nop()
	}
	if proofs == nil {
		proofs = proof.DigestStore{}
	}
	return &CourierHandler{logger: logger, couriers: couriers, orders: orders, dispatch: dispatch, proofs: proofs}
}

// Create handles POST /couriers. Admin only.
func (h *CourierHandler) Create(w http.ResponseWriter, r *http.Request) {
	if _, err := allow(r, auth.RoleAdmin); err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	var req courierCreateRequest
	if !decodeJSON(h.logger, w, r, &req) {
		return
	}
	c := &domain.Courier{
		Name:        req.Name,
		Phone:       req.Phone,
		VehicleType: domain.VehicleType(req.VehicleType),
		Onboarding:  domain.OnboardingStatus(req.Onboarding),
		Rating:      req.Rating,
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()
	id, err := h.couriers.Create(ctx, c)
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	c.ID = id
	w.Header().Set("Location", "/couriers/"+strconv.FormatInt(id, 10))
	writeJSON(h.logger, w, r, http.StatusCreated, wire.FromCourier(*c))
}

// List handles GET /couriers?limit=&offset=. Admin only.
func (h *CourierHandler) List(w http.ResponseWriter, r *http.Request) {
	if _, err := allow(r, auth.RoleAdmin); err != nil {
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

	ctx, cancel := withTimeout(r.Context())
	defer cancel()
	list, err := h.couriers.List(ctx, limit, offset)
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, wire.FromCouriers(list))
}

// GetByID handles GET /couriers/{id}.
func (h *CourierHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := h.selfID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	c, err := h.couriers.Get(ctx, id)
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, wire.FromCourier(*c))
}

// Update handles PATCH /couriers/{id}. Admin only.
func (h *CourierHandler) Update(w http.ResponseWriter, r *http.Request) {
	if _, err := allow(r, auth.RoleAdmin); err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	id, err := idFromURL(r, "id")
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	var req courierPatchRequest
	if !decodeJSON(h.logger, w, r, &req) {
		return
	}
	u := domain.PartialCourierUpdate{ID: id, Name: req.Name, Phone: req.Phone, Rating: req.Rating}
	if req.VehicleType != nil {
		v := domain.VehicleType(*req.VehicleType)
		u.VehicleType = &v
	}
	if req.Onboarding != nil {
		s := domain.OnboardingStatus(*req.Onboarding)
		u.Onboarding = &s
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()
	if _, err := h.couriers.UpdatePartial(ctx, u); err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	c, err := h.couriers.Get(ctx, id)
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, wire.FromCourier(*c))
}

// SetAvailability handles PUT /couriers/{id}/availability {available}.
func (h *CourierHandler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := h.selfID(w, r, "id")
	if !ok {
		return
	}
	var req availabilityRequest
	if !decodeJSON(h.logger, w, r, &req) {
		return
	}
	if req.Available == nil {
		writeAppError(h.logger, w, r, apperr.Validation("available", "required"))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()
	c, err := h.couriers.SetAvailability(ctx, id, *req.Available)
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, wire.FromCourier(*c))
}

// Accept handles POST /couriers/{id}/orders/{orderId}/accept.
func (h *CourierHandler) Accept(w http.ResponseWriter, r *http.Request) {
	courierID, orderID, ok := h.offerIDs(w, r)
	if !ok {
		return
	}
	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	o, err := h.dispatch.Accept(ctx, orderID, courierID)
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, wire.FromOrder(*o))
}

// Reject handles POST /couriers/{id}/orders/{orderId}/reject.
func (h *CourierHandler) Reject(w http.ResponseWriter, r *http.Request) {
	courierID, orderID, ok := h.offerIDs(w, r)
	if !ok {
		return
	}
	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	if err := h.dispatch.Reject(ctx, orderID, courierID); err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateStatus handles POST /couriers/orders/{id}/status {status, note?, pod_image?}.
func (h *CourierHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	cl, err := allow(r, auth.RoleCourier)
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	orderID, err := idFromURL(r, "id")
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	var req courierStatusRequest
	if !decodeJSON(h.logger, w, r, &req) {
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	cmd := orders.TransitionCommand{
		OrderID:   orderID,
		Status:    domain.OrderStatus(strings.TrimSpace(req.Status)),
		CourierID: &cl.SubjectID,
		Note:      req.Note,
	}
	if req.PodImage != "" {
		ref, err := h.storeProof(r, orderID, cl.SubjectID, req.PodImage)
		if err != nil {
			writeAppError(h.logger, w, r, err)
			return
		}
		cmd.ProofRef = ref
	}

	o, err := h.orders.Transition(ctx, cmd)
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, wire.FromOrder(*o))
}

// storeProof uploads the image before the transition so a failed upload leaves the order untouched.
func (h *CourierHandler) storeProof(r *http.Request, orderID, courierID int64, podImage string) (string, error) {
	img, err := proof.DecodeImage(podImage)
	if err != nil {
		return "", err
	}
	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	o, err := h.orders.Get(ctx, orderID)
	if err != nil {
		return "", err
	}
	if !o.OwnedBy(courierID) {
		return "", &apperr.NotOwnerError{OrderID: orderID, CourierID: courierID}
	}
	return h.proofs.Save(ctx, o.Number, img)
}

// ActiveOrder handles GET /couriers/me/active-order.
func (h *CourierHandler) ActiveOrder(w http.ResponseWriter, r *http.Request) {
	cl, err := allow(r, auth.RoleCourier)
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	o, err := h.orders.ActiveForCourier(ctx, cl.SubjectID)
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, wire.FromOrder(*o))
}

func (h *CourierHandler) selfID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	cl, err := caller(r)
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return 0, false
	}
	id, err := idFromURL(r, param)
	if err == nil {
		err = self(cl, id)
	}
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return 0, false
	}
	return id, true
}

// offerIDs reads {id} and {orderId}; only the courier itself may answer its offers.
func (h *CourierHandler) offerIDs(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	cl, err := allow(r, auth.RoleCourier)
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return 0, 0, false
	}
	courierID, err := idFromURL(r, "id")
	if err == nil {
		err = self(cl, courierID)
	}
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return 0, 0, false
	}
	orderID, err := idFromURL(r, "orderId")
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return 0, 0, false
	}
	return courierID, orderID, true
}
