package handlers

import (
	"net/http"

	"github.com/israelreshef/delivery-app-sub000/internal/auth"
	"github.com/israelreshef/delivery-app-sub000/internal/logx"
	"github.com/israelreshef/delivery-app-sub000/internal/wire"
)

const defaultNearbyRadiusKm = 5

// AdminHandler serves dispatcher views.
type AdminHandler struct {
	logger   logx.Logger
	dispatch dispatchUsecase
	nearby   nearbySearch
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(logger logx.Logger, dispatch dispatchUsecase, nearby nearbySearch) *AdminHandler {
	if logger == nil {
		logger = logx.Nop()
	}
	return &AdminHandler{logger: logger, dispatch: dispatch, nearby: nearby}
}

// Offers handles GET /admin/offers.
func (h *AdminHandler) Offers(w http.ResponseWriter, r *http.Request) {
	if _, err := allow(r, auth.RoleAdmin); err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, wire.FromOffers(h.dispatch.Snapshot()))
}

// Nearby handles GET /admin/couriers/nearby?lat=&lng=&radius_km=&limit=.
func (h *AdminHandler) Nearby(w http.ResponseWriter, r *http.Request) {
	if _, err := allow(r, auth.RoleAdmin); err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	lat, err := queryFloat(r, "lat", true)
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	lng, err := queryFloat(r, "lng", true)
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	radius, err := queryFloat(r, "radius_km", false)
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	if radius == 0 {
		radius = defaultNearbyRadiusKm
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	n := 0
	if limit != nil {
		n = *limit
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()
	list, err := h.nearby.Nearby(ctx, lat, lng, radius, n)
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, wire.FromNearby(list))
}
