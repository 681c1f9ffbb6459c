package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/israelreshef/delivery-app-sub000/internal/http/handlers"
	mw "github.com/israelreshef/delivery-app-sub000/internal/http/middleware"
	"github.com/israelreshef/delivery-app-sub000/internal/logx"
)

// Handlers groups the endpoint handlers mounted by New.
type Handlers struct {
	Base     *handlers.Handlers
	Orders   *handlers.OrderHandler
	Couriers *handlers.CourierHandler
	Admin    *handlers.AdminHandler
	Realtime http.Handler
	Metrics  http.Handler
}

// Middleware holds the per-request guards of the API group. Nil entries are skipped.
type Middleware struct {
	Auth        func(http.Handler) http.Handler
	RateLimit   func(http.Handler) http.Handler
	Idempotency func(http.Handler) http.Handler
}

// New constructs a chi-based http.Handler with base middleware and routes.
// Health, metrics and the websocket endpoint stay outside the bearer check;
// sockets authenticate with the join message.
func New(logger logx.Logger, h Handlers, m Middleware) http.Handler {
	if logger == nil {
		logger = logx.Nop()
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Observability(logger))
	r.Use(middleware.Recoverer)

	r.Get("/ping", h.Base.Ping)
	r.Method(http.MethodHead, "/healthcheck", http.HandlerFunc(h.Base.HealthcheckHead))
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics)
	}
	if h.Realtime != nil {
		r.Method(http.MethodGet, "/ws", h.Realtime)
	}

	r.Group(func(api chi.Router) {
		for _, guard := range []func(http.Handler) http.Handler{m.Auth, m.RateLimit, m.Idempotency} {
			if guard != nil {
				api.Use(guard)
			}
		}

		api.Route("/orders", func(r chi.Router) {
			r.Post("/", h.Orders.Create)
			r.Get("/", h.Orders.List)
			r.Get("/{id}", h.Orders.Get)
			r.Post("/{id}/cancel", h.Orders.Cancel)
			r.Post("/{id}/assign", h.Orders.Assign)
		})

		api.Route("/admin", func(r chi.Router) {
			r.Put("/orders/{id}/status", h.Orders.AdminStatus)
			r.Get("/offers", h.Admin.Offers)
			r.Get("/couriers/nearby", h.Admin.Nearby)
		})

		api.Route("/couriers", func(r chi.Router) {
			r.Post("/", h.Couriers.Create)
			r.Get("/", h.Couriers.List)
			r.Get("/me/active-order", h.Couriers.ActiveOrder)
			r.Post("/orders/{id}/status", h.Couriers.UpdateStatus)
			r.Get("/{id}", h.Couriers.GetByID)
			r.Patch("/{id}", h.Couriers.Update)
			r.Put("/{id}/availability", h.Couriers.SetAvailability)
			r.Post("/{id}/orders/{orderId}/accept", h.Couriers.Accept)
			r.Post("/{id}/orders/{orderId}/reject", h.Couriers.Reject)
		})
	})

	r.NotFound(http.HandlerFunc(h.Base.NotFound))
	r.MethodNotAllowed(http.HandlerFunc(h.Base.MethodNotAllowed))

	return r
}
