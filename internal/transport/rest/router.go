// Package rest wires the HTTP surface: a public slug-scoped API for guests
// and an authenticated admin API for the order lifecycle.
package rest

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	guestsvc "fete/internal/guest/service"
	invsvc "fete/internal/invitation/service"
	ordersvc "fete/internal/order/service"
	"fete/internal/platform/middleware"
	"fete/internal/platform/redis"
	"fete/pkg/platform/httputil"
)

// Deps collects everything the router needs. Redis is optional; without it
// the public endpoints run unthrottled and the quota ledger is the only
// backstop.
type Deps struct {
	Orders      *ordersvc.Service
	Invitations *invsvc.Service
	Guests      *guestsvc.Service

	TokenValidator middleware.TokenValidator
	Redis          *redis.Client
	Logger         *slog.Logger

	RateLimitRequests int
	RateLimitWindow   time.Duration
}

func NewRouter(deps Deps) http.Handler {
	h := &handler{
		orders:      deps.Orders,
		invitations: deps.Invitations,
		guests:      deps.Guests,
		logger:      deps.Logger,
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestMetadata)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Guest-facing surface, keyed by slug only. No authentication; abuse
	// control is the rate limiter plus the duplicate guard.
	r.Group(func(r chi.Router) {
		var rdb *goredis.Client
		if deps.Redis != nil {
			rdb = deps.Redis.Client
		}
		r.Use(middleware.RateLimit(rdb, deps.RateLimitRequests, deps.RateLimitWindow, deps.Logger))
		r.Get("/i/{slug}", h.getInvitation)
		r.Post("/i/{slug}/guests", h.registerGuest)
	})

	// Admin surface for the order lifecycle and approval queue.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdmin(deps.TokenValidator, deps.Logger))
		r.Post("/orders", h.createOrder)
		r.Get("/orders/{orderID}", h.getOrder)
		r.Post("/orders/{orderID}/submit", h.submitOrder)
		r.Post("/orders/{orderID}/payment", h.confirmPayment)
		r.Post("/orders/{orderID}/approve", h.approveOrder)
		r.Post("/orders/{orderID}/reject", h.rejectOrder)
		r.Post("/orders/{orderID}/cancel", h.cancelOrder)
		r.Post("/orders/{orderID}/capacity", h.grantCapacity)
		r.Get("/invitations/{invitationID}/guests", h.listGuests)
	})

	return r
}
