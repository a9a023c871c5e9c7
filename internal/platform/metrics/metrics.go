package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	OrdersCreated      prometheus.Counter
	OrdersApproved     prometheus.Counter
	OrdersRejected     prometheus.Counter
	GuestsRegistered   prometheus.Counter
	DuplicateReturns   *prometheus.CounterVec
	QuotaExhaustions   *prometheus.CounterVec
	InvitationsExpired prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		OrdersCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fete_orders_created_total",
			Help: "Total number of orders created",
		}),
		OrdersApproved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fete_orders_approved_total",
			Help: "Total number of orders approved by an admin",
		}),
		OrdersRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fete_orders_rejected_total",
			Help: "Total number of orders rejected by an admin",
		}),
		GuestsRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fete_guests_registered_total",
			Help: "Total number of newly registered guests",
		}),
		DuplicateReturns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fete_guest_duplicate_returns_total",
			Help: "Total number of duplicate guest visits returned idempotently",
		}, []string{"tier"}),
		QuotaExhaustions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fete_quota_exhaustions_total",
			Help: "Total number of registrations refused because a pool was full",
		}, []string{"pool"}),
		InvitationsExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fete_invitations_expired_total",
			Help: "Total number of invitations flipped to expired",
		}),
	}
}
