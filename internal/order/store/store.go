// Package store persists orders. Stores are pure I/O; transition rules live
// in the models and services. Both implementations provide Execute, which
// holds a lock (mutex or SELECT FOR UPDATE) across validation and mutation so
// "transition iff current state allows it" is a single atomic unit.
package store

import (
	"context"
	"time"

	"fete/internal/order/models"
	id "fete/pkg/domain"
)

type Store interface {
	// Create inserts a draft order. A duplicate order number returns
	// sentinel.ErrConflict.
	Create(ctx context.Context, order *models.Order) error

	FindByID(ctx context.Context, orderID id.OrderID) (*models.Order, error)

	// ApprovedPlan returns the plan of the user's earliest approved order,
	// or ok=false when the user holds none. Drives the plan-lock rule.
	ApprovedPlan(ctx context.Context, userID id.UserID) (models.PlanCode, bool, error)

	// Execute atomically loads the order, runs validate, and persists the
	// result of mutate. When validate fails nothing is written and its error
	// is returned unchanged.
	Execute(ctx context.Context, orderID id.OrderID, validate func(*models.Order) error, mutate func(*models.Order)) (*models.Order, error)

	// ExpireStale transitions every non-terminal order created before cutoff
	// to expired, returning how many rows flipped. Idempotent.
	ExpireStale(ctx context.Context, cutoff, now time.Time) (int, error)
}
