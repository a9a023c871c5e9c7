package models

import (
	dErrors "fete/pkg/domain-errors"
)

// PlanCode selects a pricing tier. The catalog is static configuration; the
// billing system owns prices, this core owns the capacity each tier grants.
type PlanCode string

const (
	PlanStarter PlanCode = "starter"
	PlanClassic PlanCode = "classic"
	PlanPremium PlanCode = "premium"
)

// Plan describes the capacities and price an order copies at creation time.
// Capacities on the order may later grow via admin grants; the plan itself
// never changes retroactively.
type Plan struct {
	Code             PlanCode
	AmountCents      int64
	StandardCapacity int
	TestCapacity     int
}

var catalog = map[PlanCode]Plan{
	PlanStarter: {Code: PlanStarter, AmountCents: 4900, StandardCapacity: 50, TestCapacity: 5},
	PlanClassic: {Code: PlanClassic, AmountCents: 9900, StandardCapacity: 150, TestCapacity: 10},
	PlanPremium: {Code: PlanPremium, AmountCents: 19900, StandardCapacity: 500, TestCapacity: 20},
}

// PlanByCode resolves a plan from the catalog.
func PlanByCode(code PlanCode) (Plan, error) {
	plan, ok := catalog[code]
	if !ok {
		return Plan{}, dErrors.Newf(dErrors.CodeValidation, "unknown plan code %q", code)
	}
	return plan, nil
}
