// Package model defines the billing domain models.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlanPeriod is the billing period duration unit.
type PlanPeriod string

const (
	PeriodDay   PlanPeriod = "day"
	PeriodWeek  PlanPeriod = "week"
	PeriodMonth PlanPeriod = "month"
	PeriodYear  PlanPeriod = "year"
)

// Valid reports whether p is one of the supported period units.
func (p PlanPeriod) Valid() bool {
	switch p {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodYear:
		return true
	}
	return false
}

// Plan is a billing template owned by a tenant. Price changes do not
// retroactively alter subscriptions already referencing the plan.
type Plan struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	Name        string
	Code        string
	Description string
	Period      PlanPeriod
	Term        int
	Price       decimal.Decimal
	Currency    string
	IsRecurring bool
	IsEnabled   bool
	IsDefault   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewPlan creates a plan for a tenant.
func NewPlan(tenantID uuid.UUID, name string, period PlanPeriod, term int, price decimal.Decimal) (*Plan, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: plan name is required", ErrValidation)
	}
	if !period.Valid() {
		return nil, fmt.Errorf("%w: unknown plan period %q", ErrValidation, period)
	}
	if term < 1 {
		return nil, fmt.Errorf("%w: term must be at least 1", ErrValidation)
	}
	now := time.Now()
	return &Plan{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Name:        name,
		Period:      period,
		Term:        term,
		Price:       price,
		IsRecurring: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Validate enforces the plan write rules. Zero and negative prices are
// rejected unless the plan is the tenant default and allowZeroDefault is
// set (business-rule config, not a hard invariant).
func (p *Plan) Validate(allowZeroDefault bool) error {
	if !p.Period.Valid() {
		return fmt.Errorf("%w: unknown plan period %q", ErrValidation, p.Period)
	}
	if p.Term < 1 {
		return fmt.Errorf("%w: term must be at least 1", ErrValidation)
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", ErrValidation)
	}
	if p.Price.IsZero() && !(p.IsDefault && allowZeroDefault) {
		return fmt.Errorf("%w: price must be positive for non-default plans", ErrValidation)
	}
	return nil
}

// TermDuration returns the wall-clock length of one full billing term.
// Month and year use the original system's fixed 30/365 day arithmetic.
func (p *Plan) TermDuration() time.Duration {
	var days int
	switch p.Period {
	case PeriodDay:
		days = 1
	case PeriodWeek:
		days = 7
	case PeriodMonth:
		days = 30
	case PeriodYear:
		days = 365
	}
	return time.Duration(days*p.Term) * 24 * time.Hour
}

// PlanProcessorLink stores the provider-side identifier for a plan,
// unique per (plan, processor).
type PlanProcessorLink struct {
	ID          uuid.UUID
	PlanID      uuid.UUID
	ProcessorID uuid.UUID
	ExternalID  string
	SyncedAt    *time.Time
	CreatedAt   time.Time
}
