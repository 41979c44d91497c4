package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPlanRejectsBadInput(t *testing.T) {
	tenantID := uuid.New()

	_, err := NewPlan(tenantID, "", PeriodMonth, 1, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewPlan(tenantID, "basic", PlanPeriod("fortnight"), 1, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewPlan(tenantID, "basic", PeriodMonth, 0, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestPlanValidatePriceRules(t *testing.T) {
	plan, err := NewPlan(uuid.New(), "basic", PeriodMonth, 1, decimal.NewFromInt(10))
	require.NoError(t, err)

	assert.NoError(t, plan.Validate(false))

	plan.Price = decimal.NewFromInt(-1)
	assert.ErrorIs(t, plan.Validate(true), ErrValidation)

	plan.Price = decimal.Zero
	assert.ErrorIs(t, plan.Validate(true), ErrValidation)

	plan.IsDefault = true
	assert.ErrorIs(t, plan.Validate(false), ErrValidation)
	assert.NoError(t, plan.Validate(true))
}

func TestPlanTermDuration(t *testing.T) {
	tests := []struct {
		period PlanPeriod
		term   int
		want   time.Duration
	}{
		{PeriodDay, 1, 24 * time.Hour},
		{PeriodWeek, 2, 14 * 24 * time.Hour},
		{PeriodMonth, 1, 30 * 24 * time.Hour},
		{PeriodYear, 1, 365 * 24 * time.Hour},
	}

	for _, tt := range tests {
		plan := &Plan{Period: tt.period, Term: tt.term}
		assert.Equal(t, tt.want, plan.TermDuration(), "period=%s term=%d", tt.period, tt.term)
	}
}
