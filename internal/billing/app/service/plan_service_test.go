package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subpay-io/subpay/internal/billing/domain/model"
	"github.com/subpay-io/subpay/internal/platform/logger"
)

func TestCreatePlanEnforcesSingleDefault(t *testing.T) {
	store := newMemStore()
	svc := NewPlanService(store.repositories(), logger.NewNop(), true)
	tenantID := uuid.New()

	first, err := model.NewPlan(tenantID, "free", model.PeriodMonth, 1, decimal.Zero)
	require.NoError(t, err)
	first.IsDefault = true
	require.NoError(t, svc.CreatePlan(context.Background(), first))

	second, err := model.NewPlan(tenantID, "also free", model.PeriodMonth, 1, decimal.Zero)
	require.NoError(t, err)
	second.IsDefault = true
	assert.ErrorIs(t, svc.CreatePlan(context.Background(), second), model.ErrValidation)

	// updating the existing default is still allowed
	first.Name = "free tier"
	assert.NoError(t, svc.UpdatePlan(context.Background(), first))
}

func TestCreatePlanZeroPriceGatedByConfig(t *testing.T) {
	store := newMemStore()
	strict := NewPlanService(store.repositories(), logger.NewNop(), false)

	plan, err := model.NewPlan(uuid.New(), "free", model.PeriodMonth, 1, decimal.Zero)
	require.NoError(t, err)
	plan.IsDefault = true

	assert.ErrorIs(t, strict.CreatePlan(context.Background(), plan), model.ErrValidation)

	lenient := NewPlanService(store.repositories(), logger.NewNop(), true)
	assert.NoError(t, lenient.CreatePlan(context.Background(), plan))
}
