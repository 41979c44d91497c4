package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSubscription() *Subscription {
	return NewSubscription(uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New())
}

func TestSubscriptionStatusDerivation(t *testing.T) {
	now := time.Now()
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	tests := []struct {
		name        string
		startAt     *time.Time
		endAt       *time.Time
		suspendedAt *time.Time
		want        SubscriptionStatus
	}{
		{"unconfirmed checkout", nil, nil, nil, SubscriptionStatusNull},
		{"unconfirmed ignores suspension", nil, nil, &past, SubscriptionStatusNull},
		{"started without end", &past, nil, nil, SubscriptionStatusActive},
		{"started with future end", &past, &future, nil, SubscriptionStatusActive},
		{"suspended wins over active window", &past, &future, &now, SubscriptionStatusSuspended},
		{"ended", &past, &now, nil, SubscriptionStatusExpired},
		{"starts in the future", &future, nil, nil, SubscriptionStatusExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := newTestSubscription()
			sub.StartAt = tt.startAt
			sub.EndAt = tt.endAt
			sub.SuspendedAt = tt.suspendedAt
			assert.Equal(t, tt.want, sub.Status(now))
		})
	}
}

func TestSubscriptionStatusBoundaries(t *testing.T) {
	now := time.Now()
	sub := newTestSubscription()

	// start_at == now is inclusive, end_at == now is exclusive.
	sub.StartAt = &now
	assert.Equal(t, SubscriptionStatusActive, sub.Status(now))

	sub.EndAt = &now
	assert.Equal(t, SubscriptionStatusExpired, sub.Status(now))
}

func TestSubscriptionActivate(t *testing.T) {
	sub := newTestSubscription()
	start := time.Now()
	next := start.Add(30 * 24 * time.Hour)

	require.NoError(t, sub.Activate(start, &next))
	require.NotNil(t, sub.StartAt)
	assert.True(t, sub.StartAt.Equal(start))
	require.NotNil(t, sub.NextBillingAt)
	assert.True(t, sub.NextBillingAt.Equal(next))
	assert.True(t, sub.IsActive(start.Add(time.Hour)))
}

func TestSubscriptionActivateRejectsInvertedRange(t *testing.T) {
	sub := newTestSubscription()
	end := time.Now()
	sub.EndAt = &end

	err := sub.Activate(end.Add(time.Hour), nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSubscriptionFinishClearsRenewalState(t *testing.T) {
	sub := newTestSubscription()
	start := time.Now().Add(-48 * time.Hour)
	next := time.Now().Add(24 * time.Hour)
	planID := uuid.New()
	require.NoError(t, sub.Activate(start, &next))
	sub.ScheduleNextBillingPlan(planID)
	sub.SuspendedAt = &start

	end := time.Now()
	require.NoError(t, sub.Finish(end))

	require.NotNil(t, sub.EndAt)
	assert.True(t, sub.EndAt.Equal(end))
	assert.Nil(t, sub.SuspendedAt)
	assert.Nil(t, sub.NextBillingAt)
	assert.Nil(t, sub.NextBillingPlanID)
}

func TestSubscriptionFinishRejectsEndBeforeStart(t *testing.T) {
	sub := newTestSubscription()
	start := time.Now()
	require.NoError(t, sub.Activate(start, nil))

	err := sub.Finish(start.Add(-time.Hour))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSubscriptionSuspendTakesNextBillingAsEnd(t *testing.T) {
	sub := newTestSubscription()
	start := time.Now().Add(-24 * time.Hour)
	next := time.Now().Add(6 * 24 * time.Hour)
	require.NoError(t, sub.Activate(start, &next))

	suspendedAt := time.Now()
	sub.Suspend(suspendedAt)

	assert.True(t, sub.IsSuspended())
	require.NotNil(t, sub.EndAt)
	assert.True(t, sub.EndAt.Equal(next))
	assert.Equal(t, SubscriptionStatusSuspended, sub.Status(time.Now()))
}

func TestSubscriptionUnsuspendRestoresActive(t *testing.T) {
	sub := newTestSubscription()
	start := time.Now().Add(-24 * time.Hour)
	next := time.Now().Add(6 * 24 * time.Hour)
	require.NoError(t, sub.Activate(start, &next))
	sub.Suspend(time.Now())

	sub.Unsuspend()

	assert.Nil(t, sub.SuspendedAt)
	assert.Nil(t, sub.EndAt)
	assert.True(t, sub.IsActive(time.Now()))
}

func TestSubscriptionSetExternalIDIsWriteOnce(t *testing.T) {
	sub := newTestSubscription()

	require.NoError(t, sub.SetExternalID("I-ABC123"))
	require.NoError(t, sub.SetExternalID("I-ABC123"))

	err := sub.SetExternalID("I-OTHER")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "I-ABC123", *sub.ExternalID)
}

func TestSubscriptionNextEndDate(t *testing.T) {
	plan, err := NewPlan(uuid.New(), "monthly", PeriodMonth, 1, decimal.NewFromInt(10))
	require.NoError(t, err)

	sub := newTestSubscription()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sub.StartAt = &start

	assert.Equal(t, start.Add(30*24*time.Hour), sub.NextEndDate(plan))
}
