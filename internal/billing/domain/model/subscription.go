package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus is derived from timestamps, never persisted.
type SubscriptionStatus string

const (
	// SubscriptionStatusNull means checkout was initiated but the provider
	// has not confirmed yet (start_at unset).
	SubscriptionStatusNull      SubscriptionStatus = "null"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusSuspended SubscriptionStatus = "suspended"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

// Subscription is the aggregate root tracking a user's access to a plan
// over time. A renewal creates a new row rather than mutating this one,
// chaining history; only the latest row per (user, tenant) is current.
type Subscription struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	TenantID          uuid.UUID
	PlanID            uuid.UUID
	ProcessorID       uuid.UUID
	ExternalID        *string
	StartAt           *time.Time
	EndAt             *time.Time
	SuspendedAt       *time.Time
	NextBillingAt     *time.Time
	NextBillingPlanID *uuid.UUID
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewSubscription creates an uninitialized subscription for a checkout or
// subscribe flow. The id is the one embedded in the correlation token so
// the provider's callback can be resolved back to this row.
func NewSubscription(id, userID, tenantID, planID, processorID uuid.UUID) *Subscription {
	now := time.Now()
	return &Subscription{
		ID:          id,
		UserID:      userID,
		TenantID:    tenantID,
		PlanID:      planID,
		ProcessorID: processorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Status derives the subscription state from its timestamps at the given
// instant. There is no stored status column by design of the data model.
func (s *Subscription) Status(now time.Time) SubscriptionStatus {
	switch {
	case s.StartAt == nil:
		return SubscriptionStatusNull
	case s.SuspendedAt != nil:
		return SubscriptionStatusSuspended
	case !s.StartAt.After(now) && (s.EndAt == nil || now.Before(*s.EndAt)):
		return SubscriptionStatusActive
	default:
		return SubscriptionStatusExpired
	}
}

// IsActive reports whether the subscription is active at now.
func (s *Subscription) IsActive(now time.Time) bool {
	return s.Status(now) == SubscriptionStatusActive
}

// IsSuspended reports whether the subscription is suspended.
func (s *Subscription) IsSuspended() bool {
	return s.SuspendedAt != nil
}

// IsNull reports whether the subscription was never confirmed by the
// provider.
func (s *Subscription) IsNull() bool {
	return s.StartAt == nil
}

// Activate stamps the confirmation timestamps received from the provider.
func (s *Subscription) Activate(startAt time.Time, nextBillingAt *time.Time) error {
	if err := s.checkRange(&startAt, s.EndAt); err != nil {
		return err
	}
	s.StartAt = &startAt
	s.NextBillingAt = nextBillingAt
	s.UpdatedAt = time.Now()
	return nil
}

// Finish terminates this row at endAt and clears all renewal bookkeeping.
// Any continuation is represented by a new row.
func (s *Subscription) Finish(endAt time.Time) error {
	if err := s.checkRange(s.StartAt, &endAt); err != nil {
		return err
	}
	s.EndAt = &endAt
	s.SuspendedAt = nil
	s.NextBillingAt = nil
	s.NextBillingPlanID = nil
	s.UpdatedAt = time.Now()
	return nil
}

// Suspend marks the subscription suspended. The subscription is considered
// to expire at the point it would otherwise have renewed, so end_at takes
// the prior next_billing_at.
func (s *Subscription) Suspend(suspendedAt time.Time) {
	s.SuspendedAt = &suspendedAt
	if s.NextBillingAt != nil {
		end := *s.NextBillingAt
		s.EndAt = &end
	}
	s.UpdatedAt = time.Now()
}

// Unsuspend clears the suspension and the end date it implied.
func (s *Subscription) Unsuspend() {
	s.SuspendedAt = nil
	s.EndAt = nil
	s.UpdatedAt = time.Now()
}

// ScheduleNextBillingPlan records a pending plan switch effective at the
// next renewal without altering current billing. Rejecting a switch to the
// current or already-scheduled plan is the caller's job.
func (s *Subscription) ScheduleNextBillingPlan(planID uuid.UUID) {
	s.NextBillingPlanID = &planID
	s.UpdatedAt = time.Now()
}

// SetExternalID stamps the provider's subscription/order id. It is write
// once: a second stamp with a different value is rejected.
func (s *Subscription) SetExternalID(externalID string) error {
	if s.ExternalID != nil && *s.ExternalID != externalID {
		return fmt.Errorf("%w: external id already set to %q", ErrValidation, *s.ExternalID)
	}
	s.ExternalID = &externalID
	s.UpdatedAt = time.Now()
	return nil
}

// NextEndDate computes when the current term ends using the plan's period
// arithmetic, counted from start_at.
func (s *Subscription) NextEndDate(plan *Plan) time.Time {
	start := time.Now()
	if s.StartAt != nil {
		start = *s.StartAt
	}
	return start.Add(plan.TermDuration())
}

func (s *Subscription) checkRange(startAt, endAt *time.Time) error {
	if startAt != nil && endAt != nil && !endAt.After(*startAt) {
		return fmt.Errorf("%w: subscription end date must be after start date", ErrValidation)
	}
	return nil
}
