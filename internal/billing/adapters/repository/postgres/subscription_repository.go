package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/subpay-io/subpay/internal/billing/domain/model"
	"github.com/subpay-io/subpay/internal/platform/database"
)

const subscriptionColumns = `id, user_id, tenant_id, plan_id, processor_id, external_id, start_at, end_at, suspended_at, next_billing_at, next_billing_plan_id, created_at, updated_at`

// SubscriptionRepository implements subscription persistence
type SubscriptionRepository struct {
	db database.Querier
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db database.Querier) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Create creates a new subscription
func (r *SubscriptionRepository) Create(ctx context.Context, sub *model.Subscription) error {
	query := `
		INSERT INTO billing_subscriptions (` + subscriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.ExecContext(ctx, query,
		sub.ID,
		sub.UserID,
		sub.TenantID,
		sub.PlanID,
		sub.ProcessorID,
		sub.ExternalID,
		sub.StartAt,
		sub.EndAt,
		sub.SuspendedAt,
		sub.NextBillingAt,
		sub.NextBillingPlanID,
		sub.CreatedAt,
		sub.UpdatedAt,
	)

	return err
}

func scanSubscription(row *sql.Row) (*model.Subscription, error) {
	var s model.Subscription
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.TenantID,
		&s.PlanID,
		&s.ProcessorID,
		&s.ExternalID,
		&s.StartAt,
		&s.EndAt,
		&s.SuspendedAt,
		&s.NextBillingAt,
		&s.NextBillingPlanID,
		&s.CreatedAt,
		&s.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, model.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// FindByID finds a subscription by ID
func (r *SubscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM billing_subscriptions WHERE id = $1`
	return scanSubscription(r.db.QueryRowContext(ctx, query, id))
}

// FindByExternalID finds the latest subscription carrying the provider's
// external id. Renewal chains share the id, so creation order decides.
func (r *SubscriptionRepository) FindByExternalID(ctx context.Context, externalID string) (*model.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM billing_subscriptions
		WHERE external_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	return scanSubscription(r.db.QueryRowContext(ctx, query, externalID))
}

// LatestForUserAndTenant returns the most recent subscription for a
// (user, tenant) pair. Rows never confirmed by the provider are included
// only when includeUninitialized is set.
func (r *SubscriptionRepository) LatestForUserAndTenant(ctx context.Context, userID, tenantID uuid.UUID, includeUninitialized bool) (*model.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM billing_subscriptions
		WHERE user_id = $1 AND tenant_id = $2
	`
	if !includeUninitialized {
		query += ` AND start_at IS NOT NULL`
	}
	query += `
		ORDER BY created_at DESC
		LIMIT 1
	`
	return scanSubscription(r.db.QueryRowContext(ctx, query, userID, tenantID))
}

// ListForUser returns the user's latest subscription per tenant
func (r *SubscriptionRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*model.Subscription, error) {
	query := `
		SELECT DISTINCT ON (tenant_id) ` + subscriptionColumns + `
		FROM billing_subscriptions
		WHERE user_id = $1
		ORDER BY tenant_id, created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*model.Subscription
	for rows.Next() {
		var s model.Subscription
		err := rows.Scan(
			&s.ID,
			&s.UserID,
			&s.TenantID,
			&s.PlanID,
			&s.ProcessorID,
			&s.ExternalID,
			&s.StartAt,
			&s.EndAt,
			&s.SuspendedAt,
			&s.NextBillingAt,
			&s.NextBillingPlanID,
			&s.CreatedAt,
			&s.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		subs = append(subs, &s)
	}

	return subs, rows.Err()
}

// Update updates a subscription
func (r *SubscriptionRepository) Update(ctx context.Context, sub *model.Subscription) error {
	query := `
		UPDATE billing_subscriptions
		SET plan_id = $1, processor_id = $2, external_id = $3, start_at = $4, end_at = $5, suspended_at = $6, next_billing_at = $7, next_billing_plan_id = $8, updated_at = $9
		WHERE id = $10
	`

	_, err := r.db.ExecContext(ctx, query,
		sub.PlanID,
		sub.ProcessorID,
		sub.ExternalID,
		sub.StartAt,
		sub.EndAt,
		sub.SuspendedAt,
		sub.NextBillingAt,
		sub.NextBillingPlanID,
		sub.UpdatedAt,
		sub.ID,
	)

	return err
}

// Delete removes a subscription row. Only never-confirmed rows are
// deleted; anything else is finished, not removed.
func (r *SubscriptionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM billing_subscriptions WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}
