package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/subpay-io/subpay/internal/billing/domain/model"
	"github.com/subpay-io/subpay/internal/platform/database"
)

// PlanLinkRepository implements plan↔processor link persistence
type PlanLinkRepository struct {
	db database.Querier
}

// NewPlanLinkRepository creates a new plan link repository
func NewPlanLinkRepository(db database.Querier) *PlanLinkRepository {
	return &PlanLinkRepository{db: db}
}

// Create creates a new link
func (r *PlanLinkRepository) Create(ctx context.Context, link *model.PlanProcessorLink) error {
	query := `
		INSERT INTO billing_plan_links (id, plan_id, processor_id, external_id, synced_at, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		link.ID,
		link.PlanID,
		link.ProcessorID,
		link.ExternalID,
		link.SyncedAt,
		link.CreatedAt,
	)

	return err
}

// Find finds the link for a (plan, processor) pair
func (r *PlanLinkRepository) Find(ctx context.Context, planID, processorID uuid.UUID) (*model.PlanProcessorLink, error) {
	query := `
		SELECT id, plan_id, processor_id, COALESCE(external_id, ''), synced_at, created_at
		FROM billing_plan_links
		WHERE plan_id = $1 AND processor_id = $2
	`

	var l model.PlanProcessorLink
	err := r.db.QueryRowContext(ctx, query, planID, processorID).Scan(
		&l.ID,
		&l.PlanID,
		&l.ProcessorID,
		&l.ExternalID,
		&l.SyncedAt,
		&l.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, model.ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Update updates a link's remote id and sync timestamp
func (r *PlanLinkRepository) Update(ctx context.Context, link *model.PlanProcessorLink) error {
	query := `
		UPDATE billing_plan_links
		SET external_id = NULLIF($1, ''), synced_at = $2
		WHERE id = $3
	`

	_, err := r.db.ExecContext(ctx, query,
		link.ExternalID,
		link.SyncedAt,
		link.ID,
	)

	return err
}
