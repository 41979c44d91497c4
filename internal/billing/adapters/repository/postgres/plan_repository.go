package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/subpay-io/subpay/internal/billing/domain/model"
	"github.com/subpay-io/subpay/internal/platform/database"
)

const planColumns = `id, tenant_id, name, code, description, period, term, price, currency, is_recurring, is_enabled, is_default, created_at, updated_at`

// PlanRepository implements plan persistence
type PlanRepository struct {
	db database.Querier
}

// NewPlanRepository creates a new plan repository
func NewPlanRepository(db database.Querier) *PlanRepository {
	return &PlanRepository{db: db}
}

// Create creates a new plan
func (r *PlanRepository) Create(ctx context.Context, plan *model.Plan) error {
	query := `
		INSERT INTO billing_plans (` + planColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.db.ExecContext(ctx, query,
		plan.ID,
		plan.TenantID,
		plan.Name,
		plan.Code,
		plan.Description,
		plan.Period,
		plan.Term,
		plan.Price,
		plan.Currency,
		plan.IsRecurring,
		plan.IsEnabled,
		plan.IsDefault,
		plan.CreatedAt,
		plan.UpdatedAt,
	)

	return err
}

func (r *PlanRepository) scan(row *sql.Row) (*model.Plan, error) {
	var p model.Plan
	err := row.Scan(
		&p.ID,
		&p.TenantID,
		&p.Name,
		&p.Code,
		&p.Description,
		&p.Period,
		&p.Term,
		&p.Price,
		&p.Currency,
		&p.IsRecurring,
		&p.IsEnabled,
		&p.IsDefault,
		&p.CreatedAt,
		&p.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, model.ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindByID finds a plan by ID
func (r *PlanRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM billing_plans WHERE id = $1`
	return r.scan(r.db.QueryRowContext(ctx, query, id))
}

// FindEnabled finds an enabled plan scoped to a tenant
func (r *PlanRepository) FindEnabled(ctx context.Context, id, tenantID uuid.UUID) (*model.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM billing_plans WHERE id = $1 AND tenant_id = $2 AND is_enabled = true`
	return r.scan(r.db.QueryRowContext(ctx, query, id, tenantID))
}

// FindByRemoteID resolves a plan through its processor link's external id
func (r *PlanRepository) FindByRemoteID(ctx context.Context, remotePlanID string) (*model.Plan, error) {
	query := `
		SELECT ` + prefixColumns("p", planColumns) + `
		FROM billing_plans p
		JOIN billing_plan_links l ON l.plan_id = p.id
		WHERE l.external_id = $1
	`
	return r.scan(r.db.QueryRowContext(ctx, query, remotePlanID))
}

// FindDefault finds the tenant's default plan
func (r *PlanRepository) FindDefault(ctx context.Context, tenantID uuid.UUID) (*model.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM billing_plans WHERE tenant_id = $1 AND is_default = true`
	return r.scan(r.db.QueryRowContext(ctx, query, tenantID))
}

// ListEnabledRecurring lists the tenant's enabled recurring plans
func (r *PlanRepository) ListEnabledRecurring(ctx context.Context, tenantID uuid.UUID) ([]*model.Plan, error) {
	query := `
		SELECT ` + planColumns + `
		FROM billing_plans
		WHERE tenant_id = $1 AND is_enabled = true AND is_recurring = true
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []*model.Plan
	for rows.Next() {
		var p model.Plan
		err := rows.Scan(
			&p.ID,
			&p.TenantID,
			&p.Name,
			&p.Code,
			&p.Description,
			&p.Period,
			&p.Term,
			&p.Price,
			&p.Currency,
			&p.IsRecurring,
			&p.IsEnabled,
			&p.IsDefault,
			&p.CreatedAt,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		plans = append(plans, &p)
	}

	return plans, rows.Err()
}

// Update updates a plan
func (r *PlanRepository) Update(ctx context.Context, plan *model.Plan) error {
	query := `
		UPDATE billing_plans
		SET name = $1, code = $2, description = $3, period = $4, term = $5, price = $6, currency = $7, is_recurring = $8, is_enabled = $9, is_default = $10, updated_at = $11
		WHERE id = $12
	`

	_, err := r.db.ExecContext(ctx, query,
		plan.Name,
		plan.Code,
		plan.Description,
		plan.Period,
		plan.Term,
		plan.Price,
		plan.Currency,
		plan.IsRecurring,
		plan.IsEnabled,
		plan.IsDefault,
		plan.UpdatedAt,
		plan.ID,
	)

	return err
}
