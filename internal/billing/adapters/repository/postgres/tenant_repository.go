package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/subpay-io/subpay/internal/billing/domain/model"
	"github.com/subpay-io/subpay/internal/platform/database"
)

const tenantColumns = `id, name, product_id, product_name, is_enabled, created_at, updated_at`

// TenantRepository reads the tenant reference data billing needs
type TenantRepository struct {
	db database.Querier
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db database.Querier) *TenantRepository {
	return &TenantRepository{db: db}
}

// FindByID finds a tenant by ID
func (r *TenantRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM billing_tenants WHERE id = $1`

	var t model.Tenant
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID,
		&t.Name,
		&t.ProductID,
		&t.ProductName,
		&t.IsEnabled,
		&t.CreatedAt,
		&t.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, model.ErrTenantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListEnabled lists enabled tenants
func (r *TenantRepository) ListEnabled(ctx context.Context) ([]*model.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM billing_tenants WHERE is_enabled = true ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []*model.Tenant
	for rows.Next() {
		var t model.Tenant
		err := rows.Scan(
			&t.ID,
			&t.Name,
			&t.ProductID,
			&t.ProductName,
			&t.IsEnabled,
			&t.CreatedAt,
			&t.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, &t)
	}

	return tenants, rows.Err()
}
