package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/subpay-io/subpay/internal/billing/domain/model"
	"github.com/subpay-io/subpay/internal/platform/database"
)

const processorColumns = `id, tenant_id, type, client_id, secret, endpoint_secret, webhook_secret, is_sandbox, is_enabled, created_at, updated_at`

// ProcessorRepository implements processor credential persistence
type ProcessorRepository struct {
	db database.Querier
}

// NewProcessorRepository creates a new processor repository
func NewProcessorRepository(db database.Querier) *ProcessorRepository {
	return &ProcessorRepository{db: db}
}

// Create creates a new processor
func (r *ProcessorRepository) Create(ctx context.Context, processor *model.Processor) error {
	query := `
		INSERT INTO billing_processors (` + processorColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		processor.ID,
		processor.TenantID,
		processor.Type,
		processor.ClientID,
		processor.Secret,
		processor.EndpointSecret,
		processor.WebhookSecret,
		processor.IsSandbox,
		processor.IsEnabled,
		processor.CreatedAt,
		processor.UpdatedAt,
	)

	return err
}

func (r *ProcessorRepository) scan(row *sql.Row) (*model.Processor, error) {
	var p model.Processor
	err := row.Scan(
		&p.ID,
		&p.TenantID,
		&p.Type,
		&p.ClientID,
		&p.Secret,
		&p.EndpointSecret,
		&p.WebhookSecret,
		&p.IsSandbox,
		&p.IsEnabled,
		&p.CreatedAt,
		&p.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, model.ErrProcessorNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindByID finds a processor by ID
func (r *ProcessorRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Processor, error) {
	query := `SELECT ` + processorColumns + ` FROM billing_processors WHERE id = $1`
	return r.scan(r.db.QueryRowContext(ctx, query, id))
}

// FindByWebhookSecret finds a processor by its webhook path secret
func (r *ProcessorRepository) FindByWebhookSecret(ctx context.Context, webhookSecret string) (*model.Processor, error) {
	query := `SELECT ` + processorColumns + ` FROM billing_processors WHERE webhook_secret = $1`
	return r.scan(r.db.QueryRowContext(ctx, query, webhookSecret))
}

// ListEnabled lists a tenant's enabled processors
func (r *ProcessorRepository) ListEnabled(ctx context.Context, tenantID uuid.UUID) ([]*model.Processor, error) {
	query := `
		SELECT ` + processorColumns + `
		FROM billing_processors
		WHERE tenant_id = $1 AND is_enabled = true
		ORDER BY type
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var processors []*model.Processor
	for rows.Next() {
		var p model.Processor
		err := rows.Scan(
			&p.ID,
			&p.TenantID,
			&p.Type,
			&p.ClientID,
			&p.Secret,
			&p.EndpointSecret,
			&p.WebhookSecret,
			&p.IsSandbox,
			&p.IsEnabled,
			&p.CreatedAt,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		processors = append(processors, &p)
	}

	return processors, rows.Err()
}
