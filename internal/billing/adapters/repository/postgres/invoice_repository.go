package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/subpay-io/subpay/internal/billing/domain/model"
	"github.com/subpay-io/subpay/internal/platform/database"
)

const invoiceColumns = `id, subscription_id, user_id, processor_id, external_id, amount, currency, status, created_at, updated_at`

// InvoiceRepository implements invoice persistence
type InvoiceRepository struct {
	db database.Querier
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db database.Querier) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// Create creates a new invoice
func (r *InvoiceRepository) Create(ctx context.Context, invoice *model.Invoice) error {
	query := `
		INSERT INTO billing_invoices (` + invoiceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		invoice.ID,
		invoice.SubscriptionID,
		invoice.UserID,
		invoice.ProcessorID,
		invoice.ExternalID,
		invoice.Amount,
		invoice.Currency,
		invoice.Status,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	)

	return err
}

func scanInvoice(row *sql.Row) (*model.Invoice, error) {
	var inv model.Invoice
	err := row.Scan(
		&inv.ID,
		&inv.SubscriptionID,
		&inv.UserID,
		&inv.ProcessorID,
		&inv.ExternalID,
		&inv.Amount,
		&inv.Currency,
		&inv.Status,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, model.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// LatestForSubscription returns the newest invoice of a subscription,
// the reconciliation anchor.
func (r *InvoiceRepository) LatestForSubscription(ctx context.Context, subscriptionID uuid.UUID) (*model.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM billing_invoices
		WHERE subscription_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	return scanInvoice(r.db.QueryRowContext(ctx, query, subscriptionID))
}

// LatestByExternalID resolves the provider's charge/order id to the
// newest invoice carrying it. Renewal chains reuse the agreement id, so
// creation order decides which row anchors the next event.
func (r *InvoiceRepository) LatestByExternalID(ctx context.Context, externalID string) (*model.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM billing_invoices
		WHERE external_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	return scanInvoice(r.db.QueryRowContext(ctx, query, externalID))
}

// Update updates an invoice
func (r *InvoiceRepository) Update(ctx context.Context, invoice *model.Invoice) error {
	query := `
		UPDATE billing_invoices
		SET external_id = $1, amount = $2, currency = $3, status = $4, updated_at = $5
		WHERE id = $6
	`

	_, err := r.db.ExecContext(ctx, query,
		invoice.ExternalID,
		invoice.Amount,
		invoice.Currency,
		invoice.Status,
		invoice.UpdatedAt,
		invoice.ID,
	)

	return err
}
