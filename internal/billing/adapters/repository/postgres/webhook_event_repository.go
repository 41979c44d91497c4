package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/subpay-io/subpay/internal/billing/domain/model"
	"github.com/subpay-io/subpay/internal/platform/database"
)

// WebhookEventRepository is the dedup store. Rows are write-once; the
// unique index on (processor_id, event_type, event_id) turns "seen
// before" into an atomic insert.
type WebhookEventRepository struct {
	db database.Querier
}

// NewWebhookEventRepository creates a new webhook event repository
func NewWebhookEventRepository(db database.Querier) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// Insert records a delivery. A unique violation means the delivery was
// applied before and comes back as model.ErrDuplicateEvent.
func (r *WebhookEventRepository) Insert(ctx context.Context, event *model.WebhookEvent) error {
	query := `
		INSERT INTO billing_webhook_events (id, processor_id, event_type, event_id, payload, processed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.ProcessorID,
		event.EventType,
		event.EventID,
		event.Payload,
		event.Processed,
		event.CreatedAt,
	)

	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s/%s", model.ErrDuplicateEvent, event.EventType, event.EventID)
		}
		return err
	}
	return nil
}

// MarkProcessed flips the processed flag inside the transaction that
// applied the event.
func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE billing_webhook_events SET processed = true WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}
