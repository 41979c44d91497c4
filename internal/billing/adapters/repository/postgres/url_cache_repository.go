package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/subpay-io/subpay/internal/billing/domain/model"
	"github.com/subpay-io/subpay/internal/platform/database"

	"github.com/google/uuid"
)

// URLCacheRepository implements payment URL cache persistence
type URLCacheRepository struct {
	db database.Querier
}

// NewURLCacheRepository creates a new URL cache repository
func NewURLCacheRepository(db database.Querier) *URLCacheRepository {
	return &URLCacheRepository{db: db}
}

// FindFresh returns a cached URL only when the entry exists and is not
// past its expiry at now.
func (r *URLCacheRepository) FindFresh(ctx context.Context, typ model.URLCacheType, keyHash string, processorID uuid.UUID, now time.Time) (*model.PaymentURLCache, error) {
	query := `
		SELECT id, type, key_hash, processor_id, url, expired_at, created_at
		FROM billing_payment_url_cache
		WHERE type = $1 AND key_hash = $2 AND processor_id = $3 AND expired_at > $4
		ORDER BY created_at DESC
		LIMIT 1
	`

	var c model.PaymentURLCache
	err := r.db.QueryRowContext(ctx, query, typ, keyHash, processorID, now).Scan(
		&c.ID,
		&c.Type,
		&c.KeyHash,
		&c.ProcessorID,
		&c.URL,
		&c.ExpiredAt,
		&c.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create stores a cache entry
func (r *URLCacheRepository) Create(ctx context.Context, entry *model.PaymentURLCache) error {
	query := `
		INSERT INTO billing_payment_url_cache (id, type, key_hash, processor_id, url, expired_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.Type,
		entry.KeyHash,
		entry.ProcessorID,
		entry.URL,
		entry.ExpiredAt,
		entry.CreatedAt,
	)

	return err
}

// Invalidate removes the entry for a key, used when the underlying
// subscription or plan state changes meaningfully.
func (r *URLCacheRepository) Invalidate(ctx context.Context, typ model.URLCacheType, keyHash string) error {
	query := `DELETE FROM billing_payment_url_cache WHERE type = $1 AND key_hash = $2`
	_, err := r.db.ExecContext(ctx, query, typ, keyHash)
	return err
}

// PurgeExpiring deletes every entry expiring before the threshold and
// reports the number of rows removed.
func (r *URLCacheRepository) PurgeExpiring(ctx context.Context, threshold time.Time) (int64, error) {
	query := `DELETE FROM billing_payment_url_cache WHERE expired_at < $1`
	result, err := r.db.ExecContext(ctx, query, threshold)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
