package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// URLCacheType distinguishes the provider flows that mint redirect URLs.
type URLCacheType string

const (
	URLCacheSubscribe  URLCacheType = "subscribe"
	URLCacheChangePlan URLCacheType = "change_plan"
)

// PaymentURLCache holds one externally-generated checkout/change-plan URL
// so retried client requests reuse it instead of creating a second remote
// object. The composite key is stored hashed, never raw.
type PaymentURLCache struct {
	ID          uuid.UUID
	Type        URLCacheType
	KeyHash     string
	ProcessorID uuid.UUID
	URL         string
	ExpiredAt   time.Time
	CreatedAt   time.Time
}

// NewPaymentURLCache stores url under the hash of key until expiredAt.
func NewPaymentURLCache(typ URLCacheType, key string, processorID uuid.UUID, url string, expiredAt time.Time) *PaymentURLCache {
	return &PaymentURLCache{
		ID:          uuid.New(),
		Type:        typ,
		KeyHash:     HashCacheKey(key),
		ProcessorID: processorID,
		URL:         url,
		ExpiredAt:   expiredAt,
		CreatedAt:   time.Now(),
	}
}

// Fresh reports whether the entry is still usable at now.
func (c *PaymentURLCache) Fresh(now time.Time) bool {
	return now.Before(c.ExpiredAt)
}

// CacheKey builds the human-readable composite key for a flow.
func CacheKey(parts ...string) string {
	return strings.Join(parts, "/")
}

// HashCacheKey hashes the composite key so identifiers are never stored
// in guessable form.
func HashCacheKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
