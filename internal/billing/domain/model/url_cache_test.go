package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCacheKeyHashing(t *testing.T) {
	key := CacheKey("subscribe", "plan-1", "proc-1", "user-1")
	assert.Equal(t, "subscribe/plan-1/proc-1/user-1", key)

	hash := HashCacheKey(key)
	assert.Len(t, hash, 64)
	assert.NotContains(t, hash, "plan-1")
	assert.Equal(t, hash, HashCacheKey(key))
	assert.NotEqual(t, hash, HashCacheKey(CacheKey("subscribe", "plan-2", "proc-1", "user-1")))
}

func TestPaymentURLCacheFreshness(t *testing.T) {
	now := time.Now()
	entry := NewPaymentURLCache(URLCacheSubscribe, "k", uuid.New(), "https://pay.example.com/x", now.Add(time.Minute))

	assert.Equal(t, HashCacheKey("k"), entry.KeyHash)
	assert.True(t, entry.Fresh(now))
	assert.False(t, entry.Fresh(now.Add(time.Minute)))
	assert.False(t, entry.Fresh(now.Add(2*time.Minute)))
}
