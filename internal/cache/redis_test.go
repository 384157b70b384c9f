package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vallemarketing/valle360-teste-sub009/config"
)

func TestDisabledCache(t *testing.T) {
	c, err := NewRedisCache(config.RedisConfig{Enabled: false})
	require.NoError(t, err)
	assert.False(t, c.Enabled())

	ctx := context.Background()
	var out string
	assert.ErrorIs(t, c.Get(ctx, "k", &out), ErrCacheMiss)
	assert.NoError(t, c.Set(ctx, "k", "v", time.Minute))

	lock, err := c.AcquireLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, lock, "disabled cache grants every lock")
	assert.NoError(t, c.ReleaseLock(ctx, lock))
	assert.NoError(t, c.Ping(ctx))
	assert.NoError(t, c.Close())
}

func TestKeys(t *testing.T) {
	id := uuid.MustParse("0b7d3a52-8f0e-4c69-9b6a-2e1f4d5c6b7a")
	assert.Equal(t, "saga:lock:0b7d3a52-8f0e-4c69-9b6a-2e1f4d5c6b7a:signed", SagaLockKey(id, "signed"))
	assert.Equal(t, "saga:done:0b7d3a52-8f0e-4c69-9b6a-2e1f4d5c6b7a:signed", SagaDoneKey(id, "signed"))
}
