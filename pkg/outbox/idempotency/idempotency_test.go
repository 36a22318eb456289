package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	keys map[string]time.Duration
}

func (m *memStore) Get(_ context.Context, key string) (string, error) {
	if _, ok := m.keys[key]; ok {
		return "1", nil
	}
	return "", nil
}

func (m *memStore) SetNX(_ context.Context, key string, _ any, ttl time.Duration) (bool, error) {
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = ttl
	return true, nil
}

func (m *memStore) Set(_ context.Context, key string, _ any, ttl time.Duration) error {
	m.keys[key] = ttl
	return nil
}

func (m *memStore) IdempotencyKey(scope, id string) string {
	return "shopcore:idempotency:" + scope + ":" + id
}

func (m *memStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.keys, k)
	}
	return nil
}

func TestClaimOncePerConsumer(t *testing.T) {
	store := &memStore{keys: map[string]time.Duration{}}
	guard, err := NewGuard(store, 0)
	require.NoError(t, err)
	ctx := context.Background()
	id := uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")

	first, err := guard.Claim(ctx, "customer-inbox", id)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := guard.Claim(ctx, "customer-inbox", id)
	require.NoError(t, err)
	assert.False(t, again)

	other, err := guard.Claim(ctx, "audit", id)
	require.NoError(t, err)
	assert.True(t, other)

	assert.Equal(t, DefaultTTL, store.keys["shopcore:idempotency:evt:customer-inbox:"+id.String()])
}

func TestReleaseAllowsRetry(t *testing.T) {
	guard, err := NewGuard(&memStore{keys: map[string]time.Duration{}}, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()
	id := uuid.New()

	_, err = guard.Claim(ctx, "customer-inbox", id)
	require.NoError(t, err)
	require.NoError(t, guard.Release(ctx, "customer-inbox", id))

	claimed, err := guard.Claim(ctx, "customer-inbox", id)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestClaimValidatesInput(t *testing.T) {
	guard, err := NewGuard(&memStore{keys: map[string]time.Duration{}}, time.Hour)
	require.NoError(t, err)
	_, err = guard.Claim(context.Background(), "", uuid.New())
	assert.Error(t, err)
	_, err = guard.Claim(context.Background(), "customer-inbox", uuid.Nil)
	assert.Error(t, err)

	_, err = NewGuard(nil, time.Hour)
	assert.Error(t, err)
}
