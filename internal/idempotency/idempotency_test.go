package idempotency_test

import (
	"context"
	"sync"
	"testing"
	"time"

	redisadapter "github.com/robertarktes/virtual-waiting-room/internal/adapters/redis"
	"github.com/robertarktes/virtual-waiting-room/internal/idempotency"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu   sync.Mutex
	data map[string]redisadapter.IdempResponse
}

func newMemStore() *memStore {
	return &memStore{data: map[string]redisadapter.IdempResponse{}}
}

func (m *memStore) Reserve(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = redisadapter.IdempResponse{Pending: true}
	return true, nil
}

func (m *memStore) Get(_ context.Context, key string) (*redisadapter.IdempResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *memStore) Set(_ context.Context, key string, resp redisadapter.IdempResponse, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = resp
	return nil
}

func (m *memStore) Forget(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func TestIdempotency_Lifecycle(t *testing.T) {
	idemp := idempotency.NewIdempotency(newMemStore(), time.Hour)
	ctx := context.Background()

	outcome, _, err := idemp.Begin(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, idempotency.Proceed, outcome)

	outcome, _, err = idemp.Begin(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, idempotency.InFlight, outcome)

	require.NoError(t, idemp.Complete(ctx, "k1", idempotency.Response{Status: 201, ContentType: "application/json", Result: []byte(`{}`)}))

	outcome, resp, err := idemp.Begin(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, idempotency.Replay, outcome)
	require.NotNil(t, resp)
	assert.Equal(t, 201, resp.Status)
	assert.Equal(t, "application/json", resp.ContentType)
}

func TestIdempotency_AbandonAllowsRetry(t *testing.T) {
	idemp := idempotency.NewIdempotency(newMemStore(), time.Hour)
	ctx := context.Background()

	outcome, _, err := idemp.Begin(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, idempotency.Proceed, outcome)
	require.NoError(t, idemp.Abandon(ctx, "k1"))

	outcome, _, err = idemp.Begin(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, idempotency.Proceed, outcome)
}
