package idempotency

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	redisadapter "github.com/robertarktes/virtual-waiting-room/internal/adapters/redis"
)

// Store persists claimed keys and their responses. Implemented by the
// redis adapter.
type Store interface {
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (*redisadapter.IdempResponse, error)
	Set(ctx context.Context, key string, resp redisadapter.IdempResponse, ttl time.Duration) error
	Forget(ctx context.Context, key string) error
}

type Outcome int

const (
	// Proceed means the caller owns the key and must Complete or Abandon it.
	Proceed Outcome = iota
	// Replay means a stored response is available.
	Replay
	// InFlight means another request with the same key has not finished.
	InFlight
)

type Response struct {
	Status      int
	ContentType string
	Result      []byte
}

type Idempotency struct {
	store Store
	ttl   time.Duration
}

func NewIdempotency(store Store, ttl time.Duration) *Idempotency {
	return &Idempotency{store: store, ttl: ttl}
}

func (i *Idempotency) Begin(ctx context.Context, key string) (Outcome, *Response, error) {
	ok, err := i.store.Reserve(ctx, key, i.ttl)
	if err != nil {
		return Proceed, nil, errors.Wrap(err, "idempotency: reserve")
	}
	if ok {
		return Proceed, nil, nil
	}

	stored, err := i.store.Get(ctx, key)
	if err != nil {
		return Proceed, nil, errors.Wrap(err, "idempotency: load")
	}
	// expired between reserve and get; try once more
	if stored == nil {
		ok, err := i.store.Reserve(ctx, key, i.ttl)
		if err != nil {
			return Proceed, nil, errors.Wrap(err, "idempotency: reserve")
		}
		if ok {
			return Proceed, nil, nil
		}
		return InFlight, nil, nil
	}
	if stored.Pending {
		return InFlight, nil, nil
	}
	return Replay, &Response{Status: stored.Status, ContentType: stored.ContentType, Result: stored.Result}, nil
}

func (i *Idempotency) Complete(ctx context.Context, key string, resp Response) error {
	return i.store.Set(ctx, key, redisadapter.IdempResponse{
		Status:      resp.Status,
		ContentType: resp.ContentType,
		Result:      resp.Result,
	}, i.ttl)
}

// Abandon releases a claimed key so the client can retry.
func (i *Idempotency) Abandon(ctx context.Context, key string) error {
	return i.store.Forget(ctx, key)
}
