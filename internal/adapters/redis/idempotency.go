package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

type Idempotency struct {
	client *redis.Client
}

func NewIdempotency(client *redis.Client) *Idempotency {
	return &Idempotency{client: client}
}

// IdempResponse is a stored response. Pending marks a key whose first
// request has not finished yet.
type IdempResponse struct {
	Pending     bool   `json:"pending,omitempty"`
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Result      []byte `json:"result,omitempty"`
}

var pendingMarker, _ = json.Marshal(IdempResponse{Pending: true})

// Reserve claims key for a new request. It returns false when the key is
// already claimed or completed.
func (i *Idempotency) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := i.client.SetNX(ctx, idempotencyKey(key), pendingMarker, ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis: reserve idempotency key")
	}
	return ok, nil
}

func (i *Idempotency) Get(ctx context.Context, key string) (*IdempResponse, error) {
	val, err := i.client.Get(ctx, idempotencyKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis: get idempotency key")
	}
	var resp IdempResponse
	if err := json.Unmarshal(val, &resp); err != nil {
		return nil, errors.Wrap(err, "redis: decode idempotent response")
	}
	return &resp, nil
}

func (i *Idempotency) Set(ctx context.Context, key string, resp IdempResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return errors.Wrap(err, "redis: encode idempotent response")
	}
	if err := i.client.Set(ctx, idempotencyKey(key), data, ttl).Err(); err != nil {
		return errors.Wrap(err, "redis: store idempotent response")
	}
	return nil
}

func (i *Idempotency) Forget(ctx context.Context, key string) error {
	if err := i.client.Del(ctx, idempotencyKey(key)).Err(); err != nil {
		return errors.Wrap(err, "redis: forget idempotency key")
	}
	return nil
}
