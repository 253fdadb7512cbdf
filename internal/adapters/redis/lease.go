package redis

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var renewScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// Lease is a single-holder lock on the admission sweep. Only the holder
// that acquired it can renew or release it.
type Lease struct {
	client *redis.Client
	holder string
	ttl    time.Duration
}

func NewLease(client *redis.Client, ttl time.Duration) *Lease {
	return &Lease{client: client, holder: uuid.NewString(), ttl: ttl}
}

func (l *Lease) Holder() string {
	return l.holder
}

func (l *Lease) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, leaseKey, l.holder, l.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis: acquire lease")
	}
	return ok, nil
}

func (l *Lease) Renew(ctx context.Context) (bool, error) {
	n, err := renewScript.Run(ctx, l.client, []string{leaseKey}, l.holder, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, errors.Wrap(err, "redis: renew lease")
	}
	return n == 1, nil
}

func (l *Lease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{leaseKey}, l.holder).Err(); err != nil {
		return errors.Wrap(err, "redis: release lease")
	}
	return nil
}
