package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/robertarktes/virtual-waiting-room/internal/domain"
)

// enterScript allocates the join sequence and records the token in one
// round trip. The sequence key never expires.
//
// KEYS: seq, ledger, token meta, events
// ARGV: token, event, user, created_ms, expires_ms, ttl_ms
var enterScript = redis.NewScript(`
local seq = redis.call('INCR', KEYS[1])
redis.call('ZADD', KEYS[2], seq, ARGV[1])
redis.call('HSET', KEYS[3], 'event_id', ARGV[2], 'user_id', ARGV[3], 'seq', seq, 'created_at', ARGV[4], 'expires_at', ARGV[5])
redis.call('PEXPIRE', KEYS[3], ARGV[6])
redis.call('PEXPIRE', KEYS[2], ARGV[6])
redis.call('SADD', KEYS[4], ARGV[2])
return seq
`)

func (s *Store) Enter(ctx context.Context, t *domain.QueueToken, ttl time.Duration) error {
	keys := []string{seqKey(t.EventID), ledgerKey(t.EventID), tokenKey(t.ID), eventsKey}
	seq, err := enterScript.Run(ctx, s.client, keys,
		t.ID, t.EventID, t.UserID,
		t.CreatedAt.UnixMilli(), t.ExpiresAt.UnixMilli(), ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return errors.Wrap(err, "redis: enter ledger")
	}
	t.Seq = seq
	return nil
}

func (s *Store) Rank(ctx context.Context, eventID, token string) (int64, error) {
	rank, err := s.client.ZRank(ctx, ledgerKey(eventID), token).Result()
	if errors.Is(err, redis.Nil) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, errors.Wrap(err, "redis: rank")
	}
	return rank + 1, nil
}

func (s *Store) Size(ctx context.Context, eventID string) (int64, error) {
	n, err := s.client.ZCard(ctx, ledgerKey(eventID)).Result()
	if err != nil {
		return 0, errors.Wrap(err, "redis: ledger size")
	}
	return n, nil
}

func (s *Store) PopOldest(ctx context.Context, eventID string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	zs, err := s.client.ZPopMin(ctx, ledgerKey(eventID), int64(n)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis: pop oldest")
	}
	tokens := make([]string, 0, len(zs))
	for _, z := range zs {
		if member, ok := z.Member.(string); ok {
			tokens = append(tokens, member)
		}
	}
	return tokens, nil
}

func (s *Store) Lookup(ctx context.Context, token string) (domain.QueueToken, error) {
	fields, err := s.client.HGetAll(ctx, tokenKey(token)).Result()
	if err != nil {
		return domain.QueueToken{}, errors.Wrap(err, "redis: lookup token")
	}
	if len(fields) == 0 {
		return domain.QueueToken{}, domain.ErrNotFound
	}
	seq, err := strconv.ParseInt(fields["seq"], 10, 64)
	if err != nil {
		return domain.QueueToken{}, errors.Wrapf(err, "redis: token %s has bad seq", token)
	}
	return domain.QueueToken{
		ID:        token,
		UserID:    fields["user_id"],
		EventID:   fields["event_id"],
		Seq:       seq,
		CreatedAt: parseMillis(fields["created_at"]),
		ExpiresAt: parseMillis(fields["expires_at"]),
	}, nil
}

func (s *Store) Events(ctx context.Context) ([]string, error) {
	events, err := s.client.SMembers(ctx, eventsKey).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis: list events")
	}
	return events, nil
}

func parseMillis(v string) time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
