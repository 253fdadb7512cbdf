package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/robertarktes/virtual-waiting-room/internal/domain"
)

// Store keeps all queue state in Redis: the per-event ledgers, token
// state records, exchange tokens and reservation sessions.
type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) SetState(ctx context.Context, token string, rec domain.TokenRecord, ttl time.Duration) error {
	key := stateKey(token)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"state", string(rec.State),
			"event_id", rec.EventID,
			"user_id", rec.UserID,
			"exchange_token", rec.ExchangeToken,
			"reservation_id", rec.ReservationID,
			"updated_at", strconv.FormatInt(rec.UpdatedAt.UnixMilli(), 10),
		)
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "redis: set state")
	}
	return nil
}

func (s *Store) GetState(ctx context.Context, token string) (domain.TokenRecord, time.Duration, error) {
	key := stateKey(token)
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.TokenRecord{}, 0, errors.Wrap(err, "redis: get state")
	}
	if len(fields) == 0 {
		return domain.TokenRecord{}, 0, domain.ErrNotFound
	}
	ttl, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return domain.TokenRecord{}, 0, errors.Wrap(err, "redis: state ttl")
	}
	// -2 means the key expired between the two reads
	if ttl == -2 {
		return domain.TokenRecord{}, 0, domain.ErrNotFound
	}
	if ttl < 0 {
		ttl = 0
	}
	return domain.TokenRecord{
		State:         domain.TokenState(fields["state"]),
		EventID:       fields["event_id"],
		UserID:        fields["user_id"],
		ExchangeToken: fields["exchange_token"],
		ReservationID: fields["reservation_id"],
		UpdatedAt:     parseMillis(fields["updated_at"]),
	}, ttl, nil
}

func (s *Store) Put(ctx context.Context, x domain.ExchangeToken, ttl time.Duration) error {
	data, err := json.Marshal(x)
	if err != nil {
		return errors.Wrap(err, "redis: encode exchange token")
	}
	if err := s.client.Set(ctx, exchangeKey(x.ID), data, ttl).Err(); err != nil {
		return errors.Wrap(err, "redis: put exchange token")
	}
	return nil
}

// Take redeems an exchange token with GETDEL, so concurrent callers never
// both see the payload.
func (s *Store) Take(ctx context.Context, id string) (domain.ExchangeToken, error) {
	data, err := s.client.GetDel(ctx, exchangeKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ExchangeToken{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.ExchangeToken{}, errors.Wrap(err, "redis: take exchange token")
	}
	var x domain.ExchangeToken
	if err := json.Unmarshal(data, &x); err != nil {
		return domain.ExchangeToken{}, errors.Wrap(err, "redis: decode exchange token")
	}
	return x, nil
}

func (s *Store) Create(ctx context.Context, session domain.ReservationSession, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(err, "redis: encode reservation")
	}
	if err := s.client.Set(ctx, reservationKey(session.ID), data, ttl).Err(); err != nil {
		return errors.Wrap(err, "redis: create reservation")
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (domain.ReservationSession, time.Duration, error) {
	key := reservationKey(id)
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ReservationSession{}, 0, domain.ErrNotFound
	}
	if err != nil {
		return domain.ReservationSession{}, 0, errors.Wrap(err, "redis: get reservation")
	}
	var session domain.ReservationSession
	if err := json.Unmarshal(data, &session); err != nil {
		return domain.ReservationSession{}, 0, errors.Wrap(err, "redis: decode reservation")
	}
	ttl, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return domain.ReservationSession{}, 0, errors.Wrap(err, "redis: reservation ttl")
	}
	if ttl < 0 {
		ttl = 0
	}
	return session, ttl, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, reservationKey(id)).Result()
	if err != nil {
		return errors.Wrap(err, "redis: delete reservation")
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
