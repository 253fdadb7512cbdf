package queue

import (
	"context"
	"time"

	"github.com/robertarktes/virtual-waiting-room/internal/domain"
)

// Ledger keeps the per-event line of waiting tokens ordered by join sequence.
type Ledger interface {
	// Enter allocates the token's Seq and appends it to its event's line.
	Enter(ctx context.Context, token *domain.QueueToken, ttl time.Duration) error
	// Rank returns the 1-based position of token, or domain.ErrNotFound.
	Rank(ctx context.Context, eventID, token string) (int64, error)
	Size(ctx context.Context, eventID string) (int64, error)
	// PopOldest atomically removes and returns up to n tokens in join order.
	PopOldest(ctx context.Context, eventID string, n int) ([]string, error)
	Lookup(ctx context.Context, token string) (domain.QueueToken, error)
	Events(ctx context.Context) ([]string, error)
}

type StateStore interface {
	SetState(ctx context.Context, token string, rec domain.TokenRecord, ttl time.Duration) error
	// GetState returns the record and its remaining lifetime, or domain.ErrNotFound.
	GetState(ctx context.Context, token string) (domain.TokenRecord, time.Duration, error)
}

type ExchangeStore interface {
	Put(ctx context.Context, x domain.ExchangeToken, ttl time.Duration) error
	// Take reads and deletes the exchange token in one step.
	Take(ctx context.Context, id string) (domain.ExchangeToken, error)
}

type SessionStore interface {
	Create(ctx context.Context, s domain.ReservationSession, ttl time.Duration) error
	Get(ctx context.Context, id string) (domain.ReservationSession, time.Duration, error)
	Delete(ctx context.Context, id string) error
}

// Locker guards the admission sweep across processes.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Renew(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type EventSink interface {
	Emit(ctx context.Context, e domain.Event) error
}
