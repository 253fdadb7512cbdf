package domain

import (
	"time"
)

type TokenState string

const (
	StateWaiting  TokenState = "WAITING"
	StateAdmitted TokenState = "ADMITTED"
	StateExpired  TokenState = "EXPIRED"
	StateConsumed TokenState = "CONSUMED"
)

// QueueToken is one client's place in one event's line. Seq is the
// join-sequence allocated by the ledger and orders admission.
type QueueToken struct {
	ID        string
	UserID    string
	EventID   string
	Seq       int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

// TokenRecord is the value held by the token state store.
type TokenRecord struct {
	State         TokenState
	EventID       string
	UserID        string
	ExchangeToken string
	ReservationID string
	UpdatedAt     time.Time
}

type ExchangeToken struct {
	ID         string    `json:"id"`
	QueueToken string    `json:"queue_token"`
	UserID     string    `json:"user_id"`
	EventID    string    `json:"event_id"`
	AdmittedAt time.Time `json:"admitted_at"`
}

type ReservationSession struct {
	ID         string    `json:"id"`
	QueueToken string    `json:"queue_token"`
	UserID     string    `json:"user_id"`
	EventID    string    `json:"event_id"`
	StartedAt  time.Time `json:"started_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// StatusView is the normalized answer to a status query. Pointer fields
// are nil when they do not apply to the token's current state.
type StatusView struct {
	QueueToken       string
	State            TokenState
	Position         *int64
	EstimatedWaitSec *int64
	ExpiresIn        time.Duration
	ExchangeToken    *string
}
