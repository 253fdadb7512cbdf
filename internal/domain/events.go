package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventQueueEntered        = "queue.entered"
	EventTokenAdmitted       = "queue.admitted"
	EventReservationStarted  = "reservation.started"
	EventReservationComplete = "reservation.completed"
)

// Event is a fact about the queue that downstream collaborators may care
// about. AggregateID is the queue token or reservation it concerns.
type Event struct {
	ID          uuid.UUID
	Type        string
	AggregateID string
	UserID      string
	EventID     string
	OccurredAt  time.Time
	Payload     map[string]interface{}
}

func NewAdmittedEvent(x ExchangeToken) Event {
	return Event{
		ID:          uuid.New(),
		Type:        EventTokenAdmitted,
		AggregateID: x.QueueToken,
		UserID:      x.UserID,
		EventID:     x.EventID,
		OccurredAt:  x.AdmittedAt,
		Payload: map[string]interface{}{
			"queue_token": x.QueueToken,
			"event_id":    x.EventID,
			"admitted_at": x.AdmittedAt.Format(time.RFC3339Nano),
		},
	}
}

func NewEnteredEvent(t QueueToken) Event {
	return Event{
		ID:          uuid.New(),
		Type:        EventQueueEntered,
		AggregateID: t.ID,
		UserID:      t.UserID,
		EventID:     t.EventID,
		OccurredAt:  t.CreatedAt,
		Payload: map[string]interface{}{
			"queue_token": t.ID,
			"event_id":    t.EventID,
			"seq":         t.Seq,
		},
	}
}

func NewReservationStartedEvent(s ReservationSession) Event {
	return Event{
		ID:          uuid.New(),
		Type:        EventReservationStarted,
		AggregateID: s.ID,
		UserID:      s.UserID,
		EventID:     s.EventID,
		OccurredAt:  s.StartedAt,
		Payload: map[string]interface{}{
			"reservation_id": s.ID,
			"queue_token":    s.QueueToken,
			"user_id":        s.UserID,
			"event_id":       s.EventID,
			"expires_at":     s.ExpiresAt.Format(time.RFC3339Nano),
		},
	}
}
