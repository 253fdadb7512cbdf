package queue

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/virtual-waiting-room/internal/domain"
	"github.com/robertarktes/virtual-waiting-room/internal/observability"
	"go.opentelemetry.io/otel/attribute"
)

// Handoff turns an exchange token into a reservation session exactly once.
type Handoff struct {
	exchanges ExchangeStore
	sessions  SessionStore
	states    StateStore
	sink      EventSink
	ttl       time.Duration
	logger    observability.Logger
	now       func() time.Time
}

func NewHandoff(exchanges ExchangeStore, sessions SessionStore, states StateStore, sink EventSink, reservationTTL time.Duration, logger observability.Logger) *Handoff {
	if sink == nil {
		sink = DiscardSink{}
	}
	return &Handoff{
		exchanges: exchanges,
		sessions:  sessions,
		states:    states,
		sink:      sink,
		ttl:       reservationTTL,
		logger:    logger,
		now:       time.Now,
	}
}

func (h *Handoff) Redeem(ctx context.Context, exchangeToken string) (domain.ReservationSession, error) {
	ctx, span := observability.Tracer("handoff").Start(ctx, "handoff.Redeem")
	defer span.End()

	if exchangeToken == "" {
		observability.RedeemTotal.WithLabelValues("invalid").Inc()
		return domain.ReservationSession{}, domain.ErrInvalidOrExpiredExchangeToken
	}

	x, err := h.exchanges.Take(ctx, exchangeToken)
	if errors.Is(err, domain.ErrNotFound) {
		observability.RedeemTotal.WithLabelValues("invalid").Inc()
		return domain.ReservationSession{}, domain.ErrInvalidOrExpiredExchangeToken
	}
	if err != nil {
		observability.RedeemTotal.WithLabelValues("error").Inc()
		return domain.ReservationSession{}, errors.Wrap(err, "redeem: take exchange token")
	}
	span.SetAttributes(attribute.String("event.id", x.EventID))

	now := h.now()
	session := domain.ReservationSession{
		ID:         uuid.NewString(),
		QueueToken: x.QueueToken,
		UserID:     x.UserID,
		EventID:    x.EventID,
		StartedAt:  now,
		ExpiresAt:  now.Add(h.ttl),
	}
	if err := h.sessions.Create(ctx, session, h.ttl); err != nil {
		observability.RedeemTotal.WithLabelValues("error").Inc()
		h.dropAdmission(ctx, x, now, err)
		return domain.ReservationSession{}, errors.Wrap(err, "redeem: create session")
	}

	log := h.logger.WithFields(map[string]interface{}{
		"queue_token":    x.QueueToken,
		"reservation_id": session.ID,
	})
	rec := domain.TokenRecord{
		State:         domain.StateConsumed,
		EventID:       x.EventID,
		UserID:        x.UserID,
		ReservationID: session.ID,
		UpdatedAt:     now,
	}
	if err := h.states.SetState(ctx, x.QueueToken, rec, h.ttl); err != nil {
		log.WithError(err).Error("failed to mark queue token consumed, status still shows the redeemed exchange token")
	}
	if err := h.sink.Emit(ctx, domain.NewReservationStartedEvent(session)); err != nil {
		log.WithError(err).Warn("failed to emit reservation started event")
	}

	observability.RedeemTotal.WithLabelValues("ok").Inc()
	return session, nil
}

// dropAdmission records that the exchange token was spent without a
// session, so status stops advertising it.
func (h *Handoff) dropAdmission(ctx context.Context, x domain.ExchangeToken, now time.Time, cause error) {
	log := h.logger.WithError(cause).WithFields(map[string]interface{}{
		"queue_token": x.QueueToken,
		"event_id":    x.EventID,
	})
	log.Error("admission lost: exchange token taken but session not created")

	rec := domain.TokenRecord{
		State:     domain.StateExpired,
		EventID:   x.EventID,
		UserID:    x.UserID,
		UpdatedAt: now,
	}
	if err := h.states.SetState(ctx, x.QueueToken, rec, h.ttl); err != nil {
		log.WithError(err).Error("failed to clear exchange token from queue token state")
	}
}

// Reservation returns a live session and its remaining lifetime.
func (h *Handoff) Reservation(ctx context.Context, id string) (domain.ReservationSession, time.Duration, error) {
	if id == "" {
		return domain.ReservationSession{}, 0, domain.ErrReservationNotFound
	}
	s, ttl, err := h.sessions.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ReservationSession{}, 0, domain.ErrReservationNotFound
	}
	if err != nil {
		return domain.ReservationSession{}, 0, errors.Wrap(err, "reservation: get session")
	}
	return s, ttl, nil
}

// Complete ends a session once the booking collaborator is done with it.
func (h *Handoff) Complete(ctx context.Context, id string) error {
	if id == "" {
		return domain.MissingField("reservationId")
	}
	err := h.sessions.Delete(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrReservationNotFound
	}
	if err != nil {
		return errors.Wrap(err, "complete: delete session")
	}
	h.logger.WithField("reservation_id", id).Info("reservation completed")
	return nil
}
