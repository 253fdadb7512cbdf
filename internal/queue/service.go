package queue

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/virtual-waiting-room/internal/config"
	"github.com/robertarktes/virtual-waiting-room/internal/domain"
	"github.com/robertarktes/virtual-waiting-room/internal/observability"
	"go.opentelemetry.io/otel/attribute"
)

type Settings struct {
	BatchSize      int
	BatchInterval  time.Duration
	AdmissionTTL   time.Duration
	ReservationTTL time.Duration
	EntryTTL       time.Duration
}

// EnterResult is what a client learns on joining the line.
type EnterResult struct {
	Token     domain.QueueToken
	Position  *int64
	ExpiresIn time.Duration
}

type Service struct {
	ledger   Ledger
	states   StateStore
	sink     EventSink
	settings Settings
	logger   observability.Logger
	now      func() time.Time
}

func NewService(ledger Ledger, states StateStore, sink EventSink, settings Settings, logger observability.Logger) *Service {
	if sink == nil {
		sink = DiscardSink{}
	}
	return &Service{
		ledger:   ledger,
		states:   states,
		sink:     sink,
		settings: settings,
		logger:   logger,
		now:      time.Now,
	}
}

// Enter issues a new queue token for userID on eventID and places it at
// the tail of the event's line.
func (s *Service) Enter(ctx context.Context, userID, eventID string) (EnterResult, error) {
	ctx, span := observability.Tracer("queue").Start(ctx, "queue.Enter")
	defer span.End()

	if userID == "" {
		return EnterResult{}, domain.MissingField("userId")
	}
	if eventID == "" {
		return EnterResult{}, domain.MissingField("eventId")
	}
	span.SetAttributes(attribute.String("event.id", eventID))

	now := s.now()
	token := domain.QueueToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		EventID:   eventID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.settings.EntryTTL),
	}

	// The state record goes first so a sweep that pops the entry right away
	// finds it WAITING.
	rec := domain.TokenRecord{
		State:     domain.StateWaiting,
		EventID:   eventID,
		UserID:    userID,
		UpdatedAt: now,
	}
	if err := s.states.SetState(ctx, token.ID, rec, s.settings.EntryTTL); err != nil {
		return EnterResult{}, errors.Wrap(err, "enter: write state")
	}
	if err := s.ledger.Enter(ctx, &token, s.settings.EntryTTL); err != nil {
		return EnterResult{}, errors.Wrap(err, "enter: append to ledger")
	}

	res := EnterResult{Token: token, ExpiresIn: s.settings.EntryTTL}
	pos, err := s.ledger.Rank(ctx, eventID, token.ID)
	switch {
	case err == nil:
		res.Position = &pos
	case errors.Is(err, domain.ErrNotFound):
		// already popped by a concurrent sweep
	default:
		return EnterResult{}, errors.Wrap(err, "enter: rank")
	}

	observability.EnterTotal.Inc()
	if err := s.sink.Emit(ctx, domain.NewEnteredEvent(token)); err != nil {
		s.logger.WithError(err).WithField("queue_token", token.ID).Warn("failed to emit entered event")
	}
	return res, nil
}

// Status reports the current state of a queue token.
func (s *Service) Status(ctx context.Context, token string) (domain.StatusView, error) {
	ctx, span := observability.Tracer("queue").Start(ctx, "queue.Status")
	defer span.End()

	if token == "" {
		return domain.StatusView{}, domain.ErrTokenNotFound
	}

	rec, ttl, err := s.states.GetState(ctx, token)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.StatusView{}, domain.ErrTokenNotFound
	}
	if err != nil {
		return domain.StatusView{}, errors.Wrap(err, "status: read state")
	}

	view := domain.StatusView{QueueToken: token, State: rec.State, ExpiresIn: ttl}
	span.SetAttributes(attribute.String("token.state", string(rec.State)))

	switch rec.State {
	case domain.StateWaiting:
		meta, err := s.ledger.Lookup(ctx, token)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.StatusView{}, domain.ErrTokenNotFound
		}
		if err != nil {
			return domain.StatusView{}, errors.Wrap(err, "status: lookup token")
		}
		pos, err := s.ledger.Rank(ctx, meta.EventID, token)
		switch {
		case err == nil:
			view.Position = &pos
			view.EstimatedWaitSec = domain.EstimateWait(pos, s.settings.BatchSize, s.settings.BatchInterval)
		case errors.Is(err, domain.ErrNotFound):
			// popped but not yet admitted
		default:
			return domain.StatusView{}, errors.Wrap(err, "status: rank")
		}
	case domain.StateAdmitted:
		if rec.ExchangeToken != "" {
			x := rec.ExchangeToken
			view.ExchangeToken = &x
		}
	}
	return view, nil
}

func (s *Service) Depth(ctx context.Context, eventID string) (int64, error) {
	if eventID == "" {
		return 0, domain.MissingField("eventId")
	}
	n, err := s.ledger.Size(ctx, eventID)
	if err != nil {
		return 0, errors.Wrap(err, "depth")
	}
	return n, nil
}

func (s *Service) Events(ctx context.Context) ([]string, error) {
	events, err := s.ledger.Events(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "events")
	}
	return events, nil
}

func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		BatchSize:      cfg.BatchSize,
		BatchInterval:  cfg.BatchInterval,
		AdmissionTTL:   cfg.AdmissionTTL,
		ReservationTTL: cfg.ReservationTTL,
		EntryTTL:       cfg.QueueEntryTTL,
	}
}
