package queue

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/virtual-waiting-room/internal/domain"
	"github.com/robertarktes/virtual-waiting-room/internal/observability"
	"go.opentelemetry.io/otel/attribute"
)

// SweepReport summarizes one admission sweep.
type SweepReport struct {
	Skipped  string
	Events   int
	Admitted int
	Stale    int
	Failed   int
}

// Scheduler periodically promotes the oldest waiting tokens of every event
// to ADMITTED.
type Scheduler struct {
	ledger    Ledger
	states    StateStore
	exchanges ExchangeStore
	lock      Locker
	sink      EventSink
	settings  Settings
	logger    observability.Logger
	now       func() time.Time

	running atomic.Bool
	cursor  atomic.Uint64
}

func NewScheduler(ledger Ledger, states StateStore, exchanges ExchangeStore, lock Locker, sink EventSink, settings Settings, logger observability.Logger) *Scheduler {
	if sink == nil {
		sink = DiscardSink{}
	}
	return &Scheduler{
		ledger:    ledger,
		states:    states,
		exchanges: exchanges,
		lock:      lock,
		sink:      sink,
		settings:  settings,
		logger:    logger,
		now:       time.Now,
	}
}

// Run sweeps every BatchInterval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.WithFields(map[string]interface{}{
		"batch_size":     s.settings.BatchSize,
		"batch_interval": s.settings.BatchInterval.String(),
	}).Info("admission scheduler started")

	ticker := time.NewTicker(s.settings.BatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("admission scheduler stopped")
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.logger.WithError(err).Error("admission sweep failed")
			}
		}
	}
}

// Sweep runs one admission pass unless another is in progress locally or
// another process holds the scheduler lease.
func (s *Scheduler) Sweep(ctx context.Context) (SweepReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		observability.SweepSkippedTotal.WithLabelValues("overlap").Inc()
		return SweepReport{Skipped: "overlap"}, nil
	}
	defer s.running.Store(false)

	ok, err := s.lock.Acquire(ctx)
	if err != nil {
		return SweepReport{}, errors.Wrap(err, "sweep: acquire lease")
	}
	if !ok {
		observability.SweepSkippedTotal.WithLabelValues("lease_held").Inc()
		return SweepReport{Skipped: "lease_held"}, nil
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.WithError(err).Warn("failed to release scheduler lease")
		}
	}()

	ctx, span := observability.Tracer("scheduler").Start(ctx, "scheduler.Sweep")
	defer span.End()
	start := s.now()
	defer func() { observability.SweepDuration.Observe(s.now().Sub(start).Seconds()) }()

	events, err := s.ledger.Events(ctx)
	if err != nil {
		return SweepReport{}, errors.Wrap(err, "sweep: list events")
	}

	// set members come back in no stable order
	sort.Strings(events)

	var report SweepReport
	offset := 0
	if n := len(events); n > 0 {
		offset = int(s.cursor.Add(1)-1) % n
	}
	for i := range events {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		eventID := events[(offset+i)%len(events)]
		s.sweepEvent(ctx, eventID, &report)
		report.Events++

		held, err := s.lock.Renew(ctx)
		if err != nil {
			return report, errors.Wrap(err, "sweep: renew lease")
		}
		if !held {
			return report, domain.ErrLeaseLost
		}
	}

	span.SetAttributes(
		attribute.Int("sweep.events", report.Events),
		attribute.Int("sweep.admitted", report.Admitted),
	)
	if report.Admitted > 0 || report.Stale > 0 || report.Failed > 0 {
		s.logger.WithFields(map[string]interface{}{
			"events":   report.Events,
			"admitted": report.Admitted,
			"stale":    report.Stale,
			"failed":   report.Failed,
		}).Info("admission sweep finished")
	}
	return report, nil
}

func (s *Scheduler) sweepEvent(ctx context.Context, eventID string, report *SweepReport) {
	log := s.logger.WithField("event_id", eventID)

	size, err := s.ledger.Size(ctx, eventID)
	if err != nil {
		log.WithError(err).Error("failed to read queue depth")
		return
	}
	observability.QueueDepth.WithLabelValues(eventID).Set(float64(size))
	if size == 0 {
		return
	}

	tokens, err := s.ledger.PopOldest(ctx, eventID, s.settings.BatchSize)
	if err != nil {
		log.WithError(err).Error("failed to pop waiting tokens")
		return
	}

	for _, token := range tokens {
		admitted, err := s.admit(ctx, eventID, token)
		switch {
		case err != nil:
			report.Failed++
			log.WithError(err).WithField("queue_token", token).Error("failed to admit token")
		case admitted:
			report.Admitted++
			observability.AdmittedTotal.WithLabelValues(eventID).Inc()
		default:
			report.Stale++
			observability.StaleDiscardedTotal.WithLabelValues(eventID).Inc()
		}
	}
	observability.QueueDepth.WithLabelValues(eventID).Set(float64(size - int64(len(tokens))))
}

// admit promotes one popped token. It reports false without error when the
// token is stale and was dropped.
func (s *Scheduler) admit(ctx context.Context, eventID, token string) (admitted bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			admitted = false
			err = errors.Newf("panic admitting token: %v", r)
		}
	}()

	meta, err := s.ledger.Lookup(ctx, token)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "lookup token")
	}

	rec, _, err := s.states.GetState(ctx, token)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "read state")
	}
	if rec.State != domain.StateWaiting {
		return false, nil
	}

	now := s.now()
	x := domain.ExchangeToken{
		ID:         uuid.NewString(),
		QueueToken: token,
		UserID:     meta.UserID,
		EventID:    eventID,
		AdmittedAt: now,
	}
	if err := s.exchanges.Put(ctx, x, s.settings.AdmissionTTL); err != nil {
		return false, errors.Wrap(err, "store exchange token")
	}

	rec.State = domain.StateAdmitted
	rec.ExchangeToken = x.ID
	rec.UpdatedAt = now
	if err := s.states.SetState(ctx, token, rec, s.settings.AdmissionTTL); err != nil {
		return false, errors.Wrap(err, "write admitted state")
	}

	if err := s.sink.Emit(ctx, domain.NewAdmittedEvent(x)); err != nil {
		s.logger.WithError(err).WithField("queue_token", token).Warn("failed to emit admitted event")
	}
	return true, nil
}
