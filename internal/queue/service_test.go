package queue_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/virtual-waiting-room/internal/domain"
	"github.com/robertarktes/virtual-waiting-room/internal/observability"
	"github.com/robertarktes/virtual-waiting-room/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSettings = queue.Settings{
	BatchSize:      5,
	BatchInterval:  3 * time.Second,
	AdmissionTTL:   120 * time.Second,
	ReservationTTL: 120 * time.Second,
	EntryTTL:       time.Hour,
}

var fixedNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

type harness struct {
	ledger    *fakeLedger
	states    *fakeStates
	exchanges *fakeExchanges
	sessions  *fakeSessions
	lock      *fakeLock
	sink      *recordingSink

	svc     *queue.Service
	sched   *queue.Scheduler
	handoff *queue.Handoff
}

func newHarness(t *testing.T, settings queue.Settings) *harness {
	t.Helper()
	h := &harness{
		ledger:    newFakeLedger(),
		states:    newFakeStates(),
		exchanges: newFakeExchanges(),
		sessions:  newFakeSessions(),
		lock:      &fakeLock{},
		sink:      &recordingSink{},
	}
	logger := observability.NewNopLogger()
	h.svc = queue.NewService(h.ledger, h.states, h.sink, settings, logger)
	h.sched = queue.NewScheduler(h.ledger, h.states, h.exchanges, h.lock, h.sink, settings, logger)
	h.handoff = queue.NewHandoff(h.exchanges, h.sessions, h.states, h.sink, settings.ReservationTTL, logger)

	clock := func() time.Time { return fixedNow }
	h.svc.SetClock(clock)
	h.sched.SetClock(clock)
	h.handoff.SetClock(clock)
	return h
}

func (h *harness) enterN(t *testing.T, eventID string, n int) []string {
	t.Helper()
	tokens := make([]string, 0, n)
	for i := 0; i < n; i++ {
		res, err := h.svc.Enter(context.Background(), fmt.Sprintf("user-%d", i), eventID)
		require.NoError(t, err)
		tokens = append(tokens, res.Token.ID)
	}
	return tokens
}

func TestEnter_RequiresFields(t *testing.T) {
	h := newHarness(t, testSettings)

	_, err := h.svc.Enter(context.Background(), "", "concert")
	assert.True(t, errors.Is(err, domain.ErrMissingField))
	assert.Contains(t, err.Error(), "userId")

	_, err = h.svc.Enter(context.Background(), "u1", "")
	assert.True(t, errors.Is(err, domain.ErrMissingField))
	assert.Contains(t, err.Error(), "eventId")

	assert.Empty(t, h.sink.types())
}

func TestEnter_ThenStatus(t *testing.T) {
	h := newHarness(t, testSettings)
	ctx := context.Background()

	res, err := h.svc.Enter(ctx, "u1", "concert")
	require.NoError(t, err)
	require.NotNil(t, res.Position)
	assert.Equal(t, int64(1), *res.Position)
	assert.Equal(t, time.Hour, res.ExpiresIn)
	assert.Equal(t, int64(1), res.Token.Seq)
	assert.Equal(t, fixedNow.Add(time.Hour), res.Token.ExpiresAt)
	assert.Equal(t, []string{domain.EventQueueEntered}, h.sink.types())

	view, err := h.svc.Status(ctx, res.Token.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateWaiting, view.State)
	require.NotNil(t, view.Position)
	assert.Equal(t, int64(1), *view.Position)
	require.NotNil(t, view.EstimatedWaitSec)
	assert.Equal(t, int64(0), *view.EstimatedWaitSec)
	assert.Nil(t, view.ExchangeToken)
	assert.Equal(t, int64(3600), domain.CeilSeconds(view.ExpiresIn))
}

func TestEnter_FIFOWithinEvent(t *testing.T) {
	h := newHarness(t, testSettings)
	ctx := context.Background()

	tokens := h.enterN(t, "concert", 4)
	other := h.enterN(t, "festival", 1)

	for i, tok := range tokens {
		view, err := h.svc.Status(ctx, tok)
		require.NoError(t, err)
		require.NotNil(t, view.Position)
		assert.Equal(t, int64(i+1), *view.Position)
	}

	view, err := h.svc.Status(ctx, other[0])
	require.NoError(t, err)
	assert.Equal(t, int64(1), *view.Position)

	prev := int64(0)
	for _, tok := range tokens {
		meta, err := h.ledger.Lookup(ctx, tok)
		require.NoError(t, err)
		assert.Greater(t, meta.Seq, prev)
		prev = meta.Seq
	}
}

func TestEnter_SinkFailureDoesNotFail(t *testing.T) {
	h := newHarness(t, testSettings)
	h.sink.err = errStoreDown

	res, err := h.svc.Enter(context.Background(), "u1", "concert")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token.ID)
}

func TestEnter_StateStoreFailure(t *testing.T) {
	h := newHarness(t, testSettings)
	h.states.setErr = errStoreDown

	_, err := h.svc.Enter(context.Background(), "u1", "concert")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errStoreDown))

	n, err := h.svc.Depth(context.Background(), "concert")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStatus_UnknownOrExpired(t *testing.T) {
	h := newHarness(t, testSettings)
	ctx := context.Background()

	_, err := h.svc.Status(ctx, "does-not-exist")
	assert.True(t, errors.Is(err, domain.ErrTokenNotFound))

	_, err = h.svc.Status(ctx, "")
	assert.True(t, errors.Is(err, domain.ErrTokenNotFound))

	tok := h.enterN(t, "concert", 1)[0]
	h.states.expire(tok)
	_, err = h.svc.Status(ctx, tok)
	assert.True(t, errors.Is(err, domain.ErrTokenNotFound))
}

func TestStatus_WaitingWithoutMetadata(t *testing.T) {
	h := newHarness(t, testSettings)
	tok := h.enterN(t, "concert", 1)[0]
	h.ledger.expireMeta(tok)

	_, err := h.svc.Status(context.Background(), tok)
	assert.True(t, errors.Is(err, domain.ErrTokenNotFound))
}

func TestStatus_PoppedButNotAdmitted(t *testing.T) {
	h := newHarness(t, testSettings)
	ctx := context.Background()
	tok := h.enterN(t, "concert", 1)[0]

	_, err := h.ledger.PopOldest(ctx, "concert", 1)
	require.NoError(t, err)

	view, err := h.svc.Status(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, domain.StateWaiting, view.State)
	assert.Nil(t, view.Position)
	assert.Nil(t, view.EstimatedWaitSec)
}

func TestStatus_IdempotentBetweenTicks(t *testing.T) {
	h := newHarness(t, testSettings)
	ctx := context.Background()
	tokens := h.enterN(t, "concert", 8)

	first, err := h.svc.Status(ctx, tokens[6])
	require.NoError(t, err)
	second, err := h.svc.Status(ctx, tokens[6])
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(7), *first.Position)
	assert.Equal(t, int64(4), *first.EstimatedWaitSec)
}

func TestStatus_ETAGrowsWithPosition(t *testing.T) {
	h := newHarness(t, testSettings)
	ctx := context.Background()
	tokens := h.enterN(t, "concert", 30)

	prev := int64(-1)
	for _, tok := range tokens {
		view, err := h.svc.Status(ctx, tok)
		require.NoError(t, err)
		require.NotNil(t, view.EstimatedWaitSec)
		assert.GreaterOrEqual(t, *view.EstimatedWaitSec, prev)
		prev = *view.EstimatedWaitSec
	}
}

func TestDepthAndEvents(t *testing.T) {
	h := newHarness(t, testSettings)
	ctx := context.Background()
	h.enterN(t, "concert", 3)
	h.enterN(t, "festival", 2)

	n, err := h.svc.Depth(ctx, "concert")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = h.svc.Depth(ctx, "")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	events, err := h.svc.Events(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"concert", "festival"}, events)
}
