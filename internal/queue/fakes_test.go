package queue_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/virtual-waiting-room/internal/domain"
)

type fakeLedger struct {
	mu     sync.Mutex
	seq    map[string]int64
	lines  map[string][]string
	meta   map[string]domain.QueueToken
	events []string

	popErr    error
	lookupErr map[string]error
	panicOn   map[string]bool

	// scramble reverses Events output on every other call, like SMEMBERS
	// on a hashtable-encoded set.
	scramble    bool
	eventsCalls int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		seq:       map[string]int64{},
		lines:     map[string][]string{},
		meta:      map[string]domain.QueueToken{},
		lookupErr: map[string]error{},
		panicOn:   map[string]bool{},
	}
}

func (l *fakeLedger) Enter(_ context.Context, t *domain.QueueToken, _ time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq[t.EventID]++
	t.Seq = l.seq[t.EventID]
	if _, ok := l.lines[t.EventID]; !ok {
		l.events = append(l.events, t.EventID)
	}
	l.lines[t.EventID] = append(l.lines[t.EventID], t.ID)
	l.meta[t.ID] = *t
	return nil
}

func (l *fakeLedger) Rank(_ context.Context, eventID, token string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, id := range l.lines[eventID] {
		if id == token {
			return int64(i + 1), nil
		}
	}
	return 0, domain.ErrNotFound
}

func (l *fakeLedger) Size(_ context.Context, eventID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int64(len(l.lines[eventID])), nil
}

func (l *fakeLedger) PopOldest(_ context.Context, eventID string, n int) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.popErr != nil {
		return nil, l.popErr
	}
	line := l.lines[eventID]
	if n > len(line) {
		n = len(line)
	}
	out := append([]string(nil), line[:n]...)
	l.lines[eventID] = line[n:]
	return out, nil
}

func (l *fakeLedger) Lookup(_ context.Context, token string) (domain.QueueToken, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.panicOn[token] {
		panic("boom")
	}
	if err := l.lookupErr[token]; err != nil {
		return domain.QueueToken{}, err
	}
	t, ok := l.meta[token]
	if !ok {
		return domain.QueueToken{}, domain.ErrNotFound
	}
	return t, nil
}

func (l *fakeLedger) Events(context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := append([]string(nil), l.events...)
	l.eventsCalls++
	if l.scramble && l.eventsCalls%2 == 0 {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

// expireMeta drops token metadata while leaving the ledger entry behind.
func (l *fakeLedger) expireMeta(token string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.meta, token)
}

type stateEntry struct {
	rec domain.TokenRecord
	ttl time.Duration
}

type fakeStates struct {
	mu      sync.Mutex
	entries map[string]stateEntry
	setErr  error
}

func newFakeStates() *fakeStates {
	return &fakeStates{entries: map[string]stateEntry{}}
}

func (s *fakeStates) SetState(_ context.Context, token string, rec domain.TokenRecord, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.entries[token] = stateEntry{rec: rec, ttl: ttl}
	return nil
}

func (s *fakeStates) GetState(_ context.Context, token string) (domain.TokenRecord, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[token]
	if !ok {
		return domain.TokenRecord{}, 0, domain.ErrNotFound
	}
	return e.rec, e.ttl, nil
}

func (s *fakeStates) expire(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, token)
}

func (s *fakeStates) byState(state domain.TokenState) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for token, e := range s.entries {
		if e.rec.State == state {
			out = append(out, token)
		}
	}
	sort.Strings(out)
	return out
}

type fakeExchanges struct {
	mu     sync.Mutex
	tokens map[string]domain.ExchangeToken
	ttls   map[string]time.Duration
}

func newFakeExchanges() *fakeExchanges {
	return &fakeExchanges{tokens: map[string]domain.ExchangeToken{}, ttls: map[string]time.Duration{}}
}

func (x *fakeExchanges) Put(_ context.Context, t domain.ExchangeToken, ttl time.Duration) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.tokens[t.ID] = t
	x.ttls[t.ID] = ttl
	return nil
}

func (x *fakeExchanges) Take(_ context.Context, id string) (domain.ExchangeToken, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	t, ok := x.tokens[id]
	if !ok {
		return domain.ExchangeToken{}, domain.ErrNotFound
	}
	delete(x.tokens, id)
	return t, nil
}

type sessionEntry struct {
	s   domain.ReservationSession
	ttl time.Duration
}

type fakeSessions struct {
	mu        sync.Mutex
	sessions  map[string]sessionEntry
	createErr error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: map[string]sessionEntry{}}
}

func (f *fakeSessions) Create(_ context.Context, s domain.ReservationSession, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.sessions[s.ID] = sessionEntry{s: s, ttl: ttl}
	return nil
}

func (f *fakeSessions) Get(_ context.Context, id string) (domain.ReservationSession, time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.sessions[id]
	if !ok {
		return domain.ReservationSession{}, 0, domain.ErrNotFound
	}
	return e.s, e.ttl, nil
}

func (f *fakeSessions) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.sessions, id)
	return nil
}

type fakeLock struct {
	mu       sync.Mutex
	held     bool
	denied   bool
	loseAt   int
	renews   int
	releases int
	// block, when set, is waited on inside Acquire.
	block chan struct{}
	// entered is closed when Acquire starts.
	entered chan struct{}
}

func (l *fakeLock) Acquire(context.Context) (bool, error) {
	if l.entered != nil {
		close(l.entered)
	}
	if l.block != nil {
		<-l.block
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.denied || l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *fakeLock) Renew(context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.renews++
	if l.loseAt > 0 && l.renews >= l.loseAt {
		l.held = false
	}
	return l.held, nil
}

func (l *fakeLock) Release(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	l.releases++
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (r *recordingSink) Emit(_ context.Context, e domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingSink) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

var errStoreDown = errors.New("store down")
