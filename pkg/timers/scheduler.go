package timers

import (
	"sort"
	"sync"
	"time"
)

// Scheduler owns a set of timer tokens.
type Scheduler struct {
	mu     sync.Mutex
	tokens map[uint64]*Token
	nextID uint64
	closed bool
}

// Token is a handle to one scheduled callback.
type Token struct {
	id     uint64
	name   string
	period time.Duration
	fn     func()
	s      *Scheduler

	// guarded by s.mu
	timer     *time.Timer
	cancelled bool
	fired     int
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		tokens: make(map[uint64]*Token),
	}
}

// After runs fn once after d. The returned token is removed from the
// scheduler once fn has been started.
func (s *Scheduler) After(name string, d time.Duration, fn func()) *Token {
	return s.schedule(name, d, 0, fn)
}

// Every runs fn every period until the token is cancelled. Runs never
// overlap: the next run is armed after fn returns.
func (s *Scheduler) Every(name string, period time.Duration, fn func()) *Token {
	if period <= 0 {
		period = time.Millisecond
	}
	return s.schedule(name, period, period, fn)
}

func (s *Scheduler) schedule(name string, d, period time.Duration, fn func()) *Token {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	t := &Token{
		id:     s.nextID,
		name:   name,
		period: period,
		fn:     fn,
		s:      s,
	}

	if s.closed {
		t.cancelled = true
		return t
	}

	s.tokens[t.id] = t
	t.timer = time.AfterFunc(d, t.run)
	return t
}

// run is the time.AfterFunc callback.
func (t *Token) run() {
	s := t.s

	s.mu.Lock()
	if t.cancelled {
		s.mu.Unlock()
		return
	}
	t.fired++
	if t.period == 0 {
		delete(s.tokens, t.id)
	}
	s.mu.Unlock()

	t.fn()

	if t.period == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !t.cancelled {
		t.timer.Reset(t.period)
	}
}

// Cancel stops the token. It returns true if this call cancelled a token
// that was still pending (one-shot not yet fired, or periodic still armed).
func (t *Token) Cancel() bool {
	if t == nil || t.s == nil {
		return false
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return t.s.cancelLocked(t)
}

// Active reports whether the token can still fire.
func (t *Token) Active() bool {
	if t == nil || t.s == nil {
		return false
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	_, ok := t.s.tokens[t.id]
	return ok && !t.cancelled
}

// Name returns the name the token was scheduled with.
func (t *Token) Name() string {
	if t == nil {
		return ""
	}
	return t.name
}

// Fired returns how many times the callback has been started.
func (t *Token) Fired() int {
	if t == nil || t.s == nil {
		return 0
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return t.fired
}

func (s *Scheduler) cancelLocked(t *Token) bool {
	if t.cancelled {
		return false
	}
	t.cancelled = true
	if t.timer != nil {
		t.timer.Stop()
	}
	_, pending := s.tokens[t.id]
	delete(s.tokens, t.id)
	return pending
}

// CancelAll cancels every pending token and returns how many were pending.
func (s *Scheduler) CancelAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.tokens {
		if s.cancelLocked(t) {
			n++
		}
	}
	return n
}

// CancelNamed cancels every pending token with the given name.
func (s *Scheduler) CancelNamed(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.tokens {
		if t.name == name && s.cancelLocked(t) {
			n++
		}
	}
	return n
}

// Pending returns the number of tokens that can still fire.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

// Names returns the sorted names of pending tokens.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.tokens))
	for _, t := range s.tokens {
		names = append(names, t.name)
	}
	sort.Strings(names)
	return names
}

// Close cancels every token. Tokens scheduled afterwards are born cancelled.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.CancelAll()
}
