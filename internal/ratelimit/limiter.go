package ratelimit

import (
	"context"
	"sync"
	"time"

	"main/pkg/exception"

	"github.com/yanun0323/logs"
)

// Config holds the shared limiter defaults. Individual sources may override
// the request budget via Limits on the constructor.
type Config struct {
	RequestsPerMinute int
	MaxRetries        int
	Backoff           Backoff
}

// DefaultConfig mirrors the budgets the public crypto APIs tolerate.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		MaxRetries:        5,
		Backoff:           DefaultBackoff(),
	}
}

type sourceState struct {
	grants       []time.Time
	attempts     int
	nextEligible time.Time
	limit        int
}

// Limiter guards outbound calls per source: a sliding one-minute request
// window plus exponential backoff after failures. State is keyed by source id;
// one source's throttling never blocks another.
type Limiter struct {
	mu     sync.Mutex
	cfg    Config
	states map[string]*sourceState

	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	onBackoff func()
}

// Stats is a point-in-time view of one source's limiter state.
type Stats struct {
	SourceID         string
	RequestsInWindow int
	RequestsLimit    int
	Attempts         int
	BackoffUntil     time.Time
}

const window = time.Minute

// New creates a limiter. limits overrides the per-minute budget per source id.
func New(cfg Config, limits map[string]int) *Limiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultConfig().RequestsPerMinute
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	l := &Limiter{
		cfg:    cfg,
		states: make(map[string]*sourceState),
		now:    time.Now,
		sleep:  sleepContext,
	}
	for sourceID, limit := range limits {
		if limit > 0 {
			l.state(sourceID).limit = limit
		}
	}
	return l
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (l *Limiter) state(sourceID string) *sourceState {
	st := l.states[sourceID]
	if st == nil {
		st = &sourceState{limit: l.cfg.RequestsPerMinute}
		l.states[sourceID] = st
	}
	return st
}

// Acquire blocks until the source has budget in its sliding window and any
// backoff deadline has passed, then records the grant. Returns the context
// error if the caller is cancelled while waiting.
func (l *Limiter) Acquire(ctx context.Context, sourceID string) error {
	if l == nil {
		return exception.ErrUnknownSource
	}
	for {
		l.mu.Lock()
		st := l.state(sourceID)
		now := l.now()
		wait := l.waitLocked(st, now)
		if wait <= 0 {
			st.grants = append(st.grants, now)
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		logs.Debugf("rate limiter [%s]: waiting %s", sourceID, wait)
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (l *Limiter) waitLocked(st *sourceState, now time.Time) time.Duration {
	if until := st.nextEligible.Sub(now); until > 0 {
		return until
	}

	cutoff := now.Add(-window)
	kept := st.grants[:0]
	for _, g := range st.grants {
		if g.After(cutoff) {
			kept = append(kept, g)
		}
	}
	st.grants = kept

	if len(st.grants) < st.limit {
		return 0
	}
	return st.grants[0].Add(window).Sub(now)
}

// OnSuccess resets the source's retry state after a successful call.
func (l *Limiter) OnSuccess(sourceID string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	st := l.state(sourceID)
	st.attempts = 0
	st.nextEligible = time.Time{}
	l.mu.Unlock()
}

// OnFailure records a failed call. Retriable failures arm exponential backoff
// before the next Acquire succeeds; exhausting the retry budget, or any
// non-retriable failure, surfaces ErrSourceUnavailable instead of blocking
// the caller indefinitely.
func (l *Limiter) OnFailure(sourceID string, retriable bool) error {
	if l == nil {
		return exception.ErrUnknownSource
	}
	if !retriable {
		return exception.ErrSourceUnavailable
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.state(sourceID)
	st.attempts++
	if st.attempts > l.cfg.MaxRetries {
		return exception.ErrSourceUnavailable
	}

	delay := l.cfg.Backoff.Next(st.attempts)
	st.nextEligible = l.now().Add(delay)
	if l.onBackoff != nil {
		l.onBackoff()
	}
	logs.Warnf("rate limiter [%s]: retry %d/%d, backoff %s", sourceID, st.attempts, l.cfg.MaxRetries, delay)
	return nil
}

// NotifyBackoff registers a callback fired each time a backoff is armed.
func (l *Limiter) NotifyBackoff(fn func()) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.onBackoff = fn
	l.mu.Unlock()
}

// Stats returns the limiter state for one source.
func (l *Limiter) Stats(sourceID string) Stats {
	if l == nil {
		return Stats{SourceID: sourceID}
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.state(sourceID)
	cutoff := l.now().Add(-window)
	inWindow := 0
	for _, g := range st.grants {
		if g.After(cutoff) {
			inWindow++
		}
	}
	return Stats{
		SourceID:         sourceID,
		RequestsInWindow: inWindow,
		RequestsLimit:    st.limit,
		Attempts:         st.attempts,
		BackoffUntil:     st.nextEligible,
	}
}
