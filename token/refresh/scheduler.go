// Package refresh keeps an access token alive by renewing it shortly before it
// expires.
//
// A Scheduler moves between three states:
//
//	NoSession  -- Schedule -->  Scheduled  -- timer fires -->  Refreshing
//	    ^                          ^                               |
//	    |                          +---------- success ------------+
//	    +------------ Stop / failure with logout ------------------+
//
// Only one timer is ever armed. Re-arming bumps a generation counter so a
// timer that was already running when it was replaced does nothing.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	apperrors "github.com/jrsteele09/findcourse-client/internal/errors"
	"github.com/jrsteele09/findcourse-client/metrics"
	"github.com/jrsteele09/findcourse-client/token/jwt"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultLeeway  = 30 * time.Second
	DefaultTimeout = 10 * time.Second
)

// Logout reasons passed to TokenHolder.Logout.
const (
	ReasonNoRefreshToken = "no_refresh_token"
	ReasonRefreshFailed  = "refresh_failed"
	ReasonBadToken       = "bad_token"
)

type State int

const (
	StateNoSession State = iota
	StateScheduled
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateNoSession:
		return "no_session"
	case StateScheduled:
		return "scheduled"
	case StateRefreshing:
		return "refreshing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// TokenHolder owns the session the scheduler renews.
type TokenHolder interface {
	// RefreshToken returns the current refresh token, empty when logged out
	RefreshToken() string

	// SetAccessToken stores accessToken only if refreshToken is still the
	// session's refresh token and reports whether it did
	SetAccessToken(refreshToken, accessToken string) bool

	// Logout ends the session. It must not call back into the scheduler while
	// holding its own locks
	Logout(ctx context.Context, reason string)
}

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (string, error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context, refreshToken string) (string, error)

func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (string, error) {
	return f(ctx, refreshToken)
}

type Scheduler struct {
	holder    TokenHolder
	refresher Refresher
	clock     clockwork.Clock
	leeway    time.Duration
	timeout   time.Duration
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	inflight singleflight.Group

	mu    sync.Mutex
	state State
	timer clockwork.Timer
	gen   uint64
	next  time.Time
}

type SchedulerOption func(*Scheduler)

func WithClock(clock clockwork.Clock) SchedulerOption {
	return func(s *Scheduler) {
		s.clock = clock
	}
}

// WithLeeway sets how long before expiry the refresh fires.
func WithLeeway(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.leeway = d
	}
}

// WithTimeout bounds each refresh request.
func WithTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.timeout = d
	}
}

func WithMetrics(m *metrics.Metrics) SchedulerOption {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

func WithLogger(l zerolog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = l
	}
}

func NewScheduler(holder TokenHolder, refresher Refresher, options ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		holder:    holder,
		refresher: refresher,
		clock:     clockwork.NewRealClock(),
		leeway:    DefaultLeeway,
		timeout:   DefaultTimeout,
		logger:    log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Delay is how long to wait before refreshing a token expiring at exp. It is
// never negative.
func Delay(exp, now time.Time, leeway time.Duration) time.Duration {
	d := exp.Sub(now) - leeway
	if d < 0 {
		return 0
	}
	return d
}

// Schedule arms the timer for accessToken, replacing any armed timer. A token
// without a readable expiry disarms the scheduler and returns an error; the
// caller is expected to log out.
func (s *Scheduler) Schedule(accessToken string) error {
	exp, err := jwt.Expiry(accessToken)
	if err != nil {
		s.Stop()
		s.metrics.Refresh(metrics.RefreshBadFormat)
		return apperrors.Wrapf(err, "schedule refresh")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.disarmLocked()
	s.gen++
	gen := s.gen
	now := s.clock.Now()
	delay := Delay(exp, now, s.leeway)
	s.next = now.Add(delay)
	s.state = StateScheduled

	if delay == 0 {
		go s.fire(gen)
	} else {
		// fire takes s.mu, so never run it on the clock's own goroutine.
		s.timer = s.clock.AfterFunc(delay, func() { go s.fire(gen) })
	}

	s.logger.Debug().
		Time("expires", exp).
		Dur("delay", delay).
		Msg("access token refresh scheduled")
	return nil
}

// Stop disarms the timer. Safe to call in any state.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.disarmLocked()
	s.gen++
	s.state = StateNoSession
	s.next = time.Time{}
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// NextRefresh is when the armed timer fires; zero when nothing is armed.
func (s *Scheduler) NextRefresh() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateScheduled {
		return time.Time{}
	}
	return s.next
}

func (s *Scheduler) disarmLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.state != StateScheduled {
		s.mu.Unlock()
		return
	}
	s.state = StateRefreshing
	s.timer = nil
	s.mu.Unlock()

	_, _ = s.Refresh(context.Background(), true)
}

// Refresh renews the access token now. Concurrent calls for the same refresh
// token share one request. On failure it returns false, and when shouldLogout
// is set the session is ended. On success the timer is re-armed for the new
// token.
func (s *Scheduler) Refresh(ctx context.Context, shouldLogout bool) (string, bool) {
	refreshToken := s.holder.RefreshToken()
	if refreshToken == "" {
		s.metrics.Refresh(metrics.RefreshNoToken)
		s.fail(ctx, shouldLogout, ReasonNoRefreshToken, apperrors.ErrNoRefreshToken)
		return "", false
	}

	v, err, shared := s.inflight.Do(refreshToken, func() (any, error) {
		// Detached so one caller giving up does not fail the others.
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		token, err := s.refresher.Refresh(callCtx, refreshToken)
		if err == nil && token == "" {
			err = apperrors.ErrMissingAccessToken
		}
		return token, err
	})
	if shared {
		s.metrics.Refresh(metrics.RefreshDeduped)
	}
	if err != nil {
		s.metrics.Refresh(metrics.RefreshFailed)
		s.fail(ctx, shouldLogout, ReasonRefreshFailed, err)
		return "", false
	}
	accessToken := v.(string)

	if !s.holder.SetAccessToken(refreshToken, accessToken) {
		// The session changed while the request was in flight.
		s.logger.Debug().Msg("dropping refreshed token for a replaced session")
		return "", false
	}

	if err := s.Schedule(accessToken); err != nil {
		s.fail(ctx, true, ReasonBadToken, err)
		return "", false
	}

	s.metrics.Refresh(metrics.RefreshSuccess)
	s.logger.Info().Msg("access token refreshed")
	return accessToken, true
}

func (s *Scheduler) fail(ctx context.Context, shouldLogout bool, reason string, err error) {
	ev := s.logger.Warn()
	if apperrors.Is(err, apperrors.ErrNoRefreshToken) {
		ev = s.logger.Debug()
	}
	ev.Err(err).Str("reason", reason).Bool("logout", shouldLogout).Msg("access token refresh failed")

	if shouldLogout {
		s.Stop()
		s.holder.Logout(ctx, reason)
	}
}
