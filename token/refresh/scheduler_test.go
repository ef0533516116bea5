package refresh_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	apperrors "github.com/jrsteele09/findcourse-client/internal/errors"
	"github.com/jrsteele09/findcourse-client/metrics"
	"github.com/jrsteele09/findcourse-client/token/jwt/jwttest"
	"github.com/jrsteele09/findcourse-client/token/refresh"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeHolder struct {
	mu      sync.Mutex
	refresh string
	access  string
	logouts []string
}

func (h *fakeHolder) RefreshToken() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.refresh
}

func (h *fakeHolder) SetAccessToken(refreshToken, accessToken string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if refreshToken != h.refresh {
		return false
	}
	h.access = accessToken
	return true
}

func (h *fakeHolder) Logout(_ context.Context, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refresh, h.access = "", ""
	h.logouts = append(h.logouts, reason)
}

func (h *fakeHolder) AccessToken() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.access
}

func (h *fakeHolder) Logouts() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.logouts...)
}

// countingRefresher hands out one hour tokens from the fake clock.
type countingRefresher struct {
	t     *testing.T
	clock clockwork.Clock
	calls atomic.Int32
	err   error
	gate  chan struct{}
}

func (r *countingRefresher) Refresh(ctx context.Context, _ string) (string, error) {
	r.calls.Add(1)
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if r.err != nil {
		return "", r.err
	}
	return jwttest.AccessToken(r.t, r.clock.Now().Add(time.Hour), "USER"), nil
}

func setup(t *testing.T, options ...refresh.SchedulerOption) (*refresh.Scheduler, *fakeHolder, *countingRefresher, *clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClockAt(epoch)
	holder := &fakeHolder{refresh: "refresh-1"}
	refresher := &countingRefresher{t: t, clock: clock}
	s := refresh.NewScheduler(holder, refresher, append([]refresh.SchedulerOption{refresh.WithClock(clock)}, options...)...)
	t.Cleanup(s.Stop)
	return s, holder, refresher, clock
}

func TestDelay(t *testing.T) {
	tests := []struct {
		name   string
		exp    time.Duration
		leeway time.Duration
		want   time.Duration
	}{
		{"well before expiry", 100 * time.Second, 30 * time.Second, 70 * time.Second},
		{"inside leeway", 10 * time.Second, 30 * time.Second, 0},
		{"already expired", -time.Minute, 30 * time.Second, 0},
		{"exactly at leeway", 30 * time.Second, 30 * time.Second, 0},
		{"no leeway", time.Hour, 0, time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, refresh.Delay(epoch.Add(tt.exp), epoch, tt.leeway))
		})
	}
}

func TestSchedule_FiresThirtySecondsBeforeExpiry(t *testing.T) {
	s, holder, refresher, clock := setup(t)

	require.NoError(t, s.Schedule(jwttest.AccessToken(t, epoch.Add(100*time.Second), "USER")))
	require.Equal(t, refresh.StateScheduled, s.State())
	require.Equal(t, epoch.Add(70*time.Second), s.NextRefresh())

	clock.Advance(69 * time.Second)
	require.Equal(t, int32(0), refresher.calls.Load())

	clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		return s.NextRefresh().Equal(epoch.Add(70*time.Second + time.Hour - 30*time.Second))
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, int32(1), refresher.calls.Load())
	require.NotEmpty(t, holder.AccessToken())
	require.Empty(t, holder.Logouts())
}

func TestSchedule_ZeroDelayFiresImmediately(t *testing.T) {
	s, holder, refresher, _ := setup(t)

	require.NoError(t, s.Schedule(jwttest.AccessToken(t, epoch.Add(10*time.Second), "USER")))
	require.Eventually(t, func() bool {
		return refresher.calls.Load() == 1 && holder.AccessToken() != ""
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return s.State() == refresh.StateScheduled
	}, time.Second, 5*time.Millisecond)
}

func TestSchedule_UndecodableToken(t *testing.T) {
	s, _, refresher, _ := setup(t)

	err := s.Schedule("not-a-jwt")
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)
	require.Equal(t, refresh.StateNoSession, s.State())
	require.True(t, s.NextRefresh().IsZero())
	require.Equal(t, int32(0), refresher.calls.Load())
}

func TestSchedule_ReplacesArmedTimer(t *testing.T) {
	s, _, refresher, clock := setup(t)

	require.NoError(t, s.Schedule(jwttest.AccessToken(t, epoch.Add(100*time.Second), "USER")))
	require.NoError(t, s.Schedule(jwttest.AccessToken(t, epoch.Add(1000*time.Second), "USER")))
	require.Equal(t, epoch.Add(970*time.Second), s.NextRefresh())

	clock.Advance(100 * time.Second)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int32(0), refresher.calls.Load())
}

func TestStop(t *testing.T) {
	s, _, refresher, clock := setup(t)

	require.NoError(t, s.Schedule(jwttest.AccessToken(t, epoch.Add(100*time.Second), "USER")))
	s.Stop()
	s.Stop()
	require.Equal(t, refresh.StateNoSession, s.State())

	clock.Advance(time.Hour)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int32(0), refresher.calls.Load())
}

func TestRefresh_Failure(t *testing.T) {
	t.Run("logs out when asked", func(t *testing.T) {
		s, holder, refresher, _ := setup(t)
		refresher.err = apperrors.ErrUnauthorized

		token, ok := s.Refresh(context.Background(), true)
		require.False(t, ok)
		require.Empty(t, token)
		require.Equal(t, []string{refresh.ReasonRefreshFailed}, holder.Logouts())
		require.Equal(t, refresh.StateNoSession, s.State())
	})

	t.Run("keeps the session otherwise", func(t *testing.T) {
		s, holder, refresher, _ := setup(t)
		refresher.err = errors.New("connection refused")

		_, ok := s.Refresh(context.Background(), false)
		require.False(t, ok)
		require.Empty(t, holder.Logouts())
		require.Equal(t, "refresh-1", holder.RefreshToken())
	})

	t.Run("timer failure always logs out", func(t *testing.T) {
		s, holder, refresher, clock := setup(t)
		refresher.err = apperrors.ErrUnauthorized

		require.NoError(t, s.Schedule(jwttest.AccessToken(t, epoch.Add(60*time.Second), "USER")))
		clock.Advance(30 * time.Second)
		require.Eventually(t, func() bool {
			return len(holder.Logouts()) == 1
		}, time.Second, 5*time.Millisecond)
		require.Equal(t, refresh.StateNoSession, s.State())
	})
}

func TestRefresh_NoRefreshToken(t *testing.T) {
	s, holder, refresher, _ := setup(t)
	holder.refresh = ""

	_, ok := s.Refresh(context.Background(), false)
	require.False(t, ok)
	require.Empty(t, holder.Logouts())

	_, ok = s.Refresh(context.Background(), true)
	require.False(t, ok)
	require.Equal(t, []string{refresh.ReasonNoRefreshToken}, holder.Logouts())
	require.Equal(t, int32(0), refresher.calls.Load())
}

func TestRefresh_EmptyAccessTokenIsFailure(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	holder := &fakeHolder{refresh: "refresh-1"}
	s := refresh.NewScheduler(holder, refresh.RefresherFunc(func(context.Context, string) (string, error) {
		return "", nil
	}), refresh.WithClock(clock))

	_, ok := s.Refresh(context.Background(), true)
	require.False(t, ok)
	require.Equal(t, []string{refresh.ReasonRefreshFailed}, holder.Logouts())
}

func TestRefresh_UndecodableNewTokenLogsOut(t *testing.T) {
	holder := &fakeHolder{refresh: "refresh-1"}
	s := refresh.NewScheduler(holder, refresh.RefresherFunc(func(context.Context, string) (string, error) {
		return "opaque", nil
	}), refresh.WithClock(clockwork.NewFakeClockAt(epoch)))

	_, ok := s.Refresh(context.Background(), false)
	require.False(t, ok)
	require.Equal(t, []string{refresh.ReasonBadToken}, holder.Logouts())
}

func TestRefresh_SessionReplacedMidFlight(t *testing.T) {
	holder := &fakeHolder{refresh: "refresh-1"}
	s := refresh.NewScheduler(holder, refresh.RefresherFunc(func(context.Context, string) (string, error) {
		holder.mu.Lock()
		holder.refresh = "refresh-2"
		holder.mu.Unlock()
		return jwttest.AccessToken(t, epoch.Add(time.Hour), "USER"), nil
	}), refresh.WithClock(clockwork.NewFakeClockAt(epoch)))

	_, ok := s.Refresh(context.Background(), true)
	require.False(t, ok)
	require.Empty(t, holder.AccessToken())
	require.Empty(t, holder.Logouts())
}

func TestRefresh_ConcurrentCallsShareOneRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s, holder, refresher, _ := setup(t, refresh.WithMetrics(m))
	refresher.gate = make(chan struct{})

	const callers = 5
	tokens := make([]string, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens[i], _ = s.Refresh(context.Background(), true)
		}()
	}

	require.Eventually(t, func() bool {
		return refresher.calls.Load() == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(refresher.gate)
	wg.Wait()

	require.Equal(t, int32(1), refresher.calls.Load())
	for _, tok := range tokens {
		require.NotEmpty(t, tok)
		require.Equal(t, tokens[0], tok)
	}
	require.Equal(t, tokens[0], holder.AccessToken())
	require.Equal(t, float64(callers), testutil.ToFloat64(m.Refreshes().WithLabelValues(metrics.RefreshSuccess)))
	require.Equal(t, float64(callers), testutil.ToFloat64(m.Refreshes().WithLabelValues(metrics.RefreshDeduped)))
}

func TestRefresh_CallerCancellationDoesNotAbortSharedRequest(t *testing.T) {
	s, holder, refresher, _ := setup(t)
	refresher.gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool)
	go func() {
		_, ok := s.Refresh(ctx, false)
		done <- ok
	}()

	require.Eventually(t, func() bool {
		return refresher.calls.Load() == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	close(refresher.gate)

	require.True(t, <-done)
	require.NotEmpty(t, holder.AccessToken())
}

func TestState_String(t *testing.T) {
	require.Equal(t, "no_session", refresh.StateNoSession.String())
	require.Equal(t, "scheduled", refresh.StateScheduled.String())
	require.Equal(t, "refreshing", refresh.StateRefreshing.String())
}
