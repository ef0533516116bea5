// Package sessions holds the logged in identity: the bearer tokens, the user
// profile, their durable copy and the timer that keeps the access token fresh.
package sessions

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/jrsteele09/findcourse-client/findcourse"
	apperrors "github.com/jrsteele09/findcourse-client/internal/errors"
	"github.com/jrsteele09/findcourse-client/metrics"
	"github.com/jrsteele09/findcourse-client/notify"
	"github.com/jrsteele09/findcourse-client/storage"
	"github.com/jrsteele09/findcourse-client/token/jwt"
	"github.com/jrsteele09/findcourse-client/token/refresh"
	"github.com/jrsteele09/findcourse-client/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logout reasons recorded in metrics, on top of the refresh package ones.
const (
	ReasonUser           = "user"
	ReasonAccountDeleted = "account_deleted"
)

// API is the part of the REST client a session needs.
type API interface {
	Login(ctx context.Context, creds users.Credentials) findcourse.Result[findcourse.TokenPair]
	Refresh(ctx context.Context, refreshToken string) findcourse.Result[findcourse.TokenPair]
	MyData(ctx context.Context, accessToken string) findcourse.Result[users.Profile]
	UpdateUser(ctx context.Context, accessToken string, id int, update users.ProfileUpdate) findcourse.Result[users.Profile]
	UploadImage(ctx context.Context, accessToken, filename string, r io.Reader) findcourse.Result[string]
	DeleteUser(ctx context.Context, accessToken string, id int) findcourse.Result[struct{}]
}

var _ API = (*findcourse.Client)(nil)

// Manager owns the single session of a running client. All methods are safe
// for concurrent use; none of them panic or return transport errors, failures
// are logged and reported through the Notifier instead.
type Manager struct {
	api       API
	store     storage.Store
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	clock     clockwork.Clock
	leeway    time.Duration
	timeout   time.Duration
	scheduler *refresh.Scheduler

	mu      sync.RWMutex
	session Session

	subsMu  sync.Mutex
	subs    map[int]func(Session)
	nextSub int
}

type Option func(*Manager)

func WithNotifier(n notify.Notifier) Option {
	return func(m *Manager) {
		m.notifier = n
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithClock sets the clock for token expiry checks and the refresh timer.
func WithClock(clock clockwork.Clock) Option {
	return func(m *Manager) {
		m.clock = clock
	}
}

// WithRefreshLeeway sets how long before expiry a token is renewed.
func WithRefreshLeeway(d time.Duration) Option {
	return func(m *Manager) {
		m.leeway = d
	}
}

func WithRefreshTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.timeout = d
	}
}

// New builds a Manager and hydrates the session from store. Call Start to arm
// the refresh timer for a hydrated session.
func New(api API, store storage.Store, options ...Option) (*Manager, error) {
	if api == nil {
		return nil, errors.New("[sessions.New] api is required")
	}
	if store == nil {
		return nil, errors.New("[sessions.New] store is required")
	}

	m := &Manager{
		api:      api,
		store:    store,
		notifier: notify.Discard{},
		logger:   log.Logger,
		clock:    clockwork.NewRealClock(),
		leeway:   refresh.DefaultLeeway,
		timeout:  refresh.DefaultTimeout,
		subs:     make(map[int]func(Session)),
	}
	for _, opt := range options {
		opt(m)
	}

	m.scheduler = refresh.NewScheduler(holder{m}, apiRefresher{m.api},
		refresh.WithClock(m.clock),
		refresh.WithLeeway(m.leeway),
		refresh.WithTimeout(m.timeout),
		refresh.WithMetrics(m.metrics),
		refresh.WithLogger(m.logger),
	)

	m.session.AccessToken = m.load(storage.KeyAccessToken)
	m.session.RefreshToken = m.load(storage.KeyRefreshToken)
	return m, nil
}

func (m *Manager) load(key string) string {
	v, err := m.store.Get(key)
	if err != nil {
		if !apperrors.Is(err, storage.ErrNotFound) {
			m.logger.Warn().Err(err).Str("key", key).Msg("failed to read session storage")
		}
		return ""
	}
	return v
}

// Start enters the refresh loop for a hydrated session. A stored access token
// that cannot be decoded ends the session. With only a refresh token stored a
// refresh is attempted straight away.
func (m *Manager) Start(ctx context.Context) error {
	snap := m.Snapshot()
	switch {
	case snap.AccessToken != "":
		if err := m.scheduler.Schedule(snap.AccessToken); err != nil {
			m.logout(ctx, refresh.ReasonBadToken)
			return err
		}
	case snap.RefreshToken != "":
		if _, ok := m.scheduler.Refresh(ctx, true); !ok {
			return apperrors.ErrNoSession
		}
	}
	return nil
}

// Stop disarms the refresh timer and keeps the session as it is.
func (m *Manager) Stop() {
	m.scheduler.Stop()
}

// Login checks creds locally, exchanges them for tokens, persists them over any
// previous session, arms the refresh timer and loads the profile.
func (m *Manager) Login(ctx context.Context, creds users.Credentials) LoginResult {
	if err := users.ValidateCredentials(creds); err != nil {
		m.notifier.Error(err.Error())
		return LoginResult{Message: err.Error()}
	}

	res := m.api.Login(ctx, creds)
	if !res.OK {
		msg := messageOr(res.Message, "Login failed")
		m.logger.Info().Str("kind", res.Kind.String()).Int("status", res.Status).Msg("login rejected")
		m.notifier.Error(msg)
		return LoginResult{Message: msg}
	}

	m.mu.Lock()
	m.session = Session{AccessToken: res.Data.AccessToken, RefreshToken: res.Data.RefreshToken}
	m.persistLocked(storage.KeyAccessToken, res.Data.AccessToken)
	m.persistLocked(storage.KeyRefreshToken, res.Data.RefreshToken)
	m.mu.Unlock()

	if err := m.scheduler.Schedule(res.Data.AccessToken); err != nil {
		m.logger.Warn().Err(err).Msg("login returned an unreadable access token")
		m.logout(ctx, refresh.ReasonBadToken)
		m.notifier.Error("Login failed")
		return LoginResult{Message: "Login failed"}
	}
	m.publish()

	var role users.Role
	if profile := m.FetchUserData(ctx); profile != nil {
		role = profile.Role
	} else {
		role = roleFromToken(res.Data.AccessToken)
	}

	m.notifier.Success("Logged in")
	return LoginResult{Success: true, Role: role}
}

// FetchUserData loads the profile for the current tokens. It never ends the
// session; on any failure it returns nil. A profile without a role takes it
// from the access token, falling back to USER.
func (m *Manager) FetchUserData(ctx context.Context) *users.Profile {
	token, ok := m.ValidToken(ctx, false)
	if !ok {
		return nil
	}

	res := m.api.MyData(ctx, token)
	if !res.OK {
		m.logger.Warn().Str("kind", res.Kind.String()).Int("status", res.Status).Str("message", res.Message).Msg("failed to fetch profile")
		return nil
	}

	profile := res.Data
	if role, ok := users.ParseRole(string(profile.Role)); ok {
		profile.Role = role
	} else {
		profile.Role = roleFromToken(token)
	}

	m.mu.Lock()
	if m.session.AccessToken == "" {
		m.mu.Unlock()
		return nil
	}
	m.session.User = &profile
	m.mu.Unlock()
	m.publish()

	out := profile
	return &out
}

// UpdateUser sends the set fields of update for user id.
func (m *Manager) UpdateUser(ctx context.Context, id int, update users.ProfileUpdate) bool {
	if update.Empty() {
		m.notifier.Error("Nothing to update")
		return false
	}
	token, ok := m.ValidToken(ctx, true)
	if !ok {
		m.notifier.Error("Please log in again")
		return false
	}

	res := m.api.UpdateUser(ctx, token, id, update)
	if !res.OK {
		m.notifier.Error(messageOr(res.Message, "Failed to update profile"))
		return false
	}

	m.mu.Lock()
	if m.session.AccessToken != "" && m.session.User != nil && m.session.User.ID == id {
		profile := res.Data
		if _, ok := users.ParseRole(string(profile.Role)); !ok {
			profile.Role = m.session.User.Role
		}
		m.session.User = &profile
	}
	m.mu.Unlock()
	m.publish()

	m.notifier.Success("Profile updated")
	return true
}

// UploadImage uploads an image and returns the stored filename.
func (m *Manager) UploadImage(ctx context.Context, filename string, r io.Reader) (string, bool) {
	token, ok := m.ValidToken(ctx, true)
	if !ok {
		m.notifier.Error("Please log in again")
		return "", false
	}

	res := m.api.UploadImage(ctx, token, filename, r)
	if !res.OK {
		m.notifier.Error(messageOr(res.Message, "Failed to upload image"))
		return "", false
	}
	m.notifier.Success("Image uploaded")
	return res.Data, true
}

// DeleteAccount deletes the logged in user and ends the session.
func (m *Manager) DeleteAccount(ctx context.Context) bool {
	user := m.Snapshot().User
	if user == nil {
		if user = m.FetchUserData(ctx); user == nil {
			m.notifier.Error("Please log in again")
			return false
		}
	}
	token, ok := m.ValidToken(ctx, true)
	if !ok {
		m.notifier.Error("Please log in again")
		return false
	}

	res := m.api.DeleteUser(ctx, token, user.ID)
	if !res.OK {
		m.notifier.Error(messageOr(res.Message, "Failed to delete account"))
		return false
	}

	m.logout(ctx, ReasonAccountDeleted)
	m.notifier.Success("Account deleted")
	return true
}

// Logout clears the session, its durable keys and the liked items, and
// disarms the refresh timer. Calling it again is a no-op.
func (m *Manager) Logout(ctx context.Context) {
	m.logout(ctx, ReasonUser)
}

func (m *Manager) logout(_ context.Context, reason string) {
	m.scheduler.Stop()

	m.mu.Lock()
	active := m.session.AccessToken != "" || m.session.RefreshToken != "" || m.session.User != nil
	m.session = Session{}
	keys := []string{storage.KeyAccessToken, storage.KeyRefreshToken}
	// A guest's liked items survive a forced logout; only an ended session or
	// an explicit logout clears them.
	if active || reason == ReasonUser {
		keys = append(keys, storage.KeyLiked)
	}
	if err := m.store.Delete(keys...); err != nil {
		m.logger.Warn().Err(err).Msg("failed to clear session storage")
	}
	m.mu.Unlock()

	if !active {
		return
	}
	m.metrics.Logout(reason)
	m.logger.Info().Str("reason", reason).Msg("logged out")
	m.publish()
}

// ValidToken returns the access token when it is not within the refresh
// leeway of its expiry and otherwise refreshes it. shouldLogout decides
// whether a failed refresh ends the session.
func (m *Manager) ValidToken(ctx context.Context, shouldLogout bool) (string, bool) {
	token := m.Snapshot().AccessToken
	if token != "" {
		if exp, err := jwt.Expiry(token); err == nil && refresh.Delay(exp, m.clock.Now(), m.leeway) > 0 {
			return token, true
		}
	}
	return m.scheduler.Refresh(ctx, shouldLogout)
}

// Snapshot returns a copy of the session.
func (m *Manager) Snapshot() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.clone()
}

func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.IsAuthenticated()
}

// Role is the profile role, else the token role, else USER. It is empty when
// logged out.
func (m *Manager) Role() users.Role {
	snap := m.Snapshot()
	switch {
	case !snap.IsAuthenticated():
		return ""
	case snap.User != nil && snap.User.Role != "":
		return snap.User.Role
	}
	return roleFromToken(snap.AccessToken)
}

// RefreshState reports the refresh timer state.
func (m *Manager) RefreshState() refresh.State {
	return m.scheduler.State()
}

// NextRefresh is when the access token will be renewed; zero when no timer is
// armed.
func (m *Manager) NextRefresh() time.Time {
	return m.scheduler.NextRefresh()
}

// Subscribe calls fn with a snapshot after every identity change. The returned
// func removes the subscription.
func (m *Manager) Subscribe(fn func(Session)) (cancel func()) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()

	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	return func() {
		m.subsMu.Lock()
		defer m.subsMu.Unlock()
		delete(m.subs, id)
	}
}

func (m *Manager) publish() {
	snap := m.Snapshot()

	m.subsMu.Lock()
	fns := make([]func(Session), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subsMu.Unlock()

	for _, fn := range fns {
		fn(snap.clone())
	}
}

func (m *Manager) persistLocked(key, value string) {
	if err := m.store.Set(key, value); err != nil {
		m.logger.Warn().Err(err).Str("key", key).Msg("failed to persist session")
	}
}

func roleFromToken(token string) users.Role {
	claims, err := jwt.Decode(token)
	if err != nil || !claims.HasRole() {
		return users.RoleUser
	}
	return claims.Role
}

func messageOr(msg, fallback string) string {
	if msg == "" {
		return fallback
	}
	return msg
}
