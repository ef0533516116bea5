// Package fakeapi is an in-memory stand-in for the findcourse REST API. It
// signs real HS256 access tokens against its own clock so session refresh
// timing can be driven end to end in tests and in the CLI demo mode.
package fakeapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/jrsteele09/findcourse-client/centers"
	"github.com/jrsteele09/findcourse-client/findcourse"
	"github.com/jrsteele09/findcourse-client/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultAccessTTL = time.Hour

// Route patterns, as registered on the mux.
const (
	PatternLogin      = "POST " + findcourse.RouteLogin
	PatternRefresh    = "POST " + findcourse.RouteRefreshToken
	PatternMyData     = "GET " + findcourse.RouteMyData
	PatternUpdateUser = "PATCH " + findcourse.RouteUsers + "/{id}"
	PatternDeleteUser = "DELETE " + findcourse.RouteUsers + "/{id}"
	PatternUpload     = "POST " + findcourse.RouteUpload
	PatternLiked      = "GET " + findcourse.RouteLiked
	PatternLike       = "POST " + findcourse.RouteLiked
	PatternUnlike     = "DELETE " + findcourse.RouteLiked + "/{id}"
	PatternCenters    = "GET " + findcourse.RouteCenters
)

type contextKey string

const contextKeyUserID contextKey = "user_id"

// Server implements the API endpoints the client uses.
type Server struct {
	clock      clockwork.Clock
	accessTTL  time.Duration
	signingKey []byte
	roleClaim  bool
	logger     zerolog.Logger

	accounts *accountRepo
	refresh  *refreshTokens
	mux      *http.ServeMux

	lock       sync.Mutex
	centers    []centers.Center
	liked      []findcourse.LikedItem
	nextLikeID int
	uploads    []string
	hideRole   bool
	failures   map[string]int           // Pattern to forced status
	holds      map[string]chan struct{} // Pattern to gate closed on release
	calls      map[string]int
}

type Option func(*Server)

// WithClock sets the clock used for issuing and verifying tokens.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Server) {
		s.clock = clock
	}
}

func WithAccessTTL(ttl time.Duration) Option {
	return func(s *Server) {
		s.accessTTL = ttl
	}
}

func WithSigningKey(key []byte) Option {
	return func(s *Server) {
		s.signingKey = key
	}
}

// WithoutRoleClaim issues access tokens with no role claim.
func WithoutRoleClaim() Option {
	return func(s *Server) {
		s.roleClaim = false
	}
}

func WithCenters(list []centers.Center) Option {
	return func(s *Server) {
		s.centers = append([]centers.Center(nil), list...)
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

func New(options ...Option) *Server {
	s := &Server{
		clock:      clockwork.NewRealClock(),
		accessTTL:  defaultAccessTTL,
		signingKey: []byte("fakeapi-signing-key"),
		roleClaim:  true,
		logger:     log.Logger,
		accounts:   newAccountRepo(),
		refresh:    newRefreshTokens(),
		mux:        http.NewServeMux(),
		nextLikeID: 1,
		failures:   make(map[string]int),
		holds:      make(map[string]chan struct{}),
		calls:      make(map[string]int),
	}
	for _, opt := range options {
		opt(s)
	}
	s.initRoutes()
	return s
}

// Handler returns the HTTP handler, ready for httptest.NewServer.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// AddUser registers a user with a bcrypt hashed password and returns the
// stored profile with its assigned id. Weak passwords are rejected.
func (s *Server) AddUser(profile users.Profile, password string) (users.Profile, error) {
	if err := users.ValidatePasswordStrength(password); err != nil {
		return users.Profile{}, err
	}
	hash, err := users.HashPassword(password)
	if err != nil {
		return users.Profile{}, err
	}
	return s.accounts.add(profile, hash)
}

// User returns the stored profile for id.
func (s *Server) User(id int) (users.Profile, bool) {
	a, err := s.accounts.byID(id)
	if err != nil {
		return users.Profile{}, false
	}
	return a.profile, true
}

func (s *Server) Users() []users.Profile {
	return s.accounts.list()
}

// IssueTokens logs userID in without a password, for seeding sessions.
func (s *Server) IssueTokens(userID int) (findcourse.TokenPair, error) {
	a, err := s.accounts.byID(userID)
	if err != nil {
		return findcourse.TokenPair{}, err
	}
	access, err := s.issueAccessToken(a.profile)
	if err != nil {
		return findcourse.TokenPair{}, err
	}
	return findcourse.TokenPair{AccessToken: access, RefreshToken: s.refresh.issue(userID)}, nil
}

// RevokeRefreshTokens invalidates every refresh token issued so far.
func (s *Server) RevokeRefreshTokens() {
	s.refresh.revokeUser(0)
}

// HideProfileRole makes the profile endpoint omit the role field.
func (s *Server) HideProfileRole(hide bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.hideRole = hide
}

// Fail forces every request on pattern to answer status. Status 0 clears it.
func (s *Server) Fail(pattern string, status int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if status == 0 {
		delete(s.failures, pattern)
		return
	}
	s.failures[pattern] = status
}

// Hold parks requests on pattern until the returned release is called.
func (s *Server) Hold(pattern string) (release func()) {
	s.lock.Lock()
	defer s.lock.Unlock()

	gate := make(chan struct{})
	s.holds[pattern] = gate
	var once sync.Once
	return func() {
		once.Do(func() {
			s.lock.Lock()
			if s.holds[pattern] == gate {
				delete(s.holds, pattern)
			}
			s.lock.Unlock()
			close(gate)
		})
	}
}

// Calls returns how many requests reached pattern, including failed ones.
func (s *Server) Calls(pattern string) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.calls[pattern]
}

// Uploads returns the stored upload filenames in order.
func (s *Server) Uploads() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]string(nil), s.uploads...)
}

func (s *Server) initRoutes() {
	s.RegisterRouteFunc(PatternLogin, s.LoginHandler())
	s.RegisterRouteFunc(PatternRefresh, s.RefreshTokenHandler())
	s.RegisterRouteFunc(PatternCenters, s.CentersHandler())

	// Bearer protected
	s.RegisterRouteFunc(PatternMyData, ChainMiddleware(s.MyDataHandler(), s.RequireAuth()))
	s.RegisterRouteFunc(PatternUpdateUser, ChainMiddleware(s.UpdateUserHandler(), s.RequireAuth()))
	s.RegisterRouteFunc(PatternDeleteUser, ChainMiddleware(s.DeleteUserHandler(), s.RequireAuth()))
	s.RegisterRouteFunc(PatternUpload, ChainMiddleware(s.UploadHandler(), s.RequireAuth()))
	s.RegisterRouteFunc(PatternLiked, ChainMiddleware(s.LikedHandler(), s.RequireAuth()))
	s.RegisterRouteFunc(PatternLike, ChainMiddleware(s.LikeHandler(), s.RequireAuth()))
	s.RegisterRouteFunc(PatternUnlike, ChainMiddleware(s.UnlikeHandler(), s.RequireAuth()))
}

// RegisterRouteFunc mounts a handler behind the standard middleware for pattern.
func (s *Server) RegisterRouteFunc(pattern string, h http.HandlerFunc) {
	s.mux.HandleFunc(pattern, ChainMiddleware(h, s.LoggingMiddleware, s.RecoverMiddleware, s.injectionMiddleware(pattern)))
}

func ChainMiddleware(routeFunction http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	chainedHandler := routeFunction
	// Apply middleware in reverse order
	for i := len(mw) - 1; i >= 0; i-- {
		chainedHandler = mw[i](chainedHandler)
	}
	return chainedHandler
}

func (s *Server) LoggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", r.Header.Get("X-Request-ID")).
			Dur("took", time.Since(start)).
			Msg("fakeapi request")
	}
}

func (s *Server) RecoverMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("fakeapi handler panicked")
				writeMessage(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next(w, r)
	}
}

// injectionMiddleware counts calls and applies Hold and Fail for pattern.
func (s *Server) injectionMiddleware(pattern string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			s.lock.Lock()
			s.calls[pattern]++
			gate := s.holds[pattern]
			s.lock.Unlock()

			if gate != nil {
				select {
				case <-gate:
				case <-r.Context().Done():
					return
				}
			}

			s.lock.Lock()
			status := s.failures[pattern]
			s.lock.Unlock()
			if status != 0 {
				writeMessage(w, status, http.StatusText(status))
				return
			}
			next(w, r)
		}
	}
}

// RequireAuth validates the Bearer access token and stores the user id in the
// request context.
func (s *Server) RequireAuth() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeMessage(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			userID, err := s.verifyAccessToken(token)
			if err != nil {
				writeMessage(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			if _, err := s.accounts.byID(userID); err != nil {
				writeMessage(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next(w, r.WithContext(context.WithValue(r.Context(), contextKeyUserID, userID)))
		}
	}
}

func userIDFrom(ctx context.Context) int {
	id, _ := ctx.Value(contextKeyUserID).(int)
	return id
}
