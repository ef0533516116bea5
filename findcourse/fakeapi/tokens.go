package fakeapi

import (
	"fmt"
	"strconv"
	"sync"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/findcourse-client/internal/errors"
	"github.com/jrsteele09/findcourse-client/users"
)

// issueAccessToken signs an HS256 access token for the user.
func (s *Server) issueAccessToken(profile users.Profile) (string, error) {
	now := s.clock.Now()
	claims := jwtlib.MapClaims{
		"sub": strconv.Itoa(profile.ID),    // The user the token was issued to
		"iat": now.Unix(),                  // Issued At
		"exp": now.Add(s.accessTTL).Unix(), // Expiry, read by the client to schedule refreshes
		"jti": uuid.New().String(),         // Unique token id
	}
	if s.roleClaim {
		claims["role"] = string(profile.Role)
	}

	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT token: %w", err)
	}
	return signed, nil
}

// verifyAccessToken checks the signature and expiry against the server clock
// and returns the user id in sub.
func (s *Server) verifyAccessToken(raw string) (int, error) {
	token, err := jwtlib.Parse(raw, func(t *jwtlib.Token) (any, error) {
		return s.signingKey, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithTimeFunc(s.clock.Now),
		jwtlib.WithExpirationRequired(),
	)
	if err != nil {
		return 0, fmt.Errorf("%v: %w", err, apperrors.ErrUnauthorized)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil {
		return 0, fmt.Errorf("%v: %w", err, apperrors.ErrUnauthorized)
	}
	id, err := strconv.Atoi(sub)
	if err != nil {
		return 0, fmt.Errorf("subject %q: %w", sub, apperrors.ErrUnauthorized)
	}
	return id, nil
}

// refreshTokens maps opaque refresh tokens to user ids.
type refreshTokens struct {
	tokens map[string]int
	lock   sync.RWMutex
}

func newRefreshTokens() *refreshTokens {
	return &refreshTokens{tokens: make(map[string]int)}
}

func (r *refreshTokens) issue(userID int) string {
	r.lock.Lock()
	defer r.lock.Unlock()

	token := uuid.New().String()
	r.tokens[token] = userID
	return token
}

func (r *refreshTokens) lookup(token string) (int, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	id, ok := r.tokens[token]
	return id, ok
}

// revokeUser drops every refresh token issued to userID; userID 0 drops all.
func (r *refreshTokens) revokeUser(userID int) {
	r.lock.Lock()
	defer r.lock.Unlock()

	for token, id := range r.tokens {
		if userID == 0 || id == userID {
			delete(r.tokens, token)
		}
	}
}
