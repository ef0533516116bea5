package sessions

import (
	"context"

	apperrors "github.com/jrsteele09/findcourse-client/internal/errors"
	"github.com/jrsteele09/findcourse-client/token/jwt"
	"golang.org/x/oauth2"
)

// TokenSource returns an oauth2.TokenSource backed by the session, so other
// clients can be built with oauth2.NewClient. A failed refresh through it does
// not end the session.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &sessionTokenSource{ctx: ctx, m: m}
}

type sessionTokenSource struct {
	ctx context.Context
	m   *Manager
}

func (s *sessionTokenSource) Token() (*oauth2.Token, error) {
	access, ok := s.m.ValidToken(s.ctx, false)
	if !ok {
		return nil, apperrors.ErrNoSession
	}

	tok := &oauth2.Token{AccessToken: access, TokenType: "Bearer"}
	if exp, err := jwt.Expiry(access); err == nil {
		tok.Expiry = exp
	}
	return tok, nil
}
