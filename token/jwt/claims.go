package jwt

import (
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/findcourse-client/internal/errors"
	"github.com/jrsteele09/findcourse-client/internal/utils"
	"github.com/jrsteele09/findcourse-client/users"
)

// Claims is the part of an access token payload the client reads.
//
// The payload is never verified here. It is a hint for choosing what to show
// and when to refresh; authorization decisions stay with the API.
type Claims struct {
	Exp     time.Time  // Expiry
	Subject string     // User id as issued by the API, may be empty
	Role    users.Role // Empty when the token carries no recognised role
}

// HasRole reports whether the payload carried a recognised role claim.
func (c *Claims) HasRole() bool {
	return c.Role != ""
}

// Decode extracts exp and role from a JWT shaped bearer token without checking
// its signature. A token without a numeric exp claim is rejected.
func Decode(rawToken string) (*Claims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, fmt.Errorf("empty token: %w", apperrors.ErrInvalidToken)
	}

	token, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("parse token: %v: %w", err, apperrors.ErrInvalidToken)
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, fmt.Errorf("error extracting claims: %w", apperrors.ErrInvalidToken)
	}

	exp, ok := claims["exp"].(float64)
	if !ok {
		return nil, fmt.Errorf("token missing exp claim: %w", apperrors.ErrInvalidToken)
	}

	sub := subjectFrom(claims["sub"])
	if sub == "" {
		sub = subjectFrom(claims["id"])
	}

	return &Claims{
		Exp:     time.Unix(int64(exp), 0),
		Subject: sub,
		Role:    roleFrom(claims),
	}, nil
}

// Expiry decodes only the exp claim.
func Expiry(rawToken string) (time.Time, error) {
	c, err := Decode(rawToken)
	if err != nil {
		return time.Time{}, err
	}
	return c.Exp, nil
}

func roleFrom(claims jwtlib.MapClaims) users.Role {
	if raw, ok := claims["role"].(string); ok {
		if role, ok := users.ParseRole(raw); ok {
			return role
		}
	}
	if raw, ok := claims["roles"].([]any); ok {
		if first, ok := utils.FirstString(raw); ok {
			if role, ok := users.ParseRole(first); ok {
				return role
			}
		}
	}
	return ""
}

func subjectFrom(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return fmt.Sprintf("%d", int64(s))
	}
	return ""
}
