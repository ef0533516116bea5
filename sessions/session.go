package sessions

import (
	"github.com/jrsteele09/findcourse-client/users"
)

// Session is the client's identity. Empty strings mean no token.
type Session struct {
	AccessToken  string         // Bearer token sent on authenticated calls
	RefreshToken string         // Exchanged for a new access token before expiry
	User         *users.Profile // Set only after a profile fetch for the current tokens
}

// IsAuthenticated reports whether an access token is held.
func (s Session) IsAuthenticated() bool {
	return s.AccessToken != ""
}

// clone returns a copy that shares nothing with s.
func (s Session) clone() Session {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// LoginResult is what a login form needs to branch on.
type LoginResult struct {
	Success bool
	Role    users.Role // Set on success
	Message string     // Set on failure, suitable for display
}
