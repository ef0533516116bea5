package sessions

import (
	"context"

	"github.com/jrsteele09/findcourse-client/storage"
	"github.com/jrsteele09/findcourse-client/token/refresh"
)

// holder gives the refresh scheduler compare-and-set access to the session.
type holder struct {
	m *Manager
}

var _ refresh.TokenHolder = holder{}

func (h holder) RefreshToken() string {
	h.m.mu.RLock()
	defer h.m.mu.RUnlock()
	return h.m.session.RefreshToken
}

func (h holder) SetAccessToken(refreshToken, accessToken string) bool {
	h.m.mu.Lock()
	if refreshToken == "" || h.m.session.RefreshToken != refreshToken {
		h.m.mu.Unlock()
		return false
	}
	changed := h.m.session.AccessToken != accessToken
	h.m.session.AccessToken = accessToken
	if changed {
		h.m.persistLocked(storage.KeyAccessToken, accessToken)
	}
	h.m.mu.Unlock()

	if changed {
		h.m.publish()
	}
	return true
}

// Logout is the forced path: the session ended because it could not be kept
// alive, so the user is told.
func (h holder) Logout(ctx context.Context, reason string) {
	active := h.m.IsAuthenticated() || h.RefreshToken() != ""
	h.m.logout(ctx, reason)
	if active {
		h.m.notifier.Error("Session expired, please log in again")
	}
}

// apiRefresher adapts the REST client to refresh.Refresher.
type apiRefresher struct {
	api API
}

func (r apiRefresher) Refresh(ctx context.Context, refreshToken string) (string, error) {
	res := r.api.Refresh(ctx, refreshToken)
	if !res.OK {
		return "", res.Err()
	}
	return res.Data.AccessToken, nil
}
