package config

import "time"

type SessionConfig interface {
	GetRefreshLeeway() time.Duration
	GetRefreshTimeout() time.Duration
}

type Session struct {
	RefreshLeeway  time.Duration `yaml:"refresh_leeway" env:"SESSION_REFRESH_LEEWAY" env-default:"30s"`
	RefreshTimeout time.Duration `yaml:"refresh_timeout" env:"SESSION_REFRESH_TIMEOUT" env-default:"10s"`
}

var _ SessionConfig = Session{}

// GetRefreshLeeway is how long before expiry the access token is renewed.
func (s Session) GetRefreshLeeway() time.Duration {
	if s.RefreshLeeway <= 0 {
		return 30 * time.Second
	}
	return s.RefreshLeeway
}

func (s Session) GetRefreshTimeout() time.Duration {
	if s.RefreshTimeout <= 0 {
		return 10 * time.Second
	}
	return s.RefreshTimeout
}
