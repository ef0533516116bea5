package config

import "time"

const defaultBaseURL = "https://findcourse.net.uz/api"

type APIConfig interface {
	GetBaseURL() string
	GetRequestTimeout() time.Duration
	GetRateLimit() float64
	GetRateBurst() int
	GetBreakerFailures() uint32
	GetBreakerCooldown() time.Duration
}

type API struct {
	BaseURL         string        `yaml:"base_url" env:"FINDCOURSE_API_URL" env-default:"https://findcourse.net.uz/api"`
	RequestTimeout  time.Duration `yaml:"request_timeout" env:"FINDCOURSE_REQUEST_TIMEOUT" env-default:"15s"`
	RateLimit       float64       `yaml:"rate_limit" env:"FINDCOURSE_RATE_LIMIT" env-default:"10"` // requests per second, 0 disables
	RateBurst       int           `yaml:"rate_burst" env:"FINDCOURSE_RATE_BURST" env-default:"20"`
	BreakerFailures int           `yaml:"breaker_failures" env:"FINDCOURSE_BREAKER_FAILURES" env-default:"5"` // 0 disables the circuit breaker
	BreakerCooldown time.Duration `yaml:"breaker_cooldown" env:"FINDCOURSE_BREAKER_COOLDOWN" env-default:"30s"`
}

var _ APIConfig = API{}

func (a API) GetBaseURL() string {
	return orDefault(a.BaseURL, defaultBaseURL)
}

func (a API) GetRequestTimeout() time.Duration {
	if a.RequestTimeout <= 0 {
		return 15 * time.Second
	}
	return a.RequestTimeout
}

func (a API) GetRateLimit() float64 {
	return a.RateLimit
}

func (a API) GetRateBurst() int {
	if a.RateBurst <= 0 {
		return 1
	}
	return a.RateBurst
}

func (a API) GetBreakerFailures() uint32 {
	if a.BreakerFailures <= 0 {
		return 0
	}
	return uint32(a.BreakerFailures)
}

func (a API) GetBreakerCooldown() time.Duration {
	if a.BreakerCooldown <= 0 {
		return 30 * time.Second
	}
	return a.BreakerCooldown
}
