package storage

import apperrors "github.com/jrsteele09/findcourse-client/internal/errors"

// Durable keys shared by the session and liked items.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyLiked        = "liked-storage"
)

// ErrNotFound is returned by Get for a key that was never set or was deleted.
var ErrNotFound = apperrors.ErrNotFound

// Store is durable local key/value storage for string values.
type Store interface {
	// Get returns the value for key or ErrNotFound
	Get(key string) (string, error)

	// Set creates or replaces the value for key
	Set(key, value string) error

	// Delete removes keys; missing keys are not an error
	Delete(keys ...string) error
}
