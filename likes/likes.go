// Package likes keeps the user's liked centers in local storage and in step
// with the API.
//
// The stored list is not scoped to a user. It survives switching accounts and
// is only cleared by a logout that ends a session or is asked for explicitly.
package likes

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/jrsteele09/findcourse-client/findcourse"
	apperrors "github.com/jrsteele09/findcourse-client/internal/errors"
	"github.com/jrsteele09/findcourse-client/notify"
	"github.com/jrsteele09/findcourse-client/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// API is the liked items part of the REST client.
type API interface {
	Liked(ctx context.Context, accessToken string) findcourse.Result[[]findcourse.LikedItem]
	Like(ctx context.Context, accessToken string, centerID int) findcourse.Result[findcourse.LikedItem]
	Unlike(ctx context.Context, accessToken string, likeID int) findcourse.Result[struct{}]
}

var _ API = (*findcourse.Client)(nil)

// TokenProvider hands out a usable access token; sessions.Manager is one.
type TokenProvider interface {
	ValidToken(ctx context.Context, shouldLogout bool) (string, bool)
}

type Service struct {
	api      API
	tokens   TokenProvider
	store    storage.Store
	notifier notify.Notifier
	logger   zerolog.Logger

	toggles singleflight.Group
	mu      sync.Mutex // Serialises read-modify-write of the stored list
}

type Option func(*Service)

func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

func New(api API, tokens TokenProvider, store storage.Store, options ...Option) *Service {
	s := &Service{
		api:      api,
		tokens:   tokens,
		store:    store,
		notifier: notify.Discard{},
		logger:   log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// List returns the stored liked items, empty when nothing is stored.
func (s *Service) List() []findcourse.LikedItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Service) IsLiked(centerID int) bool {
	_, ok := find(s.List(), centerID)
	return ok
}

// Sync replaces the stored list with the server's.
func (s *Service) Sync(ctx context.Context) bool {
	token, ok := s.tokens.ValidToken(ctx, false)
	if !ok {
		return false
	}

	res := s.api.Liked(ctx, token)
	if !res.OK {
		s.logger.Warn().Str("kind", res.Kind.String()).Str("message", res.Message).Msg("failed to load liked items")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(res.Data) == nil
}

type toggleResult struct {
	liked bool
}

// Toggle likes centerID, or unlikes it when already liked. Overlapping toggles
// of the same center share one request, which outlives any single caller's
// cancellation. It reports the resulting liked state and whether the change
// went through.
func (s *Service) Toggle(ctx context.Context, centerID int) (liked bool, ok bool) {
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.toggles.Do(strconv.Itoa(centerID), func() (any, error) {
		return s.toggle(shared, centerID)
	})
	if err != nil {
		s.logger.Warn().Err(err).Int("center_id", centerID).Msg("failed to toggle like")
		s.notifier.Error(userMessage(err))
		return s.IsLiked(centerID), false
	}
	return v.(toggleResult).liked, true
}

func (s *Service) toggle(ctx context.Context, centerID int) (toggleResult, error) {
	token, ok := s.tokens.ValidToken(ctx, true)
	if !ok {
		return toggleResult{}, apperrors.ErrNoSession
	}

	if item, liked := find(s.List(), centerID); liked {
		res := s.api.Unlike(ctx, token, item.ID)
		if !res.OK && res.Kind != findcourse.KindNotFound {
			return toggleResult{}, res.Err()
		}
		s.update(func(items []findcourse.LikedItem) []findcourse.LikedItem {
			return remove(items, centerID)
		})
		s.notifier.Success("Removed from favourites")
		return toggleResult{liked: false}, nil
	}

	res := s.api.Like(ctx, token, centerID)
	if !res.OK {
		return toggleResult{}, res.Err()
	}
	s.update(func(items []findcourse.LikedItem) []findcourse.LikedItem {
		return append(remove(items, centerID), res.Data)
	})
	s.notifier.Success("Added to favourites")
	return toggleResult{liked: true}, nil
}

func (s *Service) update(fn func([]findcourse.LikedItem) []findcourse.LikedItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.saveLocked(fn(s.loadLocked()))
}

func (s *Service) loadLocked() []findcourse.LikedItem {
	raw, err := s.store.Get(storage.KeyLiked)
	if err != nil {
		if !apperrors.Is(err, storage.ErrNotFound) {
			s.logger.Warn().Err(err).Msg("failed to read liked items")
		}
		return []findcourse.LikedItem{}
	}

	var items []findcourse.LikedItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		s.logger.Warn().Err(err).Msg("discarding unreadable liked items")
		return []findcourse.LikedItem{}
	}
	return items
}

func (s *Service) saveLocked(items []findcourse.LikedItem) error {
	if items == nil {
		items = []findcourse.LikedItem{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return apperrors.Wrapf(err, "encode liked items")
	}
	if err := s.store.Set(storage.KeyLiked, string(raw)); err != nil {
		s.logger.Warn().Err(err).Msg("failed to persist liked items")
		return err
	}
	return nil
}

func userMessage(err error) string {
	if apperrors.Is(err, apperrors.ErrNoSession) {
		return "Please log in to like centers"
	}
	return "Failed to update favourites"
}

func find(items []findcourse.LikedItem, centerID int) (findcourse.LikedItem, bool) {
	for _, item := range items {
		if item.CenterID == centerID {
			return item, true
		}
	}
	return findcourse.LikedItem{}, false
}

func remove(items []findcourse.LikedItem, centerID int) []findcourse.LikedItem {
	out := make([]findcourse.LikedItem, 0, len(items))
	for _, item := range items {
		if item.CenterID != centerID {
			out = append(out, item)
		}
	}
	return out
}
