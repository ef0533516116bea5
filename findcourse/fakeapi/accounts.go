package fakeapi

import (
	"sort"
	"strings"
	"sync"

	apperrors "github.com/jrsteele09/findcourse-client/internal/errors"
	"github.com/jrsteele09/findcourse-client/users"
)

type account struct {
	profile      users.Profile
	passwordHash string
}

// accountRepo keeps registered users keyed by id with an email index.
type accountRepo struct {
	accounts map[int]*account
	emailIDs map[string]int // email to user id
	nextID   int
	lock     sync.RWMutex
}

func newAccountRepo() *accountRepo {
	return &accountRepo{
		accounts: make(map[int]*account),
		emailIDs: make(map[string]int),
		nextID:   1,
	}
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *accountRepo) add(profile users.Profile, passwordHash string) (users.Profile, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	email := normaliseEmail(profile.Email)
	if _, ok := r.emailIDs[email]; ok {
		return users.Profile{}, apperrors.Wrapf(apperrors.ErrValidation, "email %s already registered", email)
	}
	if profile.ID == 0 {
		profile.ID = r.nextID
	}
	if profile.ID >= r.nextID {
		r.nextID = profile.ID + 1
	}
	if profile.Role == "" {
		profile.Role = users.RoleUser
	}
	profile.Email = email

	r.accounts[profile.ID] = &account{profile: profile, passwordHash: passwordHash}
	r.emailIDs[email] = profile.ID
	return profile, nil
}

func (r *accountRepo) byEmail(email string) (*account, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	id, ok := r.emailIDs[normaliseEmail(email)]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	a := *r.accounts[id]
	return &a, nil
}

func (r *accountRepo) byID(id int) (*account, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	a, ok := r.accounts[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// update applies a partial profile. Changing the email moves the index entry.
func (r *accountRepo) update(id int, u users.ProfileUpdate) (users.Profile, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return users.Profile{}, apperrors.ErrNotFound
	}

	oldEmail := a.profile.Email
	next := a.profile
	u.Apply(&next)
	next.Email = normaliseEmail(next.Email)
	if next.Email != oldEmail {
		if _, taken := r.emailIDs[next.Email]; taken {
			return users.Profile{}, apperrors.Wrapf(apperrors.ErrValidation, "email %s already registered", next.Email)
		}
		delete(r.emailIDs, oldEmail)
		r.emailIDs[next.Email] = id
	}
	a.profile = next
	return next, nil
}

func (r *accountRepo) delete(id int) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	delete(r.emailIDs, a.profile.Email)
	delete(r.accounts, id)
	return nil
}

func (r *accountRepo) list() []users.Profile {
	r.lock.RLock()
	defer r.lock.RUnlock()

	out := make([]users.Profile, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, a.profile)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}
