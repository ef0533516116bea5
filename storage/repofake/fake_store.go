package repofake

import (
	"sort"
	"sync"

	"github.com/jrsteele09/findcourse-client/storage"
)

var _ storage.Store = (*FakeStore)(nil)

type FakeStore struct {
	values map[string]string
	lock   sync.RWMutex
	fail   error
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		values: make(map[string]string),
	}
}

// FailWith makes every following call return err. Pass nil to recover.
func (s *FakeStore) FailWith(err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.fail = err
}

func (s *FakeStore) Get(key string) (string, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if s.fail != nil {
		return "", s.fail
	}
	v, ok := s.values[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (s *FakeStore) Set(key, value string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.fail != nil {
		return s.fail
	}
	s.values[key] = value
	return nil
}

func (s *FakeStore) Delete(keys ...string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.fail != nil {
		return s.fail
	}
	for _, k := range keys {
		delete(s.values, k)
	}
	return nil
}

// Keys lists the stored keys in order.
func (s *FakeStore) Keys() []string {
	s.lock.RLock()
	defer s.lock.RUnlock()

	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
