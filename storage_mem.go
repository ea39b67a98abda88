package flatshelf

import (
	"slices"
	"sort"
)

// memStorage is a transient in-memory flatStore, mostly intended for tests.
type memStorage struct {
	items  []memKV // sorted by key
	closed bool
}

type memKV struct {
	key   string
	value []byte
}

func newMemStorage() flatStore {
	return &memStorage{}
}

func (s *memStorage) find(key string) (idx int, ok bool) {
	items := s.items
	i := sort.Search(len(items), func(i int) bool {
		return items[i].key >= key
	})
	if i < len(items) && items[i].key == key {
		return i, true
	}
	return i, false
}

func (s *memStorage) Get(key string) ([]byte, error) {
	if s.closed {
		return nil, ErrClosed
	}
	i, ok := s.find(key)
	if !ok {
		return nil, ErrKeyNotFound
	}
	return slices.Clone(s.items[i].value), nil
}

func (s *memStorage) Put(key string, value []byte) error {
	if s.closed {
		return ErrClosed
	}
	value = slices.Clone(value)
	i, ok := s.find(key)
	if ok {
		s.items[i].value = value
		return nil
	}
	s.items = slices.Insert(s.items, i, memKV{key: key, value: value})
	return nil
}

func (s *memStorage) Delete(key string) error {
	if s.closed {
		return ErrClosed
	}
	i, ok := s.find(key)
	if !ok {
		return nil
	}
	s.items = slices.Delete(s.items, i, i+1)
	return nil
}

func (s *memStorage) Has(key string) (bool, error) {
	if s.closed {
		return false, ErrClosed
	}
	_, ok := s.find(key)
	return ok, nil
}

func (s *memStorage) ForEach(f func(key string, value []byte) error) error {
	if s.closed {
		return ErrClosed
	}
	for _, kv := range slices.Clone(s.items) {
		if err := f(kv.key, slices.Clone(kv.value)); err != nil {
			return err
		}
	}
	return nil
}

func (s *memStorage) Clear() error {
	if s.closed {
		return ErrClosed
	}
	s.items = nil
	return nil
}

func (s *memStorage) Sync() error {
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *memStorage) Close() error {
	s.closed = true
	s.items = nil
	return nil
}
