// Package entity keeps one shared copy of each fetched entity so that views
// showing the same prediction observe each other's writes.
package entity

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/callingitnow/callit/internal/model"
)

const DefaultSize = 1024

type Store[V any] struct {
	mu      sync.Mutex
	cache   *lru.Cache[model.Key, V]
	subs    map[model.Key]map[uint64]func(V)
	nextSub uint64
}

func New[V any](size int) (*Store[V], error) {
	if size <= 0 {
		size = DefaultSize
	}
	c, err := lru.New[model.Key, V](size)
	if err != nil {
		return nil, err
	}
	return &Store[V]{cache: c, subs: make(map[model.Key]map[uint64]func(V))}, nil
}

func (s *Store[V]) Get(key model.Key) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Get(key)
}

// Put stores v and notifies subscribers of key.
func (s *Store[V]) Put(key model.Key, v V) {
	s.mu.Lock()
	s.cache.Add(key, v)
	fns := s.subscribersLocked(key)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

// Update applies fn to the current value under the store lock. fn reports
// whether its result should be stored; subscribers run only then.
func (s *Store[V]) Update(key model.Key, fn func(cur V, ok bool) (V, bool)) (V, bool) {
	s.mu.Lock()
	cur, ok := s.cache.Get(key)
	next, write := fn(cur, ok)
	if !write {
		s.mu.Unlock()
		return cur, false
	}
	s.cache.Add(key, next)
	fns := s.subscribersLocked(key)
	s.mu.Unlock()
	for _, f := range fns {
		f(next)
	}
	return next, true
}

func (s *Store[V]) Remove(key model.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Remove(key)
}

func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}

// Subscribe calls fn after every write to key. Callbacks run on the writer's
// goroutine, outside the store lock.
func (s *Store[V]) Subscribe(key model.Key, fn func(V)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	id := s.nextSub
	if s.subs[key] == nil {
		s.subs[key] = make(map[uint64]func(V))
	}
	s.subs[key][id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs[key], id)
			if len(s.subs[key]) == 0 {
				delete(s.subs, key)
			}
		})
	}
}

func (s *Store[V]) subscribersLocked(key model.Key) []func(V) {
	m := s.subs[key]
	if len(m) == 0 {
		return nil
	}
	out := make([]func(V), 0, len(m))
	for _, fn := range m {
		out = append(out, fn)
	}
	return out
}
