package credstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/xingyunzhou/augment2api/pkg/cache"
)

type MemoryStore struct {
	items *cache.TTLMap[string, []byte]
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: cache.NewTTLMap[string, []byte](), now: time.Now}
}

func (s *MemoryStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.items.SetWithTTL(key, append([]byte(nil), value...), s.now(), ttl)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := s.items.GetFresh(key, s.now())
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *MemoryStore) Take(_ context.Context, key string) ([]byte, error) {
	v, ok := s.items.Take(key, s.now())
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.items.Delete(key)
	return nil
}

func (s *MemoryStore) List(_ context.Context, prefix string) ([]Entry, error) {
	now := s.now()
	out := []Entry{}
	for k, e := range s.items.Entries() {
		if !strings.HasPrefix(k, prefix) || e.Expired(now) {
			continue
		}
		out = append(out, Entry{Key: k, Value: append([]byte(nil), e.Value...), ExpiresAt: e.ExpiresAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	return s.items.Sweep(now), nil
}

func (s *MemoryStore) Close() error { return nil }
