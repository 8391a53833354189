package cache

import (
	"strings"
	"sync"
	"time"
)

// Resource names a family of cached collections.
type Resource string

const (
	ResourceHabits       Resource = "habits"
	ResourceEntries      Resource = "entries"
	ResourceHabitEntries Resource = "habit_entries"
	ResourceDashboard    Resource = "dashboard"
	ResourceFriends      Resource = "friends"
)

// Key identifies one cached payload. Params distinguishes members of the
// same resource family, e.g. the habit id for per-habit entry lists.
type Key struct {
	Resource Resource
	Params   string
}

func NewKey(resource Resource, params ...string) Key {
	return Key{Resource: resource, Params: strings.Join(params, "/")}
}

func (k Key) String() string {
	if k.Params == "" {
		return string(k.Resource)
	}
	return string(k.Resource) + ":" + k.Params
}

// Entry is a cached payload with its freshness metadata.
type Entry struct {
	Payload   any
	FetchedAt time.Time
	TTL       time.Duration
	ETag      string
	// Invalidated entries are never fresh but keep their payload as a
	// fallback for failed revalidations.
	Invalidated bool
}

// Fresh reports whether now - FetchedAt < TTL.
func (e Entry) Fresh(now time.Time) bool {
	if e.Invalidated {
		return false
	}
	return now.Sub(e.FetchedAt) < e.TTL
}

func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}

// Store is an in-memory TTL cache safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[Key]*Entry
	now     func() time.Time
}

type Option func(*Store)

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		entries: make(map[Key]*Entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the payload for key only while it is fresh. A miss means the
// caller must fetch.
func (s *Store) Get(key Key) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok || !e.Fresh(s.now()) {
		return nil, false
	}
	return e.Payload, true
}

// Peek returns the entry regardless of age.
func (s *Store) Peek(key Key) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (s *Store) Set(key Key, payload any, ttl time.Duration, etag string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = &Entry{
		Payload:   payload,
		FetchedAt: s.now(),
		TTL:       ttl,
		ETag:      etag,
	}
}

// Touch restarts the TTL of an existing entry without replacing its payload.
// It reports false when key is absent.
func (s *Store) Touch(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false
	}
	e.FetchedAt = s.now()
	e.Invalidated = false
	return true
}

// Invalidate marks key stale. The payload is kept for fallback, the
// validator is dropped so the next fetch is unconditional.
func (s *Store) Invalidate(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		e.Invalidated = true
		e.ETag = ""
	}
}

// InvalidateResource marks every key of the given resource families stale.
func (s *Store) InvalidateResource(resources ...Resource) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, e := range s.entries {
		for _, r := range resources {
			if key.Resource == r {
				e.Invalidated = true
				e.ETag = ""
				n++
				break
			}
		}
	}
	return n
}

func (s *Store) Delete(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Clear drops every entry, e.g. on sign-out.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[Key]*Entry)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Get is a typed wrapper around Store.Get.
func Get[T any](s *Store, key Key) (T, bool) {
	var zero T
	v, ok := s.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
