package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore() (*Store, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)}
	return New(WithClock(clock.Now)), clock
}

func TestStoreFreshnessBoundary(t *testing.T) {
	s, clock := newTestStore()
	key := NewKey(ResourceHabits)
	ttl := 30 * time.Minute

	s.Set(key, []string{"a"}, ttl, "")

	clock.Advance(ttl - time.Millisecond)
	got, ok := s.Get(key)
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, got)

	clock.Advance(2 * time.Millisecond)
	_, ok = s.Get(key)
	assert.False(t, ok, "entry past its ttl must miss")

	e, ok := s.Peek(key)
	require.True(t, ok, "stale payload stays available to Peek")
	assert.Equal(t, []string{"a"}, e.Payload)
}

func TestStoreTouchResetsTimestamp(t *testing.T) {
	s, clock := newTestStore()
	key := NewKey(ResourceEntries)
	s.Set(key, 1, time.Minute, "v1")

	clock.Advance(2 * time.Minute)
	_, ok := s.Get(key)
	require.False(t, ok)

	assert.True(t, s.Touch(key))
	got, ok := s.Get(key)
	require.True(t, ok)
	assert.Equal(t, 1, got)

	e, _ := s.Peek(key)
	assert.Equal(t, "v1", e.ETag)

	assert.False(t, s.Touch(NewKey(ResourceFriends)))
}

func TestStoreInvalidateKeepsPayload(t *testing.T) {
	s, _ := newTestStore()
	key := NewKey(ResourceHabits)
	s.Set(key, "payload", time.Hour, "etag")

	s.Invalidate(key)

	_, ok := s.Get(key)
	assert.False(t, ok)

	e, ok := s.Peek(key)
	require.True(t, ok)
	assert.Equal(t, "payload", e.Payload)
	assert.Empty(t, e.ETag)
	assert.True(t, e.Invalidated)
}

func TestStoreInvalidateResourceFamily(t *testing.T) {
	s, _ := newTestStore()
	s.Set(NewKey(ResourceHabitEntries, "h1"), 1, time.Hour, "")
	s.Set(NewKey(ResourceHabitEntries, "h2"), 2, time.Hour, "")
	s.Set(NewKey(ResourceHabits), 3, time.Hour, "")

	n := s.InvalidateResource(ResourceHabitEntries)
	assert.Equal(t, 2, n)

	_, ok := s.Get(NewKey(ResourceHabitEntries, "h1"))
	assert.False(t, ok)
	_, ok = s.Get(NewKey(ResourceHabitEntries, "h2"))
	assert.False(t, ok)
	_, ok = s.Get(NewKey(ResourceHabits))
	assert.True(t, ok, "other families are untouched")
}

func TestKeysDoNotCollide(t *testing.T) {
	a := NewKey(ResourceHabitEntries, "1")
	b := NewKey(Resource("habit_entries:1"))
	assert.NotEqual(t, a, b)
	assert.Equal(t, "habit_entries:1", a.String())
}

func TestTypedGetAndClear(t *testing.T) {
	s, _ := newTestStore()
	key := NewKey(ResourceFriends)
	s.Set(key, []int{1, 2}, time.Hour, "")

	got, ok := Get[[]int](s, key)
	require.True(t, ok)
	assert.Equal(t, []int{1, 2}, got)

	_, ok = Get[string](s, key)
	assert.False(t, ok, "type mismatch is a miss")

	s.Clear()
	assert.Zero(t, s.Len())
}
