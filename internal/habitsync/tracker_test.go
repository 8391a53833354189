package habitsync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habitTrackerAPI/internal/client"
	"habitTrackerAPI/internal/friend"
	"habitTrackerAPI/internal/habit"
)

var fixedNow = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

// fakeService is an in-memory habit API with request counters.
type fakeService struct {
	mu       sync.Mutex
	habits   []habit.Habit
	entries  []habit.Entry
	friends  []friend.Connection
	version  int
	nextID   int
	failing  bool
	requests map[string]int
	notMod   int
}

func newFakeService() *fakeService {
	return &fakeService{requests: make(map[string]int)}
}

func (f *fakeService) count(route string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[route]
}

func (f *fakeService) setFailing(v bool) {
	f.mu.Lock()
	f.failing = v
	f.mu.Unlock()
}

func (f *fakeService) handler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern string, fn func(w http.ResponseWriter, r *http.Request)) {
		mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.requests[pattern]++
			if f.failing {
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "boom"})
				return
			}
			fn(w, r)
		})
	}
	conditional := func(w http.ResponseWriter, r *http.Request, v any) {
		etag := fmt.Sprintf(`"v%d"`, f.version)
		if r.Header.Get("If-None-Match") == etag {
			f.notMod++
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		_ = json.NewEncoder(w).Encode(v)
	}

	route("GET /api/habits", func(w http.ResponseWriter, r *http.Request) {
		conditional(w, r, f.habits)
	})
	route("GET /api/habits/entries", func(w http.ResponseWriter, r *http.Request) {
		conditional(w, r, f.entries)
	})
	route("GET /api/habits/{id}/entries", func(w http.ResponseWriter, r *http.Request) {
		var out []habit.Entry
		for _, e := range f.entries {
			if e.HabitID == r.PathValue("id") {
				out = append(out, e)
			}
		}
		conditional(w, r, out)
	})
	route("GET /api/dashboard-data", func(w http.ResponseWriter, r *http.Request) {
		conditional(w, r, habit.Dashboard{Habits: f.habits, Entries: f.entries, Timestamp: fixedNow})
	})
	route("POST /api/habits", func(w http.ResponseWriter, r *http.Request) {
		var req habit.CreateHabitRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.nextID++
		f.version++
		h := habit.Habit{ID: fmt.Sprintf("h%d", f.nextID), Name: req.Name, Color: req.Color, Icon: req.Icon,
			TargetFrequency: req.TargetFrequency, IsActive: true, CreatedAt: fixedNow, UpdatedAt: fixedNow}
		f.habits = append([]habit.Habit{h}, f.habits...)
		_ = json.NewEncoder(w).Encode(h)
	})
	route("DELETE /api/habits/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		f.version++
		kept := f.habits[:0]
		for _, h := range f.habits {
			if h.ID != id {
				kept = append(kept, h)
			}
		}
		f.habits = kept
		entries := f.entries[:0]
		for _, e := range f.entries {
			if e.HabitID != id {
				entries = append(entries, e)
			}
		}
		f.entries = entries
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "Habit deleted successfully"})
	})
	route("POST /api/habits/{id}/entries", func(w http.ResponseWriter, r *http.Request) {
		var req habit.ToggleEntryRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		id := r.PathValue("id")
		f.version++
		for i, e := range f.entries {
			if e.HabitID == id && e.Date == req.Date {
				e.Completed = !e.Completed
				if req.Completed != nil {
					e.Completed = *req.Completed
				}
				f.entries[i] = e
				_ = json.NewEncoder(w).Encode(e)
				return
			}
		}
		f.nextID++
		e := habit.Entry{ID: fmt.Sprintf("e%d", f.nextID), HabitID: id, Date: req.Date, Completed: true, CreatedAt: fixedNow}
		f.entries = append(f.entries, e)
		_ = json.NewEncoder(w).Encode(e)
	})
	route("GET /api/friends", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(f.friends)
	})
	route("POST /api/friends", func(w http.ResponseWriter, r *http.Request) {
		var req friend.AddFriendRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		c := friend.Connection{ID: "f1", Status: friend.StatusAccepted, ShareCode: req.Code()}
		f.friends = append(f.friends, c)
		_ = json.NewEncoder(w).Encode(c)
	})
	return mux
}

func newTestTracker(t *testing.T, svc *fakeService, mutate func(*Config)) *Tracker {
	t.Helper()
	server := httptest.NewServer(svc.handler())
	t.Cleanup(server.Close)

	c, err := client.NewClient(server.URL, client.WithToken("test"))
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Now = func() time.Time { return fixedNow }
	if mutate != nil {
		mutate(&cfg)
	}
	return New(c, cfg)
}

func seed(svc *fakeService) {
	svc.habits = []habit.Habit{{ID: "a", Name: "Read", IsActive: true, CreatedAt: time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC)}}
	svc.entries = []habit.Entry{
		{ID: "e-old", HabitID: "a", Date: "2024-01-03", Completed: true},
		{ID: "e-9", HabitID: "a", Date: "2024-01-09", Completed: true},
	}
	svc.nextID = 100
}

func TestTracker_LoadServesSecondReadFromCache(t *testing.T) {
	svc := newFakeService()
	seed(svc)
	tr := newTestTracker(t, svc, nil)
	ctx := context.Background()

	require.NoError(t, tr.Load(ctx))
	require.NoError(t, tr.Load(ctx))

	assert.Equal(t, 1, svc.count("GET /api/dashboard-data"))
	require.Len(t, tr.Habits(), 1)
	assert.Len(t, tr.Entries(), 2)
	assert.True(t, tr.IsCompleted("a", "2024-01-09"))
	assert.False(t, tr.IsCompleted("a", ""))
}

func TestTracker_SplitReads(t *testing.T) {
	svc := newFakeService()
	seed(svc)
	tr := newTestTracker(t, svc, func(c *Config) { c.UseDashboard = false })

	require.NoError(t, tr.Load(context.Background()))

	assert.Equal(t, 0, svc.count("GET /api/dashboard-data"))
	assert.Equal(t, 1, svc.count("GET /api/habits"))
	assert.Equal(t, 1, svc.count("GET /api/habits/entries"))
	assert.Len(t, tr.Habits(), 1)
	assert.Len(t, tr.Entries(), 2)
}

func TestTracker_StatsExcludeDaysBeforeCreation(t *testing.T) {
	svc := newFakeService()
	seed(svc)
	tr := newTestTracker(t, svc, nil)
	require.NoError(t, tr.Load(context.Background()))

	week := tr.Stats(habit.PeriodWeek)
	assert.Equal(t, 1, week.TotalHabits)
	assert.Equal(t, 1, week.CompletedInPeriod)
	// 2024-01-05..2024-01-10 is possible, only 01-09 achieved
	assert.Equal(t, 17, week.CompletionRate)

	today := tr.Stats(habit.PeriodToday)
	assert.Equal(t, 0, today.CompletedInPeriod)

	dots := tr.ProgressDots("a", 3)
	assert.Equal(t, []bool{false, true, false}, dots)
	assert.Equal(t, 1, tr.HabitSummary("a").CurrentStreak)
}

func TestTracker_ToggleTwiceInvalidatesAndRoundTrips(t *testing.T) {
	svc := newFakeService()
	seed(svc)
	tr := newTestTracker(t, svc, nil)
	ctx := context.Background()
	require.NoError(t, tr.Load(ctx))

	first, err := tr.ToggleEntry(ctx, "a", "2024-01-10")
	require.NoError(t, err)
	assert.True(t, first.Completed)
	assert.True(t, tr.IsCompleted("a", ""))

	second, err := tr.ToggleEntry(ctx, "a", "2024-01-10")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.False(t, second.Completed)
	assert.Nil(t, second.CompletedAt)

	// the successful writes invalidated the dashboard, so the next load fetches
	require.NoError(t, tr.Load(ctx))
	assert.Equal(t, 2, svc.count("GET /api/dashboard-data"))
	assert.False(t, tr.IsCompleted("a", "2024-01-10"))
	assert.Len(t, tr.Entries(), 3)
}

func TestTracker_CreateAndDeleteKeepServerAndLocalInStep(t *testing.T) {
	svc := newFakeService()
	seed(svc)
	tr := newTestTracker(t, svc, nil)
	ctx := context.Background()
	require.NoError(t, tr.Load(ctx))

	created, err := tr.AddHabit(ctx, habit.CreateHabitRequest{Name: "Run"})
	require.NoError(t, err)
	assert.False(t, habit.IsTempID(created.ID))
	assert.Len(t, tr.Habits(), 2)

	require.NoError(t, tr.DeleteHabit(ctx, "a"))
	assert.Len(t, tr.Habits(), 1)
	assert.Empty(t, tr.Entries())

	require.NoError(t, tr.Load(ctx))
	require.Len(t, tr.Habits(), 1)
	assert.Equal(t, created.ID, tr.Habits()[0].ID)
	assert.Empty(t, tr.Entries())
}

func TestTracker_ValidationFailsBeforeNetwork(t *testing.T) {
	svc := newFakeService()
	tr := newTestTracker(t, svc, nil)

	_, err := tr.AddHabit(context.Background(), habit.CreateHabitRequest{Name: "  "})
	require.ErrorIs(t, err, habit.ErrInvalid)
	assert.Equal(t, 0, svc.count("POST /api/habits"))
	assert.ErrorIs(t, tr.LastError(), habit.ErrInvalid)
}

func TestTracker_FailedRefreshKeepsLastKnownState(t *testing.T) {
	svc := newFakeService()
	seed(svc)
	tr := newTestTracker(t, svc, nil)
	ctx := context.Background()
	require.NoError(t, tr.Load(ctx))

	svc.setFailing(true)
	err := tr.Refresh(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrUnavailable)
	assert.ErrorIs(t, tr.LastError(), client.ErrUnavailable)
	assert.Len(t, tr.Habits(), 1)
	assert.Len(t, tr.Entries(), 2)
}

func TestTracker_FailedToggleRollsBack(t *testing.T) {
	svc := newFakeService()
	seed(svc)
	tr := newTestTracker(t, svc, nil)
	ctx := context.Background()
	require.NoError(t, tr.Load(ctx))
	before := tr.Entries()

	svc.setFailing(true)
	_, err := tr.ToggleEntry(ctx, "a", "2024-01-09")
	require.Error(t, err)
	assert.Equal(t, before, tr.Entries())
}

func TestTracker_RefreshRevalidatesWithETag(t *testing.T) {
	svc := newFakeService()
	seed(svc)
	tr := newTestTracker(t, svc, nil)
	ctx := context.Background()

	require.NoError(t, tr.Load(ctx))
	require.NoError(t, tr.Refresh(ctx))

	assert.Equal(t, 2, svc.count("GET /api/dashboard-data"))
	svc.mu.Lock()
	assert.Equal(t, 1, svc.notMod)
	svc.mu.Unlock()
	assert.Len(t, tr.Habits(), 1)
}

func TestTracker_HabitEntriesMergesOneHabit(t *testing.T) {
	svc := newFakeService()
	seed(svc)
	tr := newTestTracker(t, svc, nil)

	entries, err := tr.HabitEntries(context.Background(), "a")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	_, err = tr.HabitEntries(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 1, svc.count("GET /api/habits/{id}/entries"))
}

func TestTracker_FriendsCachedUntilWrite(t *testing.T) {
	svc := newFakeService()
	tr := newTestTracker(t, svc, nil)
	ctx := context.Background()

	friends, err := tr.Friends(ctx)
	require.NoError(t, err)
	assert.Empty(t, friends)
	_, err = tr.Friends(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, svc.count("GET /api/friends"))

	_, err = tr.AddFriend(ctx, " abc123 ")
	require.NoError(t, err)

	friends, err = tr.Friends(ctx)
	require.NoError(t, err)
	require.Len(t, friends, 1)
	assert.Equal(t, "ABC123", friends[0].ShareCode)
	assert.Equal(t, 2, svc.count("GET /api/friends"))
}

func TestTracker_ActivateRefreshesAndSignOutClears(t *testing.T) {
	svc := newFakeService()
	seed(svc)
	tr := newTestTracker(t, svc, func(c *Config) { c.PollInterval = time.Hour })

	assert.True(t, tr.Activate(context.Background()))
	assert.False(t, tr.Activate(context.Background()))
	require.Eventually(t, func() bool {
		return len(tr.Habits()) == 1
	}, time.Second, 5*time.Millisecond)

	tr.Deactivate()
	tr.Deactivate()
	assert.False(t, tr.Active())

	tr.SignOut()
	assert.Empty(t, tr.Habits())
	assert.Equal(t, 0, tr.Coordinator().Store().Len())
	assert.NoError(t, tr.LastError())
}
