package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habitTrackerAPI/internal/client"
	"habitTrackerAPI/internal/config"
	"habitTrackerAPI/internal/friend"
	"habitTrackerAPI/internal/habit"
	"habitTrackerAPI/internal/habitsync"
	"habitTrackerAPI/internal/user"
)

type memTokens struct {
	tokens  map[string]string
	saveErr error
}

func (m *memTokens) Load(apiURL, email string) (string, error) {
	tok, ok := m.tokens[email+"@"+apiURL]
	if !ok {
		return "", config.ErrNoToken
	}
	return tok, nil
}

func (m *memTokens) Save(apiURL, email, token string) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.tokens[email+"@"+apiURL] = token
	return nil
}

func (m *memTokens) Delete(apiURL, email string) error {
	delete(m.tokens, email+"@"+apiURL)
	return nil
}

// fakeAPI is a tiny in-memory server speaking the habit API.
type fakeAPI struct {
	mu      sync.Mutex
	habits  []habit.Habit
	entries []habit.Entry
	pending []friend.Connection
	actions []string
	nextID  int
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	authed := func(pattern string, fn http.HandlerFunc) {
		mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer tok-1" {
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "Invalid or expired token"})
				return
			}
			f.mu.Lock()
			defer f.mu.Unlock()
			fn(w, r)
		})
	}
	writeJSON := func(w http.ResponseWriter, v any) { _ = json.NewEncoder(w).Encode(v) }

	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req user.LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "password1" {
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(w, map[string]string{"error": "Invalid credentials"})
			return
		}
		writeJSON(w, user.AuthResponse{Token: "tok-1", User: user.User{ID: "u1", Email: req.Email, ShareCode: "ABC123"}})
	})
	mux.HandleFunc("POST /api/auth/register", func(w http.ResponseWriter, r *http.Request) {
		var req user.RegisterRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, user.AuthResponse{Token: "tok-1", User: user.User{ID: "u1", Email: req.Email, ShareCode: "XYZ789"}})
	})
	authed("GET /api/user", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, user.User{ID: "u1", Email: "sam@example.com", ShareCode: "ABC123"})
	})
	authed("GET /api/dashboard-data", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, habit.Dashboard{Habits: f.habits, Entries: f.entries, Timestamp: time.Now()})
	})
	authed("POST /api/habits", func(w http.ResponseWriter, r *http.Request) {
		var req habit.CreateHabitRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.nextID++
		h := habit.Habit{ID: fmt.Sprintf("habit-%04d", f.nextID), Name: req.Name, Icon: req.Icon,
			TargetFrequency: req.TargetFrequency, IsActive: true, CreatedAt: time.Now()}
		f.habits = append(f.habits, h)
		writeJSON(w, h)
	})
	authed("POST /api/habits/{id}/entries", func(w http.ResponseWriter, r *http.Request) {
		var req habit.ToggleEntryRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		for i, e := range f.entries {
			if e.HabitID == r.PathValue("id") && e.Date == req.Date {
				f.entries[i].Completed = !e.Completed
				writeJSON(w, f.entries[i])
				return
			}
		}
		e := habit.Entry{ID: fmt.Sprintf("e%d", len(f.entries)+1), HabitID: r.PathValue("id"), Date: req.Date, Completed: true}
		f.entries = append(f.entries, e)
		writeJSON(w, e)
	})
	authed("GET /api/friends", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []friend.Connection{})
	})
	authed("GET /api/friends/requests", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, f.pending)
	})
	authed("PUT /api/friends/{id}", func(w http.ResponseWriter, r *http.Request) {
		var req friend.RespondRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.actions = append(f.actions, r.PathValue("id")+":"+string(req.Action))
		writeJSON(w, map[string]string{"message": "ok"})
	})
	return mux
}

type harness struct {
	ctx    *Context
	out    *bytes.Buffer
	api    *fakeAPI
	tokens *memTokens
}

func newHarness(t *testing.T, token string) *harness {
	t.Helper()
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	cfg, err := config.LoadClient(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)
	cfg.APIURL = srv.URL

	c, err := client.NewClient(srv.URL, client.WithToken(token))
	require.NoError(t, err)
	tracker := habitsync.New(c, habitsync.DefaultConfig())
	t.Cleanup(tracker.Deactivate)

	out := &bytes.Buffer{}
	tokens := &memTokens{tokens: map[string]string{}}
	return &harness{
		ctx: &Context{
			Ctx:     context.Background(),
			Config:  &cfg,
			Client:  c,
			Tracker: tracker,
			Tokens:  tokens,
			In:      strings.NewReader(""),
			Out:     out,
		},
		out:    out,
		api:    api,
		tokens: tokens,
	}
}

func TestLoginStoresSession(t *testing.T) {
	h := newHarness(t, "")
	h.ctx.In = strings.NewReader("password1\n")

	require.NoError(t, (&LoginCmd{Email: "sam@example.com"}).Run(h.ctx))
	assert.Contains(t, h.out.String(), "Logged in as sam@example.com")
	assert.Equal(t, "tok-1", h.ctx.Client.Token())

	tok, err := h.tokens.Load(h.ctx.Config.APIURL, "sam@example.com")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	reloaded, err := config.LoadClient(h.ctx.Config.Path())
	require.NoError(t, err)
	assert.Equal(t, "sam@example.com", reloaded.Email)
}

func TestLoginWrongPassword(t *testing.T) {
	h := newHarness(t, "")
	err := (&LoginCmd{Email: "sam@example.com", Password: "nope"}).Run(h.ctx)
	assert.ErrorIs(t, err, client.ErrUnauthorized)
	assert.Empty(t, h.ctx.Client.Token())
}

func TestRegisterValidatesLocally(t *testing.T) {
	h := newHarness(t, "")
	err := (&RegisterCmd{Email: "not-an-email", Password: "password1"}).Run(h.ctx)
	assert.ErrorIs(t, err, user.ErrInvalid)

	require.NoError(t, (&RegisterCmd{Email: "new@example.com", Password: "password1"}).Run(h.ctx))
	assert.Contains(t, h.out.String(), "XYZ789")
}

func TestRegisterWarnsWhenKeyringFails(t *testing.T) {
	h := newHarness(t, "")
	h.tokens.saveErr = errors.New("no keyring")
	require.NoError(t, (&RegisterCmd{Email: "new@example.com", Password: "password1"}).Run(h.ctx))
	assert.Contains(t, h.out.String(), "session token not saved")
	assert.Equal(t, "tok-1", h.ctx.Client.Token())
}

func TestLogoutClearsSession(t *testing.T) {
	h := newHarness(t, "tok-1")
	h.ctx.Config.Email = "sam@example.com"
	require.NoError(t, h.tokens.Save(h.ctx.Config.APIURL, "sam@example.com", "tok-1"))

	require.NoError(t, (&LogoutCmd{}).Run(h.ctx))
	assert.Empty(t, h.ctx.Client.Token())
	assert.Empty(t, h.ctx.Config.Email)
	_, err := h.tokens.Load(h.ctx.Config.APIURL, "sam@example.com")
	assert.ErrorIs(t, err, config.ErrNoToken)
}

func TestCommandsRequireSession(t *testing.T) {
	h := newHarness(t, "")
	assert.ErrorIs(t, (&HabitsListCmd{}).Run(h.ctx), ErrNotLoggedIn)
	assert.ErrorIs(t, (&MeCmd{}).Run(h.ctx), ErrNotLoggedIn)
	assert.ErrorIs(t, (&FriendsListCmd{}).Run(h.ctx), ErrNotLoggedIn)
	assert.ErrorIs(t, (&WatchCmd{Period: "week", Check: time.Millisecond}).Run(h.ctx), ErrNotLoggedIn)
}

func TestHabitLifecycle(t *testing.T) {
	h := newHarness(t, "tok-1")

	require.NoError(t, (&HabitsAddCmd{Name: "Read", Color: "blue", Frequency: "daily"}).Run(h.ctx))
	assert.Contains(t, h.out.String(), `Added habit "Read"`)

	h.out.Reset()
	require.NoError(t, (&ToggleCmd{Habit: "read"}).Run(h.ctx))
	assert.Contains(t, h.out.String(), "Read on "+habit.Day(time.Now())+": done")

	h.out.Reset()
	require.NoError(t, (&HabitsListCmd{All: true}).Run(h.ctx))
	out := h.out.String()
	assert.Contains(t, out, "[x]")
	assert.Contains(t, out, "Read")
	assert.Contains(t, out, "●")

	h.out.Reset()
	require.NoError(t, (&StatsCmd{Period: "today"}).Run(h.ctx))
	assert.Contains(t, h.out.String(), "today: 1 habits, 1 completions, 100% complete")
}

func TestToggleUnknownHabit(t *testing.T) {
	h := newHarness(t, "tok-1")
	err := (&ToggleCmd{Habit: "nope"}).Run(h.ctx)
	assert.ErrorContains(t, err, `no habit matches "nope"`)
}

func TestToggleValidateDate(t *testing.T) {
	assert.NoError(t, (&ToggleCmd{Date: "2024-01-10"}).Validate())
	assert.Error(t, (&ToggleCmd{Date: "10/01/2024"}).Validate())
}

func TestHabitsEditRequest(t *testing.T) {
	_, changed := (&HabitsEditCmd{Habit: "x"}).request()
	assert.False(t, changed)

	req, changed := (&HabitsEditCmd{Habit: "x", Name: "Run", Archive: true, Frequency: "Weekly"}).request()
	require.True(t, changed)
	require.NotNil(t, req.Name)
	assert.Equal(t, "Run", *req.Name)
	require.NotNil(t, req.IsActive)
	assert.False(t, *req.IsActive)
	assert.Equal(t, habit.FrequencyWeekly, *req.TargetFrequency)
	assert.Nil(t, req.Color)
}

func TestFriendsCommands(t *testing.T) {
	h := newHarness(t, "tok-1")
	name := "Kim"
	h.api.pending = []friend.Connection{{ID: "c1", Email: "kim@example.com", FullName: &name, Status: friend.StatusPending}}

	require.NoError(t, (&FriendsListCmd{}).Run(h.ctx))
	assert.Contains(t, h.out.String(), "No friends yet")

	h.out.Reset()
	require.NoError(t, (&FriendsRequestsCmd{}).Run(h.ctx))
	assert.Contains(t, h.out.String(), "Kim <kim@example.com>  (c1)")

	require.NoError(t, (&FriendsAcceptCmd{ID: "c1"}).Run(h.ctx))
	require.NoError(t, (&FriendsRejectCmd{ID: "c2"}).Run(h.ctx))
	assert.Equal(t, []string{"c1:accept", "c2:reject"}, h.api.actions)
}

func TestMe(t *testing.T) {
	h := newHarness(t, "tok-1")
	require.NoError(t, (&MeCmd{}).Run(h.ctx))
	assert.Contains(t, h.out.String(), "Share code: ABC123")
}

func TestWatchPrintsAfterRefresh(t *testing.T) {
	h := newHarness(t, "tok-1")
	ctx, cancel := context.WithCancel(context.Background())
	h.ctx.Ctx = ctx

	done := make(chan error, 1)
	go func() { done <- (&WatchCmd{Period: "week", Check: 5 * time.Millisecond}).Run(h.ctx) }()

	// The scheduler refreshes immediately on activation.
	require.Eventually(t, func() bool {
		runs, _ := h.ctx.Tracker.Scheduler().Runs()
		return runs >= 1
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
	assert.Contains(t, h.out.String(), "week: 0 habits")
	assert.False(t, h.ctx.Tracker.Active())
}

func TestDots(t *testing.T) {
	assert.Equal(t, "○●●", dots([]bool{false, true, true}))
	assert.Equal(t, "abcdefgh", shortID("abcdefghijkl"))
	assert.Equal(t, "abc", shortID("abc"))
}
