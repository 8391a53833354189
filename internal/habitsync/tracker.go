package habitsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"habitTrackerAPI/internal/cache"
	"habitTrackerAPI/internal/client"
	"habitTrackerAPI/internal/coordinator"
	"habitTrackerAPI/internal/friend"
	"habitTrackerAPI/internal/habit"
	"habitTrackerAPI/internal/logger"
	"habitTrackerAPI/internal/optimistic"
	"habitTrackerAPI/internal/stats"
	"habitTrackerAPI/internal/workers"
)

// API is the slice of the habit service the tracker depends on.
type API interface {
	optimistic.Remote
	ListHabits(ctx context.Context, etag string) ([]habit.Habit, string, bool, error)
	ListEntries(ctx context.Context, etag string) ([]habit.Entry, string, bool, error)
	ListHabitEntries(ctx context.Context, habitID, etag string) ([]habit.Entry, string, bool, error)
	Dashboard(ctx context.Context, etag string) (habit.Dashboard, string, bool, error)
	ListFriends(ctx context.Context) ([]friend.Connection, error)
	FriendRequests(ctx context.Context) ([]friend.Connection, error)
	AddFriend(ctx context.Context, shareCode string) (friend.Connection, error)
	RespondFriend(ctx context.Context, id string, action friend.Action) error
	RemoveFriend(ctx context.Context, id string) error
}

var _ API = (*client.Client)(nil)

var (
	habitsKey    = cache.NewKey(cache.ResourceHabits)
	entriesKey   = cache.NewKey(cache.ResourceEntries)
	dashboardKey = cache.NewKey(cache.ResourceDashboard)
	friendsKey   = cache.NewKey(cache.ResourceFriends)
)

type Config struct {
	TTL          time.Duration
	Cooldown     time.Duration
	PollInterval time.Duration
	// UseDashboard reads habits and entries through the batched dashboard
	// endpoint instead of two list calls.
	UseDashboard bool
	Registerer   prometheus.Registerer
	Now          func() time.Time
}

func DefaultConfig() Config {
	return Config{
		TTL:          coordinator.DefaultTTL,
		Cooldown:     coordinator.DefaultCooldown,
		PollInterval: workers.DefaultRefreshInterval,
		UseDashboard: true,
	}
}

// Tracker is the client-side data layer: reads go through the coordinator,
// writes through the optimistic engine, and a scheduler keeps both warm.
type Tracker struct {
	api          API
	coord        *coordinator.Coordinator
	engine       *optimistic.Engine
	scheduler    *workers.RefreshScheduler
	useDashboard bool
	now          func() time.Time

	mu      sync.Mutex
	lastErr error
}

func New(api API, cfg Config) *Tracker {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	store := cache.New(cache.WithClock(cfg.Now))
	coord := coordinator.New(store,
		coordinator.WithTTL(cfg.TTL),
		coordinator.WithCooldown(cfg.Cooldown),
		coordinator.WithClock(cfg.Now),
		coordinator.WithRegisterer(cfg.Registerer),
	)
	t := &Tracker{
		api:          api,
		coord:        coord,
		engine:       optimistic.NewEngine(api, optimistic.WithInvalidator(coord), optimistic.WithClock(cfg.Now)),
		useDashboard: cfg.UseDashboard,
		now:          cfg.Now,
	}
	t.scheduler = workers.NewRefreshScheduler(cfg.PollInterval, t.Refresh)
	return t
}

func (t *Tracker) Coordinator() *coordinator.Coordinator { return t.coord }

func (t *Tracker) Engine() *optimistic.Engine { return t.engine }

// Load reads habits and entries through the cache. On a failed fetch the
// last applied state is kept and the error is returned.
func (t *Tracker) Load(ctx context.Context) error {
	return t.load(ctx, t.coord.Fetch)
}

// Refresh skips the cache and cooldown and revalidates with the server.
func (t *Tracker) Refresh(ctx context.Context) error {
	return t.load(client.WithNoCache(ctx), t.coord.Revalidate)
}

type fetchFn func(ctx context.Context, key cache.Key, fn coordinator.FetchFunc) (coordinator.Result, error)

func (t *Tracker) load(ctx context.Context, fetch fetchFn) error {
	if t.useDashboard {
		res, err := fetch(ctx, dashboardKey, coordinator.Typed(t.api.Dashboard))
		if dash, ok := t.usable(dashboardKey, res); ok {
			d, _ := dash.(habit.Dashboard)
			t.engine.Reconcile(d.Habits, d.Entries)
		}
		return t.record(err, "load dashboard")
	}

	var habitsRes, entriesRes coordinator.Result
	var g errgroup.Group
	g.Go(func() error {
		var err error
		habitsRes, err = fetch(ctx, habitsKey, coordinator.Typed(t.api.ListHabits))
		return err
	})
	g.Go(func() error {
		var err error
		entriesRes, err = fetch(ctx, entriesKey, coordinator.Typed(t.api.ListEntries))
		return err
	})
	err := g.Wait()

	habitsPayload, okH := t.usable(habitsKey, habitsRes)
	entriesPayload, okE := t.usable(entriesKey, entriesRes)
	if okH && okE {
		habits, _ := habitsPayload.([]habit.Habit)
		entries, _ := entriesPayload.([]habit.Entry)
		t.engine.Reconcile(habits, entries)
	}
	return t.record(err, "load habits")
}

// HabitEntries reads the entries of one habit through the cache and merges
// them into local state.
func (t *Tracker) HabitEntries(ctx context.Context, habitID string) ([]habit.Entry, error) {
	if habit.IsTempID(habitID) {
		return t.engine.EntriesFor(habitID), nil
	}
	key := cache.NewKey(cache.ResourceHabitEntries, habitID)
	res, err := t.coord.Fetch(ctx, key, coordinator.Typed(func(ctx context.Context, etag string) ([]habit.Entry, string, bool, error) {
		return t.api.ListHabitEntries(ctx, habitID, etag)
	}))
	if payload, ok := t.usable(key, res); ok {
		entries, _ := payload.([]habit.Entry)
		t.engine.ReconcileEntries(habitID, entries)
	}
	return t.engine.EntriesFor(habitID), t.record(err, "load habit entries")
}

// usable reports whether a read result may be applied to local state. A
// superseded flight or a payload invalidated by a newer write never is.
func (t *Tracker) usable(key cache.Key, res coordinator.Result) (any, bool) {
	if !res.Found || res.Superseded {
		return nil, false
	}
	if e, ok := t.coord.Store().Peek(key); ok && e.Invalidated {
		return nil, false
	}
	return res.Payload, true
}

func (t *Tracker) Habits() []habit.Habit { return t.engine.Habits() }

func (t *Tracker) Entries() []habit.Entry { return t.engine.Entries() }

func (t *Tracker) Habit(id string) (habit.Habit, bool) { return t.engine.Habit(id) }

func (t *Tracker) IsCompleted(habitID, date string) bool {
	if date == "" {
		date = habit.Day(t.now())
	}
	return t.engine.IsCompleted(habitID, date)
}

// Stats computes the derived statistics from local state.
func (t *Tracker) Stats(period habit.Period) habit.Stats {
	return stats.Compute(t.engine.Habits(), t.engine.Entries(), period, t.now())
}

func (t *Tracker) HabitSummary(habitID string) stats.HabitSummary {
	return stats.ForHabit(habitID, t.engine.Entries(), t.now())
}

func (t *Tracker) ProgressDots(habitID string, n int) []bool {
	return stats.ProgressDots(t.engine.Entries(), habitID, t.now(), n)
}

func (t *Tracker) AddHabit(ctx context.Context, req habit.CreateHabitRequest) (habit.Habit, error) {
	h, err := t.engine.CreateHabit(ctx, req)
	return h, t.record(err, "create habit")
}

func (t *Tracker) UpdateHabit(ctx context.Context, id string, req habit.UpdateHabitRequest) (habit.Habit, error) {
	h, err := t.engine.UpdateHabit(ctx, id, req)
	return h, t.record(err, "update habit")
}

func (t *Tracker) DeleteHabit(ctx context.Context, id string) error {
	return t.record(t.engine.DeleteHabit(ctx, id), "delete habit")
}

// ToggleEntry flips the completion of habitID on date, today when empty.
func (t *Tracker) ToggleEntry(ctx context.Context, habitID, date string) (habit.Entry, error) {
	if date = strings.TrimSpace(date); date == "" {
		date = habit.Day(t.now())
	}
	e, err := t.engine.ToggleEntry(ctx, habitID, date)
	return e, t.record(err, "toggle entry")
}

func (t *Tracker) Friends(ctx context.Context) ([]friend.Connection, error) {
	res, err := t.coord.Fetch(ctx, friendsKey, coordinator.Typed(func(ctx context.Context, _ string) ([]friend.Connection, string, bool, error) {
		friends, err := t.api.ListFriends(ctx)
		return friends, "", false, err
	}))
	friends, _ := coordinator.Payload[[]friend.Connection](res)
	return friends, t.record(err, "load friends")
}

func (t *Tracker) FriendRequests(ctx context.Context) ([]friend.Connection, error) {
	requests, err := t.api.FriendRequests(ctx)
	return requests, t.record(err, "load friend requests")
}

func (t *Tracker) AddFriend(ctx context.Context, shareCode string) (friend.Connection, error) {
	conn, err := t.api.AddFriend(ctx, shareCode)
	if err == nil {
		t.coord.Invalidate(cache.ResourceFriends)
	}
	return conn, t.record(err, "add friend")
}

func (t *Tracker) RespondFriend(ctx context.Context, id string, action friend.Action) error {
	err := t.api.RespondFriend(ctx, id, action)
	if err == nil {
		t.coord.Invalidate(cache.ResourceFriends)
	}
	return t.record(err, "respond to friend request")
}

func (t *Tracker) RemoveFriend(ctx context.Context, id string) error {
	err := t.api.RemoveFriend(ctx, id)
	if err == nil {
		t.coord.Invalidate(cache.ResourceFriends)
	}
	return t.record(err, "remove friend")
}

// Activate starts the background refresh for the session bound to ctx.
func (t *Tracker) Activate(ctx context.Context) bool {
	return t.scheduler.Start(ctx)
}

func (t *Tracker) Deactivate() {
	t.scheduler.Stop()
}

func (t *Tracker) Active() bool { return t.scheduler.Active() }

func (t *Tracker) Scheduler() *workers.RefreshScheduler { return t.scheduler }

// SignOut stops background work and drops every cached and local record.
func (t *Tracker) SignOut() {
	t.scheduler.Stop()
	t.coord.Reset()
	t.engine.Reset()
	t.mu.Lock()
	t.lastErr = nil
	t.mu.Unlock()
}

func (t *Tracker) LastError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

func (t *Tracker) record(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	wrapped := fmt.Errorf("failed to %s: %w", op, err)
	logger.Warn("Tracker: operation failed", "op", op, "error", err)
	t.mu.Lock()
	t.lastErr = wrapped
	t.mu.Unlock()
	return wrapped
}
