package optimistic

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"habitTrackerAPI/internal/cache"
	"habitTrackerAPI/internal/habit"
	"habitTrackerAPI/internal/logger"
)

// ErrPending is returned for mutations against a habit the server has not
// confirmed yet.
var ErrPending = errors.New("habit is still being created")

// Remote is the write side of the habit API.
type Remote interface {
	CreateHabit(ctx context.Context, req habit.CreateHabitRequest) (habit.Habit, error)
	UpdateHabit(ctx context.Context, id string, req habit.UpdateHabitRequest) (habit.Habit, error)
	DeleteHabit(ctx context.Context, id string) error
	ToggleEntry(ctx context.Context, habitID string, req habit.ToggleEntryRequest) (habit.Entry, error)
}

// Invalidator drops cached collections after a confirmed write.
type Invalidator interface {
	Invalidate(resources ...cache.Resource)
}

// Engine holds the local habit and entry collections and applies mutations
// to them before the server confirms.
type Engine struct {
	remote      Remote
	invalidator Invalidator
	now         func() time.Time
	newID       func() string

	locks *keyLocks

	mu      sync.RWMutex
	userID  string
	habits  []habit.Habit
	entries []habit.Entry
	meta    map[string]*record
	version uint64
}

type Option func(*Engine)

func WithInvalidator(inv Invalidator) Option {
	return func(e *Engine) {
		e.invalidator = inv
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithIDGenerator overrides the source of temporary ids.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		e.newID = fn
	}
}

func NewEngine(remote Remote, opts ...Option) *Engine {
	e := &Engine{
		remote: remote,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
		locks:  newKeyLocks(),
		meta:   make(map[string]*record),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) SetUserID(id string) {
	e.mu.Lock()
	e.userID = id
	e.mu.Unlock()
}

// Habits returns a copy of the local habit collection.
func (e *Engine) Habits() []habit.Habit {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]habit.Habit(nil), e.habits...)
}

// Entries returns a copy of the local entry collection.
func (e *Engine) Entries() []habit.Entry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]habit.Entry(nil), e.entries...)
}

func (e *Engine) Habit(id string) (habit.Habit, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if i := e.habitIndex(id); i >= 0 {
		return e.habits[i], true
	}
	return habit.Habit{}, false
}

func (e *Engine) EntriesFor(habitID string) []habit.Entry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []habit.Entry
	for _, en := range e.entries {
		if en.HabitID == habitID {
			out = append(out, en)
		}
	}
	return out
}

func (e *Engine) IsCompleted(habitID, date string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	i := e.entryIndex(habitID, date)
	return i >= 0 && e.entries[i].Completed
}

// HabitStatus reports the lifecycle state of a habit held locally.
func (e *Engine) HabitStatus(id string) (Status, bool) {
	return e.status(habitKey(id))
}

func (e *Engine) EntryStatus(habitID, date string) (Status, bool) {
	return e.status(entryKey(habitID, date))
}

// Pending counts records awaiting server confirmation.
func (e *Engine) Pending() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := 0
	for _, r := range e.meta {
		if r.status.Pending() {
			n++
		}
	}
	return n
}

// Reset drops all local state. Responses for mutations still in flight are
// discarded when they land.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.habits = nil
	e.entries = nil
	e.meta = make(map[string]*record)
}

// CreateHabit inserts a temporary habit, then swaps it for the server's
// record. A failed create removes the temporary habit again.
func (e *Engine) CreateHabit(ctx context.Context, req habit.CreateHabitRequest) (habit.Habit, error) {
	if err := req.Validate(); err != nil {
		return habit.Habit{}, err
	}
	req.Normalize()

	now := e.now()
	tempID := habit.TempIDPrefix + e.newID()

	e.mu.Lock()
	e.habits = append(e.habits, habit.Habit{
		ID:              tempID,
		UserID:          e.userID,
		Name:            req.Name,
		Description:     req.Description,
		Color:           req.Color,
		Icon:            req.Icon,
		TargetFrequency: req.TargetFrequency,
		TargetCount:     req.TargetCount,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	tempVersion := e.mark(habitKey(tempID), PendingCreate)
	e.mu.Unlock()

	created, err := e.remote.CreateHabit(ctx, req)

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.current(habitKey(tempID), tempVersion) {
		logger.Debug("Engine: discarding create response after reset", "temp_id", tempID)
		if err != nil {
			return habit.Habit{}, err
		}
		return created, nil
	}
	delete(e.meta, habitKey(tempID))
	i := e.habitIndex(tempID)

	if err != nil {
		if i >= 0 {
			e.habits = append(e.habits[:i], e.habits[i+1:]...)
		}
		logger.Warn("Engine: create failed, removed temporary habit", "temp_id", tempID, "error", err)
		return habit.Habit{}, err
	}

	switch j := e.habitIndex(created.ID); {
	case j >= 0:
		// A refresh that landed mid-flight already holds the server record.
		e.habits[j] = created
		if i >= 0 {
			e.habits = append(e.habits[:i], e.habits[i+1:]...)
		}
	case i >= 0:
		e.habits[i] = created
	default:
		e.habits = append(e.habits, created)
	}
	e.mark(habitKey(created.ID), Clean)
	e.invalidate(cache.ResourceHabits, cache.ResourceDashboard)
	return created, nil
}

// UpdateHabit applies the partial update locally and replaces it with the
// server's record, or restores the snapshot on failure.
func (e *Engine) UpdateHabit(ctx context.Context, id string, req habit.UpdateHabitRequest) (habit.Habit, error) {
	if habit.IsTempID(id) {
		return habit.Habit{}, ErrPending
	}
	if err := req.Validate(); err != nil {
		return habit.Habit{}, err
	}

	unlock := e.locks.Lock(habitKey(id))
	defer unlock()

	e.mu.Lock()
	i := e.habitIndex(id)
	if i < 0 || e.statusLocked(habitKey(id)) == PendingDelete {
		e.mu.Unlock()
		return habit.Habit{}, habit.ErrNotFound
	}
	snapshot := e.habits[i]
	updated, err := req.ApplyTo(snapshot)
	if err != nil {
		e.mu.Unlock()
		return habit.Habit{}, err
	}
	updated.UpdatedAt = e.now()
	e.habits[i] = updated
	version := e.mark(habitKey(id), PendingUpdate)
	e.mu.Unlock()

	confirmed, err := e.remote.UpdateHabit(ctx, id, req)

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.current(habitKey(id), version) {
		logger.Debug("Engine: discarding stale update response", "habit_id", id)
		if err != nil {
			return habit.Habit{}, err
		}
		return confirmed, nil
	}

	if err != nil {
		if j := e.habitIndex(id); j >= 0 {
			e.habits[j] = snapshot
		} else {
			e.habits = insertAt(e.habits, i, snapshot)
		}
		e.mark(habitKey(id), Clean)
		logger.Warn("Engine: update failed, rolled back", "habit_id", id, "error", err)
		return habit.Habit{}, err
	}

	if j := e.habitIndex(id); j >= 0 {
		if confirmed.IsActive {
			e.habits[j] = confirmed
		} else {
			// Archived habits and their entries drop out of the server's lists.
			e.habits = append(e.habits[:j], e.habits[j+1:]...)
			kept := e.entries[:0:0]
			for _, en := range e.entries {
				if en.HabitID != id {
					kept = append(kept, en)
				}
			}
			e.entries = kept
		}
	}
	e.mark(habitKey(id), Clean)
	e.invalidate(cache.ResourceHabits, cache.ResourceEntries, cache.ResourceHabitEntries, cache.ResourceDashboard)
	return confirmed, nil
}

type indexedEntry struct {
	index int
	entry habit.Entry
}

// DeleteHabit removes the habit and its entries locally. On failure both
// are put back where they were.
func (e *Engine) DeleteHabit(ctx context.Context, id string) error {
	if habit.IsTempID(id) {
		return ErrPending
	}

	unlock := e.locks.Lock(habitKey(id))
	defer unlock()

	e.mu.Lock()
	i := e.habitIndex(id)
	if i < 0 || e.statusLocked(habitKey(id)) == PendingDelete {
		e.mu.Unlock()
		return habit.ErrNotFound
	}
	snapshot := e.habits[i]
	e.habits = append(e.habits[:i], e.habits[i+1:]...)

	var dependents []indexedEntry
	kept := e.entries[:0:0]
	for j, en := range e.entries {
		if en.HabitID == id {
			dependents = append(dependents, indexedEntry{index: j, entry: en})
			continue
		}
		kept = append(kept, en)
	}
	e.entries = kept
	version := e.mark(habitKey(id), PendingDelete)
	e.mu.Unlock()

	err := e.remote.DeleteHabit(ctx, id)

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.current(habitKey(id), version) {
		logger.Debug("Engine: discarding stale delete response", "habit_id", id)
		return err
	}

	if err != nil {
		if e.habitIndex(id) < 0 {
			e.habits = insertAt(e.habits, i, snapshot)
		}
		for _, d := range dependents {
			if e.entryIndex(d.entry.HabitID, d.entry.Date) < 0 {
				e.entries = insertAt(e.entries, d.index, d.entry)
			}
		}
		e.mark(habitKey(id), Clean)
		logger.Warn("Engine: delete failed, restored habit", "habit_id", id, "entries", len(dependents), "error", err)
		return err
	}

	delete(e.meta, habitKey(id))
	for key := range e.meta {
		if strings.HasPrefix(key, entryKey(id, "")) {
			delete(e.meta, key)
		}
	}
	e.invalidate(cache.ResourceHabits, cache.ResourceEntries, cache.ResourceHabitEntries, cache.ResourceDashboard)
	return nil
}

// ToggleEntry flips the completion of (habitID, date), creating a completed
// entry when none exists. Toggles on the same pair are serialized; toggles
// on different pairs run concurrently.
func (e *Engine) ToggleEntry(ctx context.Context, habitID, date string) (habit.Entry, error) {
	date = strings.TrimSpace(date)
	if err := (habit.ToggleEntryRequest{Date: date}).Validate(); err != nil {
		return habit.Entry{}, err
	}
	if habit.IsTempID(habitID) {
		return habit.Entry{}, ErrPending
	}

	unlockHabit := e.locks.RLock(habitKey(habitID))
	defer unlockHabit()
	unlockEntry := e.locks.Lock(entryKey(habitID, date))
	defer unlockEntry()

	now := e.now()

	e.mu.Lock()
	hi := e.habitIndex(habitID)
	if hi < 0 || e.statusLocked(habitKey(habitID)) == PendingDelete {
		e.mu.Unlock()
		return habit.Entry{}, habit.ErrNotFound
	}
	h := e.habits[hi]

	i := e.entryIndex(habitID, date)
	existed := i >= 0
	var snapshot habit.Entry
	var optimistic habit.Entry
	status := PendingUpdate
	if existed {
		snapshot = e.entries[i]
		optimistic = snapshot
		optimistic.Completed = !snapshot.Completed
		if optimistic.Completed {
			t := now
			optimistic.CompletedAt = &t
		} else {
			optimistic.CompletedAt = nil
		}
		e.entries[i] = optimistic
	} else {
		t := now
		optimistic = habit.Entry{
			ID:          habit.TempIDPrefix + e.newID(),
			HabitID:     habitID,
			UserID:      e.userID,
			Date:        date,
			Completed:   true,
			CompletedAt: &t,
			CreatedAt:   now,
			HabitName:   h.Name,
			HabitColor:  h.Color,
			HabitIcon:   h.Icon,
		}
		i = len(e.entries)
		e.entries = append(e.entries, optimistic)
		status = PendingCreate
	}
	prevStatus := e.statusLocked(entryKey(habitID, date))
	version := e.mark(entryKey(habitID, date), status)
	e.mu.Unlock()

	completed := optimistic.Completed
	confirmed, err := e.remote.ToggleEntry(ctx, habitID, habit.ToggleEntryRequest{Date: date, Completed: &completed})

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.current(entryKey(habitID, date), version) {
		logger.Debug("Engine: discarding stale toggle response", "habit_id", habitID, "date", date)
		if err != nil {
			return habit.Entry{}, err
		}
		return confirmed, nil
	}

	j := e.entryIndex(habitID, date)
	if err != nil {
		if existed {
			if j >= 0 {
				e.entries[j] = snapshot
			} else {
				e.entries = insertAt(e.entries, i, snapshot)
			}
			e.mark(entryKey(habitID, date), prevStatus)
		} else {
			if j >= 0 {
				e.entries = append(e.entries[:j], e.entries[j+1:]...)
			}
			delete(e.meta, entryKey(habitID, date))
		}
		logger.Warn("Engine: toggle failed, rolled back", "habit_id", habitID, "date", date, "error", err)
		return habit.Entry{}, err
	}

	if confirmed.HabitName == "" {
		confirmed.HabitName = optimistic.HabitName
		confirmed.HabitColor = optimistic.HabitColor
		confirmed.HabitIcon = optimistic.HabitIcon
	}
	if j >= 0 {
		e.entries[j] = confirmed
	} else {
		e.entries = append(e.entries, confirmed)
	}
	e.mark(entryKey(habitID, date), Clean)
	e.invalidate(cache.ResourceEntries, cache.ResourceHabitEntries, cache.ResourceDashboard)
	return confirmed, nil
}

// Reconcile replaces the local collections with a server snapshot. Records
// with a mutation in flight keep their local version so a refresh never
// undoes an optimistic change or resurrects a pending delete.
func (e *Engine) Reconcile(habits []habit.Habit, entries []habit.Entry) {
	e.mu.Lock()
	defer e.mu.Unlock()

	local := make(map[string]habit.Habit, len(e.habits))
	for _, h := range e.habits {
		local[h.ID] = h
	}
	localEntries := make(map[string]habit.Entry, len(e.entries))
	for _, en := range e.entries {
		localEntries[entryKey(en.HabitID, en.Date)] = en
	}

	seen := make(map[string]bool)
	nextHabits := make([]habit.Habit, 0, len(habits))
	for _, h := range habits {
		key := habitKey(h.ID)
		seen[key] = true
		switch e.statusLocked(key) {
		case PendingDelete:
			continue
		case PendingUpdate:
			if l, ok := local[h.ID]; ok {
				h = l
			}
		default:
			e.markIfAbsent(key)
		}
		nextHabits = append(nextHabits, h)
	}
	for _, h := range e.habits {
		key := habitKey(h.ID)
		if !seen[key] && e.statusLocked(key) == PendingCreate {
			nextHabits = append(nextHabits, h)
		}
	}

	nextEntries := make([]habit.Entry, 0, len(entries))
	for _, en := range entries {
		if e.statusLocked(habitKey(en.HabitID)) == PendingDelete {
			continue
		}
		key := entryKey(en.HabitID, en.Date)
		if seen[key] {
			continue
		}
		seen[key] = true
		if e.statusLocked(key).Pending() {
			if l, ok := localEntries[key]; ok {
				en = l
			}
		}
		nextEntries = append(nextEntries, en)
	}
	for _, en := range e.entries {
		key := entryKey(en.HabitID, en.Date)
		if !seen[key] && e.statusLocked(key).Pending() {
			nextEntries = append(nextEntries, en)
		}
	}

	for key, r := range e.meta {
		if !r.status.Pending() && !seen[key] {
			delete(e.meta, key)
		}
	}

	e.habits = nextHabits
	e.entries = nextEntries
}

// ReconcileEntries replaces the local entries of one habit with a server
// snapshot, keeping pending pairs.
func (e *Engine) ReconcileEntries(habitID string, entries []habit.Entry) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.statusLocked(habitKey(habitID)) == PendingDelete {
		return
	}

	server := make(map[string]habit.Entry, len(entries))
	for _, en := range entries {
		if en.HabitID == habitID {
			server[en.Date] = en
		}
	}

	next := make([]habit.Entry, 0, len(e.entries)+len(entries))
	for _, en := range e.entries {
		if en.HabitID != habitID {
			next = append(next, en)
			continue
		}
		if e.statusLocked(entryKey(habitID, en.Date)).Pending() {
			next = append(next, en)
			delete(server, en.Date)
			continue
		}
		if s, ok := server[en.Date]; ok {
			next = append(next, s)
			delete(server, en.Date)
		}
	}
	for _, en := range entries {
		if _, ok := server[en.Date]; ok && en.HabitID == habitID {
			next = append(next, en)
			delete(server, en.Date)
		}
	}
	e.entries = next
}

func (e *Engine) status(key string) (Status, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.meta[key]
	if !ok {
		return Clean, false
	}
	return r.status, true
}

func (e *Engine) statusLocked(key string) Status {
	if r, ok := e.meta[key]; ok {
		return r.status
	}
	return Clean
}

// mark sets the status of key and returns its new version. Callers hold e.mu.
func (e *Engine) mark(key string, status Status) uint64 {
	e.version++
	r, ok := e.meta[key]
	if !ok {
		r = &record{}
		e.meta[key] = r
	}
	r.status = status
	r.version = e.version
	return r.version
}

func (e *Engine) markIfAbsent(key string) {
	if _, ok := e.meta[key]; !ok {
		e.version++
		e.meta[key] = &record{status: Clean, version: e.version}
	}
}

// current reports whether version is still the latest issued for key, i.e.
// no reset or later mutation replaced it.
func (e *Engine) current(key string, version uint64) bool {
	r, ok := e.meta[key]
	return ok && r.version == version
}

func (e *Engine) habitIndex(id string) int {
	for i, h := range e.habits {
		if h.ID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) entryIndex(habitID, date string) int {
	for i, en := range e.entries {
		if en.HabitID == habitID && en.Date == date {
			return i
		}
	}
	return -1
}

func (e *Engine) invalidate(resources ...cache.Resource) {
	if e.invalidator != nil {
		e.invalidator.Invalidate(resources...)
	}
}

func insertAt[T any](s []T, i int, v T) []T {
	if i < 0 {
		i = 0
	}
	if i >= len(s) {
		return append(s, v)
	}
	s = append(s, v)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}
