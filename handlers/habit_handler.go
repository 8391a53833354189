package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"habitTrackerAPI/internal/habit"
	"habitTrackerAPI/internal/logger"
)

type HabitService interface {
	ListHabits(ctx context.Context, userID string) ([]habit.Habit, error)
	CreateHabit(ctx context.Context, userID string, req habit.CreateHabitRequest) (habit.Habit, error)
	UpdateHabit(ctx context.Context, userID, habitID string, req habit.UpdateHabitRequest) (habit.Habit, error)
	DeleteHabit(ctx context.Context, userID, habitID string) error
	ListEntries(ctx context.Context, userID string) ([]habit.Entry, error)
	ListHabitEntries(ctx context.Context, userID, habitID string) ([]habit.Entry, error)
	ToggleEntry(ctx context.Context, userID, habitID string, req habit.ToggleEntryRequest) (habit.Entry, error)
	Dashboard(ctx context.Context, userID string) (habit.Dashboard, error)
}

type HabitHandler struct {
	habitService HabitService
}

func NewHabitHandler(habitService HabitService) *HabitHandler {
	return &HabitHandler{habitService: habitService}
}

// GET /api/habits
func (h *HabitHandler) ListHabits(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, userID, ok := authedContext(w, r)
	if !ok {
		return
	}
	defer cancel()

	habits, err := h.habitService.ListHabits(ctx, userID)
	if err != nil {
		respondWithHabitError(w, err)
		return
	}
	respondWithETag(w, r, nonNil(habits))
}

// POST /api/habits
func (h *HabitHandler) CreateHabit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, userID, ok := authedContext(w, r)
	if !ok {
		return
	}
	defer cancel()

	var req habit.CreateHabitRequest
	if !decodeBody(w, r, &req) {
		return
	}

	created, err := h.habitService.CreateHabit(ctx, userID, req)
	if err != nil {
		respondWithHabitError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, created)
}

// PUT /api/habits/{id}
func (h *HabitHandler) UpdateHabit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, userID, ok := authedContext(w, r)
	if !ok {
		return
	}
	defer cancel()

	var req habit.UpdateHabitRequest
	if !decodeBody(w, r, &req) {
		return
	}

	updated, err := h.habitService.UpdateHabit(ctx, userID, mux.Vars(r)["id"], req)
	if err != nil {
		respondWithHabitError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, updated)
}

// DELETE /api/habits/{id}
func (h *HabitHandler) DeleteHabit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, userID, ok := authedContext(w, r)
	if !ok {
		return
	}
	defer cancel()

	if err := h.habitService.DeleteHabit(ctx, userID, mux.Vars(r)["id"]); err != nil {
		respondWithHabitError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Habit deleted successfully"})
}

// GET /api/habits/entries
func (h *HabitHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, userID, ok := authedContext(w, r)
	if !ok {
		return
	}
	defer cancel()

	entries, err := h.habitService.ListEntries(ctx, userID)
	if err != nil {
		respondWithHabitError(w, err)
		return
	}
	respondWithETag(w, r, nonNil(entries))
}

// GET /api/habits/{id}/entries
func (h *HabitHandler) ListHabitEntries(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, userID, ok := authedContext(w, r)
	if !ok {
		return
	}
	defer cancel()

	entries, err := h.habitService.ListHabitEntries(ctx, userID, mux.Vars(r)["id"])
	if err != nil {
		respondWithHabitError(w, err)
		return
	}
	respondWithETag(w, r, nonNil(entries))
}

// POST /api/habits/{id}/entries
func (h *HabitHandler) ToggleEntry(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, userID, ok := authedContext(w, r)
	if !ok {
		return
	}
	defer cancel()

	var req habit.ToggleEntryRequest
	if !decodeBody(w, r, &req) {
		return
	}

	entry, err := h.habitService.ToggleEntry(ctx, userID, mux.Vars(r)["id"], req)
	if err != nil {
		respondWithHabitError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, entry)
}

// GET /api/dashboard-data
func (h *HabitHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, userID, ok := authedContext(w, r)
	if !ok {
		return
	}
	defer cancel()

	dash, err := h.habitService.Dashboard(ctx, userID)
	if err != nil {
		respondWithHabitError(w, err)
		return
	}
	dash.Habits = nonNil(dash.Habits)
	dash.Entries = nonNil(dash.Entries)
	// The timestamp changes every call; leave it out of the ETag.
	etagged := struct {
		Habits  []habit.Habit `json:"habits"`
		Entries []habit.Entry `json:"entries"`
		Stats   habit.Stats   `json:"stats"`
	}{dash.Habits, dash.Entries, dash.Stats}
	respondWithETagOf(w, r, etagged, dash)
}

func respondWithHabitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, habit.ErrInvalid):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, habit.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "Habit not found")
	case errors.Is(err, context.DeadlineExceeded):
		respondWithError(w, http.StatusGatewayTimeout, "Request timed out")
	default:
		logger.Error("Habit request failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
