package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"habitTrackerAPI/internal/habit"
	"habitTrackerAPI/internal/logger"
)

type HabitService struct {
	db  *pgxpool.Pool
	now func() time.Time
}

func NewHabitService(db *pgxpool.Pool) *HabitService {
	return &HabitService{db: db, now: time.Now}
}

const habitColumns = `id::text, user_id::text, name, description, color, icon, target_frequency,
	target_count, is_active, created_at, updated_at`

const entryColumns = `e.id::text, e.habit_id::text, e.user_id::text, to_char(e.date, 'YYYY-MM-DD'),
	e.completed, e.notes, e.completed_at, e.created_at`

func scanHabit(row pgx.Row) (habit.Habit, error) {
	var h habit.Habit
	var freq string
	err := row.Scan(&h.ID, &h.UserID, &h.Name, &h.Description, &h.Color, &h.Icon, &freq,
		&h.TargetCount, &h.IsActive, &h.CreatedAt, &h.UpdatedAt)
	h.TargetFrequency = habit.Frequency(freq)
	return h, err
}

func scanEntry(row pgx.Row, extra ...any) (habit.Entry, error) {
	var e habit.Entry
	dest := []any{&e.ID, &e.HabitID, &e.UserID, &e.Date, &e.Completed, &e.Notes, &e.CompletedAt, &e.CreatedAt}
	err := row.Scan(append(dest, extra...)...)
	return e, err
}

// validID rejects anything that is not a uuid so it never reaches a query.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// ListHabits returns the caller's active habits, newest first.
func (s *HabitService) ListHabits(ctx context.Context, userID string) ([]habit.Habit, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+habitColumns+`
		FROM habits
		WHERE user_id = $1 AND is_active = true
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query habits: %w", err)
	}
	defer rows.Close()

	habits := []habit.Habit{}
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan habit: %w", err)
		}
		habits = append(habits, h)
	}
	return habits, rows.Err()
}

func (s *HabitService) GetHabit(ctx context.Context, userID, habitID string) (habit.Habit, error) {
	if !validID(habitID) {
		return habit.Habit{}, habit.ErrNotFound
	}
	h, err := scanHabit(s.db.QueryRow(ctx, `
		SELECT `+habitColumns+`
		FROM habits
		WHERE id = $1 AND user_id = $2
	`, habitID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return habit.Habit{}, habit.ErrNotFound
	}
	if err != nil {
		return habit.Habit{}, fmt.Errorf("failed to get habit: %w", err)
	}
	return h, nil
}

func (s *HabitService) CreateHabit(ctx context.Context, userID string, req habit.CreateHabitRequest) (habit.Habit, error) {
	if err := req.Validate(); err != nil {
		return habit.Habit{}, err
	}
	req.Normalize()

	h, err := scanHabit(s.db.QueryRow(ctx, `
		INSERT INTO habits (user_id, name, description, color, icon, target_frequency, target_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+habitColumns,
		userID, req.Name, req.Description, req.Color, req.Icon, string(req.TargetFrequency), req.TargetCount,
	))
	if err != nil {
		return habit.Habit{}, fmt.Errorf("failed to create habit: %w", err)
	}
	logger.Debug("HabitService: created habit", "habit_id", h.ID, "user_id", userID)
	return h, nil
}

// UpdateHabit applies a partial update to an owned habit.
func (s *HabitService) UpdateHabit(ctx context.Context, userID, habitID string, req habit.UpdateHabitRequest) (habit.Habit, error) {
	if err := req.Validate(); err != nil {
		return habit.Habit{}, err
	}
	current, err := s.GetHabit(ctx, userID, habitID)
	if err != nil {
		return habit.Habit{}, err
	}
	next, err := req.ApplyTo(current)
	if err != nil {
		return habit.Habit{}, err
	}

	h, err := scanHabit(s.db.QueryRow(ctx, `
		UPDATE habits
		SET name = $3, description = $4, color = $5, icon = $6,
		    target_frequency = $7, target_count = $8, is_active = $9, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING `+habitColumns,
		habitID, userID, next.Name, next.Description, next.Color, next.Icon,
		string(next.TargetFrequency), next.TargetCount, next.IsActive,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return habit.Habit{}, habit.ErrNotFound
	}
	if err != nil {
		return habit.Habit{}, fmt.Errorf("failed to update habit: %w", err)
	}
	return h, nil
}

// DeleteHabit hard-deletes an owned habit; its entries go with it.
func (s *HabitService) DeleteHabit(ctx context.Context, userID, habitID string) error {
	if !validID(habitID) {
		return habit.ErrNotFound
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM habits WHERE id = $1 AND user_id = $2`, habitID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete habit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return habit.ErrNotFound
	}
	logger.Debug("HabitService: deleted habit", "habit_id", habitID, "user_id", userID)
	return nil
}

// ListEntries returns every entry of the caller's active habits joined with
// the habit display fields.
func (s *HabitService) ListEntries(ctx context.Context, userID string) ([]habit.Entry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+entryColumns+`, h.name, h.color, h.icon
		FROM habit_entries e
		JOIN habits h ON h.id = e.habit_id
		WHERE e.user_id = $1 AND h.is_active = true
		ORDER BY e.date DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	entries := []habit.Entry{}
	for rows.Next() {
		var name, color, icon string
		e, err := scanEntry(rows, &name, &color, &icon)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.HabitName, e.HabitColor, e.HabitIcon = name, color, icon
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *HabitService) ListHabitEntries(ctx context.Context, userID, habitID string) ([]habit.Entry, error) {
	if _, err := s.GetHabit(ctx, userID, habitID); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+entryColumns+`
		FROM habit_entries e
		WHERE e.habit_id = $1 AND e.user_id = $2
		ORDER BY e.date DESC
	`, habitID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query habit entries: %w", err)
	}
	defer rows.Close()

	entries := []habit.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ToggleEntry upserts the (habit, date) row. Without an explicit value the
// stored completion flips; a missing row is created completed.
func (s *HabitService) ToggleEntry(ctx context.Context, userID, habitID string, req habit.ToggleEntryRequest) (habit.Entry, error) {
	if err := req.Validate(); err != nil {
		return habit.Entry{}, err
	}
	h, err := s.GetHabit(ctx, userID, habitID)
	if err != nil {
		return habit.Entry{}, err
	}

	e, err := scanEntry(s.db.QueryRow(ctx, `
		INSERT INTO habit_entries AS e (habit_id, user_id, date, completed, notes, completed_at)
		VALUES ($1, $2, $3::date, COALESCE($4::boolean, true), $5,
		        CASE WHEN COALESCE($4::boolean, true) THEN NOW() END)
		ON CONFLICT (habit_id, date) DO UPDATE
		SET completed = COALESCE($4::boolean, NOT e.completed),
		    notes = COALESCE($5, e.notes),
		    completed_at = CASE WHEN COALESCE($4::boolean, NOT e.completed) THEN NOW() END
		RETURNING `+entryColumns,
		habitID, userID, req.Date, req.Completed, req.Notes,
	))
	if err != nil {
		return habit.Entry{}, fmt.Errorf("failed to toggle entry: %w", err)
	}
	e.HabitName, e.HabitColor, e.HabitIcon = h.Name, h.Color, h.Icon
	return e, nil
}
