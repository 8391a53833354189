package stats

import "time"

// HabitSummary is the per-habit history shown on a habit's detail page.
type HabitSummary struct {
	HabitID        string     `json:"habit_id"`
	TotalDays      int        `json:"total_days"` // days with an entry, completed or not
	CompletedDays  int        `json:"completed_days"`
	CurrentStreak  int        `json:"current_streak"`
	LongestStreak  int        `json:"longest_streak"`
	CompletionRate int        `json:"completion_rate"`
	LastCompleted  *time.Time `json:"last_completed,omitempty"`
}
