package habit

import (
	"strings"
	"time"
)

type Frequency string

const (
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
	FrequencyCustom Frequency = "custom"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyCustom:
		return true
	}
	return false
}

// Period selects the window used for derived statistics.
type Period string

const (
	PeriodToday Period = "today"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// Days returns the number of calendar days covered by the period, today included.
func (p Period) Days() int {
	switch p {
	case PeriodToday:
		return 1
	case PeriodMonth:
		return 30
	default:
		return 7
	}
}

func ParsePeriod(s string) (Period, bool) {
	switch Period(strings.ToLower(strings.TrimSpace(s))) {
	case PeriodToday:
		return PeriodToday, true
	case PeriodWeek, "":
		return PeriodWeek, true
	case PeriodMonth:
		return PeriodMonth, true
	}
	return "", false
}

const (
	DefaultColor = "blue"
	DefaultIcon  = "📝"

	// DateLayout is the wire format of entry dates.
	DateLayout = "2006-01-02"

	TempIDPrefix = "temp-"
)

type Habit struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Name            string    `json:"name"`
	Description     *string   `json:"description,omitempty"`
	Color           string    `json:"color"`
	Icon            string    `json:"icon"`
	TargetFrequency Frequency `json:"target_frequency"`
	TargetCount     *int      `json:"target_count,omitempty"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CreatedOn is the calendar day the habit was created.
func (h Habit) CreatedOn() string {
	if h.CreatedAt.IsZero() {
		return ""
	}
	return Day(h.CreatedAt)
}

type Entry struct {
	ID          string     `json:"id"`
	HabitID     string     `json:"habit_id"`
	UserID      string     `json:"user_id"`
	Date        string     `json:"date"`
	Completed   bool       `json:"completed"`
	Notes       *string    `json:"notes,omitempty"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `json:"created_at"`

	HabitName  string `json:"habit_name,omitempty"`
	HabitColor string `json:"habit_color,omitempty"`
	HabitIcon  string `json:"habit_icon,omitempty"`
}

// Stats are the derived aggregates shown on the dashboard.
type Stats struct {
	Period            Period `json:"period"`
	TotalHabits       int    `json:"total_habits"`
	CompletedInPeriod int    `json:"completed_in_period"`
	CompletionRate    int    `json:"completion_rate"`
	StreakDays        int    `json:"streak_days"`
	LongestStreak     int    `json:"longest_streak"`
}

type Dashboard struct {
	Habits    []Habit   `json:"habits"`
	Entries   []Entry   `json:"entries"`
	Stats     Stats     `json:"stats"`
	Timestamp time.Time `json:"timestamp"`
}

// Day formats t as a calendar date in t's location.
func Day(t time.Time) string {
	return t.Format(DateLayout)
}

func ParseDay(s string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(s))
}

func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}
