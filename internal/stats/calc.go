package stats

import (
	"math"
	"sort"
	"time"

	"habitTrackerAPI/internal/habit"
)

// Window returns the calendar dates covered by period, newest first.
func Window(period habit.Period, today time.Time) []string {
	n := period.Days()
	start := midnight(today)
	dates := make([]string, 0, n)
	for i := 0; i < n; i++ {
		dates = append(dates, habit.Day(start.AddDate(0, 0, -i)))
	}
	return dates
}

// Compute derives the dashboard aggregates for period from the local
// collections. Dates before a habit's creation day are excluded from both
// sides of the completion rate.
//
// For today a habit counts as completed on a direct lookup of today's entry.
// For week and month it counts when it was completed at least once in the
// window on or after its creation day.
func Compute(habits []habit.Habit, entries []habit.Entry, period habit.Period, today time.Time) habit.Stats {
	if _, ok := habit.ParsePeriod(string(period)); !ok {
		period = habit.PeriodWeek
	}
	window := Window(period, today)
	done := completedIndex(entries)

	st := habit.Stats{Period: period, TotalHabits: len(habits)}

	possible, achieved := 0, 0
	for _, h := range habits {
		created := createdDay(h, today.Location())
		counted := false
		for _, d := range window {
			if period == habit.PeriodToday && done[h.ID][d] {
				counted = true
			}
			if created != "" && d < created {
				continue
			}
			possible++
			if done[h.ID][d] {
				achieved++
				counted = true
			}
		}
		if counted {
			st.CompletedInPeriod++
		}
	}
	st.CompletionRate = rate(achieved, possible)

	var all []string
	for _, dates := range done {
		for d := range dates {
			all = append(all, d)
		}
	}
	st.StreakDays, st.LongestStreak = streaks(all, today)
	return st
}

// ForHabit summarizes the full entry history of one habit.
func ForHabit(habitID string, entries []habit.Entry, today time.Time) HabitSummary {
	sum := HabitSummary{HabitID: habitID}

	var completed []string
	for _, en := range entries {
		if en.HabitID != habitID {
			continue
		}
		sum.TotalDays++
		if !en.Completed {
			continue
		}
		sum.CompletedDays++
		completed = append(completed, en.Date)
		if en.CompletedAt != nil && (sum.LastCompleted == nil || en.CompletedAt.After(*sum.LastCompleted)) {
			t := *en.CompletedAt
			sum.LastCompleted = &t
		}
	}
	sum.CompletionRate = rate(sum.CompletedDays, sum.TotalDays)
	sum.CurrentStreak, sum.LongestStreak = streaks(completed, today)
	return sum
}

// ProgressDots reports completion for the last n days, oldest first.
func ProgressDots(entries []habit.Entry, habitID string, today time.Time, n int) []bool {
	if n <= 0 {
		return nil
	}
	done := completedIndex(entries)[habitID]
	start := midnight(today)
	dots := make([]bool, n)
	for i := 0; i < n; i++ {
		dots[n-1-i] = done[habit.Day(start.AddDate(0, 0, -i))]
	}
	return dots
}

func completedIndex(entries []habit.Entry) map[string]map[string]bool {
	idx := make(map[string]map[string]bool)
	for _, en := range entries {
		if !en.Completed {
			continue
		}
		if idx[en.HabitID] == nil {
			idx[en.HabitID] = make(map[string]bool)
		}
		idx[en.HabitID][en.Date] = true
	}
	return idx
}

// streaks returns the current run of consecutive days ending today (or
// yesterday while today is still open) and the longest run overall.
func streaks(dates []string, today time.Time) (current, longest int) {
	days := make(map[string]bool, len(dates))
	var parsed []time.Time
	for _, d := range dates {
		if days[d] {
			continue
		}
		t, err := habit.ParseDay(d)
		if err != nil {
			continue
		}
		days[d] = true
		parsed = append(parsed, t)
	}
	if len(parsed) == 0 {
		return 0, 0
	}
	sort.Slice(parsed, func(i, j int) bool { return parsed[i].Before(parsed[j]) })

	run := 1
	longest = 1
	for i := 1; i < len(parsed); i++ {
		if parsed[i].Equal(parsed[i-1].AddDate(0, 0, 1)) {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}

	cursor := midnight(today)
	if !days[habit.Day(cursor)] {
		cursor = cursor.AddDate(0, 0, -1)
	}
	for days[habit.Day(cursor)] {
		current++
		cursor = cursor.AddDate(0, 0, -1)
	}
	return current, longest
}

func rate(achieved, possible int) int {
	if possible == 0 {
		return 0
	}
	return int(math.Round(float64(achieved) * 100 / float64(possible)))
}

func createdDay(h habit.Habit, loc *time.Location) string {
	if h.CreatedAt.IsZero() {
		return ""
	}
	return habit.Day(h.CreatedAt.In(loc))
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
