package services

import (
	"context"

	"golang.org/x/sync/errgroup"

	"habitTrackerAPI/internal/habit"
	"habitTrackerAPI/internal/stats"
)

// Dashboard returns habits, entries and the weekly stats in one read.
func (s *HabitService) Dashboard(ctx context.Context, userID string) (habit.Dashboard, error) {
	var habits []habit.Habit
	var entries []habit.Entry

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		habits, err = s.ListHabits(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		entries, err = s.ListEntries(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return habit.Dashboard{}, err
	}

	now := s.now()
	return habit.Dashboard{
		Habits:    habits,
		Entries:   entries,
		Stats:     stats.Compute(habits, entries, habit.PeriodWeek, now),
		Timestamp: now,
	}, nil
}
