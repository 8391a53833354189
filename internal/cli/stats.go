package cli

import (
	"fmt"
	"time"

	"habitTrackerAPI/internal/habit"
)

type StatsCmd struct {
	Period string `short:"p" help:"Period (today|week|month)." default:"week" enum:"today,week,month"`
}

func (c *StatsCmd) Run(ctx *Context) error {
	period, ok := habit.ParsePeriod(c.Period)
	if !ok {
		return fmt.Errorf("unknown period %q", c.Period)
	}
	if err := ctx.load(); err != nil {
		return err
	}
	printStats(ctx, ctx.Tracker.Stats(period))
	return nil
}

func printStats(ctx *Context, s habit.Stats) {
	ctx.printf("%s: %d habits, %d completions, %d%% complete, streak %d (best %d)\n",
		s.Period, s.TotalHabits, s.CompletedInPeriod, s.CompletionRate, s.StreakDays, s.LongestStreak)
}

type WatchCmd struct {
	Period string        `short:"p" help:"Period (today|week|month)." default:"week" enum:"today,week,month"`
	Check  time.Duration `help:"How often to check for finished refreshes." default:"1s" hidden:""`
}

// Run keeps the background refresh active and prints stats after each
// refresh until the context is cancelled.
func (c *WatchCmd) Run(ctx *Context) error {
	if err := ctx.requireSession(); err != nil {
		return err
	}
	period, ok := habit.ParsePeriod(c.Period)
	if !ok {
		return fmt.Errorf("unknown period %q", c.Period)
	}

	ctx.Tracker.Activate(ctx.Ctx)
	defer ctx.Tracker.Deactivate()

	ticker := time.NewTicker(c.Check)
	defer ticker.Stop()

	seen := 0
	for {
		runs, _ := ctx.Tracker.Scheduler().Runs()
		if runs != seen {
			seen = runs
			stamp := time.Now().Format("15:04:05")
			if err := ctx.Tracker.Scheduler().LastError(); err != nil {
				ctx.printf("[%s] refresh failed: %v\n", stamp, err)
			} else {
				ctx.printf("[%s] ", stamp)
				printStats(ctx, ctx.Tracker.Stats(period))
			}
		}
		select {
		case <-ctx.Ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
