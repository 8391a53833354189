package cli

import (
	"fmt"
	"strings"

	"habitTrackerAPI/internal/habit"
)

const progressDays = 7

type HabitsListCmd struct {
	All bool `short:"a" help:"Include the per-habit history summary."`
}

func (c *HabitsListCmd) Run(ctx *Context) error {
	if err := ctx.load(); err != nil {
		return err
	}
	habits := ctx.Tracker.Habits()
	if len(habits) == 0 {
		ctx.printf("No habits yet. Add one with `habitctl habits add <name>`\n")
		return nil
	}

	ctx.printf("%s\n", titleStyle.Render("Habits:"))
	for _, h := range habits {
		mark := " "
		if ctx.Tracker.IsCompleted(h.ID, "") {
			mark = doneStyle.Render("x")
		}
		ctx.printf("  [%s] %s %s  %s  (%s, %s)\n",
			mark, h.Icon, h.Name, dots(ctx.Tracker.ProgressDots(h.ID, progressDays)), frequencyLabel(h), shortID(h.ID))
		if c.All {
			s := ctx.Tracker.HabitSummary(h.ID)
			ctx.printf("      %d/%d days completed, streak %d (best %d), %d%%\n",
				s.CompletedDays, s.TotalDays, s.CurrentStreak, s.LongestStreak, s.CompletionRate)
		}
	}
	return nil
}

type HabitsAddCmd struct {
	Name        string `arg:"" help:"Habit name."`
	Description string `short:"d" help:"Description."`
	Color       string `short:"c" help:"Color name." default:"blue"`
	Icon        string `short:"i" help:"Icon."`
	Frequency   string `short:"f" help:"Target frequency (daily|weekly|custom)." default:"daily" enum:"daily,weekly,custom"`
	Count       int    `short:"n" help:"Target count for custom frequency."`
}

func (c *HabitsAddCmd) Run(ctx *Context) error {
	if err := ctx.requireSession(); err != nil {
		return err
	}
	req := habit.CreateHabitRequest{
		Name:            c.Name,
		Color:           c.Color,
		Icon:            c.Icon,
		TargetFrequency: habit.Frequency(c.Frequency),
	}
	if c.Description != "" {
		req.Description = &c.Description
	}
	if c.Count > 0 {
		req.TargetCount = &c.Count
	}

	h, err := ctx.Tracker.AddHabit(ctx.Ctx, req)
	if err != nil {
		return err
	}
	ctx.printf("Added habit %q (%s)\n", h.Name, shortID(h.ID))
	return nil
}

type HabitsEditCmd struct {
	Habit       string `arg:"" help:"Habit id or name."`
	Name        string `help:"New name."`
	Description string `short:"d" help:"New description."`
	Color       string `short:"c" help:"New color."`
	Icon        string `short:"i" help:"New icon."`
	Frequency   string `short:"f" help:"New target frequency (daily|weekly|custom)."`
	Count       int    `short:"n" help:"New target count."`
	Archive     bool   `help:"Hide the habit from active lists." xor:"active"`
	Restore     bool   `help:"Make an archived habit active again." xor:"active"`
}

func (c *HabitsEditCmd) request() (habit.UpdateHabitRequest, bool) {
	var req habit.UpdateHabitRequest
	changed := false
	set := func(dst **string, v string) {
		if v != "" {
			*dst = &v
			changed = true
		}
	}
	set(&req.Name, c.Name)
	set(&req.Description, c.Description)
	set(&req.Color, c.Color)
	set(&req.Icon, c.Icon)
	if c.Frequency != "" {
		f := habit.Frequency(strings.ToLower(c.Frequency))
		req.TargetFrequency = &f
		changed = true
	}
	if c.Count > 0 {
		req.TargetCount = &c.Count
		changed = true
	}
	if c.Archive || c.Restore {
		active := c.Restore
		req.IsActive = &active
		changed = true
	}
	return req, changed
}

func (c *HabitsEditCmd) Run(ctx *Context) error {
	req, changed := c.request()
	if !changed {
		return fmt.Errorf("nothing to change")
	}
	if err := ctx.load(); err != nil {
		return err
	}
	h, err := ctx.resolveHabit(c.Habit)
	if err != nil {
		return err
	}
	updated, err := ctx.Tracker.UpdateHabit(ctx.Ctx, h.ID, req)
	if err != nil {
		return err
	}
	ctx.printf("Updated habit %q\n", updated.Name)
	return nil
}

type HabitsDeleteCmd struct {
	Habit string `arg:"" help:"Habit id or name."`
}

func (c *HabitsDeleteCmd) Run(ctx *Context) error {
	if err := ctx.load(); err != nil {
		return err
	}
	h, err := ctx.resolveHabit(c.Habit)
	if err != nil {
		return err
	}
	if err := ctx.Tracker.DeleteHabit(ctx.Ctx, h.ID); err != nil {
		return err
	}
	ctx.printf("Deleted habit %q and its history\n", h.Name)
	return nil
}

type ToggleCmd struct {
	Habit string `arg:"" help:"Habit id or name."`
	Date  string `short:"d" help:"Date as YYYY-MM-DD (default today)."`
}

func (c *ToggleCmd) Validate() error {
	if c.Date == "" {
		return nil
	}
	if _, err := habit.ParseDay(c.Date); err != nil {
		return fmt.Errorf("invalid date %q: use YYYY-MM-DD", c.Date)
	}
	return nil
}

func (c *ToggleCmd) Run(ctx *Context) error {
	if err := ctx.load(); err != nil {
		return err
	}
	h, err := ctx.resolveHabit(c.Habit)
	if err != nil {
		return err
	}
	e, err := ctx.Tracker.ToggleEntry(ctx.Ctx, h.ID, c.Date)
	if err != nil {
		return err
	}
	state := "not done"
	if e.Completed {
		state = "done"
	}
	ctx.printf("%s on %s: %s\n", h.Name, e.Date, state)
	return nil
}

func frequencyLabel(h habit.Habit) string {
	if h.TargetFrequency == habit.FrequencyCustom && h.TargetCount != nil {
		return fmt.Sprintf("%dx per week", *h.TargetCount)
	}
	return string(h.TargetFrequency)
}
