package habit

import (
	"fmt"
	"strings"
)

type CreateHabitRequest struct {
	Name            string    `json:"name"`
	Description     *string   `json:"description,omitempty"`
	Color           string    `json:"color,omitempty"`
	Icon            string    `json:"icon,omitempty"`
	TargetFrequency Frequency `json:"target_frequency,omitempty"`
	TargetCount     *int      `json:"target_count,omitempty"`
}

// Normalize trims the name and fills in defaults.
func (r *CreateHabitRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	if r.Color == "" {
		r.Color = DefaultColor
	}
	if r.Icon == "" {
		r.Icon = DefaultIcon
	}
	if r.TargetFrequency == "" {
		r.TargetFrequency = FrequencyDaily
	}
	if r.TargetFrequency != FrequencyCustom {
		r.TargetCount = nil
	}
}

func (r CreateHabitRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	freq := r.TargetFrequency
	if freq == "" {
		freq = FrequencyDaily
	}
	return validateFrequency(freq, r.TargetCount)
}

type UpdateHabitRequest struct {
	Name            *string    `json:"name,omitempty"`
	Description     *string    `json:"description,omitempty"`
	Color           *string    `json:"color,omitempty"`
	Icon            *string    `json:"icon,omitempty"`
	TargetFrequency *Frequency `json:"target_frequency,omitempty"`
	TargetCount     *int       `json:"target_count,omitempty"`
	IsActive        *bool      `json:"is_active,omitempty"`
}

func (r UpdateHabitRequest) Validate() error {
	if r.Name != nil && strings.TrimSpace(*r.Name) == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalid)
	}
	if r.TargetFrequency != nil && !r.TargetFrequency.Valid() {
		return fmt.Errorf("%w: unknown target frequency %q", ErrInvalid, *r.TargetFrequency)
	}
	if r.TargetCount != nil && *r.TargetCount <= 0 {
		return fmt.Errorf("%w: target count must be positive", ErrInvalid)
	}
	return nil
}

// ApplyTo returns h with the partial update applied. The result is validated
// as a whole so a custom frequency always carries a target count.
func (r UpdateHabitRequest) ApplyTo(h Habit) (Habit, error) {
	if err := r.Validate(); err != nil {
		return Habit{}, err
	}
	if r.Name != nil {
		h.Name = strings.TrimSpace(*r.Name)
	}
	if r.Description != nil {
		desc := *r.Description
		h.Description = &desc
	}
	if r.Color != nil {
		h.Color = *r.Color
	}
	if r.Icon != nil {
		h.Icon = *r.Icon
	}
	if r.TargetFrequency != nil {
		h.TargetFrequency = *r.TargetFrequency
	}
	if r.TargetCount != nil {
		count := *r.TargetCount
		h.TargetCount = &count
	}
	if h.TargetFrequency != FrequencyCustom {
		h.TargetCount = nil
	}
	if r.IsActive != nil {
		h.IsActive = *r.IsActive
	}
	if err := validateFrequency(h.TargetFrequency, h.TargetCount); err != nil {
		return Habit{}, err
	}
	return h, nil
}

type ToggleEntryRequest struct {
	Date      string  `json:"date"`
	Completed *bool   `json:"completed,omitempty"`
	Notes     *string `json:"notes,omitempty"`
}

func (r ToggleEntryRequest) Validate() error {
	if strings.TrimSpace(r.Date) == "" {
		return fmt.Errorf("%w: date is required", ErrInvalid)
	}
	if _, err := ParseDay(r.Date); err != nil {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalid)
	}
	return nil
}

func validateFrequency(freq Frequency, count *int) error {
	if !freq.Valid() {
		return fmt.Errorf("%w: unknown target frequency %q", ErrInvalid, freq)
	}
	if freq == FrequencyCustom && (count == nil || *count <= 0) {
		return fmt.Errorf("%w: custom frequency requires a positive target count", ErrInvalid)
	}
	return nil
}
