package models

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/julianstephens/habitual/internal/constants"
)

// Frequency is the cadence at which a habit's completion must be renewed.
type Frequency string

const (
	// FrequencyMinutely is an accelerated cadence with a one-minute window, meant for trying things out.
	FrequencyMinutely Frequency = "minutely"
	FrequencyHourly   Frequency = "hourly"
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
)

// Frequencies lists every supported cadence, shortest first.
var Frequencies = []Frequency{
	FrequencyMinutely,
	FrequencyHourly,
	FrequencyDaily,
	FrequencyWeekly,
}

func (f Frequency) Valid() bool {
	return slices.Contains(Frequencies, f)
}

func (f Frequency) String() string {
	return string(f)
}

// ParseFrequency parses a cadence name case-insensitively.
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", fmt.Errorf("invalid frequency %q (expected minutely, hourly, daily or weekly)", s)
	}
	return f, nil
}

// Habit is a recurring practice along with its live completion state.
type Habit struct {
	ID             string     `msgpack:"id"`
	Title          string     `msgpack:"title"`
	Description    string     `msgpack:"description"`
	Color          string     `msgpack:"color"`
	Frequency      Frequency  `msgpack:"frequency"`
	Streak         int        `msgpack:"streak"`
	Completed      bool       `msgpack:"completed"`
	LastCompleted  *time.Time `msgpack:"last_completed"`
	CompletedDates []string   `msgpack:"completed_dates"` // YYYY-MM-DD, oldest first
	CreatedAt      time.Time  `msgpack:"created_at"`
}

// habitRecord is the persisted JSON shape of a Habit.
type habitRecord struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Color          string    `json:"color"`
	Frequency      Frequency `json:"frequency"`
	Streak         int       `json:"streak"`
	Completed      bool      `json:"completed"`
	LastCompleted  *string   `json:"lastCompleted"`
	CompletedDates []string  `json:"completedDates"`
	CreatedAt      int64     `json:"createdAt"` // epoch milliseconds
}

func (h Habit) MarshalJSON() ([]byte, error) {
	rec := habitRecord{
		ID:             h.ID,
		Title:          h.Title,
		Description:    h.Description,
		Color:          h.Color,
		Frequency:      h.Frequency,
		Streak:         h.Streak,
		Completed:      h.Completed,
		CompletedDates: h.CompletedDates,
		CreatedAt:      h.CreatedAt.UnixMilli(),
	}
	if rec.CompletedDates == nil {
		rec.CompletedDates = []string{}
	}
	if h.LastCompleted != nil {
		s := h.LastCompleted.UTC().Format(constants.TimestampFormat)
		rec.LastCompleted = &s
	}
	return json.Marshal(rec)
}

func (h *Habit) UnmarshalJSON(data []byte) error {
	var rec habitRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}

	*h = Habit{
		ID:             rec.ID,
		Title:          rec.Title,
		Description:    rec.Description,
		Color:          rec.Color,
		Frequency:      rec.Frequency,
		Streak:         rec.Streak,
		Completed:      rec.Completed,
		CompletedDates: rec.CompletedDates,
		CreatedAt:      time.UnixMilli(rec.CreatedAt),
	}
	if h.CompletedDates == nil {
		h.CompletedDates = []string{}
	}
	if rec.LastCompleted != nil {
		t, err := time.Parse(time.RFC3339Nano, *rec.LastCompleted)
		if err != nil {
			return fmt.Errorf("failed to parse lastCompleted for habit %s: %w", rec.ID, err)
		}
		h.LastCompleted = &t
	}
	return nil
}

// Clone returns a deep copy that shares no mutable state with h.
func (h Habit) Clone() Habit {
	out := h
	if h.LastCompleted != nil {
		t := *h.LastCompleted
		out.LastCompleted = &t
	}
	out.CompletedDates = slices.Clone(h.CompletedDates)
	if out.CompletedDates == nil {
		out.CompletedDates = []string{}
	}
	return out
}

// Equal reports whether two habits are structurally identical.
func (h Habit) Equal(o Habit) bool {
	if h.ID != o.ID || h.Title != o.Title || h.Description != o.Description ||
		h.Color != o.Color || h.Frequency != o.Frequency || h.Streak != o.Streak ||
		h.Completed != o.Completed || !h.CreatedAt.Equal(o.CreatedAt) {
		return false
	}
	switch {
	case h.LastCompleted == nil && o.LastCompleted != nil, h.LastCompleted != nil && o.LastCompleted == nil:
		return false
	case h.LastCompleted != nil && !h.LastCompleted.Equal(*o.LastCompleted):
		return false
	}
	return slices.Equal(h.CompletedDates, o.CompletedDates)
}

// CompletedOn reports whether day (YYYY-MM-DD) is in the completion history.
func (h Habit) CompletedOn(day string) bool {
	return slices.Contains(h.CompletedDates, day)
}

// HabitPatch holds the user-editable fields of an update. Nil fields are left untouched.
type HabitPatch struct {
	Title       *string
	Description *string
	Frequency   *Frequency
	Color       *string
}

func (p HabitPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Frequency == nil && p.Color == nil
}

// Apply merges the patch into a copy of h. Streak and completion fields are never touched.
func (p HabitPatch) Apply(h Habit) Habit {
	out := h.Clone()
	if p.Title != nil {
		out.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Frequency != nil {
		out.Frequency = *p.Frequency
	}
	if p.Color != nil {
		out.Color = *p.Color
	}
	return out
}

// CloneAll deep-copies a collection, never returning nil.
func CloneAll(habits []Habit) []Habit {
	out := make([]Habit, len(habits))
	for i, h := range habits {
		out[i] = h.Clone()
	}
	return out
}
