// Package lifecycle decides how a habit's completion state evolves over time.
//
// Every function here is pure: the result depends only on the habit and the
// supplied "now". Calendar cadences (daily, weekly) are evaluated in now's
// location, so callers pick the user's timezone by choosing the clock.
package lifecycle

import (
	"slices"
	"time"

	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/utils"
)

// Decision describes which parts of a habit's live state have expired.
type Decision struct {
	// Reset clears the completed flag.
	Reset bool
	// ResetStreak zeroes the streak. It implies the grace period was missed.
	ResetStreak bool
}

// Any reports whether the habit needs to change.
func (d Decision) Any() bool {
	return d.Reset || d.ResetStreak
}

// Decide computes which resets apply to h at now. A habit that was never
// completed has nothing to expire.
func Decide(h models.Habit, now time.Time) Decision {
	if h.LastCompleted == nil {
		return Decision{}
	}
	last := h.LastCompleted.In(now.Location())

	switch h.Frequency {
	case models.FrequencyMinutely:
		return elapsed(now.Sub(last), time.Minute)

	case models.FrequencyHourly:
		return elapsed(now.Sub(last), time.Hour)

	case models.FrequencyDaily:
		today := utils.StartOfDay(now)
		lastDay := utils.StartOfDay(last)
		isToday := lastDay.Equal(today)
		wasYesterday := lastDay.Equal(today.AddDate(0, 0, -1))
		return Decision{
			Reset:       !isToday,
			ResetStreak: !isToday && !wasYesterday,
		}

	case models.FrequencyWeekly:
		current := utils.WeekStart(now)
		lastWeek := utils.WeekStart(last)
		reset := !lastWeek.Equal(current)
		return Decision{
			Reset:       reset,
			ResetStreak: reset && !lastWeek.Equal(current.AddDate(0, 0, -7)),
		}
	}

	return Decision{}
}

// elapsed handles the rolling-window cadences: the window expires after one
// period and the streak after two (one period of grace).
func elapsed(since, period time.Duration) Decision {
	return Decision{
		Reset:       since >= period,
		ResetStreak: since >= 2*period,
	}
}

// Evaluate returns h with any expired state cleared. lastCompleted and the
// completion history are never altered.
func Evaluate(h models.Habit, now time.Time) models.Habit {
	d := Decide(h, now)
	if !d.Any() {
		return h
	}

	out := h.Clone()
	out.Completed = false
	if d.ResetStreak {
		out.Streak = 0
	}
	return out
}

// EvaluateAll runs Evaluate over a collection and reports whether anything changed.
func EvaluateAll(habits []models.Habit, now time.Time) ([]models.Habit, bool) {
	out := make([]models.Habit, len(habits))
	changed := false
	for i, h := range habits {
		out[i] = Evaluate(h, now)
		if !changed && !out[i].Equal(h) {
			changed = true
		}
	}
	return out, changed
}

// Toggle flips a habit's completion at now.
//
// Completing stamps lastCompleted, bumps the streak and records today's marker.
// Undoing decrements the streak (never below zero) and removes today's marker;
// lastCompleted keeps its value since no earlier timestamp is retained.
func Toggle(h models.Habit, now time.Time) models.Habit {
	out := h.Clone()
	today := utils.DayKey(now)

	if !h.Completed {
		stamp := now
		out.Completed = true
		out.LastCompleted = &stamp
		out.Streak = h.Streak + 1
		if !slices.Contains(out.CompletedDates, today) {
			out.CompletedDates = append(out.CompletedDates, today)
		}
		return out
	}

	out.Completed = false
	out.Streak = max(0, h.Streak-1)
	out.CompletedDates = slices.DeleteFunc(out.CompletedDates, func(d string) bool {
		return d == today
	})
	return out
}
