// Package stats summarizes the habit collection for the stats view.
package stats

import (
	"fmt"
	"io"
	"math"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/julianstephens/habitual/internal/models"
)

// GroupOrder is the order frequency groups are reported in.
var GroupOrder = []models.Frequency{
	models.FrequencyHourly,
	models.FrequencyDaily,
	models.FrequencyWeekly,
	models.FrequencyMinutely,
}

type Group struct {
	Frequency models.Frequency
	Habits    []models.Habit
}

type Summary struct {
	Total     int
	Completed int
	// CompletionRate is the rounded percentage of habits currently completed.
	CompletionRate     int
	LongestStreak      int
	LongestStreakTitle string
	TotalStreaks       int
	Groups             []Group
}

// Compute builds a Summary. Empty frequency groups are omitted.
func Compute(habits []models.Habit) Summary {
	s := Summary{Total: len(habits)}
	byFrequency := make(map[models.Frequency][]models.Habit)

	for _, h := range habits {
		if h.Completed {
			s.Completed++
		}
		if h.Streak > s.LongestStreak {
			s.LongestStreak = h.Streak
			s.LongestStreakTitle = h.Title
		}
		s.TotalStreaks += h.Streak
		byFrequency[h.Frequency] = append(byFrequency[h.Frequency], h)
	}

	if s.Total > 0 {
		s.CompletionRate = int(math.Round(float64(s.Completed) * 100 / float64(s.Total)))
	}

	for _, f := range GroupOrder {
		if group := byFrequency[f]; len(group) > 0 {
			s.Groups = append(s.Groups, Group{Frequency: f, Habits: group})
		}
	}
	return s
}

// Label is the display name of a frequency group.
func Label(f models.Frequency) string {
	return cases.Title(language.English).String(string(f))
}

// Render writes a plain-text report of s to w.
func Render(w io.Writer, s Summary) error {
	if s.Total == 0 {
		_, err := fmt.Fprintln(w, "No habits yet.")
		return err
	}

	ew := &errWriter{w: w}
	ew.printf("%-16s %d\n", "Habits:", s.Total)
	ew.printf("%-16s %d (%d%%)\n", "Completed:", s.Completed, s.CompletionRate)
	if s.LongestStreak > 0 {
		ew.printf("%-16s %d (%s)\n", "Longest streak:", s.LongestStreak, s.LongestStreakTitle)
	} else {
		ew.printf("%-16s %d\n", "Longest streak:", 0)
	}
	ew.printf("%-16s %d\n", "Total streaks:", s.TotalStreaks)

	for _, g := range s.Groups {
		ew.printf("\n%s (%d)\n", Label(g.Frequency), len(g.Habits))
		for _, h := range g.Habits {
			mark := "[ ]"
			if h.Completed {
				mark = "[x]"
			}
			ew.printf("  %s %-24s streak %d\n", mark, h.Title, h.Streak)
		}
	}
	return ew.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
