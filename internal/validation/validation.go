package validation

import (
	"fmt"
	"slices"
	"strings"

	"github.com/julianstephens/habitual/internal/constants"
	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/utils"
)

// IssueKind represents the type of problem found in a stored habit
type IssueKind string

const (
	IssueUndecodable      IssueKind = "undecodable"
	IssueMissingID        IssueKind = "missing_id"
	IssueDuplicateID      IssueKind = "duplicate_id"
	IssueEmptyTitle       IssueKind = "empty_title"
	IssueInvalidFrequency IssueKind = "invalid_frequency"
	IssueNegativeStreak   IssueKind = "negative_streak"
	IssueCompletedNoStamp IssueKind = "completed_without_timestamp"
	IssueInvalidDateKey   IssueKind = "invalid_date_key"
	IssueDuplicateDateKey IssueKind = "duplicate_date_key"
	IssueMissingColor     IssueKind = "missing_color"
	IssueDuplicateTitle   IssueKind = "duplicate_title"
)

// Issue is one problem found in a stored habit.
type Issue struct {
	Kind        IssueKind
	HabitID     string
	Description string
	// Dropped is set when the habit could not be kept.
	Dropped bool
}

// Result collects the issues found by Sanitize
type Result struct {
	Issues []Issue
}

// HasIssues returns true if anything was found
func (r *Result) HasIssues() bool {
	return len(r.Issues) > 0
}

// Dropped counts the habits that were discarded.
func (r *Result) Dropped() int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Dropped {
			n++
		}
	}
	return n
}

// Add records an issue.
func (r *Result) Add(issue Issue) {
	r.Issues = append(r.Issues, issue)
}

// FormatReport returns a human-readable report of all issues
func (r *Result) FormatReport() string {
	if !r.HasIssues() {
		return "No issues detected."
	}

	var b strings.Builder
	b.WriteString("Issues detected:\n")
	for _, issue := range r.Issues {
		action := "repaired"
		switch {
		case issue.Dropped:
			action = "dropped"
		case issue.Kind == IssueDuplicateTitle:
			action = "kept"
		}
		fmt.Fprintf(&b, "- [%s] %s\n", action, issue.Description)
	}
	return b.String()
}

// Sanitize checks loaded habits and returns the ones safe to keep.
//
// Habits whose identity is unusable (no id, a repeated id, a blank title or
// an unknown frequency) are dropped. Inconsistent live state is repaired in
// place: negative streaks become zero, a completed flag without a timestamp
// is cleared, and malformed or repeated day markers are removed.
func Sanitize(habits []models.Habit) ([]models.Habit, Result) {
	var result Result
	out := make([]models.Habit, 0, len(habits))
	seenIDs := make(map[string]bool, len(habits))
	titles := make(map[string][]string)

	for _, h := range habits {
		if issue, ok := identityIssue(h, seenIDs); ok {
			result.Add(issue)
			continue
		}
		seenIDs[h.ID] = true

		repaired := repair(h.Clone(), &result)
		out = append(out, repaired)

		key := strings.ToLower(repaired.Title)
		titles[key] = append(titles[key], repaired.ID)
	}

	for _, h := range out {
		ids := titles[strings.ToLower(h.Title)]
		if len(ids) > 1 && ids[0] == h.ID {
			result.Add(Issue{
				Kind:        IssueDuplicateTitle,
				HabitID:     h.ID,
				Description: fmt.Sprintf("Duplicate habit title %q (IDs: %v)", h.Title, ids),
			})
		}
	}

	return out, result
}

func identityIssue(h models.Habit, seen map[string]bool) (Issue, bool) {
	switch {
	case strings.TrimSpace(h.ID) == "":
		return Issue{
			Kind:        IssueMissingID,
			Description: fmt.Sprintf("Habit %q has no id", h.Title),
			Dropped:     true,
		}, true
	case seen[h.ID]:
		return Issue{
			Kind:        IssueDuplicateID,
			HabitID:     h.ID,
			Description: fmt.Sprintf("Habit id %s appears more than once", h.ID),
			Dropped:     true,
		}, true
	case strings.TrimSpace(h.Title) == "":
		return Issue{
			Kind:        IssueEmptyTitle,
			HabitID:     h.ID,
			Description: fmt.Sprintf("Habit %s has an empty title", h.ID),
			Dropped:     true,
		}, true
	case !h.Frequency.Valid():
		return Issue{
			Kind:        IssueInvalidFrequency,
			HabitID:     h.ID,
			Description: fmt.Sprintf("Habit %q has unknown frequency %q", h.Title, h.Frequency),
			Dropped:     true,
		}, true
	}
	return Issue{}, false
}

func repair(h models.Habit, result *Result) models.Habit {
	if h.Streak < 0 {
		result.Add(Issue{
			Kind:        IssueNegativeStreak,
			HabitID:     h.ID,
			Description: fmt.Sprintf("Habit %q had streak %d, reset to 0", h.Title, h.Streak),
		})
		h.Streak = 0
	}

	if h.Completed && h.LastCompleted == nil {
		result.Add(Issue{
			Kind:        IssueCompletedNoStamp,
			HabitID:     h.ID,
			Description: fmt.Sprintf("Habit %q was completed with no completion time, marked incomplete", h.Title),
		})
		h.Completed = false
	}

	if h.Color == "" {
		result.Add(Issue{
			Kind:        IssueMissingColor,
			HabitID:     h.ID,
			Description: fmt.Sprintf("Habit %q had no color, set to %s", h.Title, constants.DefaultColor),
		})
		h.Color = constants.DefaultColor
	}

	dates := make([]string, 0, len(h.CompletedDates))
	for _, d := range h.CompletedDates {
		switch {
		case !utils.ValidateDayKey(d):
			result.Add(Issue{
				Kind:        IssueInvalidDateKey,
				HabitID:     h.ID,
				Description: fmt.Sprintf("Habit %q had invalid completion date %q, removed", h.Title, d),
			})
		case slices.Contains(dates, d):
			result.Add(Issue{
				Kind:        IssueDuplicateDateKey,
				HabitID:     h.ID,
				Description: fmt.Sprintf("Habit %q listed %s twice, deduplicated", h.Title, d),
			})
		default:
			dates = append(dates, d)
		}
	}
	h.CompletedDates = dates

	return h
}
