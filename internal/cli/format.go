package cli

import (
	"errors"
	"strings"

	apperrors "github.com/julianstephens/habitual/internal/errors"
	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/repository"
)

// MinShortID is the shortest id prefix shown in listings.
const MinShortID = 8

// ShortIDs maps each habit id to the shortest prefix of at least MinShortID
// characters that no other habit shares.
func ShortIDs(habits []models.Habit) map[string]string {
	out := make(map[string]string, len(habits))
	for _, h := range habits {
		n := min(MinShortID, len(h.ID))
		for ; n < len(h.ID); n++ {
			prefix := h.ID[:n]
			unique := true
			for _, other := range habits {
				if other.ID != h.ID && strings.HasPrefix(other.ID, prefix) {
					unique = false
					break
				}
			}
			if unique {
				break
			}
		}
		out[h.ID] = h.ID[:n]
	}
	return out
}

func StatusMark(h models.Habit) string {
	if h.Completed {
		return "[x]"
	}
	return "[ ]"
}

// Truncate shortens s to width runes, ending in "..." when cut.
func Truncate(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}

// Pad right-pads s with spaces to width runes.
func Pad(s string, width int) string {
	if n := len([]rune(s)); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

// FindHabit resolves ref against the loaded collection with a user-facing hint.
func (c *Context) FindHabit(ref string) (models.Habit, error) {
	h, err := c.Repo.Find(ref)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return h, apperrors.WithHint(err, "run 'habitual list' to see habit titles and ids")
	case errors.Is(err, repository.ErrAmbiguous):
		return h, apperrors.WithHint(err, "use more characters of the id")
	}
	return h, err
}
