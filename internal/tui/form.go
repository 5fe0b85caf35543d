package tui

import (
	"errors"
	"slices"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/julianstephens/habitual/internal/constants"
	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/tui/components/habitlist"
)

// HabitForm holds the values bound to the add/edit form.
type HabitForm struct {
	Title       string
	Description string
	Frequency   models.Frequency
	Color       string
}

func NewHabitForm(fm *HabitForm) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Title").
				Value(&fm.Title).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("title is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Description").
				Value(&fm.Description),
			huh.NewSelect[models.Frequency]().
				Title("Frequency").
				Options(frequencyOptions()...).
				Value(&fm.Frequency),
			huh.NewSelect[string]().
				Title("Color").
				Options(colorOptions(fm.Color)...).
				Value(&fm.Color),
		),
	)
}

func frequencyOptions() []huh.Option[models.Frequency] {
	opts := make([]huh.Option[models.Frequency], len(models.Frequencies))
	for i, f := range models.Frequencies {
		opts[i] = huh.NewOption(f.String(), f)
	}
	return opts
}

// colorOptions offers the palette, plus current when it is a custom color.
func colorOptions(current string) []huh.Option[string] {
	colors := slices.Clone(constants.Palette)
	if current != "" && !slices.Contains(colors, current) {
		colors = append(colors, current)
	}
	opts := make([]huh.Option[string], len(colors))
	for i, c := range colors {
		opts[i] = huh.NewOption(habitlist.Swatch(c)+" "+c, c)
	}
	return opts
}

// patch returns the fields of the form that differ from h.
func (fm *HabitForm) patch(h models.Habit) models.HabitPatch {
	var p models.HabitPatch
	if title := strings.TrimSpace(fm.Title); title != h.Title {
		p.Title = &title
	}
	if desc := fm.Description; desc != h.Description {
		p.Description = &desc
	}
	if freq := fm.Frequency; freq != h.Frequency {
		p.Frequency = &freq
	}
	if color := fm.Color; color != h.Color {
		p.Color = &color
	}
	return p
}
