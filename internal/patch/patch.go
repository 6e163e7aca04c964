// Package patch applies the local edits that mirror a successful mutation
// until the next fetch replaces the snapshot. Every function is pure: it
// returns a new slice, copies only the path it touches and leaves its input
// unchanged.
package patch

import (
	"slices"

	"github.com/mmynk/rngenius/internal/models"
)

// mapGenerators copies gens, replacing each generator for which fn reports
// true with its returned value.
func mapGenerators(gens []models.Generator, fn func(models.Generator) (models.Generator, bool)) []models.Generator {
	out := make([]models.Generator, len(gens))
	for i, g := range gens {
		if patched, ok := fn(g); ok {
			out[i] = patched
		} else {
			out[i] = g
		}
	}
	return out
}

// mapParticipants copies g.Participants, replacing each participant of
// userID with fn's result.
func mapParticipants(g models.Generator, userID int64, fn func(models.Participant) models.Participant) models.Generator {
	participants := make([]models.Participant, len(g.Participants))
	for i, p := range g.Participants {
		if p.User.ID == userID {
			participants[i] = fn(p)
		} else {
			participants[i] = p
		}
	}
	g.Participants = participants
	return g
}

// mapSelections copies p.Selections, replacing each one for which match
// reports true with fn's result.
func mapSelections(p models.Participant, match func(models.Selection) bool, fn func(models.Selection) models.Selection) models.Participant {
	selections := make([]models.Selection, len(p.Selections))
	for i, s := range p.Selections {
		if match(s) {
			selections[i] = fn(s)
		} else {
			selections[i] = s
		}
	}
	p.Selections = selections
	return p
}

func hasOption(g models.Generator, optionID int64) bool {
	return g.OptionIndex(optionID) >= 0
}

func toggleSelection(gens []models.Generator, userID, optionID int64, toggle func(models.Selection) models.Selection) []models.Generator {
	return mapGenerators(gens, func(g models.Generator) (models.Generator, bool) {
		if !hasOption(g, optionID) {
			return g, false
		}
		return mapParticipants(g, userID, func(p models.Participant) models.Participant {
			return mapSelections(p,
				func(s models.Selection) bool { return s.Option.ID == optionID },
				toggle,
			)
		}), true
	})
}

// ToggleExcluded flips the acting user's exclude flag on an option.
func ToggleExcluded(gens []models.Generator, userID, optionID int64) []models.Generator {
	return toggleSelection(gens, userID, optionID, func(s models.Selection) models.Selection {
		s.Excluded = !s.Excluded
		return s
	})
}

// ToggleFavorised flips the acting user's favorite flag on an option.
func ToggleFavorised(gens []models.Generator, userID, optionID int64) []models.Generator {
	return toggleSelection(gens, userID, optionID, func(s models.Selection) models.Selection {
		s.Favorised = !s.Favorised
		return s
	})
}

func setCategory(gens []models.Generator, generatorID, userID int64, category string, set func(models.Selection) models.Selection) []models.Generator {
	return mapGenerators(gens, func(g models.Generator) (models.Generator, bool) {
		if g.ID != generatorID {
			return g, false
		}
		return mapParticipants(g, userID, func(p models.Participant) models.Participant {
			return mapSelections(p,
				func(s models.Selection) bool { return s.Option.HasCategory(category) },
				set,
			)
		}), true
	})
}

// SetCategoryExcluded sets the acting user's exclude flag to target on every
// selection in the category.
func SetCategoryExcluded(gens []models.Generator, generatorID, userID int64, category string, target bool) []models.Generator {
	return setCategory(gens, generatorID, userID, category, func(s models.Selection) models.Selection {
		s.Excluded = target
		return s
	})
}

// SetCategoryFavorised sets the acting user's favorite flag to target on
// every selection in the category.
func SetCategoryFavorised(gens []models.Generator, generatorID, userID int64, category string, target bool) []models.Generator {
	return setCategory(gens, generatorID, userID, category, func(s models.Selection) models.Selection {
		s.Favorised = target
		return s
	})
}

func withoutCategory(o models.Option, category string) models.Option {
	o.Categories = slices.DeleteFunc(slices.Clone(o.Categories), func(c string) bool { return c == category })
	return o
}

// RemoveOptionCategory drops a category from an option, in the option list
// and in every selection's copy of it. An option left without categories is
// removed entirely.
func RemoveOptionCategory(gens []models.Generator, optionID int64, category string) []models.Generator {
	return mapGenerators(gens, func(g models.Generator) (models.Generator, bool) {
		i := g.OptionIndex(optionID)
		if i < 0 {
			return g, false
		}
		if patched := withoutCategory(g.Options[i], category); len(patched.Categories) == 0 {
			return removeOption(g, optionID), true
		}

		g.Options = slices.Clone(g.Options)
		g.Options[i] = withoutCategory(g.Options[i], category)

		participants := make([]models.Participant, len(g.Participants))
		for j, p := range g.Participants {
			participants[j] = mapSelections(p,
				func(s models.Selection) bool { return s.Option.ID == optionID },
				func(s models.Selection) models.Selection {
					s.Option = withoutCategory(s.Option, category)
					return s
				},
			)
		}
		g.Participants = participants
		return g, true
	})
}

func removeOption(g models.Generator, optionID int64) models.Generator {
	g.Options = slices.DeleteFunc(slices.Clone(g.Options), func(o models.Option) bool { return o.ID == optionID })

	participants := make([]models.Participant, len(g.Participants))
	for i, p := range g.Participants {
		p.Selections = slices.DeleteFunc(slices.Clone(p.Selections), func(s models.Selection) bool { return s.Option.ID == optionID })
		participants[i] = p
	}
	g.Participants = participants
	return g
}

// RemoveOption deletes an option and every selection of it.
func RemoveOption(gens []models.Generator, optionID int64) []models.Generator {
	return mapGenerators(gens, func(g models.Generator) (models.Generator, bool) {
		if !hasOption(g, optionID) {
			return g, false
		}
		return removeOption(g, optionID), true
	})
}

// RemoveGenerator drops a generator, as after deleting or leaving it.
func RemoveGenerator(gens []models.Generator, generatorID int64) []models.Generator {
	return slices.DeleteFunc(slices.Clone(gens), func(g models.Generator) bool { return g.ID == generatorID })
}

// RemoveParticipant drops the participant of userID from a generator.
func RemoveParticipant(gens []models.Generator, generatorID, userID int64) []models.Generator {
	return mapGenerators(gens, func(g models.Generator) (models.Generator, bool) {
		if g.ID != generatorID {
			return g, false
		}
		g.Participants = slices.DeleteFunc(slices.Clone(g.Participants), func(p models.Participant) bool { return p.User.ID == userID })
		return g, true
	})
}

// UpdateGenerator sets a generator's title and icon.
func UpdateGenerator(gens []models.Generator, generatorID int64, title string, iconNumber int) []models.Generator {
	return mapGenerators(gens, func(g models.Generator) (models.Generator, bool) {
		if g.ID != generatorID {
			return g, false
		}
		g.Title = title
		g.IconNumber = iconNumber
		return g, true
	})
}

// ToggleNotifications flips the acting user's notification flag.
func ToggleNotifications(gens []models.Generator, generatorID, userID int64) []models.Generator {
	return mapGenerators(gens, func(g models.Generator) (models.Generator, bool) {
		if g.ID != generatorID {
			return g, false
		}
		return mapParticipants(g, userID, func(p models.Participant) models.Participant {
			p.Notifications = !p.Notifications
			return p
		}), true
	})
}
