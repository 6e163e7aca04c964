package models

import (
	"slices"
	"sort"
)

// Generator represents a shared decision topic.
type Generator struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	IconNumber int    `json:"iconNumber"`

	// User is the owner. Only the owner may edit or delete the generator.
	User User `json:"user"`

	Options      []Option      `json:"options"`
	Participants []Participant `json:"participants"`
}

// Option is a single choice within a generator.
type Option struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Categories  []string `json:"categories"`
}

// HasCategory reports whether the option carries the given category label.
func (o Option) HasCategory(category string) bool {
	return slices.Contains(o.Categories, category)
}

// Participant links a user to a generator. Selections hold one entry per
// option visible to the generator.
type Participant struct {
	ID            int64       `json:"id"`
	User          User        `json:"user"`
	Notifications bool        `json:"notifications"`
	Selections    []Selection `json:"selections"`
}

// Selection is the per-participant, per-option state.
type Selection struct {
	ID        int64  `json:"id"`
	Option    Option `json:"option"`
	Excluded  bool   `json:"excluded"`
	Favorised bool   `json:"favorised"`
}

// Category groups the options of a generator that carry the same label.
type Category struct {
	Name    string
	Options []Option
}

// Categories returns the de-duplicated union of the options' labels, sorted
// by name, each paired with the options carrying it.
func (g Generator) Categories() []Category {
	byName := make(map[string]*Category)
	for _, opt := range g.Options {
		for _, name := range opt.Categories {
			c, ok := byName[name]
			if !ok {
				c = &Category{Name: name}
				byName[name] = c
			}
			c.Options = append(c.Options, opt)
		}
	}

	categories := make([]Category, 0, len(byName))
	for _, c := range byName {
		categories = append(categories, *c)
	}
	sort.Slice(categories, func(i, j int) bool {
		return categories[i].Name < categories[j].Name
	})
	return categories
}

// OptionIndex returns the position of the option in g.Options, or -1.
func (g Generator) OptionIndex(optionID int64) int {
	return slices.IndexFunc(g.Options, func(o Option) bool { return o.ID == optionID })
}

// ParticipantFor returns the participant entry of the given user.
func (g Generator) ParticipantFor(userID int64) (Participant, bool) {
	for _, p := range g.Participants {
		if p.User.ID == userID {
			return p, true
		}
	}
	return Participant{}, false
}

// HasEligibleOptions reports whether at least one option is excluded by
// nobody. The backend cannot generate anything otherwise.
func (g Generator) HasEligibleOptions() bool {
	for _, opt := range g.Options {
		excluded := false
		for _, p := range g.Participants {
			if sel, ok := p.SelectionFor(opt.ID); ok && sel.Excluded {
				excluded = true
				break
			}
		}
		if !excluded {
			return true
		}
	}
	return false
}

// Mark is another participant's non-default state on one option.
type Mark struct {
	ParticipantID int64
	Name          string
	Excluded      bool
	Favorised     bool
}

// Marks lists the participants other than exceptUserID that excluded or
// favorised the option.
func (g Generator) Marks(optionID, exceptUserID int64) []Mark {
	var marks []Mark
	for _, p := range g.Participants {
		if p.User.ID == exceptUserID {
			continue
		}
		sel, ok := p.SelectionFor(optionID)
		if !ok || (!sel.Excluded && !sel.Favorised) {
			continue
		}
		marks = append(marks, Mark{
			ParticipantID: p.ID,
			Name:          p.User.FullName(),
			Excluded:      sel.Excluded,
			Favorised:     sel.Favorised,
		})
	}
	return marks
}

// SelectionFor returns the participant's selection for the option.
func (p Participant) SelectionFor(optionID int64) (Selection, bool) {
	for _, s := range p.Selections {
		if s.Option.ID == optionID {
			return s, true
		}
	}
	return Selection{}, false
}

// AllExcluded reports whether every selection in the category is excluded.
// A category with no selections is vacuously excluded.
func (p Participant) AllExcluded(category string) bool {
	for _, s := range p.Selections {
		if s.Option.HasCategory(category) && !s.Excluded {
			return false
		}
	}
	return true
}

// AllFavorised reports whether every selection in the category is favorised.
func (p Participant) AllFavorised(category string) bool {
	for _, s := range p.Selections {
		if s.Option.HasCategory(category) && !s.Favorised {
			return false
		}
	}
	return true
}
