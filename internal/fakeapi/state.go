package fakeapi

import (
	"slices"
	"sort"
	"time"

	"github.com/mmynk/rngenius/internal/models"
)

type generatorRecord struct {
	ID           int64
	Title        string
	IconNumber   int
	OwnerID      int64
	Options      []*optionRecord
	Participants []*participantRecord
}

type optionRecord struct {
	ID          int64
	Name        string
	Description string
	Categories  []string
}

type participantRecord struct {
	ID            int64
	UserID        int64
	Notifications bool
	Selections    map[int64]*selectionRecord // by option id
}

type selectionRecord struct {
	ID        int64
	Excluded  bool
	Favorised bool
}

type resultRecord struct {
	ID          int64
	At          time.Time
	Option      models.Option
	UserID      int64
	GeneratorID int64
}

func (o *optionRecord) model() models.Option {
	return models.Option{
		ID:          o.ID,
		Name:        o.Name,
		Description: o.Description,
		Categories:  slices.Clone(o.Categories),
	}
}

func (g *generatorRecord) participant(userID int64) *participantRecord {
	for _, p := range g.Participants {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

func (g *generatorRecord) option(optionID int64) *optionRecord {
	for _, o := range g.Options {
		if o.ID == optionID {
			return o
		}
	}
	return nil
}

func (s *Server) newID() int64 {
	s.nextID++
	return s.nextID
}

func (s *Server) newParticipant(g *generatorRecord, userID int64) *participantRecord {
	p := &participantRecord{
		ID:         s.newID(),
		UserID:     userID,
		Selections: make(map[int64]*selectionRecord),
	}
	for _, o := range g.Options {
		p.Selections[o.ID] = &selectionRecord{ID: s.newID()}
	}
	g.Participants = append(g.Participants, p)
	return p
}

func (s *Server) addOptionLocked(g *generatorRecord, name, description string, categories []string) *optionRecord {
	o := &optionRecord{
		ID:          s.newID(),
		Name:        name,
		Description: description,
		Categories:  slices.Compact(slices.Sorted(slices.Values(categories))),
	}
	g.Options = append(g.Options, o)
	for _, p := range g.Participants {
		p.Selections[o.ID] = &selectionRecord{ID: s.newID()}
	}
	return o
}

func (s *Server) removeOptionLocked(g *generatorRecord, optionID int64) {
	g.Options = slices.DeleteFunc(g.Options, func(o *optionRecord) bool { return o.ID == optionID })
	for _, p := range g.Participants {
		delete(p.Selections, optionID)
	}
}

// optionOwner finds the generator holding an option.
func (s *Server) optionOwner(optionID int64) (*generatorRecord, *optionRecord) {
	for _, g := range s.generators {
		if o := g.option(optionID); o != nil {
			return g, o
		}
	}
	return nil, nil
}

func (s *Server) userModel(id int64) models.User {
	if u, ok := s.users[id]; ok {
		return u.User
	}
	return models.User{ID: id}
}

func (s *Server) generatorModel(g *generatorRecord) models.Generator {
	out := models.Generator{
		ID:           g.ID,
		Title:        g.Title,
		IconNumber:   g.IconNumber,
		User:         s.userModel(g.OwnerID),
		Options:      make([]models.Option, 0, len(g.Options)),
		Participants: make([]models.Participant, 0, len(g.Participants)),
	}
	for _, o := range g.Options {
		out.Options = append(out.Options, o.model())
	}
	for _, p := range g.Participants {
		mp := models.Participant{
			ID:            p.ID,
			User:          s.userModel(p.UserID),
			Notifications: p.Notifications,
			Selections:    make([]models.Selection, 0, len(g.Options)),
		}
		for _, o := range g.Options {
			sel, ok := p.Selections[o.ID]
			if !ok {
				continue
			}
			mp.Selections = append(mp.Selections, models.Selection{
				ID:        sel.ID,
				Option:    o.model(),
				Excluded:  sel.Excluded,
				Favorised: sel.Favorised,
			})
		}
		out.Participants = append(out.Participants, mp)
	}
	return out
}

// Generators returns the generators the user participates in, ordered by id.
func (s *Server) Generators(userID int64) []models.Generator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generatorsFor(userID)
}

func (s *Server) generatorsFor(userID int64) []models.Generator {
	var records []*generatorRecord
	for _, g := range s.generators {
		if g.participant(userID) != nil {
			records = append(records, g)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	out := make([]models.Generator, 0, len(records))
	for _, g := range records {
		out = append(out, s.generatorModel(g))
	}
	return out
}

// resultsFor returns results of generators where the user has notifications
// on, oldest first.
func (s *Server) resultsFor(userID int64) []models.Result {
	out := make([]models.Result, 0)
	for _, r := range s.results {
		g, ok := s.generators[r.GeneratorID]
		if !ok {
			continue
		}
		p := g.participant(userID)
		if p == nil || !p.Notifications {
			continue
		}
		out = append(out, models.Result{
			ID:          r.ID,
			DateTime:    models.Timestamp{Time: r.At},
			Option:      r.Option,
			User:        s.userModel(r.UserID),
			GeneratorID: r.GeneratorID,
		})
	}
	return out
}

// pickOption draws among the options no participant excluded. Each
// favorite mark adds one to an option's weight.
func (s *Server) pickOption(g *generatorRecord) *optionRecord {
	var eligible []*optionRecord
	var weights []int
	total := 0
	for _, o := range g.Options {
		weight := 1
		excluded := false
		for _, p := range g.Participants {
			sel, ok := p.Selections[o.ID]
			if !ok {
				continue
			}
			if sel.Excluded {
				excluded = true
				break
			}
			if sel.Favorised {
				weight++
			}
		}
		if excluded {
			continue
		}
		eligible = append(eligible, o)
		weights = append(weights, weight)
		total += weight
	}
	if len(eligible) == 0 {
		return nil
	}

	n := s.rand.IntN(total)
	for i, w := range weights {
		if n < w {
			return eligible[i]
		}
		n -= w
	}
	return eligible[len(eligible)-1]
}
