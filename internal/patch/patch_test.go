package patch

import (
	"reflect"
	"testing"

	"github.com/mmynk/rngenius/internal/models"
)

const (
	alice int64 = 1
	bob   int64 = 2
)

var (
	pizza = models.Option{ID: 10, Name: "Pizza", Categories: []string{"italian", "takeaway"}}
	pasta = models.Option{ID: 11, Name: "Pasta", Categories: []string{"italian"}}
	sushi = models.Option{ID: 12, Name: "Sushi", Categories: []string{"japanese"}}
)

func selections(opts ...models.Option) []models.Selection {
	out := make([]models.Selection, len(opts))
	for i, o := range opts {
		out[i] = models.Selection{ID: 100 + o.ID, Option: o}
	}
	return out
}

func fixture() []models.Generator {
	return []models.Generator{
		{
			ID:      1,
			Title:   "Dinner",
			User:    models.User{ID: alice},
			Options: []models.Option{pizza, pasta, sushi},
			Participants: []models.Participant{
				{ID: 50, User: models.User{ID: alice}, Selections: selections(pizza, pasta, sushi)},
				{ID: 51, User: models.User{ID: bob}, Selections: selections(pizza, pasta, sushi)},
			},
		},
		{
			ID:    2,
			Title: "Movies",
			User:  models.User{ID: bob},
		},
	}
}

func selection(t *testing.T, gens []models.Generator, gid, userID, optionID int64) models.Selection {
	t.Helper()
	for _, g := range gens {
		if g.ID != gid {
			continue
		}
		p, ok := g.ParticipantFor(userID)
		if !ok {
			t.Fatalf("no participant %d in generator %d", userID, gid)
		}
		s, ok := p.SelectionFor(optionID)
		if !ok {
			t.Fatalf("no selection for option %d", optionID)
		}
		return s
	}
	t.Fatalf("no generator %d", gid)
	return models.Selection{}
}

func TestToggleExcluded(t *testing.T) {
	in := fixture()
	orig := fixture()

	once := ToggleExcluded(in, alice, pizza.ID)
	if !selection(t, once, 1, alice, pizza.ID).Excluded {
		t.Error("pizza should be excluded for alice")
	}
	if selection(t, once, 1, bob, pizza.ID).Excluded {
		t.Error("bob's selection must not change")
	}
	if selection(t, once, 1, alice, pasta.ID).Excluded {
		t.Error("other options must not change")
	}
	if !reflect.DeepEqual(in, orig) {
		t.Error("input was mutated")
	}

	twice := ToggleExcluded(once, alice, pizza.ID)
	if !reflect.DeepEqual(twice, orig) {
		t.Error("toggling twice should restore the original")
	}
}

func TestToggleFavorised(t *testing.T) {
	out := ToggleFavorised(fixture(), bob, sushi.ID)
	if !selection(t, out, 1, bob, sushi.ID).Favorised {
		t.Error("sushi should be favorised for bob")
	}
	if selection(t, out, 1, bob, sushi.ID).Excluded {
		t.Error("favorise must not touch exclude")
	}
	if !reflect.DeepEqual(ToggleFavorised(out, bob, sushi.ID), fixture()) {
		t.Error("toggling twice should restore the original")
	}
}

func TestSetCategory(t *testing.T) {
	in := fixture()
	orig := fixture()

	out := SetCategoryExcluded(in, 1, bob, "italian", true)
	for _, opt := range []models.Option{pizza, pasta} {
		if !selection(t, out, 1, bob, opt.ID).Excluded {
			t.Errorf("bob's %s should be excluded", opt.Name)
		}
		if selection(t, out, 1, alice, opt.ID).Excluded {
			t.Errorf("alice's %s must not change", opt.Name)
		}
	}
	if selection(t, out, 1, bob, sushi.ID).Excluded {
		t.Error("sushi is not in the category")
	}
	if !reflect.DeepEqual(in, orig) {
		t.Error("input was mutated")
	}

	back := SetCategoryExcluded(out, 1, bob, "italian", false)
	if !reflect.DeepEqual(back, orig) {
		t.Error("setting the category back should restore the original")
	}

	fav := SetCategoryFavorised(in, 1, alice, "takeaway", true)
	if !selection(t, fav, 1, alice, pizza.ID).Favorised || selection(t, fav, 1, alice, pasta.ID).Favorised {
		t.Error("only takeaway options should be favorised")
	}

	if !reflect.DeepEqual(SetCategoryExcluded(in, 99, bob, "italian", true), orig) {
		t.Error("unknown generator should be a no-op")
	}
}

func TestRemoveOptionCategory(t *testing.T) {
	in := fixture()
	orig := fixture()

	out := RemoveOptionCategory(in, pizza.ID, "italian")
	g := out[0]
	if i := g.OptionIndex(pizza.ID); i < 0 || !reflect.DeepEqual(g.Options[i].Categories, []string{"takeaway"}) {
		t.Fatalf("pizza should keep only takeaway: %+v", g.Options)
	}
	if s := selection(t, out, 1, bob, pizza.ID); s.Option.HasCategory("italian") {
		t.Error("selection copies must drop the category too")
	}
	if !reflect.DeepEqual(in, orig) {
		t.Error("input was mutated")
	}

	out = RemoveOptionCategory(in, pasta.ID, "italian")
	if out[0].OptionIndex(pasta.ID) != -1 {
		t.Error("pasta lost its last category and should be removed")
	}
	p, _ := out[0].ParticipantFor(alice)
	if _, ok := p.SelectionFor(pasta.ID); ok {
		t.Error("selections of a removed option should be dropped")
	}
}

func TestRemoveOption(t *testing.T) {
	in := fixture()
	out := RemoveOption(in, sushi.ID)
	if out[0].OptionIndex(sushi.ID) != -1 || len(out[0].Options) != 2 {
		t.Fatalf("sushi not removed: %+v", out[0].Options)
	}
	for _, p := range out[0].Participants {
		if _, ok := p.SelectionFor(sushi.ID); ok {
			t.Errorf("participant %d kept a sushi selection", p.ID)
		}
	}
	if !reflect.DeepEqual(in, fixture()) {
		t.Error("input was mutated")
	}
}

func TestGeneratorPatches(t *testing.T) {
	tests := []struct {
		name  string
		apply func([]models.Generator) []models.Generator
		check func(t *testing.T, out []models.Generator)
	}{
		{
			name:  "remove generator",
			apply: func(g []models.Generator) []models.Generator { return RemoveGenerator(g, 1) },
			check: func(t *testing.T, out []models.Generator) {
				if len(out) != 1 || out[0].ID != 2 {
					t.Errorf("unexpected generators %+v", out)
				}
			},
		},
		{
			name:  "remove participant",
			apply: func(g []models.Generator) []models.Generator { return RemoveParticipant(g, 1, bob) },
			check: func(t *testing.T, out []models.Generator) {
				if _, ok := out[0].ParticipantFor(bob); ok || len(out[0].Participants) != 1 {
					t.Errorf("bob still present: %+v", out[0].Participants)
				}
			},
		},
		{
			name:  "update generator",
			apply: func(g []models.Generator) []models.Generator { return UpdateGenerator(g, 2, "Films", 7) },
			check: func(t *testing.T, out []models.Generator) {
				if out[1].Title != "Films" || out[1].IconNumber != 7 || out[0].Title != "Dinner" {
					t.Errorf("unexpected generators %+v", out)
				}
			},
		},
		{
			name:  "toggle notifications",
			apply: func(g []models.Generator) []models.Generator { return ToggleNotifications(g, 1, alice) },
			check: func(t *testing.T, out []models.Generator) {
				a, _ := out[0].ParticipantFor(alice)
				b, _ := out[0].ParticipantFor(bob)
				if !a.Notifications || b.Notifications {
					t.Errorf("alice=%v bob=%v", a.Notifications, b.Notifications)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := fixture()
			tt.check(t, tt.apply(in))
			if !reflect.DeepEqual(in, fixture()) {
				t.Error("input was mutated")
			}
		})
	}
}
