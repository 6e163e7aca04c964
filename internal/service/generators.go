package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/mmynk/rngenius/internal/api"
	"github.com/mmynk/rngenius/internal/auth"
	"github.com/mmynk/rngenius/internal/models"
	"github.com/mmynk/rngenius/internal/patch"
)

const (
	maxTitleLength      = 20
	maxOptionNameLength = 20
	maxEmailLength      = 50
)

// Action names, used as pending keys and in logs.
const (
	ActionAddGenerator        = "addGenerator"
	ActionUpdateGenerator     = "updateGenerator"
	ActionDeleteGenerator     = "deleteGenerator"
	ActionLeaveGenerator      = "leaveGenerator"
	ActionAddOption           = "addOption"
	ActionDeleteOption        = "deleteOption"
	ActionPurgeOption         = "purgeOption"
	ActionAddParticipant      = "addParticipant"
	ActionRemoveParticipant   = "removeParticipant"
	ActionExclude             = "exclude"
	ActionFavorise            = "favorise"
	ActionExcludeCategory     = "excludeCategory"
	ActionFavoriseCategory    = "favoriseCategory"
	ActionToggleNotifications = "toggleNotifications"
	ActionGenerate            = "generate"
)

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return fieldError("title", "Title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return fieldError("title", "Title must be less than 20 characters")
	}
	return nil
}

// OptionInput is the add option form.
type OptionInput struct {
	Name        string
	Description string
	Categories  []string
}

// Validate checks the form the way the option screen does.
func (in OptionInput) Validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return fieldError("name", "Name is required")
	case utf8.RuneCountInString(in.Name) > maxOptionNameLength:
		return fieldError("name", "Name is too long max 20 characters")
	case len(in.categories()) == 0:
		return fieldError("categories", "At least one category is required")
	}
	return nil
}

func (in OptionInput) categories() []string {
	var out []string
	for _, c := range in.Categories {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func validateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return fieldError("email", "Email is required")
	}
	if utf8.RuneCountInString(email) > maxEmailLength {
		return fieldError("email", "Email must be less than 50 characters")
	}
	return nil
}

// AddGenerator creates a generator owned by the signed-in user.
func (s *Service) AddGenerator(ctx context.Context, title string, iconNumber int) error {
	if err := validateTitle(title); err != nil {
		return err
	}
	req := api.GeneratorRequest{Title: title, IconNumber: iconNumber}
	return s.mutate(ctx, mutation{
		action: ActionAddGenerator,
		call: func(ctx context.Context, token string) error {
			return s.client.AddGenerator(ctx, token, req)
		},
	})
}

// UpdateGenerator changes a generator's title and icon.
func (s *Service) UpdateGenerator(ctx context.Context, generatorID int64, title string, iconNumber int) error {
	if err := validateTitle(title); err != nil {
		return err
	}
	req := api.GeneratorRequest{Title: title, IconNumber: iconNumber}
	return s.mutate(ctx, mutation{
		action: ActionUpdateGenerator,
		id:     generatorID,
		call: func(ctx context.Context, token string) error {
			return s.client.UpdateGenerator(ctx, token, generatorID, req)
		},
		patch: func(gens []models.Generator) []models.Generator {
			return patch.UpdateGenerator(gens, generatorID, title, iconNumber)
		},
	})
}

// DeleteGenerator deletes a generator the user owns.
func (s *Service) DeleteGenerator(ctx context.Context, generatorID int64) error {
	return s.mutate(ctx, mutation{
		action: ActionDeleteGenerator,
		id:     generatorID,
		call: func(ctx context.Context, token string) error {
			return s.client.DeleteGenerator(ctx, token, generatorID)
		},
		patch: func(gens []models.Generator) []models.Generator {
			return patch.RemoveGenerator(gens, generatorID)
		},
	})
}

// LeaveGenerator removes the user from a generator they do not own.
func (s *Service) LeaveGenerator(ctx context.Context, generatorID int64) error {
	return s.mutate(ctx, mutation{
		action: ActionLeaveGenerator,
		id:     generatorID,
		call: func(ctx context.Context, token string) error {
			return s.client.LeaveGenerator(ctx, token, generatorID)
		},
		patch: func(gens []models.Generator) []models.Generator {
			return patch.RemoveGenerator(gens, generatorID)
		},
	})
}

// AddOption adds an option to a generator.
func (s *Service) AddOption(ctx context.Context, generatorID int64, in OptionInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	req := api.OptionRequest{
		Name:        strings.TrimSpace(in.Name),
		Categories:  in.categories(),
		Description: in.Description,
	}
	return s.mutate(ctx, mutation{
		action: ActionAddOption,
		id:     generatorID,
		call: func(ctx context.Context, token string) error {
			return s.client.AddOption(ctx, token, generatorID, req)
		},
	})
}

// DeleteOption removes an option from one category. The backend deletes the
// option once it has no category left.
func (s *Service) DeleteOption(ctx context.Context, optionID int64, category string) error {
	return s.mutate(ctx, mutation{
		action: ActionDeleteOption,
		id:     optionID,
		call: func(ctx context.Context, token string) error {
			return s.client.DeleteOption(ctx, token, optionID, category)
		},
		patch: func(gens []models.Generator) []models.Generator {
			return patch.RemoveOptionCategory(gens, optionID, category)
		},
	})
}

// PurgeOption deletes an option from every category.
func (s *Service) PurgeOption(ctx context.Context, optionID int64) error {
	return s.mutate(ctx, mutation{
		action: ActionPurgeOption,
		id:     optionID,
		call: func(ctx context.Context, token string) error {
			return s.client.PurgeOption(ctx, token, optionID)
		},
		patch: func(gens []models.Generator) []models.Generator {
			return patch.RemoveOption(gens, optionID)
		},
	})
}

// AddParticipant invites a user by email.
func (s *Service) AddParticipant(ctx context.Context, generatorID int64, email string) error {
	if err := validateEmail(email); err != nil {
		return err
	}
	email = strings.TrimSpace(email)
	return s.mutate(ctx, mutation{
		action: ActionAddParticipant,
		id:     generatorID,
		call: func(ctx context.Context, token string) error {
			return s.client.AddParticipant(ctx, token, generatorID, email)
		},
	})
}

// RemoveParticipant removes the participant of userID from a generator.
func (s *Service) RemoveParticipant(ctx context.Context, generatorID, userID int64) error {
	return s.mutate(ctx, mutation{
		action: ActionRemoveParticipant,
		id:     generatorID,
		call: func(ctx context.Context, token string) error {
			return s.client.RemoveParticipant(ctx, token, generatorID, userID)
		},
		patch: func(gens []models.Generator) []models.Generator {
			return patch.RemoveParticipant(gens, generatorID, userID)
		},
	})
}

// Exclude toggles the user's exclude flag on an option.
func (s *Service) Exclude(ctx context.Context, optionID int64) error {
	userID, err := s.userID(ctx)
	if err != nil {
		return err
	}
	return s.mutate(ctx, mutation{
		action: ActionExclude,
		id:     optionID,
		call: func(ctx context.Context, token string) error {
			return s.client.Exclude(ctx, token, optionID)
		},
		patch: func(gens []models.Generator) []models.Generator {
			return patch.ToggleExcluded(gens, userID, optionID)
		},
	})
}

// Favorise toggles the user's favorite flag on an option.
func (s *Service) Favorise(ctx context.Context, optionID int64) error {
	userID, err := s.userID(ctx)
	if err != nil {
		return err
	}
	return s.mutate(ctx, mutation{
		action: ActionFavorise,
		id:     optionID,
		call: func(ctx context.Context, token string) error {
			return s.client.Favorise(ctx, token, optionID)
		},
		patch: func(gens []models.Generator) []models.Generator {
			return patch.ToggleFavorised(gens, userID, optionID)
		},
	})
}

// participant returns the cached generator and the user's participant entry.
func (s *Service) participant(ctx context.Context, generatorID int64) (models.Generator, models.Participant, int64, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return models.Generator{}, models.Participant{}, 0, err
	}
	g, ok := s.cache.Generator(generatorID)
	if !ok {
		return models.Generator{}, models.Participant{}, 0, ErrGeneratorNotFound
	}
	p, _ := g.ParticipantFor(userID)
	return g, p, userID, nil
}

// ExcludeCategory excludes every option of a category for the user, or
// includes them all again when they already are. It returns the new flag.
func (s *Service) ExcludeCategory(ctx context.Context, generatorID int64, category string) (bool, error) {
	_, p, userID, err := s.participant(ctx, generatorID)
	if err != nil {
		return false, err
	}
	target := !p.AllExcluded(category)
	err = s.mutate(ctx, mutation{
		action: ActionExcludeCategory,
		id:     generatorID,
		call: func(ctx context.Context, token string) error {
			return s.client.ExcludeCategory(ctx, token, generatorID, category)
		},
		patch: func(gens []models.Generator) []models.Generator {
			return patch.SetCategoryExcluded(gens, generatorID, userID, category, target)
		},
	})
	return target, err
}

// FavoriseCategory favorises every option of a category for the user, or
// clears them all when they already are. It returns the new flag.
func (s *Service) FavoriseCategory(ctx context.Context, generatorID int64, category string) (bool, error) {
	_, p, userID, err := s.participant(ctx, generatorID)
	if err != nil {
		return false, err
	}
	target := !p.AllFavorised(category)
	err = s.mutate(ctx, mutation{
		action: ActionFavoriseCategory,
		id:     generatorID,
		call: func(ctx context.Context, token string) error {
			return s.client.FavoriseCategory(ctx, token, generatorID, category)
		},
		patch: func(gens []models.Generator) []models.Generator {
			return patch.SetCategoryFavorised(gens, generatorID, userID, category, target)
		},
	})
	return target, err
}

// ToggleNotifications flips whether the user is notified of results.
func (s *Service) ToggleNotifications(ctx context.Context, generatorID int64) error {
	userID, err := s.userID(ctx)
	if err != nil {
		return err
	}
	return s.mutate(ctx, mutation{
		action: ActionToggleNotifications,
		id:     generatorID,
		call: func(ctx context.Context, token string) error {
			return s.client.ToggleNotifications(ctx, token, generatorID)
		},
		patch: func(gens []models.Generator) []models.Generator {
			return patch.ToggleNotifications(gens, generatorID, userID)
		},
	})
}

// Spin is a generated result ready to be played on the roulette.
type Spin struct {
	Generator models.Generator
	Option    models.Option
	// Target is the option's index in Generator.Options.
	Target int
	// Notifications reports whether the user follows the generator's results.
	Notifications bool
}

// Generate asks the backend to pick an option. When the user follows the
// generator's results, the cache starts treating new results as checked
// until FinishSpin is called.
func (s *Service) Generate(ctx context.Context, generatorID int64) (*Spin, error) {
	g, p, _, err := s.participant(ctx, generatorID)
	if err != nil {
		return nil, err
	}
	if !g.HasEligibleOptions() {
		return nil, ErrNoEligibleOptions
	}

	done, ok := s.pending.begin(pendingKey(ActionGenerate, generatorID))
	if !ok {
		return nil, ErrActionPending
	}
	defer done()

	opt, err := auth.Do(ctx, s.caller, func(ctx context.Context, token string) (*models.Option, error) {
		return s.client.Generate(ctx, token, generatorID)
	})
	if err != nil {
		logFailure(ActionGenerate, generatorID, err)
		return nil, fmt.Errorf("failed to generate: %w", err)
	}

	target := g.OptionIndex(opt.ID)
	if target < 0 {
		slog.Warn("Generated option is not in the cached generator", "generator_id", generatorID, "option_id", opt.ID)
		s.cache.Refresh(ctx)
		return nil, ErrOptionNotFound
	}

	if p.Notifications {
		if err := s.cache.SetChecking(ctx, true); err != nil {
			slog.Error("Failed to mark results checked", "error", err)
		}
	}
	s.cache.Refresh(ctx)

	slog.Info("Option generated", "generator_id", generatorID, "option", opt.Name)
	return &Spin{
		Generator:     g,
		Option:        g.Options[target],
		Target:        target,
		Notifications: p.Notifications,
	}, nil
}

// FinishSpin ends the spin started by Generate. Results retrieved afterwards
// count as unread again.
func (s *Service) FinishSpin(ctx context.Context) error {
	if err := s.cache.SetChecking(ctx, false); err != nil {
		return fmt.Errorf("failed to stop checking results: %w", err)
	}
	return nil
}
