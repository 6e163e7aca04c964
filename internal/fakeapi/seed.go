package fakeapi

import (
	"fmt"

	"github.com/mmynk/rngenius/internal/models"
)

// Demo account credentials created by SeedDemo.
const (
	DemoEmail    = "demo@rngenius.dev"
	DemoPassword = "demo1234"
)

// SeedDemo creates a demo account, a friend and one shared generator.
func (s *Server) SeedDemo() (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	demo, err := s.addUserLocked(DemoEmail, "Demo", "User", DemoPassword)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to seed demo user: %w", err)
	}
	friend, err := s.addUserLocked("friend@rngenius.dev", "Friendly", "Friend", DemoPassword)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to seed friend: %w", err)
	}

	dinner := s.addGeneratorLocked(demo.ID, "Dinner", 3)
	for _, o := range []struct {
		name, description string
		categories        []string
	}{
		{"Pizza", "Margherita at Luigi's", []string{"italian", "takeaway"}},
		{"Pasta", "", []string{"italian"}},
		{"Sushi", "", []string{"japanese", "takeaway"}},
		{"Ramen", "", []string{"japanese"}},
		{"Burger", "", []string{"takeaway"}},
	} {
		s.addOptionLocked(dinner, o.name, o.description, o.categories)
	}
	s.newParticipant(dinner, friend.ID)
	dinner.participant(demo.ID).Notifications = true

	return demo, nil
}
