package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mmynk/rngenius/internal/models"
)

// GeneratorRequest is the body of POST /generator/add and PUT /generator/update.
type GeneratorRequest struct {
	Title      string `json:"title"`
	IconNumber int    `json:"iconNumber"`
}

// OptionRequest is the body of PUT /generator/addOption.
type OptionRequest struct {
	Name        string   `json:"name"`
	Categories  []string `json:"categories"`
	Description string   `json:"description"`
}

func idPath(prefix string, id int64) string {
	return fmt.Sprintf("%s/%d", prefix, id)
}

func categoryQuery(category string) url.Values {
	return url.Values{"category": {category}}
}

// MyGenerators lists the generators the user owns or participates in.
func (c *Client) MyGenerators(ctx context.Context, token string) ([]models.Generator, error) {
	var gens []models.Generator
	err := c.do(ctx, request{
		endpoint: "myGenerators",
		method:   http.MethodGet,
		path:     "/generator/myGenerators",
		token:    token,
		out:      &gens,
	})
	if err != nil {
		return nil, err
	}
	return gens, nil
}

// MyResults lists results from generators the user has notifications on for.
func (c *Client) MyResults(ctx context.Context, token string) ([]models.Result, error) {
	var results []models.Result
	err := c.do(ctx, request{
		endpoint: "myResults",
		method:   http.MethodGet,
		path:     "/generator/myResults",
		token:    token,
		out:      &results,
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Generate asks the backend to pick an option. The backend records a result.
func (c *Client) Generate(ctx context.Context, token string, generatorID int64) (*models.Option, error) {
	var option models.Option
	err := c.do(ctx, request{
		endpoint: "generate",
		method:   http.MethodGet,
		path:     idPath("/generator/generate", generatorID),
		token:    token,
		out:      &option,
	})
	if err != nil {
		return nil, err
	}
	return &option, nil
}

// AddGenerator creates a generator owned by the user.
func (c *Client) AddGenerator(ctx context.Context, token string, req GeneratorRequest) error {
	return c.do(ctx, request{
		endpoint: "add",
		method:   http.MethodPost,
		path:     "/generator/add",
		token:    token,
		body:     req,
	})
}

// UpdateGenerator changes a generator's title and icon.
func (c *Client) UpdateGenerator(ctx context.Context, token string, generatorID int64, req GeneratorRequest) error {
	return c.do(ctx, request{
		endpoint: "update",
		method:   http.MethodPut,
		path:     idPath("/generator/update", generatorID),
		token:    token,
		body:     req,
	})
}

// DeleteGenerator deletes a generator the user owns.
func (c *Client) DeleteGenerator(ctx context.Context, token string, generatorID int64) error {
	return c.do(ctx, request{
		endpoint: "delete",
		method:   http.MethodDelete,
		path:     idPath("/generator/delete", generatorID),
		token:    token,
	})
}

// AddOption adds an option to a generator.
func (c *Client) AddOption(ctx context.Context, token string, generatorID int64, req OptionRequest) error {
	return c.do(ctx, request{
		endpoint: "addOption",
		method:   http.MethodPut,
		path:     idPath("/generator/addOption", generatorID),
		token:    token,
		body:     req,
	})
}

// DeleteOption removes a category from an option. The backend deletes the
// option once it has no categories left.
func (c *Client) DeleteOption(ctx context.Context, token string, optionID int64, category string) error {
	return c.do(ctx, request{
		endpoint: "deleteOption",
		method:   http.MethodPut,
		path:     idPath("/generator/deleteOption", optionID),
		query:    categoryQuery(category),
		token:    token,
	})
}

// PurgeOption deletes an option from every category.
func (c *Client) PurgeOption(ctx context.Context, token string, optionID int64) error {
	return c.do(ctx, request{
		endpoint: "purgeOption",
		method:   http.MethodDelete,
		path:     idPath("/generator/purgeOption", optionID),
		token:    token,
	})
}

// AddParticipant invites the user with the given email.
func (c *Client) AddParticipant(ctx context.Context, token string, generatorID int64, email string) error {
	return c.do(ctx, request{
		endpoint: "addParticipant",
		method:   http.MethodPut,
		path:     idPath("/generator/addParticipant", generatorID),
		query:    url.Values{"email": {email}},
		token:    token,
	})
}

// RemoveParticipant removes the participant whose user id is userID.
func (c *Client) RemoveParticipant(ctx context.Context, token string, generatorID, userID int64) error {
	return c.do(ctx, request{
		endpoint: "removeParticipant",
		method:   http.MethodPut,
		path:     idPath("/generator/removeParticipant", generatorID),
		query:    url.Values{"participantId": {strconv.FormatInt(userID, 10)}},
		token:    token,
	})
}

// LeaveGenerator removes the user from a generator they participate in.
func (c *Client) LeaveGenerator(ctx context.Context, token string, generatorID int64) error {
	return c.do(ctx, request{
		endpoint: "leave",
		method:   http.MethodDelete,
		path:     idPath("/generator/leave", generatorID),
		token:    token,
	})
}

// Exclude toggles the user's exclude mark on an option.
func (c *Client) Exclude(ctx context.Context, token string, optionID int64) error {
	return c.do(ctx, request{
		endpoint: "exclude",
		method:   http.MethodPut,
		path:     idPath("/generator/exclude", optionID),
		token:    token,
	})
}

// ExcludeCategory toggles exclude on every option in a category.
func (c *Client) ExcludeCategory(ctx context.Context, token string, generatorID int64, category string) error {
	return c.do(ctx, request{
		endpoint: "excludeCategory",
		method:   http.MethodPut,
		path:     idPath("/generator/excludeCategory", generatorID),
		query:    categoryQuery(category),
		token:    token,
	})
}

// Favorise toggles the user's favorite mark on an option.
func (c *Client) Favorise(ctx context.Context, token string, optionID int64) error {
	return c.do(ctx, request{
		endpoint: "favorise",
		method:   http.MethodPut,
		path:     idPath("/generator/favorise", optionID),
		token:    token,
	})
}

// FavoriseCategory toggles favorite on every option in a category.
func (c *Client) FavoriseCategory(ctx context.Context, token string, generatorID int64, category string) error {
	return c.do(ctx, request{
		endpoint: "favoriseCategory",
		method:   http.MethodPut,
		path:     idPath("/generator/favoriseCategory", generatorID),
		query:    categoryQuery(category),
		token:    token,
	})
}

// ToggleNotifications flips the user's result notifications for a generator.
func (c *Client) ToggleNotifications(ctx context.Context, token string, generatorID int64) error {
	return c.do(ctx, request{
		endpoint: "toggleNotifications",
		method:   http.MethodPut,
		path:     idPath("/generator/toggleNotifications", generatorID),
		token:    token,
	})
}
