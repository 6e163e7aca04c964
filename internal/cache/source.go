package cache

import (
	"context"

	"github.com/mmynk/rngenius/internal/api"
	"github.com/mmynk/rngenius/internal/auth"
	"github.com/mmynk/rngenius/internal/models"
)

// APISource fetches through the REST client with token refresh.
type APISource struct {
	caller *auth.Caller
	client *api.Client
}

var _ Source = (*APISource)(nil)

// NewAPISource creates a Source backed by the REST client.
func NewAPISource(caller *auth.Caller, client *api.Client) *APISource {
	return &APISource{caller: caller, client: client}
}

func (s *APISource) FetchGenerators(ctx context.Context) ([]models.Generator, error) {
	return auth.Do(ctx, s.caller, s.client.MyGenerators)
}

func (s *APISource) FetchResults(ctx context.Context) ([]models.Result, error) {
	return auth.Do(ctx, s.caller, s.client.MyResults)
}
