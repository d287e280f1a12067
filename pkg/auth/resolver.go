package auth

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"selfpm/pkg/storage"
)

// Credentials are what a provider client authenticates with.
type Credentials struct {
	Provider string
	Token    string
	BaseURL  string
}

// Resolver resolves the credentials a project manager acts with.
type Resolver interface {
	Resolve(ctx context.Context, manager storage.ManagerRecord) (Credentials, error)
}

// DefaultResolver prefers the manager's own token and base URL and falls back
// to the provider configuration.
type DefaultResolver struct {
	cfg Config
}

// NewResolver constructs a DefaultResolver.
func NewResolver(cfg Config) *DefaultResolver {
	return &DefaultResolver{cfg: cfg}
}

func (r *DefaultResolver) Resolve(_ context.Context, manager storage.ManagerRecord) (Credentials, error) {
	provider := strings.ToLower(strings.TrimSpace(manager.Provider))
	fallback, ok := r.cfg.provider(provider)
	if !ok {
		return Credentials{}, errors.Errorf("unsupported provider %q for manager %s", manager.Provider, manager.ID)
	}
	creds := Credentials{
		Provider: provider,
		Token:    manager.AccessToken,
		BaseURL:  manager.BaseURL,
	}
	if creds.Token == "" {
		creds.Token = fallback.Token
	}
	if creds.BaseURL == "" {
		creds.BaseURL = fallback.BaseURL
	}
	if creds.Token == "" {
		return Credentials{}, errors.Errorf("%s token is required for manager %s", provider, manager.ID)
	}
	return creds, nil
}
