package scm

import (
	"context"

	"github.com/pkg/errors"

	"selfpm/pkg/auth"
	"selfpm/pkg/domain"
	"selfpm/pkg/providers/bitbucket"
	"selfpm/pkg/providers/github"
	"selfpm/pkg/providers/gitlab"
	"selfpm/pkg/storage"
)

// Factory builds the provider a project manager acts through.
type Factory struct {
	resolver auth.Resolver
}

// NewFactory creates a new Factory.
func NewFactory(resolver auth.Resolver) *Factory {
	return &Factory{resolver: resolver}
}

// Provider resolves the manager's credentials and returns a client for its
// provider.
func (f *Factory) Provider(ctx context.Context, manager storage.ManagerRecord) (domain.Provider, error) {
	creds, err := f.resolver.Resolve(ctx, manager)
	if err != nil {
		return nil, err
	}
	switch creds.Provider {
	case github.Name:
		return github.NewProvider(ctx, creds.Token, creds.BaseURL)
	case gitlab.Name:
		return gitlab.NewProvider(creds.Token, creds.BaseURL)
	case bitbucket.Name:
		return bitbucket.NewProvider(creds.Token, creds.BaseURL)
	default:
		return nil, errors.Errorf("unsupported provider %q", creds.Provider)
	}
}
