package scm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"selfpm/pkg/auth"
	"selfpm/pkg/storage"
)

func TestFactoryBuildsProviderPerManager(t *testing.T) {
	factory := NewFactory(auth.NewResolver(auth.Config{GitLab: auth.ProviderConfig{Token: "glpat"}}))

	for _, name := range []string{"github", "gitlab", "bitbucket"} {
		provider, err := factory.Provider(context.Background(), storage.ManagerRecord{
			ID:          "pm-" + name,
			Provider:    name,
			AccessToken: "token",
		})
		require.NoError(t, err, name)
		assert.Equal(t, name, provider.Name())
	}
}

func TestFactoryPropagatesCredentialErrors(t *testing.T) {
	factory := NewFactory(auth.NewResolver(auth.Config{}))

	_, err := factory.Provider(context.Background(), storage.ManagerRecord{ID: "pm", Provider: "github"})
	assert.Error(t, err)
}
