// Package domain holds the contracts shared by the webhook classifier, the
// periodic review and the provider integrations.
package domain

import (
	"context"
	"encoding/json"
)

// Provider abstracts a source-code hosting service.
type Provider interface {
	// Name is the provider identifier, e.g. "github".
	Name() string
	// Repo returns the repository owner/name on this provider.
	Repo(owner, name string) Repo
}

// Repo is one repository on a provider.
type Repo interface {
	FullName() string
	Issues() Issues
}

// Issues materializes issues (and pull requests) of a repository.
type Issues interface {
	// Received builds an Issue from a raw JSON fragment delivered by a webhook.
	Received(raw json.RawMessage) (Issue, error)
}

// Issue is an issue or a pull request.
type Issue interface {
	Number() int
	PullRequest() bool
	Comments() Comments
	JSON() json.RawMessage
}

// Comments materializes and posts comments of an issue.
type Comments interface {
	Received(raw json.RawMessage) (Comment, error)
	Post(ctx context.Context, body string) (Comment, error)
}

// Comment is a comment on an issue or pull request.
type Comment interface {
	Body() string
	JSON() json.RawMessage
}

// Commit is a commit carried by an event. No event populates it yet.
type Commit interface {
	SHA() string
}

// Project is a repository under management.
type Project interface {
	// RepoFullName is the owner/name of the repository.
	RepoFullName() string
	// Provider is the name of the hosting provider.
	Provider() string
	ProjectManager() ProjectManager
	// Resolve lets the project react to evt.
	Resolve(ctx context.Context, evt Event) error
}

// ProjectManager manages a set of projects on a provider.
type ProjectManager interface {
	ID() string
	Provider() (Provider, error)
	Projects(ctx context.Context) ([]Project, error)
}

// Core exposes the managers known to the system.
type Core interface {
	ProjectManagers(ctx context.Context) ([]ProjectManager, error)
}
