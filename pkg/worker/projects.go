package worker

import (
	"context"

	"github.com/pkg/errors"

	"selfpm/pkg/domain"
	"selfpm/pkg/event"
)

var errNoProject = errors.New("event is not bound to a managed project")

// ProjectFinder binds an event to its stored project.
type ProjectFinder interface {
	FindProject(ctx context.Context, provider, repoFullName string) (domain.Project, error)
}

// ProjectFinderFunc adapts a function to ProjectFinder.
type ProjectFinderFunc func(ctx context.Context, provider, repoFullName string) (domain.Project, error)

func (fn ProjectFinderFunc) FindProject(ctx context.Context, provider, repoFullName string) (domain.Project, error) {
	return fn(ctx, provider, repoFullName)
}

// DomainEvent rebuilds the classified event of a webhook message so handlers
// can reach its issue and comment through the project's provider.
func DomainEvent(evt *Event) (domain.Event, error) {
	if evt == nil || evt.Managed == nil {
		return nil, errNoProject
	}
	return event.New(evt.Managed, evt.Name, evt.Payload, nil), nil
}
