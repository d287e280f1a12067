package event

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"selfpm/pkg/domain"
)

// EntityResolver turns raw payload fragments into domain entities.
type EntityResolver interface {
	ResolveIssue(project domain.Project, raw json.RawMessage) (domain.Issue, error)
	ResolveComment(issue domain.Issue, raw json.RawMessage) (domain.Comment, error)
}

// ProviderResolver resolves entities through the provider of the project's
// manager: provider.Repo(owner, name).Issues().Received(raw).
type ProviderResolver struct{}

func (ProviderResolver) ResolveIssue(project domain.Project, raw json.RawMessage) (domain.Issue, error) {
	if project == nil {
		return nil, errors.New("event has no project")
	}
	owner, name, err := SplitRepoFullName(project.RepoFullName())
	if err != nil {
		return nil, err
	}
	manager := project.ProjectManager()
	if manager == nil {
		return nil, errors.Errorf("project %s has no manager", project.RepoFullName())
	}
	provider, err := manager.Provider()
	if err != nil {
		return nil, errors.Wrapf(err, "provider for manager %s", manager.ID())
	}
	return provider.Repo(owner, name).Issues().Received(raw)
}

func (ProviderResolver) ResolveComment(issue domain.Issue, raw json.RawMessage) (domain.Comment, error) {
	return issue.Comments().Received(raw)
}

// SplitRepoFullName splits "owner/name". Anything but exactly one separator
// with two non-empty halves is ErrMalformedRepoName.
func SplitRepoFullName(fullName string) (string, string, error) {
	if strings.Count(fullName, "/") != 1 {
		return "", "", errors.Wrapf(domain.ErrMalformedRepoName, "%q", fullName)
	}
	owner, name, _ := strings.Cut(fullName, "/")
	if owner == "" || name == "" {
		return "", "", errors.Wrapf(domain.ErrMalformedRepoName, "%q", fullName)
	}
	return owner, name, nil
}
