// Package domaintest provides testify mocks of the domain collaborators.
package domaintest

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/stretchr/testify/mock"

	"selfpm/pkg/domain"
)

// JSON matches a json.RawMessage argument that is equivalent to expected,
// ignoring insignificant whitespace.
func JSON(expected string) interface{} {
	want := compact([]byte(expected))
	return mock.MatchedBy(func(raw json.RawMessage) bool {
		return bytes.Equal(compact(raw), want)
	})
}

func compact(raw []byte) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}

type Provider struct{ mock.Mock }

func (m *Provider) Name() string { return m.Called().String(0) }

func (m *Provider) Repo(owner, name string) domain.Repo {
	repo, _ := m.Called(owner, name).Get(0).(domain.Repo)
	return repo
}

type Repo struct{ mock.Mock }

func (m *Repo) FullName() string { return m.Called().String(0) }

func (m *Repo) Issues() domain.Issues {
	issues, _ := m.Called().Get(0).(domain.Issues)
	return issues
}

type Issues struct{ mock.Mock }

func (m *Issues) Received(raw json.RawMessage) (domain.Issue, error) {
	args := m.Called(raw)
	issue, _ := args.Get(0).(domain.Issue)
	return issue, args.Error(1)
}

type Issue struct{ mock.Mock }

func (m *Issue) Number() int { return m.Called().Int(0) }

func (m *Issue) PullRequest() bool { return m.Called().Bool(0) }

func (m *Issue) Comments() domain.Comments {
	comments, _ := m.Called().Get(0).(domain.Comments)
	return comments
}

func (m *Issue) JSON() json.RawMessage {
	raw, _ := m.Called().Get(0).(json.RawMessage)
	return raw
}

type Comments struct{ mock.Mock }

func (m *Comments) Received(raw json.RawMessage) (domain.Comment, error) {
	args := m.Called(raw)
	comment, _ := args.Get(0).(domain.Comment)
	return comment, args.Error(1)
}

func (m *Comments) Post(ctx context.Context, body string) (domain.Comment, error) {
	args := m.Called(ctx, body)
	comment, _ := args.Get(0).(domain.Comment)
	return comment, args.Error(1)
}

type Comment struct{ mock.Mock }

func (m *Comment) Body() string { return m.Called().String(0) }

func (m *Comment) JSON() json.RawMessage {
	raw, _ := m.Called().Get(0).(json.RawMessage)
	return raw
}

type Project struct{ mock.Mock }

func (m *Project) RepoFullName() string { return m.Called().String(0) }

func (m *Project) Provider() string { return m.Called().String(0) }

func (m *Project) ProjectManager() domain.ProjectManager {
	manager, _ := m.Called().Get(0).(domain.ProjectManager)
	return manager
}

func (m *Project) Resolve(ctx context.Context, evt domain.Event) error {
	return m.Called(ctx, evt).Error(0)
}

type ProjectManager struct{ mock.Mock }

func (m *ProjectManager) ID() string { return m.Called().String(0) }

func (m *ProjectManager) Provider() (domain.Provider, error) {
	args := m.Called()
	provider, _ := args.Get(0).(domain.Provider)
	return provider, args.Error(1)
}

func (m *ProjectManager) Projects(ctx context.Context) ([]domain.Project, error) {
	args := m.Called(ctx)
	projects, _ := args.Get(0).([]domain.Project)
	return projects, args.Error(1)
}

type Core struct{ mock.Mock }

func (m *Core) ProjectManagers(ctx context.Context) ([]domain.ProjectManager, error) {
	args := m.Called(ctx)
	managers, _ := args.Get(0).([]domain.ProjectManager)
	return managers, args.Error(1)
}
