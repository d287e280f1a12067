// Package core exposes stored project managers and projects as domain objects.
package core

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"selfpm/pkg/domain"
	"selfpm/pkg/storage"
)

// ErrUnknownProject is returned when no project is stored for a repository.
var ErrUnknownProject = errors.New("unknown project")

// Resolution decides what a project does with an event.
type Resolution interface {
	Resolve(ctx context.Context, evt domain.Event) error
}

// ResolutionFunc adapts a function to Resolution.
type ResolutionFunc func(ctx context.Context, evt domain.Event) error

func (f ResolutionFunc) Resolve(ctx context.Context, evt domain.Event) error {
	return f(ctx, evt)
}

// ProviderFactory builds the provider a manager acts through.
type ProviderFactory interface {
	Provider(ctx context.Context, manager storage.ManagerRecord) (domain.Provider, error)
}

type Core struct {
	store      storage.Store
	providers  ProviderFactory
	resolution Resolution
	logger     logrus.FieldLogger
}

// New creates a Core. A nil resolution makes every project ignore its events.
func New(store storage.Store, providers ProviderFactory, resolution Resolution, logger logrus.FieldLogger) *Core {
	if resolution == nil {
		resolution = ResolutionFunc(func(context.Context, domain.Event) error { return nil })
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Core{store: store, providers: providers, resolution: resolution, logger: logger}
}

func (c *Core) ProjectManagers(ctx context.Context) ([]domain.ProjectManager, error) {
	records, err := c.store.ListManagers(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list managers")
	}
	managers := make([]domain.ProjectManager, 0, len(records))
	for _, record := range records {
		managers = append(managers, c.manager(record))
	}
	return managers, nil
}

// FindProject returns the project stored for provider and repository, or
// ErrUnknownProject.
func (c *Core) FindProject(ctx context.Context, provider, repoFullName string) (domain.Project, error) {
	record, err := c.store.GetProject(ctx, provider, repoFullName)
	if err != nil {
		return nil, errors.Wrapf(err, "get project %s", repoFullName)
	}
	if record == nil {
		return nil, errors.Wrapf(ErrUnknownProject, "%s %s", provider, repoFullName)
	}
	managerRecord, err := c.store.GetManager(ctx, record.ManagerID)
	if err != nil {
		return nil, errors.Wrapf(err, "get manager %s", record.ManagerID)
	}
	if managerRecord == nil {
		return nil, errors.Errorf("project %s references missing manager %s", repoFullName, record.ManagerID)
	}
	return &project{core: c, record: *record, manager: c.manager(*managerRecord)}, nil
}

// WebhookSecret returns the secret configured for a project, if any.
func (c *Core) WebhookSecret(ctx context.Context, provider, repoFullName string) (string, error) {
	record, err := c.store.GetProject(ctx, provider, repoFullName)
	if err != nil || record == nil {
		return "", err
	}
	return record.WebhookSecret, nil
}

func (c *Core) manager(record storage.ManagerRecord) *manager {
	return &manager{core: c, record: record}
}

type manager struct {
	core   *Core
	record storage.ManagerRecord

	mu       sync.Mutex
	provider domain.Provider
}

func (m *manager) ID() string { return m.record.ID }

// Provider builds the client on first use and keeps it for the manager's
// lifetime. Failures are not kept.
func (m *manager) Provider() (domain.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.provider != nil {
		return m.provider, nil
	}
	provider, err := m.core.providers.Provider(context.Background(), m.record)
	if err != nil {
		return nil, errors.Wrapf(err, "provider of manager %s", m.record.ID)
	}
	m.provider = provider
	return provider, nil
}

func (m *manager) Projects(ctx context.Context) ([]domain.Project, error) {
	records, err := m.core.store.ListProjects(ctx, m.record.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "list projects of manager %s", m.record.ID)
	}
	projects := make([]domain.Project, 0, len(records))
	for _, record := range records {
		projects = append(projects, &project{core: m.core, record: record, manager: m})
	}
	return projects, nil
}

type project struct {
	core    *Core
	record  storage.ProjectRecord
	manager *manager
}

func (p *project) RepoFullName() string { return p.record.RepoFullName }

func (p *project) Provider() string { return p.record.Provider }

func (p *project) ProjectManager() domain.ProjectManager { return p.manager }

func (p *project) Resolve(ctx context.Context, evt domain.Event) error {
	p.core.logger.WithFields(logrus.Fields{
		"project": p.record.RepoFullName,
		"type":    evt.Type().String(),
	}).Debug("resolving event")
	return p.core.resolution.Resolve(ctx, evt)
}
