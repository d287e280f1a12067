package storage

import (
	"context"
	"time"
)

// ManagerRecord stores a project manager: the account that acts on a set of
// projects and the credentials it acts with.
type ManagerRecord struct {
	ID          string
	Provider    string
	Username    string
	AccessToken string
	BaseURL     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProjectRecord stores a repository managed by a project manager.
type ProjectRecord struct {
	Provider      string
	RepoFullName  string
	ManagerID     string
	WebhookSecret string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Store defines persistence for managers and their projects. Lookups of a
// missing record return nil and no error.
type Store interface {
	UpsertManager(ctx context.Context, record ManagerRecord) error
	GetManager(ctx context.Context, id string) (*ManagerRecord, error)
	ListManagers(ctx context.Context) ([]ManagerRecord, error)
	UpsertProject(ctx context.Context, record ProjectRecord) error
	GetProject(ctx context.Context, provider, repoFullName string) (*ProjectRecord, error)
	ListProjects(ctx context.Context, managerID string) ([]ProjectRecord, error)
	Close() error
}
