package projects

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"selfpm/pkg/storage"
)

// Config mirrors the storage section of the application configuration.
type Config struct {
	Driver      string
	DSN         string
	AutoMigrate bool
}

// Store implements storage.Store on top of GORM.
type Store struct {
	db *gorm.DB
}

type managerRow struct {
	ID          string    `gorm:"column:id;size:128;primaryKey"`
	Provider    string    `gorm:"column:provider;size:32;not null"`
	Username    string    `gorm:"column:username;size:255"`
	AccessToken string    `gorm:"column:access_token;size:512"`
	BaseURL     string    `gorm:"column:base_url;size:512"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (managerRow) TableName() string { return "project_managers" }

type projectRow struct {
	Provider      string    `gorm:"column:provider;size:32;not null;uniqueIndex:idx_project,priority:1"`
	RepoFullName  string    `gorm:"column:repo_full_name;size:255;not null;uniqueIndex:idx_project,priority:2"`
	ManagerID     string    `gorm:"column:manager_id;size:128;not null;index"`
	WebhookSecret string    `gorm:"column:webhook_secret;size:255"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (projectRow) TableName() string { return "projects" }

// Open creates a GORM-backed store.
func Open(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("storage dsn is required")
	}
	driver := normalizeDriver(cfg.Driver)
	if driver == "" {
		return nil, errors.Errorf("unsupported storage driver: %s", cfg.Driver)
	}

	gormDB, err := openGorm(driver, cfg.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s storage", driver)
	}

	store := &Store{db: gormDB}
	if cfg.AutoMigrate {
		if err := store.migrate(); err != nil {
			return nil, errors.Wrap(err, "migrate storage")
		}
	}
	return store, nil
}

// Close closes the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpsertManager inserts or updates a manager by id.
func (s *Store) UpsertManager(ctx context.Context, record storage.ManagerRecord) error {
	if record.ID == "" || record.Provider == "" {
		return errors.New("manager id and provider are required")
	}
	data := managerRow{
		ID:          record.ID,
		Provider:    record.Provider,
		Username:    record.Username,
		AccessToken: record.AccessToken,
		BaseURL:     record.BaseURL,
	}
	return s.db.
		WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"provider", "username", "access_token", "base_url", "updated_at"}),
		}).
		Create(&data).Error
}

// GetManager fetches a manager by id.
func (s *Store) GetManager(ctx context.Context, id string) (*storage.ManagerRecord, error) {
	var data managerRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&data).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	record := managerFromRow(data)
	return &record, nil
}

// ListManagers lists every manager ordered by id.
func (s *Store) ListManagers(ctx context.Context) ([]storage.ManagerRecord, error) {
	var data []managerRow
	if err := s.db.WithContext(ctx).Order("id").Find(&data).Error; err != nil {
		return nil, err
	}
	records := make([]storage.ManagerRecord, 0, len(data))
	for _, item := range data {
		records = append(records, managerFromRow(item))
	}
	return records, nil
}

// UpsertProject inserts or updates a project by provider and full name.
func (s *Store) UpsertProject(ctx context.Context, record storage.ProjectRecord) error {
	if record.Provider == "" || record.RepoFullName == "" || record.ManagerID == "" {
		return errors.New("provider, repo_full_name and manager_id are required")
	}
	data := projectRow{
		Provider:      record.Provider,
		RepoFullName:  record.RepoFullName,
		ManagerID:     record.ManagerID,
		WebhookSecret: record.WebhookSecret,
	}
	return s.db.
		WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "repo_full_name"}},
			DoUpdates: clause.AssignmentColumns([]string{"manager_id", "webhook_secret", "updated_at"}),
		}).
		Create(&data).Error
}

// GetProject fetches a project by provider and repository full name.
func (s *Store) GetProject(ctx context.Context, provider, repoFullName string) (*storage.ProjectRecord, error) {
	var data projectRow
	err := s.db.
		WithContext(ctx).
		Where("provider = ? AND repo_full_name = ?", provider, repoFullName).
		Take(&data).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	record := projectFromRow(data)
	return &record, nil
}

// ListProjects lists the projects of a manager ordered by full name.
func (s *Store) ListProjects(ctx context.Context, managerID string) ([]storage.ProjectRecord, error) {
	var data []projectRow
	err := s.db.
		WithContext(ctx).
		Where("manager_id = ?", managerID).
		Order("repo_full_name").
		Find(&data).Error
	if err != nil {
		return nil, err
	}
	records := make([]storage.ProjectRecord, 0, len(data))
	for _, item := range data {
		records = append(records, projectFromRow(item))
	}
	return records, nil
}

func (s *Store) migrate() error {
	return s.db.AutoMigrate(&managerRow{}, &projectRow{})
}

func managerFromRow(data managerRow) storage.ManagerRecord {
	return storage.ManagerRecord{
		ID:          data.ID,
		Provider:    data.Provider,
		Username:    data.Username,
		AccessToken: data.AccessToken,
		BaseURL:     data.BaseURL,
		CreatedAt:   data.CreatedAt,
		UpdatedAt:   data.UpdatedAt,
	}
}

func projectFromRow(data projectRow) storage.ProjectRecord {
	return storage.ProjectRecord{
		Provider:      data.Provider,
		RepoFullName:  data.RepoFullName,
		ManagerID:     data.ManagerID,
		WebhookSecret: data.WebhookSecret,
		CreatedAt:     data.CreatedAt,
		UpdatedAt:     data.UpdatedAt,
	}
}

func normalizeDriver(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "postgres", "postgresql", "pgx":
		return "postgres"
	case "mysql":
		return "mysql"
	case "sqlite", "sqlite3":
		return "sqlite"
	default:
		return ""
	}
}

func openGorm(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	switch driver {
	case "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	case "mysql":
		return gorm.Open(mysql.Open(dsn), cfg)
	default:
		return gorm.Open(sqlite.Open(dsn), cfg)
	}
}
