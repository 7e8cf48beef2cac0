package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/devpulse/pipewatch/pkg/config"
)

// ErrNotFound reports that the requested rule does not exist.
var ErrNotFound = errors.New("notify: rule not found")

// Repository provides persistence for notification rules and history.
type Repository interface {
	Start(ctx context.Context) error
	Stop() error

	// Rule CRUD.
	ListRules(ctx context.Context) ([]Rule, error)
	GetRule(ctx context.Context, id uint) (*Rule, error)
	CreateRule(ctx context.Context, rule *Rule) error
	UpdateRule(ctx context.Context, rule *Rule) error
	DeleteRule(ctx context.Context, id uint) error

	// History.
	ListHistory(ctx context.Context, limit int) ([]HistoryEntry, error)
	RecordHistory(ctx context.Context, entry *HistoryEntry) error
}

// Compile-time interface check.
var _ Repository = (*repository)(nil)

type repository struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewRepository creates a Repository backed by the configured database
// driver.
func NewRepository(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Repository {
	return &repository{
		log: log.WithField("component", "notify"),
		cfg: cfg,
	}
}

// Start opens the database connection, runs migrations and seeds the
// default rules on first run.
func (r *repository) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch r.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(r.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			r.cfg.Postgres.Host,
			r.cfg.Postgres.Port,
			r.cfg.Postgres.User,
			r.cfg.Postgres.Password,
			r.cfg.Postgres.Database,
			r.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", r.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	r.db = db

	if err := r.db.WithContext(ctx).AutoMigrate(
		&Rule{},
		&HistoryEntry{},
	); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	if err := r.seedDefaultRules(ctx); err != nil {
		return fmt.Errorf("seeding default rules: %w", err)
	}

	r.log.WithField("driver", r.cfg.Driver).Info("Notification database connected")

	return nil
}

// Stop closes the underlying database connection.
func (r *repository) Stop() error {
	if r.db == nil {
		return nil
	}

	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// seedDefaultRules inserts the starter rules into an empty database.
func (r *repository) seedDefaultRules(ctx context.Context) error {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&Rule{}).
		Count(&count).Error; err != nil {
		return fmt.Errorf("counting rules: %w", err)
	}

	if count > 0 {
		return nil
	}

	defaults := []Rule{
		{
			Name:       "Build Failures",
			Enabled:    true,
			EventTypes: []string{EventBuildFailure},
			Branches:   []string{},
			Channels:   []string{"slack"},
		},
		{
			Name:       "Deployment Success",
			Enabled:    true,
			EventTypes: []string{EventDeployment},
			Branches:   []string{"main"},
			Channels:   []string{"slack"},
		},
	}

	for i := range defaults {
		if err := r.db.WithContext(ctx).Create(&defaults[i]).Error; err != nil {
			return fmt.Errorf("creating default rule %q: %w", defaults[i].Name, err)
		}
	}

	r.log.WithField("rules", len(defaults)).Info("Seeded default notification rules")

	return nil
}

// --- Rule CRUD ---

func (r *repository) ListRules(ctx context.Context) ([]Rule, error) {
	var rules []Rule
	if err := r.db.WithContext(ctx).
		Order("id ASC").
		Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}

	return rules, nil
}

func (r *repository) GetRule(ctx context.Context, id uint) (*Rule, error) {
	var rule Rule
	if err := r.db.WithContext(ctx).First(&rule, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("getting rule: %w", err)
	}

	return &rule, nil
}

func (r *repository) CreateRule(ctx context.Context, rule *Rule) error {
	if err := r.db.WithContext(ctx).Create(rule).Error; err != nil {
		return fmt.Errorf("creating rule: %w", err)
	}

	return nil
}

func (r *repository) UpdateRule(ctx context.Context, rule *Rule) error {
	res := r.db.WithContext(ctx).
		Model(&Rule{}).
		Where("id = ?", rule.ID).
		Select("Name", "Enabled", "EventTypes", "Branches", "Channels").
		Updates(rule)
	if res.Error != nil {
		return fmt.Errorf("updating rule: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *repository) DeleteRule(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&Rule{}, id)
	if res.Error != nil {
		return fmt.Errorf("deleting rule: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// --- History ---

func (r *repository) ListHistory(
	ctx context.Context, limit int,
) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	var entries []HistoryEntry
	if err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}

	return entries, nil
}

func (r *repository) RecordHistory(
	ctx context.Context, entry *HistoryEntry,
) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("recording history: %w", err)
	}

	return nil
}
