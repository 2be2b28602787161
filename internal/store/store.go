// Package store persists jobs, assets and projects in Postgres through gorm.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/keagan/cutforge/internal/config"
	"github.com/keagan/cutforge/internal/jobs"
)

// GormStore implements jobs.Store.
type GormStore struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// Open connects to Postgres.
func Open(cfg config.DatabaseConfig, logger zerolog.Logger) (*GormStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database dsn is required")
	}
	logger = logger.With().Str("component", "store").Logger()
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: newGormLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get connection pool: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	return New(db, logger), nil
}

// New wraps an existing connection.
func New(db *gorm.DB, logger zerolog.Logger) *GormStore {
	return &GormStore{db: db, logger: logger}
}

// Migrate creates or updates the tables.
func (s *GormStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&JobRecord{}, &AssetRecord{}, &ProjectRecord{})
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) GetJob(ctx context.Context, id string) (*jobs.Job, error) {
	var rec JobRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, notFound(err, jobs.ErrJobNotFound, id)
	}
	return rec.job(), nil
}

func (s *GormStore) SaveJob(ctx context.Context, job *jobs.Job) error {
	return s.db.WithContext(ctx).Save(jobRecord(job)).Error
}

// ListJobs returns the newest jobs, optionally only those in status.
func (s *GormStore) ListJobs(ctx context.Context, status jobs.Status, limit int) ([]*jobs.Job, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []JobRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*jobs.Job, len(recs))
	for i := range recs {
		out[i] = recs[i].job()
	}
	return out, nil
}

func (s *GormStore) GetAsset(ctx context.Context, id string) (*jobs.Asset, error) {
	var rec AssetRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, notFound(err, jobs.ErrAssetNotFound, id)
	}
	return rec.asset(), nil
}

func (s *GormStore) SaveAsset(ctx context.Context, asset *jobs.Asset) error {
	return s.db.WithContext(ctx).Save(assetRecord(asset)).Error
}

func (s *GormStore) GetProject(ctx context.Context, id string) (*jobs.Project, error) {
	var rec ProjectRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, notFound(err, jobs.ErrProjectNotFound, id)
	}
	return rec.project(), nil
}

func (s *GormStore) SaveProject(ctx context.Context, p *jobs.Project) error {
	return s.db.WithContext(ctx).Save(projectRecord(p)).Error
}

func notFound(err, sentinel error, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", sentinel, id)
	}
	return err
}
