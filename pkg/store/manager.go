package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/denwilliams/go-mqtt-dashboard/pkg/config"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/layout"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/metrics"
)

// Manager wraps a Database with logging and query metrics.
type Manager struct {
	db     Database
	dbType string
	logger zerolog.Logger
}

func NewManager(cfg config.StoreConfig, logger zerolog.Logger) (*Manager, error) {
	var db Database
	var err error

	switch cfg.Type {
	case "sqlite":
		db, err = NewSQLiteDatabase(cfg.Connection)
	case "postgres", "postgresql":
		db, err = NewPostgreSQLDatabase(cfg.Connection)
	default:
		err = fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run store migrations: %w", err)
	}

	logger.Info().Str("type", cfg.Type).Msg("Layout store initialized")
	return NewManagerWithDatabase(db, cfg.Type, logger), nil
}

// NewManagerWithDatabase wraps an already migrated database.
func NewManagerWithDatabase(db Database, dbType string, logger zerolog.Logger) *Manager {
	return &Manager{db: db, dbType: dbType, logger: logger}
}

func (m *Manager) Type() string {
	return m.dbType
}

func (m *Manager) Close() error {
	return m.db.Close()
}

func (m *Manager) SaveLayout(ctx context.Context, name string, cfg layout.Config) error {
	start := time.Now()
	if err := m.db.SaveLayout(ctx, name, cfg); err != nil {
		metrics.RecordDatabaseError("save_layout")
		m.logger.Error().Err(err).Str("layout", name).Msg("Failed to save layout")
		return err
	}
	metrics.RecordDatabaseQuery("save_layout", "write", time.Since(start).Seconds())

	m.logger.Info().Str("layout", name).Int("subscriptions", len(cfg.Subscriptions)).Msg("Saved layout")
	return nil
}

func (m *Manager) LoadLayout(ctx context.Context, name string) (layout.Config, error) {
	start := time.Now()
	cfg, err := m.db.LoadLayout(ctx, name)
	if err != nil {
		if !errors.Is(err, ErrLayoutNotFound) {
			metrics.RecordDatabaseError("load_layout")
			m.logger.Error().Err(err).Str("layout", name).Msg("Failed to load layout")
		}
		return layout.Config{}, err
	}
	metrics.RecordDatabaseQuery("load_layout", "read", time.Since(start).Seconds())
	return cfg, nil
}

func (m *Manager) ListLayouts(ctx context.Context) ([]LayoutInfo, error) {
	start := time.Now()
	infos, err := m.db.ListLayouts(ctx)
	if err != nil {
		metrics.RecordDatabaseError("list_layouts")
		return nil, err
	}
	metrics.RecordDatabaseQuery("list_layouts", "read", time.Since(start).Seconds())
	return infos, nil
}

func (m *Manager) DeleteLayout(ctx context.Context, name string) error {
	start := time.Now()
	if err := m.db.DeleteLayout(ctx, name); err != nil {
		if !errors.Is(err, ErrLayoutNotFound) {
			metrics.RecordDatabaseError("delete_layout")
			m.logger.Error().Err(err).Str("layout", name).Msg("Failed to delete layout")
		}
		return err
	}
	metrics.RecordDatabaseQuery("delete_layout", "write", time.Since(start).Seconds())

	m.logger.Info().Str("layout", name).Msg("Deleted layout")
	return nil
}
