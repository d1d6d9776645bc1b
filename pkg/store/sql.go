package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/denwilliams/go-mqtt-dashboard/pkg/layout"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/live"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFS embed.FS

// queries holds the dialect-specific statements. Only the placeholders differ.
type queries struct {
	upsertLayout string
	deleteSubs   string
	insertSub    string
	selectLayout string
	selectSubs   string
	listLayouts  string
	deleteLayout string
}

// sqlDatabase implements the layout operations shared by both backends.
type sqlDatabase struct {
	db *sql.DB
	q  queries
}

func (s *sqlDatabase) SaveLayout(ctx context.Context, name string, cfg layout.Config) error {
	if name == "" {
		return ErrInvalidName
	}
	cfg = cfg.Normalize()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.q.upsertLayout, name, cfg.Host, cfg.Port, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save layout: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.q.deleteSubs, name); err != nil {
		return fmt.Errorf("failed to clear subscriptions: %w", err)
	}
	for i, sub := range cfg.Subscriptions {
		if _, err := tx.ExecContext(ctx, s.q.insertSub, name, i, sub.Topic, string(sub.Type), sub.Transform); err != nil {
			return fmt.Errorf("failed to save subscription %s: %w", sub.Topic, err)
		}
	}

	return tx.Commit()
}

func (s *sqlDatabase) LoadLayout(ctx context.Context, name string) (layout.Config, error) {
	var cfg layout.Config
	err := s.db.QueryRowContext(ctx, s.q.selectLayout, name).Scan(&cfg.Host, &cfg.Port)
	if errors.Is(err, sql.ErrNoRows) {
		return layout.Config{}, fmt.Errorf("%w: %s", ErrLayoutNotFound, name)
	}
	if err != nil {
		return layout.Config{}, fmt.Errorf("failed to load layout: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, s.q.selectSubs, name)
	if err != nil {
		return layout.Config{}, fmt.Errorf("failed to load subscriptions: %w", err)
	}
	defer rows.Close()

	cfg.Subscriptions = []layout.Subscription{}
	for rows.Next() {
		var sub layout.Subscription
		var kind string
		if err := rows.Scan(&sub.Topic, &kind, &sub.Transform); err != nil {
			return layout.Config{}, fmt.Errorf("failed to scan subscription: %w", err)
		}
		sub.Type, _ = live.ParseKind(kind)
		cfg.Subscriptions = append(cfg.Subscriptions, sub)
	}
	if err := rows.Err(); err != nil {
		return layout.Config{}, fmt.Errorf("failed to iterate subscriptions: %w", err)
	}

	return cfg.Normalize(), nil
}

func (s *sqlDatabase) ListLayouts(ctx context.Context) ([]LayoutInfo, error) {
	rows, err := s.db.QueryContext(ctx, s.q.listLayouts)
	if err != nil {
		return nil, fmt.Errorf("failed to list layouts: %w", err)
	}
	defer rows.Close()

	infos := []LayoutInfo{}
	for rows.Next() {
		var info LayoutInfo
		if err := rows.Scan(&info.Name, &info.Host, &info.Port, &info.UpdatedAt, &info.Subscriptions); err != nil {
			return nil, fmt.Errorf("failed to scan layout: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (s *sqlDatabase) DeleteLayout(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.q.deleteSubs, name); err != nil {
		return fmt.Errorf("failed to delete subscriptions: %w", err)
	}
	result, err := tx.ExecContext(ctx, s.q.deleteLayout, name)
	if err != nil {
		return fmt.Errorf("failed to delete layout: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrLayoutNotFound, name)
	}

	return tx.Commit()
}

func (s *sqlDatabase) Close() error {
	return s.db.Close()
}

// runMigrations applies the embedded migrations for dbType using driver.
func runMigrations(dbType string, driver database.Driver) error {
	src, err := iofs.New(migrationFS, "migrations/"+dbType)
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, dbType, driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
