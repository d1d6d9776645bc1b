package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/mattn/go-sqlite3"
)

const sqliteOptions = "?_foreign_keys=on&_journal_mode=WAL"

type SQLiteDatabase struct {
	sqlDatabase
	path string
}

func NewSQLiteDatabase(dbPath string) (*SQLiteDatabase, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+sqliteOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteDatabase{
		sqlDatabase: sqlDatabase{db: db, q: sqliteQueries},
		path:        dbPath,
	}, nil
}

func (s *SQLiteDatabase) Migrate() error {
	// Separate connection so the migrator's Close does not take the pool down.
	migrationDB, err := sql.Open("sqlite3", s.path+sqliteOptions)
	if err != nil {
		return fmt.Errorf("failed to open migration database: %w", err)
	}
	defer migrationDB.Close()

	driver, err := sqlite3.WithInstance(migrationDB, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite3 driver: %w", err)
	}

	return runMigrations("sqlite", driver)
}

var sqliteQueries = queries{
	upsertLayout: `INSERT INTO layouts (name, host, port, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET host = excluded.host, port = excluded.port, updated_at = excluded.updated_at`,
	deleteSubs:   `DELETE FROM layout_subscriptions WHERE layout_name = ?`,
	insertSub:    `INSERT INTO layout_subscriptions (layout_name, position, topic, kind, transform) VALUES (?, ?, ?, ?, ?)`,
	selectLayout: `SELECT host, port FROM layouts WHERE name = ?`,
	selectSubs:   `SELECT topic, kind, transform FROM layout_subscriptions WHERE layout_name = ? ORDER BY position`,
	listLayouts: `SELECT l.name, l.host, l.port, l.updated_at,
		(SELECT COUNT(*) FROM layout_subscriptions s WHERE s.layout_name = l.name)
		FROM layouts l ORDER BY l.name`,
	deleteLayout: `DELETE FROM layouts WHERE name = ?`,
}
