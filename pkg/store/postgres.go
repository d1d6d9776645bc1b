package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/lib/pq"
)

type PostgreSQLDatabase struct {
	sqlDatabase
	dsn string
}

func NewPostgreSQLDatabase(dsn string) (*PostgreSQLDatabase, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgreSQLDatabase{
		sqlDatabase: sqlDatabase{db: db, q: postgresQueries},
		dsn:         dsn,
	}, nil
}

func (p *PostgreSQLDatabase) Migrate() error {
	migrationDB, err := sql.Open("postgres", p.dsn)
	if err != nil {
		return fmt.Errorf("failed to open migration database: %w", err)
	}
	defer migrationDB.Close()

	driver, err := postgres.WithInstance(migrationDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	return runMigrations("postgres", driver)
}

var postgresQueries = queries{
	upsertLayout: `INSERT INTO layouts (name, host, port, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET host = EXCLUDED.host, port = EXCLUDED.port, updated_at = EXCLUDED.updated_at`,
	deleteSubs:   `DELETE FROM layout_subscriptions WHERE layout_name = $1`,
	insertSub:    `INSERT INTO layout_subscriptions (layout_name, position, topic, kind, transform) VALUES ($1, $2, $3, $4, $5)`,
	selectLayout: `SELECT host, port FROM layouts WHERE name = $1`,
	selectSubs:   `SELECT topic, kind, transform FROM layout_subscriptions WHERE layout_name = $1 ORDER BY position`,
	listLayouts: `SELECT l.name, l.host, l.port, l.updated_at,
		(SELECT COUNT(*) FROM layout_subscriptions s WHERE s.layout_name = l.name)
		FROM layouts l ORDER BY l.name`,
	deleteLayout: `DELETE FROM layouts WHERE name = $1`,
}
