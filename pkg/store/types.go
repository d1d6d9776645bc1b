// Package store keeps named dashboard layouts in SQLite or PostgreSQL.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/denwilliams/go-mqtt-dashboard/pkg/layout"
)

var (
	ErrLayoutNotFound = errors.New("layout not found")
	ErrInvalidName    = errors.New("layout name is required")
)

// Database is implemented by each backend.
type Database interface {
	SaveLayout(ctx context.Context, name string, cfg layout.Config) error
	LoadLayout(ctx context.Context, name string) (layout.Config, error)
	ListLayouts(ctx context.Context) ([]LayoutInfo, error)
	DeleteLayout(ctx context.Context, name string) error

	Migrate() error
	Close() error
}

// LayoutInfo summarises a stored layout without its subscriptions.
type LayoutInfo struct {
	Name          string    `json:"name"`
	Host          string    `json:"host"`
	Port          int       `json:"port"`
	Subscriptions int       `json:"subscriptions"`
	UpdatedAt     time.Time `json:"updated_at"`
}
