package web

import (
	"context"

	"github.com/denwilliams/go-mqtt-dashboard/pkg/layout"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/live"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/router"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/session"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/store"
)

// Dashboard is the session surface exposed over HTTP. *session.Session
// implements it.
type Dashboard interface {
	Status() session.Status
	Connect(ctx context.Context, host string, port int) error
	Disconnect(ctx context.Context) error
	Subscribe(ctx context.Context, pattern string, kind live.Kind, transform string) (bool, error)
	Unsubscribe(ctx context.Context, pattern string) (bool, error)
	Publish(ctx context.Context, topic string, payload []byte) error
	Snapshot(ctx context.Context) ([]live.Update, error)
	LogTail(ctx context.Context, n int) ([]router.LogEntry, error)
	ExportLayout(ctx context.Context) (layout.Config, error)
	ImportLayout(ctx context.Context, cfg layout.Config) error
	SaveLayout(ctx context.Context, path string) error
}

// LayoutStore keeps named layouts. *store.Manager implements it.
type LayoutStore interface {
	SaveLayout(ctx context.Context, name string, cfg layout.Config) error
	LoadLayout(ctx context.Context, name string) (layout.Config, error)
	ListLayouts(ctx context.Context) ([]store.LayoutInfo, error)
	DeleteLayout(ctx context.Context, name string) error
}

// API envelope
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	ErrCodeBadRequest     = "BAD_REQUEST"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeNotConnected   = "NOT_CONNECTED"
	ErrCodeStoreDisabled  = "STORE_DISABLED"
	ErrCodeUnavailable    = "SERVICE_UNAVAILABLE"
	ErrCodeInternal       = "INTERNAL_ERROR"
	ErrCodeMethodNotAllow = "METHOD_NOT_ALLOWED"
	ErrCodeForbidden      = "FORBIDDEN"
	ErrCodeMediaType      = "UNSUPPORTED_MEDIA_TYPE"
)

type SubscribeRequest struct {
	Topic     string    `json:"topic"`
	Type      live.Kind `json:"type"`
	Transform string    `json:"transform,omitempty"`
}

type SubscribeResponse struct {
	Pattern string `json:"pattern"`
	Created bool   `json:"created"`
}

type UnsubscribeResponse struct {
	Pattern string `json:"pattern"`
	Removed bool   `json:"removed"`
}

type PublishRequest struct {
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
}

type ConnectRequest struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type SaveLayoutResponse struct {
	Saved bool `json:"saved"`
}
