package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/denwilliams/go-mqtt-dashboard/pkg/config"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/layout"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/logging"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/mqtt"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/router"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/session"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/store"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/tui"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/web"
)

// Target is a broker address given on the command line. Zero fields keep
// whatever the layout file restored.
type Target struct {
	Host string
	Port int
}

type Application struct {
	config     *config.Config
	logger     zerolog.Logger
	layoutPath string
	target     Target

	store     *store.Manager
	client    *mqtt.Client
	session   *session.Session
	hub       *web.Hub
	webServer *web.Server
	dashboard *tui.Dashboard

	// set by Run before any UI action can fire
	ctx context.Context
}

func NewApplication(cfg *config.Config, logger zerolog.Logger, target Target) (*Application, error) {
	a := &Application{
		config:     cfg,
		logger:     logger,
		layoutPath: layoutPath(cfg),
		target:     target,
		ctx:        context.Background(),
	}

	if err := a.initializeComponents(); err != nil {
		a.Cleanup()
		return nil, err
	}
	return a, nil
}

func layoutPath(cfg *config.Config) string {
	if cfg.Dashboard.LayoutFile != "" {
		return cfg.Dashboard.LayoutFile
	}
	return layout.DefaultPath()
}

func (a *Application) initializeComponents() error {
	if a.config.Store.Type != "none" {
		manager, err := store.NewManager(a.config.Store, logging.Module(a.logger, "store"))
		if err != nil {
			return fmt.Errorf("failed to open layout store: %w", err)
		}
		a.store = manager
	}

	a.client = mqtt.NewClient(mqtt.Params{
		ClientID:       a.config.MQTT.ClientID,
		Username:       a.config.MQTT.Username,
		Password:       a.config.MQTT.Password,
		ConnectTimeout: a.config.MQTT.ConnectTimeout,
		PublishTimeout: a.config.MQTT.PublishTimeout,
		Logger:         logging.Module(a.logger, "mqtt"),
	})

	var (
		notifiers router.Notifiers
		listeners session.StatusListeners
	)
	if a.config.Web.Enabled {
		a.hub = web.NewHub(logging.Module(a.logger, "websocket"))
		notifiers = append(notifiers, a.hub)
		listeners = append(listeners, a.hub)
	}
	if a.config.TUIEnabled() {
		a.dashboard = tui.New(tui.Options{
			Actions: tui.Actions{
				ToggleConnection: a.toggleConnection,
				SaveLayout:       a.saveLayout,
			},
		}, logging.Module(a.logger, "tui"))
		notifiers = append(notifiers, a.dashboard)
		listeners = append(listeners, a.dashboard)
	}

	a.session = session.New(a.client, notifiers, listeners, session.Options{
		Host:             a.config.MQTT.Host,
		Port:             a.config.MQTT.Port,
		LayoutPath:       a.layoutPath,
		HistorySize:      a.config.Dashboard.HistorySize,
		LogSize:          a.config.Dashboard.LogSize,
		TextLimit:        a.config.Dashboard.TextLimit,
		QueueSize:        a.config.Dashboard.QueueSize,
		RefreshInterval:  a.config.Dashboard.RefreshInterval,
		RateLimit:        a.config.Dashboard.RateLimit,
		MaxExecutionTime: a.config.Transform.MaxExecutionTime,
	}, logging.Module(a.logger, "session"))

	if a.config.Web.Enabled {
		// a nil *store.Manager must not leak into the interface
		var layouts web.LayoutStore
		if a.store != nil {
			layouts = a.store
		}
		a.webServer = web.NewServer(web.Options{
			Address:        a.config.GetAddress(),
			AllowedOrigins: a.config.Web.AllowedOrigins,
		}, a.session, layouts, a.hub, logging.Module(a.logger, "web"))
	}

	return nil
}

// Run starts every component and blocks until ctx is cancelled, the user
// quits the terminal dashboard, or a component fails.
func (a *Application) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	a.ctx = ctx

	g.Go(func() error {
		return a.session.Run(ctx)
	})

	a.restore(ctx)

	if a.webServer != nil {
		g.Go(func() error {
			return a.webServer.Run(ctx)
		})
	}

	if a.dashboard != nil {
		g.Go(func() error {
			defer cancel()
			return a.dashboard.Run(ctx)
		})
	} else {
		a.logger.Info().Msg("Running headless")
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// restore applies the layout file and, when configured, connects.
func (a *Application) restore(ctx context.Context) {
	cfg, err := layout.Load(a.layoutPath)
	switch {
	case errors.Is(err, layout.ErrNotFound):
		a.logger.Info().Str("path", a.layoutPath).Msg("No layout file, starting empty")
	case err != nil:
		a.logger.Warn().Err(err).Str("path", a.layoutPath).Msg("Ignoring malformed layout file")
	default:
		if err := a.session.ImportLayout(ctx, cfg); err != nil {
			a.logger.Error().Err(err).Msg("Failed to restore layout")
		}
	}

	if !a.config.AutoConnect() && a.target == (Target{}) {
		return
	}
	if err := a.session.Connect(ctx, a.target.Host, a.target.Port); err != nil {
		a.logger.Error().Err(err).Msg("Failed to start connecting")
	}
}

func (a *Application) toggleConnection() {
	var err error
	if a.session.Status().State == session.StateDisconnected {
		err = a.session.Connect(a.ctx, "", 0)
	} else {
		err = a.session.Disconnect(a.ctx)
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to toggle connection")
	}
}

func (a *Application) saveLayout() error {
	return a.session.SaveLayout(a.ctx, a.layoutPath)
}

func (a *Application) Cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close layout store")
		}
	}
}
