package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/denwilliams/go-mqtt-dashboard/pkg/config"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/logging"
)

var version = "dev"

const logFileName = "mqtt-dashboard.log"

// env carries what Before prepared to every command.
type env struct {
	config  *config.Config
	target  Target
	logger  zerolog.Logger
	logFile *os.File
}

func main() {
	if err := newApp(&env{}).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(e *env) *cli.App {
	return &cli.App{
		Name:    "mqtt-dashboard",
		Usage:   "watch MQTT topics live in the terminal or over HTTP",
		Version: version,
		Flags:   Flags,
		Before:  e.before,
		After:   e.after,
		Action:  e.run,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "start the dashboard (default)",
				Action: e.run,
			},
			{
				Name:   "publish",
				Usage:  "publish one message and exit",
				Flags:  []cli.Flag{FlagTopic, FlagPayload, FlagWait},
				Action: e.publish,
			},
			layoutsCommand(e),
		},
	}
}

func (e *env) before(c *cli.Context) error {
	cfg, err := config.Load(c.String(FlagConfig.Name))
	if err != nil {
		return err
	}
	e.target = applyFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	e.config = cfg

	// The terminal dashboard owns the screen, so its logs go to a file.
	var out io.Writer = os.Stderr
	cmd := c.Args().First()
	if cfg.TUIEnabled() && (cmd == "" || cmd == "run") {
		path := cfg.Logging.File
		if path == "" {
			path = filepath.Join(os.TempDir(), logFileName)
		}
		e.logFile, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		out = e.logFile
	} else if cfg.Logging.File != "" {
		e.logFile, err = os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		out = e.logFile
	}

	e.logger, err = logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Out:    out,
	})
	return err
}

func (e *env) after(*cli.Context) error {
	if e.logFile != nil {
		return e.logFile.Close()
	}
	return nil
}

// applyFlags copies explicitly set flags over the loaded configuration and
// returns the broker target they name, if any.
func applyFlags(c *cli.Context, cfg *config.Config) Target {
	var target Target

	if c.IsSet(FlagLayout.Name) {
		cfg.Dashboard.LayoutFile = c.String(FlagLayout.Name)
	}
	if c.IsSet(FlagHost.Name) {
		target.Host = c.String(FlagHost.Name)
		cfg.MQTT.Host = target.Host
	}
	if c.IsSet(FlagPort.Name) {
		target.Port = c.Int(FlagPort.Name)
		cfg.MQTT.Port = target.Port
	}
	if c.IsSet(FlagLogLevel.Name) {
		cfg.Logging.Level = c.String(FlagLogLevel.Name)
	}
	if c.IsSet(FlagLogWriter.Name) {
		cfg.Logging.Format = c.String(FlagLogWriter.Name)
	}
	if c.IsSet(FlagWebPort.Name) {
		cfg.Web.Enabled = true
		cfg.Web.Port = c.Int(FlagWebPort.Name)
	}
	if c.Bool(FlagNoTUI.Name) {
		disabled := false
		cfg.TUI.Enabled = &disabled
	}

	return target
}

func (e *env) run(c *cli.Context) error {
	e.logger.Info().Str("version", version).Msg("Starting MQTT dashboard")

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sig)

		select {
		case <-sig:
			e.logger.Warn().Msg("Interrupt signal received")
			cancel()
		case <-ctx.Done():
		}
	}()

	app, err := NewApplication(e.config, e.logger, e.target)
	if err != nil {
		return err
	}
	defer app.Cleanup()

	if err := app.Run(ctx); err != nil {
		return err
	}
	e.logger.Info().Msg("Dashboard stopped")
	return nil
}
