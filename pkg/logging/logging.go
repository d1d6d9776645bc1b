// Package logging builds the zerolog logger shared by every component.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

const ServiceName = "mqtt-dashboard"

type Options struct {
	Level  string
	Format string // console or json
	Out    io.Writer
}

// New returns the root logger. Components derive their own with Module.
func New(opts Options) (zerolog.Logger, error) {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	var writer io.Writer
	switch opts.Format {
	case "", "console":
		writer = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    out != os.Stderr,
		}
	case "json":
		writer = out
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format: %s", opts.Format)
	}

	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return zerolog.Nop(), err
		}
		level = parsed
	}

	return zerolog.New(writer).Level(level).With().Timestamp().
		Str("service", ServiceName).
		Str("module", "main").
		Logger(), nil
}

// Module returns a child logger tagged with the component name.
func Module(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("module", name).Logger()
}
