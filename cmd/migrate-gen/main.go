package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/denwilliams/go-mqtt-dashboard/pkg/logging"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/migration"
)

func main() {
	app := &cli.App{
		Name:  "migrate-gen",
		Usage: "render migration templates into per-database SQL",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "dir",
				Value: "pkg/store/migrations",
				Usage: "directory containing migration templates",
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "database type (sqlite, postgres); empty generates every type",
			},
			&cli.StringFlag{
				Name:  "template",
				Usage: "single template file to process; empty processes every template",
			},
		},
		Action: generate,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func generate(c *cli.Context) error {
	logger, err := logging.New(logging.Options{Level: "info"})
	if err != nil {
		return err
	}
	logger = logging.Module(logger, "migrate-gen")

	templateFile := c.String("template")
	dbType := c.String("db")

	if templateFile == "" {
		written, err := migration.GenerateAll(c.String("dir"))
		if err != nil {
			return fmt.Errorf("failed to generate migrations: %w", err)
		}
		logWritten(logger, written)
		return nil
	}

	types := migration.DatabaseTypes()
	if dbType != "" {
		types = []string{dbType}
	}

	var written []string
	for _, t := range types {
		path, err := migration.Generate(templateFile, t)
		if err != nil {
			return fmt.Errorf("failed to process template: %w", err)
		}
		written = append(written, path)
	}
	logWritten(logger, written)
	return nil
}

func logWritten(logger zerolog.Logger, written []string) {
	for _, path := range written {
		logger.Info().Str("path", path).Msg("Generated migration")
	}
	logger.Info().Int("count", len(written)).Msg("Migrations up to date")
}
