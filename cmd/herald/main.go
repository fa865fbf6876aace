package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/heraldhq/herald/internal/app"
	"github.com/heraldhq/herald/internal/config"
	"github.com/heraldhq/herald/internal/logging"
	"github.com/heraldhq/herald/internal/migrator"
	"github.com/heraldhq/herald/internal/version"
)

func main() {
	cmd := &cli.Command{
		Name:    "herald",
		Usage:   "Birthday and anniversary greeting delivery service",
		Version: version.Version(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
				Sources: cli.EnvVars("CONFIG"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the schedulers and the user API",
				Action: func(ctx context.Context, c *cli.Command) error {
					return serve(ctx, c.String("config"))
				},
			},
			{
				Name:  "migrate",
				Usage: "Manage the database schema",
				Commands: []*cli.Command{
					{
						Name:  "up",
						Usage: "Apply all pending migrations",
						Action: func(ctx context.Context, c *cli.Command) error {
							return withMigrator(c.String("config"), func(m *migrator.Migrator) error {
								applied, err := m.Up()
								if err != nil {
									return err
								}
								fmt.Printf("applied %d migration(s)\n", applied)
								return nil
							})
						},
					},
					{
						Name:  "down",
						Usage: "Roll back the most recent migration",
						Action: func(ctx context.Context, c *cli.Command) error {
							return withMigrator(c.String("config"), (*migrator.Migrator).Down)
						},
					},
					{
						Name:  "version",
						Usage: "Print the current schema version",
						Action: func(ctx context.Context, c *cli.Command) error {
							return withMigrator(c.String("config"), func(m *migrator.Migrator) error {
								v, err := m.Version()
								if err != nil {
									return err
								}
								fmt.Printf("schema version: %d\n", v)
								return nil
							})
						},
					},
				},
			},
			{
				Name:  "seed",
				Usage: "Insert fake users for local development",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "count",
						Usage: "Number of users to create",
						Value: 25,
					},
					&cli.BoolFlag{
						Name:  "today",
						Usage: "Give every seeded user a birthday on today's civil date",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return seed(ctx, c.String("config"), int(c.Int("count")), c.Bool("today"))
				},
			},
		},
		// Bare invocation serves; matches how the container image runs it.
		Action: func(ctx context.Context, c *cli.Command) error {
			return serve(ctx, c.String("config"))
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := config.Parse(config.ParseOptions{YAMLPath: configPath})
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(logging.WithLogLevel(cfg.LogLevel))
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	return app.New(cfg, logger).Run(ctx)
}

func withMigrator(configPath string, fn func(*migrator.Migrator) error) error {
	cfg, err := config.Parse(config.ParseOptions{YAMLPath: configPath})
	if err != nil {
		return err
	}
	m, err := migrator.New(cfg.PostgresURL)
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}
