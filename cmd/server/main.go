package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/projectchat-server/internal/app"
	"github.com/vovakirdan/projectchat-server/internal/config"
	applog "github.com/vovakirdan/projectchat-server/internal/log"
)

type rootOptions struct {
	configPath string
	addr       string
	logLevel   string
	dbDriver   string
	dbDSN      string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "projectchat-server",
		Short:         "Realtime project chat server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config.yaml")
	flags.StringVar(&opts.addr, "addr", "", "HTTP listen address")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.dbDriver, "db-driver", "", "database driver (sqlite, postgres)")
	flags.StringVar(&opts.dbDSN, "db-dsn", "", "database DSN or sqlite path")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP and websocket server",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context(), opts)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply the database schema",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runMigrate(cmd.Context(), opts)
			},
		},
		newSeedCmd(opts),
	)

	return root
}

func newSeedCmd(opts *rootOptions) *cobra.Command {
	var projectName string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create demo users and a project, and print their tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			st, err := app.OpenStore(&cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Migrate(ctx); err != nil {
				return err
			}

			result, err := app.Seed(ctx, st, app.JWTConfig(&cfg), projectName, app.DefaultSeedUsers)
			if err != nil {
				return err
			}

			logger.Info().Str("project_id", result.Project.ID).Msg("seed complete")
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "project %s %q\n", result.Project.ID, result.Project.Name)
			for _, u := range result.Users {
				fmt.Fprintf(out, "%s\t%s\t%s\n", u.User.ID, u.User.Email, u.Token)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&projectName, "project", "Website Redesign", "name of the demo project")
	return cmd
}

func loadConfig(opts *rootOptions) (config.Config, *zerolog.Logger, error) {
	bootLogger := applog.New("info", "console")

	cfg, path, err := config.Load(bootLogger, opts.configPath)
	if err != nil {
		bootLogger.Error().Err(err).Str("path", path).Msg("failed to load config")
		return cfg, nil, err
	}

	cfg.UpdateFrom(config.Config{
		Addr:     opts.addr,
		LogLevel: opts.logLevel,
		Database: config.DatabaseConfig{Driver: opts.dbDriver, DSN: opts.dbDSN},
	})

	logger := applog.New(cfg.LogLevel, cfg.LogFormat)
	logger.Debug().Str("path", path).Msg("config loaded")
	return cfg, logger, nil
}

func runServe(ctx context.Context, opts *rootOptions) error {
	cfg, logger, err := loadConfig(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, &cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize app")
		return err
	}

	logger.Info().Str("addr", cfg.Addr).Msg("starting projectchat server")
	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func runMigrate(ctx context.Context, opts *rootOptions) error {
	cfg, logger, err := loadConfig(opts)
	if err != nil {
		return err
	}

	st, err := app.OpenStore(&cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		logger.Error().Err(err).Msg("migration failed")
		return err
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("schema up to date")
	return nil
}
