package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/aegisshield/compliance-tracker/internal/app"
	"github.com/aegisshield/compliance-tracker/internal/audit"
	"github.com/aegisshield/compliance-tracker/internal/catalog"
	"github.com/aegisshield/compliance-tracker/internal/config"
	"github.com/aegisshield/compliance-tracker/internal/scheduler"
	"github.com/aegisshield/compliance-tracker/internal/store/pgstore"
)

// version is set at build time via -ldflags "-X main.version=x.y.z"
var version = "dev"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "compliance-tracker",
		Short:         "Track regulatory compliance and analyze gaps",
		Version:       version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (defaults and COMPLIANCE_* env when empty)")

	root.AddCommand(
		serveCmd(&configPath),
		migrateCmd(&configPath),
		scanCmd(&configPath),
		frameworksCmd(&configPath),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger
func setup(configPath string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := cfg.InitLogger()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled risk scan",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()

			logger.Info("Starting Compliance Tracker",
				zap.String("version", version),
				zap.String("environment", cfg.Server.Environment),
				zap.String("store", cfg.Store.Backend))

			application := fx.New(
				app.Server(cfg, logger),
				fx.StopTimeout(cfg.Server.ShutdownTimeout),
			)
			if err := application.Err(); err != nil {
				return err
			}
			application.Run()
			return nil
		},
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations for the document store and audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()

			pg, err := pgstore.Open(cmd.Context(), pgstore.Config{DSN: cfg.GetDatabaseDSN()}, logger)
			if err != nil {
				return err
			}
			defer pg.Close()

			if down {
				return pgstore.Rollback(pg.DB().DB, logger)
			}
			if err := pgstore.Migrate(pg.DB().DB, logger); err != nil {
				return err
			}

			if cfg.Audit.Enabled {
				db, err := audit.Open(cfg.GetDatabaseDSN())
				if err != nil {
					return err
				}
				if sqlDB, err := db.DB(); err == nil {
					defer sqlDB.Close()
				}
				if err := audit.NewLogger(db, logger).AutoMigrate(); err != nil {
					return err
				}
			}
			logger.Info("Migrations complete")
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "Roll back all document store migrations")
	return cmd
}

func scanCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run the high-risk scan once and publish its findings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()

			// the cron loop stays idle; only the store and sinks are started
			cfg.Scan.Enabled = false

			var sched *scheduler.Scheduler
			application := fx.New(app.Core(cfg, logger), fx.Populate(&sched))
			if err := application.Err(); err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := application.Start(ctx); err != nil {
				return err
			}
			defer application.Stop(context.Background())

			n, err := sched.RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d finding(s) published\n", n)
			return nil
		},
	}
}

func frameworksCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "frameworks",
		Short: "Inspect the framework catalog",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print the built-in and configured frameworks as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()

			c := catalog.New(catalog.WithBuiltins(), catalog.WithLogger(logger))
			if path := cfg.Catalog.FrameworksFile; path != "" {
				if _, err := c.LoadFile(path); err != nil {
					return err
				}
			}

			type summary struct {
				ID           string `json:"id"`
				Name         string `json:"name"`
				Category     string `json:"category"`
				Requirements int    `json:"requirements"`
				Deadlines    int    `json:"deadlines"`
			}
			out := make([]summary, 0, c.Len())
			for _, f := range c.All() {
				out = append(out, summary{
					ID:           f.ID,
					Name:         f.Name,
					Category:     f.Category,
					Requirements: len(f.Requirements),
					Deadlines:    len(f.Deadlines),
				})
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	})
	return cmd
}
