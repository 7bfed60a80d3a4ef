package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"solana-autolink/internal/config"
	"solana-autolink/internal/storage/migrations"
	pgstore "solana-autolink/internal/storage/postgres"
)

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply embedded PostgreSQL and ClickHouse migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.Storage.Backend != config.BackendPostgres {
				return fmt.Errorf("migrate requires storage.backend=%s", config.BackendPostgres)
			}

			logger, err := c.cfg.Log.Build()
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			pool, err := pgstore.NewPool(ctx, c.cfg.Storage.PostgresDSN)
			if err != nil {
				return fmt.Errorf("connect to postgres: %w", err)
			}
			defer pool.Close()

			applied, err := migrations.RunPostgresMigrations(ctx, pool, logger.Named("migrate"))
			if err != nil {
				return err
			}
			logger.Info("postgres migrations applied", zap.Int("files", len(applied)))

			if c.cfg.Storage.ClickHouseDSN != "" {
				conn, err := migrations.RunClickhouseMigrations(ctx, c.cfg.Storage.ClickHouseDSN, logger.Named("migrate"))
				if err != nil {
					return err
				}
				conn.Close()
				logger.Info("clickhouse migrations applied")
			}
			return nil
		},
	}
}
