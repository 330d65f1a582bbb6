package cmd

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"github.com/jmehdipour/repo-digest/internal/config"
	"github.com/jmehdipour/repo-digest/internal/db"
	"github.com/jmehdipour/repo-digest/internal/logger"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the MySQL kv table and the ClickHouse delivery log (idempotent)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		ran := 0
		if cfg.Store.Driver == config.StoreMySQL {
			sqlDB, err := db.NewMySQLConnection(cfg.MySQL)
			if err != nil {
				return fmt.Errorf("open mysql: %w", err)
			}
			defer sqlDB.Close()
			if err := applyMigration(ctx, sqlDB, "migrations/001_kv.mysql.sql"); err != nil {
				return err
			}
			ran++
		}

		if cfg.ClickHouse.Enabled {
			chDB, err := db.NewClickHouseConnection(cfg.ClickHouse.DatabaseConfig)
			if err != nil {
				return fmt.Errorf("open clickhouse: %w", err)
			}
			defer chDB.Close()
			if err := applyMigration(ctx, chDB, "migrations/001_deliveries.clickhouse.sql"); err != nil {
				return err
			}
			ran++
		}

		if ran == 0 {
			fmt.Println(">> Nothing to migrate (store.driver is not mysql, clickhouse disabled)")
			return nil
		}
		fmt.Println(">> Migration complete ✅")
		return nil
	},
}

func applyMigration(ctx context.Context, conn *sqlx.DB, name string) error {
	b, err := migrations.ReadFile(name)
	if err != nil {
		return fmt.Errorf("read migration file %s: %w", name, err)
	}
	for _, stmt := range statements(string(b)) {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %s: %w", name, err)
		}
	}
	logger.Log.Info("migration applied", zap.String("file", name))
	return nil
}

// statements splits a migration file on ';'. The files hold DDL only, so
// there are no literals that could contain one.
func statements(script string) []string {
	var out []string
	for _, s := range strings.Split(script, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
