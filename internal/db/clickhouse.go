package db

import (
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jmehdipour/repo-digest/internal/config"
	"github.com/jmoiron/sqlx"
)

// NewClickHouseConnection opens the delivery log database. The DSN looks
// like clickhouse://default:@localhost:9000/repodigest?dial_timeout=5s
func NewClickHouseConnection(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	return open("clickhouse", cfg, 3*time.Second)
}
