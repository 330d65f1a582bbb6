package db

import (
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmehdipour/repo-digest/internal/config"
	"github.com/jmoiron/sqlx"
)

// NewMySQLConnection opens the database backing the "mysql" store driver.
func NewMySQLConnection(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	return open("mysql", cfg, 5*time.Second)
}
