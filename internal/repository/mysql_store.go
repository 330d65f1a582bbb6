package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// MySQLStore keeps values in the kv table (see cmd/migrations). An empty
// value is treated as absent so Update can lock a placeholder row first.
type MySQLStore struct {
	db *sqlx.DB
}

func NewMySQLStore(db *sqlx.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

var _ Store = (*MySQLStore)(nil)

func (r *MySQLStore) withTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}
	return t.Commit()
}

func (r *MySQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := r.db.GetContext(ctx, &v, `SELECT v FROM kv WHERE k = ? LIMIT 1`, key)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && len(v) == 0) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (r *MySQLStore) Set(ctx context.Context, key string, value []byte) error {
	const q = `
		INSERT INTO kv (k, v, updated_at)
		VALUES (?, ?, NOW())
		ON DUPLICATE KEY UPDATE v = VALUES(v), updated_at = VALUES(updated_at)
	`
	_, err := r.db.ExecContext(ctx, q, key, value)
	return err
}

// Update makes sure the row exists, locks it, then applies fn in the same
// transaction.
func (r *MySQLStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO kv (k, v, updated_at)
			VALUES (?, '', NOW())
			ON DUPLICATE KEY UPDATE k = k
		`, key); err != nil {
			return err
		}

		var cur []byte
		if err := tx.QueryRowxContext(ctx, `
			SELECT v
			FROM kv
			WHERE k = ?
			FOR UPDATE
		`, key).Scan(&cur); err != nil {
			return err
		}
		if len(cur) == 0 {
			cur = nil
		}

		next, err := fn(cur)
		if err != nil || next == nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE kv
			SET v = ?, updated_at = NOW()
			WHERE k = ?
		`, next, key)
		return err
	})
}
