package repository

import (
	"context"
	"time"

	"github.com/jmehdipour/repo-digest/internal/model"
	"github.com/jmoiron/sqlx"
)

// DeliveryLog records outbound chat calls for the reports endpoint.
type DeliveryLog interface {
	Record(ctx context.Context, d model.Delivery) error
	ListByChannel(ctx context.Context, teamID, channelID string, limit, offset int) ([]model.Delivery, error)
}

type chDeliveryLog struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHDeliveryLog(ch *sqlx.DB) DeliveryLog {
	return &chDeliveryLog{ch: ch}
}

// Record inserts one row. ClickHouse only accepts inserts in batch mode over
// database/sql, hence the prepared statement inside a transaction.
func (r *chDeliveryLog) Record(ctx context.Context, d model.Delivery) error {
	tx, err := r.ch.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO repodigest.deliveries
		    (id, team_id, channel_id, repository, op, status, handle, summaries, error, created_at)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	if _, err := stmt.ExecContext(ctx,
		d.ID, d.TeamID, d.ChannelID, d.Repository, d.Op.String(), d.Status.String(),
		d.Handle, uint32(d.Summaries), d.Error, d.CreatedAt,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *chDeliveryLog) ListByChannel(ctx context.Context, teamID, channelID string, limit, offset int) ([]model.Delivery, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT id, team_id, channel_id, repository, op, status, handle, summaries, error, created_at
		FROM repodigest.deliveries
		WHERE team_id = ?
	`
	args := []any{teamID}

	if channelID != "" {
		q += " AND channel_id = ?"
		args = append(args, channelID)
	}

	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []deliveryRow
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	out := make([]model.Delivery, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	return out, nil
}

// deliveryRow matches the ClickHouse column types, which the driver will
// not convert into named string types.
type deliveryRow struct {
	ID         string    `db:"id"`
	TeamID     string    `db:"team_id"`
	ChannelID  string    `db:"channel_id"`
	Repository string    `db:"repository"`
	Op         string    `db:"op"`
	Status     string    `db:"status"`
	Handle     string    `db:"handle"`
	Summaries  uint32    `db:"summaries"`
	Error      string    `db:"error"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r deliveryRow) toModel() model.Delivery {
	return model.Delivery{
		ID:         r.ID,
		TeamID:     r.TeamID,
		ChannelID:  r.ChannelID,
		Repository: r.Repository,
		Op:         model.DeliveryOp(r.Op),
		Status:     model.DeliveryStatus(r.Status),
		Handle:     r.Handle,
		Summaries:  int(r.Summaries),
		Error:      r.Error,
		CreatedAt:  r.CreatedAt,
	}
}

// NopDeliveryLog is used when ClickHouse is disabled.
type NopDeliveryLog struct{}

func (NopDeliveryLog) Record(context.Context, model.Delivery) error { return nil }

func (NopDeliveryLog) ListByChannel(context.Context, string, string, int, int) ([]model.Delivery, error) {
	return nil, nil
}
