package repo

import (
	"context"
	"database/sql"
	"strings"

	"escrowline/internal/domain"
)

const eventColumns = `id,contract_id,type,actor_id,actor_role,comment,metadata_json,created_at`

// InsertContractEventTx appends to the audit log and returns the assigned id.
func (r Repo) InsertContractEventTx(ctx context.Context, tx *sql.Tx, e domain.ContractEvent) (int64, error) {
	meta, err := marshalMap(e.Metadata)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO contract_events(contract_id,type,actor_id,actor_role,comment,metadata_json,created_at) VALUES (?,?,?,?,?,?,?)`,
		e.ContractID, e.Type, e.ActorID, e.ActorRole, nullable(e.Comment), meta, e.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func scanEvents(rows *sql.Rows) ([]domain.ContractEvent, error) {
	defer rows.Close()
	var res []domain.ContractEvent
	for rows.Next() {
		var e domain.ContractEvent
		var comment, meta sql.NullString
		if err := rows.Scan(&e.ID, &e.ContractID, &e.Type, &e.ActorID, &e.ActorRole, &comment, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Comment = comment.String
		m, err := unmarshalMap(meta)
		if err != nil {
			return nil, err
		}
		e.Metadata = m
		res = append(res, e)
	}
	return res, rows.Err()
}

type EventFilters struct {
	ContractID string
	Type       string
	Limit      int
}

// ListContractEvents returns events in insertion order.
func (r Repo) ListContractEvents(ctx context.Context, f EventFilters) ([]domain.ContractEvent, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.ContractID != "" {
		clauses = append(clauses, "contract_id=?")
		args = append(args, f.ContractID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	query := `SELECT ` + eventColumns + ` FROM contract_events WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.ContractEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+eventColumns+` FROM contract_events WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// LatestEventID returns the most recent event ID.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM contract_events`).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}
