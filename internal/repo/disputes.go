package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"escrowline/internal/domain"
)

const disputeColumns = `id,contract_id,milestone_id,raised_by,raised_by_role,reason,status,resolution,admin_notes,created_at,resolved_at`

func scanDispute(row scanner) (domain.Dispute, error) {
	var d domain.Dispute
	var milestoneID, resolution, adminNotes, resolvedAt sql.NullString
	err := row.Scan(&d.ID, &d.ContractID, &milestoneID, &d.RaisedBy, &d.RaisedByRole, &d.Reason, &d.Status,
		&resolution, &adminNotes, &d.CreatedAt, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	d.MilestoneID = milestoneID.String
	d.Resolution = resolution.String
	d.AdminNotes = adminNotes.String
	d.ResolvedAt = stringPtr(resolvedAt)
	return d, nil
}

func (r Repo) InsertDisputeTx(ctx context.Context, tx *sql.Tx, d domain.Dispute) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO disputes(`+disputeColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.ContractID, nullable(d.MilestoneID), d.RaisedBy, d.RaisedByRole, d.Reason, d.Status,
		nullable(d.Resolution), nullable(d.AdminNotes), d.CreatedAt, nullableStringPtr(d.ResolvedAt))
	return err
}

func (r Repo) GetDispute(ctx context.Context, id string) (domain.Dispute, error) {
	return scanDispute(r.DB.QueryRowContext(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id=?`, id))
}

type DisputeFilters struct {
	ContractID string
	Status     string
}

func (r Repo) ListDisputes(ctx context.Context, f DisputeFilters) ([]domain.Dispute, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.ContractID != "" {
		clauses = append(clauses, "contract_id=?")
		args = append(args, f.ContractID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE `+strings.Join(clauses, " AND ")+` ORDER BY created_at ASC, id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}
