package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"escrowline/internal/domain"
)

const contractColumns = `id,project_id,proposal_id,client_id,freelancer_id,title,amount,currency,payment_type,start_date,end_date,weekly_hour_limit,milestones_json,status,progress,reported_progress,time_tracking_json,version,created_at,updated_at,accepted_at,completed_at`

func scanContract(row scanner) (domain.Contract, error) {
	var c domain.Contract
	var proposalID, startDate, endDate, acceptedAt, completedAt sql.NullString
	var weekly sql.NullInt64
	var milestonesJSON, trackingJSON string
	err := row.Scan(&c.ID, &c.ProjectID, &proposalID, &c.ClientID, &c.FreelancerID, &c.Title,
		&c.Terms.Amount, &c.Terms.Currency, &c.Terms.PaymentType, &startDate, &endDate, &weekly,
		&milestonesJSON, &c.Status, &c.Progress, &c.ReportedProgress, &trackingJSON, &c.Version,
		&c.CreatedAt, &c.UpdatedAt, &acceptedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.ProposalID = proposalID.String
	c.Terms.StartDate = startDate.String
	c.Terms.EndDate = endDate.String
	if weekly.Valid {
		w := int(weekly.Int64)
		c.Terms.WeeklyHourLimit = &w
	}
	c.AcceptedAt = stringPtr(acceptedAt)
	c.CompletedAt = stringPtr(completedAt)
	if err := json.Unmarshal([]byte(milestonesJSON), &c.Milestones); err != nil {
		return c, fmt.Errorf("decode milestones for %s: %w", c.ID, err)
	}
	if trackingJSON != "" {
		if err := json.Unmarshal([]byte(trackingJSON), &c.TimeTracking); err != nil {
			return c, fmt.Errorf("decode time tracking for %s: %w", c.ID, err)
		}
	}
	return c, nil
}

func encodeContract(c domain.Contract) (string, string, error) {
	ms := c.Milestones
	if ms == nil {
		ms = []domain.Milestone{}
	}
	milestones, err := json.Marshal(ms)
	if err != nil {
		return "", "", err
	}
	tracking, err := json.Marshal(c.TimeTracking)
	if err != nil {
		return "", "", err
	}
	return string(milestones), string(tracking), nil
}

func (r Repo) InsertContractTx(ctx context.Context, tx *sql.Tx, c domain.Contract) error {
	milestones, tracking, err := encodeContract(c)
	if err != nil {
		return err
	}
	if c.Version == 0 {
		c.Version = 1
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO contracts(`+contractColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.ProjectID, nullable(c.ProposalID), c.ClientID, c.FreelancerID, c.Title,
		c.Terms.Amount, c.Terms.Currency, c.Terms.PaymentType, nullable(c.Terms.StartDate), nullable(c.Terms.EndDate), nullableIntPtr(c.Terms.WeeklyHourLimit),
		milestones, c.Status, c.Progress, c.ReportedProgress, tracking, c.Version,
		c.CreatedAt, c.UpdatedAt, nullableStringPtr(c.AcceptedAt), nullableStringPtr(c.CompletedAt))
	return err
}

// UpdateContractTx writes the full contract row if its stored version still
// equals c.Version, then bumps the version. A lost race yields domain.ErrConflict.
func (r Repo) UpdateContractTx(ctx context.Context, tx *sql.Tx, c domain.Contract) error {
	milestones, tracking, err := encodeContract(c)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE contracts SET title=?, amount=?, currency=?, payment_type=?, start_date=?, end_date=?, weekly_hour_limit=?,
milestones_json=?, status=?, progress=?, reported_progress=?, time_tracking_json=?, version=version+1, updated_at=?, accepted_at=?, completed_at=?
WHERE id=? AND version=?`,
		c.Title, c.Terms.Amount, c.Terms.Currency, c.Terms.PaymentType, nullable(c.Terms.StartDate), nullable(c.Terms.EndDate), nullableIntPtr(c.Terms.WeeklyHourLimit),
		milestones, c.Status, c.Progress, c.ReportedProgress, tracking, c.UpdatedAt, nullableStringPtr(c.AcceptedAt), nullableStringPtr(c.CompletedAt),
		c.ID, c.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: contract %s changed since version %d", domain.ErrConflict, c.ID, c.Version)
	}
	return nil
}

func (r Repo) GetContract(ctx context.Context, id string) (domain.Contract, error) {
	return getContract(ctx, r.DB, id)
}

func (r Repo) GetContractTx(ctx context.Context, tx *sql.Tx, id string) (domain.Contract, error) {
	return getContract(ctx, tx, id)
}

func getContract(ctx context.Context, q querier, id string) (domain.Contract, error) {
	return scanContract(q.QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id=?`, id))
}

type ContractFilters struct {
	PartyID   string
	ProjectID string
	Status    string
	Limit     int
}

func (r Repo) ListContracts(ctx context.Context, f ContractFilters) ([]domain.Contract, error) {
	var clauses []string
	var args []any
	if f.PartyID != "" {
		clauses = append(clauses, "(client_id=? OR freelancer_id=?)")
		args = append(args, f.PartyID, f.PartyID)
	}
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + contractColumns + ` FROM contracts ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
