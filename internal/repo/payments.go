package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"escrowline/internal/domain"
)

const paymentColumns = `id,contract_id,milestone_id,client_id,freelancer_id,gross,fee,net,currency,status,method_json,release_condition,held_at,released_at,created_at,updated_at`

func scanPayment(row scanner) (domain.Payment, error) {
	var p domain.Payment
	var methodJSON string
	var releaseCondition, heldAt, releasedAt sql.NullString
	err := row.Scan(&p.ID, &p.ContractID, &p.MilestoneID, &p.ClientID, &p.FreelancerID,
		&p.Amount.Gross, &p.Amount.Fee, &p.Amount.Net, &p.Amount.Currency, &p.Status, &methodJSON,
		&releaseCondition, &heldAt, &releasedAt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal([]byte(methodJSON), &p.Method); err != nil {
		return p, err
	}
	p.Escrow.ReleaseCondition = releaseCondition.String
	p.Escrow.HeldAt = stringPtr(heldAt)
	p.Escrow.ReleasedAt = stringPtr(releasedAt)
	return p, nil
}

// UpsertPaymentTx writes the payment for its (contract, milestone) pair. An
// existing row keeps its id and created_at; every other column is replaced.
func (r Repo) UpsertPaymentTx(ctx context.Context, tx *sql.Tx, p domain.Payment) error {
	method, err := json.Marshal(p.Method)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO payments(`+paymentColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(contract_id, milestone_id) DO UPDATE SET
  client_id=excluded.client_id, freelancer_id=excluded.freelancer_id,
  gross=excluded.gross, fee=excluded.fee, net=excluded.net, currency=excluded.currency,
  status=excluded.status, method_json=excluded.method_json, release_condition=excluded.release_condition,
  held_at=excluded.held_at, released_at=excluded.released_at, updated_at=excluded.updated_at`,
		p.ID, p.ContractID, p.MilestoneID, p.ClientID, p.FreelancerID,
		p.Amount.Gross, p.Amount.Fee, p.Amount.Net, p.Amount.Currency, p.Status, string(method),
		nullable(p.Escrow.ReleaseCondition), nullableStringPtr(p.Escrow.HeldAt), nullableStringPtr(p.Escrow.ReleasedAt),
		p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetPayment(ctx context.Context, id string) (domain.Payment, error) {
	return scanPayment(r.DB.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=?`, id))
}

func (r Repo) GetPaymentForMilestoneTx(ctx context.Context, tx *sql.Tx, contractID, milestoneID string) (domain.Payment, error) {
	return scanPayment(tx.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE contract_id=? AND milestone_id=?`, contractID, milestoneID))
}

func (r Repo) ListPayments(ctx context.Context, contractID string) ([]domain.Payment, error) {
	return listPayments(ctx, r.DB, contractID)
}

func (r Repo) ListPaymentsTx(ctx context.Context, tx *sql.Tx, contractID string) ([]domain.Payment, error) {
	return listPayments(ctx, tx, contractID)
}

func listPayments(ctx context.Context, q querier, contractID string) ([]domain.Payment, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE contract_id=? ORDER BY created_at ASC, id ASC`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
