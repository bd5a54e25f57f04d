package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"escrowline/internal/domain"
	"escrowline/internal/engine/auth"
	"escrowline/internal/events"
)

type OpenDisputeInput struct {
	ContractID string
	UserID     string
	// UserType is optional; when set it must match the caller's side of the contract.
	UserType    domain.Role
	Reason      string
	MilestoneID string
}

type DisputeResult struct {
	ContractID string `json:"contract_id"`
	DisputeID  string `json:"dispute_id"`
}

// OpenDispute records a dispute for administrative handling. Resolution
// happens outside the engine.
func (e Engine) OpenDispute(ctx context.Context, in OpenDisputeInput) (DisputeResult, error) {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return DisputeResult{}, fmt.Errorf("%w: dispute reason is required", domain.ErrInvalidInput)
	}
	var res DisputeResult
	err := e.run(ctx, "open_dispute", func(t *txn) error {
		c, err := t.loadContract(in.ContractID)
		if err != nil {
			return err
		}
		role, err := auth.RequireParty(c, in.UserID, "open a dispute")
		if err != nil {
			return err
		}
		if in.UserType != "" && in.UserType != role {
			return auth.UnauthorizedError{ActorID: in.UserID, Action: "open a dispute", Required: in.UserType}
		}
		if c.Status == domain.ContractCancelled {
			return fmt.Errorf("%w: contract is cancelled", domain.ErrInvalidState)
		}
		if in.MilestoneID != "" {
			if _, _, err := findMilestone(c, in.MilestoneID); err != nil {
				return err
			}
		}
		d := domain.Dispute{
			ID:           uuid.NewString(),
			ContractID:   c.ID,
			MilestoneID:  in.MilestoneID,
			RaisedBy:     in.UserID,
			RaisedByRole: role,
			Reason:       reason,
			Status:       domain.DisputeOpen,
			CreatedAt:    t.ts,
		}
		if err := t.e.Repo.InsertDisputeTx(t.ctx, t.tx, d); err != nil {
			return err
		}
		meta := events.Payload{"dispute_id": d.ID, "contract_status": string(c.Status)}
		if d.MilestoneID != "" {
			meta["milestone_id"] = d.MilestoneID
		}
		if err := t.event(c, domain.EventDisputeOpened, in.UserID, role, reason, meta); err != nil {
			return err
		}
		data := events.Payload{"contract_id": c.ID, "dispute_id": d.ID, "raised_by": in.UserID}
		if err := t.notify(c.Counterparty(role), NotifyDisputeOpened, "Dispute opened",
			fmt.Sprintf("A dispute was opened on %s: %s", c.Title, reason), data); err != nil {
			return err
		}
		if admin := t.e.Config.Platform.AdminRecipient; admin != "" {
			if err := t.notify(admin, NotifyDisputeOpened, "Dispute needs review",
				fmt.Sprintf("The %s opened a dispute on contract %s.", role, c.ID), data); err != nil {
				return err
			}
		}
		res = DisputeResult{ContractID: c.ID, DisputeID: d.ID}
		return nil
	})
	if err != nil {
		return DisputeResult{}, err
	}
	return res, nil
}
