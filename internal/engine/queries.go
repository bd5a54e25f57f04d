package engine

import (
	"context"
	"fmt"

	"escrowline/internal/domain"
	"escrowline/internal/engine/auth"
	"escrowline/internal/repo"
)

// Read operations. They run outside transactions and never write.

func (e Engine) GetContract(ctx context.Context, id string) (domain.Contract, error) {
	c, err := e.Repo.GetContract(ctx, id)
	if err != nil {
		return c, e.readErr("get_contract", err)
	}
	return c, nil
}

func (e Engine) ListContracts(ctx context.Context, f repo.ContractFilters) ([]domain.Contract, error) {
	cs, err := e.Repo.ListContracts(ctx, f)
	if err != nil {
		return nil, e.readErr("list_contracts", err)
	}
	return cs, nil
}

// ListPayments returns the contract's payments to either party.
func (e Engine) ListPayments(ctx context.Context, contractID, actorID string) ([]domain.Payment, error) {
	if _, err := e.partyOf(ctx, contractID, actorID, "view payments"); err != nil {
		return nil, err
	}
	ps, err := e.Repo.ListPayments(ctx, contractID)
	if err != nil {
		return nil, e.readErr("list_payments", err)
	}
	return ps, nil
}

func (e Engine) ListContractEvents(ctx context.Context, contractID, actorID string) ([]domain.ContractEvent, error) {
	if _, err := e.partyOf(ctx, contractID, actorID, "view the contract history"); err != nil {
		return nil, err
	}
	evts, err := e.Repo.ListContractEvents(ctx, repo.EventFilters{ContractID: contractID})
	if err != nil {
		return nil, e.readErr("list_events", err)
	}
	return evts, nil
}

func (e Engine) ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	if recipientID == "" {
		return nil, fmt.Errorf("%w: recipient is required", domain.ErrInvalidInput)
	}
	ns, err := e.Repo.ListNotifications(ctx, repo.NotificationFilters{RecipientID: recipientID, UnreadOnly: unreadOnly, Limit: limit})
	if err != nil {
		return nil, e.readErr("list_notifications", err)
	}
	return ns, nil
}

// MarkNotificationRead is the recipient's read action; it is the only write
// to notifications after creation.
func (e Engine) MarkNotificationRead(ctx context.Context, recipientID, notificationID string) error {
	if err := e.Repo.MarkNotificationRead(ctx, notificationID, recipientID); err != nil {
		return e.readErr("mark_notification_read", err)
	}
	return nil
}

func (e Engine) ListDisputes(ctx context.Context, contractID, actorID string) ([]domain.Dispute, error) {
	if _, err := e.partyOf(ctx, contractID, actorID, "view disputes"); err != nil {
		return nil, err
	}
	ds, err := e.Repo.ListDisputes(ctx, repo.DisputeFilters{ContractID: contractID})
	if err != nil {
		return nil, e.readErr("list_disputes", err)
	}
	return ds, nil
}

func (e Engine) partyOf(ctx context.Context, contractID, actorID, action string) (domain.Role, error) {
	c, err := e.GetContract(ctx, contractID)
	if err != nil {
		return "", err
	}
	return auth.RequireParty(c, actorID, action)
}

func (e Engine) readErr(op string, err error) error {
	if domain.IsBusinessError(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrInfrastructure, op, err)
}
