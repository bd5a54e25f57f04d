package events

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"escrowline/internal/domain"
	"escrowline/internal/repo"
)

// Writer appends audit events and notifications inside a caller's transaction.
type Writer struct {
	Repo repo.Repo
	Now  func() time.Time
}

type Payload map[string]any

func (w Writer) now() string {
	if w.Now == nil {
		w.Now = time.Now
	}
	return w.Now().UTC().Format(time.RFC3339)
}

// Append records evt for its contract and returns the stored event with id and
// timestamp filled in.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evt domain.ContractEvent) (domain.ContractEvent, error) {
	if evt.ContractID == "" || evt.Type == "" {
		return evt, fmt.Errorf("event requires contract id and type")
	}
	if evt.CreatedAt == "" {
		evt.CreatedAt = w.now()
	}
	id, err := w.Repo.InsertContractEventTx(ctx, tx, evt)
	if err != nil {
		return evt, fmt.Errorf("append %s event: %w", evt.Type, err)
	}
	evt.ID = id
	return evt, nil
}

// Notify stores an unread notification for n.RecipientID.
func (w Writer) Notify(ctx context.Context, tx *sql.Tx, n domain.Notification) (domain.Notification, error) {
	if n.RecipientID == "" {
		return n, fmt.Errorf("notification %s has no recipient", n.Type)
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt == "" {
		n.CreatedAt = w.now()
	}
	n.IsRead = false
	if err := w.Repo.InsertNotificationTx(ctx, tx, n); err != nil {
		return n, fmt.Errorf("store %s notification: %w", n.Type, err)
	}
	return n, nil
}
