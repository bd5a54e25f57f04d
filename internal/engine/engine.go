package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"escrowline/internal/attachments"
	"escrowline/internal/config"
	"escrowline/internal/db"
	"escrowline/internal/domain"
	"escrowline/internal/events"
	"escrowline/internal/notify"
	"escrowline/internal/repo"
)

type Engine struct {
	DB          *sql.DB
	Repo        repo.Repo
	Events      events.Writer
	Config      *config.Config
	Attachments attachments.Store
	Publisher   notify.Publisher
	Metrics     *Metrics
	Log         zerolog.Logger
	Now         func() time.Time
}

func New(conn *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	r := repo.Repo{DB: conn}
	e := Engine{
		DB:        conn,
		Repo:      r,
		Config:    cfg,
		Publisher: notify.Nop{},
		Log:       zerolog.Nop(),
		Now:       time.Now,
	}
	e.Events = events.Writer{Repo: r, Now: e.now}
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) maxAttempts() int {
	if e.Config == nil || e.Config.Engine.MaxTxAttempts < 1 {
		return 5
	}
	return e.Config.Engine.MaxTxAttempts
}

// txn carries one attempt of an operation. Notifications are queued here and
// published only once the transaction has committed.
type txn struct {
	ctx     context.Context
	tx      *sql.Tx
	e       Engine
	ts      string
	pending []domain.Notification
	events  []domain.ContractEvent
	after   []func()
}

func (t *txn) afterCommit(fn func()) {
	t.after = append(t.after, fn)
}

func (t *txn) event(c domain.Contract, typ, actorID string, role domain.Role, comment string, meta events.Payload) error {
	evt, err := t.e.Events.Append(t.ctx, t.tx, domain.ContractEvent{
		ContractID: c.ID,
		Type:       typ,
		ActorID:    actorID,
		ActorRole:  role,
		Comment:    comment,
		Metadata:   meta,
		CreatedAt:  t.ts,
	})
	if err != nil {
		return err
	}
	t.events = append(t.events, evt)
	return nil
}

func (t *txn) notify(recipient, typ, title, message string, data events.Payload) error {
	n, err := t.e.Events.Notify(t.ctx, t.tx, domain.Notification{
		RecipientID: recipient,
		Type:        typ,
		Title:       title,
		Message:     message,
		Data:        data,
		CreatedAt:   t.ts,
	})
	if err != nil {
		return err
	}
	t.pending = append(t.pending, n)
	return nil
}

// saveContract stamps and writes c under its optimistic version check.
func (t *txn) saveContract(c *domain.Contract) error {
	c.UpdatedAt = t.ts
	if err := t.e.Repo.UpdateContractTx(t.ctx, t.tx, *c); err != nil {
		return err
	}
	c.Version++
	return nil
}

// loadContract reads the contract inside the transaction.
func (t *txn) loadContract(id string) (domain.Contract, error) {
	c, err := t.e.Repo.GetContractTx(t.ctx, t.tx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return c, fmt.Errorf("%w: contract %s", domain.ErrNotFound, id)
		}
		return c, err
	}
	return c, nil
}

// run executes fn as one all-or-nothing transaction, retrying on store
// conflicts. Business errors come back unchanged; anything else is reported
// as an infrastructure failure.
func (e Engine) run(ctx context.Context, op string, fn func(t *txn) error) error {
	start := time.Now()
	var committed *txn
	retries, err := db.RunTx(ctx, e.DB, e.maxAttempts(), func(tx *sql.Tx) error {
		t := &txn{ctx: ctx, tx: tx, e: e, ts: e.now().UTC().Format(time.RFC3339)}
		if err := fn(t); err != nil {
			return err
		}
		committed = t
		return nil
	})
	e.Metrics.observe(op, err, retries, time.Since(start))
	if retries > 0 {
		e.Log.Warn().Str("op", op).Int("retries", retries).Msg("engine: transaction retried")
	}
	if err != nil {
		if domain.IsBusinessError(err) {
			e.Log.Debug().Str("op", op).Err(err).Msg("engine: rejected")
			return err
		}
		e.Log.Warn().Str("op", op).Err(err).Msg("engine: transaction failed")
		return fmt.Errorf("%w: %s: %w", domain.ErrInfrastructure, op, err)
	}
	for _, evt := range committed.events {
		e.Log.Debug().Str("op", op).Str("contract_id", evt.ContractID).Str("event", evt.Type).Int64("event_id", evt.ID).Msg("engine: committed")
	}
	for _, fn := range committed.after {
		fn()
	}
	if e.Publisher != nil {
		for _, n := range committed.pending {
			e.Publisher.Publish(ctx, n)
		}
	}
	return nil
}
