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

// Notification types delivered to parties.
const (
	NotifyContractOffer       = "contract_offer"
	NotifyFundingRequired     = "funding_required"
	NotifyContractRejected    = "contract_rejected"
	NotifyRevisionRequested   = "contract_revision_requested"
	NotifyContractResubmitted = "contract_resubmitted"
	NotifyMilestoneFunded     = "milestone_funded"
	NotifyPaymentConfirmed    = "payment_confirmed"
	NotifyReviewRequired      = "milestone_review_required"
	NotifyPaymentReleased     = "payment_released"
	NotifyMilestoneCompleted  = "milestone_completed"
	NotifyMilestoneRevision   = "milestone_revision_requested"
	NotifyContractCompleted   = "contract_completed"
	NotifyDisputeOpened       = "dispute_opened"
)

type CreateContractInput struct {
	ProjectID    string
	ProposalID   string
	ClientID     string
	FreelancerID string
	Title        string
	Terms        domain.Terms
	Milestones   []domain.Milestone
	TimeTracking domain.TimeTracking
	Method       domain.PaymentMethod
}

type CreateContractResult struct {
	ContractID string `json:"contract_id"`
	PaymentID  string `json:"payment_id"`
}

// ContractResult is returned by transitions that only touch the contract row.
type ContractResult struct {
	ContractID string `json:"contract_id"`
}

// DecisionInput is the freelancer's answer to a pending offer.
type DecisionInput struct {
	ContractID   string
	FreelancerID string
	Comment      string
}

func freshMilestones(in []domain.Milestone) []domain.Milestone {
	ms := domain.CloneMilestones(in)
	for i := range ms {
		if strings.TrimSpace(ms[i].ID) == "" {
			ms[i].ID = uuid.NewString()
		}
		ms[i].Status = domain.MilestonePending
		ms[i].FundedAt = nil
		ms[i].SubmittedAt = nil
		ms[i].ApprovedAt = nil
		ms[i].Submission = nil
		ms[i].RevisionNotes = ""
		ms[i].RevisionRequestedAt = nil
	}
	return ms
}

func methodMeta(pm domain.PaymentMethod) events.Payload {
	rec := domain.RecordOf(pm)
	meta := events.Payload{"type": string(rec.Type)}
	switch {
	case rec.Last4 != "":
		meta["last4"] = rec.Last4
	case rec.PhoneNumber != "":
		meta["phone_number"] = rec.PhoneNumber
	}
	return meta
}

// CreateContract stores a new offer together with the pending payment for its
// first milestone.
func (e Engine) CreateContract(ctx context.Context, in CreateContractInput) (CreateContractResult, error) {
	if in.Method == nil {
		return CreateContractResult{}, fmt.Errorf("%w: payment method is required", domain.ErrInvalidInput)
	}
	if err := in.Method.Validate(); err != nil {
		return CreateContractResult{}, err
	}
	c := domain.Contract{
		ID:           uuid.NewString(),
		ProjectID:    strings.TrimSpace(in.ProjectID),
		ProposalID:   in.ProposalID,
		ClientID:     strings.TrimSpace(in.ClientID),
		FreelancerID: strings.TrimSpace(in.FreelancerID),
		Title:        strings.TrimSpace(in.Title),
		Terms:        in.Terms,
		Milestones:   freshMilestones(in.Milestones),
		Status:       domain.ContractPendingAcceptance,
		TimeTracking: in.TimeTracking,
		Version:      1,
	}
	c.RecomputeAmount()
	if c.Title == "" {
		return CreateContractResult{}, fmt.Errorf("%w: title is required", domain.ErrInvalidInput)
	}
	if err := c.ValidateStructure(e.Config.Platform.Currencies); err != nil {
		return CreateContractResult{}, err
	}

	var res CreateContractResult
	err := e.run(ctx, "create_contract", func(t *txn) error {
		c.CreatedAt, c.UpdatedAt = t.ts, t.ts
		if err := t.e.Repo.InsertContractTx(t.ctx, t.tx, c); err != nil {
			return err
		}
		first := c.Milestones[0]
		p := domain.Payment{
			ID:           uuid.NewString(),
			ContractID:   c.ID,
			MilestoneID:  first.ID,
			ClientID:     c.ClientID,
			FreelancerID: c.FreelancerID,
			Amount:       domain.Split(first.Amount, e.Config.FeeBps(), c.Terms.Currency),
			Status:       domain.PaymentPending,
			Method:       domain.RecordOf(in.Method),
			CreatedAt:    t.ts,
			UpdatedAt:    t.ts,
		}
		if err := t.e.Repo.UpsertPaymentTx(t.ctx, t.tx, p); err != nil {
			return err
		}
		if err := t.event(c, domain.EventContractCreated, c.ClientID, domain.RoleClient, "", events.Payload{
			"status":     string(c.Status),
			"amount":     c.Terms.Amount,
			"currency":   c.Terms.Currency,
			"milestones": len(c.Milestones),
			"payment_id": p.ID,
			"method":     methodMeta(in.Method),
		}); err != nil {
			return err
		}
		if err := t.notify(c.FreelancerID, NotifyContractOffer, "New contract offer",
			fmt.Sprintf("You have received a contract offer: %s", c.Title),
			events.Payload{"contract_id": c.ID, "client_id": c.ClientID}); err != nil {
			return err
		}
		res = CreateContractResult{ContractID: c.ID, PaymentID: p.ID}
		return nil
	})
	if err != nil {
		return CreateContractResult{}, err
	}
	return res, nil
}

type decision struct {
	op       string
	action   string
	to       domain.ContractStatus
	evtType  string
	notify   string
	title    string
	message  string
	onAccept bool
}

func (e Engine) decide(ctx context.Context, in DecisionInput, d decision) (ContractResult, error) {
	err := e.run(ctx, d.op, func(t *txn) error {
		c, err := t.loadContract(in.ContractID)
		if err != nil {
			return err
		}
		if err := auth.RequireFreelancer(c, in.FreelancerID, d.action); err != nil {
			return err
		}
		from := c.Status
		if err := ensureContractTransition(from, d.to); err != nil {
			return err
		}
		c.Status = d.to
		if d.onAccept {
			ts := t.ts
			c.AcceptedAt = &ts
		}
		if err := t.saveContract(&c); err != nil {
			return err
		}
		if err := t.event(c, d.evtType, in.FreelancerID, domain.RoleFreelancer, in.Comment, events.Payload{
			"from": string(from),
			"to":   string(d.to),
		}); err != nil {
			return err
		}
		data := events.Payload{"contract_id": c.ID, "freelancer_id": c.FreelancerID}
		if in.Comment != "" {
			data["reason"] = in.Comment
		}
		return t.notify(c.ClientID, d.notify, d.title, fmt.Sprintf(d.message, c.Title), data)
	})
	if err != nil {
		return ContractResult{}, err
	}
	return ContractResult{ContractID: in.ContractID}, nil
}

// AcceptContract activates the contract. Milestones stay pending until funded.
func (e Engine) AcceptContract(ctx context.Context, in DecisionInput) (ContractResult, error) {
	return e.decide(ctx, in, decision{
		op:       "accept_contract",
		action:   "accept the contract",
		to:       domain.ContractActive,
		evtType:  domain.EventContractAccepted,
		notify:   NotifyFundingRequired,
		title:    "Contract accepted",
		message:  "%s was accepted. Fund the first milestone so work can start.",
		onAccept: true,
	})
}

func (e Engine) RejectContract(ctx context.Context, in DecisionInput) (ContractResult, error) {
	return e.decide(ctx, in, decision{
		op:      "reject_contract",
		action:  "reject the contract",
		to:      domain.ContractCancelled,
		evtType: domain.EventContractRejected,
		notify:  NotifyContractRejected,
		title:   "Contract rejected",
		message: "%s was rejected by the freelancer.",
	})
}

func (e Engine) RequestRevision(ctx context.Context, in DecisionInput) (ContractResult, error) {
	return e.decide(ctx, in, decision{
		op:      "request_revision",
		action:  "request a revision",
		to:      domain.ContractRevisionRequested,
		evtType: domain.EventRevisionRequested,
		notify:  NotifyRevisionRequested,
		title:   "Revision requested",
		message: "The freelancer asked for changes to %s. Review and resubmit the offer.",
	})
}

type ResubmitContractInput struct {
	ContractID string
	ClientID   string
	Title      *string
	Terms      *domain.Terms
	// Milestones replaces the list when non-nil.
	Milestones []domain.Milestone
	Comment    string
}

// ResubmitContract applies the client's edits to a contract in
// revision_requested and offers it again.
func (e Engine) ResubmitContract(ctx context.Context, in ResubmitContractInput) (ContractResult, error) {
	err := e.run(ctx, "resubmit_contract", func(t *txn) error {
		c, err := t.loadContract(in.ContractID)
		if err != nil {
			return err
		}
		if err := auth.RequireClient(c, in.ClientID, "resubmit the contract"); err != nil {
			return err
		}
		from := c.Status
		if err := ensureContractTransition(from, domain.ContractPendingAcceptance); err != nil {
			return err
		}
		payments, err := t.e.Repo.ListPaymentsTx(t.ctx, t.tx, c.ID)
		if err != nil {
			return err
		}
		locked := map[string]bool{}
		for _, p := range payments {
			if p.Status != domain.PaymentFailed {
				locked[p.MilestoneID] = true
			}
		}

		next := c.Clone()
		if in.Title != nil {
			next.Title = strings.TrimSpace(*in.Title)
			if next.Title == "" {
				return fmt.Errorf("%w: title is required", domain.ErrInvalidInput)
			}
		}
		if in.Terms != nil {
			if in.Terms.Currency != c.Terms.Currency && len(locked) > 0 {
				return fmt.Errorf("%w: currency cannot change once a payment exists", domain.ErrInvalidInput)
			}
			next.Terms = *in.Terms
		}
		if in.Milestones != nil {
			ms, err := mergeMilestones(c.Milestones, in.Milestones, locked)
			if err != nil {
				return err
			}
			next.Milestones = ms
		}
		next.RecomputeAmount()
		if err := next.ValidateStructure(t.e.Config.Platform.Currencies); err != nil {
			return err
		}
		next.Status = domain.ContractPendingAcceptance
		if err := t.saveContract(&next); err != nil {
			return err
		}
		if err := t.event(next, domain.EventContractResubmitted, in.ClientID, domain.RoleClient, in.Comment, events.Payload{
			"from":          string(from),
			"to":            string(next.Status),
			"amount_before": c.Terms.Amount,
			"amount_after":  next.Terms.Amount,
			"milestones":    len(next.Milestones),
		}); err != nil {
			return err
		}
		return t.notify(next.FreelancerID, NotifyContractResubmitted, "Contract updated",
			fmt.Sprintf("The client revised %s and is waiting for your answer.", next.Title),
			events.Payload{"contract_id": next.ID, "client_id": next.ClientID})
	})
	if err != nil {
		return ContractResult{}, err
	}
	return ContractResult{ContractID: in.ContractID}, nil
}

// mergeMilestones builds the replacement list. Milestones with a live payment
// keep their identity, amount and title and cannot be dropped.
func mergeMilestones(current, proposed []domain.Milestone, locked map[string]bool) ([]domain.Milestone, error) {
	byID := make(map[string]domain.Milestone, len(current))
	for _, m := range current {
		byID[m.ID] = m
	}
	seen := map[string]bool{}
	out := make([]domain.Milestone, 0, len(proposed))
	for _, m := range proposed {
		old, exists := byID[m.ID]
		switch {
		case m.ID != "" && locked[m.ID]:
			if m.Amount != old.Amount || m.Title != old.Title {
				return nil, fmt.Errorf("%w: milestone %s is funded or awaiting funding and cannot be edited", domain.ErrInvalidInput, m.ID)
			}
			kept := domain.CloneMilestones([]domain.Milestone{old})[0]
			kept.Description = m.Description
			kept.DueDate = m.DueDate
			kept.Deliverables = append([]string(nil), m.Deliverables...)
			out = append(out, kept)
		case m.ID != "" && exists:
			upd := m
			upd.Status = old.Status
			upd.FundedAt, upd.SubmittedAt, upd.ApprovedAt = old.FundedAt, old.SubmittedAt, old.ApprovedAt
			upd.Submission, upd.RevisionNotes, upd.RevisionRequestedAt = old.Submission, old.RevisionNotes, old.RevisionRequestedAt
			out = append(out, domain.CloneMilestones([]domain.Milestone{upd})[0])
		default:
			out = append(out, freshMilestones([]domain.Milestone{m})[0])
		}
		seen[out[len(out)-1].ID] = true
	}
	for id := range locked {
		if _, onContract := byID[id]; onContract && !seen[id] {
			return nil, fmt.Errorf("%w: milestone %s has a payment and cannot be removed", domain.ErrInvalidInput, id)
		}
	}
	return out, nil
}
