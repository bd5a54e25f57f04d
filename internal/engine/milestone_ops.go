package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"escrowline/internal/domain"
	"escrowline/internal/engine/auth"
	"escrowline/internal/events"
	"escrowline/internal/repo"
)

type FundMilestoneInput struct {
	ContractID  string
	MilestoneID string
	ClientID    string
	Method      domain.PaymentMethod
}

type MilestoneResult struct {
	ContractID  string `json:"contract_id"`
	MilestoneID string `json:"milestone_id"`
}

type FundMilestoneResult struct {
	ContractID  string `json:"contract_id"`
	MilestoneID string `json:"milestone_id"`
	PaymentID   string `json:"payment_id"`
}

// FundMilestone moves the milestone's payment into escrow and opens the
// milestone for work.
func (e Engine) FundMilestone(ctx context.Context, in FundMilestoneInput) (FundMilestoneResult, error) {
	if in.Method == nil {
		return FundMilestoneResult{}, fmt.Errorf("%w: payment method is required", domain.ErrInvalidInput)
	}
	if err := in.Method.Validate(); err != nil {
		return FundMilestoneResult{}, err
	}
	var res FundMilestoneResult
	err := e.run(ctx, "fund_milestone", func(t *txn) error {
		c, err := t.loadContract(in.ContractID)
		if err != nil {
			return err
		}
		if err := auth.RequireClient(c, in.ClientID, "fund milestones"); err != nil {
			return err
		}
		if err := requireActive(c); err != nil {
			return err
		}
		idx, m, err := findMilestone(c, in.MilestoneID)
		if err != nil {
			return err
		}
		if m.Status != domain.MilestonePending && m.Status != domain.MilestoneActive {
			return fmt.Errorf("%w: milestone %s is %s and cannot be funded", domain.ErrInvalidState, m.ID, m.Status)
		}

		p, err := t.e.Repo.GetPaymentForMilestoneTx(t.ctx, t.tx, c.ID, m.ID)
		switch {
		case errors.Is(err, repo.ErrNotFound):
			p = domain.Payment{ID: uuid.NewString(), CreatedAt: t.ts}
		case err != nil:
			return err
		case p.Status == domain.PaymentEscrowed || p.Status == domain.PaymentCompleted:
			return fmt.Errorf("%w: milestone %s is already funded", domain.ErrInvalidState, m.ID)
		case p.Status == domain.PaymentRefunded:
			return fmt.Errorf("%w: payment for milestone %s was refunded", domain.ErrInvalidState, m.ID)
		}
		previous := p.Status
		heldAt := t.ts
		p.ContractID, p.MilestoneID = c.ID, m.ID
		p.ClientID, p.FreelancerID = c.ClientID, c.FreelancerID
		p.Amount = domain.Split(m.Amount, t.e.Config.FeeBps(), c.Terms.Currency)
		p.Status = domain.PaymentEscrowed
		p.Method = domain.RecordOf(in.Method)
		p.Escrow = domain.Escrow{ReleaseCondition: domain.ReleaseOnMilestoneApproval, HeldAt: &heldAt}
		p.UpdatedAt = t.ts
		if err := t.e.Repo.UpsertPaymentTx(t.ctx, t.tx, p); err != nil {
			return err
		}

		if err := ensureMilestoneTransition(m.Status, domain.MilestoneActive); err != nil {
			return err
		}
		before := m.Status
		m.Status = domain.MilestoneActive
		m.FundedAt = &heldAt
		c.WithMilestone(idx, m)
		if err := t.saveContract(&c); err != nil {
			return err
		}

		meta := events.Payload{
			"milestone_id":     m.ID,
			"payment_id":       p.ID,
			"gross":            p.Amount.Gross,
			"fee":              p.Amount.Fee,
			"net":              p.Amount.Net,
			"currency":         p.Amount.Currency,
			"method":           methodMeta(in.Method),
			"milestone_before": string(before),
		}
		if previous != "" {
			meta["payment_before"] = string(previous)
		}
		if err := t.event(c, domain.EventMilestoneFunded, in.ClientID, domain.RoleClient, "", meta); err != nil {
			return err
		}
		data := events.Payload{"contract_id": c.ID, "milestone_id": m.ID, "payment_id": p.ID}
		if err := t.notify(c.FreelancerID, NotifyMilestoneFunded, "Milestone funded",
			fmt.Sprintf("%q is funded and held in escrow. You may start work.", m.Title), data); err != nil {
			return err
		}
		if err := t.notify(c.ClientID, NotifyPaymentConfirmed, "Payment confirmed",
			fmt.Sprintf("Your payment for %q is held in escrow until you approve the work.", m.Title), data); err != nil {
			return err
		}
		res = FundMilestoneResult{ContractID: c.ID, MilestoneID: m.ID, PaymentID: p.ID}
		return nil
	})
	if err != nil {
		return FundMilestoneResult{}, err
	}
	return res, nil
}

type SubmitMilestoneInput struct {
	ContractID   string
	MilestoneID  string
	FreelancerID string
	Comment      string
	// Deliverables replaces the milestone's deliverables list when non-nil.
	Deliverables []string
	Submission   *domain.SubmissionDetails
}

// SubmitMilestone hands the work to the client for review. The milestone must
// be backed by an escrowed payment.
func (e Engine) SubmitMilestone(ctx context.Context, in SubmitMilestoneInput) (MilestoneResult, error) {
	if err := e.checkAttachments(ctx, in.Submission); err != nil {
		return MilestoneResult{}, err
	}
	err := e.run(ctx, "submit_milestone", func(t *txn) error {
		c, err := t.loadContract(in.ContractID)
		if err != nil {
			return err
		}
		if err := auth.RequireFreelancer(c, in.FreelancerID, "submit milestones"); err != nil {
			return err
		}
		if err := requireActive(c); err != nil {
			return err
		}
		idx, m, err := findMilestone(c, in.MilestoneID)
		if err != nil {
			return err
		}
		if m.Status != domain.MilestoneActive {
			return fmt.Errorf("%w: milestone %s is %s, not active", domain.ErrInvalidState, m.ID, m.Status)
		}
		p, err := t.e.Repo.GetPaymentForMilestoneTx(t.ctx, t.tx, c.ID, m.ID)
		if errors.Is(err, repo.ErrNotFound) || (err == nil && p.Status != domain.PaymentEscrowed) {
			return fmt.Errorf("%w: milestone %s has no escrowed payment", domain.ErrInvalidState, m.ID)
		}
		if err != nil {
			return err
		}
		if err := ensureMilestoneTransition(m.Status, domain.MilestoneInReview); err != nil {
			return err
		}

		submittedAt := t.ts
		m.Status = domain.MilestoneInReview
		m.SubmittedAt = &submittedAt
		sub := domain.SubmissionDetails{Description: in.Comment}
		if in.Submission != nil {
			sub = *in.Submission
			sub.Links = append([]string(nil), in.Submission.Links...)
			sub.Files = append([]domain.FileRef(nil), in.Submission.Files...)
			if sub.Description == "" {
				sub.Description = in.Comment
			}
		}
		m.Submission = &sub
		if in.Deliverables != nil {
			m.Deliverables = append([]string(nil), in.Deliverables...)
		}
		c.WithMilestone(idx, m)
		if err := t.saveContract(&c); err != nil {
			return err
		}
		if err := t.event(c, domain.EventMilestoneSubmitted, in.FreelancerID, domain.RoleFreelancer, in.Comment, events.Payload{
			"milestone_id": m.ID,
			"payment_id":   p.ID,
			"from":         string(domain.MilestoneActive),
			"to":           string(domain.MilestoneInReview),
			"files":        len(sub.Files),
			"links":        len(sub.Links),
		}); err != nil {
			return err
		}
		return t.notify(c.ClientID, NotifyReviewRequired, "Review required",
			fmt.Sprintf("Work on %q was submitted and is waiting for your review.", m.Title),
			events.Payload{"contract_id": c.ID, "milestone_id": m.ID})
	})
	if err != nil {
		return MilestoneResult{}, err
	}
	return MilestoneResult{ContractID: in.ContractID, MilestoneID: in.MilestoneID}, nil
}

// checkAttachments verifies that every submitted file reference is stored.
func (e Engine) checkAttachments(ctx context.Context, sub *domain.SubmissionDetails) error {
	if e.Attachments == nil || sub == nil {
		return nil
	}
	for _, f := range sub.Files {
		ok, err := e.Attachments.Exists(ctx, f.Ref)
		if err != nil {
			return fmt.Errorf("%w: attachment %s: %v", domain.ErrInvalidInput, f.Name, err)
		}
		if !ok {
			return fmt.Errorf("%w: attachment %s (%s) was not uploaded", domain.ErrInvalidInput, f.Name, f.Ref)
		}
	}
	return nil
}

type ApproveMilestoneInput struct {
	ContractID  string
	MilestoneID string
	ClientID    string
	Comment     string
}

type ApproveMilestoneResult struct {
	ContractID          string `json:"contract_id"`
	MilestoneID         string `json:"milestone_id"`
	PaymentID           string `json:"payment_id"`
	Progress            int    `json:"progress"`
	IsContractCompleted bool   `json:"is_contract_completed"`
}

// ApproveMilestone releases escrow and completes the milestone in one step.
// Completing the final outstanding milestone completes the contract.
func (e Engine) ApproveMilestone(ctx context.Context, in ApproveMilestoneInput) (ApproveMilestoneResult, error) {
	var res ApproveMilestoneResult
	err := e.run(ctx, "approve_milestone", func(t *txn) error {
		c, err := t.loadContract(in.ContractID)
		if err != nil {
			return err
		}
		if err := auth.RequireClient(c, in.ClientID, "approve milestones"); err != nil {
			return err
		}
		if err := requireActive(c); err != nil {
			return err
		}
		idx, m, err := findMilestone(c, in.MilestoneID)
		if err != nil {
			return err
		}
		if m.Status != domain.MilestoneInReview {
			return fmt.Errorf("%w: milestone %s is %s, not in review", domain.ErrInvalidState, m.ID, m.Status)
		}
		p, err := t.e.Repo.GetPaymentForMilestoneTx(t.ctx, t.tx, c.ID, m.ID)
		if errors.Is(err, repo.ErrNotFound) || (err == nil && p.Status != domain.PaymentEscrowed) {
			return fmt.Errorf("%w: milestone %s has no escrowed payment", domain.ErrInvalidState, m.ID)
		}
		if err != nil {
			return err
		}
		if err := ensureMilestoneTransition(m.Status, domain.MilestoneCompleted); err != nil {
			return err
		}

		releasedAt := t.ts
		p.Status = domain.PaymentCompleted
		p.Escrow.ReleasedAt = &releasedAt
		p.UpdatedAt = t.ts
		if err := t.e.Repo.UpsertPaymentTx(t.ctx, t.tx, p); err != nil {
			return err
		}

		m.Status = domain.MilestoneCompleted
		m.ApprovedAt = &releasedAt
		c.WithMilestone(idx, m)
		c.Progress = domain.CompletionProgress(c.Milestones)
		completed := domain.AllMilestonesCompleted(c.Milestones)
		if completed {
			if err := ensureContractTransition(c.Status, domain.ContractCompleted); err != nil {
				return err
			}
			c.Status = domain.ContractCompleted
			c.Progress = 100
			c.CompletedAt = &releasedAt
		}
		if err := t.saveContract(&c); err != nil {
			return err
		}

		if err := t.event(c, domain.EventMilestonePaymentReleased, in.ClientID, domain.RoleClient, in.Comment, events.Payload{
			"milestone_id": m.ID,
			"payment_id":   p.ID,
			"gross":        p.Amount.Gross,
			"fee":          p.Amount.Fee,
			"net":          p.Amount.Net,
			"currency":     p.Amount.Currency,
			"progress":     c.Progress,
		}); err != nil {
			return err
		}
		data := events.Payload{"contract_id": c.ID, "milestone_id": m.ID, "payment_id": p.ID}
		if err := t.notify(c.FreelancerID, NotifyPaymentReleased, "Payment released",
			fmt.Sprintf("%d %s was released to you for %q.", p.Amount.Net, p.Amount.Currency, m.Title), data); err != nil {
			return err
		}
		clientMsg := fmt.Sprintf("%q is complete.", m.Title)
		clientData := events.Payload{"contract_id": c.ID, "milestone_id": m.ID, "payment_id": p.ID}
		if next := nextOpenMilestone(c.Milestones); next != nil {
			clientMsg += fmt.Sprintf(" Fund %q to keep work going.", next.Title)
			clientData["next_milestone_id"] = next.ID
		}
		if err := t.notify(c.ClientID, NotifyMilestoneCompleted, "Milestone completed", clientMsg, clientData); err != nil {
			return err
		}

		if completed {
			if err := t.event(c, domain.EventContractCompleted, in.ClientID, domain.RoleClient, "", events.Payload{
				"from":     string(domain.ContractActive),
				"to":       string(domain.ContractCompleted),
				"amount":   c.Terms.Amount,
				"currency": c.Terms.Currency,
			}); err != nil {
				return err
			}
			doneData := events.Payload{"contract_id": c.ID}
			for _, party := range []string{c.FreelancerID, c.ClientID} {
				if err := t.notify(party, NotifyContractCompleted, "Contract completed",
					fmt.Sprintf("All milestones of %s are complete.", c.Title), doneData); err != nil {
					return err
				}
			}
		}

		gross, currency := p.Amount.Gross, p.Amount.Currency
		t.afterCommit(func() { t.e.Metrics.recordRelease(currency, gross) })
		res = ApproveMilestoneResult{
			ContractID:          c.ID,
			MilestoneID:         m.ID,
			PaymentID:           p.ID,
			Progress:            c.Progress,
			IsContractCompleted: completed,
		}
		return nil
	})
	if err != nil {
		return ApproveMilestoneResult{}, err
	}
	return res, nil
}

func nextOpenMilestone(ms []domain.Milestone) *domain.Milestone {
	for i := range ms {
		if ms[i].Status == domain.MilestonePending {
			return &ms[i]
		}
	}
	return nil
}

type MilestoneRevisionInput struct {
	ContractID  string
	MilestoneID string
	ClientID    string
	Notes       string
}

// RequestMilestoneRevision sends submitted work back to the freelancer. Escrow is untouched.
func (e Engine) RequestMilestoneRevision(ctx context.Context, in MilestoneRevisionInput) (MilestoneResult, error) {
	err := e.run(ctx, "request_milestone_revision", func(t *txn) error {
		c, err := t.loadContract(in.ContractID)
		if err != nil {
			return err
		}
		if err := auth.RequireClient(c, in.ClientID, "request milestone revisions"); err != nil {
			return err
		}
		if err := requireActive(c); err != nil {
			return err
		}
		idx, m, err := findMilestone(c, in.MilestoneID)
		if err != nil {
			return err
		}
		if err := ensureMilestoneTransition(m.Status, domain.MilestoneActive); err != nil || m.Status != domain.MilestoneInReview {
			return fmt.Errorf("%w: milestone %s is %s, not in review", domain.ErrInvalidState, m.ID, m.Status)
		}
		requestedAt := t.ts
		m.Status = domain.MilestoneActive
		m.RevisionNotes = in.Notes
		m.RevisionRequestedAt = &requestedAt
		c.WithMilestone(idx, m)
		if err := t.saveContract(&c); err != nil {
			return err
		}
		if err := t.event(c, domain.EventMilestoneRejected, in.ClientID, domain.RoleClient, in.Notes, events.Payload{
			"milestone_id": m.ID,
			"from":         string(domain.MilestoneInReview),
			"to":           string(domain.MilestoneActive),
		}); err != nil {
			return err
		}
		return t.notify(c.FreelancerID, NotifyMilestoneRevision, "Revision requested",
			fmt.Sprintf("The client asked for changes to %q: %s", m.Title, in.Notes),
			events.Payload{"contract_id": c.ID, "milestone_id": m.ID, "revision_notes": in.Notes})
	})
	if err != nil {
		return MilestoneResult{}, err
	}
	return MilestoneResult{ContractID: in.ContractID, MilestoneID: in.MilestoneID}, nil
}
