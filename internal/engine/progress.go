package engine

import (
	"context"

	"escrowline/internal/domain"
	"escrowline/internal/engine/auth"
	"escrowline/internal/events"
)

type ProgressInput struct {
	ContractID   string
	FreelancerID string
	Progress     int
	Comment      string
}

type ProgressResult struct {
	ContractID string `json:"contract_id"`
	Progress   int    `json:"progress"`
}

func clampProgress(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

// UpdateContractProgress records the freelancer's self-reported progress.
// Milestone-derived progress is owned by ApproveMilestone and is not touched.
func (e Engine) UpdateContractProgress(ctx context.Context, in ProgressInput) (ProgressResult, error) {
	value := clampProgress(in.Progress)
	err := e.run(ctx, "update_progress", func(t *txn) error {
		c, err := t.loadContract(in.ContractID)
		if err != nil {
			return err
		}
		if err := auth.RequireFreelancer(c, in.FreelancerID, "report progress"); err != nil {
			return err
		}
		if err := requireActive(c); err != nil {
			return err
		}
		before := c.ReportedProgress
		c.ReportedProgress = value
		if err := t.saveContract(&c); err != nil {
			return err
		}
		return t.event(c, domain.EventProgressUpdated, in.FreelancerID, domain.RoleFreelancer, in.Comment, events.Payload{
			"before":             before,
			"after":              value,
			"milestone_progress": c.Progress,
		})
	})
	if err != nil {
		return ProgressResult{}, err
	}
	return ProgressResult{ContractID: in.ContractID, Progress: value}, nil
}
