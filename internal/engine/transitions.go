package engine

import (
	"fmt"

	"escrowline/internal/domain"
)

func ensureContractTransition(from, to domain.ContractStatus) error {
	switch from {
	case domain.ContractPendingAcceptance:
		if to == domain.ContractActive || to == domain.ContractCancelled || to == domain.ContractRevisionRequested {
			return nil
		}
	case domain.ContractRevisionRequested:
		if to == domain.ContractPendingAcceptance {
			return nil
		}
	case domain.ContractActive:
		if to == domain.ContractCompleted {
			return nil
		}
	}
	if from == domain.ContractPendingAcceptance {
		return fmt.Errorf("%w: contract is not in pending acceptance state", domain.ErrInvalidState)
	}
	return fmt.Errorf("%w: contract cannot move from %s to %s", domain.ErrInvalidState, from, to)
}

func ensureMilestoneTransition(from, to domain.MilestoneStatus) error {
	switch from {
	case domain.MilestonePending:
		if to == domain.MilestoneActive {
			return nil
		}
	case domain.MilestoneActive:
		// re-funding after a failed payment keeps the milestone active
		if to == domain.MilestoneInReview || to == domain.MilestoneActive {
			return nil
		}
	case domain.MilestoneInReview:
		if to == domain.MilestoneCompleted || to == domain.MilestoneActive {
			return nil
		}
	}
	return fmt.Errorf("%w: milestone cannot move from %s to %s", domain.ErrInvalidState, from, to)
}

// requireActive guards every milestone-level operation.
func requireActive(c domain.Contract) error {
	if c.Status != domain.ContractActive {
		return fmt.Errorf("%w: contract is %s, not active", domain.ErrInvalidState, c.Status)
	}
	return nil
}

func findMilestone(c domain.Contract, milestoneID string) (int, domain.Milestone, error) {
	idx := c.MilestoneIndex(milestoneID)
	if idx < 0 {
		return -1, domain.Milestone{}, fmt.Errorf("%w: milestone %s on contract %s", domain.ErrNotFound, milestoneID, c.ID)
	}
	return idx, c.Milestones[idx], nil
}
