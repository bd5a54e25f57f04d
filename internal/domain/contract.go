package domain

import (
	"fmt"
	"math"
	"strings"
)

// DefaultFeeBps is the platform cut in basis points (10%).
const DefaultFeeBps = 1000

// SumMilestones returns the contract total implied by the milestone list.
func SumMilestones(ms []Milestone) int64 {
	var total int64
	for _, m := range ms {
		total += m.Amount
	}
	return total
}

// Clone returns a deep copy so callers can mutate the copy freely.
func (c Contract) Clone() Contract {
	out := c
	out.Milestones = CloneMilestones(c.Milestones)
	if c.Terms.WeeklyHourLimit != nil {
		v := *c.Terms.WeeklyHourLimit
		out.Terms.WeeklyHourLimit = &v
	}
	return out
}

func CloneMilestones(ms []Milestone) []Milestone {
	if ms == nil {
		return nil
	}
	out := make([]Milestone, len(ms))
	for i, m := range ms {
		cp := m
		cp.Deliverables = append([]string(nil), m.Deliverables...)
		if m.Submission != nil {
			sub := *m.Submission
			sub.Links = append([]string(nil), m.Submission.Links...)
			sub.Files = append([]FileRef(nil), m.Submission.Files...)
			cp.Submission = &sub
		}
		out[i] = cp
	}
	return out
}

// RecomputeAmount restores terms.amount == sum(milestones).
func (c *Contract) RecomputeAmount() {
	c.Terms.Amount = SumMilestones(c.Milestones)
}

// MilestoneIndex returns the position of the milestone or -1.
func (c Contract) MilestoneIndex(id string) int {
	for i, m := range c.Milestones {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// WithMilestone rewrites the milestone list wholesale with m at idx and
// recomputes the contract amount.
func (c *Contract) WithMilestone(idx int, m Milestone) {
	ms := CloneMilestones(c.Milestones)
	ms[idx] = m
	c.Milestones = ms
	c.RecomputeAmount()
}

// RoleOf reports which side of the contract actorID is on.
func (c Contract) RoleOf(actorID string) (Role, bool) {
	switch {
	case actorID == "":
		return "", false
	case actorID == c.ClientID:
		return RoleClient, true
	case actorID == c.FreelancerID:
		return RoleFreelancer, true
	}
	return "", false
}

// Counterparty returns the other party's id.
func (c Contract) Counterparty(role Role) string {
	if role == RoleClient {
		return c.FreelancerID
	}
	return c.ClientID
}

// CompletionProgress is round(100 * completed / total) over milestone statuses.
func CompletionProgress(ms []Milestone) int {
	if len(ms) == 0 {
		return 0
	}
	completed := 0
	for _, m := range ms {
		if m.Status == MilestoneCompleted {
			completed++
		}
	}
	return int(math.Round(100 * float64(completed) / float64(len(ms))))
}

// AllMilestonesCompleted reports whether every milestone is completed.
func AllMilestonesCompleted(ms []Milestone) bool {
	for _, m := range ms {
		if m.Status != MilestoneCompleted {
			return false
		}
	}
	return len(ms) > 0
}

// Split computes the escrow amounts for gross, rounding the fee half-up.
func Split(gross int64, feeBps int, currency string) PaymentAmount {
	fee := (gross*int64(feeBps) + 5000) / 10000
	return PaymentAmount{
		Gross:    gross,
		Fee:      fee,
		Net:      gross - fee,
		Currency: currency,
	}
}

// ValidateStructure checks the shape of a contract before it is first stored.
// An empty currencies list accepts any 3-letter code.
func (c Contract) ValidateStructure(currencies []string) error {
	if strings.TrimSpace(c.ClientID) == "" || strings.TrimSpace(c.FreelancerID) == "" {
		return fmt.Errorf("%w: client and freelancer are required", ErrInvalidInput)
	}
	if c.ClientID == c.FreelancerID {
		return fmt.Errorf("%w: client and freelancer must differ", ErrInvalidInput)
	}
	if strings.TrimSpace(c.ProjectID) == "" {
		return fmt.Errorf("%w: project id is required", ErrInvalidInput)
	}
	if err := validateCurrency(c.Terms.Currency, currencies); err != nil {
		return err
	}
	switch c.Terms.PaymentType {
	case PaymentFixed, PaymentHourly:
	default:
		return fmt.Errorf("%w: payment type must be fixed or hourly", ErrInvalidInput)
	}
	return ValidateMilestones(c.Milestones)
}

// Amount caps keep fee math (amount * bps) and milestone sums inside int64.
const (
	MaxMilestoneAmount int64 = 1_000_000_000_000
	MaxContractAmount  int64 = 100_000_000_000_000
)

// ValidateMilestones checks a milestone list for emptiness, ids and amounts.
func ValidateMilestones(ms []Milestone) error {
	if len(ms) == 0 {
		return fmt.Errorf("%w: at least one milestone is required", ErrInvalidInput)
	}
	var total int64
	seen := make(map[string]struct{}, len(ms))
	for i, m := range ms {
		if strings.TrimSpace(m.ID) == "" {
			return fmt.Errorf("%w: milestone %d has no id", ErrInvalidInput, i)
		}
		if _, dup := seen[m.ID]; dup {
			return fmt.Errorf("%w: duplicate milestone id %s", ErrInvalidInput, m.ID)
		}
		seen[m.ID] = struct{}{}
		if strings.TrimSpace(m.Title) == "" {
			return fmt.Errorf("%w: milestone %s has no title", ErrInvalidInput, m.ID)
		}
		if m.Amount <= 0 {
			return fmt.Errorf("%w: milestone %s amount must be positive", ErrInvalidInput, m.ID)
		}
		if m.Amount > MaxMilestoneAmount {
			return fmt.Errorf("%w: milestone %s amount exceeds %d", ErrInvalidInput, m.ID, MaxMilestoneAmount)
		}
		total += m.Amount
		if total > MaxContractAmount {
			return fmt.Errorf("%w: milestone total exceeds %d", ErrInvalidInput, MaxContractAmount)
		}
	}
	return nil
}

func validateCurrency(currency string, allowed []string) error {
	if len(currency) != 3 || strings.ToUpper(currency) != currency {
		return fmt.Errorf("%w: currency must be an upper-case ISO 4217 code", ErrInvalidInput)
	}
	if len(allowed) == 0 {
		return nil
	}
	for _, a := range allowed {
		if a == currency {
			return nil
		}
	}
	return fmt.Errorf("%w: currency %s is not accepted", ErrInvalidInput, currency)
}
