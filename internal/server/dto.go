package server

import (
	"escrowline/internal/domain"
	"escrowline/internal/engine"
)

// Request payloads. The acting party always comes from the authenticated
// principal, never from the body.

type MilestoneRequest struct {
	ID           string   `json:"id,omitempty"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Amount       int64    `json:"amount" minimum:"1"`
	DueDate      string   `json:"due_date,omitempty"`
	Deliverables []string `json:"deliverables,omitempty"`
}

// TermsRequest omits the amount, which is always the milestone total.
type TermsRequest struct {
	Currency        string `json:"currency" minLength:"3" maxLength:"3"`
	PaymentType     string `json:"payment_type" enum:"fixed,hourly"`
	StartDate       string `json:"start_date,omitempty"`
	EndDate         string `json:"end_date,omitempty"`
	WeeklyHourLimit *int   `json:"weekly_hour_limit,omitempty"`
}

func (t TermsRequest) terms() domain.Terms {
	return domain.Terms{
		Currency:        t.Currency,
		PaymentType:     domain.PaymentType(t.PaymentType),
		StartDate:       t.StartDate,
		EndDate:         t.EndDate,
		WeeklyHourLimit: t.WeeklyHourLimit,
	}
}

type CreateContractRequest struct {
	ProjectID     string               `json:"project_id"`
	ProposalID    string               `json:"proposal_id,omitempty"`
	FreelancerID  string               `json:"freelancer_id"`
	Title         string               `json:"title"`
	Terms         TermsRequest         `json:"terms"`
	Milestones    []MilestoneRequest   `json:"milestones" minItems:"1"`
	TimeTracking  *domain.TimeTracking `json:"time_tracking,omitempty"`
	PaymentMethod domain.MethodRecord  `json:"payment_method"`
}

type DecisionRequest struct {
	Comment string `json:"comment,omitempty"`
}

type ResubmitContractRequest struct {
	Title      *string            `json:"title,omitempty"`
	Terms      *TermsRequest      `json:"terms,omitempty"`
	Milestones []MilestoneRequest `json:"milestones,omitempty"`
	Comment    string             `json:"comment,omitempty"`
}

type FundMilestoneRequest struct {
	PaymentMethod domain.MethodRecord `json:"payment_method"`
}

type SubmitMilestoneRequest struct {
	Comment      string                    `json:"comment,omitempty"`
	Deliverables []string                  `json:"deliverables,omitempty"`
	Submission   *domain.SubmissionDetails `json:"submission,omitempty"`
}

type ApproveMilestoneRequest struct {
	Comment string `json:"comment,omitempty"`
}

type MilestoneRevisionRequest struct {
	Notes string `json:"notes"`
}

type OpenDisputeRequest struct {
	UserType    string `json:"user_type,omitempty" enum:"client,freelancer"`
	Reason      string `json:"reason"`
	MilestoneID string `json:"milestone_id,omitempty"`
}

type ProgressRequest struct {
	Progress int    `json:"progress"`
	Comment  string `json:"comment,omitempty"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

// Responses

type CreateContractResponse struct {
	Success    bool   `json:"success"`
	ContractID string `json:"contract_id"`
	PaymentID  string `json:"payment_id"`
}

type ContractActionResponse struct {
	Success    bool   `json:"success"`
	ContractID string `json:"contract_id"`
}

type FundMilestoneResponse struct {
	Success     bool   `json:"success"`
	ContractID  string `json:"contract_id"`
	MilestoneID string `json:"milestone_id"`
	PaymentID   string `json:"payment_id"`
}

type MilestoneActionResponse struct {
	Success     bool   `json:"success"`
	ContractID  string `json:"contract_id"`
	MilestoneID string `json:"milestone_id"`
}

type ApproveMilestoneResponse struct {
	Success             bool   `json:"success"`
	ContractID          string `json:"contract_id"`
	MilestoneID         string `json:"milestone_id"`
	PaymentID           string `json:"payment_id"`
	Progress            int    `json:"progress"`
	IsContractCompleted bool   `json:"is_contract_completed"`
}

type DisputeResponse struct {
	Success    bool   `json:"success"`
	ContractID string `json:"contract_id"`
	DisputeID  string `json:"dispute_id"`
}

type ProgressResponse struct {
	Success    bool   `json:"success"`
	ContractID string `json:"contract_id"`
	Progress   int    `json:"progress"`
}

type ContractList struct {
	Items []domain.Contract `json:"items"`
}

type PaymentList struct {
	Items []domain.Payment `json:"items"`
}

type DisputeList struct {
	Items []domain.Dispute `json:"items"`
}

type NotificationList struct {
	Items []domain.Notification `json:"items"`
}

type paginatedEvents struct {
	Items      []domain.ContractEvent `json:"items"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}

type AttachmentResponse struct {
	Ref  string `json:"ref"`
	Size int    `json:"size"`
}

type APIKeyResponse struct {
	domain.APIKey
	// Key is only returned once, at creation.
	Key string `json:"key,omitempty"`
}

type APIKeyList struct {
	Items []domain.APIKey `json:"items"`
}

type WhoAmIResponse struct {
	ActorID string `json:"actor_id"`
	Source  string `json:"source"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func toMilestones(in []MilestoneRequest) []domain.Milestone {
	if in == nil {
		return nil
	}
	out := make([]domain.Milestone, 0, len(in))
	for _, m := range in {
		out = append(out, domain.Milestone{
			ID:           m.ID,
			Title:        m.Title,
			Description:  m.Description,
			Amount:       m.Amount,
			DueDate:      m.DueDate,
			Deliverables: append([]string(nil), m.Deliverables...),
		})
	}
	return out
}

func createContractResponse(r engine.CreateContractResult) CreateContractResponse {
	return CreateContractResponse{Success: true, ContractID: r.ContractID, PaymentID: r.PaymentID}
}

func fundMilestoneResponse(r engine.FundMilestoneResult) FundMilestoneResponse {
	return FundMilestoneResponse{Success: true, ContractID: r.ContractID, MilestoneID: r.MilestoneID, PaymentID: r.PaymentID}
}

func approveMilestoneResponse(r engine.ApproveMilestoneResult) ApproveMilestoneResponse {
	return ApproveMilestoneResponse{
		Success:             true,
		ContractID:          r.ContractID,
		MilestoneID:         r.MilestoneID,
		PaymentID:           r.PaymentID,
		Progress:            r.Progress,
		IsContractCompleted: r.IsContractCompleted,
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
