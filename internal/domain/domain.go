package domain

type ContractStatus string

const (
	ContractPendingAcceptance ContractStatus = "pending_acceptance"
	ContractActive            ContractStatus = "active"
	ContractRevisionRequested ContractStatus = "revision_requested"
	ContractCancelled         ContractStatus = "cancelled"
	ContractCompleted         ContractStatus = "completed"
)

// Terminal reports whether no engine operation may move the contract out of s.
func (s ContractStatus) Terminal() bool {
	return s == ContractCancelled || s == ContractCompleted
}

type MilestoneStatus string

const (
	MilestonePending   MilestoneStatus = "pending"
	MilestoneActive    MilestoneStatus = "active"
	MilestoneInReview  MilestoneStatus = "in_review"
	MilestoneCompleted MilestoneStatus = "completed"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentEscrowed  PaymentStatus = "escrowed"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

type PaymentType string

const (
	PaymentFixed  PaymentType = "fixed"
	PaymentHourly PaymentType = "hourly"
)

type Role string

const (
	RoleClient     Role = "client"
	RoleFreelancer Role = "freelancer"
	RoleAdmin      Role = "admin"
)

const ReleaseOnMilestoneApproval = "milestone_completion_approval"

type Terms struct {
	Amount          int64       `json:"amount"`
	Currency        string      `json:"currency"`
	PaymentType     PaymentType `json:"payment_type" enum:"fixed,hourly"`
	StartDate       string      `json:"start_date,omitempty"`
	EndDate         string      `json:"end_date,omitempty"`
	WeeklyHourLimit *int        `json:"weekly_hour_limit,omitempty"`
}

type TimeTracking struct {
	TotalHours         float64 `json:"total_hours"`
	WeeklyLimit        int     `json:"weekly_limit,omitempty"`
	ManualEntryAllowed bool    `json:"manual_entry_allowed"`
}

type Contract struct {
	ID               string         `json:"id"`
	ProjectID        string         `json:"project_id"`
	ProposalID       string         `json:"proposal_id,omitempty"`
	ClientID         string         `json:"client_id"`
	FreelancerID     string         `json:"freelancer_id"`
	Title            string         `json:"title"`
	Terms            Terms          `json:"terms"`
	Milestones       []Milestone    `json:"milestones"`
	Status           ContractStatus `json:"status" enum:"pending_acceptance,active,revision_requested,cancelled,completed"`
	Progress         int            `json:"progress"`
	ReportedProgress int            `json:"reported_progress"`
	TimeTracking     TimeTracking   `json:"time_tracking"`
	Version          int64          `json:"version"`
	CreatedAt        string         `json:"created_at" format:"date-time"`
	UpdatedAt        string         `json:"updated_at" format:"date-time"`
	AcceptedAt       *string        `json:"accepted_at,omitempty" format:"date-time"`
	CompletedAt      *string        `json:"completed_at,omitempty" format:"date-time"`
}

type FileRef struct {
	Name        string `json:"name"`
	Ref         string `json:"ref"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

type SubmissionDetails struct {
	Description string    `json:"description,omitempty"`
	Links       []string  `json:"links,omitempty"`
	Files       []FileRef `json:"files,omitempty"`
}

type Milestone struct {
	ID                  string             `json:"id"`
	Title               string             `json:"title"`
	Description         string             `json:"description,omitempty"`
	Amount              int64              `json:"amount"`
	DueDate             string             `json:"due_date,omitempty"`
	Deliverables        []string           `json:"deliverables,omitempty"`
	Status              MilestoneStatus    `json:"status" enum:"pending,active,in_review,completed"`
	FundedAt            *string            `json:"funded_at,omitempty" format:"date-time"`
	SubmittedAt         *string            `json:"submitted_at,omitempty" format:"date-time"`
	ApprovedAt          *string            `json:"approved_at,omitempty" format:"date-time"`
	Submission          *SubmissionDetails `json:"submission,omitempty"`
	RevisionNotes       string             `json:"revision_notes,omitempty"`
	RevisionRequestedAt *string            `json:"revision_requested_at,omitempty" format:"date-time"`
}

type PaymentAmount struct {
	Gross    int64  `json:"gross"`
	Fee      int64  `json:"fee"`
	Net      int64  `json:"net"`
	Currency string `json:"currency"`
}

type Escrow struct {
	ReleaseCondition string  `json:"release_condition,omitempty"`
	HeldAt           *string `json:"held_at,omitempty" format:"date-time"`
	ReleasedAt       *string `json:"released_at,omitempty" format:"date-time"`
}

type Payment struct {
	ID           string        `json:"id"`
	ContractID   string        `json:"contract_id"`
	MilestoneID  string        `json:"milestone_id"`
	ClientID     string        `json:"client_id"`
	FreelancerID string        `json:"freelancer_id"`
	Amount       PaymentAmount `json:"amount"`
	Status       PaymentStatus `json:"status" enum:"pending,escrowed,completed,failed,refunded"`
	Method       MethodRecord  `json:"method"`
	Escrow       Escrow        `json:"escrow"`
	CreatedAt    string        `json:"created_at" format:"date-time"`
	UpdatedAt    string        `json:"updated_at" format:"date-time"`
}

type ContractEvent struct {
	ID         int64          `json:"id"`
	ContractID string         `json:"contract_id"`
	Type       string         `json:"type"`
	ActorID    string         `json:"actor_id"`
	ActorRole  Role           `json:"actor_role"`
	Comment    string         `json:"comment,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  string         `json:"created_at" format:"date-time"`
}

type Notification struct {
	ID          string         `json:"id"`
	RecipientID string         `json:"recipient_id"`
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Data        map[string]any `json:"data,omitempty"`
	IsRead      bool           `json:"is_read"`
	CreatedAt   string         `json:"created_at" format:"date-time"`
}

type DisputeStatus string

const (
	DisputeOpen     DisputeStatus = "open"
	DisputeResolved DisputeStatus = "resolved"
)

type Dispute struct {
	ID           string        `json:"id"`
	ContractID   string        `json:"contract_id"`
	MilestoneID  string        `json:"milestone_id,omitempty"`
	RaisedBy     string        `json:"raised_by"`
	RaisedByRole Role          `json:"raised_by_role"`
	Reason       string        `json:"reason"`
	Status       DisputeStatus `json:"status"`
	Resolution   string        `json:"resolution,omitempty"`
	AdminNotes   string        `json:"admin_notes,omitempty"`
	CreatedAt    string        `json:"created_at" format:"date-time"`
	ResolvedAt   *string       `json:"resolved_at,omitempty" format:"date-time"`
}

type APIKey struct {
	ID         string  `json:"id"`
	ActorID    string  `json:"actor_id"`
	Name       string  `json:"name,omitempty"`
	KeyHash    string  `json:"-"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
	LastUsedAt *string `json:"last_used_at,omitempty" format:"date-time"`
}

// Event types written to the contract audit log.
const (
	EventContractCreated          = "contract_created"
	EventContractAccepted         = "contract_accepted"
	EventContractRejected         = "contract_rejected"
	EventRevisionRequested        = "revision_requested"
	EventContractResubmitted      = "contract_resubmitted"
	EventMilestoneFunded          = "milestone_funded"
	EventMilestoneSubmitted       = "milestone_submitted"
	EventMilestonePaymentReleased = "milestone_payment_released"
	EventMilestoneRejected        = "milestone_rejected"
	EventContractCompleted        = "contract_completed"
	EventDisputeOpened            = "dispute_opened"
	EventProgressUpdated          = "progress_updated"
)
