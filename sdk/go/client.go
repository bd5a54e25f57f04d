package escrowlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Escrowline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

// Milestone is a slice of the contract amount.
type Milestone struct {
	ID           string   `json:"id,omitempty"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Amount       int64    `json:"amount"`
	DueDate      string   `json:"due_date,omitempty"`
	Deliverables []string `json:"deliverables,omitempty"`
	Status       string   `json:"status,omitempty"`
}

type Terms struct {
	Amount      int64  `json:"amount,omitempty"`
	Currency    string `json:"currency"`
	PaymentType string `json:"payment_type"`
	StartDate   string `json:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
}

// PaymentMethod is the flat wire form of a payment instrument. Only the
// fields of the chosen Type are read.
type PaymentMethod struct {
	Type        string `json:"type"`
	Brand       string `json:"brand,omitempty"`
	Last4       string `json:"last4,omitempty"`
	Email       string `json:"email,omitempty"`
	BankName    string `json:"bank_name,omitempty"`
	AccountRef  string `json:"account_ref,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	AccountName string `json:"account_name,omitempty"`
}

// Contract represents the API contract model (partial).
type Contract struct {
	ID               string      `json:"id"`
	ProjectID        string      `json:"project_id"`
	ClientID         string      `json:"client_id"`
	FreelancerID     string      `json:"freelancer_id"`
	Title            string      `json:"title"`
	Terms            Terms       `json:"terms"`
	Milestones       []Milestone `json:"milestones"`
	Status           string      `json:"status"`
	Progress         int         `json:"progress"`
	ReportedProgress int         `json:"reported_progress"`
	Version          int64       `json:"version"`
}

type CreateContractRequest struct {
	ProjectID     string        `json:"project_id"`
	ProposalID    string        `json:"proposal_id,omitempty"`
	FreelancerID  string        `json:"freelancer_id"`
	Title         string        `json:"title"`
	Terms         Terms         `json:"terms"`
	Milestones    []Milestone   `json:"milestones"`
	PaymentMethod PaymentMethod `json:"payment_method"`
}

type CreateContractResult struct {
	ContractID string `json:"contract_id"`
	PaymentID  string `json:"payment_id"`
}

type FundResult struct {
	ContractID  string `json:"contract_id"`
	MilestoneID string `json:"milestone_id"`
	PaymentID   string `json:"payment_id"`
}

type ApproveResult struct {
	ContractID          string `json:"contract_id"`
	MilestoneID         string `json:"milestone_id"`
	PaymentID           string `json:"payment_id"`
	Progress            int    `json:"progress"`
	IsContractCompleted bool   `json:"is_contract_completed"`
}

// Payment is an escrow record.
type Payment struct {
	ID          string `json:"id"`
	ContractID  string `json:"contract_id"`
	MilestoneID string `json:"milestone_id"`
	Status      string `json:"status"`
	Amount      struct {
		Gross    int64  `json:"gross"`
		Fee      int64  `json:"fee"`
		Net      int64  `json:"net"`
		Currency string `json:"currency"`
	} `json:"amount"`
}

// Event represents an audit log entry.
type Event struct {
	ID         int64          `json:"id"`
	Type       string         `json:"type"`
	ContractID string         `json:"contract_id"`
	ActorID    string         `json:"actor_id"`
	ActorRole  string         `json:"actor_role"`
	Comment    string         `json:"comment,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  string         `json:"created_at"`
}

type Notification struct {
	ID          string         `json:"id"`
	RecipientID string         `json:"recipient_id"`
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Data        map[string]any `json:"data,omitempty"`
	IsRead      bool           `json:"is_read"`
	CreatedAt   string         `json:"created_at"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateContract offers a contract to a freelancer. The caller is the client.
func (c *Client) CreateContract(ctx context.Context, req CreateContractRequest) (CreateContractResult, error) {
	var resp CreateContractResult
	err := c.do(ctx, http.MethodPost, "contracts", req, &resp)
	return resp, err
}

func (c *Client) GetContract(ctx context.Context, id string) (Contract, error) {
	var resp Contract
	err := c.do(ctx, http.MethodGet, contractPath(id, ""), nil, &resp)
	return resp, err
}

// ListContracts returns contracts the caller is party to.
func (c *Client) ListContracts(ctx context.Context, status string) ([]Contract, error) {
	endpoint := "contracts"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp struct {
		Items []Contract `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) AcceptContract(ctx context.Context, id, comment string) error {
	return c.do(ctx, http.MethodPost, contractPath(id, "accept"), map[string]string{"comment": comment}, nil)
}

func (c *Client) RejectContract(ctx context.Context, id, comment string) error {
	return c.do(ctx, http.MethodPost, contractPath(id, "reject"), map[string]string{"comment": comment}, nil)
}

func (c *Client) RequestRevision(ctx context.Context, id, comment string) error {
	return c.do(ctx, http.MethodPost, contractPath(id, "request-revision"), map[string]string{"comment": comment}, nil)
}

// UpdateProgress records the freelancer's own progress estimate.
func (c *Client) UpdateProgress(ctx context.Context, id string, progress int, comment string) error {
	body := map[string]any{"progress": progress, "comment": comment}
	return c.do(ctx, http.MethodPost, contractPath(id, "progress"), body, nil)
}

func (c *Client) FundMilestone(ctx context.Context, contractID, milestoneID string, method PaymentMethod) (FundResult, error) {
	var resp FundResult
	body := map[string]any{"payment_method": method}
	err := c.do(ctx, http.MethodPost, milestonePath(contractID, milestoneID, "fund"), body, &resp)
	return resp, err
}

func (c *Client) SubmitMilestone(ctx context.Context, contractID, milestoneID, comment string) error {
	body := map[string]any{"comment": comment}
	return c.do(ctx, http.MethodPost, milestonePath(contractID, milestoneID, "submit"), body, nil)
}

func (c *Client) ApproveMilestone(ctx context.Context, contractID, milestoneID, comment string) (ApproveResult, error) {
	var resp ApproveResult
	body := map[string]any{"comment": comment}
	err := c.do(ctx, http.MethodPost, milestonePath(contractID, milestoneID, "approve"), body, &resp)
	return resp, err
}

func (c *Client) RequestMilestoneRevision(ctx context.Context, contractID, milestoneID, notes string) error {
	body := map[string]any{"notes": notes}
	return c.do(ctx, http.MethodPost, milestonePath(contractID, milestoneID, "request-revision"), body, nil)
}

// OpenDispute raises a dispute and returns its id.
func (c *Client) OpenDispute(ctx context.Context, contractID, reason, milestoneID string) (string, error) {
	var resp struct {
		DisputeID string `json:"dispute_id"`
	}
	body := map[string]any{"reason": reason}
	if milestoneID != "" {
		body["milestone_id"] = milestoneID
	}
	err := c.do(ctx, http.MethodPost, contractPath(contractID, "disputes"), body, &resp)
	return resp.DisputeID, err
}

func (c *Client) Payments(ctx context.Context, contractID string) ([]Payment, error) {
	var resp struct {
		Items []Payment `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, contractPath(contractID, "payments"), nil, &resp)
	return resp.Items, err
}

// Events returns the audit log of a contract, oldest first.
func (c *Client) Events(ctx context.Context, contractID, eventType string) ([]Event, error) {
	endpoint := contractPath(contractID, "events")
	if eventType != "" {
		endpoint += "?type=" + url.QueryEscape(eventType)
	}
	var resp struct {
		Items []Event `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// Notifications returns the caller's notifications, newest first.
func (c *Client) Notifications(ctx context.Context, unreadOnly bool, limit int) ([]Notification, error) {
	q := url.Values{}
	if unreadOnly {
		q.Set("unread", "true")
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	endpoint := "notifications"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Items []Notification `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("notifications/%s/read", url.PathEscape(id)), nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func contractPath(id, action string) string {
	p := "contracts/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

func milestonePath(contractID, milestoneID, action string) string {
	return fmt.Sprintf("contracts/%s/milestones/%s/%s", url.PathEscape(contractID), url.PathEscape(milestoneID), action)
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
