package giglinesdk

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

// Client is a minimal Gigline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Project represents the API project model.
type Project struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Description        string   `json:"description,omitempty"`
	Budget             float64  `json:"budget"`
	Deadline           string   `json:"deadline,omitempty"`
	PosterID           string   `json:"poster_id"`
	Status             string   `json:"status"`
	QuoteCount         int      `json:"quote_count"`
	AssignedProviderID *string  `json:"assigned_provider_id,omitempty"`
	ApprovedQuoteID    *string  `json:"approved_quote_id,omitempty"`
	ApprovedAmount     *float64 `json:"approved_amount,omitempty"`
	CreatedAt          string   `json:"created_at"`
	UpdatedAt          string   `json:"updated_at"`
}

// Quote represents a provider's offer on a project.
type Quote struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	ProviderID  string  `json:"provider_id"`
	Amount      float64 `json:"amount"`
	Timeline    string  `json:"timeline,omitempty"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// ApprovalResult is the outcome of approving a quote.
type ApprovalResult struct {
	Project  Project `json:"project"`
	Approved Quote   `json:"approved"`
	Rejected []Quote `json:"rejected"`
}

// Conversation represents a 1:1 thread about a project.
type Conversation struct {
	ID              string `json:"id"`
	ProjectID       string `json:"project_id"`
	ParticipantA    string `json:"participant_a"`
	ParticipantB    string `json:"participant_b"`
	LastMessage     string `json:"last_message"`
	LastMessageAt   string `json:"last_message_at"`
	CreatedAt       string `json:"created_at"`
	CounterpartID   string `json:"counterpart_id"`
	CounterpartName string `json:"counterpart_name"`
	ProjectTitle    string `json:"project_title"`
}

// Message represents one message in a conversation.
type Message struct {
	ID             string  `json:"id"`
	Seq            int64   `json:"seq"`
	ConversationID string  `json:"conversation_id"`
	SenderID       string  `json:"sender_id"`
	Text           string  `json:"text,omitempty"`
	AttachmentURL  *string `json:"attachment_url,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

// Notification represents a persisted lifecycle notification.
type Notification struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Category  string            `json:"category"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	IsRead    bool              `json:"is_read"`
	IsSeen    bool              `json:"is_seen"`
	CreatedAt string            `json:"created_at"`
	ReadAt    *string           `json:"read_at,omitempty"`
}

// NotificationCounts aggregates a recipient's records.
type NotificationCounts struct {
	Total  int `json:"total"`
	Unread int `json:"unread"`
	Unseen int `json:"unseen"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateProject posts a project.
func (c *Client) CreateProject(ctx context.Context, title, description string, budget float64, deadline string) (Project, error) {
	body := map[string]any{
		"title":  title,
		"budget": budget,
	}
	if description != "" {
		body["description"] = description
	}
	if deadline != "" {
		body["deadline"] = deadline
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, "projects", body, &resp)
	return resp, err
}

// GetProject fetches a project by id.
func (c *Client) GetProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, "projects/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListProjects returns projects, optionally filtered by poster.
func (c *Client) ListProjects(ctx context.Context, posterID string) ([]Project, error) {
	endpoint := "projects"
	if posterID != "" {
		endpoint += "?poster_id=" + url.QueryEscape(posterID)
	}
	var resp struct {
		Items []Project `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// CancelProject cancels a project.
func (c *Client) CancelProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, "projects/"+url.PathEscape(id)+"/cancel", nil, &resp)
	return resp, err
}

// CompleteProject completes an assigned project.
func (c *Client) CompleteProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, "projects/"+url.PathEscape(id)+"/complete", nil, &resp)
	return resp, err
}

// SubmitQuote submits a quote on a project.
func (c *Client) SubmitQuote(ctx context.Context, projectID string, amount float64, timeline, description string) (Quote, error) {
	body := map[string]any{"amount": amount}
	if timeline != "" {
		body["timeline"] = timeline
	}
	if description != "" {
		body["description"] = description
	}
	var resp Quote
	err := c.do(ctx, http.MethodPost, "projects/"+url.PathEscape(projectID)+"/quotes", body, &resp)
	return resp, err
}

// ListQuotes returns the quotes visible to the caller on a project.
func (c *Client) ListQuotes(ctx context.Context, projectID string) ([]Quote, error) {
	var resp struct {
		Items []Quote `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "projects/"+url.PathEscape(projectID)+"/quotes", nil, &resp)
	return resp.Items, err
}

// WithdrawQuote withdraws a quote.
func (c *Client) WithdrawQuote(ctx context.Context, quoteID string) error {
	return c.do(ctx, http.MethodPost, "quotes/"+url.PathEscape(quoteID)+"/withdraw", nil, nil)
}

// ApproveQuote approves a quote, assigning the project and rejecting the
// competing quotes.
func (c *Client) ApproveQuote(ctx context.Context, projectID, quoteID string) (ApprovalResult, error) {
	body := map[string]any{"quote_id": quoteID}
	var resp ApprovalResult
	err := c.do(ctx, http.MethodPost, "projects/"+url.PathEscape(projectID)+"/approve", body, &resp)
	return resp, err
}

// ResolveConversation finds or creates the conversation with another user
// about a project.
func (c *Client) ResolveConversation(ctx context.Context, projectID, otherUserID string) (Conversation, error) {
	body := map[string]any{
		"project_id":    projectID,
		"other_user_id": otherUserID,
	}
	var resp Conversation
	err := c.do(ctx, http.MethodPost, "conversations/resolve", body, &resp)
	return resp, err
}

// PostMessage posts a message into a conversation.
func (c *Client) PostMessage(ctx context.Context, conversationID, text string, attachmentURL *string) (Message, error) {
	body := map[string]any{}
	if text != "" {
		body["text"] = text
	}
	if attachmentURL != nil {
		body["attachment_url"] = *attachmentURL
	}
	var resp Message
	err := c.do(ctx, http.MethodPost, "conversations/"+url.PathEscape(conversationID)+"/messages", body, &resp)
	return resp, err
}

// ListMessages returns the messages of a conversation in send order.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	var resp struct {
		Items []Message `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "conversations/"+url.PathEscape(conversationID)+"/messages", nil, &resp)
	return resp.Items, err
}

// Notifications returns the caller's notifications.
func (c *Client) Notifications(ctx context.Context, limit int) ([]Notification, error) {
	endpoint := "notifications"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp struct {
		Items []Notification `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// NotificationCounts returns the caller's counts.
func (c *Client) NotificationCounts(ctx context.Context) (NotificationCounts, error) {
	var resp NotificationCounts
	err := c.do(ctx, http.MethodGet, "notifications/counts", nil, &resp)
	return resp, err
}

// MarkNotificationRead marks one notification read.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

// DeleteNotification hides a notification from future listings.
func (c *Client) DeleteNotification(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "notifications/"+url.PathEscape(id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
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
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
