package claimbotsdk

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

// Client is a minimal Claimbot HTTP API client.
type Client struct {
	BaseURL     string
	TenantID    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, tenantID string) *Client {
	return &Client{
		BaseURL:  baseURL,
		TenantID: tenantID,
		Timeout:  10 * time.Second,
	}
}

// Conversation is the API conversation model.
type Conversation struct {
	ID                  string   `json:"id"`
	TenantID            string   `json:"tenant_id"`
	TaskID              string   `json:"task_id"`
	TaskName            string   `json:"task_name"`
	State               string   `json:"state"`
	CandidateOwnerRef   *string  `json:"candidate_owner_ref,omitempty"`
	CandidateOwnerName  *string  `json:"candidate_owner_name,omitempty"`
	TaskDeadline        *string  `json:"task_deadline,omitempty"`
	FollowUpsSent       []string `json:"follow_ups_sent"`
	DeclinedOwnerRefs   []string `json:"declined_owner_refs"`
	LastMessageSentAt   *string  `json:"last_message_sent_at,omitempty"`
	LastReplyReceivedAt *string  `json:"last_reply_received_at,omitempty"`
	CreatedAt           string   `json:"created_at"`
	UpdatedAt           string   `json:"updated_at"`
}

// Event is a log entry.
type Event struct {
	ID       int64          `json:"id"`
	TS       string         `json:"ts"`
	Type     string         `json:"type"`
	TenantID string         `json:"tenant_id"`
	TaskID   string         `json:"task_id"`
	Payload  map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedConversations wraps conversation listings with cursors.
type PaginatedConversations struct {
	Items      []Conversation `json:"items"`
	NextCursor string         `json:"next_cursor"`
}

// PaginatedEvents wraps event listings with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// TaskAssigned reports a task assignment from the tracker.
func (c *Client) TaskAssigned(ctx context.Context, workspaceID, taskID, taskName string, deadline *string) (Conversation, error) {
	body := map[string]any{
		"workspace_id": workspaceID,
		"task_id":      taskID,
		"task_name":    taskName,
	}
	if deadline != nil {
		body["deadline"] = *deadline
	}
	var resp Conversation
	err := c.do(ctx, http.MethodPost, "v0/webhooks/task-assigned", body, &resp)
	return resp, err
}

// ReplyReceived forwards a chat reply.
func (c *Client) ReplyReceived(ctx context.Context, teamID, taskID, text string) error {
	body := map[string]any{
		"team_id": teamID,
		"task_id": taskID,
		"text":    text,
	}
	return c.do(ctx, http.MethodPost, "v0/webhooks/reply", body, nil)
}

// TaskClosed reports that the tracker closed a task.
func (c *Client) TaskClosed(ctx context.Context, workspaceID, taskID string) error {
	body := map[string]any{
		"workspace_id": workspaceID,
		"task_id":      taskID,
	}
	return c.do(ctx, http.MethodPost, "v0/webhooks/task-closed", body, nil)
}

// Conversations lists conversations for the client tenant.
func (c *Client) Conversations(ctx context.Context, state string, limit int, cursor string) (PaginatedConversations, error) {
	endpoint := c.tenantPath("conversations")
	q := url.Values{}
	if state != "" {
		q.Set("state", state)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedConversations
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Conversation fetches one conversation by id.
func (c *Client) Conversation(ctx context.Context, id string) (Conversation, error) {
	var resp Conversation
	endpoint := c.tenantPath("conversations/" + url.PathEscape(id))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events for the client tenant.
func (c *Client) Events(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := c.tenantPath("events")
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
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
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) tenantPath(p string) string {
	tenant := url.PathEscape(c.TenantID)
	return fmt.Sprintf("v0/tenants/%s/%s", tenant, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
