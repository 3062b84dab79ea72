package collab

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

	"claimbot/internal/domain"
)

const defaultChatTimeout = 5 * time.Second

// HTTPChatClient speaks a minimal JSON protocol to a chat gateway. The
// gateway owns platform credentials; this client only addresses it by the
// tenant's team id.
type HTTPChatClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewHTTPChatClient(baseURL, token string) *HTTPChatClient {
	return &HTTPChatClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: defaultChatTimeout},
	}
}

type sendMessageRequest struct {
	TeamID  string `json:"team_id"`
	UserRef string `json:"user_ref"`
	Text    string `json:"text"`
}

type sendMessageResponse struct {
	MessageID string `json:"message_id"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

func (c *HTTPChatClient) SendDirectMessage(ctx context.Context, tenant domain.Tenant, userRef, text string) (string, error) {
	var out sendMessageResponse
	err := c.post(ctx, "/messages", sendMessageRequest{TeamID: tenant.ChatTeamID, UserRef: userRef, Text: text}, &out)
	if err != nil {
		return "", err
	}
	if !out.OK {
		switch out.Error {
		case "user_not_found":
			return "", ErrUserNotFound
		default:
			return "", fmt.Errorf("%w: %s", ErrSendRejected, out.Error)
		}
	}
	return out.MessageID, nil
}

type userLookupResponse struct {
	UserRef string `json:"user_ref"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

func (c *HTTPChatClient) ResolveUserByName(ctx context.Context, tenant domain.Tenant, name string) (string, error) {
	return c.lookup(ctx, tenant, "name", name)
}

func (c *HTTPChatClient) ResolveUserByEmail(ctx context.Context, tenant domain.Tenant, email string) (string, error) {
	return c.lookup(ctx, tenant, "email", email)
}

func (c *HTTPChatClient) lookup(ctx context.Context, tenant domain.Tenant, by, value string) (string, error) {
	q := url.Values{}
	q.Set("team_id", tenant.ChatTeamID)
	q.Set(by, value)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/users/lookup?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	c.setHeaders(req)
	res, err := c.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return "", ErrUserNotFound
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", httpError(res)
	}
	var out userLookupResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", err
	}
	if !out.OK || out.UserRef == "" {
		return "", ErrUserNotFound
	}
	return out.UserRef, nil
}

func (c *HTTPChatClient) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	c.setHeaders(req)
	res, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return httpError(res)
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func (c *HTTPChatClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
}

func httpError(res *http.Response) error {
	bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
}
