package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"claimbot/internal/domain"
)

const defaultNotifyTimeout = 5 * time.Second

// HTTPNotifier posts negotiation outcomes to the tenant's notify URL so the
// task tracker (or whatever sits behind it) learns who owns the task, or
// that nobody could be found.
type HTTPNotifier struct {
	Secret string
	Client *http.Client
}

func NewHTTPNotifier(secret string) *HTTPNotifier {
	return &HTTPNotifier{
		Secret: secret,
		Client: &http.Client{Timeout: defaultNotifyTimeout},
	}
}

type outcomeNotification struct {
	TenantID string `json:"tenant_id"`
	TaskID   string `json:"task_id"`
	Outcome  string `json:"outcome"`
	OwnerRef string `json:"owner_ref,omitempty"`
}

func (n *HTTPNotifier) NotifyOutcome(ctx context.Context, tenant domain.Tenant, taskID, outcome, ownerRef string) error {
	if strings.TrimSpace(tenant.NotifyURL) == "" {
		// tenant opted out of upstream notifications
		return nil
	}
	body := outcomeNotification{
		TenantID: tenant.ID,
		TaskID:   taskID,
		Outcome:  outcome,
		OwnerRef: ownerRef,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tenant.NotifyURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Claimbot-Outcome", outcome)
	req.Header.Set("X-Claimbot-Task", taskID)
	if strings.TrimSpace(n.Secret) != "" {
		req.Header.Set("X-Claimbot-Secret", n.Secret)
	}
	res, err := n.Client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("notify %s: %w", tenant.NotifyURL, httpError(res))
	}
	return nil
}
