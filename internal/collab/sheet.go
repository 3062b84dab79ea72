package collab

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"claimbot/internal/domain"
)

const defaultSheetTimeout = 5 * time.Second

// HTTPSheetClient reads a tenant's owner mapping from a sheet gateway that
// exposes the spreadsheet rows as JSON. Matching is done here, not by the
// gateway, so the exact-match rule is in one place.
type HTTPSheetClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewHTTPSheetClient(baseURL, token string) *HTTPSheetClient {
	return &HTTPSheetClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: defaultSheetTimeout},
	}
}

type SheetRow struct {
	TaskName       string   `json:"task_name"`
	OwnerName      string   `json:"owner_name"`
	OwnerEmail     string   `json:"owner_email,omitempty"`
	Priority       *int     `json:"priority,omitempty"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
}

// LookupOwner fetches the tenant's sheet rows and applies a
// case-insensitive, whitespace-trimmed exact match on the task name.
// No mapping, or more than one matching row, returns nil: ambiguity is
// surfaced as not-found, never guessed.
func (c *HTTPSheetClient) LookupOwner(ctx context.Context, tenant domain.Tenant, taskName string) (*OwnerMapping, error) {
	q := url.Values{}
	q.Set("sheet_id", tenant.SheetID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/sheets/rows?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	res, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, httpError(res)
	}
	var rows []SheetRow
	if err := json.NewDecoder(res.Body).Decode(&rows); err != nil {
		return nil, err
	}
	return MatchOwner(rows, taskName), nil
}

// MatchOwner applies the exact-match rule over sheet rows.
func MatchOwner(rows []SheetRow, taskName string) *OwnerMapping {
	want := normalizeKey(taskName)
	if want == "" {
		return nil
	}
	var found *OwnerMapping
	for _, row := range rows {
		if normalizeKey(row.TaskName) != want {
			continue
		}
		if found != nil {
			// duplicate mapping: ambiguous
			return nil
		}
		found = &OwnerMapping{
			OwnerName:      strings.TrimSpace(row.OwnerName),
			OwnerEmail:     strings.TrimSpace(row.OwnerEmail),
			Priority:       row.Priority,
			EstimatedHours: row.EstimatedHours,
		}
	}
	if found != nil && found.OwnerName == "" {
		return nil
	}
	return found
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
