package server

import (
	"encoding/json"

	"claimbot/internal/domain"
)

type taskAssignedRequest struct {
	WorkspaceID string  `json:"workspace_id" doc:"Tracker workspace that assigned the task"`
	TaskID      string  `json:"task_id" doc:"Tracker task identifier"`
	TaskName    string  `json:"task_name" doc:"Human-readable task name used for owner lookup"`
	Deadline    *string `json:"deadline,omitempty" doc:"Task deadline, RFC3339" format:"date-time"`
}

type replyReceivedRequest struct {
	TeamID string `json:"team_id" doc:"Chat team the reply came from"`
	TaskID string `json:"task_id" doc:"Task the reply concerns"`
	Text   string `json:"text" doc:"Raw reply text"`
}

type taskClosedRequest struct {
	WorkspaceID string `json:"workspace_id" doc:"Tracker workspace that closed the task"`
	TaskID      string `json:"task_id" doc:"Tracker task identifier"`
}

type conversationResponse struct {
	ID                  string   `json:"id"`
	TenantID            string   `json:"tenant_id"`
	TaskID              string   `json:"task_id"`
	TaskName            string   `json:"task_name"`
	State               string   `json:"state" enum:"awaiting_response,claimed,unassignable,closed"`
	CandidateOwnerRef   *string  `json:"candidate_owner_ref,omitempty"`
	CandidateOwnerName  *string  `json:"candidate_owner_name,omitempty"`
	TaskDeadline        *string  `json:"task_deadline,omitempty"`
	LastMessageSentAt   *string  `json:"last_message_sent_at,omitempty"`
	LastReplyReceivedAt *string  `json:"last_reply_received_at,omitempty"`
	FollowUpsSent       []string `json:"follow_ups_sent"`
	DeclinedOwnerRefs   []string `json:"declined_owner_refs"`
	CreatedAt           string   `json:"created_at"`
	UpdatedAt           string   `json:"updated_at"`
}

func toConversationResponse(c domain.Conversation) conversationResponse {
	return conversationResponse{
		ID:                  c.ID,
		TenantID:            c.TenantID,
		TaskID:              c.TaskID,
		TaskName:            c.TaskName,
		State:               c.State,
		CandidateOwnerRef:   c.CandidateOwnerRef,
		CandidateOwnerName:  c.CandidateOwnerName,
		TaskDeadline:        c.TaskDeadline,
		LastMessageSentAt:   c.LastMessageSentAt,
		LastReplyReceivedAt: c.LastReplyReceivedAt,
		FollowUpsSent:       c.FollowUpsSent,
		DeclinedOwnerRefs:   c.DeclinedOwnerRefs,
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
	}
}

type tenantCreateRequest struct {
	Name               string `json:"name" doc:"Display name"`
	ChatTeamID         string `json:"chat_team_id" doc:"Chat workspace/team identifier"`
	ChatBotUserID      string `json:"chat_bot_user_id" doc:"Bot user the chat client sends as"`
	TrackerWorkspaceID string `json:"tracker_workspace_id" doc:"Tracker workspace identifier"`
	SheetID            string `json:"sheet_id" doc:"Spreadsheet holding the task-to-owner mapping"`
	NotifyURL          string `json:"notify_url,omitempty" doc:"Optional outcome callback URL"`
}

type tenantResponse struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	ChatTeamID         string `json:"chat_team_id"`
	ChatBotUserID      string `json:"chat_bot_user_id"`
	TrackerWorkspaceID string `json:"tracker_workspace_id"`
	SheetID            string `json:"sheet_id"`
	NotifyURL          string `json:"notify_url,omitempty"`
	CreatedAt          string `json:"created_at"`
}

func toTenantResponse(t domain.Tenant) tenantResponse {
	return tenantResponse{
		ID:                 t.ID,
		Name:               t.Name,
		ChatTeamID:         t.ChatTeamID,
		ChatBotUserID:      t.ChatBotUserID,
		TrackerWorkspaceID: t.TrackerWorkspaceID,
		SheetID:            t.SheetID,
		NotifyURL:          t.NotifyURL,
		CreatedAt:          t.CreatedAt,
	}
}

type apiKeyCreateRequest struct {
	Name string `json:"name" doc:"Label for the key"`
}

type apiKeyCreatedResponse struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	Name      string `json:"name"`
	Key       string `json:"key" doc:"Plaintext key, shown once"`
	CreatedAt string `json:"created_at"`
}

type apiKeyResponse struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

type eventResponse struct {
	ID       int64          `json:"id"`
	TS       string         `json:"ts"`
	Type     string         `json:"type"`
	TenantID string         `json:"tenant_id"`
	TaskID   string         `json:"task_id,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
}

func toEventResponse(e domain.Event) eventResponse {
	out := eventResponse{
		ID:       e.ID,
		TS:       e.TS,
		Type:     e.Type,
		TenantID: e.TenantID,
		TaskID:   e.TaskID,
	}
	if e.Payload != "" {
		_ = json.Unmarshal([]byte(e.Payload), &out.Payload)
	}
	return out
}
