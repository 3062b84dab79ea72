package domain

// Conversation states. There is no stored "idle" state: a task with no
// conversation row simply has no record yet.
const (
	StateAwaitingResponse = "awaiting_response"
	StateClaimed          = "claimed"
	StateUnassignable     = "unassignable"
	StateClosed           = "closed"
)

// Reminder tiers recorded in FollowUpsSent.
const (
	TierHalfTime     = "half_time"
	TierNearDeadline = "near_deadline"
)

// TerminalState reports whether a conversation state accepts no further
// transitions other than the idempotent close.
func TerminalState(state string) bool {
	switch state {
	case StateClaimed, StateUnassignable, StateClosed:
		return true
	}
	return false
}

// Conversation is one ownership negotiation for one task within one tenant.
type Conversation struct {
	ID                  string   `json:"id"`
	TenantID            string   `json:"tenant_id"`
	TaskID              string   `json:"task_id"`
	TaskName            string   `json:"task_name"`
	State               string   `json:"state" enum:"awaiting_response,claimed,unassignable,closed"`
	CandidateOwnerRef   *string  `json:"candidate_owner_ref,omitempty"`
	CandidateOwnerName  *string  `json:"candidate_owner_name,omitempty"`
	TaskDeadline        *string  `json:"task_deadline,omitempty" format:"date-time"`
	LastMessageSentAt   *string  `json:"last_message_sent_at,omitempty" format:"date-time"`
	LastReplyReceivedAt *string  `json:"last_reply_received_at,omitempty" format:"date-time"`
	FollowUpsSent       []string `json:"follow_ups_sent,omitempty"`
	DeclinedOwnerRefs   []string `json:"declined_owner_refs,omitempty"`
	CreatedAt           string   `json:"created_at" format:"date-time"`
	UpdatedAt           string   `json:"updated_at" format:"date-time"`
}

// HasFollowUp reports whether a reminder tier was already issued.
func (c Conversation) HasFollowUp(tier string) bool {
	for _, t := range c.FollowUpsSent {
		if t == tier {
			return true
		}
	}
	return false
}

// Declined reports whether an owner ref already declined this task.
func (c Conversation) Declined(ref string) bool {
	for _, r := range c.DeclinedOwnerRefs {
		if r == ref {
			return true
		}
	}
	return false
}

// Tenant is an isolated customer organization with its chat and
// task-tracking workspace bindings. The engine only reads tenants.
type Tenant struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	ChatTeamID         string `json:"chat_team_id"`
	ChatBotUserID      string `json:"chat_bot_user_id,omitempty"`
	TrackerWorkspaceID string `json:"tracker_workspace_id"`
	SheetID            string `json:"sheet_id"`
	NotifyURL          string `json:"notify_url,omitempty"`
	CreatedAt          string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID       int64  `json:"id"`
	TS       string `json:"ts" format:"date-time"`
	Type     string `json:"type"`
	TenantID string `json:"tenant_id,omitempty"`
	TaskID   string `json:"task_id,omitempty"`
	Payload  string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
