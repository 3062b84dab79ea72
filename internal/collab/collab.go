// Package collab defines the external collaborator contracts the engine
// depends on: the chat platform, the owner spreadsheet and the upstream
// task-tracker notifier. The engine only sees these interfaces; HTTP
// implementations live alongside them and in-memory fakes live in tests.
package collab

import (
	"context"
	"errors"

	"claimbot/internal/domain"
)

var (
	// ErrUserNotFound means the chat platform has no user for the given
	// name or email. A lookup miss, not a transport failure.
	ErrUserNotFound = errors.New("chat user not found")

	// ErrSendRejected means the chat platform refused the message
	// (deactivated user, DM closed). Not retryable.
	ErrSendRejected = errors.New("chat send rejected")
)

// ChatClient is the chat-platform collaborator.
type ChatClient interface {
	// SendDirectMessage delivers a DM and returns an opaque message handle.
	SendDirectMessage(ctx context.Context, tenant domain.Tenant, userRef, text string) (string, error)
	// ResolveUserByName maps a display name to a user ref, or ErrUserNotFound.
	ResolveUserByName(ctx context.Context, tenant domain.Tenant, name string) (string, error)
	// ResolveUserByEmail maps an email to a user ref, or ErrUserNotFound.
	ResolveUserByEmail(ctx context.Context, tenant domain.Tenant, email string) (string, error)
}

// OwnerMapping is one row of a tenant's owner sheet.
type OwnerMapping struct {
	OwnerName      string   `json:"owner_name"`
	OwnerEmail     string   `json:"owner_email,omitempty"`
	Priority       *int     `json:"priority,omitempty"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
}

// SheetClient is the spreadsheet collaborator. LookupOwner returns nil when
// no mapping exists for the task name; ambiguous (duplicate) mappings are
// also reported as nil rather than guessed.
type SheetClient interface {
	LookupOwner(ctx context.Context, tenant domain.Tenant, taskName string) (*OwnerMapping, error)
}

// Outcome values reported upstream to the task tracker.
const (
	OutcomeClaimed      = "claimed"
	OutcomeUnassignable = "unassignable"
)

// Notifier reports negotiation outcomes back to the task-tracking
// collaborator.
type Notifier interface {
	NotifyOutcome(ctx context.Context, tenant domain.Tenant, taskID, outcome, ownerRef string) error
}
