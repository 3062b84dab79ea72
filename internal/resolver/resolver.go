// Package resolver maps a task name to the chat user who should be asked to
// claim it, via the tenant's owner sheet. Pure lookup: no state, no caching
// beyond what the collaborators do themselves.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"claimbot/internal/collab"
	"claimbot/internal/domain"
)

// ErrNoOwner means no usable owner mapping exists for the task. It is a
// terminal outcome reported upstream, not a retryable failure.
var ErrNoOwner = errors.New("no owner mapping found")

// Candidate is a resolved owner ready to be messaged.
type Candidate struct {
	UserRef        string
	Name           string
	Priority       *int
	EstimatedHours *float64
}

type Resolver struct {
	Sheet collab.SheetClient
	Chat  collab.ChatClient
}

func New(sheet collab.SheetClient, chat collab.ChatClient) Resolver {
	return Resolver{Sheet: sheet, Chat: chat}
}

// Resolve looks up the mapped owner for taskName and resolves them to a chat
// user ref. Owners whose ref appears in excluded (they already declined) are
// not returned again; with a single-valued sheet mapping that means
// ErrNoOwner unless the sheet changed since the decline.
func (r Resolver) Resolve(ctx context.Context, tenant domain.Tenant, taskName string, excluded []string) (Candidate, error) {
	mapping, err := r.Sheet.LookupOwner(ctx, tenant, taskName)
	if err != nil {
		return Candidate{}, fmt.Errorf("sheet lookup: %w", err)
	}
	if mapping == nil {
		return Candidate{}, ErrNoOwner
	}

	ref, err := r.resolveUser(ctx, tenant, mapping)
	if err != nil {
		if errors.Is(err, collab.ErrUserNotFound) {
			return Candidate{}, ErrNoOwner
		}
		return Candidate{}, err
	}
	for _, ex := range excluded {
		if ref == ex {
			return Candidate{}, ErrNoOwner
		}
	}
	return Candidate{
		UserRef:        ref,
		Name:           mapping.OwnerName,
		Priority:       mapping.Priority,
		EstimatedHours: mapping.EstimatedHours,
	}, nil
}

func (r Resolver) resolveUser(ctx context.Context, tenant domain.Tenant, mapping *collab.OwnerMapping) (string, error) {
	ref, err := r.Chat.ResolveUserByName(ctx, tenant, mapping.OwnerName)
	if err == nil {
		return ref, nil
	}
	if !errors.Is(err, collab.ErrUserNotFound) {
		return "", fmt.Errorf("resolve user by name: %w", err)
	}
	if mapping.OwnerEmail == "" {
		return "", collab.ErrUserNotFound
	}
	ref, err = r.Chat.ResolveUserByEmail(ctx, tenant, mapping.OwnerEmail)
	if err != nil {
		if errors.Is(err, collab.ErrUserNotFound) {
			return "", collab.ErrUserNotFound
		}
		return "", fmt.Errorf("resolve user by email: %w", err)
	}
	return ref, nil
}
