// Package engine implements the ownership-negotiation state machine. Every
// transition reads the persisted conversation immediately before mutating it
// and writes back with a compare-and-set; a precondition that no longer
// holds makes the operation a no-op, never an error and never corruption.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"claimbot/internal/collab"
	"claimbot/internal/config"
	"claimbot/internal/domain"
	"claimbot/internal/events"
	"claimbot/internal/intent"
	"claimbot/internal/repo"
	"claimbot/internal/resolver"
)

type Engine struct {
	DB         *sql.DB
	Repo       repo.Repo
	Events     events.Writer
	Config     *config.Config
	Resolver   resolver.Resolver
	Chat       collab.ChatClient
	Notifier   collab.Notifier
	Classifier *intent.Classifier
	Now        func() time.Time
}

func New(db *sql.DB, cfg *config.Config, chat collab.ChatClient, sheet collab.SheetClient, notifier collab.Notifier) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:         db,
		Repo:       repo.Repo{DB: db},
		Events:     events.Writer{DB: db},
		Config:     cfg,
		Resolver:   resolver.New(sheet, chat),
		Chat:       chat,
		Notifier:   notifier,
		Classifier: intent.NewClassifier(cfg.Intents.Accept, cfg.Intents.Decline),
		Now:        time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowStr() string {
	return e.now().UTC().Format(time.RFC3339)
}

// OnTaskAssigned handles a task-assignment event from the tracker. It
// resolves the owner, persists the conversation, then sends the
// claim-request DM; the persist happens first so a crash between the two
// can never surface as a duplicate claim-request.
func (e Engine) OnTaskAssigned(ctx context.Context, tenantID, taskID, taskName string, deadline *time.Time) (domain.Conversation, error) {
	tenant, err := e.Repo.GetTenant(ctx, tenantID)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("tenant %s: %w", tenantID, err)
	}
	if taskID == "" || taskName == "" {
		return domain.Conversation{}, errors.New("task id and name required")
	}

	// Duplicate assignment events for a task with a live negotiation are
	// no-ops.
	if existing, err := e.Repo.ActiveConversation(ctx, tenantID, taskID); err == nil {
		return existing, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Conversation{}, err
	}

	now := e.nowStr()
	c := domain.Conversation{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		TaskID:    taskID,
		TaskName:  taskName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if deadline != nil {
		d := deadline.UTC().Format(time.RFC3339)
		c.TaskDeadline = &d
	}

	cand, err := e.Resolver.Resolve(ctx, tenant, taskName, nil)
	if errors.Is(err, resolver.ErrNoOwner) {
		c.State = domain.StateUnassignable
		if err := e.persistNew(ctx, c, events.EventPayload{"reason": "no owner mapping"}); err != nil {
			return c, err
		}
		e.notifyOutcome(ctx, tenant, taskID, collab.OutcomeUnassignable, "")
		return c, nil
	}
	if err != nil {
		return domain.Conversation{}, err
	}

	c.State = domain.StateAwaitingResponse
	c.CandidateOwnerRef = &cand.UserRef
	c.CandidateOwnerName = &cand.Name
	if err := e.persistNew(ctx, c, events.EventPayload{"candidate": cand.UserRef, "owner_name": cand.Name}); err != nil {
		// A concurrent assignment for the same task may have inserted
		// between the duplicate check and this insert. The index makes
		// the loser explicit; hand back the winner's conversation.
		if repo.IsUniqueViolation(err) {
			if existing, readErr := e.Repo.ActiveConversation(ctx, tenantID, taskID); readErr == nil {
				return existing, nil
			}
		}
		return c, err
	}

	text := fmt.Sprintf(e.Config.Messages.ClaimRequest, cand.Name, taskName)
	e.sendAndStamp(ctx, tenant, c, cand.UserRef, text, "claim.requested")
	return c, nil
}

func (e Engine) persistNew(ctx context.Context, c domain.Conversation, payload events.EventPayload) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertConversation(ctx, tx, c); err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	if payload == nil {
		payload = events.EventPayload{}
	}
	payload["state"] = c.State
	if err := e.Events.Append(ctx, tx, "conversation.created", c.TenantID, c.TaskID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

// OnReplyReceived handles a chat reply for a task. Replies for tasks with no
// live negotiation (already claimed, closed, never opened) are ignored.
func (e Engine) OnReplyReceived(ctx context.Context, tenantID, taskID, text string) error {
	tenant, err := e.Repo.GetTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("tenant %s: %w", tenantID, err)
	}
	c, err := e.Repo.ActiveConversation(ctx, tenantID, taskID)
	if errors.Is(err, repo.ErrNotFound) {
		log.Printf("engine: reply for %s/%s has no active conversation, ignoring", tenantID, taskID)
		return nil
	}
	if err != nil {
		return err
	}

	switch e.Classifier.Classify(text) {
	case intent.Accept:
		return e.acceptReply(ctx, tenant, c)
	case intent.Decline:
		return e.declineReply(ctx, tenant, c)
	default:
		return e.unclearReply(ctx, tenant, c)
	}
}

func (e Engine) acceptReply(ctx context.Context, tenant domain.Tenant, c domain.Conversation) error {
	prevState, prevUpdated := c.State, c.UpdatedAt
	now := e.nowStr()
	c.State = domain.StateClaimed
	c.LastReplyReceivedAt = &now
	c.UpdatedAt = now

	err := e.transition(ctx, c, prevState, prevUpdated, "conversation.claimed", events.EventPayload{
		"owner": strVal(c.CandidateOwnerRef),
	})
	if errors.Is(err, repo.ErrStale) {
		return nil
	}
	if err != nil {
		return err
	}
	e.notifyOutcome(ctx, tenant, c.TaskID, collab.OutcomeClaimed, strVal(c.CandidateOwnerRef))
	return nil
}

// declineReply records the decline, then immediately re-resolves with the
// declining owner excluded: either a fresh candidate is asked or the
// conversation exits to unassignable. The search phase is never persisted on
// its own; the single compare-and-set covers decline and outcome together.
func (e Engine) declineReply(ctx context.Context, tenant domain.Tenant, c domain.Conversation) error {
	prevState, prevUpdated := c.State, c.UpdatedAt
	declined := strVal(c.CandidateOwnerRef)
	if declined != "" && !c.Declined(declined) {
		c.DeclinedOwnerRefs = append(c.DeclinedOwnerRefs, declined)
	}
	now := e.nowStr()
	c.LastReplyReceivedAt = &now
	c.UpdatedAt = now

	cand, err := e.Resolver.Resolve(ctx, tenant, c.TaskName, c.DeclinedOwnerRefs)
	if errors.Is(err, resolver.ErrNoOwner) {
		c.State = domain.StateUnassignable
		err := e.transition(ctx, c, prevState, prevUpdated, "conversation.unassignable", events.EventPayload{
			"declined_by": declined,
		})
		if errors.Is(err, repo.ErrStale) {
			return nil
		}
		if err != nil {
			return err
		}
		e.notifyOutcome(ctx, tenant, c.TaskID, collab.OutcomeUnassignable, "")
		return nil
	}
	if err != nil {
		return err
	}

	c.CandidateOwnerRef = &cand.UserRef
	c.CandidateOwnerName = &cand.Name
	err = e.transition(ctx, c, prevState, prevUpdated, "reply.declined", events.EventPayload{
		"declined_by":    declined,
		"next_candidate": cand.UserRef,
	})
	if errors.Is(err, repo.ErrStale) {
		return nil
	}
	if err != nil {
		return err
	}
	text := fmt.Sprintf(e.Config.Messages.ClaimRequest, cand.Name, c.TaskName)
	e.sendAndStamp(ctx, tenant, c, cand.UserRef, text, "claim.requested")
	return nil
}

// unclearReply keeps the conversation where it is and asks for a plain
// yes/no. The clarification is not a reminder: follow_ups stays untouched.
func (e Engine) unclearReply(ctx context.Context, tenant domain.Tenant, c domain.Conversation) error {
	prevState, prevUpdated := c.State, c.UpdatedAt
	now := e.nowStr()
	c.LastReplyReceivedAt = &now
	c.UpdatedAt = now

	err := e.transition(ctx, c, prevState, prevUpdated, "reply.unclear", nil)
	if errors.Is(err, repo.ErrStale) {
		return nil
	}
	if err != nil {
		return err
	}
	if ref := strVal(c.CandidateOwnerRef); ref != "" {
		text := fmt.Sprintf(e.Config.Messages.Clarification, c.TaskName)
		e.sendAndStamp(ctx, tenant, c, ref, text, "clarification.sent")
	}
	return nil
}

// OnTaskClosed retires every conversation for the task, whatever state the
// negotiation is in. Idempotent: closing twice, or closing a task that never
// opened a conversation, succeeds quietly.
func (e Engine) OnTaskClosed(ctx context.Context, tenantID, taskID string) error {
	if _, err := e.Repo.GetTenant(ctx, tenantID); err != nil {
		return fmt.Errorf("tenant %s: %w", tenantID, err)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	n, err := e.Repo.CloseConversation(ctx, tx, tenantID, taskID, e.nowStr())
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	if err := e.Events.Append(ctx, tx, "conversation.closed", tenantID, taskID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// SendReminder issues one reminder tier for an awaiting conversation. The
// tier is recorded with a compare-and-set before anything is dispatched, so
// a concurrent sweep, or a close that won the race, turns this into a no-op
// with no message sent.
func (e Engine) SendReminder(ctx context.Context, c domain.Conversation, tier string) error {
	tenant, err := e.Repo.GetTenant(ctx, c.TenantID)
	if err != nil {
		return fmt.Errorf("tenant %s: %w", c.TenantID, err)
	}
	if c.HasFollowUp(tier) {
		return nil
	}
	now := e.nowStr()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.AppendFollowUpCAS(ctx, tx, c, tier, now); err != nil {
		if errors.Is(err, repo.ErrStale) {
			log.Printf("engine: reminder %s for %s/%s lost the race, skipping", tier, c.TenantID, c.TaskID)
			return nil
		}
		return err
	}
	if err := e.Events.Append(ctx, tx, "reminder.recorded", c.TenantID, c.TaskID, events.EventPayload{"tier": tier}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	ref := strVal(c.CandidateOwnerRef)
	if ref == "" {
		return nil
	}
	tmpl := e.Config.Messages.HalfTime
	if tier == domain.TierNearDeadline {
		tmpl = e.Config.Messages.NearDeadline
	}
	text := fmt.Sprintf(tmpl, c.TaskName)
	if _, err := e.sendDM(ctx, tenant, ref, text); err != nil {
		log.Printf("engine: reminder %s for %s/%s failed to send: %v", tier, c.TenantID, c.TaskID, err)
		_ = e.Events.AppendNoTx(ctx, "reminder.failed", c.TenantID, c.TaskID, events.EventPayload{"tier": tier, "error": err.Error()})
		return nil
	}
	_ = e.Events.AppendNoTx(ctx, "reminder.sent", c.TenantID, c.TaskID, events.EventPayload{"tier": tier})
	return nil
}

// transition applies a compare-and-set state write plus its audit event in
// one transaction.
func (e Engine) transition(ctx context.Context, c domain.Conversation, expectedState, expectedUpdatedAt, evtType string, payload events.EventPayload) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateConversationCAS(ctx, tx, c, expectedState, expectedUpdatedAt); err != nil {
		if errors.Is(err, repo.ErrStale) {
			log.Printf("engine: stale transition %s for %s/%s, skipping", evtType, c.TenantID, c.TaskID)
		}
		return err
	}
	if err := e.Events.Append(ctx, tx, evtType, c.TenantID, c.TaskID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

// sendAndStamp dispatches a DM after the owning transition committed, then
// stamps the sent timestamp. A failed send leaves the conversation intact
// and is surfaced through the event log.
func (e Engine) sendAndStamp(ctx context.Context, tenant domain.Tenant, c domain.Conversation, userRef, text, evtType string) {
	if _, err := e.sendDM(ctx, tenant, userRef, text); err != nil {
		log.Printf("engine: send to %s for %s/%s failed: %v", userRef, c.TenantID, c.TaskID, err)
		_ = e.Events.AppendNoTx(ctx, "message.failed", c.TenantID, c.TaskID, events.EventPayload{"user": userRef, "error": err.Error()})
		return
	}
	if err := e.Repo.MarkMessageSent(ctx, c.TenantID, c.ID, e.nowStr()); err != nil {
		log.Printf("engine: stamp sent for %s/%s failed: %v", c.TenantID, c.TaskID, err)
	}
	_ = e.Events.AppendNoTx(ctx, evtType, c.TenantID, c.TaskID, events.EventPayload{"user": userRef})
}

// sendDM retries transient chat failures with a short backoff. Typed
// permanent outcomes (unknown user, rejected send) are not retried.
func (e Engine) sendDM(ctx context.Context, tenant domain.Tenant, userRef, text string) (string, error) {
	var handle string
	var err error
	backoff := 200 * time.Millisecond
	for attempt := 0; attempt < 3; attempt++ {
		handle, err = e.Chat.SendDirectMessage(ctx, tenant, userRef, text)
		if err == nil {
			return handle, nil
		}
		if errors.Is(err, collab.ErrUserNotFound) || errors.Is(err, collab.ErrSendRejected) {
			return "", err
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return "", err
}

func (e Engine) notifyOutcome(ctx context.Context, tenant domain.Tenant, taskID, outcome, ownerRef string) {
	if e.Notifier == nil {
		return
	}
	if err := e.Notifier.NotifyOutcome(ctx, tenant, taskID, outcome, ownerRef); err != nil {
		log.Printf("engine: notify %s for %s/%s failed: %v", outcome, tenant.ID, taskID, err)
		_ = e.Events.AppendNoTx(ctx, "notify.failed", tenant.ID, taskID, events.EventPayload{"outcome": outcome, "error": err.Error()})
	}
}

func strVal(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
