package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"claimbot/internal/domain"
)

func marshalStrings(in []string) string {
	if len(in) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(in)
	return string(b)
}

func unmarshalStrings(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

const conversationCols = `id,tenant_id,task_id,task_name,state,candidate_owner_ref,candidate_owner_name,task_deadline,last_message_sent_at,last_reply_received_at,follow_ups_json,declined_refs_json,created_at,updated_at`

func scanConversation(scan func(dest ...any) error) (domain.Conversation, error) {
	var c domain.Conversation
	var ref, name, deadline, sentAt, replyAt sql.NullString
	var followUps, declined string
	err := scan(&c.ID, &c.TenantID, &c.TaskID, &c.TaskName, &c.State, &ref, &name, &deadline, &sentAt, &replyAt, &followUps, &declined, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if ref.Valid {
		c.CandidateOwnerRef = &ref.String
	}
	if name.Valid {
		c.CandidateOwnerName = &name.String
	}
	if deadline.Valid {
		c.TaskDeadline = &deadline.String
	}
	if sentAt.Valid {
		c.LastMessageSentAt = &sentAt.String
	}
	if replyAt.Valid {
		c.LastReplyReceivedAt = &replyAt.String
	}
	c.FollowUpsSent = unmarshalStrings(followUps)
	c.DeclinedOwnerRefs = unmarshalStrings(declined)
	return c, nil
}

func (r Repo) InsertConversation(ctx context.Context, tx *sql.Tx, c domain.Conversation) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO conversations(`+conversationCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.TenantID, c.TaskID, c.TaskName, c.State,
		nullableStringPtr(c.CandidateOwnerRef), nullableStringPtr(c.CandidateOwnerName),
		nullableStringPtr(c.TaskDeadline), nullableStringPtr(c.LastMessageSentAt), nullableStringPtr(c.LastReplyReceivedAt),
		marshalStrings(c.FollowUpsSent), marshalStrings(c.DeclinedOwnerRefs),
		c.CreatedAt, c.UpdatedAt)
	return err
}

// ActiveConversation returns the single non-terminal conversation for a
// (tenant, task), or ErrNotFound.
func (r Repo) ActiveConversation(ctx context.Context, tenantID, taskID string) (domain.Conversation, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+conversationCols+` FROM conversations
WHERE tenant_id=? AND task_id=? AND state NOT IN ('claimed','unassignable','closed')`, tenantID, taskID)
	return scanConversation(row.Scan)
}

// LatestConversation returns the most recent conversation for a (tenant,
// task) in any state.
func (r Repo) LatestConversation(ctx context.Context, tenantID, taskID string) (domain.Conversation, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+conversationCols+` FROM conversations
WHERE tenant_id=? AND task_id=? ORDER BY created_at DESC, id DESC LIMIT 1`, tenantID, taskID)
	return scanConversation(row.Scan)
}

func (r Repo) GetConversation(ctx context.Context, tenantID, id string) (domain.Conversation, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+conversationCols+` FROM conversations WHERE tenant_id=? AND id=?`, tenantID, id)
	return scanConversation(row.Scan)
}

type ConversationFilters struct {
	TenantID        string
	State           string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListConversations(ctx context.Context, f ConversationFilters) ([]domain.Conversation, error) {
	if f.TenantID == "" {
		return nil, fmt.Errorf("tenant required")
	}
	clauses := []string{"tenant_id=?"}
	args := []any{f.TenantID}
	if f.State != "" {
		clauses = append(clauses, "state=?")
		args = append(args, f.State)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query := `SELECT ` + conversationCols + ` FROM conversations WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Conversation
	for rows.Next() {
		c, err := scanConversation(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// TenantsAwaiting returns the tenant ids that currently have at least one
// awaiting conversation with a deadline, for the scheduler's fan-out.
func (r Repo) TenantsAwaiting(ctx context.Context) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT DISTINCT tenant_id FROM conversations
WHERE state=? AND task_deadline IS NOT NULL`, domain.StateAwaitingResponse)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AwaitingWithDeadline lists a tenant's awaiting conversations that carry a
// deadline, oldest first.
func (r Repo) AwaitingWithDeadline(ctx context.Context, tenantID string) ([]domain.Conversation, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+conversationCols+` FROM conversations
WHERE tenant_id=? AND state=? AND task_deadline IS NOT NULL ORDER BY created_at ASC, id ASC`, tenantID, domain.StateAwaitingResponse)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Conversation
	for rows.Next() {
		c, err := scanConversation(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// UpdateConversationCAS writes the mutable fields of c if and only if the
// row still carries the expected state and updated_at. Zero rows affected
// yields ErrStale.
func (r Repo) UpdateConversationCAS(ctx context.Context, tx *sql.Tx, c domain.Conversation, expectedState, expectedUpdatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE conversations SET
state=?, candidate_owner_ref=?, candidate_owner_name=?, last_message_sent_at=?, last_reply_received_at=?,
follow_ups_json=?, declined_refs_json=?, updated_at=?
WHERE tenant_id=? AND id=? AND state=? AND updated_at=?`,
		c.State, nullableStringPtr(c.CandidateOwnerRef), nullableStringPtr(c.CandidateOwnerName),
		nullableStringPtr(c.LastMessageSentAt), nullableStringPtr(c.LastReplyReceivedAt),
		marshalStrings(c.FollowUpsSent), marshalStrings(c.DeclinedOwnerRefs), c.UpdatedAt,
		c.TenantID, c.ID, expectedState, expectedUpdatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStale
	}
	return nil
}

// AppendFollowUpCAS records a reminder tier, guarded by the prior follow-up
// set so concurrent scheduler sweeps cannot record the same tier twice.
func (r Repo) AppendFollowUpCAS(ctx context.Context, tx *sql.Tx, c domain.Conversation, tier, now string) error {
	prior := marshalStrings(c.FollowUpsSent)
	next := marshalStrings(append(append([]string{}, c.FollowUpsSent...), tier))
	res, err := tx.ExecContext(ctx, `UPDATE conversations SET follow_ups_json=?, last_message_sent_at=?, updated_at=?
WHERE tenant_id=? AND id=? AND state=? AND follow_ups_json=?`,
		next, now, now, c.TenantID, c.ID, domain.StateAwaitingResponse, prior)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStale
	}
	return nil
}

// MarkMessageSent stamps last_message_sent_at after a successful dispatch.
// The stamp is bookkeeping, not a transition, so updated_at stays put:
// a concurrent reply that read the row before the send must still pass
// its compare-and-set.
func (r Repo) MarkMessageSent(ctx context.Context, tenantID, id, now string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE conversations SET last_message_sent_at=? WHERE tenant_id=? AND id=?`,
		now, tenantID, id)
	return err
}

// CloseConversation moves every conversation for the task to closed,
// whatever state it is in. Returns the number of rows moved; zero means
// there was nothing left to close (close is idempotent).
func (r Repo) CloseConversation(ctx context.Context, tx *sql.Tx, tenantID, taskID, now string) (int64, error) {
	res, err := tx.ExecContext(ctx, `UPDATE conversations SET state=?, updated_at=?
WHERE tenant_id=? AND task_id=? AND state<>'closed'`,
		domain.StateClosed, now, tenantID, taskID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
