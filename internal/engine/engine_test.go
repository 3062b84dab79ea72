package engine_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"claimbot/internal/collab"
	"claimbot/internal/config"
	"claimbot/internal/db"
	"claimbot/internal/domain"
	"claimbot/internal/engine"
	"claimbot/internal/migrate"
	"claimbot/internal/repo"
	"claimbot/internal/resolver"
)

type sentDM struct {
	UserRef string
	Text    string
}

type fakeChat struct {
	mu      sync.Mutex
	sent    []sentDM
	refs    map[string]string
	sendErr error
}

func (f *fakeChat) SendDirectMessage(ctx context.Context, tenant domain.Tenant, userRef, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, sentDM{UserRef: userRef, Text: text})
	return fmt.Sprintf("msg-%d", len(f.sent)), nil
}

func (f *fakeChat) ResolveUserByName(ctx context.Context, tenant domain.Tenant, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref, ok := f.refs[strings.ToLower(name)]
	if !ok {
		return "", collab.ErrUserNotFound
	}
	return ref, nil
}

func (f *fakeChat) ResolveUserByEmail(ctx context.Context, tenant domain.Tenant, email string) (string, error) {
	return f.ResolveUserByName(ctx, tenant, email)
}

func (f *fakeChat) sentTo(ref string) []sentDM {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentDM
	for _, dm := range f.sent {
		if dm.UserRef == ref {
			out = append(out, dm)
		}
	}
	return out
}

func (f *fakeChat) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeSheet struct {
	mu      sync.Mutex
	mapping map[string]*collab.OwnerMapping
}

func (f *fakeSheet) LookupOwner(ctx context.Context, tenant domain.Tenant, taskName string) (*collab.OwnerMapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mapping[taskName], nil
}

func (f *fakeSheet) set(taskName, ownerName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mapping[taskName] = &collab.OwnerMapping{OwnerName: ownerName}
}

type outcomeRecord struct {
	TenantID string
	TaskID   string
	Outcome  string
	OwnerRef string
}

type fakeNotifier struct {
	mu       sync.Mutex
	outcomes []outcomeRecord
}

func (f *fakeNotifier) NotifyOutcome(ctx context.Context, tenant domain.Tenant, taskID, outcome, ownerRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcomeRecord{TenantID: tenant.ID, TaskID: taskID, Outcome: outcome, OwnerRef: ownerRef})
	return nil
}

func (f *fakeNotifier) all() []outcomeRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]outcomeRecord(nil), f.outcomes...)
}

type testEnv struct {
	Engine   engine.Engine
	Chat     *fakeChat
	Sheet    *fakeSheet
	Notifier *fakeNotifier
	Ctx      context.Context
	now      time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	if _, err := db.EnsureWorkspace(dir); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	chat := &fakeChat{refs: map[string]string{}}
	sheet := &fakeSheet{mapping: map[string]*collab.OwnerMapping{}}
	notifier := &fakeNotifier{}
	env := &testEnv{
		Chat:     chat,
		Sheet:    sheet,
		Notifier: notifier,
		Ctx:      context.Background(),
		now:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	env.Engine = engine.New(conn, config.Default(), chat, sheet, notifier)
	env.Engine.Now = func() time.Time { return env.now }
	env.seedTenant(t, "ten-1")
	return env
}

func (env *testEnv) seedTenant(t *testing.T, id string) {
	t.Helper()
	err := env.Engine.Repo.InsertTenant(env.Ctx, domain.Tenant{
		ID:                 id,
		Name:               "Acme " + id,
		ChatTeamID:         "team-" + id,
		TrackerWorkspaceID: "ws-" + id,
		SheetID:            "sheet-" + id,
		CreatedAt:          env.now.Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("seed tenant %s: %v", id, err)
	}
}

func (env *testEnv) advance(d time.Duration) {
	env.now = env.now.Add(d)
}

func (env *testEnv) mustConversation(t *testing.T, tenantID, id string) domain.Conversation {
	t.Helper()
	c, err := env.Engine.Repo.GetConversation(env.Ctx, tenantID, id)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	return c
}

func TestAssignSendsClaimRequest(t *testing.T) {
	env := newTestEnv(t)
	env.Chat.refs["alex"] = "U-ALEX"
	env.Sheet.set("Q3 Report", "Alex")

	c, err := env.Engine.OnTaskAssigned(env.Ctx, "ten-1", "T1", "Q3 Report", nil)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if c.State != domain.StateAwaitingResponse {
		t.Fatalf("state = %s, want awaiting_response", c.State)
	}
	if got := *c.CandidateOwnerRef; got != "U-ALEX" {
		t.Fatalf("candidate = %s, want U-ALEX", got)
	}
	dms := env.Chat.sentTo("U-ALEX")
	if len(dms) != 1 {
		t.Fatalf("sent %d DMs, want 1", len(dms))
	}
	if !strings.Contains(dms[0].Text, "Alex") || !strings.Contains(dms[0].Text, "Q3 Report") {
		t.Fatalf("claim request missing name or task: %q", dms[0].Text)
	}
	stored := env.mustConversation(t, "ten-1", c.ID)
	if stored.LastMessageSentAt == nil {
		t.Fatal("last_message_sent_at not stamped")
	}
}

func TestAssignUnmappedTaskUnassignable(t *testing.T) {
	env := newTestEnv(t)

	c, err := env.Engine.OnTaskAssigned(env.Ctx, "ten-1", "T1", "Mystery Task", nil)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if c.State != domain.StateUnassignable {
		t.Fatalf("state = %s, want unassignable", c.State)
	}
	if env.Chat.count() != 0 {
		t.Fatalf("sent %d DMs, want 0", env.Chat.count())
	}
	outcomes := env.Notifier.all()
	if len(outcomes) != 1 || outcomes[0].Outcome != collab.OutcomeUnassignable {
		t.Fatalf("outcomes = %+v, want one unassignable", outcomes)
	}
}

func TestAssignUnknownChatUserUnassignable(t *testing.T) {
	env := newTestEnv(t)
	env.Sheet.set("Q3 Report", "Ghost")

	c, err := env.Engine.OnTaskAssigned(env.Ctx, "ten-1", "T1", "Q3 Report", nil)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if c.State != domain.StateUnassignable {
		t.Fatalf("state = %s, want unassignable", c.State)
	}
	if env.Chat.count() != 0 {
		t.Fatalf("sent %d DMs, want 0", env.Chat.count())
	}
}

func TestDuplicateAssignIsNoop(t *testing.T) {
	env := newTestEnv(t)
	env.Chat.refs["alex"] = "U-ALEX"
	env.Sheet.set("Q3 Report", "Alex")

	first, err := env.Engine.OnTaskAssigned(env.Ctx, "ten-1", "T1", "Q3 Report", nil)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	env.advance(time.Minute)
	second, err := env.Engine.OnTaskAssigned(env.Ctx, "ten-1", "T1", "Q3 Report", nil)
	if err != nil {
		t.Fatalf("re-assign: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("duplicate assignment created a new conversation: %s vs %s", second.ID, first.ID)
	}
	if env.Chat.count() != 1 {
		t.Fatalf("sent %d DMs, want 1", env.Chat.count())
	}
}

func TestAcceptClaimsConversation(t *testing.T) {
	env := newTestEnv(t)
	env.Chat.refs["alex"] = "U-ALEX"
	env.Sheet.set("Q3 Report", "Alex")

	c, err := env.Engine.OnTaskAssigned(env.Ctx, "ten-1", "T1", "Q3 Report", nil)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	env.advance(time.Minute)
	if err := env.Engine.OnReplyReceived(env.Ctx, "ten-1", "T1", "I'll take it"); err != nil {
		t.Fatalf("reply: %v", err)
	}
	stored := env.mustConversation(t, "ten-1", c.ID)
	if stored.State != domain.StateClaimed {
		t.Fatalf("state = %s, want claimed", stored.State)
	}
	outcomes := env.Notifier.all()
	if len(outcomes) != 1 || outcomes[0].Outcome != collab.OutcomeClaimed || outcomes[0].OwnerRef != "U-ALEX" {
		t.Fatalf("outcomes = %+v, want one claimed by U-ALEX", outcomes)
	}

	// a second reply lands after the conversation went terminal and is
	// ignored
	env.advance(time.Minute)
	if err := env.Engine.OnReplyReceived(env.Ctx, "ten-1", "T1", "yes"); err != nil {
		t.Fatalf("late reply: %v", err)
	}
	if got := len(env.Notifier.all()); got != 1 {
		t.Fatalf("notified %d times, want 1", got)
	}
}

func TestDeclineNoAlternateGoesUnassignable(t *testing.T) {
	env := newTestEnv(t)
	env.Chat.refs["alex"] = "U-ALEX"
	env.Sheet.set("Q3 Report", "Alex")

	c, err := env.Engine.OnTaskAssigned(env.Ctx, "ten-1", "T1", "Q3 Report", nil)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	env.advance(time.Minute)
	if err := env.Engine.OnReplyReceived(env.Ctx, "ten-1", "T1", "no thanks"); err != nil {
		t.Fatalf("reply: %v", err)
	}
	stored := env.mustConversation(t, "ten-1", c.ID)
	if stored.State != domain.StateUnassignable {
		t.Fatalf("state = %s, want unassignable", stored.State)
	}
	if len(stored.DeclinedOwnerRefs) != 1 || stored.DeclinedOwnerRefs[0] != "U-ALEX" {
		t.Fatalf("declined refs = %v, want [U-ALEX]", stored.DeclinedOwnerRefs)
	}
	outcomes := env.Notifier.all()
	if len(outcomes) != 1 || outcomes[0].Outcome != collab.OutcomeUnassignable {
		t.Fatalf("outcomes = %+v, want one unassignable", outcomes)
	}

	// reminders against the retired snapshot must not send anything
	if err := env.Engine.SendReminder(env.Ctx, c, domain.TierHalfTime); err != nil {
		t.Fatalf("reminder: %v", err)
	}
	if env.Chat.count() != 1 {
		t.Fatalf("sent %d DMs, want 1 (claim request only)", env.Chat.count())
	}
}

func TestDeclineWithAlternateReopens(t *testing.T) {
	env := newTestEnv(t)
	env.Chat.refs["alex"] = "U-ALEX"
	env.Chat.refs["bailey"] = "U-BAILEY"
	env.Sheet.set("Q3 Report", "Alex")

	c, err := env.Engine.OnTaskAssigned(env.Ctx, "ten-1", "T1", "Q3 Report", nil)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	env.Sheet.set("Q3 Report", "Bailey")
	env.advance(time.Minute)
	if err := env.Engine.OnReplyReceived(env.Ctx, "ten-1", "T1", "not me"); err != nil {
		t.Fatalf("reply: %v", err)
	}
	stored := env.mustConversation(t, "ten-1", c.ID)
	if stored.State != domain.StateAwaitingResponse {
		t.Fatalf("state = %s, want awaiting_response", stored.State)
	}
	if got := *stored.CandidateOwnerRef; got != "U-BAILEY" {
		t.Fatalf("candidate = %s, want U-BAILEY", got)
	}
	if len(stored.DeclinedOwnerRefs) != 1 || stored.DeclinedOwnerRefs[0] != "U-ALEX" {
		t.Fatalf("declined refs = %v, want [U-ALEX]", stored.DeclinedOwnerRefs)
	}
	dms := env.Chat.sentTo("U-BAILEY")
	if len(dms) != 1 || !strings.Contains(dms[0].Text, "Bailey") {
		t.Fatalf("expected claim request to Bailey, got %+v", dms)
	}
}

func TestUnclearReplySendsClarification(t *testing.T) {
	env := newTestEnv(t)
	env.Chat.refs["alex"] = "U-ALEX"
	env.Sheet.set("Q3 Report", "Alex")

	c, err := env.Engine.OnTaskAssigned(env.Ctx, "ten-1", "T1", "Q3 Report", nil)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	env.advance(time.Minute)
	if err := env.Engine.OnReplyReceived(env.Ctx, "ten-1", "T1", "let me check with my lead"); err != nil {
		t.Fatalf("reply: %v", err)
	}
	stored := env.mustConversation(t, "ten-1", c.ID)
	if stored.State != domain.StateAwaitingResponse {
		t.Fatalf("state = %s, want awaiting_response", stored.State)
	}
	if stored.LastReplyReceivedAt == nil {
		t.Fatal("last_reply_received_at not stamped")
	}
	if len(stored.FollowUpsSent) != 0 {
		t.Fatalf("clarification must not consume a reminder tier: %v", stored.FollowUpsSent)
	}
	dms := env.Chat.sentTo("U-ALEX")
	if len(dms) != 2 {
		t.Fatalf("sent %d DMs to Alex, want claim request + clarification", len(dms))
	}
	if !strings.Contains(dms[1].Text, "yes or a no") {
		t.Fatalf("clarification text = %q", dms[1].Text)
	}
}

func TestReplyWithoutConversationIgnored(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Engine.OnReplyReceived(env.Ctx, "ten-1", "T-GHOST", "yes"); err != nil {
		t.Fatalf("reply: %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.Chat.refs["alex"] = "U-ALEX"
	env.Sheet.set("Q3 Report", "Alex")

	c, err := env.Engine.OnTaskAssigned(env.Ctx, "ten-1", "T1", "Q3 Report", nil)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	env.advance(time.Minute)
	if err := env.Engine.OnTaskClosed(env.Ctx, "ten-1", "T1"); err != nil {
		t.Fatalf("close: %v", err)
	}
	stored := env.mustConversation(t, "ten-1", c.ID)
	if stored.State != domain.StateClosed {
		t.Fatalf("state = %s, want closed", stored.State)
	}
	// closing again, and closing a task that never opened, are quiet no-ops
	if err := env.Engine.OnTaskClosed(env.Ctx, "ten-1", "T1"); err != nil {
		t.Fatalf("re-close: %v", err)
	}
	if err := env.Engine.OnTaskClosed(env.Ctx, "ten-1", "T-NEVER"); err != nil {
		t.Fatalf("close unknown: %v", err)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 50, "ten-1", "conversation.closed", "T1")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) != 1 {
		t.Fatalf("logged %d close events, want 1", len(evts))
	}
}

func TestCloseWinsReminderRace(t *testing.T) {
	env := newTestEnv(t)
	env.Chat.refs["alex"] = "U-ALEX"
	deadline := env.now.Add(48 * time.Hour)
	env.Sheet.set("Q3 Report", "Alex")

	c, err := env.Engine.OnTaskAssigned(env.Ctx, "ten-1", "T1", "Q3 Report", &deadline)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	env.advance(time.Minute)
	if err := env.Engine.OnTaskClosed(env.Ctx, "ten-1", "T1"); err != nil {
		t.Fatalf("close: %v", err)
	}
	// the sweep read its snapshot before the close committed
	if err := env.Engine.SendReminder(env.Ctx, c, domain.TierHalfTime); err != nil {
		t.Fatalf("reminder: %v", err)
	}
	if env.Chat.count() != 1 {
		t.Fatalf("sent %d DMs, want 1 (no reminder after close)", env.Chat.count())
	}
	stored := env.mustConversation(t, "ten-1", c.ID)
	if len(stored.FollowUpsSent) != 0 {
		t.Fatalf("follow-ups recorded after close: %v", stored.FollowUpsSent)
	}
}

func TestReminderSentOncePerTier(t *testing.T) {
	env := newTestEnv(t)
	env.Chat.refs["alex"] = "U-ALEX"
	deadline := env.now.Add(48 * time.Hour)
	env.Sheet.set("Q3 Report", "Alex")

	c, err := env.Engine.OnTaskAssigned(env.Ctx, "ten-1", "T1", "Q3 Report", &deadline)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	env.advance(25 * time.Hour)
	if err := env.Engine.SendReminder(env.Ctx, c, domain.TierHalfTime); err != nil {
		t.Fatalf("reminder: %v", err)
	}
	if env.Chat.count() != 2 {
		t.Fatalf("sent %d DMs, want claim request + reminder", env.Chat.count())
	}

	// a second sweep with a fresh read sees the tier recorded
	fresh := env.mustConversation(t, "ten-1", c.ID)
	if !fresh.HasFollowUp(domain.TierHalfTime) {
		t.Fatal("half_time tier not recorded")
	}
	if err := env.Engine.SendReminder(env.Ctx, fresh, domain.TierHalfTime); err != nil {
		t.Fatalf("repeat reminder: %v", err)
	}
	// and a racing sweep with the stale snapshot loses the compare-and-set
	if err := env.Engine.SendReminder(env.Ctx, c, domain.TierHalfTime); err != nil {
		t.Fatalf("stale reminder: %v", err)
	}
	if env.Chat.count() != 2 {
		t.Fatalf("sent %d DMs, want 2", env.Chat.count())
	}
	stored := env.mustConversation(t, "ten-1", c.ID)
	if len(stored.FollowUpsSent) != 1 {
		t.Fatalf("follow-ups = %v, want one half_time", stored.FollowUpsSent)
	}
}

func TestReminderSendFailureStaysRecorded(t *testing.T) {
	env := newTestEnv(t)
	env.Chat.refs["alex"] = "U-ALEX"
	deadline := env.now.Add(48 * time.Hour)
	env.Sheet.set("Q3 Report", "Alex")

	c, err := env.Engine.OnTaskAssigned(env.Ctx, "ten-1", "T1", "Q3 Report", &deadline)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	env.Chat.sendErr = collab.ErrSendRejected
	if err := env.Engine.SendReminder(env.Ctx, c, domain.TierHalfTime); err != nil {
		t.Fatalf("reminder: %v", err)
	}
	// the tier stays spent; a failed dispatch is logged, not retried
	stored := env.mustConversation(t, "ten-1", c.ID)
	if !stored.HasFollowUp(domain.TierHalfTime) {
		t.Fatal("half_time tier not recorded after failed send")
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, "ten-1", "reminder.failed", "T1")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) != 1 {
		t.Fatalf("logged %d reminder.failed events, want 1", len(evts))
	}
}

func TestTenantIsolation(t *testing.T) {
	env := newTestEnv(t)
	env.seedTenant(t, "ten-2")
	env.Chat.refs["alex"] = "U-ALEX"
	env.Chat.refs["bailey"] = "U-BAILEY"
	env.Sheet.set("Q3 Report", "Alex")

	a, err := env.Engine.OnTaskAssigned(env.Ctx, "ten-1", "T1", "Q3 Report", nil)
	if err != nil {
		t.Fatalf("assign ten-1: %v", err)
	}
	b, err := env.Engine.OnTaskAssigned(env.Ctx, "ten-2", "T1", "Q3 Report", nil)
	if err != nil {
		t.Fatalf("assign ten-2: %v", err)
	}
	if a.ID == b.ID {
		t.Fatal("tenants share a conversation")
	}

	env.advance(time.Minute)
	if err := env.Engine.OnReplyReceived(env.Ctx, "ten-1", "T1", "yes"); err != nil {
		t.Fatalf("reply ten-1: %v", err)
	}
	if got := env.mustConversation(t, "ten-1", a.ID).State; got != domain.StateClaimed {
		t.Fatalf("ten-1 state = %s, want claimed", got)
	}
	if got := env.mustConversation(t, "ten-2", b.ID).State; got != domain.StateAwaitingResponse {
		t.Fatalf("ten-2 state = %s, want awaiting_response", got)
	}

	// cross-tenant reads miss
	if _, err := env.Engine.Repo.GetConversation(env.Ctx, "ten-2", a.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("cross-tenant get = %v, want ErrNotFound", err)
	}
}

func TestAssignUnknownTenant(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.OnTaskAssigned(env.Ctx, "ten-missing", "T1", "Q3 Report", nil); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// racingSheet injects a competing insert during owner resolution, landing in
// the window between the duplicate check and the engine's own insert.
type racingSheet struct {
	inner  *fakeSheet
	once   sync.Once
	insert func()
}

func (s *racingSheet) LookupOwner(ctx context.Context, tenant domain.Tenant, taskName string) (*collab.OwnerMapping, error) {
	s.once.Do(s.insert)
	return s.inner.LookupOwner(ctx, tenant, taskName)
}

func TestConcurrentAssignLoserAdoptsWinner(t *testing.T) {
	env := newTestEnv(t)
	env.Chat.refs["alex"] = "U-ALEX"
	env.Sheet.set("Q3 Report", "Alex")

	ref := "U-ALEX"
	name := "Alex"
	ts := env.now.Format(time.RFC3339)
	winner := domain.Conversation{
		ID:                 "winner",
		TenantID:           "ten-1",
		TaskID:             "T1",
		TaskName:           "Q3 Report",
		State:              domain.StateAwaitingResponse,
		CandidateOwnerRef:  &ref,
		CandidateOwnerName: &name,
		CreatedAt:          ts,
		UpdatedAt:          ts,
	}
	racing := &racingSheet{inner: env.Sheet, insert: func() {
		tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
		if err != nil {
			t.Fatalf("begin tx: %v", err)
		}
		defer tx.Rollback()
		if err := env.Engine.Repo.InsertConversation(env.Ctx, tx, winner); err != nil {
			t.Fatalf("insert winner: %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("commit winner: %v", err)
		}
	}}
	env.Engine.Resolver = resolver.New(racing, env.Chat)

	c, err := env.Engine.OnTaskAssigned(env.Ctx, "ten-1", "T1", "Q3 Report", nil)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if c.ID != "winner" {
		t.Fatalf("conversation id = %s, want the winner's", c.ID)
	}
	if env.Chat.count() != 0 {
		t.Fatalf("loser sent %d DMs, want 0", env.Chat.count())
	}
}
