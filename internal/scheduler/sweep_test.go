package scheduler_test

import (
	"context"
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
	"claimbot/internal/scheduler"
)

type recordingChat struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordingChat) SendDirectMessage(ctx context.Context, tenant domain.Tenant, userRef, text string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, text)
	return "msg", nil
}

func (r *recordingChat) ResolveUserByName(ctx context.Context, tenant domain.Tenant, name string) (string, error) {
	return "U-" + strings.ToUpper(name), nil
}

func (r *recordingChat) ResolveUserByEmail(ctx context.Context, tenant domain.Tenant, email string) (string, error) {
	return r.ResolveUserByName(ctx, tenant, email)
}

func (r *recordingChat) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

type singleOwnerSheet struct{ owner string }

func (s singleOwnerSheet) LookupOwner(ctx context.Context, tenant domain.Tenant, taskName string) (*collab.OwnerMapping, error) {
	return &collab.OwnerMapping{OwnerName: s.owner}, nil
}

type noopNotifier struct{}

func (noopNotifier) NotifyOutcome(ctx context.Context, tenant domain.Tenant, taskID, outcome, ownerRef string) error {
	return nil
}

func TestSweepSendsDueReminders(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	if _, err := db.EnsureWorkspace(dir); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	chat := &recordingChat{}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	eng := engine.New(conn, config.Default(), chat, singleOwnerSheet{owner: "Alex"}, noopNotifier{})
	eng.Now = func() time.Time { return now }
	if err := eng.Repo.InsertTenant(ctx, domain.Tenant{
		ID:                 "ten-1",
		Name:               "Acme",
		ChatTeamID:         "team-1",
		TrackerWorkspaceID: "ws-1",
		SheetID:            "sheet-1",
		CreatedAt:          now.Format(time.RFC3339),
	}); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}

	deadline := now.Add(4 * 24 * time.Hour)
	if _, err := eng.OnTaskAssigned(ctx, "ten-1", "T1", "Q3 Report", &deadline); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if got := len(chat.messages()); got != 1 {
		t.Fatalf("sent %d DMs after assign, want 1", got)
	}

	s := scheduler.New(eng)
	s.Now = func() time.Time { return now }

	// nothing due yet
	if err := s.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if got := len(chat.messages()); got != 1 {
		t.Fatalf("sent %d DMs before midpoint, want 1", got)
	}

	// past the midpoint: half-time fires once, and only once
	now = now.Add(50 * time.Hour)
	for i := 0; i < 3; i++ {
		if err := s.Sweep(ctx); err != nil {
			t.Fatalf("sweep %d: %v", i, err)
		}
	}
	msgs := chat.messages()
	if len(msgs) != 2 {
		t.Fatalf("sent %d DMs after half-time sweeps, want 2: %v", len(msgs), msgs)
	}
	if !strings.Contains(msgs[1], "half the time") {
		t.Fatalf("half-time reminder text = %q", msgs[1])
	}

	// inside the lead window: near-deadline fires once
	now = deadline.Add(-2 * time.Hour)
	for i := 0; i < 2; i++ {
		if err := s.Sweep(ctx); err != nil {
			t.Fatalf("near sweep %d: %v", i, err)
		}
	}
	msgs = chat.messages()
	if len(msgs) != 3 {
		t.Fatalf("sent %d DMs after near-deadline sweeps, want 3: %v", len(msgs), msgs)
	}
	if !strings.Contains(msgs[2], "close to its deadline") {
		t.Fatalf("near-deadline reminder text = %q", msgs[2])
	}

	// past the deadline nothing further is due
	now = deadline.Add(48 * time.Hour)
	if err := s.Sweep(ctx); err != nil {
		t.Fatalf("late sweep: %v", err)
	}
	if got := len(chat.messages()); got != 3 {
		t.Fatalf("sent %d DMs after deadline, want 3", got)
	}
}
