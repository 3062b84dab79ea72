// Package scheduler drives deadline-aware reminders. It never holds a timer
// per conversation: each tick re-evaluates every awaiting conversation with
// a deadline and asks the engine to send whatever tier is due. The engine's
// compare-and-set on the follow-up set is the single source of truth for
// "already sent", so overlapping or repeated sweeps cannot double-send.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"claimbot/internal/domain"
	"claimbot/internal/engine"
)

const defaultTenantConcurrency = 4

type Scheduler struct {
	Engine   engine.Engine
	Interval time.Duration
	Lead     time.Duration
	Now      func() time.Time

	mu sync.Mutex
}

func New(e engine.Engine) *Scheduler {
	return &Scheduler{
		Engine:   e,
		Interval: e.Config.Interval(),
		Lead:     e.Config.NearDeadlineLead(),
		Now:      time.Now,
	}
}

// Run sweeps at the configured interval until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		if err := s.Sweep(ctx); err != nil {
			log.Printf("scheduler: sweep failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep evaluates all awaiting conversations once. Non-reentrant: if the
// previous sweep is still running the tick is skipped rather than stacked.
// Tenants are swept in parallel; they share no conversations, so there is
// nothing to contend on across them.
func (s *Scheduler) Sweep(ctx context.Context) error {
	if !s.mu.TryLock() {
		log.Printf("scheduler: previous sweep still running, skipping tick")
		return nil
	}
	defer s.mu.Unlock()

	tenants, err := s.Engine.Repo.TenantsAwaiting(ctx)
	if err != nil {
		return err
	}
	p := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(defaultTenantConcurrency)
	for _, tenantID := range tenants {
		p.Go(func(ctx context.Context) error {
			return s.sweepTenant(ctx, tenantID)
		})
	}
	return p.Wait()
}

func (s *Scheduler) sweepTenant(ctx context.Context, tenantID string) error {
	convs, err := s.Engine.Repo.AwaitingWithDeadline(ctx, tenantID)
	if err != nil {
		return err
	}
	now := s.now()
	for _, c := range convs {
		tier, ok := dueTierFor(c, now, s.Lead)
		if !ok || c.HasFollowUp(tier) {
			continue
		}
		if err := s.Engine.SendReminder(ctx, c, tier); err != nil {
			log.Printf("scheduler: reminder %s for %s/%s: %v", tier, c.TenantID, c.TaskID, err)
		}
	}
	return nil
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func dueTierFor(c domain.Conversation, now time.Time, lead time.Duration) (string, bool) {
	if c.TaskDeadline == nil {
		return "", false
	}
	deadline, err := time.Parse(time.RFC3339, *c.TaskDeadline)
	if err != nil {
		return "", false
	}
	created, err := time.Parse(time.RFC3339, c.CreatedAt)
	if err != nil {
		return "", false
	}
	return DueTier(created, deadline, now, lead)
}

// DueTier computes which reminder tier, if any, is currently due. Half-time
// is the midpoint of the created-to-deadline window; near-deadline is the
// lead duration before the deadline. The most urgent due tier wins: an
// unsent half-time that was overtaken by the near-deadline point is skipped,
// not back-filled. Past the deadline no new tier ever becomes due.
func DueTier(created, deadline, now time.Time, lead time.Duration) (string, bool) {
	if now.After(deadline) {
		return "", false
	}
	nearAt := deadline.Add(-lead)
	if !now.Before(nearAt) {
		return domain.TierNearDeadline, true
	}
	window := deadline.Sub(created)
	if window <= 0 {
		return "", false
	}
	halfAt := created.Add(window / 2)
	if !halfAt.Before(nearAt) {
		// degenerate window: the midpoint lands inside the lead period,
		// only the near-deadline tier applies
		return "", false
	}
	if !now.Before(halfAt) {
		return domain.TierHalfTime, true
	}
	return "", false
}
