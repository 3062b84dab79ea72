package repo_test

import (
	"context"
	"errors"
	"testing"

	"claimbot/internal/domain"
	"claimbot/internal/repo"
)

func insertKey(t *testing.T, r repo.Repo, tenantID, id, plaintext string) {
	t.Helper()
	err := r.InsertAPIKey(context.Background(), nil, domain.APIKey{
		ID:        id,
		TenantID:  tenantID,
		Name:      "ci",
		KeyHash:   repo.HashAPIKey(plaintext),
		CreatedAt: "2026-03-01T09:00:00Z",
	})
	if err != nil {
		t.Fatalf("insert key %s: %v", id, err)
	}
}

func TestDeleteAPIKeyTenantScoped(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	insertKey(t, r, "ten-1", "k1", "cbk_one")
	insertKey(t, r, "ten-2", "k2", "cbk_two")

	// another tenant's id does not reach the key
	if err := r.DeleteAPIKey(ctx, "ten-2", "k1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("cross-tenant delete err = %v, want ErrNotFound", err)
	}
	if _, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey("cbk_one")); err != nil {
		t.Fatalf("key gone after cross-tenant delete: %v", err)
	}

	if err := r.DeleteAPIKey(ctx, "ten-1", "k1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey("cbk_one")); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("hash lookup err = %v, want ErrNotFound", err)
	}
	if err := r.DeleteAPIKey(ctx, "ten-1", "k1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestListAPIKeysRequiresTenant(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	insertKey(t, r, "ten-1", "k1", "cbk_one")
	insertKey(t, r, "ten-2", "k2", "cbk_two")

	keys, err := r.ListAPIKeys(ctx, "ten-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 1 || keys[0].ID != "k1" {
		t.Fatalf("keys = %+v, want only k1", keys)
	}

	if _, err := r.ListAPIKeys(ctx, ""); err == nil {
		t.Fatal("expected error for missing tenant")
	}
}
