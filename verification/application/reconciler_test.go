package application

import (
	"context"
	"testing"
	"time"

	"github.com/tokengate/tokengate/verification/domain"
)

func setupReconciler(t *testing.T) (*Reconciler, *engineFixture) {
	t.Helper()
	f := setupEngine(t)
	r := NewReconciler(f.ledger, f.rules, f.assets, f.roles, time.Hour, 100, 10*time.Second)
	return r, f
}

// seedActive verifies a user through the engine so the ledger row is created
// the same way production does it.
func seedActive(t *testing.T, f *engineFixture, ruleID string) {
	t.Helper()
	if _, err := f.engine.VerifyUserBulk(context.Background(), "user1", []string{ruleID}, "0xabc", ""); err != nil {
		t.Fatalf("seeding verification failed: %v", err)
	}
}

func TestSweepExpiresUnqualifiedRow(t *testing.T) {
	r, f := setupReconciler(t)
	ctx := context.Background()

	rule := f.addRule(t, &domain.Rule{CollectionSlug: domain.Exact("cool-cats"), RoleID: "role1"})
	f.assets.assets = []domain.Asset{{Slug: "cool-cats"}}
	seedActive(t, f, rule.ID)

	// The wallet sold off the collection since verification.
	f.assets.assets = nil

	r.now = func() time.Time { return time.Now().Add(time.Minute) }
	stats := r.Sweep(ctx)
	if stats.Checked != 1 || stats.Expired != 1 {
		t.Fatalf("Sweep() = %+v, want 1 checked 1 expired", stats)
	}
	if got := f.roles.revokeCount(); got != 1 {
		t.Errorf("expected exactly 1 revoke call, got %d", got)
	}

	rows, _ := f.ledger.ListActiveByUser(ctx, "user1", "server1")
	if len(rows) != 0 {
		t.Errorf("expected no active rows after expiry, got %d", len(rows))
	}

	// The expired row stays out of every later sweep.
	stats = r.Sweep(ctx)
	if stats.Checked != 0 {
		t.Errorf("second sweep rechecked an expired row: %+v", stats)
	}
	if got := f.roles.revokeCount(); got != 1 {
		t.Errorf("second sweep revoked again: %d total calls", got)
	}
}

func TestSweepTouchesValidRow(t *testing.T) {
	r, f := setupReconciler(t)
	ctx := context.Background()

	rule := f.addRule(t, &domain.Rule{CollectionSlug: domain.Exact("cool-cats"), RoleID: "role1"})
	f.assets.assets = []domain.Asset{{Slug: "cool-cats"}}
	seedActive(t, f, rule.ID)

	before, _ := f.ledger.ListActiveByUser(ctx, "user1", "server1")

	r.now = func() time.Time { return time.Now().Add(time.Minute) }
	stats := r.Sweep(ctx)
	if stats.Checked != 1 || stats.Valid != 1 {
		t.Fatalf("Sweep() = %+v, want 1 checked 1 valid", stats)
	}
	if f.roles.revokeCount() != 0 {
		t.Error("valid row must not trigger a revoke")
	}

	after, _ := f.ledger.ListActiveByUser(ctx, "user1", "server1")
	if len(after) != 1 || !after[0].LastCheckedAt.After(before[0].LastCheckedAt) {
		t.Error("expected last_checked to advance on a valid row")
	}
}

func TestSweepRevokesRowWithDeletedRule(t *testing.T) {
	r, f := setupReconciler(t)
	ctx := context.Background()

	rule := f.addRule(t, &domain.Rule{RoleID: "role1"})
	f.assets.assets = []domain.Asset{{Slug: "anything"}}
	seedActive(t, f, rule.ID)

	if err := f.rules.Delete(ctx, rule.ID); err != nil {
		t.Fatalf("failed to delete rule: %v", err)
	}

	r.now = func() time.Time { return time.Now().Add(time.Minute) }
	stats := r.Sweep(ctx)
	if stats.Expired != 1 {
		t.Fatalf("Sweep() = %+v, want the orphaned row expired", stats)
	}
	if f.roles.revokeCount() != 1 {
		t.Errorf("expected 1 revoke for the orphaned row, got %d", f.roles.revokeCount())
	}
}

func TestSweepLeavesRowActiveOnRevokeFailure(t *testing.T) {
	r, f := setupReconciler(t)
	ctx := context.Background()

	rule := f.addRule(t, &domain.Rule{CollectionSlug: domain.Exact("cool-cats"), RoleID: "role1"})
	f.assets.assets = []domain.Asset{{Slug: "cool-cats"}}
	seedActive(t, f, rule.ID)

	f.assets.assets = nil
	f.roles.failAll = true

	r.now = func() time.Time { return time.Now().Add(time.Minute) }
	stats := r.Sweep(ctx)
	if stats.Failed != 1 || stats.Expired != 0 {
		t.Fatalf("Sweep() = %+v, want 1 failed 0 expired", stats)
	}

	// The row stays active so the next run retries.
	rows, _ := f.ledger.ListActiveByUser(ctx, "user1", "server1")
	if len(rows) != 1 {
		t.Fatalf("expected the row to stay active after a revoke failure")
	}

	f.roles.failAll = false
	stats = r.Sweep(ctx)
	if stats.Expired != 1 {
		t.Errorf("retry sweep = %+v, want the row expired", stats)
	}
}

func TestSweepSkipsRowOnAssetFetchFailure(t *testing.T) {
	r, f := setupReconciler(t)
	ctx := context.Background()

	rule := f.addRule(t, &domain.Rule{RoleID: "role1"})
	f.assets.assets = []domain.Asset{{Slug: "anything"}}
	seedActive(t, f, rule.ID)

	f.assets.err = context.DeadlineExceeded

	r.now = func() time.Time { return time.Now().Add(time.Minute) }
	stats := r.Sweep(ctx)
	if stats.Failed != 1 {
		t.Fatalf("Sweep() = %+v, want 1 failed", stats)
	}
	if f.roles.revokeCount() != 0 {
		t.Error("an unreachable indexer must never cause a revoke")
	}
	rows, _ := f.ledger.ListActiveByUser(ctx, "user1", "server1")
	if len(rows) != 1 {
		t.Error("expected the row to stay active when holdings could not be read")
	}
}

func TestReverifyUserSplitsOutcomes(t *testing.T) {
	r, f := setupReconciler(t)
	ctx := context.Background()

	keep := f.addRule(t, &domain.Rule{CollectionSlug: domain.Exact("cool-cats"), RoleID: "role1"})
	lose := f.addRule(t, &domain.Rule{CollectionSlug: domain.Exact("lazy-lions"), RoleID: "role2"})
	f.assets.assets = []domain.Asset{{Slug: "cool-cats"}, {Slug: "lazy-lions"}}
	seedActive(t, f, keep.ID)
	seedActive(t, f, lose.ID)

	// Only the cool-cats holding remains.
	f.assets.assets = []domain.Asset{{Slug: "cool-cats"}}

	result, err := r.ReverifyUser(ctx, "user1", "server1")
	if err != nil {
		t.Fatalf("ReverifyUser() unexpected error: %v", err)
	}
	if len(result.Verified) != 1 || result.Verified[0] != "role1" {
		t.Errorf("Verified = %v, want [role1]", result.Verified)
	}
	if len(result.Revoked) != 1 || result.Revoked[0] != "role2" {
		t.Errorf("Revoked = %v, want [role2]", result.Revoked)
	}
}
