package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tokengate/tokengate/verification/domain"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on",
		filepath.Join(t.TempDir(), "test.db"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func setupLedger(t *testing.T) *AssignmentGormRepository {
	t.Helper()
	repo := NewAssignmentGormRepository(setupTestDB(t))
	if err := repo.InitSchema(context.Background()); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}
	return repo
}

func activeAssignment(userID, roleID string) *domain.RoleAssignment {
	return &domain.RoleAssignment{
		UserID:   userID,
		ServerID: "server1",
		RoleID:   roleID,
		RuleID:   "rule1",
		Address:  "0xabc",
	}
}

func TestUpsertActiveIdempotent(t *testing.T) {
	repo := setupLedger(t)
	ctx := context.Background()

	created, err := repo.UpsertActive(ctx, activeAssignment("user1", "role1"))
	if err != nil {
		t.Fatalf("UpsertActive() unexpected error: %v", err)
	}
	if !created {
		t.Fatal("first UpsertActive() should report created=true")
	}

	created, err = repo.UpsertActive(ctx, activeAssignment("user1", "role1"))
	if err != nil {
		t.Fatalf("second UpsertActive() unexpected error: %v", err)
	}
	if created {
		t.Error("second UpsertActive() should report created=false (already held)")
	}

	rows, err := repo.ListActiveByUser(ctx, "user1", "server1")
	if err != nil {
		t.Fatalf("ListActiveByUser() unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("expected exactly 1 active row, got %d", len(rows))
	}
}

func TestUpsertActiveConcurrent(t *testing.T) {
	repo := setupLedger(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.UpsertActive(ctx, activeAssignment("user1", "role1")); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent UpsertActive() surfaced error: %v", err)
	}

	rows, _ := repo.ListActiveByUser(ctx, "user1", "server1")
	if len(rows) != 1 {
		t.Errorf("expected exactly 1 active row after concurrent upserts, got %d", len(rows))
	}
}

func TestRoleStacking(t *testing.T) {
	repo := setupLedger(t)
	ctx := context.Background()

	// Different roles may be active for the same user at once.
	if _, err := repo.UpsertActive(ctx, activeAssignment("user1", "role1")); err != nil {
		t.Fatalf("UpsertActive(role1) unexpected error: %v", err)
	}
	if _, err := repo.UpsertActive(ctx, activeAssignment("user1", "role2")); err != nil {
		t.Fatalf("UpsertActive(role2) unexpected error: %v", err)
	}

	rows, _ := repo.ListActiveByUser(ctx, "user1", "server1")
	if len(rows) != 2 {
		t.Errorf("expected 2 stacked active roles, got %d", len(rows))
	}
}

func TestMarkExpiredAndReactivation(t *testing.T) {
	repo := setupLedger(t)
	ctx := context.Background()

	a := activeAssignment("user1", "role1")
	if _, err := repo.UpsertActive(ctx, a); err != nil {
		t.Fatalf("UpsertActive() unexpected error: %v", err)
	}

	if err := repo.MarkExpired(ctx, a.ID); err != nil {
		t.Fatalf("MarkExpired() unexpected error: %v", err)
	}
	rows, _ := repo.ListActiveByUser(ctx, "user1", "server1")
	if len(rows) != 0 {
		t.Fatalf("expected no active rows after expire, got %d", len(rows))
	}

	// A fresh verification opens a brand-new active row; the expired one
	// stays expired.
	b := activeAssignment("user1", "role1")
	created, err := repo.UpsertActive(ctx, b)
	if err != nil {
		t.Fatalf("UpsertActive() after expire unexpected error: %v", err)
	}
	if !created {
		t.Error("re-verification should insert a new row, not reuse the expired one")
	}
	if b.ID == a.ID {
		t.Error("new active row must have a new id")
	}
}

func TestMarkRevoked(t *testing.T) {
	repo := setupLedger(t)
	ctx := context.Background()

	a := activeAssignment("user1", "role1")
	if _, err := repo.UpsertActive(ctx, a); err != nil {
		t.Fatalf("UpsertActive() unexpected error: %v", err)
	}
	if err := repo.MarkRevoked(ctx, a.ID); err != nil {
		t.Fatalf("MarkRevoked() unexpected error: %v", err)
	}
	if rows, _ := repo.ListActiveByUser(ctx, "user1", "server1"); len(rows) != 0 {
		t.Error("revoked row should not be listed as active")
	}

	if err := repo.MarkRevoked(ctx, "missing-id"); err != domain.ErrAssignmentNotFound {
		t.Errorf("MarkRevoked(missing) = %v, want ErrAssignmentNotFound", err)
	}
}

func TestListActiveCheckedBeforeOrdering(t *testing.T) {
	repo := setupLedger(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-3 * time.Hour)
	for i, role := range []string{"role1", "role2", "role3"} {
		a := activeAssignment("user1", role)
		a.LastCheckedAt = base.Add(time.Duration(2-i) * time.Hour) // role3 oldest
		a.VerifiedAt = a.LastCheckedAt
		if _, err := repo.UpsertActive(ctx, a); err != nil {
			t.Fatalf("UpsertActive(%s) unexpected error: %v", role, err)
		}
	}

	rows, err := repo.ListActiveCheckedBefore(ctx, time.Now().UTC(), 2, 0)
	if err != nil {
		t.Fatalf("ListActiveCheckedBefore() unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected page of 2 rows, got %d", len(rows))
	}
	if rows[0].RoleID != "role3" || rows[1].RoleID != "role2" {
		t.Errorf("expected oldest-first ordering [role3 role2], got [%s %s]", rows[0].RoleID, rows[1].RoleID)
	}

	// Offset steps past rows left in place.
	rows, err = repo.ListActiveCheckedBefore(ctx, time.Now().UTC(), 2, 2)
	if err != nil {
		t.Fatalf("ListActiveCheckedBefore() with offset unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].RoleID != "role1" {
		t.Errorf("expected [role1] at offset 2, got %d rows", len(rows))
	}
}

func TestTouchRefreshesLastChecked(t *testing.T) {
	repo := setupLedger(t)
	ctx := context.Background()

	a := activeAssignment("user1", "role1")
	a.LastCheckedAt = time.Now().UTC().Add(-2 * time.Hour)
	a.VerifiedAt = a.LastCheckedAt
	if _, err := repo.UpsertActive(ctx, a); err != nil {
		t.Fatalf("UpsertActive() unexpected error: %v", err)
	}

	at := time.Now().UTC()
	if err := repo.Touch(ctx, a.ID, at); err != nil {
		t.Fatalf("Touch() unexpected error: %v", err)
	}

	rows, _ := repo.ListActiveCheckedBefore(ctx, at.Add(-time.Minute), 10, 0)
	if len(rows) != 0 {
		t.Error("touched row should no longer appear before the old cutoff")
	}
}
