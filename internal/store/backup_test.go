package store

import (
	"context"
	"testing"
	"time"

	"github.com/dukerupert/themeshop/internal/model"
)

func setupBackupTestDB(t *testing.T) *BackupStore {
	t.Helper()
	return NewBackupStore(openTestDB(t))
}

func TestBackupCreate(t *testing.T) {
	bs := setupBackupTestDB(t)

	b, err := bs.Create(context.Background(), "themeshop-2026.db", "backups/themeshop-2026.db", false)
	if err != nil {
		t.Fatalf("create backup: %v", err)
	}
	if b.ID == "" {
		t.Error("expected non-empty ID")
	}
	if b.Status != model.BackupStatusPending {
		t.Errorf("status = %q, want %q", b.Status, model.BackupStatusPending)
	}
}

func TestBackupUpdateStatus(t *testing.T) {
	bs := setupBackupTestDB(t)
	ctx := context.Background()

	b, _ := bs.Create(ctx, "test.db", "backups/test.db", false)

	if err := bs.UpdateStatus(ctx, b.ID, model.BackupStatusFailed, "upload failed"); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, _ := bs.GetByID(ctx, b.ID)
	if got.Status != model.BackupStatusFailed {
		t.Errorf("status = %q, want %q", got.Status, model.BackupStatusFailed)
	}
	if got.ErrorMessage != "upload failed" {
		t.Errorf("error = %q, want %q", got.ErrorMessage, "upload failed")
	}
}

func TestBackupLatestCompleted(t *testing.T) {
	bs := setupBackupTestDB(t)
	ctx := context.Background()

	latest, err := bs.LatestCompleted(ctx)
	if err != nil {
		t.Fatalf("latest completed: %v", err)
	}
	if latest != nil {
		t.Fatal("expected nil with no backups")
	}

	b, _ := bs.Create(ctx, "test.db.enc", "backups/test.db.enc", true)
	if err := bs.UpdateCompleted(ctx, b.ID, 4096); err != nil {
		t.Fatalf("update completed: %v", err)
	}
	latest, _ = bs.LatestCompleted(ctx)
	if latest == nil || latest.ID != b.ID {
		t.Fatalf("latest = %+v, want %s", latest, b.ID)
	}
	if latest.SizeBytes != 4096 || !latest.Encrypted || latest.CompletedAt == nil {
		t.Errorf("latest = %+v", latest)
	}
}

func TestBackupDeleteOlderThan(t *testing.T) {
	bs := setupBackupTestDB(t)
	ctx := context.Background()

	bs.Create(ctx, "old.db", "backups/old.db", false)
	keys, err := bs.DeleteOlderThan(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("delete older than: %v", err)
	}
	if len(keys) != 1 || keys[0] != "backups/old.db" {
		t.Errorf("keys = %v", keys)
	}
	list, _ := bs.List(ctx, 10)
	if len(list) != 0 {
		t.Errorf("remaining = %d, want 0", len(list))
	}
}
