package db

import (
	"errors"
	"path/filepath"
	"testing"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := Open(filepath.Join(t.TempDir(), "test.db"), logger.Silent)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gdb
}

func TestLevelForDiaryCount(t *testing.T) {
	tests := []struct {
		total int
		want  int
	}{
		{total: -1, want: 1},
		{total: 0, want: 1},
		{total: 9, want: 1},
		{total: 10, want: 2},
		{total: 25, want: 3},
	}

	for _, tt := range tests {
		if got := LevelForDiaryCount(tt.total); got != tt.want {
			t.Fatalf("LevelForDiaryCount(%d) = %d, want %d", tt.total, got, tt.want)
		}
	}
}

func TestEnsureUserAndAuthenticate(t *testing.T) {
	gdb := openTestDB(t)

	created, err := EnsureUser(gdb, "fox", "secret")
	if err != nil {
		t.Fatalf("EnsureUser returned error: %v", err)
	}
	if !created {
		t.Fatal("expected user to be created")
	}

	created, err = EnsureUser(gdb, "fox", "other")
	if err != nil {
		t.Fatalf("EnsureUser returned error: %v", err)
	}
	if created {
		t.Fatal("expected existing user to be kept")
	}

	user, err := Authenticate(gdb, "fox", "secret")
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if user.Username != "fox" {
		t.Fatalf("unexpected username %q", user.Username)
	}

	if _, err := Authenticate(gdb, "fox", "other"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := Authenticate(gdb, "nobody", "secret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestEnsureUserSkipsBlankInput(t *testing.T) {
	gdb := openTestDB(t)

	created, err := EnsureUser(gdb, "  ", "secret")
	if err != nil || created {
		t.Fatalf("expected blank username to be ignored, created=%v err=%v", created, err)
	}
}

func TestAdventureSessionDefeatedCount(t *testing.T) {
	session := AdventureSession{Monsters: []Monster{{Defeated: true}, {}, {Defeated: true}}}
	if got := session.DefeatedCount(); got != 2 {
		t.Fatalf("expected 2 defeated monsters, got %d", got)
	}
}

func TestMigrateDiaryAnalysisColumns(t *testing.T) {
	gdb := openTestDB(t)
	migrator := gdb.Migrator()

	for _, column := range []string{"diary_id", "overall_emotion", "used_fallback", "payload"} {
		if !migrator.HasColumn(&DiaryAnalysis{}, column) {
			t.Fatalf("expected diary_analyses.%s", column)
		}
	}
	if migrator.HasColumn(&DiaryAnalysis{}, "model") {
		t.Fatal("diary_analyses should not carry an unused model column")
	}
}
