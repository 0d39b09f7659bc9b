package sqlitestore_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/lorelens/internal/character"
	"github.com/MrWong99/lorelens/internal/character/sqlitestore"
)

func openTemp(t *testing.T) *sqlitestore.Store {
	t.Helper()
	s, err := sqlitestore.Open(context.Background(), filepath.Join(t.TempDir(), "learned.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTemp(t)

	promoted := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := s.Save(ctx, character.LearnedName{Name: "Zero", Confidence: 0.7, Observations: 3, PromotedAt: promoted}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(ctx, character.LearnedName{Name: "Alisaie", Role: character.RoleMain}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// Update keeps the original promotion time.
	if err := s.Save(ctx, character.LearnedName{Name: "zero", Observations: 9, PromotedAt: time.Now()}); err != nil {
		t.Fatalf("Save update: %v", err)
	}

	got, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List: got %d names, want 2", len(got))
	}
	if got[0].Name != "Alisaie" || got[0].Role != character.RoleMain {
		t.Errorf("first: %+v", got[0])
	}
	if got[1].Name != "zero" || got[1].Observations != 9 || got[1].Role != character.RoleLearned {
		t.Errorf("second: %+v", got[1])
	}
	if !got[1].PromotedAt.Equal(promoted) {
		t.Errorf("PromotedAt: got %v, want %v", got[1].PromotedAt, promoted)
	}
}

func TestReopenKeepsData(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "learned.db")

	s, err := sqlitestore.Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Save(ctx, character.LearnedName{Name: "Krile"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := sqlitestore.Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, err := s2.List(ctx)
	if err != nil || len(got) != 1 || got[0].Name != "Krile" {
		t.Fatalf("List after reopen: %+v, %v", got, err)
	}
}

func TestSaveEmptyName(t *testing.T) {
	t.Parallel()
	if err := openTemp(t).Save(context.Background(), character.LearnedName{}); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestPing(t *testing.T) {
	t.Parallel()
	s := openTemp(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
