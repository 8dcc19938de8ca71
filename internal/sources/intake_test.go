package sources

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"renote/internal/services"
	"renote/internal/testsupport"
)

func writeIntakeSession(t *testing.T, dir string) {
	t.Helper()
	testsupport.WriteJSON(t, filepath.Join(dir, "basic_pitch.json"), map[string]any{
		"model": "basic_pitch",
		"notes": []any{noteFixture("basic_pitch_0", 60, 0.0, 0.5)},
	})
}

func TestRegisterSessionEnqueues(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	dir := filepath.Join(t.TempDir(), "gymnopedie_no_1")
	writeIntakeSession(t, dir)

	item, created, err := RegisterSession(context.Background(), store, dir)
	if err != nil {
		t.Fatalf("RegisterSession: %v", err)
	}
	if !created {
		t.Fatal("expected a new queue item")
	}
	if item.PieceTitle != "Gymnopedie No 1" {
		t.Fatalf("piece title = %q", item.PieceTitle)
	}
	if item.SessionPath != dir {
		t.Fatalf("session path = %q, want %q", item.SessionPath, dir)
	}
}

func TestRegisterSessionReturnsExistingItem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	dir := filepath.Join(t.TempDir(), "etude_op10_no3")
	writeIntakeSession(t, dir)

	first, created, err := RegisterSession(context.Background(), store, dir)
	if err != nil || !created {
		t.Fatalf("first RegisterSession: created=%v err=%v", created, err)
	}
	second, created, err := RegisterSession(context.Background(), store, dir)
	if err != nil {
		t.Fatalf("second RegisterSession: %v", err)
	}
	if created {
		t.Fatal("expected existing item, not a duplicate")
	}
	if second.ID != first.ID {
		t.Fatalf("item id = %d, want %d", second.ID, first.ID)
	}
}

func TestRegisterSessionRejectsEmptyDirectory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	dir := t.TempDir()
	_, _, err := RegisterSession(context.Background(), store, dir)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want validation failure", err)
	}
}

func TestRegisterSessionRejectsMissingDirectory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	_, _, err := RegisterSession(context.Background(), store, filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("err = %v, want not-found failure", err)
	}
}

func TestRegisterSessionRejectsFilePath(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	file := filepath.Join(t.TempDir(), "stream.json")
	if err := os.WriteFile(file, []byte("{}"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, _, err := RegisterSession(context.Background(), store, file)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want validation failure", err)
	}
}
