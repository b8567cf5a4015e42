package local

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"jobbot/internal/shared/util"
)

func TestSaveWithKeyRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := New(filepath.Join(dir, "exports"))
	ctx := context.Background()

	n, err := store.SaveWithKey(ctx, "2026/jobs.csv", "text/csv", strings.NewReader("a,b\n1,2\n"))
	if err != nil {
		t.Fatalf("SaveWithKey: %v", err)
	}
	if n != 8 {
		t.Fatalf("written = %d, want 8", n)
	}

	rc, err := store.Open(ctx, "2026/jobs.csv")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "a,b\n1,2\n" {
		t.Fatalf("unexpected content %q", data)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "exports", "2026"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestSaveWithKeyRejectsTraversal(t *testing.T) {
	store := New(t.TempDir())
	_, err := store.SaveWithKey(context.Background(), "../escape.csv", "text/csv", strings.NewReader("x"))
	if !errors.Is(err, util.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestSaveWithKeyHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(t.TempDir()).SaveWithKey(ctx, "jobs.csv", "text/csv", strings.NewReader("x")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSaveWithKeyWritesOnlyTheExport(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)
	xlsx := "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	if _, err := store.SaveWithKey(context.Background(), "jobs.xlsx", xlsx, strings.NewReader("PK")); err != nil {
		t.Fatalf("SaveWithKey: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "jobs.xlsx" {
		t.Fatalf("unexpected files: %v", entries)
	}
}
