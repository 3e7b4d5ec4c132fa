package provider

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"trainvault-go/internal/config"
)

func newTestLocal(t *testing.T, threshold int64) (Provider, string) {
	t.Helper()
	root := t.TempDir()
	p, err := NewLocal(config.LocalConfig{RootDir: root}, threshold)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	return p, root
}

func TestLocalUploadDownloadRoundTrip(t *testing.T) {
	p, root := newTestLocal(t, 1<<20)
	ctx := context.Background()

	content := []byte("hello trainvault")
	path, err := p.Upload(ctx, bytes.NewReader(content), int64(len(content)), "documents/P1/note.txt", "cid-1")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if path != "documents/P1/note.txt" {
		t.Errorf("path = %q", path)
	}

	info, err := os.Stat(filepath.Join(root, "documents", "P1", "note.txt"))
	if err != nil {
		t.Fatalf("stat stored file: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("file mode = %v, want 0600", info.Mode().Perm())
	}

	data, mimeType, err := p.Download(ctx, path, "cid-2")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Errorf("downloaded bytes differ: %q", data)
	}
	if mimeType == "" {
		t.Error("empty mime type")
	}
}

func TestLocalStreamingUploadAboveThreshold(t *testing.T) {
	p, root := newTestLocal(t, 8) // 阈值极小，强制走流式路径
	ctx := context.Background()

	content := bytes.Repeat([]byte("x"), 64)
	if _, err := p.Upload(ctx, bytes.NewReader(content), int64(len(content)), "big.bin", "cid"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(root, "big.bin"))
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("streamed content differs")
	}
}

func TestLocalDeletePrunesEmptyDirs(t *testing.T) {
	p, root := newTestLocal(t, 1<<20)
	ctx := context.Background()

	if _, err := p.Upload(ctx, bytes.NewReader([]byte("a")), 1, "documents/P1/a.txt", "cid"); err != nil {
		t.Fatalf("Upload a: %v", err)
	}
	if _, err := p.Upload(ctx, bytes.NewReader([]byte("b")), 1, "documents/P2/b.txt", "cid"); err != nil {
		t.Fatalf("Upload b: %v", err)
	}

	if err := p.Delete(ctx, "documents/P1/a.txt", "cid"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "documents", "P1")); !errors.Is(err, os.ErrNotExist) {
		t.Error("empty P1 dir should have been pruned")
	}
	if _, err := os.Stat(filepath.Join(root, "documents", "P2", "b.txt")); err != nil {
		t.Errorf("sibling file should survive: %v", err)
	}
	if _, err := os.Stat(root); err != nil {
		t.Errorf("root dir must never be pruned: %v", err)
	}
}

func TestLocalDownloadMissingIsNotFound(t *testing.T) {
	p, _ := newTestLocal(t, 1<<20)

	_, _, err := p.Download(context.Background(), "nope/missing.txt", "cid")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	var se *StorageError
	if !errors.As(err, &se) || se.Class != ClassNotFound {
		t.Errorf("err = %v, want ClassNotFound", err)
	}
}

func TestLocalExists(t *testing.T) {
	p, _ := newTestLocal(t, 1<<20)
	ctx := context.Background()

	ok, err := p.Exists(ctx, "ghost.txt")
	if err != nil || ok {
		t.Errorf("Exists(ghost) = (%v, %v), want (false, nil)", ok, err)
	}

	if _, err := p.Upload(ctx, bytes.NewReader([]byte("x")), 1, "real.txt", "cid"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	ok, err = p.Exists(ctx, "real.txt")
	if err != nil || !ok {
		t.Errorf("Exists(real) = (%v, %v), want (true, nil)", ok, err)
	}
}
