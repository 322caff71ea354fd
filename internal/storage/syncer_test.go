package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// writeArchiveFixture lays out a minimal on-disk archive: manifest plus data files.
func writeArchiveFixture(t *testing.T, dir string) map[string]string {
	t.Helper()
	files := map[string]string{
		"manifest.db":     "catalog rows",
		"data/chunks.dat": "frame payloads",
		"data/chunks.idx": "chunk index",
	}
	for rel, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	return files
}

func TestSyncer_PushPullRoundTrip(t *testing.T) {
	mirror, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}

	srcDir := t.TempDir()
	files := writeArchiveFixture(t, srcDir)

	syncer := NewSyncer(mirror, "archives/md_run", 3)
	ctx := context.Background()

	pushed, err := syncer.Push(ctx, srcDir)
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if pushed.Transfers != len(files) {
		t.Errorf("expected %d transfers, got %d", len(files), pushed.Transfers)
	}
	if len(pushed.Errors) != 0 {
		t.Errorf("expected no errors, got %v", pushed.Errors)
	}

	// Keys land under the prefix
	exists, err := mirror.Exists(ctx, "archives/md_run/manifest.db")
	if err != nil || !exists {
		t.Fatalf("manifest not pushed: exists=%v err=%v", exists, err)
	}

	dstDir := t.TempDir()
	pulled, err := syncer.Pull(ctx, dstDir)
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if pulled.Transfers != len(files) {
		t.Errorf("expected %d transfers, got %d", len(files), pulled.Transfers)
	}

	for rel, content := range files {
		got, err := os.ReadFile(filepath.Join(dstDir, filepath.FromSlash(rel)))
		if err != nil {
			t.Errorf("pulled file %s missing: %v", rel, err)
			continue
		}
		if string(got) != content {
			t.Errorf("content mismatch for %s: got %q, want %q", rel, got, content)
		}
	}
}

func TestSyncer_PullSkipsPresentFiles(t *testing.T) {
	mirror, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}

	srcDir := t.TempDir()
	files := writeArchiveFixture(t, srcDir)

	syncer := NewSyncer(mirror, "archives/md_run", 2)
	ctx := context.Background()

	if _, err := syncer.Push(ctx, srcDir); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	dstDir := t.TempDir()
	if _, err := syncer.Pull(ctx, dstDir); err != nil {
		t.Fatalf("first Pull failed: %v", err)
	}

	// Second pull into the same dir transfers nothing
	again, err := syncer.Pull(ctx, dstDir)
	if err != nil {
		t.Fatalf("second Pull failed: %v", err)
	}
	if again.Transfers != 0 {
		t.Errorf("expected 0 transfers on warm pull, got %d", again.Transfers)
	}
	if again.Skipped != len(files) {
		t.Errorf("expected %d skipped on warm pull, got %d", len(files), again.Skipped)
	}
}

func TestSyncer_PushSkipsExcludedDir(t *testing.T) {
	srcDir := t.TempDir()
	files := writeArchiveFixture(t, srcDir)

	// Mirror nested inside the archive dir, as the default layout has it
	mirrorDir := filepath.Join(srcDir, "remote")
	mirror, err := NewLocalStorage(mirrorDir)
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}

	syncer := NewSyncer(mirror, "archives/md_run", 2)
	syncer.SetExclude(mirrorDir)
	ctx := context.Background()

	if _, err := syncer.Push(ctx, srcDir); err != nil {
		t.Fatalf("first Push failed: %v", err)
	}

	// Second push must not see the mirror's own files
	again, err := syncer.Push(ctx, srcDir)
	if err != nil {
		t.Fatalf("second Push failed: %v", err)
	}
	if again.Transfers != len(files) {
		t.Errorf("expected %d transfers on second push, got %d", len(files), again.Transfers)
	}
	if exists, _ := mirror.Exists(ctx, "archives/md_run/remote/archives/md_run/manifest.db"); exists {
		t.Error("mirror re-uploaded its own contents")
	}
}

func TestSyncer_EmptyPrefixKeys(t *testing.T) {
	syncer := NewSyncer(nil, "", 1)
	if got := syncer.key("data/chunks.dat"); got != "data/chunks.dat" {
		t.Errorf("empty prefix key mangled: %q", got)
	}

	syncer = NewSyncer(nil, "/archives/md_run/", 1)
	if got := syncer.key("manifest.db"); got != "archives/md_run/manifest.db" {
		t.Errorf("prefix not trimmed and joined: %q", got)
	}
}

func TestSyncer_RejectsEscapingKeys(t *testing.T) {
	syncer := NewSyncer(nil, "archives", 1)

	if _, ok := syncer.localPath("/tmp/dst", "archives/../../etc/passwd"); ok {
		t.Error("expected parent-escaping key to be rejected")
	}
	if _, ok := syncer.localPath("/tmp/dst", "archives/sub/ok.dat"); !ok {
		t.Error("expected well-formed key to be accepted")
	}
}

func TestSyncer_PullMissingPrefix(t *testing.T) {
	mirror, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}

	syncer := NewSyncer(mirror, "archives/none", 2)
	result, err := syncer.Pull(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Pull of empty prefix failed: %v", err)
	}
	if result.Transfers != 0 || result.Skipped != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
}
