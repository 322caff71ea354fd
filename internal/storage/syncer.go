package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Syncer mirrors an archive directory to and from object storage.
// Data files transfer in parallel under a semaphore; the manifest is
// ordered so a reader never sees a manifest describing data that has
// not landed yet: pushed last, pulled first.
type Syncer struct {
	storage      ObjectStorage
	prefix       string
	concurrency  int
	manifestName string
	multipartMin int64
	exclude      string
}

// SyncResult contains the outcome of a push or pull.
type SyncResult struct {
	// Transferred maps object keys to local paths for completed transfers,
	// including files skipped because they were already present.
	Transferred map[string]string
	Errors      map[string]error
	Transfers   int
	Skipped     int
}

// NewSyncer creates a syncer for the given storage and key prefix.
// concurrency bounds parallel transfers; values below 1 are raised to 1.
func NewSyncer(storage ObjectStorage, prefix string, concurrency int) *Syncer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Syncer{
		storage:      storage,
		prefix:       strings.Trim(prefix, "/"),
		concurrency:  concurrency,
		manifestName: "manifest.db",
		multipartMin: DefaultMultipartConfig().PartSize,
	}
}

// SetManifestName overrides the filename treated as the archive manifest.
func (s *Syncer) SetManifestName(name string) {
	if name != "" {
		s.manifestName = name
	}
}

// SetExclude marks a directory that Push skips. A local mirror nested
// inside the archive dir would otherwise re-upload itself.
func (s *Syncer) SetExclude(dir string) {
	if abs, err := filepath.Abs(dir); err == nil {
		s.exclude = abs
	}
}

type transfer struct {
	key   string
	local string
}

// Push uploads the contents of dir to the configured prefix.
// Data files upload in parallel; the manifest uploads last, and only
// if every data file landed.
func (s *Syncer) Push(ctx context.Context, dir string) (*SyncResult, error) {
	var data, manifests []transfer
	err := filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if s.exclude != "" {
				if abs, err := filepath.Abs(p); err == nil && abs == s.exclude {
					return filepath.SkipDir
				}
			}
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		t := transfer{key: s.key(filepath.ToSlash(rel)), local: p}
		if filepath.Base(p) == s.manifestName {
			manifests = append(manifests, t)
		} else {
			data = append(data, t)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk archive dir: %w", err)
	}

	result := newSyncResult()
	s.run(ctx, data, result, s.upload)

	if len(result.Errors) > 0 {
		return result, fmt.Errorf("push incomplete: %d of %d files failed", len(result.Errors), len(data))
	}

	// Manifest goes last so remote readers see complete data
	s.run(ctx, manifests, result, s.upload)
	if len(result.Errors) > 0 {
		return result, fmt.Errorf("push incomplete: manifest upload failed")
	}

	return result, nil
}

// Pull downloads everything under the configured prefix into dir.
// The manifest downloads first; files already present locally are skipped.
func (s *Syncer) Pull(ctx context.Context, dir string) (*SyncResult, error) {
	keys, err := s.storage.ListObjects(ctx, s.prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list remote archive: %w", err)
	}

	var data, manifests []transfer
	result := newSyncResult()
	for _, key := range keys {
		local, ok := s.localPath(dir, key)
		if !ok {
			result.Errors[key] = fmt.Errorf("key escapes archive dir")
			continue
		}
		t := transfer{key: key, local: local}

		// Already-present files count as cache hits
		if _, err := os.Stat(local); err == nil {
			result.Transferred[key] = local
			result.Skipped++
			continue
		}

		if path.Base(key) == s.manifestName {
			manifests = append(manifests, t)
		} else {
			data = append(data, t)
		}
	}

	s.run(ctx, manifests, result, s.download)
	s.run(ctx, data, result, s.download)

	if len(result.Errors) > 0 {
		return result, fmt.Errorf("pull incomplete: %d files failed", len(result.Errors))
	}
	return result, nil
}

// run executes transfers in parallel under the concurrency semaphore.
func (s *Syncer) run(ctx context.Context, transfers []transfer, result *SyncResult, op func(context.Context, transfer) error) {
	sem := semaphore.NewWeighted(int64(s.concurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, t := range transfers {
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			result.Errors[t.key] = fmt.Errorf("semaphore acquire failed: %w", err)
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(t transfer) {
			defer sem.Release(1)
			defer wg.Done()

			if err := op(ctx, t); err != nil {
				mu.Lock()
				result.Errors[t.key] = err
				mu.Unlock()
				return
			}

			mu.Lock()
			result.Transferred[t.key] = t.local
			result.Transfers++
			mu.Unlock()
		}(t)
	}

	wg.Wait()
}

func (s *Syncer) upload(ctx context.Context, t transfer) error {
	info, err := os.Stat(t.local)
	if err != nil {
		return err
	}
	if info.Size() > s.multipartMin {
		_, err := s.storage.UploadMultipart(ctx, t.local, t.key)
		return err
	}
	return s.storage.Upload(ctx, t.local, t.key)
}

func (s *Syncer) download(ctx context.Context, t transfer) error {
	return s.storage.Download(ctx, t.key, t.local)
}

// key maps an archive-relative file path to an object key.
func (s *Syncer) key(rel string) string {
	if s.prefix == "" {
		return rel
	}
	return s.prefix + "/" + rel
}

// localPath maps an object key back to a path under dir.
// Returns false if the key would escape dir.
func (s *Syncer) localPath(dir, key string) (string, bool) {
	rel := key
	if s.prefix != "" {
		rel = strings.TrimPrefix(key, s.prefix+"/")
	}
	if rel == "" || path.IsAbs(rel) {
		return "", false
	}
	cleaned := path.Clean(rel)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false
	}
	return filepath.Join(dir, filepath.FromSlash(cleaned)), true
}

func newSyncResult() *SyncResult {
	return &SyncResult{
		Transferred: make(map[string]string),
		Errors:      make(map[string]error),
	}
}
