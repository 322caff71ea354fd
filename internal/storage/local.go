package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// LocalStorage implements ObjectStorage on a local directory tree.
// It mirrors the key space under root and is used for tests and for
// syncing archives to mounted network shares.
type LocalStorage struct {
	root  string
	mu    sync.RWMutex
	etags map[string]string // key → md5 of last stored content
}

// NewLocalStorage creates a local mirror rooted at root.
func NewLocalStorage(root string) (*LocalStorage, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create mirror root: %w", err)
	}

	return &LocalStorage{
		root:  root,
		etags: make(map[string]string),
	}, nil
}

// Upload copies a local file into the mirror.
func (l *LocalStorage) Upload(ctx context.Context, file, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dest := l.keyPath(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	src, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer src.Close()

	dst, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer dst.Close()

	// Hash while copying so the etag matches stored bytes
	hash := md5.New()
	if _, err := io.Copy(io.MultiWriter(dst, hash), src); err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	l.mu.Lock()
	l.etags[key] = hex.EncodeToString(hash.Sum(nil))
	l.mu.Unlock()

	return nil
}

// UploadMultipart behaves like Upload for the mirror but returns the ETag.
func (l *LocalStorage) UploadMultipart(ctx context.Context, file, key string) (string, error) {
	if err := l.Upload(ctx, file, key); err != nil {
		return "", err
	}

	l.mu.RLock()
	etag := l.etags[key]
	l.mu.RUnlock()

	return etag, nil
}

// Download copies an object out of the mirror.
func (l *LocalStorage) Download(ctx context.Context, key, file string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	srcPath := l.keyPath(key)
	if _, err := os.Stat(srcPath); os.IsNotExist(err) {
		return ErrObjectNotFound
	}

	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer src.Close()

	dst, err := os.Create(file)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	return nil
}

// Delete removes an object from the mirror. Missing keys are not an error.
func (l *LocalStorage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(l.keyPath(key)); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}

	l.mu.Lock()
	delete(l.etags, key)
	l.mu.Unlock()

	return nil
}

// Exists reports whether an object is present in the mirror.
func (l *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := os.Stat(l.keyPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ConditionalPut uploads only if the stored object still carries etag.
func (l *LocalStorage) ConditionalPut(ctx context.Context, file, key, etag string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.RLock()
	current, exists := l.etags[key]
	l.mu.RUnlock()

	if etag != "" {
		if !exists || current != etag {
			return ErrPreconditionFailed
		}
	}

	return l.Upload(ctx, file, key)
}

// GetETag returns the ETag recorded for a key.
func (l *LocalStorage) GetETag(key string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	etag, exists := l.etags[key]
	return etag, exists
}

// ListObjects returns all keys under the given prefix, slash-separated.
func (l *LocalStorage) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	searchDir := l.keyPath(prefix)
	var keys []string

	err := filepath.Walk(searchDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil // prefix doesn't exist, return empty list
			}
			return err
		}
		if !info.IsDir() {
			rel, err := filepath.Rel(l.root, path)
			if err != nil {
				return err
			}
			keys = append(keys, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return keys, nil
}

// Clear removes every object from the mirror. Used for test cleanup.
func (l *LocalStorage) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.RemoveAll(l.root); err != nil {
		return err
	}

	if err := os.MkdirAll(l.root, 0755); err != nil {
		return err
	}

	l.etags = make(map[string]string)
	return nil
}

// keyPath maps a slash-separated key to a filesystem path under root.
func (l *LocalStorage) keyPath(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}
