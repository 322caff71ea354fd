// Package app assembles an archive session from configuration: the
// persistence backend, chunk cache, array store, manifest catalog, and
// the tree restored from it. The command-line tools open archives
// through this package so they agree on directory layout and lifecycle.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/reparc/reparc/internal/adapter/xyz"
	"github.com/reparc/reparc/internal/archive"
	"github.com/reparc/reparc/internal/array"
	"github.com/reparc/reparc/internal/backend"
	"github.com/reparc/reparc/internal/cache"
	"github.com/reparc/reparc/internal/compress"
	"github.com/reparc/reparc/internal/config"
	"github.com/reparc/reparc/internal/manifest"
	"github.com/reparc/reparc/internal/observability"
	"github.com/reparc/reparc/internal/registry"
	"github.com/reparc/reparc/internal/storage"
)

// Session is an opened archive together with its supporting resources.
// Sessions are not safe for concurrent use; each tool opens its own.
type Session struct {
	cfg *config.Config

	cache   *cache.ChunkCache
	backend backend.Backend
	store   *array.Store
	catalog *manifest.SQLiteCatalog
	archive *archive.Archive
	formats *registry.Registry
	stats   *observability.OpStats
}

// Open assembles a session: resolve and validate the configuration,
// create missing directories, open the backend and manifest catalog,
// restore the recorded tree, and register the built-in adapters.
func Open(ctx context.Context, cfg *config.Config) (*Session, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	s := &Session{cfg: cfg}
	if err := s.init(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) init(ctx context.Context) error {
	if s.cfg.Cache.MaxBytes > 0 {
		c, err := cache.NewChunkCache(s.cfg.Cache.MaxBytes)
		if err != nil {
			return fmt.Errorf("creating chunk cache: %w", err)
		}
		s.cache = c
	}

	b, err := s.openBackend()
	if err != nil {
		return fmt.Errorf("opening %s backend: %w", s.cfg.Backend.Kind, err)
	}
	s.backend = b
	s.store = array.New(b)

	catalog, err := manifest.NewCatalog(s.cfg.ManifestPath())
	if err != nil {
		return err
	}
	s.catalog = catalog

	a, err := manifest.Restore(ctx, catalog, s.store)
	if err != nil {
		return err
	}
	s.archive = a

	s.formats = registry.New()
	if err := s.formats.Register(xyz.Descriptor()); err != nil {
		return err
	}

	s.stats = observability.NewOpStats(time.Hour)
	return nil
}

func (s *Session) openBackend() (backend.Backend, error) {
	switch s.cfg.Backend.Kind {
	case "memory":
		return backend.NewMemoryBackend(), nil
	case "chunked":
		codec, err := compress.ParseCodec(s.cfg.Backend.Codec)
		if err != nil {
			return nil, err
		}
		return backend.NewChunkedBackend(s.cfg.Backend.DataDir, backend.ChunkedOptions{
			Codec:      codec,
			ChunkElems: s.cfg.Backend.ChunkElems,
			Cache:      s.cache,
		})
	case "dir":
		return backend.NewDirStore(s.cfg.Backend.DataDir)
	default:
		return nil, fmt.Errorf("unsupported backend kind: %s", s.cfg.Backend.Kind)
	}
}

// Config returns the resolved configuration.
func (s *Session) Config() *config.Config { return s.cfg }

// Archive returns the restored archive tree.
func (s *Session) Archive() *archive.Archive { return s.archive }

// Store returns the array store backing the archive.
func (s *Session) Store() *array.Store { return s.store }

// Catalog returns the manifest catalog.
func (s *Session) Catalog() *manifest.SQLiteCatalog { return s.catalog }

// Formats returns the adapter registry with built-ins registered.
func (s *Session) Formats() *registry.Registry { return s.formats }

// Cache returns the chunk cache, or nil when caching is disabled.
func (s *Session) Cache() *cache.ChunkCache { return s.cache }

// Stats returns the session's operation counters.
func (s *Session) Stats() *observability.OpStats { return s.stats }

// Commit makes the session state durable: flush array data, record the
// tree in the catalog, and save a filter snapshot. Data flushes before
// the catalog writes so every recorded locator is readable.
func (s *Session) Commit(ctx context.Context) error {
	return s.commit(ctx, false)
}

// CommitWithDigests is Commit plus a content digest on every array
// row. It reads all array data, so it suits the moment right after an
// ingest while the data is hot.
func (s *Session) CommitWithDigests(ctx context.Context) error {
	return s.commit(ctx, true)
}

func (s *Session) commit(ctx context.Context, withDigests bool) error {
	if err := s.store.Flush(); err != nil {
		return err
	}
	if withDigests {
		if err := manifest.RecordWithDigests(ctx, s.catalog, s.archive); err != nil {
			return err
		}
	} else {
		if err := manifest.Record(ctx, s.catalog, s.archive); err != nil {
			return err
		}
	}
	return s.catalog.SaveSnapshot(ctx)
}

// Syncer builds the remote syncer for push/pull of the archive
// directory, constructing the object storage the configuration names.
func (s *Session) Syncer(ctx context.Context) (*storage.Syncer, error) {
	return NewSyncer(ctx, s.cfg)
}

// NewSyncer builds a remote syncer from configuration alone. Pulls run
// against a closed archive directory, so this does not need a session.
func NewSyncer(ctx context.Context, cfg *config.Config) (*storage.Syncer, error) {
	cfg.Resolve()

	var (
		obj storage.ObjectStorage
		err error
	)
	switch cfg.Remote.Type {
	case "local":
		obj, err = storage.NewLocalStorage(cfg.Remote.Path)
	case "s3":
		s3cfg := storage.DefaultS3Config()
		if cfg.Remote.S3.Region != "" {
			s3cfg.Region = cfg.Remote.S3.Region
		}
		if cfg.Remote.S3.Endpoint != "" {
			s3cfg.Endpoint = cfg.Remote.S3.Endpoint
		}
		s3cfg.UsePathStyle = cfg.Remote.S3.UsePathStyle
		obj, err = storage.NewS3Storage(ctx, cfg.Remote.S3.Bucket, s3cfg)
	default:
		return nil, fmt.Errorf("unsupported remote type: %s", cfg.Remote.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s remote: %w", cfg.Remote.Type, err)
	}

	syncer := storage.NewSyncer(obj, cfg.Remote.Prefix, cfg.Remote.Concurrency)
	syncer.SetManifestName(cfg.ManifestName)
	if cfg.Remote.Type == "local" {
		syncer.SetExclude(cfg.Remote.Path)
	}
	return syncer, nil
}

// Close releases the session's resources. The store closes first so
// the backend flushes before the catalog lets go of the manifest.
func (s *Session) Close() error {
	var firstErr error
	if s.store != nil {
		if err := s.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	} else if s.backend != nil {
		if err := s.backend.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.catalog != nil {
		if err := s.catalog.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
