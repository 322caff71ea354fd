package benchmark

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/joho/godotenv"

	"github.com/reparc/reparc/internal/app"
	"github.com/reparc/reparc/internal/config"
	"github.com/reparc/reparc/internal/storage"
)

// benchConfig creates an isolated archive configuration in a temp dir.
func benchConfig(b *testing.B, kind string) (*config.Config, func()) {
	b.Helper()

	dir, err := os.MkdirTemp("", "reparc-bench-*")
	if err != nil {
		b.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.ArchiveDir = filepath.Join(dir, "archive")
	cfg.Backend.Kind = kind
	cfg.Remote.Path = filepath.Join(dir, "remote")

	return cfg, func() { os.RemoveAll(dir) }
}

// benchSession opens a session over a temp archive.
func benchSession(b *testing.B, kind string) (*app.Session, func()) {
	b.Helper()

	cfg, cleanup := benchConfig(b, kind)
	session, err := app.Open(context.Background(), cfg)
	if err != nil {
		cleanup()
		b.Fatalf("failed to open session: %v", err)
	}
	return session, func() {
		session.Close()
		cleanup()
	}
}

// trajectoryText renders a synthetic XYZ trajectory of carbon chains.
// Coordinates follow a slow sine drift so compression sees realistic,
// non-random float text.
func trajectoryText(frames, atoms int) string {
	var sb strings.Builder
	sb.Grow(frames * atoms * 40)
	for f := 0; f < frames; f++ {
		fmt.Fprintf(&sb, "%d\nstep %d\n", atoms, f)
		for a := 0; a < atoms; a++ {
			x := float64(a) * 1.54
			y := math.Sin(float64(f)*0.05+float64(a)) * 0.3
			z := math.Cos(float64(f)*0.05) * 0.1
			fmt.Fprintf(&sb, "C %.6f %.6f %.6f\n", x, y, z)
		}
	}
	return sb.String()
}

// benchRemoteStorage returns object storage for sync benchmarks plus a
// key prefix and cleanup. It respects REPARC_STORAGE_TYPE=s3 from .env
// or the environment; the default is a local mirror in a temp dir.
func benchRemoteStorage(b *testing.B, benchName string) (storage.ObjectStorage, string, func()) {
	b.Helper()

	_ = godotenv.Load("../../.env")

	if os.Getenv("REPARC_STORAGE_TYPE") == "s3" {
		bucket := os.Getenv("REPARC_S3_BUCKET")
		if bucket == "" {
			b.Fatal("REPARC_S3_BUCKET is required for s3 benchmarks")
		}

		cfg := storage.DefaultS3Config()
		if region := os.Getenv("REPARC_S3_REGION"); region != "" {
			cfg.Region = region
		}
		cfg.Endpoint = os.Getenv("REPARC_S3_ENDPOINT")

		st, err := storage.NewS3Storage(context.Background(), bucket, cfg)
		if err != nil {
			b.Fatalf("failed to initialize S3 storage: %v", err)
		}

		// Unique prefix per run; cleanup left to bucket lifecycle rules
		prefix := fmt.Sprintf("bench/%s/%d", benchName, time.Now().UnixNano())
		b.Logf("running against S3 bucket %s prefix %s", bucket, prefix)
		return st, prefix, func() {}
	}

	dir, err := os.MkdirTemp("", "reparc-bench-"+benchName+"-*")
	if err != nil {
		b.Fatal(err)
	}
	st, err := storage.NewLocalStorage(filepath.Join(dir, "mirror"))
	if err != nil {
		os.RemoveAll(dir)
		b.Fatal(err)
	}
	return st, "bench/" + benchName, func() { os.RemoveAll(dir) }
}
