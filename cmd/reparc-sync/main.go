// Package main implements the reparc-sync tool.
// It mirrors an archive directory to object storage and back. Pushes
// upload the manifest last and pulls download it first, so a remote
// reader never sees a manifest describing data that has not landed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/reparc/reparc/internal/app"
	"github.com/reparc/reparc/internal/config"
	"github.com/reparc/reparc/internal/storage"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		archiveDir  string
		remoteType  string
		prefix      string
		concurrency int
		showVersion bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&archiveDir, "archive", "", "Archive directory")
	flag.StringVar(&remoteType, "remote", "", "Remote type override: local or s3")
	flag.StringVar(&prefix, "prefix", "", "Object key prefix override")
	flag.IntVar(&concurrency, "concurrency", 0, "Parallel transfer override")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "reparc-sync - mirror a reparc archive to object storage\n\n")
		fmt.Fprintf(os.Stderr, "Usage: reparc-sync [options] push|pull\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  reparc-sync --archive ./data/archive push\n")
		fmt.Fprintf(os.Stderr, "  reparc-sync --archive ./data/archive --prefix team/md pull\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  REPARC_ARCHIVE_DIR        Archive directory\n")
		fmt.Fprintf(os.Stderr, "  REPARC_REMOTE_TYPE        Remote type (local, s3)\n")
		fmt.Fprintf(os.Stderr, "  REPARC_REMOTE_PREFIX      Object key prefix\n")
		fmt.Fprintf(os.Stderr, "  REPARC_S3_BUCKET          S3 bucket name\n")
		fmt.Fprintf(os.Stderr, "  REPARC_S3_REGION          AWS region\n")
		fmt.Fprintf(os.Stderr, "  REPARC_S3_ENDPOINT        S3 endpoint (MinIO and friends)\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("reparc-sync version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	direction := flag.Arg(0)
	if direction != "push" && direction != "pull" {
		flag.Usage()
		os.Exit(app.ExitFailure)
	}

	_ = godotenv.Load()

	cfg, err := app.LoadConfig(configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if archiveDir != "" {
		cfg.ArchiveDir = archiveDir
	}
	if remoteType != "" {
		cfg.Remote.Type = remoteType
	}
	if prefix != "" {
		cfg.Remote.Prefix = prefix
	}
	if concurrency > 0 {
		cfg.Remote.Concurrency = concurrency
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var code int
	switch direction {
	case "push":
		code = runPush(ctx, cfg)
	case "pull":
		code = runPull(ctx, cfg)
	}
	os.Exit(code)
}

// runPush checkpoints the archive, closes it, and uploads the quiesced
// directory. The manifest must not be mid-write while it transfers.
func runPush(ctx context.Context, cfg *config.Config) int {
	session, err := app.Open(ctx, cfg)
	if err != nil {
		log.Printf("Failed to open archive: %v", err)
		return app.ExitCode(err)
	}
	if err := session.Commit(ctx); err != nil {
		session.Close()
		log.Printf("Commit failed: %v", err)
		return app.ExitCode(err)
	}
	if err := session.Close(); err != nil {
		log.Printf("Close failed: %v", err)
		return app.ExitCode(err)
	}

	syncer, err := app.NewSyncer(ctx, cfg)
	if err != nil {
		log.Printf("Remote setup failed: %v", err)
		return app.ExitCode(err)
	}

	result, err := syncer.Push(ctx, cfg.ArchiveDir)
	report(result)
	if err != nil {
		log.Printf("Push failed: %v", err)
		return app.ExitCode(err)
	}
	log.Printf("Pushed %s to %s remote", cfg.ArchiveDir, cfg.Remote.Type)
	return 0
}

// runPull downloads into the archive directory before anything opens
// it, then opens a session once to confirm the tree restores.
func runPull(ctx context.Context, cfg *config.Config) int {
	cfg.Resolve()

	syncer, err := app.NewSyncer(ctx, cfg)
	if err != nil {
		log.Printf("Remote setup failed: %v", err)
		return app.ExitCode(err)
	}

	result, err := syncer.Pull(ctx, cfg.ArchiveDir)
	report(result)
	if err != nil {
		log.Printf("Pull failed: %v", err)
		return app.ExitCode(err)
	}

	session, err := app.Open(ctx, cfg)
	if err != nil {
		log.Printf("Pulled archive does not open: %v", err)
		return app.ExitCode(err)
	}
	defer session.Close()

	groups, err := session.Catalog().CountGroups(ctx)
	if err != nil {
		log.Printf("Pulled manifest unreadable: %v", err)
		return app.ExitCode(err)
	}
	arrays, err := session.Catalog().CountArrays(ctx)
	if err != nil {
		log.Printf("Pulled manifest unreadable: %v", err)
		return app.ExitCode(err)
	}
	log.Printf("Pulled %s: %d groups, %d arrays", cfg.ArchiveDir, groups, arrays)
	return 0
}

func report(result *storage.SyncResult) {
	if result == nil {
		return
	}
	log.Printf("Transferred %d files, skipped %d already present", result.Transfers, result.Skipped)
	for key, err := range result.Errors {
		log.Printf("  %s: %v", key, err)
	}
}
