// Package main implements the reparc-ingest tool.
// It dispatches raw input files through a registered format adapter
// into archive groups and records provenance for every run.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/reparc/reparc/internal/app"
	rerr "github.com/reparc/reparc/internal/errors"
	"github.com/reparc/reparc/internal/manifest"
	"github.com/reparc/reparc/internal/observability"
	"github.com/reparc/reparc/internal/registry"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		archiveDir  string
		format      string
		destPath    string
		showVersion bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&archiveDir, "archive", "", "Archive directory")
	flag.StringVar(&format, "format", "xyz", "Format identifier of the adapter to dispatch through")
	flag.StringVar(&destPath, "path", "", "Destination group path (single input) or parent path (several inputs)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "reparc-ingest - parse raw files into a reparc archive\n\n")
		fmt.Fprintf(os.Stderr, "Usage: reparc-ingest [options] <input>...\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  reparc-ingest --archive ./data/archive --path /md_run traj.xyz\n")
		fmt.Fprintf(os.Stderr, "  reparc-ingest --archive ./data/archive --path /runs a.xyz b.xyz\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  REPARC_ARCHIVE_DIR     Archive directory\n")
		fmt.Fprintf(os.Stderr, "  REPARC_BACKEND_KIND    Backend kind (memory, chunked, dir)\n")
		fmt.Fprintf(os.Stderr, "  REPARC_BACKEND_CODEC   Chunk codec (none, snappy, zstd, lz4)\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("reparc-ingest version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	inputs := flag.Args()
	if len(inputs) == 0 {
		flag.Usage()
		os.Exit(app.ExitFailure)
	}
	if destPath == "" {
		log.Fatalf("--path is required")
	}

	_ = godotenv.Load()

	cfg, err := app.LoadConfig(configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if archiveDir != "" {
		cfg.ArchiveDir = archiveDir
	}

	ctx := context.Background()
	session, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open archive: %v", err)
	}

	code := run(ctx, session, format, destPath, inputs)
	if err := session.Close(); err != nil {
		log.Printf("Close failed: %v", err)
		if code == 0 {
			code = app.ExitCode(err)
		}
	}
	os.Exit(code)
}

func run(ctx context.Context, session *app.Session, format, destPath string, inputs []string) int {
	start := time.Now()
	for _, input := range inputs {
		target := destPath
		if len(inputs) > 1 {
			target = joinPath(destPath, baseName(input))
		}
		if err := ingestFile(ctx, session, format, target, input); err != nil {
			log.Printf("Ingest of %s failed: %v", input, err)
			return app.ExitCode(err)
		}
	}

	if err := session.CommitWithDigests(ctx); err != nil {
		log.Printf("Commit failed: %v", err)
		return app.ExitCode(err)
	}

	counters := session.Stats().Counters()
	log.Printf("Ingested %d inputs in %v (%d dispatches, %d parse failures)",
		len(inputs), time.Since(start).Round(time.Millisecond),
		counters.Dispatches, counters.ParseFailures)
	return 0
}

// ingestFile dispatches one raw file and materializes the result at
// the target path, recording the run in the manifest.
func ingestFile(ctx context.Context, session *app.Session, format, target, input string) error {
	f, err := os.Open(input)
	if err != nil {
		return rerr.NewStorageError(rerr.CodeBackendIO, fmt.Sprintf("opening input %s", input), err)
	}
	defer f.Close()

	res, err := session.Formats().Dispatch(ctx, format, f)
	outcome := observability.OutcomeOK
	if err != nil {
		outcome = observability.OutcomeParseError
		if rerr.IsCode(err, rerr.CodeContractViolation) {
			outcome = observability.OutcomeContractViolation
		}
	}
	session.Stats().RecordDispatch(format, outcome)
	if err != nil {
		return err
	}

	if _, err := session.Archive().Ingest(ctx, target, res); err != nil {
		return err
	}
	session.Stats().RecordOp(target, observability.OpWrite)

	runID, _ := res.Metadata[registry.MetaRunID].(string)
	_, err = session.Catalog().RecordRun(ctx, &manifest.RunRecord{
		RunID:      runID,
		FormatID:   res.FormatID,
		GroupPath:  target,
		Digest:     res.Digest.String(),
		InputBytes: res.InputBytes,
		ParsedAt:   time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	log.Printf("Ingested %s -> %s (%d arrays, %d bytes, digest %s)",
		input, target, len(res.Arrays), res.InputBytes, res.Digest.Short())
	return nil
}

// baseName strips the directory and extension from an input path, so
// runs/traj.xyz lands under a group named traj.
func baseName(input string) string {
	base := filepath.Base(input)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func joinPath(parent, name string) string {
	return strings.TrimSuffix(parent, "/") + "/" + name
}
