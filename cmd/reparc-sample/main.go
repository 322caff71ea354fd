// Package main implements the reparc-sample tool.
// It selects frames out of an archive group, either by an index
// specification or by a seeded random draw, and lands the selection at
// a new archive path or in an XYZ file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/reparc/reparc/internal/adapter/xyz"
	"github.com/reparc/reparc/internal/app"
	"github.com/reparc/reparc/internal/archive"
	"github.com/reparc/reparc/internal/observability"
	"github.com/reparc/reparc/internal/sampler"
	"github.com/reparc/reparc/internal/schema"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		archiveDir  string
		fromPath    string
		toPath      string
		spec        string
		count       int64
		seed        int64
		xyzPath     string
		showVersion bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&archiveDir, "archive", "", "Archive directory")
	flag.StringVar(&fromPath, "from", "", "Source group path")
	flag.StringVar(&toPath, "to", "", "Destination group path for the selection")
	flag.StringVar(&spec, "spec", "", "Frame index spec, e.g. 0:100:2,500,900:")
	flag.Int64Var(&count, "count", 0, "Number of frames to draw at random without replacement")
	flag.Int64Var(&seed, "seed", 0, "Random seed; 0 derives one from the clock")
	flag.StringVar(&xyzPath, "xyz", "", "Write the selection as an XYZ trajectory to this file")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "reparc-sample - select frames from a reparc archive\n\n")
		fmt.Fprintf(os.Stderr, "Usage: reparc-sample [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  reparc-sample --archive ./data/archive --from /md_run --to /md_run_10th --spec 0::10\n")
		fmt.Fprintf(os.Stderr, "  reparc-sample --archive ./data/archive --from /md_run --to /train --count 500 --seed 42\n")
		fmt.Fprintf(os.Stderr, "  reparc-sample --archive ./data/archive --from /md_run --spec 100: --xyz tail.xyz\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  REPARC_ARCHIVE_DIR     Archive directory\n")
		fmt.Fprintf(os.Stderr, "  REPARC_BACKEND_KIND    Backend kind (memory, chunked, dir)\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("reparc-sample version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	if fromPath == "" {
		log.Fatalf("--from is required")
	}
	if (spec == "") == (count == 0) {
		log.Fatalf("exactly one of --spec or --count must be given")
	}
	if toPath == "" && xyzPath == "" {
		log.Fatalf("nowhere to put the selection: give --to, --xyz, or both")
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

	code := run(ctx, session, fromPath, toPath, spec, count, seed, xyzPath)
	if err := session.Close(); err != nil {
		log.Printf("Close failed: %v", err)
		if code == 0 {
			code = app.ExitCode(err)
		}
	}
	os.Exit(code)
}

// selection is a resolved frame selection plus the provenance stamped
// onto the result group.
type selection struct {
	indices []int64
	kind    string // canonical index spec, or "random"
	seed    int64  // nonzero only for random draws
}

func run(ctx context.Context, session *app.Session, fromPath, toPath, spec string, count, seed int64, xyzPath string) int {
	sel, err := buildSelection(session, fromPath, spec, count, seed)
	if err != nil {
		log.Printf("Selection failed: %v", err)
		return app.ExitCode(err)
	}

	result, err := session.Archive().Select(ctx, fromPath, sel.indices)
	if err != nil {
		log.Printf("Select failed: %v", err)
		return app.ExitCode(err)
	}
	session.Stats().RecordOp(fromPath, observability.OpSelect)

	if err := stampSelection(result, sel); err != nil {
		log.Printf("Stamping selection metadata failed: %v", err)
		return app.ExitCode(err)
	}

	if xyzPath != "" {
		if err := exportXYZ(result, xyzPath); err != nil {
			log.Printf("XYZ export failed: %v", err)
			return app.ExitCode(err)
		}
		log.Printf("Wrote %d frames to %s", len(sel.indices), xyzPath)
	}

	if toPath != "" {
		if err := session.Archive().Insert(toPath, result); err != nil {
			log.Printf("Insert at %q failed: %v", toPath, err)
			return app.ExitCode(err)
		}
		if err := session.Commit(ctx); err != nil {
			log.Printf("Commit failed: %v", err)
			return app.ExitCode(err)
		}
		log.Printf("Selected %d of the frames of %s into %s", len(sel.indices), fromPath, toPath)
	}
	return 0
}

// buildSelection resolves the frame extent of the source group and
// turns the slice expression or random draw into a sorted index list.
// The source
// must satisfy the frame-axis invariant; sampling an inconsistent
// group would silently pick different rows from different arrays.
func buildSelection(session *app.Session, fromPath, spec string, count, seed int64) (*selection, error) {
	g, err := session.Archive().Resolve(fromPath)
	if err != nil {
		return nil, err
	}

	report, err := schema.New().Validate(g)
	if err != nil {
		return nil, err
	}
	if err := report.Err(); err != nil {
		return nil, fmt.Errorf("source group %s fails validation: %w", fromPath, err)
	}
	if report.FrameLen < 0 {
		return nil, fmt.Errorf("group %s has no frame-indexed arrays to sample", fromPath)
	}
	frames := report.FrameLen

	sel := &selection{}
	switch {
	case spec != "":
		plan, err := sampler.Parse(spec)
		if err != nil {
			return nil, err
		}
		sel.indices, err = plan.Frames(frames)
		if err != nil {
			return nil, err
		}
		sel.kind = plan.String()
	default:
		if seed == 0 {
			seed = time.Now().UnixNano()
			log.Printf("Using seed %d", seed)
		}
		sel.indices, err = sampler.NewSampler(seed).Sample(count, frames)
		if err != nil {
			return nil, err
		}
		sel.kind = "random"
		sel.seed = seed
	}
	if len(sel.indices) == 0 {
		return nil, fmt.Errorf("selection over %d frames is empty", frames)
	}
	return sel, nil
}

// stampSelection records how the frames were chosen, so a draw can be
// reproduced from the result group alone.
func stampSelection(g *archive.Group, sel *selection) error {
	if err := g.SetMeta(sampler.MetaSamplingKind, sel.kind); err != nil {
		return err
	}
	if sel.seed != 0 {
		return g.SetMeta(sampler.MetaSamplingSeed, sel.seed)
	}
	return nil
}

// exportXYZ writes the selection group as XYZ trajectory text. The
// group must carry the adapter's array set; selections from groups
// ingested through the xyz format always do.
func exportXYZ(g *archive.Group, path string) error {
	numbers, err := g.ReadArray(xyz.ArrayAtomicNumbers, nil)
	if err != nil {
		return err
	}
	coords, err := g.ReadArray(xyz.ArrayGeometry, nil)
	if err != nil {
		return err
	}
	var comments []string
	if comment, err := g.ReadArray(xyz.ArrayComment, nil); err == nil {
		comments = comment.Strings
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := xyz.Write(f, numbers.Ints, coords.Floats, comments, 0); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
