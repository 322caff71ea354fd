// Package main implements the reparc archive inspector.
// It lists the group tree of an archive directory, validates schema
// consistency on demand, and prints catalog statistics.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/reparc/reparc/internal/app"
	"github.com/reparc/reparc/internal/archive"
	"github.com/reparc/reparc/internal/array"
	"github.com/reparc/reparc/internal/backend"
	"github.com/reparc/reparc/internal/manifest"
	"github.com/reparc/reparc/internal/schema"
	"github.com/reparc/reparc/pkg/types"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		archiveDir  string
		path        string
		validate    bool
		repair      bool
		showStats   bool
		exportDir   string
		showVersion bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&archiveDir, "archive", "", "Archive directory")
	flag.StringVar(&path, "path", "/", "Group path to inspect")
	flag.BoolVar(&validate, "validate", false, "Check frame-axis consistency and print every violation")
	flag.BoolVar(&repair, "repair", false, "Apply the truncate-to-shortest repair where validation fails")
	flag.BoolVar(&showStats, "stats", false, "Print catalog statistics instead of the tree")
	flag.StringVar(&exportDir, "export", "", "Export the archive as a grouped-file directory container at this path")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "reparc - inspect a reparc archive\n\n")
		fmt.Fprintf(os.Stderr, "Usage: reparc [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  reparc --archive ./data/archive\n")
		fmt.Fprintf(os.Stderr, "  reparc --archive ./data/archive --path /md_run --validate\n")
		fmt.Fprintf(os.Stderr, "  reparc --archive ./data/archive --stats\n")
		fmt.Fprintf(os.Stderr, "  reparc --archive ./data/archive --export ./container\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  REPARC_ARCHIVE_DIR     Archive directory\n")
		fmt.Fprintf(os.Stderr, "  REPARC_BACKEND_KIND    Backend kind (memory, chunked, dir)\n")
		fmt.Fprintf(os.Stderr, "  REPARC_BACKEND_CODEC   Chunk codec (none, snappy, zstd, lz4)\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("reparc version %s (commit: %s)\n", version, commit)
		os.Exit(0)
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

	code := run(ctx, session, path, validate, repair, showStats, exportDir)
	if err := session.Close(); err != nil {
		log.Printf("Close failed: %v", err)
		if code == 0 {
			code = app.ExitCode(err)
		}
	}
	os.Exit(code)
}

func run(ctx context.Context, session *app.Session, path string, validate, repair, showStats bool, exportDir string) int {
	if showStats {
		if err := printStats(ctx, session); err != nil {
			log.Printf("Stats failed: %v", err)
			return app.ExitCode(err)
		}
		return 0
	}

	if exportDir != "" {
		if err := exportContainer(ctx, session, exportDir); err != nil {
			log.Printf("Export failed: %v", err)
			return app.ExitCode(err)
		}
		log.Printf("Exported archive to %s", exportDir)
		return 0
	}

	g, err := session.Archive().Resolve(path)
	if err != nil {
		log.Printf("No group at %q: %v", path, err)
		return app.ExitCode(err)
	}

	if validate || repair {
		code, err := validateTree(ctx, g, repair)
		if err != nil {
			log.Printf("Validation failed: %v", err)
			return app.ExitCode(err)
		}
		if repair && code == 0 {
			if err := session.Commit(ctx); err != nil {
				log.Printf("Commit failed: %v", err)
				return app.ExitCode(err)
			}
		}
		return code
	}

	if err := printTree(g); err != nil {
		log.Printf("Listing failed: %v", err)
		return app.ExitCode(err)
	}
	return 0
}

// printTree lists the subtree rooted at g: one line per group, its
// metadata count, then one indented line per array.
func printTree(root *archive.Group) error {
	return root.WalkSubtree(func(g *archive.Group) error {
		name := g.Path()
		if name == "" {
			name = "/"
		}
		fmt.Printf("%s\n", name)

		descrs, err := g.Descriptors()
		if err != nil {
			return err
		}
		for _, d := range descrs {
			role := string(d.Role)
			if role == "" {
				role = "-"
			}
			fmt.Printf("  %-24s %-9s %-10s %s\n", d.Name, d.DType, role, d.Shape)
		}

		meta := g.Metadata()
		if len(meta) > 0 {
			keys := make([]string, 0, len(meta))
			for k := range meta {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Printf("  meta: %s\n", strings.Join(keys, ", "))
		}
		return nil
	})
}

// validateTree runs the schema validator on every group under root,
// printing each violation. With repair set, inconsistent groups get
// the truncate-to-shortest plan applied and are re-validated.
func validateTree(ctx context.Context, root *archive.Group, repair bool) (int, error) {
	validator := schema.New()
	violations := 0

	err := root.WalkSubtree(func(g *archive.Group) error {
		report, err := validator.Validate(g)
		if err != nil {
			return err
		}
		if report.OK() {
			return nil
		}

		path := g.Path()
		if path == "" {
			path = "/"
		}
		for _, v := range report.Violations {
			fmt.Printf("%s: %v\n", path, v)
		}

		if !repair {
			violations += len(report.Violations)
			return nil
		}

		plan, err := validator.Plan(g)
		if err != nil {
			return err
		}
		if err := g.Truncate(ctx, plan); err != nil {
			return err
		}
		after, err := validator.Validate(g)
		if err != nil {
			return err
		}
		if !after.OK() {
			violations += len(after.Violations)
			return nil
		}
		log.Printf("Repaired %s: truncated %d arrays to %d frames", path, len(plan), after.FrameLen)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if violations > 0 {
		return app.ExitValidation, nil
	}
	return 0, nil
}

// printStats reports catalog counts, provenance runs, and cache state.
func printStats(ctx context.Context, session *app.Session) error {
	catalog := session.Catalog()

	groups, err := catalog.CountGroups(ctx)
	if err != nil {
		return err
	}
	arrays, err := catalog.CountArrays(ctx)
	if err != nil {
		return err
	}
	runs, err := catalog.CountRuns(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Archive:  %s\n", session.Config().ArchiveDir)
	fmt.Printf("Backend:  %s\n", session.Store().Backend().Kind())
	fmt.Printf("Groups:   %d\n", groups)
	fmt.Printf("Arrays:   %d\n", arrays)
	fmt.Printf("Runs:     %d\n", runs)

	finder := manifest.NewFinder(catalog)
	for _, role := range []types.AxisRole{types.AxisFrame, types.AxisAtom, types.AxisProperty} {
		recs, err := finder.FindArraysByRole(ctx, role)
		if err != nil {
			return err
		}
		if len(recs) > 0 {
			fmt.Printf("  %-9s %d arrays\n", string(role)+":", len(recs))
		}
	}

	if c := session.Cache(); c != nil {
		hits, misses, evictions, entries, size := c.Metrics()
		fmt.Printf("Cache:    %d entries, %d bytes, %d hits, %d misses, %d evictions\n",
			entries, size, hits, misses, evictions)
	}
	return nil
}

// exportContainer copies the whole archive into a grouped-file
// directory container at dir, one subdirectory per group with an
// attributes.yaml and raw per-array data files.
func exportContainer(ctx context.Context, session *app.Session, dir string) error {
	dst, err := backend.NewDirStore(dir)
	if err != nil {
		return err
	}
	store := array.New(dst)
	if err := session.Archive().Export(ctx, store); err != nil {
		store.Close()
		return err
	}
	return store.Close()
}
