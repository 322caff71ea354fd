package manifest

import (
	"context"
	"fmt"

	"github.com/reparc/reparc/internal/archive"
	"github.com/reparc/reparc/internal/array"
	"github.com/reparc/reparc/internal/backend"
	"github.com/reparc/reparc/internal/digest"
)

// Record upserts the archive's current structure into the catalog:
// every group with its metadata and every array with its descriptor
// and locator. Rows for paths removed since the last record are not
// touched; removal goes through DeleteGroup and DeleteArray, and
// Reconcile flags any drift.
func Record(ctx context.Context, cat Catalog, a *archive.Archive) error {
	return record(ctx, cat, a, false)
}

// RecordWithDigests is Record plus a content digest per array. It reads
// every array in full, so it belongs right after an ingest while the
// data is hot, not in a periodic sweep.
func RecordWithDigests(ctx context.Context, cat Catalog, a *archive.Archive) error {
	return record(ctx, cat, a, true)
}

func record(ctx context.Context, cat Catalog, a *archive.Archive, withDigests bool) error {
	return a.Walk(func(g *archive.Group) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		path := g.Path()
		if err := cat.PutGroup(ctx, path, g.Metadata()); err != nil {
			return err
		}

		for _, name := range g.Arrays() {
			info, err := g.Describe(name)
			if err != nil {
				return err
			}

			rec := &ArrayRecord{
				GroupPath: path,
				Name:      name,
				DType:     info.DType,
				Shape:     info.Shape,
				Role:      g.Role(name),
				Locator:   string(info.Locator),
			}
			if withDigests {
				buf, err := g.ReadArray(name, nil)
				if err != nil {
					return err
				}
				rec.Digest = digest.SumBuffer(buf).String()
			}

			if err := cat.PutArray(ctx, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// Restore rebuilds an archive tree from the catalog over an array
// store whose backend already holds the data. Only handles are
// created; no array data is read until the caller does.
func Restore(ctx context.Context, cat CatalogReader, st *array.Store) (*archive.Archive, error) {
	a := archive.New(st)

	groups, err := cat.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	for _, rec := range groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		g, err := a.EnsureGroup(rec.Path)
		if err != nil {
			return nil, fmt.Errorf("manifest: restoring group %q: %w", rec.Path, err)
		}
		for key, value := range rec.Metadata {
			if err := g.SetMeta(key, value); err != nil {
				return nil, fmt.Errorf("manifest: restoring metadata of %q: %w", rec.Path, err)
			}
		}
	}

	arrays, err := cat.AllArrays(ctx)
	if err != nil {
		return nil, err
	}
	for _, rec := range arrays {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		err := a.AdoptArray(rec.GroupPath, rec.Name, rec.DType, rec.Shape, rec.Role, backend.Locator(rec.Locator))
		if err != nil {
			return nil, fmt.Errorf("manifest: restoring array %q of %q: %w", rec.Name, rec.GroupPath, err)
		}
	}

	return a, nil
}
