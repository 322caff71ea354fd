package archive

import (
	"context"
	"fmt"

	"github.com/reparc/reparc/internal/array"
	"github.com/reparc/reparc/internal/backend"
	rerr "github.com/reparc/reparc/internal/errors"
	"github.com/reparc/reparc/pkg/types"
)

// Export copies every group's arrays and metadata into dst, one scope
// per group path. When dst sits on a directory store the exported tree
// matches the on-disk layout that ImportDir reads back, with roles and
// logical shapes recorded in each scope's attribute file.
func (a *Archive) Export(ctx context.Context, dst *array.Store) error {
	dir, _ := dst.Backend().(*backend.DirStore)

	err := a.Walk(func(g *Group) error {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("export interrupted: %w", err)
		}
		descrs, err := g.Descriptors()
		if err != nil {
			return err
		}
		meta := g.Metadata()
		if len(descrs) == 0 && len(meta) == 0 {
			return nil
		}
		scope := scopeForPath(g.Path())

		for _, d := range descrs {
			src, ok := g.Handle(d.Name)
			if !ok {
				return rerr.NewArchiveError(rerr.CodeNotFound,
					fmt.Sprintf("array %q vanished during export", d.Name))
			}
			h, err := dst.Create(scope, d.Name, d.DType, d.Shape.Clone(), backend.AllCapabilities)
			if err != nil {
				return err
			}
			if err := copyWhole(ctx, a.store, src, dst, h, d.Shape); err != nil {
				return err
			}
			if dir != nil {
				info, err := dst.Describe(h)
				if err != nil {
					return err
				}
				if err := dir.SetArrayDescr(info.Locator, d.Shape.Clone(), d.Role); err != nil {
					return err
				}
			}
		}
		if dir != nil && len(meta) > 0 {
			dir.PutAttributes(scope, meta)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return dst.Flush()
}

// ImportDir rebuilds an archive from a directory store populated by a
// previous Export. Array data is not copied; the returned archive
// reads and writes the store it was given.
func ImportDir(st *array.Store) (*Archive, error) {
	dir, ok := st.Backend().(*backend.DirStore)
	if !ok {
		return nil, rerr.NewArchiveError(rerr.CodeUnsupported,
			fmt.Sprintf("import needs a directory store, got %q", st.Backend().Kind()))
	}

	arch := New(st)
	for _, scope := range dir.Scopes() {
		g, err := arch.EnsureGroup(scopePath(scope))
		if err != nil {
			return nil, err
		}
		for _, info := range dir.ScopeArrays(scope) {
			h, err := st.Adopt(scope, info.Name, info.DType, info.Shape.Clone(), info.Locator)
			if err != nil {
				return nil, err
			}
			g.mu.Lock()
			g.attachLocked(info.Name, h, info.Role)
			g.mu.Unlock()
		}
		if attrs := dir.Attributes(scope); len(attrs) > 0 {
			g.mu.Lock()
			g.mergeMetaLocked(attrs)
			g.mu.Unlock()
		}
	}
	return arch, nil
}

// scopePath maps a store scope back to its archive path, the inverse
// of scopeForPath.
func scopePath(scope string) string {
	if scope == "" {
		return types.PathSeparator
	}
	return types.PathSeparator + scope
}

// AdoptArray registers an array already held by the backend under the
// group at path, without copying data. Catalog-driven reopen uses this
// to rebuild the tree around existing locators.
func (a *Archive) AdoptArray(path, name string, dtype types.DType, shape types.Shape, role types.AxisRole, loc backend.Locator) error {
	if !role.Valid() {
		return rerr.NewValidationError(rerr.CodeInvalidName,
			fmt.Sprintf("unknown axis role %q", role))
	}

	g, err := a.EnsureGroup(path)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.children[name]; exists {
		return rerr.NewArchiveError(rerr.CodePathConflict,
			fmt.Sprintf("name %q is taken by a child group of %q", name, path))
	}
	if _, exists := g.arrays[name]; exists {
		return rerr.NewStorageError(rerr.CodeNameConflict,
			fmt.Sprintf("array %q already exists in group %q", name, path), nil)
	}

	h, err := a.store.Adopt(g.scope, name, dtype, shape, loc)
	if err != nil {
		return err
	}
	g.attachLocked(name, h, role)
	return nil
}
