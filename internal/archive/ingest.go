package archive

import (
	"context"
	"fmt"

	"github.com/reparc/reparc/internal/backend"
	rerr "github.com/reparc/reparc/internal/errors"
	"github.com/reparc/reparc/internal/registry"
)

// Ingest materializes a dispatched parse result as the group at path,
// creating intermediate groups as needed. The target group must not
// already hold arrays. On failure nothing of the result remains: a
// group created by this call is removed again, a pre-existing one is
// restored to its empty state.
func (a *Archive) Ingest(ctx context.Context, path string, res *registry.Result) (*Group, error) {
	if res == nil {
		return nil, rerr.NewArchiveError(rerr.CodePathConflict, "nil parse result")
	}

	fresh := false
	if _, err := a.Resolve(path); err != nil {
		if !rerr.IsCode(err, rerr.CodeNotFound) {
			return nil, err
		}
		fresh = true
	}
	g, err := a.EnsureGroup(path)
	if err != nil {
		return nil, err
	}
	if len(g.Arrays()) > 0 {
		return nil, rerr.NewArchiveError(rerr.CodePathConflict,
			fmt.Sprintf("group %q already holds arrays", path))
	}

	rollback := func() {
		if fresh {
			_ = a.Remove(path)
			return
		}
		for _, arr := range res.Arrays {
			_ = g.DeleteArray(arr.Name)
		}
	}

	wants := backend.CapabilitySet(backend.CapRandomRead | backend.CapAppend)
	for _, arr := range res.Arrays {
		if err := ctx.Err(); err != nil {
			rollback()
			return nil, fmt.Errorf("ingest of %q interrupted: %w", path, err)
		}
		if _, err := g.CreateArray(arr.Name, arr.DType, arr.Shape.Clone(), arr.Role, wants); err != nil {
			rollback()
			return nil, err
		}
		if err := g.WriteArray(arr.Name, nil, arr.Data); err != nil {
			rollback()
			return nil, err
		}
	}

	g.mu.Lock()
	g.mergeMetaLocked(res.Metadata)
	g.mu.Unlock()
	return g, nil
}
