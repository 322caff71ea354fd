package archive

import (
	"fmt"
	"strings"

	"github.com/reparc/reparc/internal/array"
	rerr "github.com/reparc/reparc/internal/errors"
	"github.com/reparc/reparc/pkg/types"
)

// Archive is the tree of groups over one array store. The empty path
// addresses the root group.
type Archive struct {
	store *array.Store
	root  *Group
}

// New creates an archive with an empty root group.
func New(st *array.Store) *Archive {
	return &Archive{
		store: st,
		root:  newGroup(st, nil, "", "", ""),
	}
}

// Store returns the array store backing the archive.
func (a *Archive) Store() *array.Store { return a.store }

// Root returns the root group.
func (a *Archive) Root() *Group { return a.root }

// Resolve walks the tree to the group at path. The empty path and "/"
// resolve to the root.
func (a *Archive) Resolve(path string) (*Group, error) {
	segs, err := splitArchivePath(path)
	if err != nil {
		return nil, err
	}

	cur := a.root
	for _, seg := range segs {
		next, ok := cur.Child(seg)
		if !ok {
			return nil, rerr.NewStorageError(rerr.CodeNotFound,
				fmt.Sprintf("no group at %q", path), nil)
		}
		cur = next
	}
	return cur, nil
}

// EnsureGroup resolves the group at path, creating empty intermediate
// groups for missing segments. A segment that collides with an array
// name fails with PATH_CONFLICT.
func (a *Archive) EnsureGroup(path string) (*Group, error) {
	segs, err := splitArchivePath(path)
	if err != nil {
		return nil, err
	}

	cur := a.root
	for _, seg := range segs {
		next, err := cur.ensureChild(seg)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// ensureChild returns the named child, creating an empty group when
// absent.
func (g *Group) ensureChild(name string) (*Group, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.children[name]; ok {
		return c, nil
	}
	if _, taken := g.arrays[name]; taken {
		return nil, rerr.NewArchiveError(rerr.CodePathConflict,
			fmt.Sprintf("segment %q under %q is an array, not a group", name, g.path))
	}

	path := childPath(g.path, name)
	c := newGroup(g.store, g, name, path, scopeForPath(path))
	g.children[name] = c
	return c, nil
}

// Insert mounts a standalone group at path, creating intermediate
// groups as needed. The destination must be absent or a still-empty
// intermediate; anything else fails with PATH_CONFLICT. After insert
// the archive owns the group.
func (a *Archive) Insert(path string, g *Group) error {
	if g == nil {
		return rerr.NewArchiveError(rerr.CodePathConflict, "cannot insert a nil group")
	}
	if g == a.root || g.Parent() != nil {
		return rerr.NewArchiveError(rerr.CodePathConflict,
			fmt.Sprintf("group %s is already mounted; groups are never shared between nodes", g))
	}

	segs, err := splitArchivePath(path)
	if err != nil {
		return err
	}
	if len(segs) == 0 {
		return rerr.NewArchiveError(rerr.CodePathConflict, "cannot insert over the root group")
	}

	parent := a.root
	for _, seg := range segs[:len(segs)-1] {
		parent, err = parent.ensureChild(seg)
		if err != nil {
			return err
		}
	}

	leaf := segs[len(segs)-1]
	parent.mu.Lock()
	defer parent.mu.Unlock()

	if _, taken := parent.arrays[leaf]; taken {
		return rerr.NewArchiveError(rerr.CodePathConflict,
			fmt.Sprintf("segment %q under %q is an array, not a group", leaf, parent.path))
	}
	if existing, ok := parent.children[leaf]; ok {
		existing.mu.RLock()
		empty := existing.emptyLocked()
		existing.mu.RUnlock()
		if !empty {
			return rerr.NewArchiveError(rerr.CodePathConflict,
				fmt.Sprintf("a populated group already exists at %q", path))
		}
	}

	parent.children[leaf] = g
	g.remount(parent, leaf)
	return nil
}

// Remove detaches the group at path and releases its arrays and those
// of all descendants. Removing the root is not permitted.
func (a *Archive) Remove(path string) error {
	segs, err := splitArchivePath(path)
	if err != nil {
		return err
	}
	if len(segs) == 0 {
		return rerr.NewArchiveError(rerr.CodePathConflict, "cannot remove the root group")
	}

	g, err := a.Resolve(path)
	if err != nil {
		return err
	}

	parent := g.Parent()
	parent.mu.Lock()
	delete(parent.children, g.Name())
	parent.mu.Unlock()

	return g.releaseArrays()
}

// Walk visits every group in the tree, parents first, names sorted.
func (a *Archive) Walk(fn func(*Group) error) error {
	return a.root.walkTree(fn)
}

// splitArchivePath splits and checks a group path. Empty and "/" mean
// the root.
func splitArchivePath(path string) ([]string, error) {
	if path == "" || path == types.PathSeparator {
		return nil, nil
	}
	segs, err := types.SplitPath(path)
	if err != nil {
		return nil, rerr.NewArchiveError(rerr.CodePathConflict,
			fmt.Sprintf("bad path %q: %v", path, err))
	}
	return segs, nil
}

// scopeForPath derives the store scope for a group created at path.
func scopeForPath(path string) string {
	return strings.TrimPrefix(path, types.PathSeparator)
}
