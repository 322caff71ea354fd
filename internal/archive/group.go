// Package archive maintains the tree of named groups over an array
// store. Each group holds arrays, axis-role tags, and metadata;
// subtrees are independently lockable, and traversal never touches
// array data. Select and merge produce standalone groups whose
// ownership transfers fully to the caller until they are inserted.
package archive

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/reparc/reparc/internal/array"
	"github.com/reparc/reparc/internal/backend"
	rerr "github.com/reparc/reparc/internal/errors"
	"github.com/reparc/reparc/internal/schema"
	"github.com/reparc/reparc/pkg/types"
)

// Group is one node of the archive tree, or a standalone group not yet
// mounted anywhere. Arrays and child groups share one namespace within
// a group. The parent pointer is navigational only; ownership flows
// root to leaf.
type Group struct {
	store *array.Store

	mu       sync.RWMutex
	name     string
	path     string
	scope    string
	parent   *Group
	children map[string]*Group
	arrays   map[string]array.Handle
	roles    map[string]types.AxisRole
	meta     types.Metadata
}

func newGroup(st *array.Store, parent *Group, name, path, scope string) *Group {
	return &Group{
		store:    st,
		name:     name,
		path:     path,
		scope:    scope,
		parent:   parent,
		children: make(map[string]*Group),
		arrays:   make(map[string]array.Handle),
		roles:    make(map[string]types.AxisRole),
		meta:     make(types.Metadata),
	}
}

// NewStandalone creates an unmounted group whose arrays live in a
// fresh store scope. Standalone groups are how adapter output, merge
// results, and selections travel before insertion.
func NewStandalone(st *array.Store) *Group {
	scope := "_standalone/" + uuid.New().String()[:8]
	return newGroup(st, nil, "", "", scope)
}

// Name returns the group's path segment, empty for the root and for
// standalone groups.
func (g *Group) Name() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.name
}

// Path returns the group's full path, empty until mounted.
func (g *Group) Path() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.path
}

// Scope returns the store scope holding the group's arrays.
func (g *Group) Scope() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.scope
}

// Parent returns the enclosing group, nil for the root and for
// standalone groups.
func (g *Group) Parent() *Group {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.parent
}

// Children lists child group names in sorted order without touching
// any array data.
func (g *Group) Children() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]string, 0, len(g.children))
	for name := range g.children {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Child returns the named child group.
func (g *Group) Child(name string) (*Group, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.children[name]
	return c, ok
}

// Arrays lists array names in sorted order without materializing data.
func (g *Group) Arrays() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]string, 0, len(g.arrays))
	for name := range g.arrays {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Handle returns the store handle for a named array.
func (g *Group) Handle(name string) (array.Handle, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	h, ok := g.arrays[name]
	return h, ok
}

// CreateArray allocates a new array owned by this group. The name must
// not collide with an existing array or child group.
func (g *Group) CreateArray(name string, dtype types.DType, shape types.Shape, role types.AxisRole, wants backend.CapabilitySet) (array.Handle, error) {
	if !role.Valid() {
		return array.Handle{}, rerr.NewValidationError(rerr.CodeInvalidName,
			fmt.Sprintf("unknown axis role %q", role))
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.children[name]; exists {
		return array.Handle{}, rerr.NewArchiveError(rerr.CodePathConflict,
			fmt.Sprintf("name %q is taken by a child group of %q", name, g.path))
	}
	if _, exists := g.arrays[name]; exists {
		return array.Handle{}, rerr.NewStorageError(rerr.CodeNameConflict,
			fmt.Sprintf("array %q already exists in group %q", name, g.path), nil)
	}

	h, err := g.store.Create(g.scope, name, dtype, shape, wants)
	if err != nil {
		return array.Handle{}, err
	}
	g.arrays[name] = h
	g.roles[name] = role
	return h, nil
}

// attach registers an existing handle under name. Callers hold g.mu.
func (g *Group) attachLocked(name string, h array.Handle, role types.AxisRole) {
	g.arrays[name] = h
	g.roles[name] = role
}

// ReadArray reads the named array's selected extent.
func (g *Group) ReadArray(name string, ranges []types.Range) (types.Buffer, error) {
	h, err := g.lookupArray(name)
	if err != nil {
		return types.Buffer{}, err
	}
	return g.store.Read(h, ranges)
}

// WriteArray writes into the named array's selected extent.
func (g *Group) WriteArray(name string, ranges []types.Range, data types.Buffer) error {
	h, err := g.lookupArray(name)
	if err != nil {
		return err
	}
	return g.store.Write(h, ranges, data)
}

// DeleteArray removes the named array from the group and releases its
// storage.
func (g *Group) DeleteArray(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	h, ok := g.arrays[name]
	if !ok {
		return rerr.NewStorageError(rerr.CodeNotFound,
			fmt.Sprintf("no array %q in group %q", name, g.path), nil)
	}
	if err := g.store.Delete(h); err != nil {
		return err
	}
	delete(g.arrays, name)
	delete(g.roles, name)
	return nil
}

// Tag assigns an axis role to an array. Roles drive validation,
// selection, and merge; an untagged array defaults to no role.
func (g *Group) Tag(name string, role types.AxisRole) error {
	if !role.Valid() {
		return rerr.NewValidationError(rerr.CodeInvalidName,
			fmt.Sprintf("unknown axis role %q", role))
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.arrays[name]; !ok {
		return rerr.NewStorageError(rerr.CodeNotFound,
			fmt.Sprintf("no array %q in group %q", name, g.path), nil)
	}
	g.roles[name] = role
	return nil
}

// Role returns the axis role assigned to an array.
func (g *Group) Role(name string) types.AxisRole {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.roles[name]
}

// Describe returns the store descriptor for one array.
func (g *Group) Describe(name string) (array.Info, error) {
	h, err := g.lookupArray(name)
	if err != nil {
		return array.Info{}, err
	}
	return g.store.Describe(h)
}

// Metadata returns a copy of the group's metadata.
func (g *Group) Metadata() types.Metadata {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.meta.Clone()
}

// MetaValue returns one metadata value.
func (g *Group) MetaValue(key string) (any, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.meta[key]
	return v, ok
}

// SetMeta stores one metadata entry, normalizing the value to the
// supported scalar kinds.
func (g *Group) SetMeta(key string, value any) error {
	nv, ok := types.NormalizeMetaValue(value)
	if !ok {
		return rerr.NewValidationError(rerr.CodeInvalidName,
			fmt.Sprintf("metadata key %q: unsupported value type %T", key, value))
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.meta[key] = nv
	return nil
}

// mergeMeta overlays m onto the group's metadata, m winning on
// collision. Callers hold g.mu.
func (g *Group) mergeMetaLocked(m types.Metadata) {
	g.meta.MergeFrom(m)
}

// Descriptors returns one descriptor per array in name order,
// implementing the validator's group view.
func (g *Group) Descriptors() ([]schema.ArrayDescr, error) {
	g.mu.RLock()
	names := make([]string, 0, len(g.arrays))
	for name := range g.arrays {
		names = append(names, name)
	}
	handles := make(map[string]array.Handle, len(g.arrays))
	roles := make(map[string]types.AxisRole, len(g.roles))
	for name, h := range g.arrays {
		handles[name] = h
		roles[name] = g.roles[name]
	}
	g.mu.RUnlock()
	sort.Strings(names)

	out := make([]schema.ArrayDescr, 0, len(names))
	for _, name := range names {
		info, err := g.store.Describe(handles[name])
		if err != nil {
			return nil, err
		}
		out = append(out, schema.ArrayDescr{
			Name:  name,
			Role:  roles[name],
			DType: info.DType,
			Shape: info.Shape,
		})
	}
	return out, nil
}

func (g *Group) lookupArray(name string) (array.Handle, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	h, ok := g.arrays[name]
	if !ok {
		return array.Handle{}, rerr.NewStorageError(rerr.CodeNotFound,
			fmt.Sprintf("no array %q in group %q", name, g.path), nil)
	}
	return h, nil
}

// empty reports whether the group holds no arrays, children, or
// metadata. Callers hold g.mu.
func (g *Group) emptyLocked() bool {
	return len(g.arrays) == 0 && len(g.children) == 0 && len(g.meta) == 0
}

// releaseArrays deletes every array owned by this group and,
// recursively, by its descendants. Callers hold no group locks.
func (g *Group) releaseArrays() error {
	g.mu.Lock()
	handles := make([]array.Handle, 0, len(g.arrays))
	for _, h := range g.arrays {
		handles = append(handles, h)
	}
	children := make([]*Group, 0, len(g.children))
	for _, c := range g.children {
		children = append(children, c)
	}
	g.arrays = make(map[string]array.Handle)
	g.roles = make(map[string]types.AxisRole)
	g.children = make(map[string]*Group)
	g.mu.Unlock()

	var firstErr error
	for _, h := range handles {
		if err := g.store.Delete(h); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, c := range children {
		if err := c.releaseArrays(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// remount attaches a standalone group under parent with the given
// name, fixing paths for the whole subtree. Callers hold parent.mu.
func (g *Group) remount(parent *Group, name string) {
	g.mu.Lock()
	g.parent = parent
	g.name = name
	g.path = childPath(parent.path, name)
	children := make([]*Group, 0, len(g.children))
	for _, c := range g.children {
		children = append(children, c)
	}
	g.mu.Unlock()

	for _, c := range children {
		c.remount(g, c.Name())
	}
}

func childPath(parentPath, name string) string {
	if parentPath == "" {
		return types.PathSeparator + name
	}
	return parentPath + types.PathSeparator + name
}

// WalkSubtree visits the group and every descendant, parents before
// children, in sorted-name order.
func (g *Group) WalkSubtree(fn func(*Group) error) error {
	return g.walkTree(fn)
}

// walkTree visits the group and every descendant, parents before
// children, in sorted-name order.
func (g *Group) walkTree(fn func(*Group) error) error {
	if err := fn(g); err != nil {
		return err
	}
	for _, name := range g.Children() {
		c, ok := g.Child(name)
		if !ok {
			continue
		}
		if err := c.walkTree(fn); err != nil {
			return err
		}
	}
	return nil
}

// frameLen returns the group's consensus frame length using the same
// rule as the validator, or -1 when no arrays carry the frame role.
func (g *Group) frameLen() (int64, error) {
	descrs, err := g.Descriptors()
	if err != nil {
		return 0, err
	}
	counts := make(map[int64]int)
	for _, d := range descrs {
		if d.Role == types.AxisFrame && d.Shape.Rank() > 0 {
			counts[d.Shape[0]]++
		}
	}
	best := int64(-1)
	bestCount := 0
	for length, count := range counts {
		if count > bestCount || (count == bestCount && length > best) {
			best = length
			bestCount = count
		}
	}
	return best, nil
}

// String renders the group for logs.
func (g *Group) String() string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var sb strings.Builder
	if g.path == "" {
		sb.WriteString("group(standalone")
	} else {
		fmt.Fprintf(&sb, "group(%s", g.path)
	}
	fmt.Fprintf(&sb, ", arrays=%d, children=%d)", len(g.arrays), len(g.children))
	return sb.String()
}
