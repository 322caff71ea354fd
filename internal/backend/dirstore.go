package backend

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	rerr "github.com/reparc/reparc/internal/errors"
	"github.com/reparc/reparc/pkg/types"
)

const attributesFile = "attributes.yaml"

// DirStore keeps each scope as a directory on disk: an attributes.yaml
// describing the scope's arrays and metadata, and one <name>.dat file
// per array holding the canonical buffer encoding. Array data loads
// lazily on first access and is held in memory until Flush writes the
// dirty state back.
//
// The layout is self-describing: a tree written by one process can be
// reopened by another, or inspected with ordinary shell tools.
type DirStore struct {
	root string

	mu     sync.Mutex
	arrays map[Locator]*dirArray
	attrs  map[string]types.Metadata
	dirty  map[string]bool
}

type dirArray struct {
	scope  string
	name   string
	dtype  types.DType
	elems  int64
	shape  types.Shape
	role   types.AxisRole
	buf    types.Buffer
	loaded bool
	dirty  bool
}

// dirAttributes is the attributes.yaml document.
type dirAttributes struct {
	Arrays   map[string]dirArrayDescr `yaml:"arrays,omitempty"`
	Metadata map[string]any           `yaml:"metadata,omitempty"`
}

type dirArrayDescr struct {
	DType string  `yaml:"dtype"`
	Elems int64   `yaml:"elems"`
	Shape []int64 `yaml:"shape,omitempty"`
	Role  string  `yaml:"role,omitempty"`
}

// NewDirStore opens or creates a directory store rooted at root. Any
// attributes.yaml files under root register their arrays for lazy
// loading.
func NewDirStore(root string) (*DirStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, rerr.NewStorageError(rerr.CodeBackendIO, "creating dirstore root", err)
	}

	d := &DirStore{
		root:   root,
		arrays: make(map[Locator]*dirArray),
		attrs:  make(map[string]types.Metadata),
		dirty:  make(map[string]bool),
	}
	if err := d.scan(); err != nil {
		return nil, err
	}
	return d, nil
}

// scan walks the root registering every scope found on disk.
func (d *DirStore) scan() error {
	err := filepath.WalkDir(d.root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || entry.Name() != attributesFile {
			return nil
		}

		rel, err := filepath.Rel(d.root, filepath.Dir(p))
		if err != nil {
			return err
		}
		scope := filepath.ToSlash(rel)
		if scope == "." {
			scope = ""
		}
		return d.loadScope(scope, p)
	})
	if err != nil {
		return rerr.NewStorageError(rerr.CodeBackendIO, "scanning dirstore", err)
	}
	return nil
}

func (d *DirStore) loadScope(scope, attrPath string) error {
	raw, err := os.ReadFile(attrPath)
	if err != nil {
		return err
	}
	var doc dirAttributes
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parsing %s: %w", attrPath, err)
	}

	for name, descr := range doc.Arrays {
		dtype, err := types.ParseDType(descr.DType)
		if err != nil {
			return fmt.Errorf("array %q in %s: %w", name, attrPath, err)
		}
		role := types.AxisRole(descr.Role)
		if !role.Valid() {
			role = types.AxisNone
		}
		d.arrays[dirLocator(scope, name)] = &dirArray{
			scope: scope,
			name:  name,
			dtype: dtype,
			elems: descr.Elems,
			shape: types.Shape(descr.Shape),
			role:  role,
		}
	}
	if len(doc.Metadata) > 0 {
		meta := make(types.Metadata, len(doc.Metadata))
		for k, v := range doc.Metadata {
			nv, ok := types.NormalizeMetaValue(v)
			if !ok {
				return fmt.Errorf("metadata key %q in %s: unsupported value type %T", k, attrPath, v)
			}
			meta[k] = nv
		}
		d.attrs[scope] = meta
	}
	return nil
}

// Kind returns "dir".
func (d *DirStore) Kind() string { return "dir" }

// Capabilities returns the full set.
func (d *DirStore) Capabilities() CapabilitySet { return AllCapabilities }

// ZeroLengthOK reports that zero-element arrays are stored as empty
// files.
func (d *DirStore) ZeroLengthOK() bool { return true }

// Create registers a new array under scope. Callers validate names;
// the store layer guarantees scope/name uniqueness among live arrays.
func (d *DirStore) Create(scope, name string, dtype types.DType, elems int64) (Locator, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	loc := dirLocator(scope, name)
	if _, ok := d.arrays[loc]; ok {
		return "", rerr.NewStorageError(rerr.CodeNameConflict,
			fmt.Sprintf("array %q already exists in scope %q", name, scope), nil)
	}
	d.arrays[loc] = &dirArray{
		scope:  scope,
		name:   name,
		dtype:  dtype,
		elems:  elems,
		buf:    types.NewBuffer(dtype, elems),
		loaded: true,
		dirty:  true,
	}
	d.dirty[scope] = true
	return loc, nil
}

// ReadRange returns a copy of elements [start, stop).
func (d *DirStore) ReadRange(loc Locator, start, stop int64) (types.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	arr, ok := d.arrays[loc]
	if !ok {
		return types.Buffer{}, rerr.NewStorageError(rerr.CodeNotFound,
			fmt.Sprintf("no array at locator %q", loc), nil)
	}
	if start < 0 || stop < start || stop > arr.elems {
		return types.Buffer{}, rerr.NewValidationError(rerr.CodeRangeError,
			fmt.Sprintf("range [%d, %d) outside array of %d elements", start, stop, arr.elems))
	}
	if err := d.load(arr); err != nil {
		return types.Buffer{}, err
	}
	return arr.buf.Slice(start, stop).Clone(), nil
}

// WriteRange overwrites elements starting at offset.
func (d *DirStore) WriteRange(loc Locator, offset int64, data types.Buffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	arr, ok := d.arrays[loc]
	if !ok {
		return rerr.NewStorageError(rerr.CodeNotFound,
			fmt.Sprintf("no array at locator %q", loc), nil)
	}
	if offset < 0 || offset+data.Len() > arr.elems {
		return rerr.NewValidationError(rerr.CodeRangeError,
			fmt.Sprintf("write [%d, %d) outside array of %d elements", offset, offset+data.Len(), arr.elems))
	}
	if err := d.load(arr); err != nil {
		return err
	}
	arr.buf.CopyAt(offset, data)
	arr.dirty = true
	d.dirty[arr.scope] = true
	return nil
}

// load pulls the array's .dat file into memory on first access. A
// missing file means the array was created but never flushed; it reads
// as zero values.
func (d *DirStore) load(arr *dirArray) error {
	if arr.loaded {
		return nil
	}

	raw, err := os.ReadFile(d.dataPath(arr))
	if os.IsNotExist(err) {
		arr.buf = types.NewBuffer(arr.dtype, arr.elems)
		arr.loaded = true
		return nil
	}
	if err != nil {
		return rerr.NewStorageError(rerr.CodeBackendIO, "reading array data", err)
	}

	buf, err := types.DecodeBuffer(arr.dtype, arr.elems, raw)
	if err != nil {
		return rerr.NewStorageError(rerr.CodeCorruptedChunk,
			fmt.Sprintf("decoding %s/%s.dat", arr.scope, arr.name), err)
	}
	arr.buf = buf
	arr.loaded = true
	return nil
}

// Delete removes the array and its data file.
func (d *DirStore) Delete(loc Locator) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	arr, ok := d.arrays[loc]
	if !ok {
		return rerr.NewStorageError(rerr.CodeNotFound,
			fmt.Sprintf("no array at locator %q", loc), nil)
	}
	delete(d.arrays, loc)
	d.dirty[arr.scope] = true

	if err := os.Remove(d.dataPath(arr)); err != nil && !os.IsNotExist(err) {
		return rerr.NewStorageError(rerr.CodeBackendIO, "removing array data", err)
	}
	return nil
}

// PutAttributes replaces the free-form metadata stored in a scope's
// attributes.yaml. The next Flush writes it out.
func (d *DirStore) PutAttributes(scope string, meta types.Metadata) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attrs[scope] = meta.Clone()
	d.dirty[scope] = true
}

// SetArrayDescr records an array's logical shape and axis role in the
// scope's attributes.yaml. The backend itself only needs the flat
// element count; shape and role make the on-disk tree self-describing
// for importers.
func (d *DirStore) SetArrayDescr(loc Locator, shape types.Shape, role types.AxisRole) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	arr, ok := d.arrays[loc]
	if !ok {
		return rerr.NewStorageError(rerr.CodeNotFound,
			fmt.Sprintf("no array at locator %q", loc), nil)
	}
	arr.shape = shape.Clone()
	arr.role = role
	d.dirty[arr.scope] = true
	return nil
}

// ArrayInfo describes one array found in a directory store.
type ArrayInfo struct {
	Name    string
	DType   types.DType
	Elems   int64
	Shape   types.Shape
	Role    types.AxisRole
	Locator Locator
}

// ScopeArrays returns descriptors for every array in a scope, sorted
// by name. A recorded shape is included when attributes.yaml carried
// one; otherwise the shape is the flat element count.
func (d *DirStore) ScopeArrays(scope string) []ArrayInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []ArrayInfo
	for loc, arr := range d.arrays {
		if arr.scope != scope {
			continue
		}
		shape := arr.shape.Clone()
		if shape.Rank() == 0 {
			shape = types.Shape{arr.elems}
		}
		out = append(out, ArrayInfo{
			Name:    arr.name,
			DType:   arr.dtype,
			Elems:   arr.elems,
			Shape:   shape,
			Role:    arr.role,
			Locator: loc,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Attributes returns the metadata recorded for a scope.
func (d *DirStore) Attributes(scope string) types.Metadata {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attrs[scope].Clone()
}

// Scopes returns every scope known to the store, loaded or not.
func (d *DirStore) Scopes() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	seen := make(map[string]bool)
	for _, arr := range d.arrays {
		seen[arr.scope] = true
	}
	for scope := range d.attrs {
		seen[scope] = true
	}
	out := make([]string, 0, len(seen))
	for scope := range seen {
		out = append(out, scope)
	}
	return out
}

// Locators lists every live array locator in sorted order.
func (d *DirStore) Locators() []Locator {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Locator, 0, len(d.arrays))
	for loc := range d.arrays {
		out = append(out, loc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Flush writes dirty arrays and rewrites attributes.yaml for every
// scope touched since the last flush. Files are replaced atomically.
func (d *DirStore) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for scope := range d.dirty {
		if err := d.flushScope(scope); err != nil {
			return err
		}
		delete(d.dirty, scope)
	}
	return nil
}

func (d *DirStore) flushScope(scope string) error {
	dir := d.scopeDir(scope)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return rerr.NewStorageError(rerr.CodeBackendIO, "creating scope dir", err)
	}

	doc := dirAttributes{Arrays: make(map[string]dirArrayDescr)}
	for _, arr := range d.arrays {
		if arr.scope != scope {
			continue
		}
		descr := dirArrayDescr{DType: string(arr.dtype), Elems: arr.elems}
		if arr.shape.Rank() > 0 {
			descr.Shape = []int64(arr.shape)
		}
		if arr.role != types.AxisNone {
			descr.Role = string(arr.role)
		}
		doc.Arrays[arr.name] = descr
		if arr.dirty {
			if err := writeFileAtomic(d.dataPath(arr), arr.buf.Encode()); err != nil {
				return rerr.NewStorageError(rerr.CodeBackendIO,
					fmt.Sprintf("writing %s/%s.dat", scope, arr.name), err)
			}
			arr.dirty = false
		}
	}
	if meta := d.attrs[scope]; len(meta) > 0 {
		doc.Metadata = make(map[string]any, len(meta))
		for k, v := range meta {
			doc.Metadata[k] = v
		}
	}

	raw, err := yaml.Marshal(&doc)
	if err != nil {
		return rerr.NewStorageError(rerr.CodeBackendIO, "encoding attributes", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, attributesFile), raw); err != nil {
		return rerr.NewStorageError(rerr.CodeBackendIO, "writing attributes", err)
	}
	return nil
}

// Close flushes pending state.
func (d *DirStore) Close() error {
	return d.Flush()
}

func (d *DirStore) scopeDir(scope string) string {
	return filepath.Join(d.root, filepath.FromSlash(scope))
}

func (d *DirStore) dataPath(arr *dirArray) string {
	return filepath.Join(d.scopeDir(arr.scope), arr.name+".dat")
}

func dirLocator(scope, name string) Locator {
	return Locator(path.Join(scope, name))
}

func writeFileAtomic(p string, data []byte) error {
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

var _ Backend = (*DirStore)(nil)
