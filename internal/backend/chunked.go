package backend

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/reparc/reparc/internal/cache"
	"github.com/reparc/reparc/internal/compress"
	rerr "github.com/reparc/reparc/internal/errors"
	"github.com/reparc/reparc/pkg/types"
)

const (
	chunkDataFile  = "chunks.dat"
	chunkIndexFile = "chunks.idx"

	// frameHeaderSize is the per-chunk framing overhead:
	// [length:4 LE][crc32:4 LE] ahead of the payload.
	frameHeaderSize = 8

	chunkIndexVersion = 1
)

// Deterministic CBOR for the index file so identical state always
// serializes to identical bytes.
var (
	idxEncMode cbor.EncMode
	idxDecMode cbor.DecMode
)

func init() {
	var err error
	idxEncMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic("backend: cbor encode mode: " + err.Error())
	}
	idxDecMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("backend: cbor decode mode: " + err.Error())
	}
}

// ChunkedOptions configures a chunked backend.
type ChunkedOptions struct {
	// Codec compresses chunk payloads. Chunks that do not shrink are
	// stored uncompressed regardless of the configured codec.
	Codec compress.Codec

	// ChunkElems is the maximum number of elements per chunk.
	ChunkElems int64

	// Cache, when non-nil, holds decoded chunk buffers across reads.
	Cache *cache.ChunkCache
}

// DefaultChunkedOptions returns the default chunked backend configuration.
func DefaultChunkedOptions() ChunkedOptions {
	return ChunkedOptions{
		Codec:      compress.CodecSnappy,
		ChunkElems: 16384,
	}
}

// ChunkedBackend stores arrays in a single append-only data file of
// compressed, checksummed chunks, with a CBOR index file rewritten on
// Flush. It supports sequential append and chunked random reads; data
// written since the last Flush is not recoverable after a crash.
type ChunkedBackend struct {
	dir  string
	opts ChunkedOptions

	mu          sync.RWMutex
	dataFile    *os.File
	writeOffset int64
	nextID      uint64
	arrays      map[Locator]*chunkedArray
}

// chunkedArray is the per-array index state. Fields are exported for
// CBOR round-tripping of the index file.
type chunkedArray struct {
	Scope     string      `cbor:"scope"`
	Name      string      `cbor:"name"`
	DType     types.DType `cbor:"dtype"`
	Elems     int64       `cbor:"elems"`
	Watermark int64       `cbor:"watermark"`
	Chunks    []chunkRef  `cbor:"chunks"`
}

// chunkRef locates one chunk's frame inside the data file.
type chunkRef struct {
	ElemStart   int64  `cbor:"elem_start"`
	ElemCount   int64  `cbor:"elem_count"`
	Offset      int64  `cbor:"offset"`
	PayloadSize uint32 `cbor:"payload_size"`
	RawSize     int64  `cbor:"raw_size"`
	Codec       uint8  `cbor:"codec"`
}

// chunkIndex is the serialized form of the backend state.
type chunkIndex struct {
	Version  int                       `cbor:"version"`
	DataSize int64                     `cbor:"data_size"`
	NextID   uint64                    `cbor:"next_id"`
	Arrays   map[Locator]*chunkedArray `cbor:"arrays"`
}

// NewChunkedBackend opens or creates a chunked backend rooted at dir.
// An existing index is loaded; data beyond the indexed size (a torn
// tail from an unflushed shutdown) is discarded.
func NewChunkedBackend(dir string, opts ChunkedOptions) (*ChunkedBackend, error) {
	if opts.ChunkElems <= 0 {
		opts.ChunkElems = DefaultChunkedOptions().ChunkElems
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, rerr.NewStorageError(rerr.CodeBackendIO, "creating chunked backend dir", err)
	}

	dataPath := filepath.Join(dir, chunkDataFile)
	file, err := os.OpenFile(dataPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, rerr.NewStorageError(rerr.CodeBackendIO, "opening chunk data file", err)
	}

	b := &ChunkedBackend{
		dir:      dir,
		opts:     opts,
		dataFile: file,
		arrays:   make(map[Locator]*chunkedArray),
	}

	if err := b.loadIndex(); err != nil {
		file.Close()
		return nil, err
	}
	return b, nil
}

// loadIndex restores state from the index file and reconciles the data
// file length against it.
func (b *ChunkedBackend) loadIndex() error {
	idxPath := filepath.Join(b.dir, chunkIndexFile)
	raw, err := os.ReadFile(idxPath)
	if os.IsNotExist(err) {
		// Fresh backend, or one that never flushed: any existing data
		// bytes are unattributable and get discarded.
		if err := b.dataFile.Truncate(0); err != nil {
			return rerr.NewStorageError(rerr.CodeBackendIO, "truncating unindexed data file", err)
		}
		b.writeOffset = 0
		return nil
	}
	if err != nil {
		return rerr.NewStorageError(rerr.CodeBackendIO, "reading chunk index", err)
	}

	var idx chunkIndex
	if err := idxDecMode.Unmarshal(raw, &idx); err != nil {
		return rerr.NewStorageError(rerr.CodeCorruptedChunk, "decoding chunk index", err)
	}
	if idx.Version != chunkIndexVersion {
		return rerr.NewStorageError(rerr.CodeCorruptedChunk,
			fmt.Sprintf("unsupported chunk index version %d", idx.Version), nil)
	}

	stat, err := b.dataFile.Stat()
	if err != nil {
		return rerr.NewStorageError(rerr.CodeBackendIO, "stat chunk data file", err)
	}
	if stat.Size() < idx.DataSize {
		return rerr.NewStorageError(rerr.CodeCorruptedChunk,
			fmt.Sprintf("data file is %d bytes but index records %d", stat.Size(), idx.DataSize), nil)
	}
	if stat.Size() > idx.DataSize {
		if err := b.dataFile.Truncate(idx.DataSize); err != nil {
			return rerr.NewStorageError(rerr.CodeBackendIO, "truncating torn tail", err)
		}
	}

	b.writeOffset = idx.DataSize
	b.nextID = idx.NextID
	if idx.Arrays != nil {
		b.arrays = idx.Arrays
	}
	return nil
}

// Kind returns "chunked".
func (b *ChunkedBackend) Kind() string { return "chunked" }

// Capabilities returns random read plus sequential append. In-place
// overwrite is not supported; the store degrades writes accordingly.
func (b *ChunkedBackend) Capabilities() CapabilitySet {
	return CapabilitySet(CapRandomRead | CapAppend)
}

// ZeroLengthOK reports that zero-element arrays are rejected: an
// append-only chunk sequence for an empty array has nothing to frame.
func (b *ChunkedBackend) ZeroLengthOK() bool { return false }

// Create registers a new array. No data is written until the first
// WriteRange.
func (b *ChunkedBackend) Create(scope, name string, dtype types.DType, elems int64) (Locator, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	loc := Locator(fmt.Sprintf("c/%d", b.nextID))
	b.nextID++
	b.arrays[loc] = &chunkedArray{
		Scope: scope,
		Name:  name,
		DType: dtype,
		Elems: elems,
	}
	return loc, nil
}

// WriteRange appends data at the array's watermark. Writes anywhere
// else are rejected: overwriting framed chunks in place would corrupt
// the file.
func (b *ChunkedBackend) WriteRange(loc Locator, offset int64, data types.Buffer) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	arr, ok := b.arrays[loc]
	if !ok {
		return rerr.NewStorageError(rerr.CodeNotFound,
			fmt.Sprintf("no array at locator %q", loc), nil)
	}
	if offset < 0 || offset+data.Len() > arr.Elems {
		return rerr.NewValidationError(rerr.CodeRangeError,
			fmt.Sprintf("write [%d, %d) outside array of %d elements", offset, offset+data.Len(), arr.Elems))
	}
	if offset != arr.Watermark {
		return rerr.NewStorageError(rerr.CodeUnsupported,
			fmt.Sprintf("chunked backend writes are append-only: offset %d, watermark %d", offset, arr.Watermark), nil)
	}

	for written := int64(0); written < data.Len(); {
		n := data.Len() - written
		if n > b.opts.ChunkElems {
			n = b.opts.ChunkElems
		}
		chunk := data.Slice(written, written+n)
		ref, err := b.appendChunk(arr.Watermark, chunk)
		if err != nil {
			return err
		}
		idx := len(arr.Chunks)
		arr.Chunks = append(arr.Chunks, ref)
		arr.Watermark += n
		written += n
		if b.opts.Cache != nil {
			b.opts.Cache.Put(chunkKey(loc, idx), chunk.Clone())
		}
	}
	return nil
}

// appendChunk frames one chunk at the end of the data file:
// [length:4 LE][crc32:4 LE][payload].
func (b *ChunkedBackend) appendChunk(elemStart int64, chunk types.Buffer) (chunkRef, error) {
	raw := chunk.Encode()
	codec := b.opts.Codec
	payload, err := compress.Compress(codec, raw)
	if err == compress.ErrIncompressible {
		codec = compress.CodecNone
		payload = raw
	} else if err != nil {
		return chunkRef{}, rerr.NewStorageError(rerr.CodeBackendIO, "compressing chunk", err)
	}

	frame := make([]byte, frameHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(frame[4:8], crc32.ChecksumIEEE(payload))
	copy(frame[frameHeaderSize:], payload)

	if _, err := b.dataFile.WriteAt(frame, b.writeOffset); err != nil {
		return chunkRef{}, rerr.NewStorageError(rerr.CodeBackendIO, "writing chunk frame", err)
	}

	ref := chunkRef{
		ElemStart:   elemStart,
		ElemCount:   chunk.Len(),
		Offset:      b.writeOffset,
		PayloadSize: uint32(len(payload)),
		RawSize:     int64(len(raw)),
		Codec:       uint8(codec),
	}
	b.writeOffset += int64(len(frame))
	return ref, nil
}

// ReadRange reads elements [start, stop). Only chunks overlapping the
// range are touched; elements past the watermark read as zero values.
func (b *ChunkedBackend) ReadRange(loc Locator, start, stop int64) (types.Buffer, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	arr, ok := b.arrays[loc]
	if !ok {
		return types.Buffer{}, rerr.NewStorageError(rerr.CodeNotFound,
			fmt.Sprintf("no array at locator %q", loc), nil)
	}
	if start < 0 || stop < start || stop > arr.Elems {
		return types.Buffer{}, rerr.NewValidationError(rerr.CodeRangeError,
			fmt.Sprintf("range [%d, %d) outside array of %d elements", start, stop, arr.Elems))
	}

	result := types.NewBuffer(arr.DType, stop-start)
	for i, ref := range arr.Chunks {
		if ref.ElemStart+ref.ElemCount <= start {
			continue
		}
		if ref.ElemStart >= stop {
			break
		}
		buf, err := b.loadChunk(loc, arr, i)
		if err != nil {
			return types.Buffer{}, err
		}

		lo := max64(start, ref.ElemStart)
		hi := min64(stop, ref.ElemStart+ref.ElemCount)
		result.CopyAt(lo-start, buf.Slice(lo-ref.ElemStart, hi-ref.ElemStart))
	}
	return result, nil
}

// loadChunk returns the decoded buffer for one chunk, via the cache
// when one is configured.
func (b *ChunkedBackend) loadChunk(loc Locator, arr *chunkedArray, idx int) (types.Buffer, error) {
	key := chunkKey(loc, idx)
	if b.opts.Cache != nil {
		if buf, ok := b.opts.Cache.Get(key); ok {
			return buf, nil
		}
	}

	ref := arr.Chunks[idx]
	header := make([]byte, frameHeaderSize)
	if _, err := b.dataFile.ReadAt(header, ref.Offset); err != nil {
		return types.Buffer{}, rerr.NewStorageError(rerr.CodeBackendIO, "reading chunk header", err)
	}
	length := binary.LittleEndian.Uint32(header[0:4])
	crc := binary.LittleEndian.Uint32(header[4:8])
	if length != ref.PayloadSize {
		return types.Buffer{}, rerr.NewStorageError(rerr.CodeCorruptedChunk,
			fmt.Sprintf("frame length %d disagrees with index %d at offset %d", length, ref.PayloadSize, ref.Offset), nil)
	}

	payload := make([]byte, length)
	if _, err := b.dataFile.ReadAt(payload, ref.Offset+frameHeaderSize); err != nil {
		return types.Buffer{}, rerr.NewStorageError(rerr.CodeBackendIO, "reading chunk payload", err)
	}
	if computed := crc32.ChecksumIEEE(payload); computed != crc {
		return types.Buffer{}, rerr.NewStorageError(rerr.CodeCorruptedChunk,
			fmt.Sprintf("crc mismatch at offset %d: stored %08x, computed %08x", ref.Offset, crc, computed), nil)
	}

	raw, err := compress.Decompress(compress.Codec(ref.Codec), payload, int(ref.RawSize))
	if err != nil {
		return types.Buffer{}, rerr.NewStorageError(rerr.CodeCorruptedChunk, "decompressing chunk", err)
	}
	buf, err := types.DecodeBuffer(arr.DType, ref.ElemCount, raw)
	if err != nil {
		return types.Buffer{}, rerr.NewStorageError(rerr.CodeCorruptedChunk, "decoding chunk", err)
	}

	if b.opts.Cache != nil {
		b.opts.Cache.Put(key, buf)
	}
	return buf, nil
}

// Delete drops the array from the index. Its chunk frames become dead
// bytes in the data file until the next Compact.
func (b *ChunkedBackend) Delete(loc Locator) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.arrays[loc]; !ok {
		return rerr.NewStorageError(rerr.CodeNotFound,
			fmt.Sprintf("no array at locator %q", loc), nil)
	}
	delete(b.arrays, loc)
	if b.opts.Cache != nil {
		b.opts.Cache.InvalidatePrefix(string(loc) + "/")
	}
	return nil
}

// Flush fsyncs the data file and atomically rewrites the index file.
// The index write is the durability point: chunks appended after the
// last Flush are discarded on the next open.
func (b *ChunkedBackend) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked()
}

func (b *ChunkedBackend) flushLocked() error {
	if err := b.dataFile.Sync(); err != nil {
		return rerr.NewStorageError(rerr.CodeBackendIO, "fsync chunk data", err)
	}

	idx := chunkIndex{
		Version:  chunkIndexVersion,
		DataSize: b.writeOffset,
		NextID:   b.nextID,
		Arrays:   b.arrays,
	}
	raw, err := idxEncMode.Marshal(&idx)
	if err != nil {
		return rerr.NewStorageError(rerr.CodeBackendIO, "encoding chunk index", err)
	}

	idxPath := filepath.Join(b.dir, chunkIndexFile)
	tmpPath := idxPath + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0644); err != nil {
		return rerr.NewStorageError(rerr.CodeBackendIO, "writing chunk index", err)
	}
	if err := os.Rename(tmpPath, idxPath); err != nil {
		return rerr.NewStorageError(rerr.CodeBackendIO, "replacing chunk index", err)
	}
	return nil
}

// Close flushes and closes the data file.
func (b *ChunkedBackend) Close() error {
	if err := b.Flush(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dataFile.Close()
}

// DataSize returns the current data file length in bytes, including
// dead bytes from deleted arrays.
func (b *ChunkedBackend) DataSize() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.writeOffset
}

// Locators lists every live array locator in sorted order.
func (b *ChunkedBackend) Locators() []Locator {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Locator, 0, len(b.arrays))
	for loc := range b.arrays {
		out = append(out, loc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func chunkKey(loc Locator, idx int) string {
	return fmt.Sprintf("%s/%d", loc, idx)
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

var _ Backend = (*ChunkedBackend)(nil)
