package backend

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"

	rerr "github.com/reparc/reparc/internal/errors"
)

// CompactResult summarizes one compaction run.
type CompactResult struct {
	BytesBefore     int64
	BytesAfter      int64
	ArraysKept      int
	ChunksRewritten int
}

// Compact rewrites the data file keeping only chunks of live arrays,
// then atomically swaps it in and flushes the index. Deleting arrays
// leaves their frames as dead bytes; Compact reclaims them.
//
// Chunk ordinals within each array are preserved, so cache entries
// keyed by locator and ordinal stay valid across a compaction.
func (b *ChunkedBackend) Compact(ctx context.Context) (CompactResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := CompactResult{BytesBefore: b.writeOffset}

	dataPath := filepath.Join(b.dir, chunkDataFile)
	tmpPath := dataPath + ".compact"
	tmpFile, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return result, rerr.NewStorageError(rerr.CodeBackendIO, "creating compaction file", err)
	}
	abort := func() {
		tmpFile.Close()
		os.Remove(tmpPath)
	}

	// Stable order keeps repeated compactions byte-identical.
	locs := make([]Locator, 0, len(b.arrays))
	for loc := range b.arrays {
		locs = append(locs, loc)
	}
	sort.Slice(locs, func(i, j int) bool { return locs[i] < locs[j] })

	newRefs := make(map[Locator][]chunkRef, len(locs))
	var offset int64
	header := make([]byte, frameHeaderSize)
	for _, loc := range locs {
		if err := ctx.Err(); err != nil {
			abort()
			return result, fmt.Errorf("compaction interrupted: %w", err)
		}

		arr := b.arrays[loc]
		refs := make([]chunkRef, len(arr.Chunks))
		for i, ref := range arr.Chunks {
			frame := make([]byte, frameHeaderSize+int(ref.PayloadSize))
			if _, err := b.dataFile.ReadAt(frame, ref.Offset); err != nil {
				abort()
				return result, rerr.NewStorageError(rerr.CodeBackendIO, "reading chunk during compaction", err)
			}
			copy(header, frame[:frameHeaderSize])
			crc := binary.LittleEndian.Uint32(header[4:8])
			if computed := crc32.ChecksumIEEE(frame[frameHeaderSize:]); computed != crc {
				abort()
				return result, rerr.NewStorageError(rerr.CodeCorruptedChunk,
					fmt.Sprintf("crc mismatch at offset %d during compaction", ref.Offset), nil)
			}
			if _, err := tmpFile.WriteAt(frame, offset); err != nil {
				abort()
				return result, rerr.NewStorageError(rerr.CodeBackendIO, "writing chunk during compaction", err)
			}
			ref.Offset = offset
			refs[i] = ref
			offset += int64(len(frame))
			result.ChunksRewritten++
		}
		newRefs[loc] = refs
	}

	if err := tmpFile.Sync(); err != nil {
		abort()
		return result, rerr.NewStorageError(rerr.CodeBackendIO, "fsync compaction file", err)
	}
	if err := os.Rename(tmpPath, dataPath); err != nil {
		abort()
		return result, rerr.NewStorageError(rerr.CodeBackendIO, "swapping compacted data file", err)
	}

	// The renamed handle now backs chunks.dat; retire the old one.
	b.dataFile.Close()
	b.dataFile = tmpFile
	b.writeOffset = offset
	for loc, refs := range newRefs {
		b.arrays[loc].Chunks = refs
	}

	result.BytesAfter = offset
	result.ArraysKept = len(locs)
	if err := b.flushLocked(); err != nil {
		return result, err
	}
	return result, nil
}
