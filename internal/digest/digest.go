// Package digest computes BLAKE3 content digests for provenance
// tracking. Every dispatched raw input and every stored array buffer
// gets a digest so a dataset's origin can be verified long after the
// producing run finished.
package digest

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/zeebo/blake3"

	"github.com/reparc/reparc/pkg/types"
)

// Digest is a 32-byte BLAKE3 digest.
type Digest [32]byte

// Sum computes the digest of a byte slice.
func Sum(data []byte) Digest {
	return blake3.Sum256(data)
}

// SumReader computes the digest of an entire stream.
func SumReader(r io.Reader) (Digest, error) {
	hasher := blake3.New()
	if _, err := io.Copy(hasher, r); err != nil {
		return Digest{}, fmt.Errorf("digesting stream: %w", err)
	}
	var d Digest
	copy(d[:], hasher.Sum(nil))
	return d, nil
}

// SumBuffer computes the digest of an array buffer's canonical byte
// encoding, so the same values always hash identically regardless of
// which backend held them.
func SumBuffer(b types.Buffer) Digest {
	return Sum(b.Encode())
}

// String returns the hex-encoded digest, the canonical form used in
// metadata, manifest rows, and CLI output.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Short returns the first 12 hex characters, for log lines.
func (d Digest) Short() string {
	return hex.EncodeToString(d[:6])
}

// Parse decodes a 64-character hex string into a Digest.
func Parse(s string) (Digest, error) {
	var d Digest
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("parsing digest: %w", err)
	}
	if len(decoded) != len(d) {
		return d, fmt.Errorf("digest is %d bytes, want %d", len(decoded), len(d))
	}
	copy(d[:], decoded)
	return d, nil
}
