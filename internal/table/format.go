// Package table is the default, in-process implementation of the table
// writer/reader/merged-iterator that reftable.Stack treats as an external
// collaborator. It is not a format specification: callers of the public
// reftable package may supply their own writer callback and never observe
// the bytes this package produces directly.
package table

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"
)

// HashFormat identifies the digest used for a table's record hashes. All
// readers composed into one stack must agree on the same format.
type HashFormat uint32

const (
	// FormatXXHash64 is the default, low-overhead format.
	FormatXXHash64 HashFormat = 1
	// FormatBLAKE3 is a cryptographic alternative, selectable via
	// reftable.Options.HashID.
	FormatBLAKE3 HashFormat = 2
)

func (f HashFormat) String() string {
	switch f {
	case FormatXXHash64:
		return "xxhash64"
	case FormatBLAKE3:
		return "blake3"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(f))
	}
}

// Sum computes the content hash for data under the given format.
func Sum(format HashFormat, data []byte) ([]byte, error) {
	switch format {
	case FormatXXHash64:
		h := xxhash.Sum64(data)
		out := make([]byte, 8)
		for i := 0; i < 8; i++ {
			out[i] = byte(h >> (8 * uint(i)))
		}
		return out, nil
	case FormatBLAKE3:
		sum := blake3.Sum256(data)
		return sum[:], nil
	default:
		return nil, fmt.Errorf("table: unsupported hash format %d", uint32(format))
	}
}

// sumLen reports the digest length Sum produces for format, so a reader
// can split a trailing checksum off the bytes that precede it without
// a length prefix.
func sumLen(format HashFormat) (int, error) {
	switch format {
	case FormatXXHash64:
		return 8, nil
	case FormatBLAKE3:
		return 32, nil
	default:
		return 0, fmt.Errorf("table: unsupported hash format %d", uint32(format))
	}
}

// ErrChecksumMismatch is returned by Open when a table's trailing digest
// does not match its compressed payload, indicating a corrupt or
// truncated file.
var ErrChecksumMismatch = fmt.Errorf("table: checksum mismatch, corrupt table file")
