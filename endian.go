// endian.go - little-endian table encoding helpers
//
// (c) Sudhi Herle 2018
//
// License GPLv2
//
// If you need a commercial license for this work, please contact
// the author.
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

package keytab

import (
	"encoding/binary"
)

// The offset-table region of a pack file is little-endian to solve for
// the common case of x86/arm64 archs; readers index into the mmap'd
// bytes directly via the accessors below instead of materializing
// uint64/uint32 slices.

func u64sToByteSlice(v []uint64) []byte {
	b := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(b[i*8:], x)
	}
	return b
}

func u32sToByteSlice(v []uint32) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[i*4:], x)
	}
	return b
}

// leUint64At returns the i-th little-endian uint64 in 'b'.
func leUint64At(b []byte, i int) uint64 {
	return binary.LittleEndian.Uint64(b[i*8:])
}

// leUint32At returns the i-th little-endian uint32 in 'b'.
func leUint32At(b []byte, i int) uint32 {
	return binary.LittleEndian.Uint32(b[i*4:])
}
