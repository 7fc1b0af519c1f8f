// packwriter.go -- tagged TLV record pack, write side
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
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/dchest/siphash"
	"github.com/golang/snappy"
)

// The on-disk pack has the following general structure:
//   - 64 byte file header: big-endian encoding of all multibyte ints
//      * magic    [4]byte
//      * flags    uint32 (indicates if record payloads are snappy compressed)
//      * salt     [16]byte random salt for siphash record integrity
//      * nrecs    uint64  Number of records in the pack
//      * offtbl   uint64  File offset of the table region (page-aligned)
//
//   - Contiguous series of records; each record is one encoded Box:
//      * cksum    uint64  Siphash checksum of payload, offset (big endian)
//      * payload  []byte  encoded (possibly compressed) TLV fields
//
//   - Possibly a gap until the next PageSize boundary (4096 bytes)
//   - The table region, all little-endian so readers can index the
//     mmap'd bytes directly:
//      * offset   []uint64  file offset of each record
//      * plen     []uint32  stored payload length of each record
//      * ntags    uint64    number of entries in the tag dictionary
//      * per tag, in tag order: uint32 name length + name bytes
//   - 32 bytes of strong checksum (SHA512_256); this checksum is done
//     over the file header and the table region.
// The records themselves are not part of the strong checksum - that
// would mean reading a potentially large file back in NewPackReader().
// The per-record siphash protects them; readers verify records
// opportunistically on access.

const (
	// Flags
	_Pack_Snappy = 1 << iota

	_Magic   = "TLVP"
	_HdrSize = 64
)

// writer state
type wstate int

const (
	_Aborted wstate = -1
	_Open    wstate = 0
	_Frozen  wstate = 1
)

// Compression is the record payload compression codec
type Compression byte

func (c Compression) isValid() bool {
	return c >= SnappyCompression && c <= unknownCompression
}

// Supported compression codecs
const (
	SnappyCompression Compression = iota
	NoCompression
	unknownCompression
)

// PackOptions define writer specific options.
type PackOptions struct {
	// The compression codec for record payloads.
	// Default: SnappyCompression.
	Compression Compression

	// Seeded selects a random per-instance hash seed for the
	// writer's tag registry.
	Seeded bool
}

func (o *PackOptions) norm() *PackOptions {
	var oo PackOptions
	if o != nil {
		oo = *o
	}

	if !oo.Compression.isValid() {
		oo.Compression = SnappyCompression
	}
	return &oo
}

// PackWriter writes a stream of tagged TLV records to a single pack
// file. Field names are mapped to uint32 tags through a TagSet owned
// by the writer; the name dictionary is persisted alongside the
// records when the pack is frozen. Once frozen the pack is immutable
// and readers open it with NewPackReader().
type PackWriter struct {
	fd   *os.File
	tags *TagSet

	// siphash key: just binary encoded salt
	salt []byte

	// running count of current offset within fd where we are
	// writing records
	off uint64

	offsets []uint64
	plens   []uint32

	snp  []byte // snappy scratch buffer
	comp bool

	fntmp string // tmp file name
	fn    string // final file holding the pack
	state wstate
}

// NewPackWriter prepares file 'fn' to hold a TLV record pack. The
// writer stages everything in a temp file; the real file appears,
// complete and checksummed, only after a successful Freeze().
func NewPackWriter(fn string, opt *PackOptions) (*PackWriter, error) {
	opt = opt.norm()

	tmp := fmt.Sprintf("%s.tmp.%d", fn, rand32())
	fd, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, err
	}

	tags := NewTagSet()
	if opt.Seeded {
		tags = NewSeededTagSet()
	}

	w := &PackWriter{
		fd:    fd,
		tags:  tags,
		salt:  randbytes(16),
		off:   _HdrSize, // starting offset past the header
		comp:  opt.Compression == SnappyCompression,
		fn:    fn,
		fntmp: tmp,
	}

	// Leave some space for a header; we will fill this in when we
	// are done Freezing.
	var z [_HdrSize]byte
	if _, err := writeAll(fd, z[:]); err != nil {
		return nil, err
	}

	return w, nil
}

// Len returns the number of records added so far.
func (w *PackWriter) Len() int {
	return len(w.offsets)
}

// Tags returns the writer's tag registry.
func (w *PackWriter) Tags() *TagSet {
	return w.tags
}

// Return the filename of the underlying pack
func (w *PackWriter) Filename() string {
	return w.fn
}

// Add appends one record to the pack.
func (w *PackWriter) Add(b *Box) error {
	if w.state != _Open {
		return ErrFrozen
	}

	payload := b.MarshalBinary()
	if w.comp {
		w.snp = snappy.Encode(w.snp[:cap(w.snp)], payload)
		payload = w.snp
	}
	if uint64(len(payload)) > math.MaxUint32 {
		return ErrValueTooLarge
	}

	return w.writeRecord(payload)
}

// AddObject tags the members of one decoded record and appends them as
// a Box: the field names run through the writer's TagSet, so names
// repeated across records keep their first-seen tag.
func (w *PackWriter) AddObject(members []Member) error {
	if w.state != _Open {
		return ErrFrozen
	}

	b := NewBox()
	for _, m := range members {
		tag, err := w.tags.Tag(m.Name)
		if err != nil {
			return err
		}

		switch m.Kind {
		case KindNull:
			b.PutNull(tag)
		case KindBool:
			b.PutBool(tag, m.Value.(bool))
		case KindInt:
			b.PutInt(tag, m.Value.(int64))
		case KindFloat:
			b.PutFloat(tag, m.Value.(float64))
		case KindString:
			err = b.PutString(tag, m.Value.(string))
		case KindBytes:
			err = b.PutBytes(tag, m.Value.([]byte))
		}
		if err != nil {
			return err
		}
	}

	return w.Add(b)
}

// Abort a construction
func (w *PackWriter) Abort() error {
	if w.state != _Open {
		return ErrFrozen
	}

	return w.abort()
}

func (w *PackWriter) abort() error {
	if err := os.Remove(w.fd.Name()); err != nil {
		return err
	}

	if err := w.fd.Close(); err != nil {
		return err
	}
	w.state = _Aborted
	return nil
}

// Freeze writes the table region and header, checksums the pack and
// moves it to its final name.
func (w *PackWriter) Freeze() (err error) {
	defer func(e *error) {
		// undo the tmpfile
		if *e != nil {
			w.abort()
		}
	}(&err)

	if w.state != _Open {
		return ErrFrozen
	}

	// calculate strong checksum for all data from this point on.
	h := sha512.New512_256()

	tee := io.MultiWriter(w.fd, h)

	// We align the table region to pagesize - so we can mmap it when
	// we read it back.
	pgsz := uint64(os.Getpagesize())
	pgsz_m1 := pgsz - 1
	offtbl := w.off + pgsz_m1
	offtbl &= ^pgsz_m1

	if offtbl > w.off {
		zeroes := make([]byte, offtbl-w.off)
		if _, err = writeAll(w.fd, zeroes); err != nil {
			return err
		}
		w.off = offtbl
	}

	// Now offset is at a page boundary.

	var ehdr [_HdrSize]byte

	// header is encoded in big-endian format
	// 4 byte magic
	// 4 byte flags
	// 16 byte salt
	// 8 byte nrecs
	// 8 byte offtbl
	be := binary.BigEndian
	copy(ehdr[:4], _Magic)

	i := 4
	if w.comp {
		be.PutUint32(ehdr[i:i+4], uint32(_Pack_Snappy))
	}
	i += 4

	i += copy(ehdr[i:], w.salt)
	be.PutUint64(ehdr[i:i+8], uint64(len(w.offsets)))
	i += 8
	be.PutUint64(ehdr[i:i+8], offtbl)

	// add header to checksum
	h.Write(ehdr[:])

	// write to file and checksum together
	if err = w.marshalTables(tee); err != nil {
		return err
	}

	// Trailer is the checksum of everything
	cksum := h.Sum(nil)
	if _, err = writeAll(w.fd, cksum[:]); err != nil {
		return err
	}

	// Finally, write the header at start of file
	w.fd.Seek(0, 0)
	if _, err = writeAll(w.fd, ehdr[:]); err != nil {
		return err
	}

	if err = w.fd.Sync(); err != nil {
		return err
	}

	if err = w.fd.Close(); err != nil {
		return err
	}

	if err = os.Rename(w.fntmp, w.fn); err != nil {
		return err
	}
	w.state = _Frozen
	return nil
}

// write the offset table, payload-length table and tag dictionary
func (w *PackWriter) marshalTables(tee io.Writer) error {
	ew := newErrWriter(tee)

	ew.Write(u64sToByteSlice(w.offsets))
	ew.Write(u32sToByteSlice(w.plens))

	names := w.tags.Names()

	var n8 [8]byte
	binary.LittleEndian.PutUint64(n8[:], uint64(len(names)))
	ew.Write(n8[:])

	var l4 [4]byte
	for _, nm := range names {
		binary.LittleEndian.PutUint32(l4[:], uint32(len(nm)))
		ew.Write(l4[:])
		ew.Write([]byte(nm))
	}

	w.off += uint64(ew.Count())
	return ew.Error()
}

// writeRecord writes a record and checksum at the current offset and
// remembers the offset and stored length for the table region.
func (w *PackWriter) writeRecord(payload []byte) error {
	var o [8]byte
	var c [8]byte

	be := binary.BigEndian
	be.PutUint64(o[:], w.off)

	h := siphash.New(w.salt)
	h.Write(o[:])
	h.Write(payload)
	be.PutUint64(c[:], h.Sum64())

	// Checksum at the start of record
	if _, err := writeAll(w.fd, c[:]); err != nil {
		return err
	}

	if _, err := writeAll(w.fd, payload); err != nil {
		return err
	}

	w.offsets = append(w.offsets, w.off)
	w.plens = append(w.plens, uint32(len(payload)))
	w.off += uint64(len(payload)) + 8
	return nil
}
