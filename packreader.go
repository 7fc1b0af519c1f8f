// packreader.go -- tagged TLV record pack, read side
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
	"fmt"
	"io"
	"os"
	"strings"

	"crypto/sha512"
	"crypto/subtle"

	"github.com/dchest/siphash"
	"github.com/golang/snappy"
	"github.com/hashicorp/golang-lru/arc/v2"
	"github.com/opencoff/go-mmap"
)

// PackReader is the query interface for a pack previously written with
// PackWriter. Records are addressed by their 0-based index; the field
// name for every tag comes from the persisted dictionary.
type PackReader struct {
	cache *arc.ARCCache[uint64, []Field]

	flags uint32

	// memory mapped table region
	offsets []byte // nrecs x uint64, little-endian
	plens   []byte // nrecs x uint32, little-endian

	// tag dictionary, indexed by tag-1
	names []string

	nrecs  uint64
	salt   []byte
	offtbl uint64

	// original mmap slice
	mm *mmap.Mapping
	fd *os.File
	fn string
}

// NewPackReader opens a previously written pack in file 'fn' and
// prepares it for querying. The header, table region and dictionary
// are verified against the strong checksum before anything else;
// records are verified opportunistically on access. Decoded records
// are cached; we retain upto 'cache' of them in memory (default 128).
func NewPackReader(fn string, cache int) (rd *PackReader, err error) {
	fd, err := os.Open(fn)
	if err != nil {
		return nil, err
	}

	// Number of records to cache
	if cache <= 0 {
		cache = 128
	}

	rd = &PackReader{
		salt: make([]byte, 16),
		fd:   fd,
		fn:   fn,
	}

	var st os.FileInfo

	st, err = fd.Stat()
	if err != nil {
		return nil, fmt.Errorf("%s: can't stat: %w", fn, err)
	}

	if st.Size() < (_HdrSize + 32) {
		return nil, fmt.Errorf("%s: file too small or corrupted", fn)
	}

	var hdrb [_HdrSize]byte

	_, err = io.ReadFull(fd, hdrb[:])
	if err != nil {
		return nil, fmt.Errorf("%s: can't read header: %w", fn, err)
	}

	offtbl, err := rd.decodeHeader(hdrb[:], st.Size())
	if err != nil {
		return nil, err
	}

	err = rd.verifyChecksum(hdrb[:], offtbl, st.Size())
	if err != nil {
		return nil, err
	}

	// 8 + 4: offset, payload-len; +8 for the dictionary count
	tblsz := rd.nrecs*(8+4) + 8

	// All metadata is now verified.
	// sanity check - even though we have verified the strong checksum
	if uint64(st.Size()) < (_HdrSize + 32 + tblsz) {
		return nil, fmt.Errorf("%s: corrupt header1", fn)
	}

	rd.cache, err = arc.NewARC[uint64, []Field](cache)
	if err != nil {
		return nil, err
	}

	// Now, we are certain that the header, the table region and the
	// dictionary bits are all valid and uncorrupted.

	// mmap the table region
	mmapsz := st.Size() - int64(offtbl) - 32
	mm := mmap.New(fd)

	mapping, err := mm.Map(mmapsz, int64(offtbl), mmap.PROT_READ, mmap.F_READAHEAD)
	if err != nil {
		return nil, fmt.Errorf("%s: can't mmap %d bytes at off %d: %w",
			fn, mmapsz, offtbl, err)
	}

	offsz := rd.nrecs * 8
	plensz := rd.nrecs * 4

	bs := mapping.Bytes()
	rd.mm = mapping
	rd.offsets = bs[:offsz]
	rd.plens = bs[offsz : offsz+plensz]

	rd.names, err = parseDict(bs[offsz+plensz:])
	if err != nil {
		return nil, fmt.Errorf("%s: can't read tag dictionary: %w", fn, err)
	}

	return rd, nil
}

// parse the tag dictionary: u64 count, then per tag a u32 name length
// and the name bytes. Names are copied out of the mmap'd region.
func parseDict(b []byte) ([]string, error) {
	if len(b) < 8 {
		return nil, fmt.Errorf("truncated count")
	}

	n := leUint64At(b, 0)
	b = b[8:]

	names := make([]string, 0, n)
	for i := uint64(0); i < n; i++ {
		if len(b) < 4 {
			return nil, fmt.Errorf("tag %d: truncated name length", i+1)
		}
		nl := int(leUint32At(b, 0))
		b = b[4:]
		if len(b) < nl {
			return nil, fmt.Errorf("tag %d: truncated name", i+1)
		}
		names = append(names, string(b[:nl]))
		b = b[nl:]
	}
	return names, nil
}

// Len returns the number of records in the pack.
func (rd *PackReader) Len() int {
	return int(rd.nrecs)
}

// NumTags returns the number of entries in the tag dictionary.
func (rd *PackReader) NumTags() int {
	return len(rd.names)
}

// TagName returns the field name for 'tag' and true, or false if the
// tag is not in the dictionary.
func (rd *PackReader) TagName(tag uint32) (string, bool) {
	if tag < 1 || uint64(tag) > uint64(len(rd.names)) {
		return "", false
	}
	return rd.names[tag-1], true
}

// Close closes the pack
func (rd *PackReader) Close() {
	rd.mm.Unmap()
	rd.fd.Close()
	rd.cache.Purge()
	rd.salt = nil
	rd.names = nil
	rd.fd = nil
	rd.fn = ""
}

// Record returns the decoded fields of record 'i'. It returns an error
// if the index is out of range, the disk i/o failed or the record
// checksum failed.
func (rd *PackReader) Record(i uint64) ([]Field, error) {
	if i >= rd.nrecs {
		return nil, ErrNoRecord
	}

	if v, ok := rd.cache.Get(i); ok {
		return v, nil
	}

	// Not in cache. So, go to disk and find it.
	off := leUint64At(rd.offsets, int(i))
	plen := leUint32At(rd.plens, int(i))

	if off < _HdrSize || off+uint64(plen)+8 > rd.offtbl {
		return nil, fmt.Errorf("%s: record %d: corrupt offset %#x", rd.fn, i, off)
	}

	payload, err := rd.decodeRecord(off, plen)
	if err != nil {
		return nil, err
	}

	if (rd.flags & _Pack_Snappy) > 0 {
		payload, err = snappy.Decode(nil, payload)
		if err != nil {
			return nil, fmt.Errorf("%s: record %d: bad snappy data: %w", rd.fn, i, err)
		}
	}

	box, err := ParseBox(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: record %d: %w", rd.fn, i, err)
	}

	fields := box.Fields()
	rd.cache.Add(i, fields)
	return fields, nil
}

// IterFunc iterates through every record of the pack and calls 'fp' on
// each. If the called function returns non-nil, it stops the iteration
// and the error is propogated to the caller.
func (rd *PackReader) IterFunc(fp func(i uint64, fields []Field) error) error {
	for i := uint64(0); i < rd.nrecs; i++ {
		fields, err := rd.Record(i)
		if err != nil {
			return fmt.Errorf("iter: record %d: %w", i, err)
		}
		if err := fp(i, fields); err != nil {
			return err
		}
	}
	return nil
}

// Dump the metadata to io.Writer 'w'
func (rd *PackReader) DumpMeta(w io.Writer) {
	fmt.Fprintf(w, "%s", rd.Desc())

	for i, nm := range rd.names {
		fmt.Fprintf(w, "  tag %3d: %s\n", i+1, nm)
	}
	for i := uint64(0); i < rd.nrecs; i++ {
		off := leUint64At(rd.offsets, int(i))
		fmt.Fprintf(w, "  %3d: %d bytes at %#x\n", i, leUint32At(rd.plens, int(i)), off)
	}
}

// Desc provides a human description of the pack
func (rd *PackReader) Desc() string {
	var w strings.Builder

	comp := "PLAIN"
	if (rd.flags & _Pack_Snappy) > 0 {
		comp = "SNAPPY"
	}
	fmt.Fprintf(&w, "TLV pack: <%s> %d records, %d tags, hash-salt %#x, offtbl at %#x\n",
		comp, rd.nrecs, len(rd.names), rd.salt, rd.offtbl)
	return w.String()
}

// read the next full record at offset 'off' - by seeking to that offset.
// calculate the record checksum, validate it and so on.
func (rd *PackReader) decodeRecord(off uint64, plen uint32) ([]byte, error) {
	_, err := rd.fd.Seek(int64(off), 0)
	if err != nil {
		return nil, err
	}

	data := make([]byte, plen+8)

	_, err = io.ReadFull(rd.fd, data)
	if err != nil {
		return nil, err
	}

	be := binary.BigEndian
	csum := be.Uint64(data[:8])

	var o [8]byte

	be.PutUint64(o[:], off)

	h := siphash.New(rd.salt)
	h.Write(o[:])
	h.Write(data[8:])
	exp := h.Sum64()

	if csum != exp {
		return nil, fmt.Errorf("%s: corrupted record at off %d (exp %#x, saw %#x)", rd.fn, off, exp, csum)
	}
	return data[8:], nil
}

// Verify checksum of all metadata: the table region, dictionary and
// the file header. We know that offtbl is within the size bounds of
// the file - see decodeHeader() below. sz is the actual file size
// (includes the header we already read)
func (rd *PackReader) verifyChecksum(hdrb []byte, offtbl uint64, sz int64) error {
	h := sha512.New512_256()
	h.Write(hdrb[:])

	// remsz is the size of the remaining metadata (which begins at
	// offset 'offtbl') minus the 32 bytes of SHA512_256 trailer.
	remsz := sz - int64(offtbl) - 32

	rd.fd.Seek(int64(offtbl), 0)

	nw, err := io.CopyN(h, rd.fd, remsz)
	if err != nil {
		return fmt.Errorf("%s: metadata i/o error: %w", rd.fn, err)
	}
	if nw != remsz {
		return fmt.Errorf("%s: partial read while verifying checksum, exp %d, saw %d", rd.fn, remsz, nw)
	}

	var expsum [32]byte

	// Read the trailer -- which is the expected checksum
	rd.fd.Seek(sz-32, 0)
	_, err = io.ReadFull(rd.fd, expsum[:])
	if err != nil {
		return fmt.Errorf("%s: checksum i/o error: %w", rd.fn, err)
	}

	csum := h.Sum(nil)
	if subtle.ConstantTimeCompare(csum[:], expsum[:]) != 1 {
		return fmt.Errorf("%s: checksum failure; exp %#x, saw %#x", rd.fn, expsum[:], csum[:])
	}

	rd.fd.Seek(int64(offtbl), 0)
	return nil
}

// entry condition: b is _HdrSize bytes long.
func (rd *PackReader) decodeHeader(b []byte, sz int64) (uint64, error) {
	if string(b[:4]) != _Magic {
		return 0, fmt.Errorf("%s: bad file magic <%x>", rd.fn, b[:4])
	}

	be := binary.BigEndian
	i := 4

	rd.flags = be.Uint32(b[i : i+4])
	i += 4

	rd.salt = b[i : i+16]
	i += 16
	rd.nrecs = be.Uint64(b[i : i+8])
	i += 8
	rd.offtbl = be.Uint64(b[i : i+8])

	if rd.offtbl < _HdrSize || rd.offtbl >= uint64(sz-32) {
		return 0, fmt.Errorf("%s: corrupt header0", rd.fn)
	}

	return rd.offtbl, nil
}
