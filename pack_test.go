// pack_test.go -- test suite for the pack writer/reader
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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// write a pack of n synthetic records and return its filename
func seedPack(t *testing.T, fn string, n int, opt *PackOptions) {
	t.Helper()

	w, err := NewPackWriter(fn, opt)
	if err != nil {
		t.Fatalf("%s: create: %s", fn, err)
	}

	for i := 0; i < n; i++ {
		members := []Member{
			{Name: "id", Kind: KindInt, Value: int64(i)},
			{Name: "name", Kind: KindString, Value: fmt.Sprintf("user-%d", i)},
			{Name: "active", Kind: KindBool, Value: i%2 == 0},
		}
		if err := w.AddObject(members); err != nil {
			t.Fatalf("%s: add %d: %s", fn, i, err)
		}
	}

	if err := w.Freeze(); err != nil {
		t.Fatalf("%s: freeze: %s", fn, err)
	}
}

func verifyPack(t *testing.T, fn string, n int) {
	t.Helper()
	assert := newAsserter(t)

	rd, err := NewPackReader(fn, 16)
	assert(err == nil, "open: %s", err)
	defer rd.Close()

	assert(rd.Len() == n, "len: exp %d, saw %d", n, rd.Len())
	assert(rd.NumTags() == 3, "tags: exp 3, saw %d", rd.NumTags())

	nm, ok := rd.TagName(1)
	assert(ok && nm == "id", "tag 1: %q %v", nm, ok)
	nm, ok = rd.TagName(2)
	assert(ok && nm == "name", "tag 2: %q %v", nm, ok)
	nm, ok = rd.TagName(3)
	assert(ok && nm == "active", "tag 3: %q %v", nm, ok)
	_, ok = rd.TagName(0)
	assert(!ok, "tag 0 resolved")
	_, ok = rd.TagName(4)
	assert(!ok, "tag 4 resolved")

	for i := 0; i < n; i++ {
		fs, err := rd.Record(uint64(i))
		assert(err == nil, "record %d: %s", i, err)
		assert(len(fs) == 3, "record %d: exp 3 fields, saw %d", i, len(fs))
		assert(fs[0].Tag == 1 && fs[0].Value.(int64) == int64(i),
			"record %d field 0: %+v", i, fs[0])
		assert(fs[1].Tag == 2 && fs[1].Value.(string) == fmt.Sprintf("user-%d", i),
			"record %d field 1: %+v", i, fs[1])
		assert(fs[2].Tag == 3 && fs[2].Value.(bool) == (i%2 == 0),
			"record %d field 2: %+v", i, fs[2])
	}

	// reads are cached; a second pass must agree
	for i := 0; i < n; i++ {
		fs, err := rd.Record(uint64(i))
		assert(err == nil, "cached record %d: %s", i, err)
		assert(fs[0].Value.(int64) == int64(i), "cached record %d: %+v", i, fs[0])
	}

	_, err = rd.Record(uint64(n))
	assert(err == ErrNoRecord, "out of range: exp ErrNoRecord, saw %v", err)
}

func TestPackRoundTrip(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "rt.pack")
	seedPack(t, fn, 500, nil)
	verifyPack(t, fn, 500)
}

func TestPackNoCompression(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "plain.pack")
	seedPack(t, fn, 100, &PackOptions{Compression: NoCompression})
	verifyPack(t, fn, 100)
}

func TestPackSeeded(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "seeded.pack")
	seedPack(t, fn, 100, &PackOptions{Seeded: true})
	verifyPack(t, fn, 100)
}

func TestPackEmpty(t *testing.T) {
	assert := newAsserter(t)

	fn := filepath.Join(t.TempDir(), "empty.pack")
	seedPack(t, fn, 0, nil)

	rd, err := NewPackReader(fn, 0)
	assert(err == nil, "open: %s", err)
	defer rd.Close()

	assert(rd.Len() == 0, "len: exp 0, saw %d", rd.Len())
	assert(rd.NumTags() == 0, "tags: exp 0, saw %d", rd.NumTags())
}

func TestPackIterFunc(t *testing.T) {
	assert := newAsserter(t)

	fn := filepath.Join(t.TempDir(), "iter.pack")
	seedPack(t, fn, 50, nil)

	rd, err := NewPackReader(fn, 8)
	assert(err == nil, "open: %s", err)
	defer rd.Close()

	var count int
	err = rd.IterFunc(func(i uint64, fs []Field) error {
		assert(fs[0].Value.(int64) == int64(i), "record %d: %+v", i, fs[0])
		count++
		return nil
	})
	assert(err == nil, "iter: %s", err)
	assert(count == 50, "iter visited %d, exp 50", count)

	// early stop propagates
	stop := fmt.Errorf("stop")
	count = 0
	err = rd.IterFunc(func(i uint64, fs []Field) error {
		count++
		if i == 9 {
			return stop
		}
		return nil
	})
	assert(err == stop, "iter: exp stop, saw %v", err)
	assert(count == 10, "iter visited %d, exp 10", count)
}

func TestPackFrozen(t *testing.T) {
	assert := newAsserter(t)

	fn := filepath.Join(t.TempDir(), "frozen.pack")
	w, err := NewPackWriter(fn, nil)
	assert(err == nil, "create: %s", err)

	b := NewBox()
	b.PutInt(1, 1)
	assert(w.Add(b) == nil, "add")
	assert(w.Freeze() == nil, "freeze")

	assert(w.Add(b) == ErrFrozen, "add after freeze")
	assert(w.Freeze() == ErrFrozen, "double freeze")
	assert(w.Abort() == ErrFrozen, "abort after freeze")
}

func TestPackAbort(t *testing.T) {
	assert := newAsserter(t)

	fn := filepath.Join(t.TempDir(), "aborted.pack")
	w, err := NewPackWriter(fn, nil)
	assert(err == nil, "create: %s", err)

	b := NewBox()
	b.PutInt(1, 1)
	assert(w.Add(b) == nil, "add")
	assert(w.Abort() == nil, "abort: %s", err)

	_, err = os.Stat(fn)
	assert(os.IsNotExist(err), "aborted pack left %s behind", fn)
}

// flip one byte of the strong-checksummed region; open must fail
func TestPackCorruptMeta(t *testing.T) {
	assert := newAsserter(t)

	fn := filepath.Join(t.TempDir(), "corrupt.pack")
	seedPack(t, fn, 20, nil)

	st, err := os.Stat(fn)
	assert(err == nil, "stat: %s", err)

	fd, err := os.OpenFile(fn, os.O_RDWR, 0)
	assert(err == nil, "open rw: %s", err)

	// last 40 bytes are inside dictionary+trailer territory
	var one [1]byte
	off := st.Size() - 40
	fd.ReadAt(one[:], off)
	one[0] ^= 0xff
	fd.WriteAt(one[:], off)
	fd.Close()

	_, err = NewPackReader(fn, 0)
	assert(err != nil, "opened pack with corrupt metadata")
	assert(strings.Contains(err.Error(), "checksum"), "unexpected error: %s", err)
}

// flip one byte of a record body; open succeeds, the record read fails
func TestPackCorruptRecord(t *testing.T) {
	assert := newAsserter(t)

	fn := filepath.Join(t.TempDir(), "correc.pack")
	seedPack(t, fn, 20, nil)

	fd, err := os.OpenFile(fn, os.O_RDWR, 0)
	assert(err == nil, "open rw: %s", err)

	// first record body starts right after the header and its cksum
	var one [1]byte
	off := int64(_HdrSize + 8 + 2)
	fd.ReadAt(one[:], off)
	one[0] ^= 0xff
	fd.WriteAt(one[:], off)
	fd.Close()

	rd, err := NewPackReader(fn, 0)
	assert(err == nil, "open: %s", err)
	defer rd.Close()

	_, err = rd.Record(0)
	assert(err != nil, "read record with corrupt body")
	assert(strings.Contains(err.Error(), "corrupted record"), "unexpected error: %s", err)

	// other records are unaffected
	_, err = rd.Record(1)
	assert(err == nil, "record 1: %s", err)
}

func TestPackBadMagic(t *testing.T) {
	assert := newAsserter(t)

	fn := filepath.Join(t.TempDir(), "magic.pack")
	seedPack(t, fn, 5, nil)

	fd, err := os.OpenFile(fn, os.O_RDWR, 0)
	assert(err == nil, "open rw: %s", err)
	fd.WriteAt([]byte("ZZZZ"), 0)
	fd.Close()

	_, err = NewPackReader(fn, 0)
	assert(err != nil, "opened pack with bad magic")
	assert(strings.Contains(err.Error(), "magic"), "unexpected error: %s", err)
}

func TestPackTooSmall(t *testing.T) {
	assert := newAsserter(t)

	fn := filepath.Join(t.TempDir(), "small.pack")
	err := os.WriteFile(fn, []byte("hello"), 0600)
	assert(err == nil, "write: %s", err)

	_, err = NewPackReader(fn, 0)
	assert(err != nil, "opened 5 byte pack")
}

func TestPackDump(t *testing.T) {
	assert := newAsserter(t)

	fn := filepath.Join(t.TempDir(), "dump.pack")
	seedPack(t, fn, 3, nil)

	rd, err := NewPackReader(fn, 0)
	assert(err == nil, "open: %s", err)
	defer rd.Close()

	var sb strings.Builder
	rd.DumpMeta(&sb)
	out := sb.String()
	assert(strings.Contains(out, "3 records"), "dump lacks record count:\n%s", out)
	assert(strings.Contains(out, "name"), "dump lacks tag names:\n%s", out)
}

// end to end: JSON-lines in, pack out, records back
func TestPackFromRecordReader(t *testing.T) {
	assert := newAsserter(t)

	input := `{"id": 1, "name": "ada"}
{"name": "grace", "id": 2, "extra": {"ignored": true}}
{"id": 3}
`
	fn := filepath.Join(t.TempDir(), "e2e.pack")
	w, err := NewPackWriter(fn, nil)
	assert(err == nil, "create: %s", err)

	rr := NewRecordReader(strings.NewReader(input))
	for {
		members, err := rr.Next()
		if err == io.EOF {
			break
		}
		assert(err == nil, "read: %s", err)
		assert(w.AddObject(members) == nil, "add")
	}
	assert(rr.Skipped() == 1, "skipped: exp 1, saw %d", rr.Skipped())
	assert(w.Freeze() == nil, "freeze")

	rd, err := NewPackReader(fn, 0)
	assert(err == nil, "open: %s", err)
	defer rd.Close()

	assert(rd.Len() == 3, "len: exp 3, saw %d", rd.Len())

	// "id" was seen first, then "name"; the nested "extra" never
	// made it into the dictionary
	assert(rd.NumTags() == 2, "tags: exp 2, saw %d", rd.NumTags())
	nm, _ := rd.TagName(1)
	assert(nm == "id", "tag 1: %q", nm)
	nm, _ = rd.TagName(2)
	assert(nm == "name", "tag 2: %q", nm)

	fs, err := rd.Record(1)
	assert(err == nil, "record 1: %s", err)
	assert(len(fs) == 2, "record 1: exp 2 fields, saw %d", len(fs))
	assert(fs[0].Tag == 2 && fs[0].Value.(string) == "grace", "record 1 field 0: %+v", fs[0])
	assert(fs[1].Tag == 1 && fs[1].Value.(int64) == 2, "record 1 field 1: %+v", fs[1])
}
