// jsonline_test.go -- test suite for the JSON-lines record reader
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
	"io"
	"strings"
	"testing"
)

func TestRecordReaderBasic(t *testing.T) {
	assert := newAsserter(t)

	input := `{"id": 1, "name": "ada", "admin": true}
{"id": 2, "name": "grace", "score": 99.5, "note": null}
`
	rr := NewRecordReader(strings.NewReader(input))

	m, err := rr.Next()
	assert(err == nil, "rec 1: %s", err)
	assert(len(m) == 3, "rec 1: exp 3 members, saw %d", len(m))
	assert(m[0].Name == "id" && m[0].Kind == KindInt && m[0].Value.(int64) == 1,
		"rec 1 member 0: %+v", m[0])
	assert(m[1].Name == "name" && m[1].Kind == KindString && m[1].Value.(string) == "ada",
		"rec 1 member 1: %+v", m[1])
	assert(m[2].Name == "admin" && m[2].Kind == KindBool && m[2].Value.(bool),
		"rec 1 member 2: %+v", m[2])

	m, err = rr.Next()
	assert(err == nil, "rec 2: %s", err)
	assert(len(m) == 4, "rec 2: exp 4 members, saw %d", len(m))
	assert(m[2].Name == "score" && m[2].Kind == KindFloat && m[2].Value.(float64) == 99.5,
		"rec 2 member 2: %+v", m[2])
	assert(m[3].Name == "note" && m[3].Kind == KindNull && m[3].Value == nil,
		"rec 2 member 3: %+v", m[3])

	_, err = rr.Next()
	assert(err == io.EOF, "exp EOF, saw %v", err)
}

func TestRecordReaderBlankAndJWCC(t *testing.T) {
	assert := newAsserter(t)

	// blank lines, comments and trailing commas are all tolerated
	input := "\n" +
		`{"a": 1, /* inline */ "b": 2,}` + "\n" +
		"   \n" +
		`{"c": 3} // trailing comment` + "\n"

	rr := NewRecordReader(strings.NewReader(input))

	m, err := rr.Next()
	assert(err == nil, "rec 1: %s", err)
	assert(len(m) == 2, "rec 1: exp 2 members, saw %d", len(m))
	assert(rr.Line() == 2, "rec 1: exp line 2, saw %d", rr.Line())

	m, err = rr.Next()
	assert(err == nil, "rec 2: %s", err)
	assert(len(m) == 1 && m[0].Name == "c", "rec 2: %+v", m)
	assert(rr.Line() == 4, "rec 2: exp line 4, saw %d", rr.Line())

	_, err = rr.Next()
	assert(err == io.EOF, "exp EOF, saw %v", err)
}

func TestRecordReaderSkipsNested(t *testing.T) {
	assert := newAsserter(t)

	input := `{"a": 1, "obj": {"x": [1,2,{"y": 3}]}, "list": [1,2,3], "b": 2}` + "\n"
	rr := NewRecordReader(strings.NewReader(input))

	m, err := rr.Next()
	assert(err == nil, "rec: %s", err)
	assert(len(m) == 2, "exp 2 scalar members, saw %d", len(m))
	assert(m[0].Name == "a" && m[1].Name == "b", "members: %+v", m)
	assert(rr.Skipped() == 2, "skipped: exp 2, saw %d", rr.Skipped())
}

func TestRecordReaderErrors(t *testing.T) {
	assert := newAsserter(t)

	rr := NewRecordReader(strings.NewReader("{\"ok\": 1}\nnot json\n"))

	_, err := rr.Next()
	assert(err == nil, "rec 1: %s", err)

	_, err = rr.Next()
	assert(err != nil, "parsed garbage line")
	assert(strings.Contains(err.Error(), "line 2"), "error lacks line number: %s", err)

	// a top-level array is not a record
	rr = NewRecordReader(strings.NewReader("[1,2,3]\n"))
	_, err = rr.Next()
	assert(err != nil, "parsed array record")
}
