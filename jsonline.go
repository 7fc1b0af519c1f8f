// jsonline.go - line-oriented JSON record source
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
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/tailscale/hujson"
)

// Member is one decoded field of a record: a name and a scalar value.
// Kind and Value follow the same typing rules as Field.
type Member struct {
	Name  string
	Kind  Kind
	Value any
}

// RecordReader reads one JSON object per line from an input stream and
// decodes it into members in document order. Input may be JWCC ("human
// JSON": comments and trailing commas are tolerated); blank lines are
// skipped. Members whose value is a nested object or array are dropped
// the way the original pipeline drops unknown types; Skipped() counts
// them.
type RecordReader struct {
	sc      *bufio.Scanner
	line    int
	skipped int
}

// lines longer than this are an input error
const _MaxLineSize = 1 << 20

// NewRecordReader wraps 'r' for record-at-a-time reading.
func NewRecordReader(r io.Reader) *RecordReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), _MaxLineSize)
	return &RecordReader{sc: sc}
}

// Next returns the members of the next record in document order, or
// io.EOF once the input is exhausted. Decode errors carry the 1-based
// line number.
func (rr *RecordReader) Next() ([]Member, error) {
	for rr.sc.Scan() {
		rr.line++
		line := bytes.TrimSpace(rr.sc.Bytes())
		if len(line) == 0 {
			continue
		}

		m, err := rr.decodeRecord(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", rr.line, err)
		}
		return m, nil
	}

	if err := rr.sc.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w", rr.line+1, err)
	}
	return nil, io.EOF
}

// Line returns the line number of the most recently read record.
func (rr *RecordReader) Line() int {
	return rr.line
}

// Skipped returns the running count of members dropped because their
// value was a nested object or array.
func (rr *RecordReader) Skipped() int {
	return rr.skipped
}

func (rr *RecordReader) decodeRecord(line []byte) ([]Member, error) {
	std, err := hujson.Standardize(line)
	if err != nil {
		return nil, fmt.Errorf("invalid JWCC: %w", err)
	}

	// token-walk instead of unmarshaling into a map: map iteration
	// would destroy the document order the tag assignment depends on.
	dec := json.NewDecoder(bytes.NewReader(std))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("record is not a JSON object")
	}

	var members []Member
	for dec.More() {
		ktok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		name := ktok.(string)

		vtok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}

		switch v := vtok.(type) {
		case json.Delim:
			// nested object or array
			if err := skipCompound(dec); err != nil {
				return nil, fmt.Errorf("invalid JSON: %w", err)
			}
			rr.skipped++

		case nil:
			members = append(members, Member{Name: name, Kind: KindNull})

		case bool:
			members = append(members, Member{Name: name, Kind: KindBool, Value: v})

		case string:
			members = append(members, Member{Name: name, Kind: KindString, Value: v})

		case json.Number:
			if iv, err := v.Int64(); err == nil {
				members = append(members, Member{Name: name, Kind: KindInt, Value: iv})
				break
			}
			fv, err := v.Float64()
			if err != nil {
				return nil, fmt.Errorf("bad number %q", v.String())
			}
			members = append(members, Member{Name: name, Kind: KindFloat, Value: fv})
		}
	}

	// consume the closing '}'
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return members, nil
}

// skipCompound consumes the rest of a compound value whose opening
// delimiter has already been read.
func skipCompound(dec *json.Decoder) error {
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}
