// tlv.go - tag-length-value record codec
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
	"math"
)

// Kind identifies the type of a field payload.
type Kind byte

// Supported field kinds
const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
)

func (k Kind) isValid() bool {
	return k <= KindBytes
}

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	}
	return fmt.Sprintf("kind(%d)", byte(k))
}

// each field is encoded as a fixed 9 byte header followed by the
// payload: u32 tag, u8 kind, u32 payload-length; multibyte ints are
// big-endian like the pack file header.
const _FieldHdrSize = 4 + 1 + 4

// Field is one (tag, typed value) element of a record. Value holds
// bool, int64, float64, string or []byte according to Kind, and nil
// for KindNull.
type Field struct {
	Tag   uint32
	Kind  Kind
	Value any
}

// Box is an ordered collection of fields making up one record. Fields
// are encoded in the order they were put; putting the same tag twice
// encodes it twice.
type Box struct {
	fields []Field
}

// NewBox returns an empty record.
func NewBox() *Box {
	return &Box{}
}

// Len returns the number of fields in the box.
func (b *Box) Len() int {
	return len(b.fields)
}

// Fields returns the fields in put-order. The slice is owned by the
// box; callers must not mutate it.
func (b *Box) Fields() []Field {
	return b.fields
}

// PutNull adds a field with no payload.
func (b *Box) PutNull(tag uint32) {
	b.fields = append(b.fields, Field{Tag: tag, Kind: KindNull})
}

// PutBool adds a boolean field.
func (b *Box) PutBool(tag uint32, v bool) {
	b.fields = append(b.fields, Field{Tag: tag, Kind: KindBool, Value: v})
}

// PutInt adds a signed integer field.
func (b *Box) PutInt(tag uint32, v int64) {
	b.fields = append(b.fields, Field{Tag: tag, Kind: KindInt, Value: v})
}

// PutFloat adds a float field.
func (b *Box) PutFloat(tag uint32, v float64) {
	b.fields = append(b.fields, Field{Tag: tag, Kind: KindFloat, Value: v})
}

// PutString adds a string field. Returns ErrValueTooLarge if the
// string doesn't fit in a 32-bit length.
func (b *Box) PutString(tag uint32, v string) error {
	if uint64(len(v)) > math.MaxUint32 {
		return ErrValueTooLarge
	}
	b.fields = append(b.fields, Field{Tag: tag, Kind: KindString, Value: v})
	return nil
}

// PutBytes adds a raw byte field; the box borrows 'v' until the box is
// marshaled. Returns ErrValueTooLarge if the slice doesn't fit in a
// 32-bit length.
func (b *Box) PutBytes(tag uint32, v []byte) error {
	if uint64(len(v)) > math.MaxUint32 {
		return ErrValueTooLarge
	}
	b.fields = append(b.fields, Field{Tag: tag, Kind: KindBytes, Value: v})
	return nil
}

// Size returns the exact encoded size of the box in bytes.
func (b *Box) Size() int {
	n := 0
	for i := range b.fields {
		n += _FieldHdrSize + payloadLen(&b.fields[i])
	}
	return n
}

func payloadLen(f *Field) int {
	switch f.Kind {
	case KindNull:
		return 0
	case KindBool:
		return 1
	case KindInt, KindFloat:
		return 8
	case KindString:
		return len(f.Value.(string))
	case KindBytes:
		return len(f.Value.([]byte))
	}
	return 0
}

// MarshalBinary encodes the box into a fresh byte slice.
func (b *Box) MarshalBinary() []byte {
	buf := make([]byte, b.Size())

	be := binary.BigEndian
	i := 0
	for j := range b.fields {
		f := &b.fields[j]
		vlen := payloadLen(f)

		be.PutUint32(buf[i:i+4], f.Tag)
		buf[i+4] = byte(f.Kind)
		be.PutUint32(buf[i+5:i+9], uint32(vlen))
		i += _FieldHdrSize

		switch f.Kind {
		case KindBool:
			if f.Value.(bool) {
				buf[i] = 1
			}
		case KindInt:
			be.PutUint64(buf[i:i+8], uint64(f.Value.(int64)))
		case KindFloat:
			be.PutUint64(buf[i:i+8], math.Float64bits(f.Value.(float64)))
		case KindString:
			copy(buf[i:], f.Value.(string))
		case KindBytes:
			copy(buf[i:], f.Value.([]byte))
		}
		i += vlen
	}
	return buf
}

// MarshalTo encodes the box into 'w' and returns the number of bytes
// written.
func (b *Box) MarshalTo(w io.Writer) (int, error) {
	ew := newErrWriter(w)
	buf := b.MarshalBinary()
	n, _ := ew.Write(buf)
	return n, ew.Error()
}

// ParseBox decodes an encoded box from 'b'. The input must contain
// exactly one encoded box; trailing garbage is an error. String and
// byte payloads are copied out of 'b'.
func ParseBox(b []byte) (*Box, error) {
	box := &Box{}
	be := binary.BigEndian

	for off := 0; off < len(b); {
		if len(b)-off < _FieldHdrSize {
			return nil, fmt.Errorf("tlv: truncated field header at offset %d", off)
		}

		tag := be.Uint32(b[off : off+4])
		kind := Kind(b[off+4])
		vlen := int(be.Uint32(b[off+5 : off+9]))
		off += _FieldHdrSize

		if !kind.isValid() {
			return nil, fmt.Errorf("tlv: bad field kind %d at offset %d", byte(kind), off-_FieldHdrSize)
		}
		if len(b)-off < vlen {
			return nil, fmt.Errorf("tlv: truncated payload for tag %d; want %d bytes, have %d", tag, vlen, len(b)-off)
		}

		v := b[off : off+vlen]
		switch kind {
		case KindNull:
			if vlen != 0 {
				return nil, fmt.Errorf("tlv: null field tag %d with %d byte payload", tag, vlen)
			}
			box.PutNull(tag)

		case KindBool:
			if vlen != 1 {
				return nil, fmt.Errorf("tlv: bool field tag %d with %d byte payload", tag, vlen)
			}
			box.PutBool(tag, v[0] != 0)

		case KindInt:
			if vlen != 8 {
				return nil, fmt.Errorf("tlv: int field tag %d with %d byte payload", tag, vlen)
			}
			box.PutInt(tag, int64(be.Uint64(v)))

		case KindFloat:
			if vlen != 8 {
				return nil, fmt.Errorf("tlv: float field tag %d with %d byte payload", tag, vlen)
			}
			box.PutFloat(tag, math.Float64frombits(be.Uint64(v)))

		case KindString:
			box.PutString(tag, string(v))

		case KindBytes:
			vc := make([]byte, vlen)
			copy(vc, v)
			box.PutBytes(tag, vc)
		}
		off += vlen
	}

	return box, nil
}
