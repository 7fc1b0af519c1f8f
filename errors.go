// errors.go - public errors exposed by keytab
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
	"errors"
	"fmt"
)

func errShortWrite(who string, n, exp int) error {
	return fmt.Errorf("%s: incomplete write; exp %d, saw %d", who, exp, n)
}

var (
	// ErrNilValue is returned by Set() when the caller passes a nil
	// value. This is a caller bug, not a runtime condition: nil is
	// the table's not-found sentinel and can never be stored.
	ErrNilValue = errors.New("nil value")

	// ErrTableFull is returned by Set() when doubling the slot array
	// would overflow the representable capacity. No further inserts
	// can succeed on such a table.
	ErrTableFull = errors.New("table capacity overflow")

	// ErrTagRange is returned by TagSet.Tag when the 32-bit tag
	// space is exhausted.
	ErrTagRange = errors.New("tag space exhausted")

	// ErrValueTooLarge is returned if a field payload is larger than
	// 2^32-1 bytes.
	ErrValueTooLarge = errors.New("value is larger than 2^32-1 bytes")

	// ErrFrozen is returned when adding records to an already frozen
	// pack. It is also returned when trying to freeze a pack that's
	// already frozen.
	ErrFrozen = errors.New("pack already frozen")

	// ErrNoRecord is returned when a record index is out of range.
	ErrNoRecord = errors.New("no such record")
)
