// keytab.go - open addressing hash table for string keys
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
	"strings"

	"github.com/dchest/siphash"
)

// FNV-1a 64-bit constants
const (
	_FnvOffset uint64 = 14695981039346656037
	_FnvPrime  uint64 = 1099511628211
)

// initial capacity of a new table; must be a non-zero power of 2
const _InitialCapacity = 1

// slot is one cell of the table; 'used' distinguishes an occupied
// slot from an empty one (the empty string is a valid key).
type slot struct {
	key  string
	val  any
	used bool
}

// Table maps string keys to caller supplied values using open
// addressing with linear probing. The capacity is always a power of 2
// and the load factor never exceeds 50%: Set() doubles the slot array
// before inserting once half the slots are occupied. Keys are interned:
// the table keeps its own copy of every key and Set() returns that copy.
// Deletion is not supported, which is what makes an empty slot a proof
// of absence during probing.
//
// A Table is not safe for concurrent use; callers owning multiple
// goroutines must serialize access themselves. There is no explicit
// teardown - dropping the last reference releases the slot array and
// the interned keys.
type Table struct {
	slots []slot
	count int

	// siphash key; used only when seeded is true, otherwise keys
	// are hashed with unkeyed FNV-1a.
	k0, k1 uint64
	seeded bool
}

// New creates an empty table that hashes keys with 64-bit FNV-1a.
// The hash is deterministic and unkeyed; use NewSeeded() if the keys
// come from an untrusted source.
func New() *Table {
	return &Table{
		slots: make([]slot, _InitialCapacity),
	}
}

// NewSeeded creates an empty table that hashes keys with siphash-2-4
// under a random per-table key. Two seeded tables will almost surely
// probe in different orders for the same keys; everything else behaves
// exactly like a table from New().
func NewSeeded() *Table {
	return &Table{
		slots:  make([]slot, _InitialCapacity),
		k0:     rand64(),
		k1:     rand64(),
		seeded: true,
	}
}

// hash the raw bytes of 'key'
func (t *Table) hash(key string) uint64 {
	if t.seeded {
		return siphash.Hash(t.k0, t.k1, []byte(key))
	}

	h := _FnvOffset
	for i := 0; i < len(key); i++ {
		h ^= uint64(key[i])
		h *= _FnvPrime
	}
	return h
}

// Get returns the value stored for 'key' and true, or nil and false if
// the key is absent. Get never modifies the table.
func (t *Table) Get(key string) (any, bool) {
	mask := uint64(len(t.slots) - 1)

	// capacity is a power of 2; mask instead of mod
	i := t.hash(key) & mask
	for t.slots[i].used {
		if t.slots[i].key == key {
			return t.slots[i].val, true
		}
		i = (i + 1) & mask
	}
	return nil, false
}

// Set stores 'value' under 'key', overwriting any previous value, and
// returns the table's interned copy of the key. The interned copy is
// stable for the life of the table: overwrites reuse it and growth
// moves it without re-allocating. A nil value is a caller bug and is
// rejected with ErrNilValue; ErrTableFull is returned if doubling the
// capacity would overflow.
func (t *Table) Set(key string, value any) (string, error) {
	if value == nil {
		return "", ErrNilValue
	}

	// keep the load factor at or below 50% _before_ probing; a
	// failed grow leaves the table untouched.
	if t.count >= len(t.slots)/2 {
		if err := t.grow(); err != nil {
			return "", err
		}
	}

	mask := uint64(len(t.slots) - 1)
	i := t.hash(key) & mask
	for t.slots[i].used {
		if t.slots[i].key == key {
			t.slots[i].val = value
			return t.slots[i].key, nil
		}
		i = (i + 1) & mask
	}

	// first time we see this key; intern a copy so we don't pin
	// whatever buffer the caller carved it from.
	k := strings.Clone(key)
	t.slots[i] = slot{key: k, val: value, used: true}
	t.count++
	return k, nil
}

// Len returns the number of keys in the table.
func (t *Table) Len() int {
	return t.count
}

// grow doubles the slot array and re-probes every occupied slot into
// it. Slots are moved, not copied: the interned key strings are
// carried over as-is. On error the table is unchanged.
func (t *Table) grow() error {
	old := t.slots
	n := len(old) * 2
	if n <= len(old) {
		return ErrTableFull
	}

	slots := make([]slot, n)
	mask := uint64(n - 1)
	for _, s := range old {
		if !s.used {
			continue
		}

		// the new array is half empty, so this always terminates
		i := t.hash(s.key) & mask
		for slots[i].used {
			i = (i + 1) & mask
		}
		slots[i] = s
	}

	t.slots = slots
	return nil
}
