// iter.go - external iterator over a Table
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

// Iterator walks the occupied slots of a Table in physical slot order.
// The order is deterministic for a given table state but otherwise
// unspecified; growth reorders entries. Callers must not Set() into the
// table while iterating over it - growth swaps out the slot array under
// the cursor. Restart by making a fresh iterator.
type Iterator struct {
	t   *Table
	idx int

	key string
	val any
}

// Iter returns a new iterator positioned before the first slot.
func (t *Table) Iter() *Iterator {
	return &Iterator{t: t}
}

// Next advances to the next occupied slot and returns true, or false
// once the table is exhausted. After exhaustion the iterator stays
// inert: further calls keep returning false.
func (it *Iterator) Next() bool {
	slots := it.t.slots
	for it.idx < len(slots) {
		i := it.idx
		it.idx++
		if slots[i].used {
			it.key = slots[i].key
			it.val = slots[i].val
			return true
		}
	}

	it.key = ""
	it.val = nil
	return false
}

// Key returns the key of the current item; valid only after a Next()
// that returned true.
func (it *Iterator) Key() string {
	return it.key
}

// Value returns the value of the current item; valid only after a
// Next() that returned true.
func (it *Iterator) Value() any {
	return it.val
}
