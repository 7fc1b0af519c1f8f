// tags.go - monotone tag registry built on Table
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
	"math"
)

// TagSet assigns a stable, monotonically increasing uint32 tag to every
// distinct name it is asked about. Tags start at 1 and never change or
// repeat within one TagSet; feeding the same names in the same order to
// a fresh TagSet reproduces the same tags. It is the per-run field-name
// registry used by PackWriter, exported because it is useful on its own.
//
// Like the underlying Table, a TagSet is not safe for concurrent use.
type TagSet struct {
	tab  *Table
	next uint32
}

// NewTagSet creates an empty tag registry.
func NewTagSet() *TagSet {
	return &TagSet{
		tab:  New(),
		next: 1,
	}
}

// NewSeededTagSet creates an empty tag registry backed by a table with
// a random per-instance hash seed.
func NewSeededTagSet() *TagSet {
	return &TagSet{
		tab:  NewSeeded(),
		next: 1,
	}
}

// Tag returns the tag for 'name', assigning the next fresh tag if the
// name has not been seen before.
func (ts *TagSet) Tag(name string) (uint32, error) {
	if v, ok := ts.tab.Get(name); ok {
		return v.(uint32), nil
	}

	if ts.next == math.MaxUint32 {
		return 0, ErrTagRange
	}

	tag := ts.next
	if _, err := ts.tab.Set(name, tag); err != nil {
		return 0, err
	}
	ts.next++
	return tag, nil
}

// Lookup returns the tag for 'name' and true if the name has been seen,
// without assigning anything on a miss.
func (ts *TagSet) Lookup(name string) (uint32, bool) {
	v, ok := ts.tab.Get(name)
	if !ok {
		return 0, false
	}
	return v.(uint32), true
}

// Len returns the number of names in the registry.
func (ts *TagSet) Len() int {
	return ts.tab.Len()
}

// Names returns the registered names indexed by tag-1.
func (ts *TagSet) Names() []string {
	names := make([]string, ts.tab.Len())

	it := ts.tab.Iter()
	for it.Next() {
		tag := it.Value().(uint32)
		names[tag-1] = it.Key()
	}
	return names
}
