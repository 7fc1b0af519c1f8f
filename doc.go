// doc.go - top level documentation
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

// Package keytab implements a compact open-addressing hash table for
// string keys (Table) and a small pipeline built on top of it that
// turns line-oriented JSON records into a tagged TLV pack file.
//
// Table resolves collisions with linear probing over a power-of-2
// slot array kept at or below 50% load; keys are hashed with 64-bit
// FNV-1a (or siphash-2-4 under a random per-table key, see
// NewSeeded). Keys are interned: the table owns a durable copy of
// every key it has seen. There is no deletion.
//
// TagSet uses a Table as a per-run registry that maps every distinct
// field name to a stable, monotonically increasing uint32 tag.
//
// PackWriter and PackReader move records in and out of a single-file
// pack: each record is a TLV-encoded Box protected by a siphash
// checksum, optionally snappy-compressed, with a mmap-able table
// region holding record offsets and the tag dictionary, all under a
// SHA512-256 strong checksum. RecordReader feeds the writer from
// JSON-lines input.
package keytab
