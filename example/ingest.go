// ingest.go -- feed JSON-lines inputs into a PackWriter
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

package main

import (
	"io"
	"os"

	"github.com/opencoff/go-keytab"
)

// addFile adds records from the JSON-lines file 'fn'. This function
// just opens the file and calls addStream(). Returns number of records
// added.
func addFile(w *keytab.PackWriter, fn string) (uint64, error) {
	fd, err := os.Open(fn)
	if err != nil {
		return 0, err
	}

	defer fd.Close()

	return addStream(w, fd)
}

// addStream adds one record per line from 'r'. Members with nested
// values are dropped by the reader; a count of dropped members is
// reported on stderr at the end.
func addStream(w *keytab.PackWriter, r io.Reader) (uint64, error) {
	rr := keytab.NewRecordReader(r)

	var n uint64
	for {
		members, err := rr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return n, err
		}

		if err := w.AddObject(members); err != nil {
			return n, err
		}
		n++
	}

	if sk := rr.Skipped(); sk > 0 {
		warn("dropped %d nested (non-scalar) members", sk)
	}
	return n, nil
}
