// errwriter.go - io.Writer that latches the first error
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
)

// errWriter wraps an io.Writer; after the first failed or short write
// every subsequent Write is a no-op returning the latched error. Lets
// multi-part marshaling code skip per-write error checks.
type errWriter struct {
	w   io.Writer
	n   int
	err error
}

func newErrWriter(w io.Writer) *errWriter {
	return &errWriter{
		w: w,
	}
}

func (e *errWriter) Write(b []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}

	n, err := e.w.Write(b)
	e.n += n
	if err != nil {
		e.err = err
		return n, err
	}
	if n != len(b) {
		e.err = errShortWrite("pack", n, len(b))
		return n, e.err
	}

	return n, nil
}

// Count returns the total bytes successfully written.
func (e *errWriter) Count() int {
	return e.n
}

func (e *errWriter) Error() error {
	return e.err
}
