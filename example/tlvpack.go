// tlvpack.go -- convert JSON-lines records into a TLV pack
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

// tlvpack.go is an example of using keytab:PackWriter() and PackReader.
// Each input line is one JSON object; every distinct field name gets a
// small integer tag via the writer's TagSet and each record is stored
// as tag/typed-value pairs in a single checksummed pack file.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/opencoff/go-keytab"

	flag "github.com/opencoff/pflag"
)

func main() {
	var cache int
	var verify, dump, all, plain, seeded bool

	usage := fmt.Sprintf(
		`%s - pack JSON-lines records into a tagged TLV file

Usage: %s [options] OUTPUT [INPUT ...]
       %s -d|-V [options] FILENAME

The first form reads one JSON object per line from each INPUT (or from
STDIN if no INPUT is given) and writes the records to the pack OUTPUT.
Input may contain comments and trailing commas (JWCC); members whose
value is a nested object or array are dropped.

The second form dumps a pack's metadata or verifies its integrity.

Options:
`, os.Args[0], os.Args[0], os.Args[0])

	flag.IntVarP(&cache, "cache", "n", 128, "Cache upto `N` decoded records")
	flag.BoolVarP(&verify, "verify", "V", false, "Verify a pack file")
	flag.BoolVarP(&dump, "dump-meta", "d", false, "Dump pack meta-data")
	flag.BoolVarP(&all, "all", "a", false, "Dump records too (with -d)")
	flag.BoolVarP(&plain, "plain", "p", false, "Don't snappy-compress record payloads")
	flag.BoolVarP(&seeded, "seeded", "s", false, "Use a random per-run hash seed for the tag table")
	flag.Usage = func() {
		fmt.Printf("%s", usage)
		flag.PrintDefaults()
	}

	flag.Parse()
	args := flag.Args()

	if verify || dump {
		if len(args) < 1 {
			die("No file name to read!\nUsage: %s\n", usage)
		}

		fn := args[0]
		rd, err := keytab.NewPackReader(fn, cache)
		if err != nil {
			die("Can't read %s: %s", fn, err)
		}

		if verify {
			if err := fsck(rd); err != nil {
				die("%s: %s", fn, err)
			}
			fmt.Printf("%s: OK; %d records, %d tags\n", fn, rd.Len(), rd.NumTags())
		} else {
			rd.DumpMeta(os.Stdout)
			if all {
				dumpRecords(rd)
			}
		}

		rd.Close()
		return
	}

	if len(args) < 1 {
		die("No output file name!\nUsage: %s\n", usage)
	}

	fn := args[0]
	args = args[1:]

	opt := &keytab.PackOptions{Seeded: seeded}
	if plain {
		opt.Compression = keytab.NoCompression
	}

	w, err := keytab.NewPackWriter(fn, opt)
	if err != nil {
		die("can't create pack %s: %s", fn, err)
	}

	var tot uint64
	if len(args) > 0 {
		for _, f := range args {
			n, err := addFile(w, f)
			if err != nil {
				warn("can't add %s: %s", f, err)
				continue
			}

			fmt.Printf("+ %s: %d records\n", f, n)
			tot += n
		}
	} else {
		n, err := addStream(w, os.Stdin)
		if err != nil {
			w.Abort()
			die("can't add STDIN: %s", err)
		}

		fmt.Printf("+ <STDIN>: %d records\n", n)
		tot += n
	}

	start := time.Now()
	err = w.Freeze()
	if err != nil {
		w.Abort()
		die("can't write pack %s: %s", fn, err)
	}
	delta := time.Now().Sub(start)
	fmt.Printf("%d records, %d tags, froze in %s\n", tot, w.Tags().Len(), delta)
}

// walk every record and print it with resolved field names
func dumpRecords(rd *keytab.PackReader) {
	rd.IterFunc(func(i uint64, fields []keytab.Field) error {
		fmt.Printf("record %d:\n", i)
		for _, f := range fields {
			nm, ok := rd.TagName(f.Tag)
			if !ok {
				nm = fmt.Sprintf("tag-%d", f.Tag)
			}
			fmt.Printf("  %s <%s>: %v\n", nm, f.Kind, f.Value)
		}
		return nil
	})
}

// fsck reads every record; that verifies each per-record checksum (the
// header, offset table and dictionary were already verified against
// the strong checksum when the pack was opened).
func fsck(rd *keytab.PackReader) error {
	return rd.IterFunc(func(_ uint64, _ []keytab.Field) error {
		return nil
	})
}

// die with error
func die(f string, v ...interface{}) {
	warn(f, v...)
	os.Exit(1)
}

func warn(f string, v ...interface{}) {
	z := fmt.Sprintf("%s: %s", os.Args[0], f)
	s := fmt.Sprintf(z, v...)
	if n := len(s); s[n-1] != '\n' {
		s += "\n"
	}

	os.Stderr.WriteString(s)
	os.Stderr.Sync()
}

// vim: ft=go:sw=4:ts=4:noexpandtab:tw=78:
