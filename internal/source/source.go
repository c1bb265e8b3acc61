// Package source provides line readers over access-log files, stdin, and
// S3-compatible object storage. Gzip-compressed inputs are decompressed
// transparently.
package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Stdin is the location that reads from standard input.
const Stdin = "-"

// ErrInvalidLocation is returned for locations that cannot be resolved.
var ErrInvalidLocation = errors.New("invalid source location")

// Options configures how remote sources are reached.
type Options struct {
	S3 S3Config
}

// Reader yields lines one at a time, like bufio.Scanner but without a
// maximum line length. Line terminators (\n or \r\n) are stripped.
type Reader struct {
	br      *bufio.Reader
	closers []io.Closer
	line    string
	err     error
	done    bool
}

// FromReader wraps r. Closing the returned Reader closes r if it is an io.Closer.
func FromReader(r io.Reader) *Reader {
	rd := &Reader{br: bufio.NewReaderSize(r, 64*1024)}
	if c, ok := r.(io.Closer); ok {
		rd.closers = append(rd.closers, c)
	}
	return rd
}

// FromLines returns a Reader over the given lines.
func FromLines(lines []string) *Reader {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return FromReader(strings.NewReader(b.String()))
}

// Open resolves location to a Reader:
//   - "-" reads standard input
//   - "s3://bucket/key" reads an object from S3 (or an S3-compatible store)
//   - anything else is a local file path
//
// Paths and keys ending in ".gz" are gunzipped, as are objects stored with
// Content-Encoding: gzip.
func Open(ctx context.Context, location string, opts Options) (*Reader, error) {
	switch {
	case location == "":
		return nil, fmt.Errorf("%w: empty location", ErrInvalidLocation)
	case location == Stdin:
		return FromReader(io.NopCloser(os.Stdin)), nil
	case strings.HasPrefix(location, "s3://"):
		bucket, key, err := ParseS3URI(location)
		if err != nil {
			return nil, err
		}
		client, err := newS3Client(ctx, opts.S3)
		if err != nil {
			return nil, err
		}
		return openObject(ctx, client, bucket, key)
	default:
		f, err := os.Open(location)
		if err != nil {
			return nil, fmt.Errorf("open source: %w", err)
		}
		return wrap(f, strings.HasSuffix(location, ".gz"))
	}
}

// wrap builds a Reader over rc, gunzipping it when compressed is set.
func wrap(rc io.ReadCloser, compressed bool) (*Reader, error) {
	if !compressed {
		return FromReader(rc), nil
	}
	gr, err := gzip.NewReader(rc)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	rd := FromReader(gr)
	rd.closers = append(rd.closers, rc)
	return rd, nil
}

// Scan advances to the next line. It returns false at end of input or on a
// read error; Err distinguishes the two.
func (r *Reader) Scan() bool {
	if r.done {
		return false
	}
	s, err := r.br.ReadString('\n')
	if err != nil {
		r.done = true
		if !errors.Is(err, io.EOF) {
			r.err = err
			return false
		}
		if s == "" {
			return false
		}
	}
	r.line = strings.TrimSuffix(strings.TrimSuffix(s, "\n"), "\r")
	return true
}

// Text returns the line read by the last successful Scan.
func (r *Reader) Text() string {
	return r.line
}

// Err returns the first non-EOF read error.
func (r *Reader) Err() error {
	return r.err
}

// Close releases the underlying readers.
func (r *Reader) Close() error {
	var errs []error
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// Lazy defers opening a location until the first Scan, so a load that
// never reads its source never needs it to exist. Open failures are
// reported through Err.
type Lazy struct {
	open   func() (*Reader, error)
	r      *Reader
	err    error
	opened bool
}

// OpenLazy returns a Lazy reader for location.
func OpenLazy(ctx context.Context, location string, opts Options) *Lazy {
	return &Lazy{open: func() (*Reader, error) { return Open(ctx, location, opts) }}
}

func (l *Lazy) Scan() bool {
	if !l.opened {
		l.opened = true
		l.r, l.err = l.open()
	}
	if l.err != nil {
		return false
	}
	return l.r.Scan()
}

func (l *Lazy) Text() string {
	if l.r == nil {
		return ""
	}
	return l.r.Text()
}

func (l *Lazy) Err() error {
	if l.err != nil {
		return l.err
	}
	if l.r == nil {
		return nil
	}
	return l.r.Err()
}

// Opened reports whether the location was ever opened successfully.
func (l *Lazy) Opened() bool {
	return l.r != nil
}

func (l *Lazy) Close() error {
	if l.r == nil {
		return nil
	}
	return l.r.Close()
}
