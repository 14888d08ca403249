package ogg

import (
	"fmt"
	"io"
)

// ByteRange is a half open range [Start, End) of source bytes.
type ByteRange struct {
	Start int64
	End   int64
}

// ByteSource is the media resource the demuxer reads from. Read, Seek and
// Tell move a single live cursor; ReadFromCache only touches data that is
// already downloaded and never blocks on the network.
type ByteSource interface {
	io.Reader
	Seek(off int64) error
	Tell() int64
	// Length returns the total size or -1 when unknown.
	Length() int64
	Seekable() bool
	CachedRanges() []ByteRange
	// ReadFromCache fills p from offset off, failing when any byte of it is
	// not cached.
	ReadFromCache(p []byte, off int64) error
}

// liveReader adapts the live cursor of a ByteSource to io.ReaderAt.
type liveReader struct {
	src ByteSource
}

func (r liveReader) ReadAt(p []byte, off int64) (int, error) {
	if r.src.Tell() != off {
		if err := r.src.Seek(off); err != nil {
			return 0, fmt.Errorf("ogg: seek to %d: %w", off, err)
		}
	}
	n := 0
	for n < len(p) {
		k, err := r.src.Read(p[n:])
		n += k
		if err != nil {
			return n, err
		}
		if k == 0 {
			return n, io.EOF
		}
	}
	return n, nil
}

// cacheReader reads cached data only. It stops at the end of the cached
// range holding the offset, reported as io.EOF.
type cacheReader struct {
	src ByteSource
	rng ByteRange
}

func (r cacheReader) ReadAt(p []byte, off int64) (int, error) {
	if off < r.rng.Start || off >= r.rng.End {
		return 0, io.EOF
	}
	n := len(p)
	var eof error
	if rem := r.rng.End - off; int64(n) > rem {
		n = int(rem)
		eof = io.EOF
	}
	if err := r.src.ReadFromCache(p[:n], off); err != nil {
		return 0, fmt.Errorf("ogg: cache read at %d: %w", off, err)
	}
	return n, eof
}
