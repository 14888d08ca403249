package source

import (
	"fmt"
	"io"
	"os"

	"github.com/vdkogg/oggseek/format/ogg"
)

// File serves a local file, all of which counts as cached.
type File struct {
	f    *os.File
	size int64
	pos  int64
}

func Open(name string) (*File, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &File{f: f, size: fi.Size()}, nil
}

func (s *File) Read(p []byte) (int, error) {
	n, err := s.f.ReadAt(p, s.pos)
	s.pos += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

func (s *File) Seek(off int64) error {
	if off < 0 || off > s.size {
		return fmt.Errorf("%w: %d", ErrOutOfRange, off)
	}
	s.pos = off
	return nil
}

func (s *File) Tell() int64 {
	return s.pos
}

func (s *File) Length() int64 {
	return s.size
}

func (s *File) Seekable() bool {
	return true
}

func (s *File) CachedRanges() []ogg.ByteRange {
	return []ogg.ByteRange{{Start: 0, End: s.size}}
}

func (s *File) ReadFromCache(p []byte, off int64) error {
	if off < 0 || off+int64(len(p)) > s.size {
		return ErrNotCached
	}
	_, err := s.f.ReadAt(p, off)
	return err
}

func (s *File) Close() error {
	return s.f.Close()
}
