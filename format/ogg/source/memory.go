// Package source provides ByteSource implementations over memory and
// files.
package source

import (
	"errors"
	"io"
	"sync"

	"github.com/vdkogg/oggseek/format/ogg"
)

var (
	ErrNotCached  = errors.New("source: range not cached")
	ErrOutOfRange = errors.New("source: offset out of range")
)

// Memory serves a byte slice. All of it is cached unless SetCached says
// otherwise, which lets tests model partially downloaded resources.
type Memory struct {
	mu         sync.Mutex
	data       []byte
	pos        int64
	cached     []ogg.ByteRange
	live       bool
	unseekable bool
}

func NewMemory(b []byte) *Memory {
	return &Memory{data: b, cached: []ogg.ByteRange{{Start: 0, End: int64(len(b))}}}
}

// SetCached replaces the cached ranges.
func (m *Memory) SetCached(ranges ...ogg.ByteRange) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cached = append([]ogg.ByteRange(nil), ranges...)
}

// SetLive hides the length of the resource.
func (m *Memory) SetLive(live bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live = live
}

func (m *Memory) SetSeekable(seekable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unseekable = !seekable
}

func (m *Memory) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pos >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[m.pos:])
	m.pos += int64(n)
	return n, nil
}

func (m *Memory) Seek(off int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off < 0 || off > int64(len(m.data)) {
		return ErrOutOfRange
	}
	m.pos = off
	return nil
}

func (m *Memory) Tell() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pos
}

func (m *Memory) Length() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live {
		return -1
	}
	return int64(len(m.data))
}

func (m *Memory) Seekable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.unseekable
}

func (m *Memory) CachedRanges() []ogg.ByteRange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ogg.ByteRange(nil), m.cached...)
}

func (m *Memory) ReadFromCache(p []byte, off int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	end := off + int64(len(p))
	for _, r := range m.cached {
		if off >= r.Start && end <= r.End && end <= int64(len(m.data)) {
			copy(p, m.data[off:end])
			return nil
		}
	}
	return ErrNotCached
}
