package oggio

import (
	"encoding/binary"
	"errors"
)

const (
	FlagContinued = 0x01
	FlagBOS       = 0x02
	FlagEOS       = 0x04

	HeaderSize     = 27
	MaxSegmentSize = 255
	MaxPageSize    = HeaderSize + MaxSegmentSize + MaxSegmentSize*MaxSegmentSize

	capturePattern = "OggS"
)

var (
	ErrShortPage   = errors.New("oggio: short page")
	ErrBadSync     = errors.New("oggio: missing capture pattern")
	ErrBadVersion  = errors.New("oggio: unsupported stream structure version")
	ErrBadChecksum = errors.New("oggio: checksum mismatch")
)

// Page is one Ogg page. Granule is -1 when no packet ends on the page.
type Page struct {
	Version  byte
	Flags    byte
	Granule  int64
	Serial   uint32
	Sequence uint32
	Checksum uint32
	Segments []byte
	Body     []byte
	// Offset is the absolute position of the page in its byte source.
	Offset int64
}

func (self *Page) Continued() bool {
	return self.Flags&FlagContinued != 0
}

func (self *Page) BOS() bool {
	return self.Flags&FlagBOS != 0
}

func (self *Page) EOS() bool {
	return self.Flags&FlagEOS != 0
}

func (self *Page) Len() int {
	return HeaderSize + len(self.Segments) + len(self.Body)
}

// End returns the offset just past the page.
func (self *Page) End() int64 {
	return self.Offset + int64(self.Len())
}

// Packets returns the number of packets completed on the page.
func (self *Page) Packets() int {
	n := 0
	for _, s := range self.Segments {
		if s < MaxSegmentSize {
			n++
		}
	}
	return n
}

// pageLen returns the full length of the page whose header starts b, or
// ErrShortPage when b does not yet hold the segment table.
func pageLen(b []byte) (int, error) {
	if len(b) < HeaderSize {
		return 0, ErrShortPage
	}
	n := int(b[26])
	if len(b) < HeaderSize+n {
		return 0, ErrShortPage
	}
	size := HeaderSize + n
	for _, s := range b[HeaderSize : HeaderSize+n] {
		size += int(s)
	}
	return size, nil
}

// Parse decodes the page at the start of b and verifies its checksum. It
// returns the number of bytes the page occupies.
func Parse(b []byte) (*Page, int, error) {
	if len(b) < 4 {
		return nil, 0, ErrShortPage
	}
	if string(b[:4]) != capturePattern {
		return nil, 0, ErrBadSync
	}
	if len(b) > 4 && b[4] != 0 {
		return nil, 0, ErrBadVersion
	}
	size, err := pageLen(b)
	if err != nil {
		return nil, 0, err
	}
	if len(b) < size {
		return nil, 0, ErrShortPage
	}
	le := binary.LittleEndian
	stored := le.Uint32(b[22:26])
	if Checksum(b[:size]) != stored {
		return nil, 0, ErrBadChecksum
	}
	nseg := int(b[26])
	p := &Page{
		Version:  b[4],
		Flags:    b[5],
		Granule:  int64(le.Uint64(b[6:14])),
		Serial:   le.Uint32(b[14:18]),
		Sequence: le.Uint32(b[18:22]),
		Checksum: stored,
		Segments: append([]byte(nil), b[HeaderSize:HeaderSize+nseg]...),
		Body:     append([]byte(nil), b[HeaderSize+nseg:size]...),
	}
	return p, size, nil
}

// Encode serializes the page and fills in its checksum.
func (self *Page) Encode() []byte {
	b := make([]byte, self.Len())
	copy(b, capturePattern)
	b[4] = self.Version
	b[5] = self.Flags
	le := binary.LittleEndian
	le.PutUint64(b[6:14], uint64(self.Granule))
	le.PutUint32(b[14:18], self.Serial)
	le.PutUint32(b[18:22], self.Sequence)
	b[26] = byte(len(self.Segments))
	copy(b[HeaderSize:], self.Segments)
	copy(b[HeaderSize+len(self.Segments):], self.Body)
	self.Checksum = Checksum(b)
	le.PutUint32(b[22:26], self.Checksum)
	return b
}

// Lacing returns the segment table entries for a packet of n bytes.
func Lacing(n int) []byte {
	segs := make([]byte, 0, n/MaxSegmentSize+1)
	for ; n >= MaxSegmentSize; n -= MaxSegmentSize {
		segs = append(segs, MaxSegmentSize)
	}
	return append(segs, byte(n))
}
