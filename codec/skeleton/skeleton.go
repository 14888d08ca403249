// Package skeleton parses Ogg Skeleton streams: the fishead and fisbone
// headers and the keypoint index packets of Skeleton 4.0.
package skeleton

import (
	"encoding/binary"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/vdkogg/oggseek/av"
	"github.com/vdkogg/oggseek/codec/timescale"
)

const (
	fisheadSize   = 64
	fishead4Size  = 80
	fisboneSize   = 52
	indexHeadSize = 42
	// cap on keypoints taken from one index packet
	maxKeypoints = 1 << 20
)

var (
	ErrHeaderMagic    = errors.New("skeleton: bad packet magic")
	ErrHeaderTooShort = errors.New("skeleton: packet too short")
	ErrVersion        = errors.New("skeleton: unsupported version")
	ErrIndex          = errors.New("skeleton: malformed index")
)

func IsFishead(pkt []byte) bool {
	return len(pkt) >= 8 && string(pkt[:8]) == "fishead\x00"
}

func IsFisbone(pkt []byte) bool {
	return len(pkt) >= 8 && string(pkt[:8]) == "fisbone\x00"
}

func IsIndex(pkt []byte) bool {
	return len(pkt) >= 6 && string(pkt[:6]) == "index\x00"
}

// Keypoint maps a presentation time to the byte offset of a page from which
// decoding can start.
type Keypoint struct {
	Offset int64
	Time   time.Duration
}

// Index is the keypoint table of one logical stream.
type Index struct {
	Serial    uint32
	StartTime time.Duration
	EndTime   time.Duration
	Keypoints []Keypoint
}

// Lookup returns the last keypoint at or before t.
func (self *Index) Lookup(t time.Duration) (Keypoint, bool) {
	i := sort.Search(len(self.Keypoints), func(i int) bool {
		return self.Keypoints[i].Time > t
	})
	if i == 0 {
		return Keypoint{}, false
	}
	return self.Keypoints[i-1], true
}

// Bone describes one logical stream of the physical stream.
type Bone struct {
	Serial       uint32
	NumHeaders   uint32
	GranuleNum   uint64
	GranuleDen   uint64
	BaseGranule  int64
	Preroll      uint32
	GranuleShift uint8
	Headers      map[string]string
}

func (self *Bone) ContentType() string {
	return self.Headers["content-type"]
}

type CodecData struct {
	VersionMajor     int
	VersionMinor     int
	PresentationTime time.Duration
	BaseTime         time.Duration
	// SegmentLength and ContentOffset are only set by version 4.
	SegmentLength int64
	ContentOffset int64
	Bones         map[uint32]*Bone
	Indexes       map[uint32]*Index
}

func (d CodecData) Type() av.CodecType {
	return av.SKELETON
}

func (d *CodecData) Version() int {
	return d.VersionMajor<<16 | d.VersionMinor
}

// HasIndex reports whether the index covers every serial.
func (d *CodecData) HasIndex(serials ...uint32) bool {
	if len(d.Indexes) == 0 {
		return false
	}
	for _, s := range serials {
		if idx, ok := d.Indexes[s]; !ok || len(idx.Keypoints) == 0 {
			return false
		}
	}
	return true
}

// Duration returns the span covered by the indexes of the given serials.
func (d *CodecData) Duration(serials ...uint32) (time.Duration, bool) {
	var start, end time.Duration
	found := false
	for _, s := range serials {
		idx, ok := d.Indexes[s]
		if !ok {
			return 0, false
		}
		if !found || idx.StartTime < start {
			start = idx.StartTime
		}
		if !found || idx.EndTime > end {
			end = idx.EndTime
		}
		found = true
	}
	if !found || end < start {
		return 0, false
	}
	return end - start, true
}

func ParseFishead(pkt []byte) (*CodecData, error) {
	if !IsFishead(pkt) {
		return nil, ErrHeaderMagic
	}
	if len(pkt) < fisheadSize {
		return nil, ErrHeaderTooShort
	}
	le := binary.LittleEndian
	d := &CodecData{
		VersionMajor: int(le.Uint16(pkt[8:10])),
		VersionMinor: int(le.Uint16(pkt[10:12])),
		Bones:        make(map[uint32]*Bone),
		Indexes:      make(map[uint32]*Index),
	}
	if d.VersionMajor < 3 || d.VersionMajor > 4 {
		return nil, ErrVersion
	}
	d.PresentationTime = ratio(int64(le.Uint64(pkt[12:20])), le.Uint64(pkt[20:28]))
	d.BaseTime = ratio(int64(le.Uint64(pkt[28:36])), le.Uint64(pkt[36:44]))
	if d.VersionMajor == 4 {
		if len(pkt) < fishead4Size {
			return nil, ErrHeaderTooShort
		}
		d.SegmentLength = int64(le.Uint64(pkt[64:72]))
		d.ContentOffset = int64(le.Uint64(pkt[72:80]))
	}
	return d, nil
}

func ratio(num int64, den uint64) time.Duration {
	if den == 0 {
		return 0
	}
	return timescale.FromScale(num, den, 1)
}

func (d *CodecData) ParseFisbone(pkt []byte) (*Bone, error) {
	if !IsFisbone(pkt) {
		return nil, ErrHeaderMagic
	}
	if len(pkt) < fisboneSize {
		return nil, ErrHeaderTooShort
	}
	le := binary.LittleEndian
	b := &Bone{
		Serial:       le.Uint32(pkt[12:16]),
		NumHeaders:   le.Uint32(pkt[16:20]),
		GranuleNum:   le.Uint64(pkt[20:28]),
		GranuleDen:   le.Uint64(pkt[28:36]),
		BaseGranule:  int64(le.Uint64(pkt[36:44])),
		Preroll:      le.Uint32(pkt[44:48]),
		GranuleShift: pkt[48],
		Headers:      make(map[string]string),
	}
	msgOff := 8 + int(le.Uint32(pkt[8:12]))
	if msgOff < fisboneSize || msgOff > len(pkt) {
		msgOff = fisboneSize
	}
	for _, line := range strings.Split(string(pkt[msgOff:]), "\r\n") {
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		b.Headers[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	d.Bones[b.Serial] = b
	return b, nil
}

// ParseIndex decodes a version 4 index packet. Keypoints are delta coded
// variable length integers.
func (d *CodecData) ParseIndex(pkt []byte) (*Index, error) {
	if !IsIndex(pkt) {
		return nil, ErrHeaderMagic
	}
	if d.Version() < 4<<16 {
		return nil, ErrVersion
	}
	if len(pkt) < indexHeadSize {
		return nil, ErrHeaderTooShort
	}
	le := binary.LittleEndian
	idx := &Index{Serial: le.Uint32(pkt[6:10])}
	n := le.Uint64(pkt[10:18])
	den := le.Uint64(pkt[18:26])
	if den == 0 {
		return nil, ErrIndex
	}
	first := int64(le.Uint64(pkt[26:34]))
	last := int64(le.Uint64(pkt[34:42]))
	idx.StartTime = ratio(first, den)
	idx.EndTime = ratio(last, den)

	// every keypoint takes at least two bytes
	if n > uint64(len(pkt)-indexHeadSize)/2 || n > maxKeypoints {
		return nil, ErrIndex
	}
	p := pkt[indexHeadSize:]
	var offset, tnum int64
	idx.Keypoints = make([]Keypoint, 0, n)
	for i := uint64(0); i < n; i++ {
		var dOff, dTime int64
		var ok bool
		if dOff, p, ok = readVarint(p); !ok {
			return nil, ErrIndex
		}
		if dTime, p, ok = readVarint(p); !ok {
			return nil, ErrIndex
		}
		offset += dOff
		tnum += dTime
		if offset < 0 || tnum < 0 {
			return nil, ErrIndex
		}
		idx.Keypoints = append(idx.Keypoints, Keypoint{Offset: offset, Time: ratio(tnum, den)})
	}
	d.Indexes[idx.Serial] = idx
	return idx, nil
}

// readVarint reads 7 bits per byte, least significant group first; a set
// high bit marks the last byte.
func readVarint(p []byte) (int64, []byte, bool) {
	var v uint64
	var shift uint
	for i, b := range p {
		if shift > 56 {
			return 0, nil, false
		}
		v |= uint64(b&0x7f) << shift
		shift += 7
		if b&0x80 != 0 {
			if v > 1<<62 {
				return 0, nil, false
			}
			return int64(v), p[i+1:], true
		}
	}
	return 0, nil, false
}

// AppendVarint is the inverse of the keypoint integer coding.
func AppendVarint(b []byte, v int64) []byte {
	u := uint64(v)
	for {
		c := byte(u & 0x7f)
		u >>= 7
		if u == 0 {
			return append(b, c|0x80)
		}
		b = append(b, c)
	}
}
