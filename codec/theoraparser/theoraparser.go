// Package theoraparser reads Theora identification headers and interprets
// granule positions of Theora streams.
package theoraparser

import (
	"bytes"
	"errors"
	"time"

	"github.com/icza/bitio"

	"github.com/vdkogg/oggseek/av"
	"github.com/vdkogg/oggseek/codec/timescale"
)

const (
	PacketIdentification = 0x80
	PacketComment        = 0x81
	PacketSetup          = 0x82

	idHeaderSize = 42
)

var (
	ErrHeaderMagic    = errors.New("theoraparser: bad header magic")
	ErrHeaderTooShort = errors.New("theoraparser: header too short")
	ErrVersion        = errors.New("theoraparser: unsupported version")
	ErrFrameSize      = errors.New("theoraparser: invalid frame size")
	ErrFrameRate      = errors.New("theoraparser: invalid frame rate")
)

type CodecData struct {
	VersionMajor int
	VersionMinor int
	VersionSub   int
	// encoded frame size in macroblocks
	MBWidth  int
	MBHeight int
	// visible picture region
	PicWidth       int
	PicHeight      int
	PicX           int
	PicY           int
	FpsNum         uint32
	FpsDen         uint32
	AspectNum      uint32
	AspectDen      uint32
	ColorSpace     int
	NominalBitrate int
	Quality        int
	// KeyframeShift is the number of low granule bits holding the frame
	// offset from the last keyframe.
	KeyframeShift uint
	PixelFormat   int
}

func HeaderType(pkt []byte) int {
	if len(pkt) < 7 || pkt[0]&0x80 == 0 || string(pkt[1:7]) != "theora" {
		return 0
	}
	return int(pkt[0])
}

// IsHeader reports whether pkt has the header bit set.
func IsHeader(pkt []byte) bool {
	return len(pkt) > 0 && pkt[0]&0x80 != 0
}

// IsKeyFrame reports whether a data packet is an intra frame. Empty packets
// are dropped frames and never keyframes.
func IsKeyFrame(pkt []byte) bool {
	return len(pkt) > 0 && pkt[0]&0x80 == 0 && pkt[0]&0x40 == 0
}

func ParseIdentification(pkt []byte) (*CodecData, error) {
	if HeaderType(pkt) != PacketIdentification {
		return nil, ErrHeaderMagic
	}
	if len(pkt) < idHeaderSize {
		return nil, ErrHeaderTooShort
	}
	r := bitio.NewReader(bytes.NewReader(pkt[7:idHeaderSize]))
	d := &CodecData{}
	fields := []struct {
		bits uint8
		dst  func(uint64)
	}{
		{8, func(v uint64) { d.VersionMajor = int(v) }},
		{8, func(v uint64) { d.VersionMinor = int(v) }},
		{8, func(v uint64) { d.VersionSub = int(v) }},
		{16, func(v uint64) { d.MBWidth = int(v) }},
		{16, func(v uint64) { d.MBHeight = int(v) }},
		{24, func(v uint64) { d.PicWidth = int(v) }},
		{24, func(v uint64) { d.PicHeight = int(v) }},
		{8, func(v uint64) { d.PicX = int(v) }},
		{8, func(v uint64) { d.PicY = int(v) }},
		{32, func(v uint64) { d.FpsNum = uint32(v) }},
		{32, func(v uint64) { d.FpsDen = uint32(v) }},
		{24, func(v uint64) { d.AspectNum = uint32(v) }},
		{24, func(v uint64) { d.AspectDen = uint32(v) }},
		{8, func(v uint64) { d.ColorSpace = int(v) }},
		{24, func(v uint64) { d.NominalBitrate = int(v) }},
		{6, func(v uint64) { d.Quality = int(v) }},
		{5, func(v uint64) { d.KeyframeShift = uint(v) }},
		{2, func(v uint64) { d.PixelFormat = int(v) }},
	}
	for _, f := range fields {
		v, err := r.ReadBits(f.bits)
		if err != nil {
			return nil, ErrHeaderTooShort
		}
		f.dst(v)
	}
	if d.VersionMajor != 3 || d.VersionMinor > 2 {
		return nil, ErrVersion
	}
	if d.MBWidth == 0 || d.MBHeight == 0 ||
		d.PicWidth > d.MBWidth*16 || d.PicHeight > d.MBHeight*16 ||
		d.PicWidth+d.PicX > d.MBWidth*16 || d.PicHeight+d.PicY > d.MBHeight*16 {
		return nil, ErrFrameSize
	}
	if d.FpsNum == 0 || d.FpsDen == 0 {
		return nil, ErrFrameRate
	}
	return d, nil
}

func (d CodecData) Type() av.CodecType {
	return av.THEORA
}

func (d CodecData) Width() int {
	return d.PicWidth
}

func (d CodecData) Height() int {
	return d.PicHeight
}

// frameBase is 1 for streams of version 3.2.1 and later, whose granule
// positions count frames from one.
func (d CodecData) frameBase() int64 {
	if d.VersionMinor > 2 || (d.VersionMinor == 2 && d.VersionSub >= 1) {
		return 1
	}
	return 0
}

// Frame returns the zero based frame index encoded in granule.
func (d CodecData) Frame(granule int64) int64 {
	if granule < 0 {
		return -1
	}
	shift := d.KeyframeShift
	kf := granule >> shift
	off := granule - kf<<shift
	return kf + off - d.frameBase()
}

// KeyFrame returns the zero based index of the keyframe granule refers to.
func (d CodecData) KeyFrame(granule int64) int64 {
	if granule < 0 {
		return -1
	}
	return granule>>d.KeyframeShift - d.frameBase()
}

// Granule encodes a zero based frame index and its keyframe index.
func (d CodecData) Granule(frame, keyframe int64) int64 {
	base := d.frameBase()
	if keyframe < 0 || keyframe > frame {
		keyframe = frame
	}
	off := frame - keyframe
	if limit := int64(1)<<d.KeyframeShift - 1; off > limit {
		keyframe = frame - limit
		off = limit
	}
	return (keyframe+base)<<d.KeyframeShift | off
}

// FrameTime returns the presentation start of a zero based frame index.
func (d CodecData) FrameTime(frame int64) time.Duration {
	return timescale.FromScale(frame, uint64(d.FpsNum), uint64(d.FpsDen))
}

// FrameDuration returns the display time of one frame.
func (d CodecData) FrameDuration() time.Duration {
	return timescale.FromScale(1, uint64(d.FpsNum), uint64(d.FpsDen))
}

// EndTime returns the end of the frame encoded in granule.
func (d CodecData) EndTime(granule int64) time.Duration {
	if granule < 0 {
		return -1
	}
	return d.FrameTime(d.Frame(granule) + 1)
}
