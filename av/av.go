// Package av contains the media types shared by demuxers, codec parsers and
// output sinks.
package av

import (
	"fmt"
	"time"
)

// UnknownDuration marks a stream whose end is not known (live or chained).
const UnknownDuration time.Duration = -1

type CodecType uint32

const (
	codecTypeAudioBit  = 0x1
	codecTypeOtherBits = 1
)

func MakeAudioCodecType(base uint32) CodecType {
	return CodecType(base<<codecTypeOtherBits) | CodecType(codecTypeAudioBit)
}

func MakeVideoCodecType(base uint32) CodecType {
	return CodecType(base << codecTypeOtherBits)
}

var (
	THEORA   = MakeVideoCodecType(avCodecTypeMagic + 1)
	VORBIS   = MakeAudioCodecType(avCodecTypeMagic + 1)
	OPUS     = MakeAudioCodecType(avCodecTypeMagic + 2)
	SKELETON = CodecType(avCodecTypeMagic << (codecTypeOtherBits + 8))
)

const avCodecTypeMagic = 233333

func (self CodecType) String() string {
	switch self {
	case THEORA:
		return "Theora"
	case VORBIS:
		return "Vorbis"
	case OPUS:
		return "Opus"
	case SKELETON:
		return "Skeleton"
	}
	return fmt.Sprintf("CodecType(%d)", uint32(self))
}

func (self CodecType) IsAudio() bool {
	return self&codecTypeAudioBit != 0 && self != SKELETON
}

func (self CodecType) IsVideo() bool {
	return self&codecTypeAudioBit == 0 && self != SKELETON
}

// CodecData is the header information of one elementary stream.
type CodecData interface {
	Type() CodecType
}

type AudioCodecData interface {
	CodecData
	SampleRate() int
	Channels() int
}

type VideoCodecData interface {
	CodecData
	Width() int
	Height() int
}

// Packet is one demuxed frame. Idx is the stream index as returned by
// Streams; Time is the decode timestamp.
type Packet struct {
	IsKeyFrame bool
	Idx        int8
	Time       time.Duration
	Duration   time.Duration
	Data       []byte
}

func (self Packet) End() time.Duration {
	return self.Time + self.Duration
}
