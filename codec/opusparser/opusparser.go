package opusparser

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/vdkogg/oggseek/av"
)

// SampleRate is the granule rate of every Ogg Opus stream.
const SampleRate = 48000

const headSize = 19

var (
	ErrHeadTooShort  = errors.New("opusparser: OpusHead too short")
	ErrHeadMagic     = errors.New("opusparser: missing OpusHead magic")
	ErrHeadVersion   = errors.New("opusparser: unsupported OpusHead version")
	ErrHeadChannels  = errors.New("opusparser: invalid channel count")
	ErrMappingFamily = errors.New("opusparser: invalid channel mapping")
	ErrTagsMagic     = errors.New("opusparser: missing OpusTags magic")
	ErrInvalidPacket = errors.New("invalid opus packet")
	ErrEmptyPacket   = errors.New("empty opus packet")
)

type CodecData struct {
	Version       int
	Channels_     int
	PreSkip       int
	InputRate     int
	Gain          int16
	MappingFamily int
	Streams       int
	Coupled       int
	Mapping       []byte
}

// IsHead reports whether pkt carries the OpusHead magic.
func IsHead(pkt []byte) bool {
	return len(pkt) >= 8 && string(pkt[:8]) == "OpusHead"
}

// IsTags reports whether pkt carries the OpusTags magic.
func IsTags(pkt []byte) bool {
	return len(pkt) >= 8 && string(pkt[:8]) == "OpusTags"
}

// ParseHead decodes an OpusHead identification header.
func ParseHead(pkt []byte) (*CodecData, error) {
	if len(pkt) < headSize {
		return nil, ErrHeadTooShort
	}
	if !IsHead(pkt) {
		return nil, ErrHeadMagic
	}
	d := &CodecData{
		Version:       int(pkt[8]),
		Channels_:     int(pkt[9]),
		PreSkip:       int(binary.LittleEndian.Uint16(pkt[10:12])),
		InputRate:     int(binary.LittleEndian.Uint32(pkt[12:16])),
		Gain:          int16(binary.LittleEndian.Uint16(pkt[16:18])),
		MappingFamily: int(pkt[18]),
	}
	// major version 0 only, minor versions are compatible
	if d.Version>>4 != 0 {
		return nil, ErrHeadVersion
	}
	if d.Channels_ == 0 {
		return nil, ErrHeadChannels
	}
	switch d.MappingFamily {
	case 0:
		if d.Channels_ > 2 {
			return nil, ErrMappingFamily
		}
		d.Streams = 1
		if d.Channels_ == 2 {
			d.Coupled = 1
		}
	default:
		if len(pkt) < headSize+2+d.Channels_ {
			return nil, ErrHeadTooShort
		}
		d.Streams = int(pkt[19])
		d.Coupled = int(pkt[20])
		if d.Streams == 0 || d.Coupled > d.Streams {
			return nil, ErrMappingFamily
		}
		d.Mapping = append([]byte(nil), pkt[21:21+d.Channels_]...)
	}
	return d, nil
}

func (d CodecData) Type() av.CodecType {
	return av.OPUS
}

func (d CodecData) SampleRate() int {
	return SampleRate
}

func (d CodecData) Channels() int {
	return d.Channels_
}

func (d CodecData) PacketDuration(pkt []byte) (time.Duration, error) {
	return PacketDuration(pkt)
}

// PacketSamples returns the number of 48kHz samples coded in pkt.
func PacketSamples(pkt []byte) (int64, error) {
	dur, err := PacketDuration(pkt)
	if err != nil {
		return 0, err
	}
	return int64(dur) * SampleRate / int64(time.Second), nil
}

func Channels(pkt []byte) int {
	if len(pkt) > 0 && (pkt[0]&0x4) == 0 {
		return 1
	}
	return 2
}

func PacketDuration(pkt []byte) (time.Duration, error) {
	if len(pkt) < 1 {
		return 0, ErrEmptyPacket
	}
	toc := pkt[0]
	config := toc >> 3
	code := toc & 0x3
	numFr := 0
	switch code {
	case 0:
		// one frame
		if len(pkt) > 1 {
			numFr = 1
		}
	case 1, 2:
		// two frames
		if len(pkt) > 2 {
			numFr = 2
		}
	case 3:
		// N frames
		if len(pkt) < 2 {
			return 0, ErrInvalidPacket
		}
		numFr = int(pkt[1] & 0x3f)
	}
	dur := time.Duration(numFr) * opusFrameTimes[config]
	if dur > 120*time.Millisecond {
		return 0, ErrInvalidPacket
	}
	return dur, nil
}

var opusFrameTimes = []time.Duration{
	// SILK NB
	10 * time.Millisecond,
	20 * time.Millisecond,
	40 * time.Millisecond,
	60 * time.Millisecond,
	// SILK MB
	10 * time.Millisecond,
	20 * time.Millisecond,
	40 * time.Millisecond,
	60 * time.Millisecond,
	// SILK WB
	10 * time.Millisecond,
	20 * time.Millisecond,
	40 * time.Millisecond,
	60 * time.Millisecond,
	// Hybrid SWB
	10 * time.Millisecond,
	20 * time.Millisecond,
	// Hybrid FB
	10 * time.Millisecond,
	20 * time.Millisecond,
	// CELT NB
	2500 * time.Microsecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	20 * time.Millisecond,
	// CELT WB
	2500 * time.Microsecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	20 * time.Millisecond,
	// CELT SWB
	2500 * time.Microsecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	20 * time.Millisecond,
	// CELT FB
	2500 * time.Microsecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	20 * time.Millisecond,
}
