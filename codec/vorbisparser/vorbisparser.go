// Package vorbisparser reads the three Vorbis header packets far enough to
// classify a stream and compute per-packet sample counts. It does not decode
// audio.
package vorbisparser

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/icza/bitio"

	"github.com/vdkogg/oggseek/av"
)

const (
	PacketIdentification = 1
	PacketComment        = 3
	PacketSetup          = 5

	idHeaderSize = 30
)

var (
	ErrHeaderMagic    = errors.New("vorbisparser: bad header magic")
	ErrHeaderTooShort = errors.New("vorbisparser: header too short")
	ErrVersion        = errors.New("vorbisparser: unsupported version")
	ErrChannels       = errors.New("vorbisparser: invalid channel count")
	ErrSampleRate     = errors.New("vorbisparser: invalid sample rate")
	ErrBlockSize      = errors.New("vorbisparser: invalid block sizes")
	ErrFraming        = errors.New("vorbisparser: framing bit not set")
	ErrModes          = errors.New("vorbisparser: mode table not found")
	ErrNotAudio       = errors.New("vorbisparser: not an audio packet")
)

type CodecData struct {
	Channels_   int
	SampleRate_ int
	BitrateMax  int32
	BitrateNom  int32
	BitrateMin  int32
	BlockSize   [2]int
	// ModeLong holds the blockflag of every mode from the setup header.
	ModeLong []bool
	modeBits uint
}

// HeaderType returns the header packet type of pkt, or 0 when pkt is not a
// Vorbis header.
func HeaderType(pkt []byte) int {
	if len(pkt) < 7 || pkt[0]&1 == 0 || string(pkt[1:7]) != "vorbis" {
		return 0
	}
	return int(pkt[0])
}

// IsHeader reports whether pkt has the header bit set. Audio packets always
// have it clear.
func IsHeader(pkt []byte) bool {
	return len(pkt) > 0 && pkt[0]&1 == 1
}

// ParseIdentification decodes the identification header.
func ParseIdentification(pkt []byte) (*CodecData, error) {
	if HeaderType(pkt) != PacketIdentification {
		return nil, ErrHeaderMagic
	}
	if len(pkt) < idHeaderSize {
		return nil, ErrHeaderTooShort
	}
	if binary.LittleEndian.Uint32(pkt[7:11]) != 0 {
		return nil, ErrVersion
	}
	d := &CodecData{
		Channels_:   int(pkt[11]),
		SampleRate_: int(binary.LittleEndian.Uint32(pkt[12:16])),
		BitrateMax:  int32(binary.LittleEndian.Uint32(pkt[16:20])),
		BitrateNom:  int32(binary.LittleEndian.Uint32(pkt[20:24])),
		BitrateMin:  int32(binary.LittleEndian.Uint32(pkt[24:28])),
		BlockSize:   [2]int{1 << (pkt[28] & 0x0f), 1 << (pkt[28] >> 4)},
	}
	if d.Channels_ == 0 {
		return nil, ErrChannels
	}
	if d.SampleRate_ <= 0 {
		return nil, ErrSampleRate
	}
	if d.BlockSize[0] < 64 || d.BlockSize[1] > 8192 || d.BlockSize[0] > d.BlockSize[1] {
		return nil, ErrBlockSize
	}
	if pkt[29]&1 == 0 {
		return nil, ErrFraming
	}
	return d, nil
}

// ParseComment only checks the comment header magic, the tags themselves are
// not needed for demuxing.
func (d *CodecData) ParseComment(pkt []byte) error {
	if HeaderType(pkt) != PacketComment {
		return ErrHeaderMagic
	}
	return nil
}

// ParseSetup extracts the mode blockflags from the setup header. The mode
// table sits at the end of the packet behind variable sized codebooks, so it
// is located by walking the bitstream backward from the framing bit and
// accepting the longest run of plausible mode entries whose count field
// agrees.
func (d *CodecData) ParseSetup(pkt []byte) error {
	if HeaderType(pkt) != PacketSetup {
		return ErrHeaderMagic
	}
	rev := make([]byte, len(pkt))
	for i, b := range pkt {
		rev[len(pkt)-1-i] = b
	}
	total := len(rev) * 8

	pos := 0
	framing := -1
	for total-pos > 97 {
		bit, err := readBits(rev, pos, 1)
		if err != nil {
			return err
		}
		pos++
		if bit == 1 {
			framing = pos
			break
		}
	}
	if framing < 0 {
		return ErrModes
	}

	count, found := 0, 0
	for total-pos >= 97 {
		mapping, err := readBits(rev, pos, 8)
		if err != nil {
			return err
		}
		window, err := readBits(rev, pos+8, 16)
		if err != nil {
			return err
		}
		transform, err := readBits(rev, pos+24, 16)
		if err != nil {
			return err
		}
		if mapping > 63 || window != 0 || transform != 0 {
			break
		}
		pos += 41
		count++
		if count > 64 {
			break
		}
		n, err := readBits(rev, pos, 6)
		if err != nil {
			return err
		}
		if int(n)+1 == count {
			found = count
		}
	}
	if found == 0 {
		return ErrModes
	}

	d.ModeLong = make([]bool, found)
	pos = framing
	for i := found - 1; i >= 0; i-- {
		flag, err := readBits(rev, pos+40, 1)
		if err != nil {
			return err
		}
		d.ModeLong[i] = flag == 1
		pos += 41
	}
	d.modeBits = ilog(uint(found - 1))
	return nil
}

// readBits reads n bits MSB first starting at bit offset pos of b. On the
// byte-reversed packet this walks the original LSB-first bitstream backward.
func readBits(b []byte, pos int, n uint8) (uint64, error) {
	r := bitio.NewReader(bytes.NewReader(b[pos/8:]))
	if skip := uint8(pos % 8); skip > 0 {
		if _, err := r.ReadBits(skip); err != nil {
			return 0, err
		}
	}
	return r.ReadBits(n)
}

func ilog(v uint) uint {
	var n uint
	for ; v > 0; v >>= 1 {
		n++
	}
	return n
}

func (d CodecData) Type() av.CodecType {
	return av.VORBIS
}

func (d CodecData) SampleRate() int {
	return d.SampleRate_
}

func (d CodecData) Channels() int {
	return d.Channels_
}

// BlockSizeOf returns the block size coded in an audio packet.
func (d CodecData) BlockSizeOf(pkt []byte) (int, error) {
	if len(pkt) == 0 || IsHeader(pkt) {
		return 0, ErrNotAudio
	}
	if len(d.ModeLong) == 0 {
		return 0, ErrModes
	}
	mode := int(pkt[0]>>1) & (1<<d.modeBits - 1)
	if mode >= len(d.ModeLong) {
		return 0, ErrNotAudio
	}
	if d.ModeLong[mode] {
		return d.BlockSize[1], nil
	}
	return d.BlockSize[0], nil
}

// PacketSamples returns the number of samples an audio packet yields given
// the block size of the previous packet (0 when unknown, in which case the
// packet only primes the decoder) and the packet's own block size.
func (d CodecData) PacketSamples(pkt []byte, prevBlock int) (samples int64, block int, err error) {
	if block, err = d.BlockSizeOf(pkt); err != nil {
		return
	}
	if prevBlock > 0 {
		samples = int64(prevBlock/4 + block/4)
	}
	return
}
