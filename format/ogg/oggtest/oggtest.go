// Package oggtest builds synthetic Ogg streams for tests.
package oggtest

import (
	"bytes"
	"encoding/binary"

	"github.com/icza/bitio"

	"github.com/vdkogg/oggseek/codec/skeleton"
	"github.com/vdkogg/oggseek/format/ogg/oggio"
)

// Writer appends pages to an in-memory physical stream, numbering the
// pages of every logical stream.
type Writer struct {
	buf []byte
	seq map[uint32]uint32
}

func NewWriter() *Writer {
	return &Writer{seq: make(map[uint32]uint32)}
}

// Page appends a page holding complete packets and returns its offset.
func (w *Writer) Page(serial uint32, flags byte, granule int64, packets ...[]byte) int64 {
	p := &oggio.Page{Flags: flags, Granule: granule, Serial: serial}
	for _, pkt := range packets {
		p.Segments = append(p.Segments, oggio.Lacing(len(pkt))...)
		p.Body = append(p.Body, pkt...)
	}
	return w.Raw(p)
}

// Raw appends p with the next sequence number of its stream.
func (w *Writer) Raw(p *oggio.Page) int64 {
	off := int64(len(w.buf))
	p.Sequence = w.seq[p.Serial]
	w.seq[p.Serial]++
	w.buf = append(w.buf, p.Encode()...)
	return off
}

// Write appends raw bytes, for garbage between pages.
func (w *Writer) Write(b []byte) (int, error) {
	w.buf = append(w.buf, b...)
	return len(b), nil
}

func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) Len() int64 {
	return int64(len(w.buf))
}

// Opus

const (
	OpusPacketSamples = 960
	OpusSampleRate    = 48000
)

func OpusHead(channels, preskip int) []byte {
	b := make([]byte, 19)
	copy(b, "OpusHead")
	b[8] = 1
	b[9] = byte(channels)
	binary.LittleEndian.PutUint16(b[10:12], uint16(preskip))
	binary.LittleEndian.PutUint32(b[12:16], OpusSampleRate)
	return b
}

func OpusTags() []byte {
	b := []byte("OpusTags")
	b = binary.LittleEndian.AppendUint32(b, 7)
	b = append(b, "oggtest"...)
	return binary.LittleEndian.AppendUint32(b, 0)
}

// OpusPacket returns a single 20 ms CELT frame tagged with n.
func OpusPacket(n int) []byte {
	return []byte{31 << 3, byte(n), byte(n >> 8)}
}

// OpusStream appends a complete Opus logical stream: a head page, a tags
// page, then packets 20 ms packets perPage to a page, the last page
// flagged EOS. It returns the offsets of the data pages.
func (w *Writer) OpusStream(serial uint32, channels, preskip, packets, perPage int) []int64 {
	w.Page(serial, oggio.FlagBOS, 0, OpusHead(channels, preskip))
	w.Page(serial, 0, 0, OpusTags())
	return w.OpusData(serial, 0, packets, perPage, true)
}

// OpusData appends data pages of a stream whose headers were written,
// starting after the first packets already sent.
func (w *Writer) OpusData(serial uint32, first, packets, perPage int, eos bool) []int64 {
	var offs []int64
	for i := 0; i < packets; i += perPage {
		n := perPage
		if i+n > packets {
			n = packets - i
		}
		var pkts [][]byte
		for k := 0; k < n; k++ {
			pkts = append(pkts, OpusPacket(first+i+k))
		}
		var flags byte
		if eos && i+n == packets {
			flags = oggio.FlagEOS
		}
		offs = append(offs, w.Page(serial, flags, int64(first+i+n)*OpusPacketSamples, pkts...))
	}
	return offs
}

// Vorbis

// VorbisIdent builds an identification header; blocks are the log2 block
// sizes.
func VorbisIdent(channels, rate int, blocks [2]uint8) []byte {
	b := []byte("\x01vorbis")
	b = binary.LittleEndian.AppendUint32(b, 0)
	b = append(b, byte(channels))
	b = binary.LittleEndian.AppendUint32(b, uint32(rate))
	b = binary.LittleEndian.AppendUint32(b, 0)
	b = binary.LittleEndian.AppendUint32(b, 128000)
	b = binary.LittleEndian.AppendUint32(b, 0)
	b = append(b, blocks[0]|blocks[1]<<4, 1)
	return b
}

func VorbisComment() []byte {
	b := []byte("\x03vorbis")
	b = binary.LittleEndian.AppendUint32(b, 4)
	b = append(b, "test"...)
	b = binary.LittleEndian.AppendUint32(b, 0)
	return append(b, 1)
}

// VorbisSetup builds a setup header carrying only a mode table with the
// given blockflags. The packet is produced back to front: the bit writer
// emits the reversed LSB-first stream MSB first, then the bytes are
// reversed.
func VorbisSetup(modeLong ...bool) []byte {
	var rev bytes.Buffer
	bw := bitio.NewWriter(&rev)
	bits := 56 + 6 + 41*len(modeLong) + 1
	if pad := (8 - bits%8) % 8; pad > 0 {
		bw.WriteBits(0, uint8(pad))
	}
	bw.WriteBits(1, 1)
	for i := len(modeLong) - 1; i >= 0; i-- {
		bw.WriteBits(0, 8)  // mapping
		bw.WriteBits(0, 16) // transform type
		bw.WriteBits(0, 16) // window type
		if modeLong[i] {
			bw.WriteBits(1, 1)
		} else {
			bw.WriteBits(0, 1)
		}
	}
	bw.WriteBits(uint64(len(modeLong)-1), 6)
	magic := []byte("\x05vorbis")
	for i := len(magic) - 1; i >= 0; i-- {
		bw.WriteBits(uint64(magic[i]), 8)
	}
	bw.Close()

	b := rev.Bytes()
	out := make([]byte, len(b))
	for i, c := range b {
		out[len(b)-1-i] = c
	}
	return out
}

// VorbisPacket returns an audio packet coded with the given mode of a two
// mode setup.
func VorbisPacket(mode int) []byte {
	return []byte{byte(mode) << 1, 0xaa}
}

// Theora

// TheoraIdent builds a version 3.2.1 identification header of a 320x240
// stream.
func TheoraIdent(fpsNum, fpsDen uint32, shift uint8) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x80theora")
	bw := bitio.NewWriter(&buf)
	fields := []struct {
		v    uint64
		bits uint8
	}{
		{3, 8}, {2, 8}, {1, 8},
		{20, 16}, {15, 16},
		{320, 24}, {240, 24},
		{0, 8}, {0, 8},
		{uint64(fpsNum), 32}, {uint64(fpsDen), 32},
		{1, 24}, {1, 24},
		{0, 8},
		{0, 24},
		{32, 6},
		{uint64(shift), 5},
		{0, 2},
		{0, 3},
	}
	for _, f := range fields {
		bw.WriteBits(f.v, f.bits)
	}
	bw.Close()
	return buf.Bytes()
}

func TheoraComment() []byte {
	b := []byte("\x81theora")
	b = binary.LittleEndian.AppendUint32(b, 4)
	b = append(b, "test"...)
	return binary.LittleEndian.AppendUint32(b, 0)
}

func TheoraSetup() []byte {
	return append([]byte("\x82theora"), 0, 0, 0)
}

// TheoraFrame returns a data packet, intra coded when key is set.
func TheoraFrame(key bool, n int) []byte {
	if key {
		return []byte{0x00, byte(n)}
	}
	return []byte{0x40, byte(n)}
}

// Skeleton

// Fishead builds a version 4.0 fishead packet.
func Fishead() []byte {
	b := make([]byte, 80)
	copy(b, "fishead\x00")
	le := binary.LittleEndian
	le.PutUint16(b[8:10], 4)
	le.PutUint16(b[10:12], 0)
	le.PutUint64(b[20:28], 1000)
	le.PutUint64(b[36:44], 1000)
	return b
}

func Fisbone(serial uint32, granNum, granDen uint64, shift uint8, contentType string) []byte {
	b := make([]byte, 52)
	copy(b, "fisbone\x00")
	le := binary.LittleEndian
	le.PutUint32(b[8:12], 44)
	le.PutUint32(b[12:16], serial)
	le.PutUint32(b[16:20], 2)
	le.PutUint64(b[20:28], granNum)
	le.PutUint64(b[28:36], granDen)
	b[48] = shift
	return append(b, "Content-Type: "+contentType+"\r\n"...)
}

// Index builds an index packet. Keypoint times are in milliseconds.
func Index(serial uint32, firstMs, lastMs int64, points ...skeleton.Keypoint) []byte {
	b := []byte("index\x00")
	le := binary.LittleEndian
	b = le.AppendUint32(b, serial)
	b = le.AppendUint64(b, uint64(len(points)))
	b = le.AppendUint64(b, 1000)
	b = le.AppendUint64(b, uint64(firstMs))
	b = le.AppendUint64(b, uint64(lastMs))
	var off, ms int64
	for _, kp := range points {
		t := kp.Time.Milliseconds()
		b = skeleton.AppendVarint(b, kp.Offset-off)
		b = skeleton.AppendVarint(b, t-ms)
		off, ms = kp.Offset, t
	}
	return b
}
