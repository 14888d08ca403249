package oggio

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStreamReassembly(t *testing.T) {
	big := bytes.Repeat([]byte{'A'}, 600)
	s := NewStream(5)

	// first page: one full packet and the start of the big one
	p1 := &Page{Serial: 5, Sequence: 0, Flags: FlagBOS, Granule: -1}
	p1.Segments = []byte{3, 255, 255}
	p1.Body = append([]byte("abc"), big[:510]...)
	require.NoError(t, s.PageIn(p1))

	p2 := &Page{Serial: 5, Sequence: 1, Flags: FlagContinued | FlagEOS, Granule: 42}
	p2.Segments = []byte{90}
	p2.Body = big[510:]
	require.NoError(t, s.PageIn(p2))

	pkt := s.PacketOut()
	require.NotNil(t, pkt)
	require.Equal(t, []byte("abc"), pkt.Data)
	require.True(t, pkt.BOS)
	require.Equal(t, int64(-1), pkt.Granule)

	pkt = s.PacketOut()
	require.NotNil(t, pkt)
	require.Equal(t, big, pkt.Data)
	require.Equal(t, int64(42), pkt.Granule)
	require.True(t, pkt.EOS)
	require.Equal(t, int64(1), pkt.No)

	require.Nil(t, s.PacketOut())
}

func TestStreamSequenceGap(t *testing.T) {
	s := NewStream(1)
	p1 := &Page{Serial: 1, Sequence: 0, Granule: -1, Segments: []byte{255}, Body: bytes.Repeat([]byte{1}, 255)}
	require.NoError(t, s.PageIn(p1))

	// page 1 lost; page 2 continues a packet we never saw begin
	p3 := &Page{Serial: 1, Sequence: 2, Flags: FlagContinued, Granule: 10, Segments: []byte{4, 2}, Body: []byte("xxxxok")}
	require.NoError(t, s.PageIn(p3))

	pkt := s.PacketOut()
	require.NotNil(t, pkt)
	require.Equal(t, []byte("ok"), pkt.Data)
	require.Equal(t, int64(10), pkt.Granule)
	require.Nil(t, s.PacketOut())
}

func TestStreamSerialMismatch(t *testing.T) {
	s := NewStream(1)
	require.ErrorIs(t, s.PageIn(&Page{Serial: 2}), ErrSerialMismatch)
}

func TestStreamReset(t *testing.T) {
	s := NewStream(1)
	require.NoError(t, s.PageIn(&Page{Serial: 1, Sequence: 9, Granule: 1, Segments: []byte{1}, Body: []byte{1}}))
	require.Equal(t, 1, s.Pending())
	s.Reset()
	require.Equal(t, 0, s.Pending())
	// any sequence is accepted after a reset
	require.NoError(t, s.PageIn(&Page{Serial: 1, Sequence: 100, Granule: 2, Segments: []byte{1}, Body: []byte{2}}))
	require.Equal(t, int64(2), s.PacketOut().Granule)
}
