package ogg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vdkogg/oggseek/format/ogg/oggio"
	"github.com/vdkogg/oggseek/format/ogg/oggtest"
)

func page(serial, seq uint32, flags byte, granule int64, packets ...[]byte) *oggio.Page {
	p := &oggio.Page{Flags: flags, Granule: granule, Serial: serial, Sequence: seq}
	for _, pkt := range packets {
		p.Segments = append(p.Segments, oggio.Lacing(len(pkt))...)
		p.Body = append(p.Body, pkt...)
	}
	return p
}

func readyState(t *testing.T, pages ...*oggio.Page) *CodecState {
	st, err := newCodecState(pages[0])
	require.NoError(t, err)
	for _, p := range pages[1:] {
		require.NoError(t, st.pageIn(p))
	}
	for !st.HeadersDone {
		pkt := st.packetOut()
		require.NotNil(t, pkt)
		require.True(t, pkt.header)
		done, err := st.codec.decodeHeader(pkt.Packet)
		require.NoError(t, err)
		st.HeadersDone = done
	}
	return st
}

func TestClassify(t *testing.T) {
	for _, tc := range []struct {
		data []byte
		kind Kind
	}{
		{oggtest.OpusHead(2, 0), KindAudio},
		{oggtest.VorbisIdent(2, 44100, [2]uint8{8, 11}), KindAudio},
		{oggtest.TheoraIdent(25, 1, 6), KindVideo},
		{oggtest.Fishead(), KindIndex},
		{[]byte("\x80kate\x00\x00\x00"), KindUnknown},
	} {
		st, err := newCodecState(page(1, 0, oggio.FlagBOS, 0, tc.data))
		require.NoError(t, err)
		require.Equal(t, tc.kind, st.Kind)
	}
}

func TestOpusGranuleBackfill(t *testing.T) {
	st := readyState(t,
		page(1, 0, oggio.FlagBOS, 0, oggtest.OpusHead(2, 0)),
		page(1, 1, 0, 0, oggtest.OpusTags()),
		page(1, 2, 0, 3*960, oggtest.OpusPacket(0), oggtest.OpusPacket(1), oggtest.OpusPacket(2)),
	)
	for i := 0; i < 3; i++ {
		pkt := st.packetOut()
		require.NotNil(t, pkt)
		require.Equal(t, int64(i+1)*960, pkt.Granule)
		f := st.frame(pkt)
		require.Equal(t, time.Duration(i)*20*time.Millisecond, f.Time)
		require.Equal(t, 20*time.Millisecond, f.Duration)
		require.True(t, f.IsKeyFrame)
	}
	require.Nil(t, st.packetOut())
}

func TestUnstampedPacketsWaitForGranule(t *testing.T) {
	st := readyState(t,
		page(1, 0, oggio.FlagBOS, 0, oggtest.OpusHead(1, 0)),
		page(1, 1, 0, 0, oggtest.OpusTags()),
	)

	// a packet spanning two pages completes on the second one
	big := make([]byte, 600)
	big[0] = 31 << 3
	first := &oggio.Page{Serial: 1, Sequence: 2, Granule: -1, Segments: []byte{255, 255}, Body: big[:510]}
	require.NoError(t, st.pageIn(first))
	require.Nil(t, st.packetOut())

	second := page(1, 3, oggio.FlagContinued, 2*960, big[510:], oggtest.OpusPacket(1))
	require.NoError(t, st.pageIn(second))
	pkt := st.packetOut()
	require.NotNil(t, pkt)
	require.Len(t, pkt.Data, 600)
	require.Equal(t, int64(960), pkt.Granule)
	pkt = st.packetOut()
	require.NotNil(t, pkt)
	require.Equal(t, int64(2*960), pkt.Granule)
}

func TestDrainCountsForward(t *testing.T) {
	st := readyState(t,
		page(1, 0, oggio.FlagBOS, 0, oggtest.OpusHead(2, 0)),
		page(1, 1, 0, 0, oggtest.OpusTags()),
		page(1, 2, 0, 960, oggtest.OpusPacket(0)),
	)
	require.NotNil(t, st.packetOut())

	// truncated stream: the last packets never get a page granule
	tail := &oggio.Page{Serial: 1, Sequence: 3, Granule: -1}
	tail.Segments = append(oggio.Lacing(3), 255)
	tail.Body = append(oggtest.OpusPacket(1), make([]byte, 255)...)
	require.NoError(t, st.pageIn(tail))
	require.Nil(t, st.packetOut())

	st.drain()
	pkt := st.packetOut()
	require.NotNil(t, pkt)
	require.Equal(t, int64(2*960), pkt.Granule)
	require.Nil(t, st.packetOut())
}

func TestVorbisGranuleBackfill(t *testing.T) {
	st := readyState(t,
		page(1, 0, oggio.FlagBOS, 0, oggtest.VorbisIdent(2, 48000, [2]uint8{8, 11})),
		page(1, 1, 0, 0, oggtest.VorbisComment(), oggtest.VorbisSetup(false, true)),
		page(1, 2, 0, 1024+576,
			oggtest.VorbisPacket(1), oggtest.VorbisPacket(1), oggtest.VorbisPacket(0)),
	)
	want := []int64{0, 1024, 1024 + 576}
	for _, g := range want {
		pkt := st.packetOut()
		require.NotNil(t, pkt)
		require.Equal(t, g, pkt.Granule)
	}
}

func TestTheoraKeyframeTracking(t *testing.T) {
	st := readyState(t,
		page(1, 0, oggio.FlagBOS, 0, oggtest.TheoraIdent(25, 1, 6)),
		page(1, 1, 0, 0, oggtest.TheoraComment(), oggtest.TheoraSetup()),
	)
	info := st.codec.(*theoraCodec).info

	// frames 0..4, keyframes at 0 and 3, one page stamped by the last frame
	frames := [][]byte{
		oggtest.TheoraFrame(true, 0),
		oggtest.TheoraFrame(false, 1),
		oggtest.TheoraFrame(false, 2),
		oggtest.TheoraFrame(true, 3),
		oggtest.TheoraFrame(false, 4),
	}
	require.NoError(t, st.pageIn(page(1, 2, 0, info.Granule(4, 3), frames...)))
	keys := []int64{0, 0, 0, 3, 3}
	for i := range frames {
		pkt := st.packetOut()
		require.NotNil(t, pkt)
		require.Equal(t, int64(i), info.Frame(pkt.Granule))
		require.Equal(t, keys[i], info.KeyFrame(pkt.Granule))
		require.Equal(t, keys[i] == int64(i), pkt.key)
		f := st.frame(pkt)
		require.Equal(t, time.Duration(i)*40*time.Millisecond, f.Time)
	}
}

func TestResetKeepsHeaders(t *testing.T) {
	st := readyState(t,
		page(1, 0, oggio.FlagBOS, 0, oggtest.OpusHead(2, 0)),
		page(1, 1, 0, 0, oggtest.OpusTags()),
		page(1, 2, 0, 960, oggtest.OpusPacket(0)),
	)
	st.reset()
	require.Zero(t, st.queued())
	require.True(t, st.HeadersDone)

	tm, ok := st.PageTime(page(1, 9, 0, 48000))
	require.True(t, ok)
	require.Equal(t, time.Second, tm)

	_, ok = st.PageTime(page(1, 9, 0, -1))
	require.False(t, ok)
}
