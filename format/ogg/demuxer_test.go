package ogg_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vdkogg/oggseek/av"
	"github.com/vdkogg/oggseek/codec/theoraparser"
	"github.com/vdkogg/oggseek/format/ogg"
	"github.com/vdkogg/oggseek/format/ogg/oggio"
	"github.com/vdkogg/oggseek/format/ogg/oggtest"
	"github.com/vdkogg/oggseek/format/ogg/source"
)

const packetDur = 20 * time.Millisecond

func testConfig() ogg.Config {
	cfg := ogg.DefaultConfig()
	cfg.PageStep = 64
	cfg.EndScanStep = 256
	return cfg
}

// opusFile is one Opus stream of n 20 ms packets, perPage to a page.
func opusFile(n, perPage int) []byte {
	w := oggtest.NewWriter()
	w.OpusStream(1, 2, 0, n, perPage)
	return w.Bytes()
}

func open(t *testing.T, b []byte) (*ogg.Demuxer, *source.Memory) {
	src := source.NewMemory(b)
	return ogg.NewDemuxerConfig(src, testConfig()), src
}

func readAllAudio(t *testing.T, d *ogg.Demuxer) []ogg.Frame {
	var out []ogg.Frame
	for {
		f, err := d.DecodeAudio()
		if errors.Is(err, ogg.ErrEndOfTrack) {
			return out
		}
		require.NoError(t, err)
		out = append(out, f)
	}
}

func TestReadMetadataOpus(t *testing.T) {
	d, _ := open(t, opusFile(100, 10))
	meta, err := d.ReadMetadata(context.Background())
	require.NoError(t, err)
	require.NotNil(t, meta.Audio)
	require.Nil(t, meta.Video)
	require.Equal(t, av.OPUS, meta.Audio.Type())
	require.Equal(t, 2, meta.Audio.Channels())
	require.Equal(t, 48000, meta.Audio.SampleRate())
	require.Equal(t, 2*time.Second, meta.Duration)
	require.False(t, meta.Indexed)
	require.True(t, d.IsSeekable())
	require.False(t, d.IsChained())

	again, err := d.ReadMetadata(context.Background())
	require.NoError(t, err)
	require.Same(t, meta, again)
}

func TestDecodeAudioTimestamps(t *testing.T) {
	d, _ := open(t, opusFile(95, 10))
	frames := readAllAudio(t, d)
	require.Len(t, frames, 95)
	for i, f := range frames {
		require.Equal(t, time.Duration(i)*packetDur, f.Time)
		require.Equal(t, packetDur, f.Duration)
		require.Equal(t, oggtest.OpusPacket(i), f.Data)
		require.Nil(t, f.Info)
	}

	// end of track is sticky
	_, err := d.DecodeAudio()
	require.ErrorIs(t, err, ogg.ErrEndOfTrack)
	_, err = d.DecodeVideo(0)
	require.ErrorIs(t, err, ogg.ErrEndOfTrack)
}

func TestGarbageBeforeAndBetweenPages(t *testing.T) {
	w := oggtest.NewWriter()
	w.Write([]byte("not an ogg page"))
	w.Page(1, oggio.FlagBOS, 0, oggtest.OpusHead(1, 0))
	w.Page(1, 0, 0, oggtest.OpusTags())
	w.OpusData(1, 0, 10, 5, false)
	w.Write([]byte("OggS\x00\x00 broken capture"))
	w.OpusData(1, 10, 10, 5, true)

	d, _ := open(t, w.Bytes())
	frames := readAllAudio(t, d)
	require.Len(t, frames, 20)
	require.Equal(t, 19*packetDur, frames[19].Time)
}

func TestHeadersCompleteOnBOSPage(t *testing.T) {
	w := oggtest.NewWriter()
	w.Page(1, oggio.FlagBOS, 0, oggtest.OpusHead(2, 0), oggtest.OpusTags())
	w.OpusData(1, 0, 20, 5, true)

	d, _ := open(t, w.Bytes())
	frames := readAllAudio(t, d)
	require.Len(t, frames, 20)
	require.Equal(t, time.Duration(0), frames[0].Time)
	require.Equal(t, oggtest.OpusPacket(0), frames[0].Data)
	require.Equal(t, 400*time.Millisecond, d.Duration())
}

func TestNoStreams(t *testing.T) {
	w := oggtest.NewWriter()
	w.Page(1, oggio.FlagBOS, 0, []byte("\x80kate\x00\x00\x00"))
	w.Page(1, oggio.FlagEOS, 10, []byte("data"))
	d, _ := open(t, w.Bytes())
	_, err := d.ReadMetadata(context.Background())
	require.ErrorIs(t, err, ogg.ErrNoStreams)

	d, _ = open(t, []byte("garbage only"))
	_, err = d.ReadMetadata(context.Background())
	require.ErrorIs(t, err, ogg.ErrNoStreams)
}

func TestBadHeaderDisablesStream(t *testing.T) {
	w := oggtest.NewWriter()
	w.Page(1, oggio.FlagBOS, 0, oggtest.OpusHead(0, 0))
	w.Page(2, oggio.FlagBOS, 0, oggtest.TheoraIdent(25, 1, 6))
	w.Page(1, 0, 0, oggtest.OpusTags())
	w.Page(2, 0, 0, oggtest.TheoraComment(), oggtest.TheoraSetup())
	info, err := theoraparser.ParseIdentification(oggtest.TheoraIdent(25, 1, 6))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		w.Page(2, 0, info.Granule(int64(i), 0), oggtest.TheoraFrame(i == 0, i))
	}

	d, _ := open(t, w.Bytes())
	meta, err := d.ReadMetadata(context.Background())
	require.NoError(t, err)
	require.Nil(t, meta.Audio)
	require.NotNil(t, meta.Video)
	require.Equal(t, 320, meta.Video.Width())

	_, err = d.DecodeAudio()
	require.ErrorIs(t, err, ogg.ErrEndOfTrack)
	f, err := d.DecodeVideo(0)
	require.NoError(t, err)
	require.True(t, f.IsKeyFrame)
	require.Equal(t, int8(0), f.Idx)
}

func TestLiveSourceIsNotSeekable(t *testing.T) {
	d, src := open(t, opusFile(50, 10))
	src.SetLive(true)
	meta, err := d.ReadMetadata(context.Background())
	require.NoError(t, err)
	require.Equal(t, av.UnknownDuration, meta.Duration)
	require.False(t, d.IsSeekable())
	_, err = d.Seek(context.Background(), time.Second, 0, -1)
	require.ErrorIs(t, err, ogg.ErrNotSeekable)
}

func TestClose(t *testing.T) {
	d, _ := open(t, opusFile(50, 10))
	require.NoError(t, d.Close())
	_, err := d.DecodeAudio()
	require.ErrorIs(t, err, ogg.ErrClosed)
}

func TestHandlerProbe(t *testing.T) {
	require.True(t, ogg.Probe(opusFile(1, 1)))
	require.False(t, ogg.Probe([]byte("RIFF....WAVE")))
	require.False(t, ogg.Probe(nil))
}

// avFile interleaves a 25 fps Theora stream with a keyframe every ten
// frames and a Vorbis stream without EOS page, both about four seconds
// long.
func avFile(t *testing.T) []byte {
	const (
		video  = 10
		audio  = 20
		frames = 100
	)
	info, err := theoraparser.ParseIdentification(oggtest.TheoraIdent(25, 1, 6))
	require.NoError(t, err)

	w := oggtest.NewWriter()
	w.Page(video, oggio.FlagBOS, 0, oggtest.TheoraIdent(25, 1, 6))
	w.Page(audio, oggio.FlagBOS, 0, oggtest.VorbisIdent(2, 48000, [2]uint8{8, 11}))
	w.Page(video, 0, 0, oggtest.TheoraComment(), oggtest.TheoraSetup())
	w.Page(audio, 0, 0, oggtest.VorbisComment(), oggtest.VorbisSetup(false, true))

	// four long vorbis blocks per page, 1024 samples each after the first
	apkt, vframe := 0, 0
	for vframe < frames {
		vt := time.Duration(vframe+1) * 40 * time.Millisecond
		at := time.Duration(int64(apkt+3)*1024) * time.Second / 48000
		if at < vt {
			w.Page(audio, 0, int64(apkt+3)*1024,
				oggtest.VorbisPacket(1), oggtest.VorbisPacket(1),
				oggtest.VorbisPacket(1), oggtest.VorbisPacket(1))
			apkt += 4
			continue
		}
		key := vframe - vframe%10
		var flags byte
		if vframe == frames-1 {
			flags = oggio.FlagEOS
		}
		w.Page(video, flags, info.Granule(int64(vframe), int64(key)), oggtest.TheoraFrame(vframe == key, vframe))
		vframe++
	}
	return w.Bytes()
}

func TestAudioVideoInterleave(t *testing.T) {
	d, _ := open(t, avFile(t))
	streams, err := d.Streams()
	require.NoError(t, err)
	require.Len(t, streams, 2)
	require.Equal(t, av.VORBIS, streams[0].Type())
	require.Equal(t, av.THEORA, streams[1].Type())
	require.Equal(t, 4*time.Second, d.Duration())

	var last time.Duration
	var video int
	for {
		pkt, err := d.ReadPacket()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		require.GreaterOrEqual(t, pkt.Time, last)
		last = pkt.Time
		if pkt.Idx == 1 {
			require.Equal(t, time.Duration(video)*40*time.Millisecond, pkt.Time)
			require.Equal(t, video%10 == 0, pkt.IsKeyFrame)
			video++
		}
	}
	require.Equal(t, 100, video)
}

func TestDecodeVideoThreshold(t *testing.T) {
	d, _ := open(t, avFile(t))
	f, err := d.DecodeVideo(480 * time.Millisecond)
	require.NoError(t, err)
	// frames before the threshold are dropped unless they are keyframes
	require.True(t, f.IsKeyFrame)
	require.Equal(t, time.Duration(0), f.Time)
	for {
		f, err = d.DecodeVideo(480 * time.Millisecond)
		require.NoError(t, err)
		if !f.IsKeyFrame {
			break
		}
	}
	require.Equal(t, 480*time.Millisecond, f.Time)
}

func TestStreamsOrder(t *testing.T) {
	d, _ := open(t, opusFile(5, 5))
	streams, err := d.Streams()
	require.NoError(t, err)
	require.Len(t, streams, 1)
	pkt, err := d.ReadPacket()
	require.NoError(t, err)
	require.Equal(t, int8(0), pkt.Idx)
	require.True(t, bytes.Equal(oggtest.OpusPacket(0), pkt.Data))
}
