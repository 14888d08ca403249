package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vdkogg/oggseek/av"
	"github.com/vdkogg/oggseek/format/ogg"
	"github.com/vdkogg/oggseek/format/ogg/oggtest"
	"github.com/vdkogg/oggseek/format/ogg/source"
)

func testConfig() ogg.Config {
	return ogg.Config{PageStep: 64, EndScanStep: 256}
}

func opusPath(t *testing.T) string {
	w := oggtest.NewWriter()
	w.OpusStream(1, 2, 0, 100, 10)
	path := filepath.Join(t.TempDir(), "a.ogg")
	require.NoError(t, os.WriteFile(path, w.Bytes(), 0o600))
	return path
}

func TestInspect(t *testing.T) {
	var out bytes.Buffer
	err := inspect(context.Background(), &out, opusPath(t), testConfig(), 0, 3)
	require.NoError(t, err)
	s := out.String()
	require.Contains(t, s, "audio     Opus 48000 Hz 2 ch\n")
	require.Contains(t, s, "duration  2s\n")
	require.Contains(t, s, "seekable  true\n")
	require.Equal(t, 3, strings.Count(s, "frame     #0"))
	require.NotContains(t, s, "seek      ")
}

func TestInspectSeek(t *testing.T) {
	var out bytes.Buffer
	err := inspect(context.Background(), &out, opusPath(t), testConfig(), time.Second, 1)
	require.NoError(t, err)
	require.Contains(t, out.String(), "seek      1s -> offset ")
}

func TestInspectMissingFile(t *testing.T) {
	err := inspect(context.Background(), &bytes.Buffer{}, filepath.Join(t.TempDir(), "none.ogg"), testConfig(), 0, 0)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestPump(t *testing.T) {
	f, err := source.Open(opusPath(t))
	require.NoError(t, err)
	defer f.Close()
	d := ogg.NewDemuxerConfig(f, testConfig())
	defer d.Close()

	var last time.Duration
	n, err := pump(context.Background(), d, func(pkt av.Packet) error {
		require.GreaterOrEqual(t, pkt.Time, last)
		last = pkt.Time
		return nil
	}, false)
	require.NoError(t, err)
	require.Equal(t, 100, n)
}

func TestPumpWriteError(t *testing.T) {
	f, err := source.Open(opusPath(t))
	require.NoError(t, err)
	defer f.Close()
	d := ogg.NewDemuxerConfig(f, testConfig())
	defer d.Close()

	boom := errors.New("boom")
	n, err := pump(context.Background(), d, func(av.Packet) error { return boom }, false)
	require.ErrorIs(t, err, boom)
	require.Zero(t, n)
}
