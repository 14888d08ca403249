package source

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vdkogg/oggseek/format/ogg"
)

func TestMemory(t *testing.T) {
	m := NewMemory([]byte("0123456789"))
	require.Equal(t, int64(10), m.Length())
	require.True(t, m.Seekable())

	buf := make([]byte, 4)
	n, err := m.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, int64(4), m.Tell())

	require.NoError(t, m.Seek(8))
	n, err = m.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "89", string(buf[:n]))
	_, err = m.Read(buf)
	require.Equal(t, io.EOF, err)
	require.ErrorIs(t, m.Seek(11), ErrOutOfRange)

	m.SetCached(ogg.ByteRange{Start: 2, End: 6})
	require.NoError(t, m.ReadFromCache(buf, 2))
	require.Equal(t, "2345", string(buf))
	require.ErrorIs(t, m.ReadFromCache(buf, 3), ErrNotCached)
	// cache reads leave the live cursor alone
	require.Equal(t, int64(10), m.Tell())

	m.SetLive(true)
	require.Equal(t, int64(-1), m.Length())
	m.SetSeekable(false)
	require.False(t, m.Seekable())
}

func TestFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "a.ogg")
	require.NoError(t, os.WriteFile(name, []byte("abcdef"), 0o644))

	f, err := Open(name)
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, int64(6), f.Length())
	require.Equal(t, []ogg.ByteRange{{Start: 0, End: 6}}, f.CachedRanges())

	require.NoError(t, f.Seek(4))
	buf := make([]byte, 4)
	n, err := f.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "ef", string(buf[:n]))
	_, err = f.Read(buf)
	require.Equal(t, io.EOF, err)

	require.NoError(t, f.ReadFromCache(buf[:3], 1))
	require.Equal(t, "bcd", string(buf[:3]))
	require.ErrorIs(t, f.ReadFromCache(buf, 4), ErrNotCached)
}
