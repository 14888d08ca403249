package ogg

import (
	"bytes"

	"github.com/vdkogg/oggseek/av"
)

const Ext = ".ogg"

var CodecTypes = []av.CodecType{av.OPUS, av.VORBIS, av.THEORA}

// Probe reports whether b starts with an Ogg BOS page.
func Probe(b []byte) bool {
	return len(b) > 5 && bytes.HasPrefix(b, []byte("OggS")) && b[4] == 0 && b[5]&0x02 != 0
}
