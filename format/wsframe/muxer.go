// Package wsframe streams demuxed packets to a websocket client. The first
// message is a JSON text header describing the streams, every following
// message is one binary frame.
package wsframe

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/vdkogg/oggseek/av"
)

// HeaderSize is the length of the binary frame prefix.
const HeaderSize = 18

const flagKeyFrame = 0x01

var ErrShortFrame = errors.New("wsframe: short frame")

type StreamInfo struct {
	Idx        int    `json:"idx"`
	Codec      string `json:"codec"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
}

type Header struct {
	Session string       `json:"session"`
	Streams []StreamInfo `json:"streams"`
	// Duration in milliseconds, -1 when unknown.
	Duration int64 `json:"duration"`
}

type Muxer struct {
	conn     net.Conn
	session  string
	duration time.Duration
	log      *slog.Logger
}

func NewMuxer(r *http.Request, w http.ResponseWriter) (*Muxer, error) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return nil, err
	}
	m := &Muxer{
		conn:     conn,
		session:  uuid.NewString(),
		duration: av.UnknownDuration,
	}
	m.log = slog.With("session", m.session, "remote", r.RemoteAddr)
	go func() {
		defer conn.Close()
		for {
			if _, _, err := wsutil.NextReader(conn, ws.StateServerSide); err != nil {
				m.log.Debug("wsframe: client gone", "error", err)
				return
			}
		}
	}()
	return m, nil
}

func (m *Muxer) Session() string {
	return m.session
}

// SetDuration sets the duration announced by WriteHeader.
func (m *Muxer) SetDuration(d time.Duration) {
	m.duration = d
}

func (m *Muxer) WriteHeader(streams []av.CodecData) error {
	hdr := Header{
		Session:  m.session,
		Streams:  Describe(streams),
		Duration: -1,
	}
	if m.duration != av.UnknownDuration {
		hdr.Duration = m.duration.Milliseconds()
	}
	meta, err := json.Marshal(hdr)
	if err != nil {
		return err
	}
	return wsutil.WriteServerText(m.conn, meta)
}

func (m *Muxer) WritePacket(pkt av.Packet) error {
	return wsutil.WriteServerBinary(m.conn, Marshal(pkt))
}

func (m *Muxer) WriteTrailer() error {
	return m.conn.Close()
}

func Describe(streams []av.CodecData) []StreamInfo {
	out := make([]StreamInfo, 0, len(streams))
	for i, c := range streams {
		info := StreamInfo{Idx: i, Codec: c.Type().String()}
		switch c := c.(type) {
		case av.AudioCodecData:
			info.SampleRate, info.Channels = c.SampleRate(), c.Channels()
		case av.VideoCodecData:
			info.Width, info.Height = c.Width(), c.Height()
		}
		out = append(out, info)
	}
	return out
}

// Marshal encodes pkt as idx(1) flags(1) time_us(8) duration_us(8) data.
func Marshal(pkt av.Packet) []byte {
	b := make([]byte, HeaderSize+len(pkt.Data))
	b[0] = byte(pkt.Idx)
	if pkt.IsKeyFrame {
		b[1] |= flagKeyFrame
	}
	binary.BigEndian.PutUint64(b[2:], uint64(pkt.Time.Microseconds()))
	binary.BigEndian.PutUint64(b[10:], uint64(pkt.Duration.Microseconds()))
	copy(b[HeaderSize:], pkt.Data)
	return b
}

func Unmarshal(b []byte) (pkt av.Packet, err error) {
	if len(b) < HeaderSize {
		err = ErrShortFrame
		return
	}
	pkt.Idx = int8(b[0])
	pkt.IsKeyFrame = b[1]&flagKeyFrame != 0
	pkt.Time = time.Duration(int64(binary.BigEndian.Uint64(b[2:]))) * time.Microsecond
	pkt.Duration = time.Duration(int64(binary.BigEndian.Uint64(b[10:]))) * time.Microsecond
	pkt.Data = b[HeaderSize:]
	return
}
