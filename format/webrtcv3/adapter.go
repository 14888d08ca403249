package webrtc

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"

	"github.com/vdkogg/oggseek/av"
	"github.com/vdkogg/oggseek/codec/opusparser"
	"github.com/vdkogg/oggseek/codec/timescale"
)

const (
	// MimeTypeOpus Opus MIME type
	MimeTypeOpus = webrtc.MimeTypeOpus

	opusPayloadType = 111
)

var (
	ErrorNotFound          = errors.New("WebRTC Stream Not Found")
	ErrorCodecNotSupported = errors.New("WebRTC Codec Not Supported")
	ErrorClientOffline     = errors.New("WebRTC Client Offline")
	ErrorNotTrackAvailable = errors.New("WebRTC Not Track Available")
	ErrorGatherTimeout     = errors.New("WebRTC ICE gathering timeout")
)

// Muxer forwards demuxed Opus frames to a browser peer. Streams of other
// codecs are skipped; browsers do not accept Vorbis or Theora.
type Muxer struct {
	mu        sync.Mutex
	streams   map[int8]*Stream
	status    webrtc.ICEConnectionState
	stop      bool
	pc        *webrtc.PeerConnection
	session   string
	ClientACK *time.Timer
	StreamACK *time.Timer
}

type Stream struct {
	codec av.CodecData
	track *webrtc.TrackLocalStaticRTP
	seq   uint16
	// media time of the first packet, RTP timestamps count from it
	base    time.Duration
	started bool
}

func NewMuxer() *Muxer {
	tmp := Muxer{
		ClientACK: time.NewTimer(time.Second * 20),
		StreamACK: time.NewTimer(time.Second * 20),
		streams:   make(map[int8]*Stream),
		session:   uuid.NewString(),
	}
	go tmp.WaitCloser()
	return &tmp
}

// newAPI builds an API whose media engine only offers Opus.
func newAPI() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    MimeTypeOpus,
			ClockRate:   opusparser.SampleRate,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: opusPayloadType,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, err
	}
	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, err
	}
	return webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(i)), nil
}

// WriteHeader answers the base64 encoded SDP offer and returns the base64
// encoded answer.
func (element *Muxer) WriteHeader(streams []av.CodecData, sdp64 string) (string, error) {
	var WriteHeaderSuccess bool
	if len(streams) == 0 {
		return "", ErrorNotFound
	}
	sdpB, err := base64.StdEncoding.DecodeString(sdp64)
	if err != nil {
		return "", err
	}
	offer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  string(sdpB),
	}
	api, err := newAPI()
	if err != nil {
		return "", err
	}
	peerConnection, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return "", err
	}
	element.mu.Lock()
	element.pc = peerConnection
	element.mu.Unlock()
	defer func() {
		if !WriteHeaderSuccess {
			if err := element.Close(); err != nil {
				slog.Warn("webrtc: close", "session", element.session, "error", err)
			}
		}
	}()
	for i, codec := range streams {
		if codec.Type() != av.OPUS {
			slog.Debug("webrtc: skipping stream", "session", element.session, "codec", codec.Type())
			continue
		}
		channels := uint16(2)
		if a, ok := codec.(av.AudioCodecData); ok && a.Channels() == 1 {
			channels = 1
		}
		track, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{
			MimeType:  MimeTypeOpus,
			ClockRate: opusparser.SampleRate,
			Channels:  channels,
		}, "audio", element.session)
		if err != nil {
			return "", err
		}
		if _, err = peerConnection.AddTrack(track); err != nil {
			return "", err
		}
		element.streams[int8(i)] = &Stream{track: track, codec: codec}
	}
	if len(element.streams) == 0 {
		return "", ErrorNotTrackAvailable
	}
	peerConnection.OnICEConnectionStateChange(func(connectionState webrtc.ICEConnectionState) {
		element.mu.Lock()
		element.status = connectionState
		element.mu.Unlock()
		if connectionState == webrtc.ICEConnectionStateDisconnected {
			element.Close()
		}
	})
	peerConnection.OnDataChannel(func(d *webrtc.DataChannel) {
		d.OnMessage(func(msg webrtc.DataChannelMessage) {
			element.ClientACK.Reset(5 * time.Second)
		})
	})

	if err = peerConnection.SetRemoteDescription(offer); err != nil {
		return "", err
	}
	gatherCompletePromise := webrtc.GatheringCompletePromise(peerConnection)
	answer, err := peerConnection.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err = peerConnection.SetLocalDescription(answer); err != nil {
		return "", err
	}
	waitT := time.NewTimer(time.Second * 10)
	defer waitT.Stop()
	select {
	case <-waitT.C:
		return "", ErrorGatherTimeout
	case <-gatherCompletePromise:
	}
	resp := peerConnection.LocalDescription()
	WriteHeaderSuccess = true
	return base64.StdEncoding.EncodeToString([]byte(resp.SDP)), nil
}

// WritePacket sends pkt as one RTP packet. The RTP timestamp follows the
// packet time, so gaps after a seek show up as gaps on the wire.
func (element *Muxer) WritePacket(pkt av.Packet) (err error) {
	element.mu.Lock()
	stop, status := element.stop, element.status
	element.mu.Unlock()
	if stop {
		return ErrorClientOffline
	}
	if status != webrtc.ICEConnectionStateConnected {
		return nil
	}
	tmp, ok := element.streams[pkt.Idx]
	if !ok {
		return nil
	}
	if tmp.codec.Type() != av.OPUS {
		return ErrorCodecNotSupported
	}
	element.StreamACK.Reset(10 * time.Second)
	if err = tmp.track.WriteRTP(tmp.packet(pkt)); err != nil {
		element.Close()
	}
	return err
}

func (s *Stream) packet(pkt av.Packet) *rtp.Packet {
	if !s.started {
		s.base, s.started = pkt.Time, true
	}
	rel := pkt.Time - s.base
	if rel < 0 {
		rel = 0
	}
	s.seq++
	return &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    opusPayloadType,
			SequenceNumber: s.seq,
			Timestamp:      uint32(timescale.ToScale(rel, opusparser.SampleRate, 1)),
		},
		Payload: pkt.Data,
	}
}

func (element *Muxer) WaitCloser() {
	waitT := time.NewTimer(time.Second * 10)
	for {
		select {
		case <-waitT.C:
			element.mu.Lock()
			stop := element.stop
			element.mu.Unlock()
			if stop {
				return
			}
			waitT.Reset(time.Second * 10)
		case <-element.StreamACK.C:
			element.Close()
		case <-element.ClientACK.C:
			element.Close()
		}
	}
}

func (element *Muxer) Close() error {
	element.mu.Lock()
	element.stop = true
	pc := element.pc
	element.pc = nil
	element.mu.Unlock()
	if pc != nil {
		return pc.Close()
	}
	return nil
}
