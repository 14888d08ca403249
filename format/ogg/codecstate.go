package ogg

import (
	"time"

	"github.com/vdkogg/oggseek/av"
	"github.com/vdkogg/oggseek/format/ogg/oggio"
)

// packet is a reassembled packet plus what the codec derived from it.
type packet struct {
	*oggio.Packet
	dur    int64
	key    bool
	header bool
}

// CodecState tracks one logical stream: packet reassembly, header progress
// and granule reconstruction.
type CodecState struct {
	Serial      uint32
	Kind        Kind
	Active      bool
	HeadersDone bool

	codec  codecHandler
	stream *oggio.Stream
	// packets straight from the stream, not yet looked at
	raw []*oggio.Packet
	// data packets waiting for a page granule to be stamped
	unstamped []*packet
	ready     []*packet
	// granule of the last stamped packet, -1 when unknown
	lastGranule int64
	// the EOS packet was handed out
	eos bool
}

// newCodecState creates the state for the stream whose BOS page is p and
// classifies it from the page's first packet.
func newCodecState(p *oggio.Page) (*CodecState, error) {
	st := &CodecState{
		Serial:      p.Serial,
		stream:      oggio.NewStream(p.Serial),
		lastGranule: -1,
	}
	if err := st.pageIn(p); err != nil {
		return nil, err
	}
	if len(st.raw) > 0 {
		st.codec = classify(st.raw[0].Data)
	}
	if st.codec != nil {
		st.Kind = st.codec.kind()
	}
	return st, nil
}

func (self *CodecState) CodecData() av.CodecData {
	if self.codec == nil {
		return nil
	}
	return self.codec.codecData()
}

func (self *CodecState) pageIn(p *oggio.Page) error {
	if err := self.stream.PageIn(p); err != nil {
		return err
	}
	for pkt := self.stream.PacketOut(); pkt != nil; pkt = self.stream.PacketOut() {
		self.raw = append(self.raw, pkt)
	}
	return nil
}

// packetOut returns the next packet. Before the headers are complete the
// raw packets are returned as they are; afterwards only stamped packets
// come out.
func (self *CodecState) packetOut() *packet {
	if !self.HeadersDone || self.codec == nil {
		if len(self.raw) == 0 {
			return nil
		}
		pkt := self.raw[0]
		self.raw = self.raw[1:]
		return &packet{Packet: pkt, header: self.codec != nil && self.codec.isHeader(pkt.Data)}
	}
	for len(self.ready) == 0 && len(self.raw) > 0 {
		pkt := self.raw[0]
		self.raw = self.raw[1:]
		self.stamp(pkt)
	}
	if len(self.ready) == 0 {
		return nil
	}
	pkt := self.ready[0]
	self.ready[0] = nil
	self.ready = self.ready[1:]
	return pkt
}

func (self *CodecState) stamp(raw *oggio.Packet) {
	pkt := &packet{Packet: raw, header: self.codec.isHeader(raw.Data)}
	if !pkt.header {
		pkt.dur = self.codec.duration(raw.Data)
		pkt.key = self.codec.isKeyFrame(raw.Data)
	}
	self.unstamped = append(self.unstamped, pkt)
	if raw.Granule < 0 {
		return
	}
	self.codec.backfill(self.unstamped)
	self.lastGranule = raw.Granule
	self.ready = append(self.ready, self.unstamped...)
	self.unstamped = nil
}

// drain stamps packets left without a page granule at the end of the
// stream by counting forward from the last known granule.
func (self *CodecState) drain() {
	if !self.HeadersDone || self.codec == nil {
		return
	}
	for len(self.raw) > 0 {
		pkt := self.raw[0]
		self.raw = self.raw[1:]
		self.stamp(pkt)
	}
	if len(self.unstamped) == 0 {
		return
	}
	if self.lastGranule >= 0 {
		g := self.lastGranule
		for _, pkt := range self.unstamped {
			g = self.codec.advance(g, pkt)
			pkt.Granule = g
		}
		self.ready = append(self.ready, self.unstamped...)
	}
	self.unstamped = nil
}

// unread puts pkt back at the head of the queue.
func (self *CodecState) unread(pkt *packet) {
	self.ready = append([]*packet{pkt}, self.ready...)
}

// queued returns the number of packets buffered in any stage.
func (self *CodecState) queued() int {
	return len(self.raw) + len(self.unstamped) + len(self.ready)
}

// reset drops everything buffered, keeping the header information.
func (self *CodecState) reset() {
	self.stream.Reset()
	self.raw, self.unstamped, self.ready = nil, nil, nil
	self.lastGranule = -1
	self.eos = false
	if self.codec != nil {
		self.codec.reset()
	}
}

// Time converts a granule to the end time of the data it covers.
func (self *CodecState) Time(granule int64) (time.Duration, bool) {
	if self.codec == nil || !self.HeadersDone {
		return 0, false
	}
	return self.codec.endTime(granule)
}

// PageTime returns the time of a page of this stream, if it can be derived
// from its granule.
func (self *CodecState) PageTime(p *oggio.Page) (time.Duration, bool) {
	if p.Granule <= 0 {
		return 0, false
	}
	return self.Time(p.Granule)
}

// frame converts a stamped data packet to an output packet.
func (self *CodecState) frame(pkt *packet) av.Packet {
	end, _ := self.codec.endTime(pkt.Granule)
	dur := self.codec.spanTime(pkt.dur)
	start := end - dur
	if start < 0 {
		start = 0
	}
	if end < start {
		end = start
	}
	return av.Packet{
		IsKeyFrame: pkt.key,
		Time:       start,
		Duration:   end - start,
		Data:       pkt.Data,
	}
}

func (self *CodecState) sampleRate() int {
	if a, ok := self.CodecData().(av.AudioCodecData); ok {
		return a.SampleRate()
	}
	return 0
}

func (self *CodecState) channels() int {
	if a, ok := self.CodecData().(av.AudioCodecData); ok {
		return a.Channels()
	}
	return 0
}
