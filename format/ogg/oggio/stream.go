package oggio

import "errors"

var ErrSerialMismatch = errors.New("oggio: page belongs to another stream")

// Packet is a reassembled packet of one logical stream. Granule is -1 unless
// the packet was the last one completed on its page.
type Packet struct {
	Data    []byte
	Granule int64
	BOS     bool
	EOS     bool
	Serial  uint32
	// No counts packets completed on the stream since the last reset.
	No int64
	// Offset is the position of the page that completed the packet.
	Offset int64
}

// Stream reassembles the packets of one logical stream from its pages.
type Stream struct {
	Serial uint32

	partial  []byte
	inPacket bool
	started  bool
	seq      uint32
	packetNo int64
	pending  []*Packet
}

func NewStream(serial uint32) *Stream {
	return &Stream{Serial: serial}
}

// PageIn splits a page into packets. A gap in the page sequence drops the
// packet in progress and the orphaned continuation that follows it.
func (self *Stream) PageIn(p *Page) error {
	if p.Serial != self.Serial {
		return ErrSerialMismatch
	}
	if self.started && p.Sequence != self.seq+1 {
		self.partial, self.inPacket = nil, false
	}
	self.started = true
	self.seq = p.Sequence

	skip := false
	if p.Continued() {
		skip = !self.inPacket
	} else if self.inPacket {
		// the previous packet was never finished
		self.partial, self.inPacket = nil, false
	}

	var done []*Packet
	pos := 0
	for _, seg := range p.Segments {
		n := int(seg)
		data := p.Body[pos : pos+n]
		pos += n
		if skip {
			if seg < MaxSegmentSize {
				skip = false
			}
			continue
		}
		self.partial = append(self.partial, data...)
		self.inPacket = true
		if seg < MaxSegmentSize {
			done = append(done, &Packet{
				Data:    self.partial,
				Granule: -1,
				Serial:  self.Serial,
				No:      self.packetNo,
				Offset:  p.Offset,
			})
			self.packetNo++
			self.partial, self.inPacket = nil, false
		}
	}
	if len(done) > 0 {
		if p.BOS() && !p.Continued() {
			done[0].BOS = true
		}
		last := done[len(done)-1]
		last.Granule = p.Granule
		last.EOS = p.EOS()
	}
	self.pending = append(self.pending, done...)
	return nil
}

// PacketOut returns the next complete packet, or nil.
func (self *Stream) PacketOut() *Packet {
	if len(self.pending) == 0 {
		return nil
	}
	pkt := self.pending[0]
	self.pending[0] = nil
	self.pending = self.pending[1:]
	return pkt
}

func (self *Stream) Pending() int {
	return len(self.pending)
}

// Reset forgets buffered data and the page sequence, as needed after a seek.
func (self *Stream) Reset() {
	self.partial, self.inPacket = nil, false
	self.started = false
	self.pending = nil
}
