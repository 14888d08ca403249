package ogg

import (
	"time"

	"github.com/vdkogg/oggseek/av"
	"github.com/vdkogg/oggseek/codec/opusparser"
	"github.com/vdkogg/oggseek/codec/skeleton"
	"github.com/vdkogg/oggseek/codec/theoraparser"
	"github.com/vdkogg/oggseek/codec/timescale"
	"github.com/vdkogg/oggseek/codec/vorbisparser"
	"github.com/vdkogg/oggseek/format/ogg/oggio"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindAudio
	KindVideo
	KindIndex
)

func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindVideo:
		return "video"
	case KindIndex:
		return "index"
	}
	return "unknown"
}

// codecHandler holds the codec specific parts of a CodecState. Granule
// values are always in the codec's own units.
type codecHandler interface {
	kind() Kind
	codecData() av.CodecData
	decodeHeader(pkt *oggio.Packet) (done bool, err error)
	isHeader(data []byte) bool
	isKeyFrame(data []byte) bool
	// duration returns the granule span of a data packet; it may depend on
	// the previous packet, so packets are passed in stream order.
	duration(data []byte) int64
	// endTime converts a granule to the end time of the data it covers.
	endTime(granule int64) (time.Duration, bool)
	spanTime(dur int64) time.Duration
	// backfill stamps pkts[:len-1] from the granule of the last packet.
	backfill(pkts []*packet)
	// advance returns the granule following g after a packet of span dur.
	advance(g int64, pkt *packet) int64
	reset()
}

// classify picks a handler from the first packet of a BOS page.
func classify(data []byte) codecHandler {
	switch {
	case vorbisparser.HeaderType(data) == vorbisparser.PacketIdentification:
		return &vorbisCodec{}
	case opusparser.IsHead(data):
		return &opusCodec{}
	case theoraparser.HeaderType(data) == theoraparser.PacketIdentification:
		return &theoraCodec{lastKey: -1}
	case skeleton.IsFishead(data):
		return &skeletonCodec{}
	}
	return nil
}

// audioBackfill walks backward from the stamped last packet subtracting
// packet durations.
func audioBackfill(pkts []*packet) {
	g := pkts[len(pkts)-1].Granule
	for i := len(pkts) - 1; i > 0; i-- {
		g -= pkts[i].dur
		pkts[i-1].Granule = g
	}
}

type opusCodec struct {
	head   *opusparser.CodecData
	header int
}

func (self *opusCodec) kind() Kind {
	return KindAudio
}

func (self *opusCodec) codecData() av.CodecData {
	if self.head == nil {
		return nil
	}
	return *self.head
}

func (self *opusCodec) decodeHeader(pkt *oggio.Packet) (bool, error) {
	switch self.header {
	case 0:
		head, err := opusparser.ParseHead(pkt.Data)
		if err != nil {
			return false, err
		}
		self.head = head
	case 1:
		if !opusparser.IsTags(pkt.Data) {
			return false, opusparser.ErrTagsMagic
		}
	}
	self.header++
	return self.header == 2, nil
}

func (self *opusCodec) isHeader(data []byte) bool {
	return opusparser.IsHead(data) || opusparser.IsTags(data)
}

func (self *opusCodec) isKeyFrame(data []byte) bool {
	return true
}

func (self *opusCodec) duration(data []byte) int64 {
	n, err := opusparser.PacketSamples(data)
	if err != nil {
		return 0
	}
	return n
}

func (self *opusCodec) endTime(granule int64) (time.Duration, bool) {
	if granule < 0 || self.head == nil {
		return 0, false
	}
	return timescale.FromScale(granule-int64(self.head.PreSkip), opusparser.SampleRate, 1), true
}

func (self *opusCodec) spanTime(dur int64) time.Duration {
	return timescale.FromScale(dur, opusparser.SampleRate, 1)
}

func (self *opusCodec) backfill(pkts []*packet) {
	audioBackfill(pkts)
}

func (self *opusCodec) advance(g int64, pkt *packet) int64 {
	return g + pkt.dur
}

func (self *opusCodec) reset() {}

type vorbisCodec struct {
	info      *vorbisparser.CodecData
	header    int
	prevBlock int
}

func (self *vorbisCodec) kind() Kind {
	return KindAudio
}

func (self *vorbisCodec) codecData() av.CodecData {
	if self.info == nil {
		return nil
	}
	return *self.info
}

func (self *vorbisCodec) decodeHeader(pkt *oggio.Packet) (bool, error) {
	var err error
	switch self.header {
	case 0:
		self.info, err = vorbisparser.ParseIdentification(pkt.Data)
	case 1:
		err = self.info.ParseComment(pkt.Data)
	case 2:
		err = self.info.ParseSetup(pkt.Data)
	}
	if err != nil {
		return false, err
	}
	self.header++
	return self.header == 3, nil
}

func (self *vorbisCodec) isHeader(data []byte) bool {
	return vorbisparser.IsHeader(data)
}

func (self *vorbisCodec) isKeyFrame(data []byte) bool {
	return true
}

func (self *vorbisCodec) duration(data []byte) int64 {
	n, block, err := self.info.PacketSamples(data, self.prevBlock)
	if err != nil {
		return 0
	}
	self.prevBlock = block
	return n
}

func (self *vorbisCodec) endTime(granule int64) (time.Duration, bool) {
	if granule < 0 || self.info == nil {
		return 0, false
	}
	return timescale.FromScale(granule, uint64(self.info.SampleRate_), 1), true
}

func (self *vorbisCodec) spanTime(dur int64) time.Duration {
	return timescale.FromScale(dur, uint64(self.info.SampleRate_), 1)
}

func (self *vorbisCodec) backfill(pkts []*packet) {
	audioBackfill(pkts)
}

func (self *vorbisCodec) advance(g int64, pkt *packet) int64 {
	return g + pkt.dur
}

func (self *vorbisCodec) reset() {
	self.prevBlock = 0
}

type theoraCodec struct {
	info    *theoraparser.CodecData
	header  int
	lastKey int64
}

func (self *theoraCodec) kind() Kind {
	return KindVideo
}

func (self *theoraCodec) codecData() av.CodecData {
	if self.info == nil {
		return nil
	}
	return *self.info
}

func (self *theoraCodec) decodeHeader(pkt *oggio.Packet) (bool, error) {
	switch self.header {
	case 0:
		info, err := theoraparser.ParseIdentification(pkt.Data)
		if err != nil {
			return false, err
		}
		self.info = info
	case 1:
		if theoraparser.HeaderType(pkt.Data) != theoraparser.PacketComment {
			return false, theoraparser.ErrHeaderMagic
		}
	case 2:
		if theoraparser.HeaderType(pkt.Data) != theoraparser.PacketSetup {
			return false, theoraparser.ErrHeaderMagic
		}
	}
	self.header++
	return self.header == 3, nil
}

func (self *theoraCodec) isHeader(data []byte) bool {
	return theoraparser.IsHeader(data)
}

func (self *theoraCodec) isKeyFrame(data []byte) bool {
	return theoraparser.IsKeyFrame(data)
}

func (self *theoraCodec) duration(data []byte) int64 {
	return 1
}

func (self *theoraCodec) endTime(granule int64) (time.Duration, bool) {
	if granule < 0 || self.info == nil {
		return 0, false
	}
	return self.info.EndTime(granule), true
}

func (self *theoraCodec) spanTime(dur int64) time.Duration {
	return time.Duration(dur) * self.info.FrameDuration()
}

// backfill numbers the frames backward from the stamped packet, then
// derives each frame's keyframe walking forward.
func (self *theoraCodec) backfill(pkts []*packet) {
	last := pkts[len(pkts)-1]
	n := int64(len(pkts))
	lastFrame := self.info.Frame(last.Granule)
	lastKey := self.info.KeyFrame(last.Granule)

	keyAhead := make([]bool, n)
	for i := n - 2; i >= 0; i-- {
		keyAhead[i] = keyAhead[i+1] || pkts[i+1].key
	}
	for i := int64(0); i < n-1; i++ {
		frame := lastFrame - (n - 1 - i)
		if pkts[i].key {
			self.lastKey = frame
		}
		key := self.lastKey
		if key < 0 {
			if keyAhead[i] {
				key = frame
			} else {
				key = lastKey
			}
		}
		pkts[i].Granule = self.info.Granule(frame, key)
	}
	if last.key {
		self.lastKey = lastFrame
	} else if self.lastKey < 0 {
		self.lastKey = lastKey
	}
}

func (self *theoraCodec) advance(g int64, pkt *packet) int64 {
	frame := self.info.Frame(g) + 1
	key := self.info.KeyFrame(g)
	if pkt.key {
		key = frame
	}
	return self.info.Granule(frame, key)
}

func (self *theoraCodec) reset() {
	self.lastKey = -1
}

type skeletonCodec struct {
	info *skeleton.CodecData
}

func (self *skeletonCodec) kind() Kind {
	return KindIndex
}

func (self *skeletonCodec) codecData() av.CodecData {
	if self.info == nil {
		return nil
	}
	return *self.info
}

func (self *skeletonCodec) decodeHeader(pkt *oggio.Packet) (bool, error) {
	data := pkt.Data
	switch {
	case self.info == nil:
		info, err := skeleton.ParseFishead(data)
		if err != nil {
			return false, err
		}
		self.info = info
	case skeleton.IsFisbone(data):
		if _, err := self.info.ParseFisbone(data); err != nil {
			return false, err
		}
	case skeleton.IsIndex(data):
		if _, err := self.info.ParseIndex(data); err != nil {
			return false, err
		}
	}
	return pkt.EOS, nil
}

func (self *skeletonCodec) isHeader(data []byte) bool {
	return true
}

func (self *skeletonCodec) isKeyFrame(data []byte) bool {
	return false
}

func (self *skeletonCodec) duration(data []byte) int64 {
	return 0
}

func (self *skeletonCodec) endTime(granule int64) (time.Duration, bool) {
	return 0, false
}

func (self *skeletonCodec) spanTime(dur int64) time.Duration {
	return 0
}

func (self *skeletonCodec) backfill(pkts []*packet) {}

func (self *skeletonCodec) advance(g int64, pkt *packet) int64 {
	return g
}

func (self *skeletonCodec) reset() {}
