package ogg

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/vdkogg/oggseek/av"
	"github.com/vdkogg/oggseek/codec/skeleton"
	"github.com/vdkogg/oggseek/format/ogg/oggio"
)

// Metadata describes the streams selected for output.
type Metadata struct {
	Audio av.AudioCodecData
	Video av.VideoCodecData
	// Duration is av.UnknownDuration for live and chained sources.
	Duration time.Duration
	// Indexed is set when a skeleton keypoint index serves seeking.
	Indexed bool
}

// Frame is a demuxed frame. Info is set on the first frame after the
// stream parameters changed.
type Frame struct {
	av.Packet
	Info *Metadata
}

// Demuxer reads audio and video frames from an Ogg physical stream.
//
// Decoding and seeking run on one goroutine. Buffered, IsChained,
// IsSeekable and Duration may be called concurrently with them.
type Demuxer struct {
	cfg Config
	src ByteSource
	pr  *oggio.PageReader

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	store    *codecStore
	chained  bool
	duration time.Duration
	// the first link is installed in store
	booted bool

	stage int
	meta  *Metadata

	audio *CodecState
	video *CodecState
	skel  *CodecState
	// keypoint index, nil when it does not cover every output stream
	index     *skeleton.CodecData
	dataStart int64

	audioIdx, videoIdx int8
	pendingBOS         *oggio.Page
	linkEnd            bool
	audioDone          bool
	videoDone          bool
	audioOffset        time.Duration
	lastAudioEnd       time.Duration
	newMeta            *Metadata

	peek [2]*av.Packet
}

func NewDemuxer(src ByteSource) *Demuxer {
	return NewDemuxerConfig(src, DefaultConfig())
}

func NewDemuxerConfig(src ByteSource, cfg Config) *Demuxer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Demuxer{
		cfg:      cfg.withDefaults(),
		src:      src,
		pr:       oggio.NewPageReader(liveReader{src}, src.Tell(), -1),
		ctx:      ctx,
		cancel:   cancel,
		store:    newCodecStore(),
		duration: av.UnknownDuration,
	}
}

func (self *Demuxer) alive(ctx context.Context) error {
	if self.ctx.Err() != nil {
		return ErrClosed
	}
	return ctx.Err()
}

// ReadMetadata reads the stream headers. It is called implicitly by the
// first decode, and returns the same Metadata on later calls.
func (self *Demuxer) ReadMetadata(ctx context.Context) (*Metadata, error) {
	if err := self.alive(ctx); err != nil {
		return nil, err
	}
	if self.stage == 0 {
		if err := self.bootstrap(ctx); err != nil {
			return nil, err
		}
		self.meta = self.metadata()
		self.audioIdx, self.videoIdx = 0, 0
		if self.audio != nil {
			self.videoIdx = 1
		}
		self.stage++
	}
	return self.meta, nil
}

func (self *Demuxer) ensureReady() error {
	_, err := self.ReadMetadata(self.ctx)
	return err
}

// Streams returns the codec data of the output streams, audio first.
func (self *Demuxer) Streams() (streams []av.CodecData, err error) {
	if err = self.ensureReady(); err != nil {
		return
	}
	if self.audio != nil {
		streams = append(streams, self.audio.CodecData())
	}
	if self.video != nil {
		streams = append(streams, self.video.CodecData())
	}
	return
}

// ReadPacket returns audio and video frames interleaved in time order.
// It returns io.EOF once every stream ended.
func (self *Demuxer) ReadPacket() (pkt av.Packet, err error) {
	if err = self.ensureReady(); err != nil {
		return
	}
	if self.audio != nil && self.peek[0] == nil && !self.audioDone {
		var f Frame
		if f, err = self.DecodeAudio(); err == nil {
			self.peek[0] = &f.Packet
		} else if err != ErrEndOfTrack {
			return
		}
	}
	if self.video != nil && self.peek[1] == nil && !self.videoDone {
		var f Frame
		if f, err = self.DecodeVideo(0); err == nil {
			self.peek[1] = &f.Packet
		} else if err != ErrEndOfTrack {
			return
		}
	}
	err = nil
	i := -1
	switch {
	case self.peek[0] != nil && self.peek[1] != nil:
		i = 0
		if self.peek[1].Time < self.peek[0].Time {
			i = 1
		}
	case self.peek[0] != nil:
		i = 0
	case self.peek[1] != nil:
		i = 1
	}
	if i < 0 {
		err = io.EOF
		return
	}
	pkt, self.peek[i] = *self.peek[i], nil
	return
}

// Duration returns the total duration or av.UnknownDuration.
func (self *Demuxer) Duration() time.Duration {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.duration
}

// IsChained reports whether more than one link was found.
func (self *Demuxer) IsChained() bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.chained
}

func (self *Demuxer) IsSeekable() bool {
	return self.src.Seekable() && self.src.Length() >= 0 && !self.IsChained()
}

// Close stops running and future operations.
func (self *Demuxer) Close() error {
	self.cancel()
	return nil
}
