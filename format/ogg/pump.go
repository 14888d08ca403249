package ogg

import (
	"io"
	"time"

	"github.com/vdkogg/oggseek/format/ogg/oggio"
)

// readPage reads the next page of the link and hands it to its stream.
// io.EOF marks the end of the link: the source ran out, or a BOS page of
// an unseen serial was found and is held for chain continuation.
func (self *Demuxer) readPage() error {
	if self.pendingBOS != nil || self.linkEnd {
		return io.EOF
	}
	page, skipped, err := self.pr.NextPage()
	if skipped > 0 {
		self.cfg.Logger.Debug("ogg: skipped bytes", "count", skipped, "offset", self.pr.Offset())
	}
	if err == io.EOF {
		self.endLink()
		return io.EOF
	}
	if err != nil {
		return err
	}
	self.mu.Lock()
	st := self.store.get(page.Serial)
	self.mu.Unlock()
	switch {
	case st == nil && page.BOS():
		self.pendingBOS = page
		self.endLink()
		return io.EOF
	case st == nil || !st.Active:
		return nil
	}
	return st.pageIn(page)
}

func (self *Demuxer) endLink() {
	self.linkEnd = self.pendingBOS == nil
	for _, st := range self.activeStates() {
		st.drain()
	}
}

// nextPacket returns the next stamped packet of st, io.EOF once the stream
// or the link has ended.
func (self *Demuxer) nextPacket(st *CodecState) (*packet, error) {
	for {
		if err := self.alive(self.ctx); err != nil {
			return nil, err
		}
		if pkt := st.packetOut(); pkt != nil {
			if pkt.EOS {
				st.eos = true
			}
			return pkt, nil
		}
		if st.eos {
			return nil, io.EOF
		}
		if err := self.readPage(); err != nil {
			if err == io.EOF {
				if pkt := st.packetOut(); pkt != nil {
					if pkt.EOS {
						st.eos = true
					}
					return pkt, nil
				}
			}
			return nil, err
		}
	}
}

// DecodeAudio returns the next audio frame. At the end of the link a
// following link with matching parameters is continued seamlessly; the
// first frame of the new link carries its Metadata.
func (self *Demuxer) DecodeAudio() (Frame, error) {
	if err := self.ensureReady(); err != nil {
		return Frame{}, err
	}
	for {
		if self.audio == nil || self.audioDone {
			return Frame{}, ErrEndOfTrack
		}
		pkt, err := self.nextPacket(self.audio)
		if err == io.EOF {
			res, err := self.continueChain()
			if err != nil {
				return Frame{}, err
			}
			if res.kind == chainContinued {
				self.newMeta = res.meta
				continue
			}
			self.audioDone = true
			return Frame{}, ErrEndOfTrack
		}
		if err != nil {
			return Frame{}, err
		}
		if pkt.header {
			continue
		}
		f := self.audio.frame(pkt)
		f.Idx = self.audioIdx
		f.Time += self.audioOffset
		self.lastAudioEnd = f.End()
		frame := Frame{Packet: f}
		if self.newMeta != nil {
			frame.Info, self.newMeta = self.newMeta, nil
		}
		return frame, nil
	}
}

// DecodeVideo returns the next video frame. Frames before threshold that
// are not keyframes are dropped.
func (self *Demuxer) DecodeVideo(threshold time.Duration) (Frame, error) {
	if err := self.ensureReady(); err != nil {
		return Frame{}, err
	}
	for {
		if self.video == nil || self.videoDone {
			return Frame{}, ErrEndOfTrack
		}
		pkt, err := self.nextPacket(self.video)
		if err == io.EOF {
			self.videoDone = true
			return Frame{}, ErrEndOfTrack
		}
		if err != nil {
			return Frame{}, err
		}
		if pkt.header {
			continue
		}
		f := self.video.frame(pkt)
		if !f.IsKeyFrame && f.Time < threshold {
			continue
		}
		f.Idx = self.videoIdx
		return Frame{Packet: f}, nil
	}
}

// skipToKeyFrame drops video packets up to the next keyframe, which is
// kept as the next frame.
func (self *Demuxer) skipToKeyFrame() error {
	for {
		pkt, err := self.nextPacket(self.video)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if !pkt.header && pkt.key {
			self.video.unread(pkt)
			return nil
		}
	}
}

// pageState returns the active state a page belongs to.
func (self *Demuxer) pageState(p *oggio.Page) *CodecState {
	self.mu.Lock()
	defer self.mu.Unlock()
	if st := self.store.get(p.Serial); st != nil && st.Active {
		return st
	}
	return nil
}
