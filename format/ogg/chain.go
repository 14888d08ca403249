package ogg

import (
	"io"

	"github.com/vdkogg/oggseek/av"
)

type chainKind int

const (
	chainNone chainKind = iota
	chainContinued
	chainFailed
)

// chainResult reports what happened at the end of a link.
type chainResult struct {
	kind chainKind
	meta *Metadata
}

// continueChain looks for the next link once the current audio stream
// ended, and switches to it when it carries audio of the same shape.
func (self *Demuxer) continueChain() (chainResult, error) {
	if self.video != nil || self.skel != nil || self.audio == nil {
		return chainResult{kind: chainNone}, nil
	}
	page := self.pendingBOS
	self.pendingBOS = nil
	for page == nil {
		if err := self.alive(self.ctx); err != nil {
			return chainResult{}, err
		}
		p, _, err := self.pr.NextPage()
		if err == io.EOF {
			return chainResult{kind: chainNone}, nil
		}
		if err != nil {
			return chainResult{}, err
		}
		self.mu.Lock()
		known := self.store.contains(p.Serial)
		self.mu.Unlock()
		if known {
			continue
		}
		if !p.BOS() {
			self.cfg.Logger.Debug("ogg: unexpected page after end of stream", "offset", p.Offset, "serial", p.Serial)
			return chainResult{kind: chainFailed}, nil
		}
		page = p
	}

	self.setChained()
	l, err := self.readLink(self.ctx, page)
	if err != nil {
		if err == ErrClosed {
			return chainResult{}, err
		}
		self.cfg.Logger.Debug("ogg: next link unusable", "offset", page.Offset, "error", err)
		return chainResult{kind: chainFailed}, nil
	}
	if !compatible(self.audio, l) {
		self.cfg.Logger.Debug("ogg: next link changes audio parameters", "offset", page.Offset)
		return chainResult{kind: chainFailed}, nil
	}

	self.install(l)
	self.audioOffset = self.lastAudioEnd
	self.cfg.Logger.Debug("ogg: continued chained stream",
		"offset", page.Offset,
		"serial", l.audio.Serial,
		"time_offset", self.audioOffset)
	return chainResult{kind: chainContinued, meta: self.metadata()}, nil
}

func compatible(old *CodecState, l *link) bool {
	if l.audio == nil || l.video != nil || old.sampleRate() == 0 {
		return false
	}
	return old.sampleRate() == l.audio.sampleRate() && old.channels() == l.audio.channels()
}

func (self *Demuxer) setChained() {
	self.mu.Lock()
	self.chained = true
	self.duration = av.UnknownDuration
	self.mu.Unlock()
}
