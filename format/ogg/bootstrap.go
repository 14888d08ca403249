package ogg

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/vdkogg/oggseek/av"
	"github.com/vdkogg/oggseek/codec/skeleton"
	"github.com/vdkogg/oggseek/format/ogg/oggio"
)

// link is one bootstrapped chain link: its streams and where its data
// begins.
type link struct {
	states    []*CodecState
	audio     *CodecState
	video     *CodecState
	skel      *CodecState
	dataStart int64
}

func (l *link) active() []*CodecState {
	var out []*CodecState
	if l.audio != nil {
		out = append(out, l.audio)
	}
	if l.video != nil {
		out = append(out, l.video)
	}
	return out
}

// skeleton returns the parsed skeleton of the link, or nil.
func (l *link) skeleton() *skeleton.CodecData {
	if l.skel == nil {
		return nil
	}
	if c, ok := l.skel.codec.(*skeletonCodec); ok {
		return c.info
	}
	return nil
}

// readLink bootstraps a link from the current reader position. first, when
// not nil, is a BOS page already read.
func (self *Demuxer) readLink(ctx context.Context, first *oggio.Page) (*link, error) {
	l := &link{}
	serials := make(map[uint32]*CodecState)

	// BOS pages
	page := first
	for {
		if err := self.alive(ctx); err != nil {
			return nil, err
		}
		if page == nil {
			var err error
			if page, _, err = self.pr.NextPage(); err != nil {
				if err == io.EOF && len(l.states) > 0 {
					page = nil
					break
				}
				if err == io.EOF {
					return nil, ErrNoStreams
				}
				return nil, err
			}
		}
		if !page.BOS() {
			if len(l.states) == 0 {
				self.cfg.Logger.Debug("ogg: skipping page before first BOS", "offset", page.Offset, "serial", page.Serial)
				page = nil
				continue
			}
			break
		}
		if _, ok := serials[page.Serial]; !ok {
			st, err := newCodecState(page)
			if err != nil {
				return nil, err
			}
			serials[page.Serial] = st
			l.states = append(l.states, st)
		}
		page = nil
	}

	for _, st := range l.states {
		switch {
		case st.Kind == KindAudio && l.audio == nil:
			l.audio, st.Active = st, true
		case st.Kind == KindVideo && l.video == nil:
			l.video, st.Active = st, true
		case st.Kind == KindIndex && l.skel == nil:
			l.skel = st
		default:
			self.cfg.Logger.Debug("ogg: ignoring stream", "serial", st.Serial, "kind", st.Kind)
		}
	}

	// headers
	wanted := func(st *CodecState) bool {
		return st == l.audio || st == l.video || st == l.skel
	}
	fail := func(st *CodecState, err error) {
		herr := &HeaderError{Serial: st.Serial, Err: err}
		self.cfg.Logger.Warn("ogg: stream disabled", "error", herr)
		st.Active = false
		switch st {
		case l.audio:
			l.audio = nil
		case l.video:
			l.video = nil
		case l.skel:
			l.skel = nil
		}
	}
	decode := func(st *CodecState) {
		for !st.HeadersDone && wanted(st) {
			pkt := st.packetOut()
			if pkt == nil {
				return
			}
			done, err := st.codec.decodeHeader(pkt.Packet)
			if err != nil {
				fail(st, err)
				return
			}
			st.HeadersDone = done
		}
	}
	pending := func() bool {
		for _, st := range []*CodecState{l.audio, l.video, l.skel} {
			if st != nil && !st.HeadersDone {
				return true
			}
		}
		return false
	}

	for _, st := range l.states {
		decode(st)
	}
	for pending() {
		if err := self.alive(ctx); err != nil {
			return nil, err
		}
		if page == nil {
			var err error
			page, _, err = self.pr.NextPage()
			if err == io.EOF {
				for _, st := range []*CodecState{l.audio, l.video, l.skel} {
					if st != nil && !st.HeadersDone {
						fail(st, io.ErrUnexpectedEOF)
					}
				}
				break
			}
			if err != nil {
				return nil, err
			}
		}
		st := serials[page.Serial]
		if st != nil && wanted(st) {
			if err := st.pageIn(page); err != nil {
				return nil, err
			}
			decode(st)
		} else if st == nil && page.BOS() {
			self.cfg.Logger.Debug("ogg: BOS page after data", "offset", page.Offset, "serial", page.Serial)
		}
		page = nil
	}
	// a page read past the BOS pages that no header needed
	if page != nil {
		if st := serials[page.Serial]; st != nil && wanted(st) {
			if err := st.pageIn(page); err != nil {
				return nil, err
			}
		}
	}
	if l.skel != nil {
		l.skel.Active = false
	}
	if l.audio == nil && l.video == nil {
		return nil, ErrNoStreams
	}

	l.dataStart = self.pr.Offset()
	if page != nil && page.Offset < l.dataStart {
		l.dataStart = page.Offset
	}
	for _, st := range l.active() {
		if len(st.raw) > 0 && st.raw[0].Offset < l.dataStart {
			l.dataStart = st.raw[0].Offset
		}
	}
	return l, nil
}

// bootstrap reads the first link, installs it and works out the duration.
func (self *Demuxer) bootstrap(ctx context.Context) error {
	l, err := self.readLink(ctx, nil)
	if err != nil {
		return err
	}
	self.install(l)
	self.dataStart = l.dataStart

	var active []uint32
	for _, st := range l.active() {
		active = append(active, st.Serial)
	}
	dur := av.UnknownDuration
	skel := l.skeleton()
	if skel != nil && skel.HasIndex(active...) {
		self.index = skel
		if d, ok := skel.Duration(active...); ok {
			dur = d
		}
	}
	if dur == av.UnknownDuration && self.src.Seekable() && self.src.Length() >= 0 {
		end, ok, err := self.rangeEndTime(ctx, liveReader{self.src}, 0, self.src.Length())
		if err != nil {
			return err
		}
		if ok {
			dur = end
		}
	}
	self.mu.Lock()
	self.duration = dur
	self.mu.Unlock()
	self.cfg.Logger.Debug("ogg: ready",
		"audio", l.audio != nil,
		"video", l.video != nil,
		"indexed", self.index != nil,
		"data_start", self.dataStart,
		"duration", dur)
	return nil
}

// install makes l the current link, dropping the states of the previous one.
func (self *Demuxer) install(l *link) {
	self.mu.Lock()
	self.store.clear()
	for _, st := range l.states {
		self.store.add(st)
	}
	self.booted = true
	self.mu.Unlock()
	self.audio, self.video, self.skel = l.audio, l.video, l.skel
	self.linkEnd = false
}

// metadata describes the current link.
func (self *Demuxer) metadata() *Metadata {
	m := &Metadata{Duration: self.Duration(), Indexed: self.index != nil}
	if self.audio != nil {
		m.Audio, _ = self.audio.CodecData().(av.AudioCodecData)
	}
	if self.video != nil {
		m.Video, _ = self.video.CodecData().(av.VideoCodecData)
	}
	return m
}

func (self *Demuxer) activeStates() []*CodecState {
	var out []*CodecState
	if self.audio != nil {
		out = append(out, self.audio)
	}
	if self.video != nil {
		out = append(out, self.video)
	}
	return out
}

var errDurationUnknown = errors.New("ogg: duration unknown")

// seekEnd returns the end of the seekable time range.
func (self *Demuxer) seekEnd() (time.Duration, error) {
	d := self.Duration()
	if d < 0 {
		return 0, errDurationUnknown
	}
	return d, nil
}
