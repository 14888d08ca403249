package ogg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/vdkogg/oggseek/av"
	"github.com/vdkogg/oggseek/format/ogg/oggio"
)

// SeekResult describes where a seek landed.
type SeekResult struct {
	Offset     int64
	Time       time.Duration
	Iterations int
	Indexed    bool
}

// Seek moves the demuxer to the last position from which decoding reaches
// target without passing it. rangeStart and rangeEnd bound the seekable
// time range; a negative rangeEnd means the known duration. With video the
// demuxer is left on the next keyframe.
func (self *Demuxer) Seek(ctx context.Context, target, rangeStart, rangeEnd time.Duration) (res SeekResult, err error) {
	if err = self.ensureReady(); err != nil {
		return
	}
	if err = self.alive(ctx); err != nil {
		return
	}
	if !self.IsSeekable() {
		err = ErrNotSeekable
		return
	}
	if target <= rangeStart {
		res.Time = rangeStart
		err = self.land(0)
		return
	}
	if rangeEnd < 0 {
		if rangeEnd, err = self.seekEnd(); err != nil {
			err = fmt.Errorf("%w: %v", ErrBadRange, err)
			return
		}
	}
	if rangeEnd <= rangeStart {
		err = ErrBadRange
		return
	}
	if target > rangeEnd {
		target = rangeEnd
	}

	if self.index != nil {
		res, err = self.seekIndexed(ctx, target)
		if err == nil || !errors.Is(err, ErrIndexInvalid) {
			return
		}
		self.cfg.Logger.Debug("ogg: index seek rejected, bisecting", "target", target, "error", err)
	}
	return self.bisect(ctx, target, rangeStart, rangeEnd)
}

// seekIndexed seeks to the smallest keypoint offset at or before target
// over the output streams. The page found there must belong to the stream
// whose index supplied the keypoint.
func (self *Demuxer) seekIndexed(ctx context.Context, target time.Duration) (res SeekResult, err error) {
	res.Offset, res.Indexed = -1, true
	var serial uint32
	for _, st := range self.activeStates() {
		idx := self.index.Indexes[st.Serial]
		if idx == nil {
			return res, ErrIndexInvalid
		}
		kp, ok := idx.Lookup(target)
		if !ok {
			return res, ErrIndexInvalid
		}
		if res.Offset < 0 || kp.Offset < res.Offset {
			res.Offset, res.Time = kp.Offset, kp.Time
			serial = st.Serial
		}
	}
	if res.Offset < 0 || res.Offset >= self.src.Length() {
		return res, ErrIndexInvalid
	}

	saved := self.src.Tell()
	restore := func(cause error) (SeekResult, error) {
		if err := self.src.Seek(saved); err != nil {
			return res, fmt.Errorf("ogg: restore after index seek: %w", err)
		}
		return res, cause
	}
	pr := oggio.NewPageReader(liveReader{self.src}, res.Offset, self.src.Length())
	page, skipped, err := pr.NextPage()
	switch {
	case err == io.EOF:
		return restore(fmt.Errorf("%w: no page at %d", ErrIndexInvalid, res.Offset))
	case err != nil:
		return restore(err)
	case skipped != 0:
		return restore(fmt.Errorf("%w: keypoint %d not on a page boundary", ErrIndexInvalid, res.Offset))
	case page.Serial != serial:
		return restore(fmt.Errorf("%w: page at %d belongs to stream %08x, want %08x", ErrIndexInvalid, res.Offset, page.Serial, serial))
	}
	if err = self.alive(ctx); err != nil {
		return restore(err)
	}
	self.cfg.Logger.Debug("ogg: index seek", "target", target, "offset", res.Offset, "time", res.Time)
	return res, self.land(res.Offset)
}

// bisect searches the byte range for a page whose time is at most Fuzz
// before target.
func (self *Demuxer) bisect(ctx context.Context, target, rangeStart, rangeEnd time.Duration) (res SeekResult, err error) {
	r := seekRange{
		OffsetStart: self.dataStart,
		OffsetEnd:   self.src.Length(),
		TimeStart:   rangeStart,
		TimeEnd:     rangeEnd,
	}
	cached, err := self.cachedRanges(ctx)
	if err != nil {
		return
	}
	r = narrow(r, cached, target)

	start, end := r.OffsetStart, r.OffsetEnd
	startTime, endTime := r.TimeStart, r.TimeEnd
	var startLen int64
	last := progress{-1, -1, -1}

	landStart := func() (SeekResult, error) {
		res.Offset, res.Time = start, startTime
		self.cfg.Logger.Debug("ogg: bisection collapsed", "target", target, "offset", start, "iterations", res.Iterations)
		return res, self.land(start)
	}

	for {
		if err = self.alive(ctx); err != nil {
			return
		}
		lo := start + startLen
		if lo >= end || endTime <= startTime {
			return landStart()
		}
		frac := float64(target-startTime) / float64(endTime-startTime)
		if frac < 0 {
			frac = 0
		} else if frac > 1 {
			frac = 1
		}
		guess := lo + int64(frac*float64(end-lo))
		if guess > end-self.cfg.PageStep {
			guess = end - self.cfg.PageStep
		}
		if guess < lo {
			guess = lo
		}

		var off int64
		var t time.Duration
		var ok bool
		backsteps := 0
		for {
			if err = self.alive(ctx); err != nil {
				return
			}
			if last.repeat(guess, start, end) {
				err = fmt.Errorf("%w at offset %d", ErrSeekStuck, guess)
				return
			}
			res.Iterations++
			var plen int64
			if off, plen, t, ok, err = self.timeAt(guess, end); err != nil {
				return
			}
			if ok {
				if t < target {
					startLen = plen
				}
				break
			}
			if guess <= lo {
				return landStart()
			}
			guess -= self.cfg.PageStep << backsteps
			if backsteps < self.cfg.MaxBackoff {
				backsteps++
			}
			if guess < lo {
				guess = lo
			}
		}

		self.cfg.Logger.Debug("ogg: bisection step",
			"target", target,
			"guess", last.guess,
			"page", off,
			"time", t,
			"start", start,
			"end", end)
		switch {
		case t < target && t >= target-self.cfg.Fuzz:
			res.Offset, res.Time = off, t
			return res, self.land(off)
		case t >= target:
			end, endTime = off, t
		default:
			start, startTime = off, t
		}
	}
}

// progress is one bisection step: the guess and the bracket it was made in.
type progress struct {
	guess, start, end int64
}

// repeat records a step and reports whether it equals the previous one.
// The same guess in a moved bracket is not a repeat.
func (p *progress) repeat(guess, start, end int64) bool {
	next := progress{guess, start, end}
	if next == *p {
		return true
	}
	*p = next
	return false
}

// timeAt reads forward from guess until every output stream has a timed
// page. It returns the offset and length of the first page read and the
// largest time seen.
func (self *Demuxer) timeAt(guess, end int64) (off, plen int64, t time.Duration, ok bool, err error) {
	pr := oggio.NewPageReader(liveReader{self.src}, guess, end)
	want := len(self.activeStates())
	seen := make(map[uint32]bool, want)
	off = -1
	for len(seen) < want {
		page, _, perr := pr.NextPage()
		if perr == io.EOF {
			return off, plen, t, false, nil
		}
		if perr != nil {
			return off, plen, t, false, perr
		}
		if off < 0 {
			off, plen = page.Offset, int64(page.Len())
		}
		st := self.pageState(page)
		if st == nil {
			continue
		}
		pt, pok := st.PageTime(page)
		if !pok {
			continue
		}
		seen[st.Serial] = true
		if pt > t {
			t = pt
		}
	}
	return off, plen, t, true, nil
}

// narrow shrinks r to the cached ranges around target.
func narrow(r seekRange, cached []seekRange, target time.Duration) seekRange {
	for _, c := range cached {
		if c.TimeStart >= c.TimeEnd {
			continue
		}
		switch {
		case c.TimeStart <= target && target < c.TimeEnd:
			return c
		case c.TimeEnd <= target && c.OffsetEnd > r.OffsetStart && c.TimeEnd >= r.TimeStart:
			r.OffsetStart, r.TimeStart = c.OffsetEnd, c.TimeEnd
		case c.TimeStart > target && c.OffsetStart < r.OffsetEnd && c.TimeStart <= r.TimeEnd:
			r.OffsetEnd, r.TimeEnd = c.OffsetStart, c.TimeStart
		}
	}
	return r
}

// land resets every stream and moves the live cursor to off. With video
// it then advances to the next keyframe.
func (self *Demuxer) land(off int64) error {
	for _, st := range self.activeStates() {
		st.reset()
	}
	self.pendingBOS = nil
	self.linkEnd = false
	self.audioDone, self.videoDone = false, false
	self.peek = [2]*av.Packet{}
	if err := self.src.Seek(off); err != nil {
		return fmt.Errorf("ogg: seek to %d: %w", off, err)
	}
	self.pr.Reset(off)
	if self.video != nil {
		return self.skipToKeyFrame()
	}
	return nil
}
