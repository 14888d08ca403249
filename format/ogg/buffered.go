package ogg

import (
	"context"
	"io"
	"time"

	"github.com/vdkogg/oggseek/format/ogg/oggio"
)

// TimeRange is a span of presentation time.
type TimeRange struct {
	Start time.Duration
	End   time.Duration
}

// seekRange ties a byte range to the times of its first and last timed
// pages. TimeStart < TimeEnd always holds.
type seekRange struct {
	OffsetStart int64
	OffsetEnd   int64
	TimeStart   time.Duration
	TimeEnd     time.Duration
}

// pageTime returns the time of a page. known is false when the page
// belongs to no stream of the current link.
func (self *Demuxer) pageTime(p *oggio.Page) (t time.Duration, ok, known bool) {
	self.mu.Lock()
	st := self.store.get(p.Serial)
	self.mu.Unlock()
	if st == nil {
		return 0, false, false
	}
	if !st.Active {
		return 0, false, true
	}
	t, ok = st.PageTime(p)
	return t, ok, true
}

// Buffered returns the time ranges fully available in the cache of the
// source. Finding a page of an unknown stream marks the source chained and
// ends the scan.
func (self *Demuxer) Buffered(ctx context.Context) ([]TimeRange, error) {
	if err := self.alive(ctx); err != nil {
		return nil, err
	}
	ranges, err := self.cachedRanges(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]TimeRange, 0, len(ranges))
	for _, r := range ranges {
		out = append(out, TimeRange{Start: r.TimeStart, End: r.TimeEnd})
	}
	return out, nil
}

// cachedRanges times every cached byte range, reading the cache only.
// Before the headers are read no page can be timed and nothing is
// returned.
func (self *Demuxer) cachedRanges(ctx context.Context) ([]seekRange, error) {
	self.mu.Lock()
	booted := self.booted
	self.mu.Unlock()
	if !booted {
		return nil, nil
	}
	var out []seekRange
	for _, r := range self.src.CachedRanges() {
		if err := self.alive(ctx); err != nil {
			return nil, err
		}
		if r.End <= r.Start {
			continue
		}
		cr := cacheReader{src: self.src, rng: r}
		pr := oggio.NewPageReader(cr, r.Start, r.End)

		var start *oggio.Page
		var startTime time.Duration
		for start == nil {
			page, _, err := pr.NextPage()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, err
			}
			t, ok, known := self.pageTime(page)
			if !known {
				self.cfg.Logger.Debug("ogg: page of unknown stream in cache", "offset", page.Offset, "serial", page.Serial)
				self.setChained()
				return out, nil
			}
			if ok {
				start, startTime = page, t
			}
		}
		if start == nil {
			continue
		}
		end, ok, err := self.rangeEndTime(ctx, cr, start.Offset, r.End)
		if err != nil {
			return nil, err
		}
		if !ok || end <= startTime {
			continue
		}
		out = append(out, seekRange{
			OffsetStart: start.Offset,
			OffsetEnd:   r.End,
			TimeStart:   startTime,
			TimeEnd:     end,
		})
	}
	return out, nil
}

// rangeEndTime finds the time of the last timed page in [start, end) by
// scanning windows of growing size backward from end. ok is false when
// the scan reaches start without finding one.
func (self *Demuxer) rangeEndTime(ctx context.Context, r io.ReaderAt, start, end int64) (t time.Duration, ok bool, err error) {
	step := self.cfg.EndScanStep
	limit := end
	readStart := end
	var prevChecksum uint32
	havePrev := false
	for readStart > start {
		if err = self.alive(ctx); err != nil {
			return
		}
		readStart -= step
		if readStart < start {
			readStart = start
		}
		step *= 2

		pr := oggio.NewPageReader(r, readStart, end)
		first := true
		for {
			page, _, perr := pr.NextPage()
			if perr == io.EOF {
				break
			}
			if perr != nil {
				return 0, false, perr
			}
			if first {
				first = false
				if havePrev && page.Checksum == prevChecksum {
					// same first page as the last window, nothing new
					break
				}
				prevChecksum, havePrev = page.Checksum, true
			}
			if page.Offset >= limit {
				break
			}
			if pt, pok, _ := self.pageTime(page); pok && (!ok || pt > t) {
				t, ok = pt, true
			}
		}
		if ok {
			return
		}
		limit = readStart
	}
	return 0, false, nil
}
