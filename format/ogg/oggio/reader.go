package oggio

import (
	"bytes"
	"io"
	"slices"
)

const readChunk = 8 << 10

// PageReader scans a byte range for checksummed pages. Corrupt data is
// skipped one byte at a time; only errors of the underlying source are
// reported. A page is returned only when it lies entirely inside the range.
type PageReader struct {
	src       io.ReaderAt
	end       int64
	off       int64
	buf       []byte
	exhausted bool
}

// NewPageReader scans src from start up to end. A negative end leaves the
// range open until the source reports io.EOF.
func NewPageReader(src io.ReaderAt, start, end int64) *PageReader {
	return &PageReader{src: src, off: start, end: end}
}

// Offset returns the position the next scan starts from.
func (self *PageReader) Offset() int64 {
	return self.off
}

func (self *PageReader) End() int64 {
	return self.end
}

// Reset moves the scan position and drops buffered data.
func (self *PageReader) Reset(off int64) {
	self.off = off
	self.buf = self.buf[:0]
	self.exhausted = false
}

// SetEnd changes the range end, buffered bytes past it are dropped.
func (self *PageReader) SetEnd(end int64) {
	self.end = end
	if end >= 0 && self.off+int64(len(self.buf)) > end {
		keep := end - self.off
		if keep < 0 {
			keep = 0
		}
		self.buf = self.buf[:keep]
	}
	self.exhausted = false
}

func (self *PageReader) drop(n int) {
	self.buf = self.buf[n:]
	self.off += int64(n)
}

// fill buffers at least n bytes. It reports false when the range or source
// ends first.
func (self *PageReader) fill(n int) (bool, error) {
	for len(self.buf) < n {
		if self.exhausted {
			return false, nil
		}
		want := n - len(self.buf)
		if want < readChunk {
			want = readChunk
		}
		pos := self.off + int64(len(self.buf))
		if self.end >= 0 {
			rem := self.end - pos
			if rem <= 0 {
				self.exhausted = true
				return false, nil
			}
			if int64(want) > rem {
				want = int(rem)
			}
		}
		l := len(self.buf)
		self.buf = slices.Grow(self.buf, want)[:l+want]
		k, err := self.src.ReadAt(self.buf[l:], pos)
		self.buf = self.buf[:l+k]
		if err == io.EOF || (err == nil && k == 0) {
			self.exhausted = true
		} else if err != nil {
			return false, err
		}
	}
	return true, nil
}

// NextPage returns the next valid page and the number of bytes skipped
// before it. io.EOF means no further page exists in the range.
func (self *PageReader) NextPage() (page *Page, skipped int64, err error) {
	pattern := []byte(capturePattern)
	for {
		var ok bool
		if _, err = self.fill(HeaderSize); err != nil {
			return
		}
		i := bytes.Index(self.buf, pattern)
		if i < 0 {
			// keep a possible partial capture pattern
			n := len(self.buf) - (len(pattern) - 1)
			if n > 0 {
				skipped += int64(n)
				self.drop(n)
			}
			if self.exhausted {
				skipped += int64(len(self.buf))
				self.drop(len(self.buf))
				return nil, skipped, io.EOF
			}
			if _, err = self.fill(len(self.buf) + readChunk); err != nil {
				return
			}
			continue
		}
		skipped += int64(i)
		self.drop(i)

		size, perr := pageLen(self.buf)
		if perr == ErrShortPage {
			if ok, err = self.fill(HeaderSize + MaxSegmentSize); err != nil {
				return
			}
			size, perr = pageLen(self.buf)
		}
		if perr == nil {
			if ok, err = self.fill(size); err != nil {
				return
			}
			if ok {
				var n int
				page, n, perr = Parse(self.buf)
				if perr == nil {
					page.Offset = self.off
					self.drop(n)
					return page, skipped, nil
				}
			}
		}
		// not a page, resume one byte later
		skipped++
		self.drop(1)
	}
}
