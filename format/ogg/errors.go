package ogg

import (
	"errors"
	"fmt"
)

var (
	ErrEndOfTrack   = errors.New("ogg: end of track")
	ErrNoStreams    = errors.New("ogg: no audio or video stream")
	ErrSeekStuck    = errors.New("ogg: bisection made no progress")
	ErrNotSeekable  = errors.New("ogg: source is not seekable")
	ErrIndexInvalid = errors.New("ogg: skeleton keypoint does not match the file")
	ErrClosed       = errors.New("ogg: demuxer closed")
	ErrBadRange     = errors.New("ogg: invalid seek range")
)

// HeaderError reports a logical stream whose headers could not be decoded.
type HeaderError struct {
	Serial uint32
	Err    error
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("ogg: stream %08x: bad header: %v", e.Serial, e.Err)
}

func (e *HeaderError) Unwrap() error {
	return e.Err
}
