package ogg

import (
	"context"
	"time"
)

func (self *Demuxer) SeekIndexed(ctx context.Context, target time.Duration) (SeekResult, error) {
	return self.seekIndexed(ctx, target)
}
