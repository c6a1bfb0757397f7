// Copyright (c) 2026 Lucidwave. All rights reserved.
// Use of this source code is governed by the Streamcore License
// that can be found in the LICENSE file.

package streamsocket

import (
	"context"

	"golang.org/x/time/rate"
)

// maxBurstSize bounds a single throttled write's burst. A stream socket
// write is always one whole datagram, never a streamed byte run, so the
// burst only needs to cover the largest possible datagram.
const maxBurstSize = 64 * 1024

// throttledSender rate-limits outbound datagram bytes with one limiter
// shared by every subject sender on a Socket.
type throttledSender struct {
	limiter *rate.Limiter
	ctx     context.Context
}

// newThrottledSender builds a throttledSender capped at bytesPerSec. If
// bytesPerSec <= 0, returns nil (no throttling).
func newThrottledSender(ctx context.Context, bytesPerSec int64) *throttledSender {
	if bytesPerSec <= 0 {
		return nil
	}

	burst := int(bytesPerSec)
	if burst > maxBurstSize {
		burst = maxBurstSize
	}

	return &throttledSender{
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst),
		ctx:     ctx,
	}
}

// wait blocks until n bytes' worth of tokens are available, or the
// throttler's context is canceled.
func (t *throttledSender) wait(n int) error {
	if t == nil {
		return nil
	}
	if n > t.limiter.Burst() {
		n = t.limiter.Burst()
	}
	return t.limiter.WaitN(t.ctx, n)
}
