// Copyright (c) 2026 Lucidwave. All rights reserved.
// Use of this source code is governed by the Streamcore License
// that can be found in the LICENSE file.

package videobuffer

import "sync"

// CorruptionState is the two-state machine driving whether a reassembled
// video payload is safe to forward to the decoder.
type CorruptionState int

const (
	StateOK CorruptionState = iota
	StateCorrupt
)

func (s CorruptionState) String() string {
	if s == StateCorrupt {
		return "corrupt"
	}
	return "ok"
}

// Outcome describes what happened to one packet's payload.
type Outcome int

const (
	// OutcomeDecoded means the payload was pushed to the decoder and accepted.
	OutcomeDecoded Outcome = iota
	// OutcomeRejected means the payload was pushed but the decoder rejected
	// it (saturation); this packet itself triggers the IDR request.
	OutcomeRejected
	// OutcomeDropped means the payload was never pushed because the stream
	// was already corrupt and avoid_video_glitching suppresses pushes.
	OutcomeDropped
)

// CorruptionTracker implements the IDR/loss/decoder-reject corruption state
// machine described for the video receive loop. IDR detection takes
// precedence over loss detection within the same packet: an IDR arriving
// on a packet that also closes a loss gap clears corruption immediately.
type CorruptionTracker struct {
	mu    sync.Mutex
	state CorruptionState
}

// NewCorruptionTracker returns a tracker starting in the OK state.
func NewCorruptionTracker() *CorruptionTracker {
	return &CorruptionTracker{}
}

// State returns the current corruption state.
func (c *CorruptionTracker) State() CorruptionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Evaluate advances the state machine for one reassembled packet and
// decides what to do with its payload.
//
//   - isIDR clears corruption unconditionally.
//   - Otherwise, hadLoss sets corruption and requests an IDR.
//   - If the stream is not corrupt (or avoidGlitching is false), push is
//     invoked; a false return means the decoder rejected the payload
//     (saturation), which also sets corruption and requests an IDR.
//   - If the stream is corrupt and avoidGlitching is true, push is never
//     called and the payload is dropped.
//
// push is called at most once per Evaluate call.
func (c *CorruptionTracker) Evaluate(isIDR, hadLoss, avoidGlitching bool, push func() bool) (outcome Outcome, requestIdr bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if isIDR {
		c.state = StateOK
	} else if hadLoss {
		c.state = StateCorrupt
		requestIdr = true
	}

	if c.state == StateCorrupt && avoidGlitching {
		return OutcomeDropped, requestIdr
	}

	if push() {
		return OutcomeDecoded, requestIdr
	}

	c.state = StateCorrupt
	return OutcomeRejected, true
}
