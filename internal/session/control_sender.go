// Copyright (c) 2026 Lucidwave. All rights reserved.
// Use of this source code is governed by the Streamcore License
// that can be found in the LICENSE file.

package session

// ControlSender is the session-local outbound control channel singleton.
// External code (video_receive_loop requesting an IDR, battery_poll_loop
// reporting a sample) enqueues onto it without blocking; control_send_loop
// is the only reader and is responsible for draining it onto the real,
// mutex-guarded controlsocket.Sender, which never leaves the task graph.
type ControlSender struct {
	ch chan controlSendRequest
}

type controlSendRequest struct {
	kind    byte
	payload any
}

func newControlSender(capacity int) *ControlSender {
	return &ControlSender{ch: make(chan controlSendRequest, capacity)}
}

// Send enqueues a control frame for control_send_loop to forward. Drops the
// request if the channel is full rather than blocking the caller; a full
// outbound queue means control_send_loop has already fallen behind and the
// attempt is about to end anyway.
func (c *ControlSender) Send(kind byte, payload any) {
	select {
	case c.ch <- controlSendRequest{kind: kind, payload: payload}:
	default:
	}
}
