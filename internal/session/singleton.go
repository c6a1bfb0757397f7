// Copyright (c) 2026 Lucidwave. All rights reserved.
// Use of this source code is governed by the Streamcore License
// that can be found in the LICENSE file.

package session

import (
	"sync"

	"github.com/lucidwave/streamcore/internal/protocol"
	"github.com/lucidwave/streamcore/internal/statistics"
	"github.com/lucidwave/streamcore/internal/streamsocket"
)

// singletons is the six process-wide holders that appear and disappear
// together: connection runtime, tracking sender, statistics sender,
// outbound control channel sender, statistics manager, decoder init config.
// A nil *singletons published under holder means IS_STREAMING is false —
// one optional session value in place of a flag plus six independent
// holders.
type singletons struct {
	connection       *streamsocket.Socket
	trackingSender   *streamsocket.Sender
	statisticsSender *streamsocket.Sender
	controlSender    *ControlSender
	statisticsMgr    *statistics.Manager
	decoderInit      protocol.DecoderInitConfig
}

// holder is the single sync.RWMutex guarding the optional session value.
// Narrow read accessors below are the only way external code observes it;
// every accessor takes the lock for the duration of a pointer read only, no
// I/O ever happens under it.
type holder struct {
	mu sync.RWMutex
	s  *singletons
}

func newHolder() *holder {
	return &holder{}
}

// install publishes all six singletons atomically from the supervisor's
// perspective. Called exactly once per attempt, from startStreaming,
// immediately before the task graph launches.
func (h *holder) install(s *singletons) {
	h.mu.Lock()
	h.s = s
	h.mu.Unlock()
}

// clear drops all six singletons atomically, flipping IS_STREAMING to
// false. Called exactly once per attempt, from TearingDown.
func (h *holder) clear() {
	h.mu.Lock()
	h.s = nil
	h.mu.Unlock()
}

// IsStreaming reports the IS_STREAMING flag.
func (h *holder) IsStreaming() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.s != nil
}

// TrackingSender returns the published tracking sender, or ok=false if not
// currently streaming.
func (h *holder) TrackingSender() (*streamsocket.Sender, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.s == nil {
		return nil, false
	}
	return h.s.trackingSender, true
}

// StatisticsSender returns the published statistics sender, or ok=false if
// not currently streaming.
func (h *holder) StatisticsSender() (*streamsocket.Sender, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.s == nil {
		return nil, false
	}
	return h.s.statisticsSender, true
}

// ControlSender returns the published outbound control channel sender, or
// ok=false if not currently streaming.
func (h *holder) ControlSender() (*ControlSender, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.s == nil {
		return nil, false
	}
	return h.s.controlSender, true
}

// StatisticsManager returns the published statistics manager, or ok=false
// if not currently streaming.
func (h *holder) StatisticsManager() (*statistics.Manager, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.s == nil {
		return nil, false
	}
	return h.s.statisticsMgr, true
}

// DecoderInit returns the published decoder init config, or ok=false if not
// currently streaming.
func (h *holder) DecoderInit() (protocol.DecoderInitConfig, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.s == nil {
		return protocol.DecoderInitConfig{}, false
	}
	return h.s.decoderInit, true
}

// Connection returns the published stream socket, or ok=false if not
// currently streaming.
func (h *holder) Connection() (*streamsocket.Socket, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.s == nil {
		return nil, false
	}
	return h.s.connection, true
}
