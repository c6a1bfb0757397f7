// Copyright (c) 2026 Lucidwave. All rights reserved.
// Use of this source code is governed by the Streamcore License
// that can be found in the LICENSE file.

// Package statistics implements the session-scoped statistics manager: a
// bounded ring of per-video-packet receive timestamps, clocked against the
// session's fixed frame interval (1 / refresh_rate_hint).
package statistics

import (
	"sync"
	"time"
)

// sample records one video packet's arrival relative to the session clock.
type sample struct {
	receivedAt  time.Time
	frameOffset time.Duration // receivedAt - sessionStart, for jitter analysis
}

// Manager is constructed once per session (during Configuring) and
// discarded during teardown, following the session singleton lifecycle.
type Manager struct {
	mu             sync.Mutex
	history        []sample
	historySize    int
	next           int
	count          int
	frameInterval  time.Duration // 1 / refresh_rate_hint, fixed for the session
	pipelineFrames uint32
	sessionStart   time.Time
	lastReceived   time.Time
}

// New builds a Manager. historySize bounds the ring of retained samples;
// frameInterval is the session's fixed clock basis; pipelineFrames is the
// controller pipeline depth from headset.controllers.steamvr_pipeline_frames
// (0 if absent).
func New(historySize int, frameInterval time.Duration, pipelineFrames uint32) *Manager {
	if historySize <= 0 {
		historySize = 1
	}
	return &Manager{
		history:        make([]sample, historySize),
		historySize:    historySize,
		frameInterval:  frameInterval,
		pipelineFrames: pipelineFrames,
		sessionStart:   time.Now(),
	}
}

// ReportVideoPacketReceived records the arrival timestamp of one
// successfully reassembled video packet. Called from the video receive
// loop on every packet, regardless of corruption state.
func (m *Manager) ReportVideoPacketReceived(ts time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history[m.next] = sample{
		receivedAt:  ts,
		frameOffset: ts.Sub(m.sessionStart),
	}
	m.next = (m.next + 1) % m.historySize
	if m.count < m.historySize {
		m.count++
	}
	m.lastReceived = ts
}

// Snapshot is a point-in-time summary suitable for logging or the
// diagnostics bundle.
type Snapshot struct {
	SamplesRecorded int
	FrameInterval   time.Duration
	PipelineFrames  uint32
	LastReceived    time.Time
	InstantFPS      float64
}

// Snapshot reports the manager's current state. InstantFPS is derived from
// the gap between the two most recent samples; it is zero until at least
// two samples have been recorded.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		SamplesRecorded: m.count,
		FrameInterval:   m.frameInterval,
		PipelineFrames:  m.pipelineFrames,
		LastReceived:    m.lastReceived,
	}

	if m.count >= 2 {
		prevIdx := (m.next - 2 + m.historySize) % m.historySize
		lastIdx := (m.next - 1 + m.historySize) % m.historySize
		gap := m.history[lastIdx].receivedAt.Sub(m.history[prevIdx].receivedAt)
		if gap > 0 {
			snap.InstantFPS = float64(time.Second) / float64(gap)
		}
	}

	return snap
}
