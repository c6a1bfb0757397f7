// Copyright (c) 2026 Lucidwave. All rights reserved.
// Use of this source code is governed by the Streamcore License
// that can be found in the LICENSE file.

// Package videobuffer reassembles the video sub-stream and tracks packet
// loss between consecutive reassembled packets.
//
// Unlike a reliable transfer's gap tracker, which waits out a timeout and
// NACKs persistent holes, the video sub-stream is best-effort: a lost
// packet is never retransmitted, only reported once so the caller can
// request a fresh IDR. Loss detection here is a single-lookback comparison
// against the last sequence number seen, not a timestamped pending-gap set.
package videobuffer

import (
	"sync"

	"github.com/lucidwave/streamcore/internal/protocol"
)

// Buffer reassembles datagrams for one subject (normally SubjectVideo) and
// reports whether any sequence number was skipped since the previous
// HadPacketLoss call.
type Buffer struct {
	mu           sync.Mutex
	hasSeen      bool
	lastSeq      uint32
	header       protocol.DatagramHeader
	payload      []byte
	hadLoss      bool
	pendingCount int
}

// New returns an empty Buffer.
func New() *Buffer {
	return &Buffer{}
}

// RecordChunk registers a freshly reassembled datagram. It compares seq
// against the last sequence number seen; any gap between them marks loss
// for the next HadPacketLoss call. Out-of-order arrivals (seq <= lastSeq) are stored
// but never retroactively clear a loss already recorded.
func (b *Buffer) RecordChunk(hdr protocol.DatagramHeader, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.hasSeen && hdr.Seq > b.lastSeq+1 {
		b.hadLoss = true
		b.pendingCount += int(hdr.Seq - b.lastSeq - 1)
	}
	if !b.hasSeen || hdr.Seq > b.lastSeq {
		b.lastSeq = hdr.Seq
		b.hasSeen = true
	}

	b.header = hdr
	b.payload = payload
}

// Get returns the most recently recorded header and payload.
func (b *Buffer) Get() (protocol.DatagramHeader, []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.header, b.payload
}

// HadPacketLoss reports whether a sequence gap was observed since the last
// call to HadPacketLoss, and clears the flag.
func (b *Buffer) HadPacketLoss() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	had := b.hadLoss
	b.hadLoss = false
	b.pendingCount = 0
	return had
}
