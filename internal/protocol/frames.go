// Copyright (c) 2026 Lucidwave. All rights reserved.
// Use of this source code is governed by the Streamcore License
// that can be found in the LICENSE file.

// Package protocol implements the binary wire formats used by the
// control channel and the stream socket.
package protocol

import "errors"

// MagicControl identifies a control-channel frame.
var MagicControl = [4]byte{'S', 'C', 'R', '1'}

// MagicAnnounce identifies a discovery announcement datagram.
var MagicAnnounce = [4]byte{'S', 'C', 'A', 'N'}

// ProtocolVersion is the current control-channel protocol version.
const ProtocolVersion byte = 0x01

// Control packet kinds (client → server and server → client share one space).
const (
	KindConnectionAccepted byte = 0x01 // client → server
	KindStreamConfig       byte = 0x02 // server → client
	KindStartStream        byte = 0x03 // server → client
	KindRestarting         byte = 0x04 // server → client
	KindInitializeDecoder  byte = 0x05 // server → client
	KindKeepAlive          byte = 0x06 // client → server
	KindRequestIdr         byte = 0x07 // client → server
	KindBattery            byte = 0x08 // client → server
	KindStreamReady        byte = 0x09 // client → server
)

// Errors returned by the frame codec.
var (
	ErrInvalidMagic   = errors.New("protocol: invalid magic bytes")
	ErrInvalidVersion = errors.New("protocol: unsupported protocol version")
	ErrTruncatedFrame = errors.New("protocol: truncated frame")
	ErrFrameTooLarge  = errors.New("protocol: frame exceeds maximum size")
)

// MaxFrameSize bounds a single control-channel frame payload. Stream-config
// packets carry the full session description, so this is generous relative
// to a typical control packet.
const MaxFrameSize = 1 << 20

// Subject identifies a logical sub-stream multiplexed over the stream socket.
type Subject byte

// Well-known subject IDs for the stream socket.
const (
	SubjectVideo      Subject = 0
	SubjectAudio      Subject = 1
	SubjectHaptics    Subject = 2
	SubjectTracking   Subject = 3
	SubjectStatistics Subject = 4
)

func (s Subject) String() string {
	switch s {
	case SubjectVideo:
		return "video"
	case SubjectAudio:
		return "audio"
	case SubjectHaptics:
		return "haptics"
	case SubjectTracking:
		return "tracking"
	case SubjectStatistics:
		return "statistics"
	default:
		return "unknown"
	}
}

// DatagramHeaderSize is the fixed size, in bytes, of a DatagramHeader on the wire:
// Subject(1B) + Seq(4B) + Flags(1B) + Timestamp(8B).
const DatagramHeaderSize = 14

// Flag bits carried in a DatagramHeader.
const (
	FlagIDR byte = 1 << 0
)

// DatagramHeader precedes every payload sent over the stream socket.
type DatagramHeader struct {
	Subject   Subject
	Seq       uint32
	Flags     byte
	Timestamp int64 // sender-side capture/send timestamp, UnixNano
}

// IsIDR reports whether the video FlagIDR bit is set. Meaningless for
// subjects other than SubjectVideo.
func (h DatagramHeader) IsIDR() bool {
	return h.Flags&FlagIDR != 0
}
