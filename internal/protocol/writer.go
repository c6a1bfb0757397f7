// Copyright (c) 2026 Lucidwave. All rights reserved.
// Use of this source code is governed by the Streamcore License
// that can be found in the LICENSE file.

package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// WriteFrame writes one control-channel frame.
// Wire format: [Magic 4B] [Version 1B] [Kind 1B] [Length uint32 4B] [Payload].
func WriteFrame(w io.Writer, kind byte, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("writing frame kind=%#x: %w", kind, ErrFrameTooLarge)
	}
	header := make([]byte, 4+1+1+4)
	copy(header[0:4], MagicControl[:])
	header[4] = ProtocolVersion
	header[5] = kind
	binary.BigEndian.PutUint32(header[6:10], uint32(len(payload)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("writing frame header kind=%#x: %w", kind, err)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("writing frame payload kind=%#x: %w", kind, err)
	}
	return nil
}

// WriteJSONFrame JSON-encodes v and writes it as a frame payload.
func WriteJSONFrame(w io.Writer, kind byte, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling frame kind=%#x: %w", kind, err)
	}
	return WriteFrame(w, kind, payload)
}

// WriteEmptyFrame writes a frame with no payload (StartStream, Restarting,
// KeepAlive, RequestIdr, StreamReady).
func WriteEmptyFrame(w io.Writer, kind byte) error {
	return WriteFrame(w, kind, nil)
}

// WriteDatagram encodes a DatagramHeader followed by payload into one buffer
// suitable for a single PacketConn write.
func WriteDatagram(hdr DatagramHeader, payload []byte) []byte {
	buf := make([]byte, DatagramHeaderSize+len(payload))
	buf[0] = byte(hdr.Subject)
	binary.BigEndian.PutUint32(buf[1:5], hdr.Seq)
	buf[5] = hdr.Flags
	binary.BigEndian.PutUint64(buf[6:14], uint64(hdr.Timestamp))
	copy(buf[DatagramHeaderSize:], payload)
	return buf
}
