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

// ReadFrame reads one control-channel frame and returns its kind and payload.
func ReadFrame(r io.Reader) (byte, []byte, error) {
	header := make([]byte, 4+1+1+4)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, fmt.Errorf("reading frame header: %w", err)
	}
	if header[0] != MagicControl[0] || header[1] != MagicControl[1] ||
		header[2] != MagicControl[2] || header[3] != MagicControl[3] {
		return 0, nil, fmt.Errorf("%w: got %q", ErrInvalidMagic, header[0:4])
	}
	version := header[4]
	if version != ProtocolVersion {
		return 0, nil, fmt.Errorf("%w: got %d", ErrInvalidVersion, version)
	}
	kind := header[5]
	length := binary.BigEndian.Uint32(header[6:10])
	if length > MaxFrameSize {
		return 0, nil, fmt.Errorf("reading frame kind=%#x: %w", kind, ErrFrameTooLarge)
	}
	if length == 0 {
		return kind, nil, nil
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("reading frame payload kind=%#x: %w", kind, err)
	}
	return kind, payload, nil
}

// ReadJSONFrame reads one frame and JSON-decodes its payload into v.
func ReadJSONFrame(r io.Reader, v any) (byte, error) {
	kind, payload, err := ReadFrame(r)
	if err != nil {
		return 0, err
	}
	if len(payload) == 0 {
		return kind, nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return kind, fmt.Errorf("unmarshaling frame kind=%#x: %w", kind, err)
	}
	return kind, nil
}

// ReadDatagram decodes a DatagramHeader and the remaining payload from buf.
func ReadDatagram(buf []byte) (DatagramHeader, []byte, error) {
	if len(buf) < DatagramHeaderSize {
		return DatagramHeader{}, nil, ErrTruncatedFrame
	}
	hdr := DatagramHeader{
		Subject:   Subject(buf[0]),
		Seq:       binary.BigEndian.Uint32(buf[1:5]),
		Flags:     buf[5],
		Timestamp: int64(binary.BigEndian.Uint64(buf[6:14])),
	}
	return hdr, buf[DatagramHeaderSize:], nil
}
