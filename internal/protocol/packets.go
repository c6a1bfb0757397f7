// Copyright (c) 2026 Lucidwave. All rights reserved.
// Use of this source code is governed by the Streamcore License
// that can be found in the LICENSE file.

package protocol

import "encoding/json"

// StreamingCapabilities is attached to ConnectionAccepted and describes what
// the client's render/audio pipeline can drive.
type StreamingCapabilities struct {
	DefaultViewResolution [2]uint32 `json:"default_view_resolution"`
	SupportedRefreshRates []float32 `json:"supported_refresh_rates"`
	MicrophoneSampleRate  uint32    `json:"microphone_sample_rate"`
}

// ConnectionAccepted is the first client → server control packet, sent
// immediately after the control channel connects.
type ConnectionAccepted struct {
	ClientProtocolID uint32                 `json:"client_protocol_id"`
	DisplayName      string                 `json:"display_name"`
	ServerIP         string                 `json:"server_ip"`
	Capabilities     *StreamingCapabilities `json:"streaming_capabilities,omitempty"`
}

// StreamConfigPacket is the server's reply to ConnectionAccepted: an opaque
// session description plus a string-keyed map of negotiated values.
type StreamConfigPacket struct {
	SessionDescription string                     `json:"session"`
	Negotiated         map[string]json.RawMessage `json:"negotiated"`
}

// NegotiatedUint reads a uint32 from the negotiated map, falling back to def
// if the key is absent or not a number.
func (p *StreamConfigPacket) NegotiatedUint(key string, def uint32) uint32 {
	raw, ok := p.Negotiated[key]
	if !ok {
		return def
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return def
	}
	return uint32(v)
}

// NegotiatedFloat32 reads a float32 from the negotiated map, falling back to
// def if the key is absent or not a number.
func (p *StreamConfigPacket) NegotiatedFloat32(key string, def float32) float32 {
	raw, ok := p.Negotiated[key]
	if !ok {
		return def
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return def
	}
	return float32(v)
}

// NegotiatedUint32Pair reads a two-element unsigned integer array, falling
// back to def if the key is absent or malformed.
func (p *StreamConfigPacket) NegotiatedUint32Pair(key string, def [2]uint32) [2]uint32 {
	raw, ok := p.Negotiated[key]
	if !ok {
		return def
	}
	var v [2]uint32
	if err := json.Unmarshal(raw, &v); err != nil {
		return def
	}
	return v
}

// DecoderInitConfig carries the decoder setup parameters derived from Settings.
type DecoderInitConfig struct {
	MaxBufferingFrames     uint32            `json:"max_buffering_frames"`
	BufferingHistoryWeight float32           `json:"buffering_history_weight"`
	MediacodecExtraOptions map[string]string `json:"mediacodec_extra_options,omitempty"`
}

// InitializeDecoder is sent server → client to (re)configure the decoder.
type InitializeDecoder struct {
	Config DecoderInitConfig `json:"config"`
}

// Battery is sent client → server on a battery state change.
type Battery struct {
	DeviceID uint64  `json:"device_id"`
	Gauge    float32 `json:"gauge"`
	Plugged  bool    `json:"plugged"`
}

// Empty-payload packet kinds: StartStream, Restarting, KeepAlive, RequestIdr,
// StreamReady all carry no body — their meaning is entirely in the Kind byte.
