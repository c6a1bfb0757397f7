// Copyright (c) 2026 Lucidwave. All rights reserved.
// Use of this source code is governed by the Streamcore License
// that can be found in the LICENSE file.

// Package session implements the connection lifecycle supervisor, the
// process-wide session singleton, and the HUD/event bridge. Settings
// derivation lives here too, since it is the bridge between the server's
// session description, the negotiated wire values, and the client's own
// local configuration.
package session

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lucidwave/streamcore/internal/config"
	"github.com/lucidwave/streamcore/internal/protocol"
)

// Default negotiated values, used when the server's StreamConfigPacket
// omits a known key.
const (
	DefaultRefreshRateHint     = 60.0
	DefaultGameAudioSampleRate = 44100
)

// ConnectionSettings mirrors Settings.connection.
type ConnectionSettings struct {
	StreamPort            int
	StreamProtocol        string
	ClientSendBufferBytes int64
	ClientRecvBufferBytes int64
	PacketSize            int
	StatisticsHistorySize int
	AvoidVideoGlitching   bool
}

// VideoSettings mirrors Settings.video.
type VideoSettings struct {
	MaxBufferingFrames     uint32
	BufferingHistoryWeight float32
	MediacodecExtraOptions map[string]string
}

// AudioSettings mirrors Settings.audio. GameAudio/Microphone are nil when
// that sub-configuration is absent.
type AudioSettings struct {
	GameAudio  *struct{}
	Microphone *struct{}
}

// ControllerSettings mirrors Settings.headset.controllers.
type ControllerSettings struct {
	SteamVRPipelineFrames uint32
}

// Settings is the merged, strongly-shaped configuration derived from the
// session description and negotiated map for one attempt.
type Settings struct {
	Connection  ConnectionSettings
	Video       VideoSettings
	Audio       AudioSettings
	Controllers *ControllerSettings

	// Negotiated fields read directly out of StreamConfigPacket, with
	// defaults applied for absent keys.
	ViewResolution      [2]uint32
	RefreshRateHint     float32
	GameAudioSampleRate uint32
}

// sessionDescription is the wire shape of the server's session description:
// a JSON document whose sections mirror Settings. Every scalar is a pointer
// so an absent key leaves the client-side default untouched while a present
// key overrides it.
type sessionDescription struct {
	Connection *struct {
		StreamPort            *int    `json:"stream_port"`
		StreamProtocol        *string `json:"stream_protocol"`
		ClientSendBufferBytes *int64  `json:"client_send_buffer_bytes"`
		ClientRecvBufferBytes *int64  `json:"client_recv_buffer_bytes"`
		PacketSize            *int    `json:"packet_size"`
		StatisticsHistorySize *int    `json:"statistics_history_size"`
		AvoidVideoGlitching   *bool   `json:"avoid_video_glitching"`
	} `json:"connection"`
	Video *struct {
		MaxBufferingFrames     *uint32           `json:"max_buffering_frames"`
		BufferingHistoryWeight *float32          `json:"buffering_history_weight"`
		MediacodecExtraOptions map[string]string `json:"mediacodec_extra_options"`
	} `json:"video"`
	Audio *struct {
		// Raw so presence, null and false are distinguishable: absent keeps
		// the client default, null/false disables, anything else enables.
		GameAudio  json.RawMessage `json:"game_audio"`
		Microphone json.RawMessage `json:"microphone"`
	} `json:"audio"`
	Headset *struct {
		Controllers *struct {
			SteamVRPipelineFrames *uint32 `json:"steamvr_pipeline_frames"`
		} `json:"controllers"`
	} `json:"headset"`
}

// DeriveSettings projects the server's session description and negotiated
// map into the strongly-shaped Settings for one attempt. The client's own
// local configuration supplies the defaults; the session description is
// merged over them section by section; the three negotiated scalars come
// last, falling back to fixed defaults when absent. A session description
// that is present but not parseable is fatal to the attempt.
func DeriveSettings(cfg *config.ClientConfig, pkt *protocol.StreamConfigPacket) (Settings, error) {
	s := Settings{
		Connection: ConnectionSettings{
			StreamPort:            cfg.Network.StreamPort,
			StreamProtocol:        cfg.Network.StreamProtocol,
			ClientSendBufferBytes: cfg.Network.ClientSendBufferBytesRaw,
			ClientRecvBufferBytes: cfg.Network.ClientRecvBufferBytesRaw,
			PacketSize:            cfg.Network.PacketSize,
			StatisticsHistorySize: cfg.Network.StatisticsHistorySize,
			AvoidVideoGlitching:   cfg.Network.AvoidVideoGlitching,
		},
		Video: VideoSettings{
			MaxBufferingFrames:     cfg.Video.MaxBufferingFrames,
			BufferingHistoryWeight: cfg.Video.BufferingHistoryWeight,
			MediacodecExtraOptions: cfg.Video.MediacodecExtraOptions,
		},
	}

	if cfg.Audio.GameAudio != nil {
		s.Audio.GameAudio = &struct{}{}
	}
	if cfg.Audio.Microphone != nil {
		s.Audio.Microphone = &struct{}{}
	}
	if cfg.Headset.Controllers != nil {
		s.Controllers = &ControllerSettings{
			SteamVRPipelineFrames: cfg.Headset.Controllers.SteamVRPipelineFrames,
		}
	}

	if desc := strings.TrimSpace(pkt.SessionDescription); desc != "" {
		var doc sessionDescription
		if err := json.Unmarshal([]byte(desc), &doc); err != nil {
			return Settings{}, fmt.Errorf("session: parsing session description: %w", err)
		}
		doc.applyTo(&s)
	}

	s.ViewResolution = pkt.NegotiatedUint32Pair("view_resolution", [2]uint32{0, 0})
	s.RefreshRateHint = pkt.NegotiatedFloat32("refresh_rate_hint", DefaultRefreshRateHint)
	s.GameAudioSampleRate = pkt.NegotiatedUint("game_audio_sample_rate", DefaultGameAudioSampleRate)

	return s, nil
}

// applyTo overlays every key present in the session description onto s.
func (d *sessionDescription) applyTo(s *Settings) {
	if c := d.Connection; c != nil {
		if c.StreamPort != nil {
			s.Connection.StreamPort = *c.StreamPort
		}
		if c.StreamProtocol != nil {
			s.Connection.StreamProtocol = *c.StreamProtocol
		}
		if c.ClientSendBufferBytes != nil {
			s.Connection.ClientSendBufferBytes = *c.ClientSendBufferBytes
		}
		if c.ClientRecvBufferBytes != nil {
			s.Connection.ClientRecvBufferBytes = *c.ClientRecvBufferBytes
		}
		if c.PacketSize != nil {
			s.Connection.PacketSize = *c.PacketSize
		}
		if c.StatisticsHistorySize != nil {
			s.Connection.StatisticsHistorySize = *c.StatisticsHistorySize
		}
		if c.AvoidVideoGlitching != nil {
			s.Connection.AvoidVideoGlitching = *c.AvoidVideoGlitching
		}
	}

	if v := d.Video; v != nil {
		if v.MaxBufferingFrames != nil {
			s.Video.MaxBufferingFrames = *v.MaxBufferingFrames
		}
		if v.BufferingHistoryWeight != nil {
			s.Video.BufferingHistoryWeight = *v.BufferingHistoryWeight
		}
		if v.MediacodecExtraOptions != nil {
			s.Video.MediacodecExtraOptions = v.MediacodecExtraOptions
		}
	}

	if a := d.Audio; a != nil {
		if a.GameAudio != nil {
			s.Audio.GameAudio = subConfigFrom(a.GameAudio)
		}
		if a.Microphone != nil {
			s.Audio.Microphone = subConfigFrom(a.Microphone)
		}
	}

	if h := d.Headset; h != nil && h.Controllers != nil {
		if s.Controllers == nil {
			s.Controllers = &ControllerSettings{}
		}
		if h.Controllers.SteamVRPipelineFrames != nil {
			s.Controllers.SteamVRPipelineFrames = *h.Controllers.SteamVRPipelineFrames
		}
	}
}

// subConfigFrom interprets an audio sub-configuration value from the
// session description: null and false disable the sub-stream, any other
// value (an object, true) enables it.
func subConfigFrom(raw json.RawMessage) *struct{} {
	switch strings.TrimSpace(string(raw)) {
	case "null", "false":
		return nil
	default:
		return &struct{}{}
	}
}

// DecoderInitConfig projects the video settings into the wire shape sent to
// the decoder collaborator via the published session singleton.
func (s Settings) DecoderInitConfig() protocol.DecoderInitConfig {
	return protocol.DecoderInitConfig{
		MaxBufferingFrames:     s.Video.MaxBufferingFrames,
		BufferingHistoryWeight: s.Video.BufferingHistoryWeight,
		MediacodecExtraOptions: s.Video.MediacodecExtraOptions,
	}
}
