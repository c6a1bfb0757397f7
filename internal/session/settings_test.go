// Copyright (c) 2026 Lucidwave. All rights reserved.
// Use of this source code is governed by the Streamcore License
// that can be found in the LICENSE file.

package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/lucidwave/streamcore/internal/config"
	"github.com/lucidwave/streamcore/internal/protocol"
)

func baseConfig() *config.ClientConfig {
	return &config.ClientConfig{
		Identity: config.IdentityInfo{Hostname: "quest-test"},
		Network: config.NetworkInfo{
			StreamPort:            9944,
			StreamProtocol:        "udp",
			PacketSize:            1400,
			StatisticsHistorySize: 256,
			AvoidVideoGlitching:   true,
		},
		Video: config.VideoInfo{
			MaxBufferingFrames:     2,
			BufferingHistoryWeight: 0.9,
		},
	}
}

func TestDeriveSettingsDefaultsWhenNegotiatedEmpty(t *testing.T) {
	pkt := &protocol.StreamConfigPacket{
		SessionDescription: "{}",
		Negotiated:         map[string]json.RawMessage{},
	}

	s, err := DeriveSettings(baseConfig(), pkt)
	if err != nil {
		t.Fatalf("DeriveSettings: %v", err)
	}

	if s.ViewResolution != [2]uint32{0, 0} {
		t.Errorf("ViewResolution = %v, want [0 0]", s.ViewResolution)
	}
	if s.RefreshRateHint != DefaultRefreshRateHint {
		t.Errorf("RefreshRateHint = %v, want %v", s.RefreshRateHint, float32(DefaultRefreshRateHint))
	}
	if s.GameAudioSampleRate != DefaultGameAudioSampleRate {
		t.Errorf("GameAudioSampleRate = %v, want %v", s.GameAudioSampleRate, DefaultGameAudioSampleRate)
	}
}

func TestDeriveSettingsNegotiatedValues(t *testing.T) {
	pkt := &protocol.StreamConfigPacket{
		Negotiated: map[string]json.RawMessage{
			"view_resolution":        json.RawMessage(`[1832,1920]`),
			"refresh_rate_hint":      json.RawMessage(`90.0`),
			"game_audio_sample_rate": json.RawMessage(`48000`),
			"some_future_key":        json.RawMessage(`{"ignored":true}`),
		},
	}

	s, err := DeriveSettings(baseConfig(), pkt)
	if err != nil {
		t.Fatalf("DeriveSettings: %v", err)
	}

	if s.ViewResolution != [2]uint32{1832, 1920} {
		t.Errorf("ViewResolution = %v, want [1832 1920]", s.ViewResolution)
	}
	if s.RefreshRateHint != 90.0 {
		t.Errorf("RefreshRateHint = %v, want 90", s.RefreshRateHint)
	}
	if s.GameAudioSampleRate != 48000 {
		t.Errorf("GameAudioSampleRate = %v, want 48000", s.GameAudioSampleRate)
	}
}

func TestDeriveSettingsLocalShapeCarriedFromConfig(t *testing.T) {
	cfg := baseConfig()
	cfg.Audio.GameAudio = &config.SubConfig{}
	cfg.Headset.Controllers = &config.ControllersInfo{SteamVRPipelineFrames: 3}

	s, err := DeriveSettings(cfg, &protocol.StreamConfigPacket{})
	if err != nil {
		t.Fatalf("DeriveSettings: %v", err)
	}

	if !s.Connection.AvoidVideoGlitching {
		t.Error("AvoidVideoGlitching not carried from config")
	}
	if s.Connection.StreamPort != 9944 || s.Connection.PacketSize != 1400 {
		t.Errorf("connection settings = %+v, want port 9944 / packet 1400", s.Connection)
	}
	if s.Audio.GameAudio == nil {
		t.Error("GameAudio sub-configuration lost")
	}
	if s.Audio.Microphone != nil {
		t.Error("Microphone sub-configuration invented from nothing")
	}
	if s.Controllers == nil || s.Controllers.SteamVRPipelineFrames != 3 {
		t.Errorf("Controllers = %+v, want pipeline frames 3", s.Controllers)
	}
}

func TestDeriveSettingsSessionDescriptionOverrides(t *testing.T) {
	cfg := baseConfig()
	cfg.Audio.Microphone = &config.SubConfig{}

	pkt := &protocol.StreamConfigPacket{
		SessionDescription: `{
			"connection": {"stream_port": 9955, "avoid_video_glitching": false},
			"video": {"max_buffering_frames": 5},
			"audio": {"game_audio": {}, "microphone": false},
			"headset": {"controllers": {"steamvr_pipeline_frames": 4}}
		}`,
	}

	s, err := DeriveSettings(cfg, pkt)
	if err != nil {
		t.Fatalf("DeriveSettings: %v", err)
	}

	if s.Connection.StreamPort != 9955 {
		t.Errorf("StreamPort = %d, want server-dictated 9955", s.Connection.StreamPort)
	}
	if s.Connection.AvoidVideoGlitching {
		t.Error("AvoidVideoGlitching not overridden to false by session description")
	}
	// Keys the description omits keep the client-side default.
	if s.Connection.PacketSize != 1400 {
		t.Errorf("PacketSize = %d, want local default 1400", s.Connection.PacketSize)
	}
	if s.Video.MaxBufferingFrames != 5 {
		t.Errorf("MaxBufferingFrames = %d, want 5", s.Video.MaxBufferingFrames)
	}
	if s.Video.BufferingHistoryWeight != 0.9 {
		t.Errorf("BufferingHistoryWeight = %v, want local default 0.9", s.Video.BufferingHistoryWeight)
	}
	if s.Audio.GameAudio == nil {
		t.Error("game_audio not enabled by session description")
	}
	if s.Audio.Microphone != nil {
		t.Error("microphone not disabled by session description")
	}
	if s.Controllers == nil || s.Controllers.SteamVRPipelineFrames != 4 {
		t.Errorf("Controllers = %+v, want pipeline frames 4", s.Controllers)
	}
}

func TestDeriveSettingsMalformedSessionDescriptionFails(t *testing.T) {
	pkt := &protocol.StreamConfigPacket{SessionDescription: "not a document"}
	if _, err := DeriveSettings(baseConfig(), pkt); err == nil {
		t.Fatal("expected an error for an unparseable session description")
	}
}

func TestDecoderInitConfigProjection(t *testing.T) {
	s := Settings{
		Video: VideoSettings{
			MaxBufferingFrames:     4,
			BufferingHistoryWeight: 0.8,
			MediacodecExtraOptions: map[string]string{"low-latency": "1"},
		},
	}

	got := s.DecoderInitConfig()
	if got.MaxBufferingFrames != 4 || got.BufferingHistoryWeight != 0.8 {
		t.Errorf("DecoderInitConfig = %+v", got)
	}
	if got.MediacodecExtraOptions["low-latency"] != "1" {
		t.Errorf("MediacodecExtraOptions = %v", got.MediacodecExtraOptions)
	}
}

func TestFrameInterval(t *testing.T) {
	if got := frameInterval(100); got != 10*time.Millisecond {
		t.Errorf("frameInterval(100) = %v, want 10ms", got)
	}
	// A non-positive hint falls back to the default refresh rate.
	defaultHint := float64(DefaultRefreshRateHint)
	want := time.Duration(float64(time.Second) / defaultHint)
	if got := frameInterval(0); got != want {
		t.Errorf("frameInterval(0) = %v, want %v", got, want)
	}
}
