// Copyright (c) 2026 Lucidwave. All rights reserved.
// Use of this source code is governed by the Streamcore License
// that can be found in the LICENSE file.

// Package config loads and validates the client's YAML configuration file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ClientConfig is the full configuration of the streamcore client.
type ClientConfig struct {
	Identity    IdentityInfo  `yaml:"identity"`
	Discovery   DiscoveryInfo `yaml:"discovery"`
	Network     NetworkInfo   `yaml:"network"`
	Video       VideoInfo     `yaml:"video"`
	Audio       AudioInfo     `yaml:"audio"`
	Headset     HeadsetInfo   `yaml:"headset"`
	Diagnostics Diagnostics   `yaml:"diagnostics"`
	Logging     LoggingInfo   `yaml:"logging"`
}

// HeadsetInfo mirrors Settings.headset.
type HeadsetInfo struct {
	Controllers *ControllersInfo `yaml:"controllers"`
}

// ControllersInfo exposes the one field the core consumes from an optional
// controllers sub-configuration.
type ControllersInfo struct {
	SteamVRPipelineFrames uint32 `yaml:"steamvr_pipeline_frames"`
}

// IdentityInfo identifies this client on the network.
type IdentityInfo struct {
	Hostname string `yaml:"hostname"`
}

// DiscoveryInfo configures the UDP broadcast announcer.
type DiscoveryInfo struct {
	BroadcastPort int           `yaml:"broadcast_port"`
	ListenPort    int           `yaml:"listen_port"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// NetworkInfo configures the stream socket's transport parameters.
type NetworkInfo struct {
	StreamPort            int    `yaml:"stream_port"`
	StreamProtocol        string `yaml:"stream_protocol"` // "udp" or "tcp"
	ClientSendBufferSize  string `yaml:"client_send_buffer_bytes"`
	ClientRecvBufferSize  string `yaml:"client_recv_buffer_bytes"`
	PacketSize            int    `yaml:"packet_size"`
	StatisticsHistorySize int    `yaml:"statistics_history_size"`
	AvoidVideoGlitching   bool   `yaml:"avoid_video_glitching"`

	ClientSendBufferBytesRaw int64 `yaml:"-"`
	ClientRecvBufferBytesRaw int64 `yaml:"-"`

	// BandwidthLimit throttles per-subject outbound sends (0 = unlimited).
	BandwidthLimit    string `yaml:"bandwidth_limit"`
	BandwidthLimitRaw int64  `yaml:"-"`

	// DSCP is a DSCP/TOS name (e.g. "EF", "AF41") applied to the stream
	// socket for QoS marking, or empty to disable.
	DSCP string `yaml:"dscp"`
}

// VideoInfo mirrors Settings.video.
type VideoInfo struct {
	MaxBufferingFrames     uint32            `yaml:"max_buffering_frames"`
	BufferingHistoryWeight float32           `yaml:"buffering_history_weight"`
	MediacodecExtraOptions map[string]string `yaml:"mediacodec_extra_options"`
}

// AudioInfo mirrors Settings.audio.
type AudioInfo struct {
	GameAudio  *SubConfig `yaml:"game_audio"`
	Microphone *SubConfig `yaml:"microphone"`
}

// SubConfig is a presence-only sub-configuration: a non-nil pointer means enabled.
type SubConfig struct{}

// Diagnostics configures the optional per-session recorder.
type Diagnostics struct {
	Enabled       bool          `yaml:"enabled"`
	Directory     string        `yaml:"directory"`
	RollupCron    string        `yaml:"rollup_cron"`
	UploadBucket  string        `yaml:"upload_bucket"`
	UploadRegion  string        `yaml:"upload_region"`
	UploadTimeout time.Duration `yaml:"upload_timeout"`
}

// LoggingInfo configures internal/logging.
type LoggingInfo struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	File          string `yaml:"file"`
	SessionLogDir string `yaml:"session_log_dir"`
}

// Load reads and validates the client config file at path.
func Load(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading client config: %w", err)
	}

	var cfg ClientConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing client config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating client config: %w", err)
	}

	return &cfg, nil
}

func (c *ClientConfig) validate() error {
	if c.Identity.Hostname == "" {
		return fmt.Errorf("identity.hostname is required")
	}

	if c.Discovery.BroadcastPort <= 0 {
		c.Discovery.BroadcastPort = 9943
	}
	if c.Discovery.ListenPort <= 0 {
		c.Discovery.ListenPort = 9943
	}
	if c.Discovery.RetryInterval <= 0 {
		c.Discovery.RetryInterval = 500 * time.Millisecond
	}

	if c.Network.StreamPort <= 0 {
		c.Network.StreamPort = 9944
	}
	if c.Network.StreamProtocol == "" {
		c.Network.StreamProtocol = "udp"
	}
	if c.Network.StreamProtocol != "udp" && c.Network.StreamProtocol != "tcp" {
		return fmt.Errorf("network.stream_protocol must be udp or tcp, got %q", c.Network.StreamProtocol)
	}
	if c.Network.PacketSize <= 0 {
		c.Network.PacketSize = 1400
	}
	if c.Network.StatisticsHistorySize <= 0 {
		c.Network.StatisticsHistorySize = 256
	}

	if c.Network.ClientSendBufferSize == "" {
		c.Network.ClientSendBufferSize = "2mb"
	}
	sendBuf, err := ParseByteSize(c.Network.ClientSendBufferSize)
	if err != nil {
		return fmt.Errorf("network.client_send_buffer_bytes: %w", err)
	}
	c.Network.ClientSendBufferBytesRaw = sendBuf

	if c.Network.ClientRecvBufferSize == "" {
		c.Network.ClientRecvBufferSize = "2mb"
	}
	recvBuf, err := ParseByteSize(c.Network.ClientRecvBufferSize)
	if err != nil {
		return fmt.Errorf("network.client_recv_buffer_bytes: %w", err)
	}
	c.Network.ClientRecvBufferBytesRaw = recvBuf

	if c.Network.BandwidthLimit != "" {
		bw, err := ParseByteSize(c.Network.BandwidthLimit)
		if err != nil {
			return fmt.Errorf("network.bandwidth_limit: %w", err)
		}
		if bw < 64*1024 {
			return fmt.Errorf("network.bandwidth_limit must be at least 64kb, got %s", c.Network.BandwidthLimit)
		}
		c.Network.BandwidthLimitRaw = bw
	}

	if c.Video.MaxBufferingFrames == 0 {
		c.Video.MaxBufferingFrames = 2
	}
	if c.Video.BufferingHistoryWeight == 0 {
		c.Video.BufferingHistoryWeight = 0.9
	}

	if c.Diagnostics.Enabled {
		if c.Diagnostics.Directory == "" {
			c.Diagnostics.Directory = "/var/lib/streamcore/diagnostics"
		}
		if c.Diagnostics.RollupCron == "" {
			c.Diagnostics.RollupCron = "0 3 * * *"
		}
		if c.Diagnostics.UploadTimeout <= 0 {
			c.Diagnostics.UploadTimeout = 30 * time.Second
		}
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.SessionLogDir == "" {
		c.Logging.SessionLogDir = "/var/log/streamcore/sessions"
	}

	return nil
}

// ParseByteSize converts human-readable sizes like "256mb", "1gb" to bytes.
func ParseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	// Ordered longest-suffix-first so "mb" never matches as "b".
	type suffix struct {
		s string
		m int64
	}
	suffixes := []suffix{
		{"gb", 1024 * 1024 * 1024},
		{"mb", 1024 * 1024},
		{"kb", 1024},
		{"b", 1},
	}

	for _, sfx := range suffixes {
		if strings.HasSuffix(s, sfx.s) {
			numStr := strings.TrimSuffix(s, sfx.s)
			num, err := strconv.ParseInt(numStr, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid number %q: %w", numStr, err)
			}
			return num * sfx.m, nil
		}
	}

	num, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unknown size format %q", s)
	}
	return num, nil
}
