// Copyright (c) 2026 Lucidwave. All rights reserved.
// Use of this source code is governed by the Streamcore License
// that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "client.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoadFillsDefaults(t *testing.T) {
	path := writeTempConfig(t, `
identity:
  hostname: quest-3-livingroom
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Discovery.BroadcastPort != 9943 {
		t.Errorf("Discovery.BroadcastPort = %d, want 9943", cfg.Discovery.BroadcastPort)
	}
	if cfg.Discovery.RetryInterval != 500*time.Millisecond {
		t.Errorf("Discovery.RetryInterval = %v, want 500ms", cfg.Discovery.RetryInterval)
	}
	if cfg.Network.StreamProtocol != "udp" {
		t.Errorf("Network.StreamProtocol = %q, want udp", cfg.Network.StreamProtocol)
	}
	if cfg.Network.ClientSendBufferBytesRaw != 2*1024*1024 {
		t.Errorf("Network.ClientSendBufferBytesRaw = %d, want 2mb", cfg.Network.ClientSendBufferBytesRaw)
	}
	if cfg.Video.BufferingHistoryWeight != 0.9 {
		t.Errorf("Video.BufferingHistoryWeight = %v, want 0.9", cfg.Video.BufferingHistoryWeight)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging defaults = %+v", cfg.Logging)
	}
}

func TestLoadMissingHostnameFails(t *testing.T) {
	path := writeTempConfig(t, `
network:
  stream_port: 9944
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing identity.hostname")
	}
}

func TestLoadRejectsUnknownStreamProtocol(t *testing.T) {
	path := writeTempConfig(t, `
identity:
  hostname: quest-3
network:
  stream_protocol: quic
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unsupported stream_protocol")
	}
}

func TestLoadRejectsLowBandwidthLimit(t *testing.T) {
	path := writeTempConfig(t, `
identity:
  hostname: quest-3
network:
  bandwidth_limit: 1kb
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for bandwidth_limit below 64kb")
	}
}

func TestParseByteSize(t *testing.T) {
	cases := map[string]int64{
		"256b": 256,
		"4kb":  4 * 1024,
		"2mb":  2 * 1024 * 1024,
		"1gb":  1024 * 1024 * 1024,
		"512":  512,
	}
	for in, want := range cases {
		got, err := ParseByteSize(in)
		if err != nil {
			t.Errorf("ParseByteSize(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseByteSize(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParseByteSizeRejectsGarbage(t *testing.T) {
	if _, err := ParseByteSize("not-a-size"); err == nil {
		t.Fatal("expected error for garbage size string")
	}
}
