// Copyright (c) 2026 Lucidwave. All rights reserved.
// Use of this source code is governed by the Streamcore License
// that can be found in the LICENSE file.

package platform

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

func TestNewHostnameFallsBackToOS(t *testing.T) {
	env := New("", "", 44100, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if env.Hostname() == "" {
		t.Fatal("expected a non-empty fallback hostname")
	}
}

func TestNewHostnameUsesConfiguredValue(t *testing.T) {
	env := New("quest-3-livingroom", "Quest 3", 48000, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if got := env.Hostname(); got != "quest-3-livingroom" {
		t.Fatalf("Hostname() = %q, want quest-3-livingroom", got)
	}
	if got := env.DeviceModel(); got != "Quest 3" {
		t.Fatalf("DeviceModel() = %q, want Quest 3", got)
	}
	if got := env.MicrophoneSampleRate(); got != 48000 {
		t.Fatalf("MicrophoneSampleRate() = %d, want 48000", got)
	}
}

func TestBatteryReturnsErrNoBatteryOnThisTarget(t *testing.T) {
	env := New("h", "m", 44100, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if _, err := env.Battery(context.Background()); err != ErrNoBattery {
		t.Fatalf("Battery() err = %v, want ErrNoBattery", err)
	}
}

func TestStripCIDR(t *testing.T) {
	cases := map[string]string{
		"192.168.1.20/24": "192.168.1.20",
		"192.168.1.20":    "192.168.1.20",
		"fe80::1/64":      "fe80::1",
	}
	for in, want := range cases {
		if got := stripCIDR(in); got != want {
			t.Errorf("stripCIDR(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFakeImplementsEnvironment(t *testing.T) {
	f := &Fake{
		HostnameValue:    "fake-host",
		LocalIPValue:     "10.0.0.5",
		DeviceModelValue: "Simulator",
		MicSampleRate:    44100,
	}
	if f.Hostname() != "fake-host" {
		t.Fatal("Hostname mismatch")
	}
	ip, err := f.LocalIP()
	if err != nil || ip != "10.0.0.5" {
		t.Fatalf("LocalIP() = (%q, %v), want (10.0.0.5, nil)", ip, err)
	}
}
