// Copyright (c) 2026 Lucidwave. All rights reserved.
// Use of this source code is governed by the Streamcore License
// that can be found in the LICENSE file.

// Package platform defines the contract the session core consumes from
// on-device platform services (battery, local IP, device model) and
// provides a concrete implementation backed by gopsutil.
//
// None of these facilities are owned by the session core: they are
// external collaborators. This package exists so the core can depend on an
// interface instead of reaching into the OS directly.
package platform

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/shirou/gopsutil/v3/load"
	psnet "github.com/shirou/gopsutil/v3/net"
)

// BatteryState is a point-in-time reading of the device's battery.
type BatteryState struct {
	DeviceID uint64
	Gauge    float32 // 0.0-1.0
	Plugged  bool
}

// Environment is the platform-services contract the session core consumes.
// A production build backs this with gopsutil and OS facilities; tests back
// it with a fake that returns fixed values.
type Environment interface {
	// Hostname returns the persistent, stable client identity string.
	Hostname() string

	// LocalIP returns the client's local network address as a dotted
	// string, queried fresh on each call.
	LocalIP() (string, error)

	// DeviceModel returns a human-readable device model string.
	DeviceModel() string

	// Battery returns the current battery reading. Implementations that
	// run on hardware without a battery (e.g. a desktop relay) return
	// ErrNoBattery.
	Battery(ctx context.Context) (BatteryState, error)

	// MicrophoneSampleRate returns the capture sample rate the active
	// microphone device is configured for, consulted at handshake time
	// and re-probed best-effort whenever capture is opened.
	MicrophoneSampleRate() uint32

	// LoadAverage returns the host's 1-minute load average, folded into
	// per-session diagnostics. Best-effort: returns 0 when unavailable.
	LoadAverage() float64
}

// ErrNoBattery is returned by Battery on hardware with no battery sensor.
var ErrNoBattery = fmt.Errorf("platform: no battery present")

// gopsutilEnvironment is the production Environment, backed by gopsutil.
type gopsutilEnvironment struct {
	hostname             string
	deviceModel          string
	microphoneSampleRate uint32
	logger               *slog.Logger
}

// New builds the production Environment. hostname is the persistent client
// identity (read from client configuration, not queried here); deviceModel
// and microphoneSampleRate come from the same source.
func New(hostname, deviceModel string, microphoneSampleRate uint32, logger *slog.Logger) Environment {
	return &gopsutilEnvironment{
		hostname:             hostname,
		deviceModel:          deviceModel,
		microphoneSampleRate: microphoneSampleRate,
		logger:               logger.With("component", "platform"),
	}
}

func (e *gopsutilEnvironment) Hostname() string {
	if e.hostname != "" {
		return e.hostname
	}
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "unknown-host"
}

func (e *gopsutilEnvironment) DeviceModel() string {
	return e.deviceModel
}

func (e *gopsutilEnvironment) MicrophoneSampleRate() uint32 {
	return e.microphoneSampleRate
}

func (e *gopsutilEnvironment) LoadAverage() float64 {
	avg, err := load.Avg()
	if err != nil {
		e.logger.Debug("load average unavailable", "error", err)
		return 0
	}
	return avg.Load1
}

// LocalIP queries the first non-loopback, "up" interface address reported
// by gopsutil's net module.
func (e *gopsutilEnvironment) LocalIP() (string, error) {
	stats, err := psnet.Interfaces()
	if err != nil {
		return "", fmt.Errorf("listing interfaces: %w", err)
	}
	for _, iface := range stats {
		isUp := false
		for _, flag := range iface.Flags {
			if flag == "up" {
				isUp = true
				break
			}
		}
		if !isUp {
			continue
		}
		for _, addr := range iface.Addrs {
			ip := stripCIDR(addr.Addr)
			if ip == "" || ip == "127.0.0.1" || ip == "::1" {
				continue
			}
			return ip, nil
		}
	}
	return "", fmt.Errorf("no usable local IP found")
}

func stripCIDR(addr string) string {
	for i, c := range addr {
		if c == '/' {
			return addr[:i]
		}
	}
	return addr
}

// Battery reports the device's battery state. This module targets a
// headset-relay deployment with no battery sensor, so it always returns
// ErrNoBattery; a mobile build replaces this package's New with a
// platform-specific sensor read.
func (e *gopsutilEnvironment) Battery(context.Context) (BatteryState, error) {
	return BatteryState{}, ErrNoBattery
}
