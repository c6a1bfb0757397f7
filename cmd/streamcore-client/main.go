// Copyright (c) 2026 Lucidwave. All rights reserved.
// Use of this source code is governed by the Streamcore License
// that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lucidwave/streamcore/internal/config"
	"github.com/lucidwave/streamcore/internal/diagnostics"
	"github.com/lucidwave/streamcore/internal/logging"
	"github.com/lucidwave/streamcore/internal/platform"
	"github.com/lucidwave/streamcore/internal/protocol"
	"github.com/lucidwave/streamcore/internal/session"
)

const (
	deviceModel = "streamcore-desktop"

	// Capture sample rate advertised before the audio device is opened.
	// Re-probed best-effort at capture time by the audio collaborator.
	defaultMicSampleRate = 48000
)

func main() {
	// Subcommand "probe" detected via os.Args, for field reachability checks
	// against a suspected streaming host.
	if len(os.Args) >= 3 && os.Args[1] == "probe" {
		runProbe(os.Args[2])
		return
	}

	configPath := flag.String("config", "/etc/streamcore/client.yaml", "path to client config file")
	discoverOnce := flag.Bool("discover-once", false, "run a single streaming session and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	defer logCloser.Close()

	env := platform.New(cfg.Identity.Hostname, deviceModel, defaultMicSampleRate, logger)

	sv := session.NewSupervisor(cfg, env, logger)
	sv.SetRecommendedCapabilities(protocol.StreamingCapabilities{
		DefaultViewResolution: [2]uint32{1832, 1920},
		SupportedRefreshRates: []float32{60, 72, 90, 120},
		MicrophoneSampleRate:  defaultMicSampleRate,
	})

	if cfg.Diagnostics.Enabled && cfg.Diagnostics.RollupCron != "" {
		rollup, err := diagnostics.NewRollupScheduler(
			cfg.Diagnostics.RollupCron,
			cfg.Diagnostics.Directory,
			cfg.Diagnostics.UploadBucket,
			cfg.Diagnostics.UploadRegion,
			cfg.Diagnostics.UploadTimeout,
			logger,
		)
		if err != nil {
			logger.Error("diagnostics rollup disabled", "error", err)
		} else {
			rollup.Start()
			defer func() {
				stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
				rollup.Stop(stopCtx)
				stopCancel()
			}()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Drain the outward event queue. A real deployment hands these to the
	// headset's render/HUD layer; the standalone binary logs them.
	go func() {
		for ev := range sv.Events() {
			switch e := ev.(type) {
			case session.UpdateHudMessage:
				logger.Info("hud", "text", e.Text)
			case session.StreamingStarted:
				logger.Info("streaming started",
					"view_resolution", e.ViewResolution,
					"refresh_rate_hint", e.RefreshRateHint,
				)
			case session.StreamingStopped:
				logger.Info("streaming stopped")
				if *discoverOnce {
					cancel()
				}
			case session.Haptics:
				logger.Debug("haptics",
					"device_id", e.DeviceID,
					"duration", e.Duration,
					"amplitude", e.Amplitude,
				)
			}
		}
	}()

	runDone := make(chan error, 1)
	go func() { runDone <- sv.Run(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				logger.Info("received SIGHUP, reloading config", "path", *configPath)
				newCfg, loadErr := config.Load(*configPath)
				if loadErr != nil {
					logger.Error("reload failed, keeping current config", "error", loadErr)
					continue
				}
				// The supervisor reads its config at the start of every
				// attempt, so swapping in place takes effect on the next
				// Discovering phase.
				*cfg = *newCfg
				continue
			}

			logger.Info("received signal, shutting down", "signal", sig.String())
			cancel()
			if err := <-runDone; err != nil {
				logger.Error("supervisor exited with error", "error", err)
				os.Exit(1)
			}
			return

		case err := <-runDone:
			cancel()
			if err != nil {
				logger.Error("supervisor exited with error", "error", err)
				os.Exit(1)
			}
			return
		}
	}
}

// runProbe checks plain TCP reachability of a streaming host's control
// address and exits 0/1 accordingly.
func runProbe(address string) {
	conn, err := net.DialTimeout("tcp", address, 3*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "UNREACHABLE: %s: %v\n", address, err)
		os.Exit(1)
	}
	conn.Close()
	fmt.Printf("OK: %s reachable\n", address)
}
