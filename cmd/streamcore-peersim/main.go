// Copyright (c) 2026 Lucidwave. All rights reserved.
// Use of this source code is governed by the Streamcore License
// that can be found in the LICENSE file.

// streamcore-peersim is a development-only simulated streaming host: it
// listens for a client's discovery announcement, connects back, performs the
// handshake, and feeds the stream socket a synthetic video pattern. Enough
// to drive the client through a real session on a loopback or LAN setup
// without a full streaming server.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/lucidwave/streamcore/internal/discovery"
	"github.com/lucidwave/streamcore/internal/protocol"
)

func main() {
	broadcastPort := flag.Int("broadcast-port", 9943, "UDP port to listen on for client announcements")
	clientPort := flag.Int("client-port", 9943, "TCP port the client listens on for the control channel")
	streamPort := flag.Int("stream-port", 9944, "UDP port the client binds the stream socket on")
	refreshRate := flag.Float64("refresh-rate", 72.0, "refresh_rate_hint to negotiate")
	frameBytes := flag.Int("frame-bytes", 1200, "synthetic video payload size per packet")
	idrInterval := flag.Int("idr-interval", 60, "emit an IDR every N frames")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	udpConn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: *broadcastPort})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listening for announcements: %v\n", err)
		os.Exit(1)
	}
	defer udpConn.Close()
	logger.Info("waiting for client announcements", "port", *broadcastPort)

	buf := make([]byte, 2048)
	for {
		n, addr, err := udpConn.ReadFromUDP(buf)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading announcement: %v\n", err)
			os.Exit(1)
		}
		ann, err := discovery.DecodeAnnouncement(buf[:n])
		if err != nil {
			logger.Debug("ignoring malformed announcement", "from", addr, "error", err)
			continue
		}
		logger.Info("client announced", "hostname", ann.Hostname, "from", addr.IP)

		if err := runSession(logger, addr.IP, *clientPort, *streamPort, *refreshRate, *frameBytes, *idrInterval); err != nil {
			logger.Warn("session ended", "error", err)
		} else {
			logger.Info("session ended cleanly")
		}
	}
}

// runSession drives one full client session: control handshake, stream
// bring-up, then synthetic video until the control channel drops.
func runSession(logger *slog.Logger, clientIP net.IP, clientPort, streamPort int, refreshRate float64, frameBytes, idrInterval int) error {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", clientIP, clientPort), 2*time.Second)
	if err != nil {
		return fmt.Errorf("dialing client control port: %w", err)
	}
	defer conn.Close()

	// The client's post-handshake poll expects StartStream to already be in
	// flight, so send the config and the start signal back to back before
	// consuming anything.
	negotiated := map[string]json.RawMessage{
		"view_resolution":        json.RawMessage(`[1832,1920]`),
		"refresh_rate_hint":      json.RawMessage(fmt.Sprintf("%g", refreshRate)),
		"game_audio_sample_rate": json.RawMessage(`48000`),
	}
	streamCfg := protocol.StreamConfigPacket{
		SessionDescription: fmt.Sprintf(`{"connection":{"stream_port":%d}}`, streamPort),
		Negotiated:         negotiated,
	}
	if err := protocol.WriteJSONFrame(conn, protocol.KindStreamConfig, &streamCfg); err != nil {
		return fmt.Errorf("sending stream config: %w", err)
	}
	if err := protocol.WriteEmptyFrame(conn, protocol.KindStartStream); err != nil {
		return fmt.Errorf("sending start stream: %w", err)
	}

	var accepted protocol.ConnectionAccepted
	kind, err := protocol.ReadJSONFrame(conn, &accepted)
	if err != nil {
		return fmt.Errorf("reading connection accepted: %w", err)
	}
	if kind != protocol.KindConnectionAccepted {
		return fmt.Errorf("expected ConnectionAccepted, got kind %#x", kind)
	}
	logger.Info("client accepted", "display_name", accepted.DisplayName, "protocol_id", accepted.ClientProtocolID)

	initCfg := protocol.InitializeDecoder{Config: protocol.DecoderInitConfig{
		MaxBufferingFrames:     2,
		BufferingHistoryWeight: 0.9,
	}}
	if err := protocol.WriteJSONFrame(conn, protocol.KindInitializeDecoder, &initCfg); err != nil {
		return fmt.Errorf("sending decoder init: %w", err)
	}

	// Drain client control traffic until the connection drops. RequestIdr is
	// forwarded to the video sender; everything else is just logged.
	idrRequests := make(chan struct{}, 1)
	readErr := make(chan error, 1)
	go func() {
		for {
			kind, _, err := protocol.ReadFrame(conn)
			if err != nil {
				readErr <- err
				return
			}
			switch kind {
			case protocol.KindStreamReady:
				logger.Info("client reported stream ready")
			case protocol.KindKeepAlive:
				logger.Debug("keepalive")
			case protocol.KindRequestIdr:
				logger.Info("client requested IDR")
				select {
				case idrRequests <- struct{}{}:
				default:
				}
			case protocol.KindBattery:
				logger.Debug("battery report")
			default:
				logger.Debug("ignoring control packet", "kind", kind)
			}
		}
	}()

	// Unconnected socket: a send racing the client's stream bind must not
	// surface the ICMP port-unreachable as a send error here.
	videoConn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return fmt.Errorf("opening video send socket: %w", err)
	}
	defer videoConn.Close()
	videoDst := &net.UDPAddr{IP: clientIP, Port: streamPort}

	frameInterval := time.Duration(float64(time.Second) / refreshRate)
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	payload := make([]byte, frameBytes)
	var seq uint32
	frame := 0
	for {
		select {
		case err := <-readErr:
			return fmt.Errorf("control channel closed: %w", err)
		case <-idrRequests:
			frame = 0
		case <-ticker.C:
		}

		seq++
		var flags byte
		if frame%idrInterval == 0 {
			flags |= protocol.FlagIDR
		}
		frame++

		hdr := protocol.DatagramHeader{
			Subject:   protocol.SubjectVideo,
			Seq:       seq,
			Flags:     flags,
			Timestamp: time.Now().UnixNano(),
		}
		if _, err := videoConn.WriteToUDP(protocol.WriteDatagram(hdr, payload), videoDst); err != nil {
			return fmt.Errorf("sending video datagram: %w", err)
		}
	}
}
