// Copyright (c) 2026 Lucidwave. All rights reserved.
// Use of this source code is governed by the Streamcore License
// that can be found in the LICENSE file.

package streamsocket

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/lucidwave/streamcore/internal/protocol"
)

func TestSocketSendRecvRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, err := Bind(ctx, "udp", 0, 0, 0, nil)
	if err != nil {
		t.Fatalf("Bind server: %v", err)
	}
	defer server.Close()
	serverAddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: server.conn.LocalAddr().(*net.UDPAddr).Port}

	client, err := Bind(ctx, "udp", 0, 0, 0, nil)
	if err != nil {
		t.Fatalf("Bind client: %v", err)
	}
	defer client.Close()
	clientAddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: client.conn.LocalAddr().(*net.UDPAddr).Port}

	client.peerAddr = serverAddr
	client.packetSize = 1400

	acceptErr := make(chan error, 1)
	go func() { acceptErr <- server.AcceptFromPeer(clientAddr, 1400, AcceptTimeout) }()

	time.Sleep(5 * time.Millisecond)
	if err := client.Sender(protocol.SubjectTracking).Send([]byte("hello"), false); err != nil {
		t.Fatalf("priming send: %v", err)
	}

	if err := <-acceptErr; err != nil {
		t.Fatalf("AcceptFromPeer: %v", err)
	}

	go server.ReceiveLoop(ctx)

	sender := client.Sender(protocol.SubjectVideo)
	if err := sender.Send([]byte("frame-1"), true); err != nil {
		t.Fatalf("Send: %v", err)
	}

	receiver := server.Receiver(protocol.SubjectVideo)
	hdr, payload, err := receiver.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if string(payload) != "frame-1" {
		t.Fatalf("payload = %q, want frame-1", payload)
	}
	if !hdr.IsIDR() {
		t.Fatal("expected IsIDR() true")
	}
	if hdr.Subject != protocol.SubjectVideo {
		t.Fatalf("Subject = %v, want SubjectVideo", hdr.Subject)
	}
}

func TestSocketAcceptTimesOutWithoutPeer(t *testing.T) {
	ctx := context.Background()
	s, err := Bind(ctx, "udp", 0, 0, 0, nil)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer s.Close()

	unreachablePeer := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1}
	err = s.AcceptFromPeer(unreachablePeer, 1400, 5*time.Millisecond)
	if err != ErrAcceptTimeout {
		t.Fatalf("AcceptFromPeer() = %v, want ErrAcceptTimeout", err)
	}
}

func TestBindRejectsUnsupportedProtocol(t *testing.T) {
	if _, err := Bind(context.Background(), "tcp", 0, 0, 0, nil); err == nil {
		t.Fatal("expected error for unsupported protocol")
	}
}
