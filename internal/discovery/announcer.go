// Copyright (c) 2026 Lucidwave. All rights reserved.
// Use of this source code is governed by the Streamcore License
// that can be found in the LICENSE file.

// Package discovery implements the UDP broadcast announcement the client
// emits so a peer on the local network can find it. The listener the peer
// connects back to is controlsocket.ConnectTo, not part of this package.
package discovery

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/lucidwave/streamcore/internal/protocol"
)

// Announcement is the single UDP datagram broadcast to advertise this
// client's presence: a protocol version byte followed by the hostname.
type Announcement struct {
	ProtocolVersion byte
	Hostname        string
}

// Announcer owns a UDP broadcast socket. Broadcast is its one operation;
// it fails only on network-unreachable conditions, which the caller treats
// as "temporarily offline".
type Announcer struct {
	conn *net.UDPConn
	dst  *net.UDPAddr
}

// New opens a broadcast socket that sends to broadcastPort. Each call
// binds a fresh socket; the supervisor opens one per announcement and
// closes it after the broadcast.
func New(broadcastPort int) (*Announcer, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("discovery: opening broadcast socket: %w", err)
	}
	if err := conn.SetWriteBuffer(1 << 16); err != nil {
		conn.Close()
		return nil, fmt.Errorf("discovery: setting write buffer: %w", err)
	}
	return &Announcer{
		conn: conn,
		dst:  &net.UDPAddr{IP: net.IPv4bcast, Port: broadcastPort},
	}, nil
}

// Close releases the broadcast socket.
func (a *Announcer) Close() error {
	return a.conn.Close()
}

// Broadcast emits one announcement datagram. A network-unreachable error
// (no usable broadcast-capable interface) is the only failure mode the
// supervisor distinguishes; anything else is also surfaced but treated the
// same way by the caller.
func (a *Announcer) Broadcast(hostname string) error {
	payload := encodeAnnouncement(Announcement{
		ProtocolVersion: protocol.ProtocolVersion,
		Hostname:        hostname,
	})
	if _, err := a.conn.WriteToUDP(payload, a.dst); err != nil {
		return fmt.Errorf("discovery: broadcasting announcement: %w", err)
	}
	return nil
}

// encodeAnnouncement serializes an Announcement into one datagram:
// [Magic 4B][Version 1B][HostnameLen uint16 2B][Hostname].
func encodeAnnouncement(a Announcement) []byte {
	hostBytes := []byte(a.Hostname)
	buf := make([]byte, 4+1+2+len(hostBytes))
	copy(buf[0:4], protocol.MagicAnnounce[:])
	buf[4] = a.ProtocolVersion
	binary.BigEndian.PutUint16(buf[5:7], uint16(len(hostBytes)))
	copy(buf[7:], hostBytes)
	return buf
}

// DecodeAnnouncement parses a received datagram back into an Announcement.
// Used by the dev peer simulator, which is the only collaborator in this
// module that ever receives one.
func DecodeAnnouncement(buf []byte) (Announcement, error) {
	if len(buf) < 7 {
		return Announcement{}, protocol.ErrTruncatedFrame
	}
	if buf[0] != protocol.MagicAnnounce[0] || buf[1] != protocol.MagicAnnounce[1] ||
		buf[2] != protocol.MagicAnnounce[2] || buf[3] != protocol.MagicAnnounce[3] {
		return Announcement{}, protocol.ErrInvalidMagic
	}
	version := buf[4]
	hostLen := binary.BigEndian.Uint16(buf[5:7])
	if len(buf) < 7+int(hostLen) {
		return Announcement{}, protocol.ErrTruncatedFrame
	}
	return Announcement{
		ProtocolVersion: version,
		Hostname:        string(buf[7 : 7+int(hostLen)]),
	}, nil
}
