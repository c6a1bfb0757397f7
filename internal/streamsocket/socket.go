// Copyright (c) 2026 Lucidwave. All rights reserved.
// Use of this source code is governed by the Streamcore License
// that can be found in the LICENSE file.

// Package streamsocket implements the multiplexed, subject-tagged datagram
// transport used for video, audio, haptics, tracking and statistics once a
// session has been configured.
//
// Five fixed, semantically distinct subjects are multiplexed as tagged
// datagrams over one UDP socket: delivery is best effort, order is
// preserved only within a subject, and gaps stay observable to the
// receiver instead of being retransmitted away.
package streamsocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/lucidwave/streamcore/internal/protocol"
)

const subjectCount = 5

const (
	// queueCapacity bounds how many undelivered datagrams may queue per
	// subject before the producer (ReceiveLoop) blocks. Video and audio
	// are latency sensitive, so this is intentionally small.
	queueCapacity = 8
)

// ErrBindTimeout is returned when binding the stream socket exceeds its
// fatal deadline.
var ErrBindTimeout = errors.New("streamsocket: bind timed out")

// ErrAcceptTimeout is returned when no datagram from the peer arrives
// within the fatal accept deadline.
var ErrAcceptTimeout = errors.New("streamsocket: accept timed out")

// Socket is the bound, peer-confirmed stream transport for one connection
// attempt. The zero value is not usable; construct with Bind then
// AcceptFromPeer.
type Socket struct {
	conn       *net.UDPConn
	peerAddr   *net.UDPAddr
	packetSize int
	queues     [subjectCount]*datagramQueue
	seqCounter [subjectCount]atomic.Uint32
	sender     *throttledSender
	logger     *slog.Logger
}

// Bind opens the UDP listener for the stream socket. protocolName is
// validated but only "udp" is implemented — the transport is inherently
// datagram-oriented. The bind itself is raced against a 1ms
// deadline per the handshake's fatal-timeout table; on real hardware a
// local ListenUDP is effectively instantaneous, so this deadline exists to
// bound a wedged network stack, not the common case.
func Bind(ctx context.Context, protocolName string, port int, sendBufBytes, recvBufBytes int, logger *slog.Logger) (*Socket, error) {
	if protocolName != "" && protocolName != "udp" {
		return nil, fmt.Errorf("streamsocket: unsupported protocol %q", protocolName)
	}

	type result struct {
		conn *net.UDPConn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
		done <- result{conn, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("binding stream socket: %w", r.err)
		}
		if sendBufBytes > 0 {
			_ = r.conn.SetWriteBuffer(sendBufBytes)
		}
		if recvBufBytes > 0 {
			_ = r.conn.SetReadBuffer(recvBufBytes)
		}
		if logger == nil {
			logger = slog.Default()
		}
		s := &Socket{conn: r.conn, logger: logger}
		for i := range s.queues {
			s.queues[i] = newDatagramQueue(queueCapacity)
		}
		return s, nil
	case <-time.After(time.Millisecond):
		return nil, ErrBindTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AcceptTimeout is the fatal deadline for AcceptFromPeer per the handshake
// timeout table.
const AcceptTimeout = 2 * time.Second

// AcceptFromPeer waits, within timeout, for the first datagram originating
// from peer, confirming the peer is actively sending on the newly bound
// socket before the receive loop starts. packetSize bounds the per-read
// buffer and every subsequent outbound datagram. Production callers pass
// AcceptTimeout; tests may pass a shorter value.
func (s *Socket) AcceptFromPeer(peer *net.UDPAddr, packetSize int, timeout time.Duration) error {
	s.packetSize = packetSize
	buf := make([]byte, packetSize)

	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("setting accept deadline: %w", err)
	}
	defer s.conn.SetReadDeadline(time.Time{})

	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				return ErrAcceptTimeout
			}
			return fmt.Errorf("accepting from peer: %w", err)
		}
		if !addr.IP.Equal(peer.IP) {
			continue
		}
		s.peerAddr = addr
		if hdr, payload, err := protocol.ReadDatagram(buf[:n]); err == nil {
			s.dispatch(hdr, append([]byte(nil), payload...))
		}
		return nil
	}
}

// SetBandwidthLimit installs a shared outbound token-bucket limiter across
// every subject's sender. bytesPerSec <= 0 disables throttling.
func (s *Socket) SetBandwidthLimit(ctx context.Context, bytesPerSec int64) {
	s.sender = newThrottledSender(ctx, bytesPerSec)
}

// ApplyDSCP marks the socket's outbound traffic with the given DSCP code
// point. dscp == 0 is a no-op.
func (s *Socket) ApplyDSCP(dscp int) error {
	return ApplyDSCP(s.conn, dscp)
}

// ReceiveLoop is the stream socket's single dispatcher: it must be running
// for any Receiver to produce data. It returns when ctx is canceled or the
// underlying socket errors, and closes every subject queue on the way out
// so blocked Receivers unblock with ErrQueueClosed — the same role Close()
// plays for dispatcher.go's RingBuffer-backed senders during shutdown.
func (s *Socket) ReceiveLoop(ctx context.Context) error {
	defer s.closeQueues()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.conn.SetReadDeadline(time.Now())
		case <-stop:
		}
	}()

	buf := make([]byte, s.packetSize)
	for {
		n, err := s.conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("stream socket receive loop: %w", err)
		}
		hdr, payload, err := protocol.ReadDatagram(buf[:n])
		if err != nil {
			s.logger.Debug("dropping malformed datagram", "error", err)
			continue
		}
		s.dispatch(hdr, append([]byte(nil), payload...))
	}
}

func (s *Socket) dispatch(hdr protocol.DatagramHeader, payload []byte) {
	if int(hdr.Subject) >= subjectCount {
		return
	}
	if err := s.queues[hdr.Subject].push(hdr, payload); err != nil {
		s.logger.Debug("dropping datagram on closed queue", "subject", hdr.Subject)
	}
}

func (s *Socket) closeQueues() {
	for _, q := range s.queues {
		q.close()
	}
}

// Close releases the underlying socket and unblocks every pending
// Sender/Receiver.
func (s *Socket) Close() error {
	s.closeQueues()
	return s.conn.Close()
}

// Sender returns a typed send handle for subject. Every Sender for the
// same subject shares the socket's monotonic per-subject sequence counter.
func (s *Socket) Sender(subject protocol.Subject) *Sender {
	return &Sender{socket: s, subject: subject}
}

// Receiver returns a typed receive handle for subject, backed by that
// subject's bounded queue.
func (s *Socket) Receiver(subject protocol.Subject) *Receiver {
	return &Receiver{socket: s, subject: subject}
}

// Sender is a per-subject handle for sending datagrams on a Socket.
type Sender struct {
	socket  *Socket
	subject protocol.Subject
}

// Send encodes payload under this sender's subject and sequence number and
// writes it to the peer, waiting on the socket's shared bandwidth limiter
// (if any) first.
func (snd *Sender) Send(payload []byte, idr bool) error {
	s := snd.socket
	if s.peerAddr == nil {
		return errors.New("streamsocket: send before accept")
	}

	seq := s.seqCounter[snd.subject].Add(1)
	var flags byte
	if idr {
		flags |= protocol.FlagIDR
	}
	hdr := protocol.DatagramHeader{
		Subject:   snd.subject,
		Seq:       seq,
		Flags:     flags,
		Timestamp: time.Now().UnixNano(),
	}
	buf := protocol.WriteDatagram(hdr, payload)

	if err := s.sender.wait(len(buf)); err != nil {
		return fmt.Errorf("throttling send: %w", err)
	}

	_, err := s.conn.WriteToUDP(buf, s.peerAddr)
	return err
}

// Receiver is a per-subject handle for receiving reassembled datagrams
// from a Socket.
type Receiver struct {
	socket  *Socket
	subject protocol.Subject
}

// Recv blocks until a datagram for this subject arrives, or the socket is
// closed (ErrQueueClosed).
func (r *Receiver) Recv() (protocol.DatagramHeader, []byte, error) {
	return r.socket.queues[r.subject].pop()
}
