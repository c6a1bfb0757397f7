// Copyright (c) 2026 Lucidwave. All rights reserved.
// Use of this source code is governed by the Streamcore License
// that can be found in the LICENSE file.

// Package controlsocket implements ProtoControlSocket: the ordered,
// reliable, length-prefixed control channel used for the handshake and for
// live control traffic (keepalives, IDR requests, battery reports,
// InitializeDecoder, Restarting) for the remainder of a session.
// The write path is guarded by a mutex and the read path is owned by one
// goroutine at a time; Split expresses that separation as two first-class
// handles so the send and receive loops of a session can run as independent
// cooperative tasks.
package controlsocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/lucidwave/streamcore/internal/protocol"
)

// ErrDiscoveryTimeout is returned by ConnectTo when no peer connects within
// the given timeout. The supervisor treats this as "retry discovery", not
// as a fatal attempt error.
var ErrDiscoveryTimeout = errors.New("controlsocket: discovery connect timed out")

// ErrUnexpectedPacket is returned during the post-handshake peek when a
// frame kind other than StartStream or Restarting arrives. Fatal to the
// attempt: unknown traffic this early means the peer is not speaking the
// expected handshake sequence.
var ErrUnexpectedPacket = errors.New("controlsocket: unexpected packet")

// Socket is a connected control channel: an ordered, reliable,
// length-prefixed stream of protocol frames.
type Socket struct {
	conn    net.Conn
	writeMu sync.Mutex
}

// ConnectTo is the supervisor's Discovering-phase primitive: it listens on
// listenPort and accepts the first inbound connection within timeout. Each
// call either returns a connected Socket and the peer's address, or
// ErrDiscoveryTimeout — the caller loops and retries.
func ConnectTo(ctx context.Context, listenPort int, timeout time.Duration) (*Socket, net.Addr, error) {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", listenPort))
	if err != nil {
		return nil, nil, fmt.Errorf("controlsocket: listening on :%d: %w", listenPort, err)
	}
	defer ln.Close()

	type result struct {
		conn net.Conn
		err  error
	}
	accepted := make(chan result, 1)
	go func() {
		conn, err := ln.Accept()
		accepted <- result{conn, err}
	}()

	select {
	case r := <-accepted:
		if r.err != nil {
			return nil, nil, fmt.Errorf("controlsocket: accepting peer: %w", r.err)
		}
		return &Socket{conn: r.conn}, r.conn.RemoteAddr(), nil
	case <-time.After(timeout):
		ln.Close()
		<-accepted // drain the goroutine so it doesn't leak
		return nil, nil, ErrDiscoveryTimeout
	case <-ctx.Done():
		ln.Close()
		<-accepted
		return nil, nil, ctx.Err()
	}
}

// Send writes one JSON-encoded control frame, serialized under writeMu so
// concurrent senders (e.g. the control-send loop and a direct caller during
// handshake) never interleave partial frames.
func (s *Socket) Send(kind byte, v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if v == nil {
		return protocol.WriteEmptyFrame(s.conn, kind)
	}
	return protocol.WriteJSONFrame(s.conn, kind, v)
}

// Recv blocks until one frame arrives and JSON-decodes its payload into v.
// Pass a nil v for empty-payload frames (StartStream, Restarting, KeepAlive,
// RequestIdr, StreamReady).
func (s *Socket) Recv(v any) (byte, error) {
	if v == nil {
		kind, _, err := protocol.ReadFrame(s.conn)
		return kind, err
	}
	return protocol.ReadJSONFrame(s.conn, v)
}

// RecvTimeout performs one Recv bounded by deadline, used for the
// handshake's 1-second StreamConfigPacket wait and its 1ms post-handshake
// peek. A deadline in the past is the non-blocking "is anything already
// readable" poll.
func (s *Socket) RecvTimeout(v any, deadline time.Duration) (byte, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(deadline)); err != nil {
		return 0, fmt.Errorf("controlsocket: setting read deadline: %w", err)
	}
	defer s.conn.SetReadDeadline(time.Time{})
	return s.Recv(v)
}

// Close closes the underlying connection, unblocking any pending Recv.
func (s *Socket) Close() error {
	return s.conn.Close()
}

// Split returns independent Sender and Receiver handles sharing this
// Socket's connection, for the control_send_loop and control_receive_loop
// cooperative tasks to use concurrently without either needing to know
// about the other.
func (s *Socket) Split() (*Sender, *Receiver) {
	return &Sender{socket: s}, &Receiver{socket: s}
}

// Sender is the write half of a split Socket.
type Sender struct {
	socket *Socket
}

// Send writes one control frame. Safe to call concurrently with other
// Senders sharing the same Socket; writeMu serializes them.
func (snd *Sender) Send(kind byte, v any) error {
	return snd.socket.Send(kind, v)
}

// Receiver is the read half of a split Socket. A Socket has exactly one
// Receiver in practice — the control_receive_loop task — since concurrent
// reads would race over frame boundaries.
type Receiver struct {
	socket *Socket
}

// Recv blocks until one frame arrives.
func (r *Receiver) Recv(v any) (byte, error) {
	return r.socket.Recv(v)
}

// RecvTimeout performs one Recv bounded by deadline, letting a receive loop
// poll for frames while still observing its own exit condition in between.
func (r *Receiver) RecvTimeout(v any, deadline time.Duration) (byte, error) {
	return r.socket.RecvTimeout(v, deadline)
}
