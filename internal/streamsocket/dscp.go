// Copyright (c) 2026 Lucidwave. All rights reserved.
// Use of this source code is governed by the Streamcore License
// that can be found in the LICENSE file.

package streamsocket

import (
	"fmt"
	"strings"
	"syscall"
)

// dscpValues maps DSCP names (RFC 2474/4594) to their numeric value (6 bits).
// The value is the DSCP code point, NOT the full TOS byte: to set it on a
// socket, shift left by 2 (TOS = DSCP<<2 + ECN).
var dscpValues = map[string]int{
	"EF": 46,

	"AF11": 10, "AF12": 12, "AF13": 14,
	"AF21": 18, "AF22": 20, "AF23": 22,
	"AF31": 26, "AF32": 28, "AF33": 30,
	"AF41": 34, "AF42": 36, "AF43": 38,

	"CS0": 0, "CS1": 8, "CS2": 16, "CS3": 24,
	"CS4": 32, "CS5": 40, "CS6": 48, "CS7": 56,
}

// ParseDSCP converts a DSCP name (e.g. "AF41", "EF") to its numeric value.
// Returns 0, nil for an empty string (DSCP disabled).
func ParseDSCP(name string) (int, error) {
	name = strings.TrimSpace(strings.ToUpper(name))
	if name == "" {
		return 0, nil
	}

	val, ok := dscpValues[name]
	if !ok {
		return 0, fmt.Errorf("unknown DSCP value %q (valid: EF, AF11..AF43, CS0..CS7)", name)
	}
	return val, nil
}

// syscallConn is satisfied by *net.UDPConn and *net.TCPConn.
type syscallConn interface {
	SyscallConn() (syscall.RawConn, error)
}

// ApplyDSCP sets the TOS field (DSCP) on any socket exposing SyscallConn,
// marking the stream socket's real-time video/audio traffic for QoS
// handling along the path. dscp is the code point (0-63); 0 is a no-op.
func ApplyDSCP(conn syscallConn, dscp int) error {
	if dscp == 0 {
		return nil
	}

	rawConn, err := conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("getting raw conn for DSCP: %w", err)
	}

	tosValue := dscp << 2

	var sysErr error
	if err := rawConn.Control(func(fd uintptr) {
		sysErr = syscall.SetsockoptInt(int(fd), syscall.IPPROTO_IP, syscall.IP_TOS, tosValue)
	}); err != nil {
		return fmt.Errorf("control fd for DSCP: %w", err)
	}
	if sysErr != nil {
		return fmt.Errorf("setsockopt IP_TOS=%d: %w", tosValue, sysErr)
	}

	return nil
}
