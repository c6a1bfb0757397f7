// Copyright (c) 2026 Lucidwave. All rights reserved.
// Use of this source code is governed by the Streamcore License
// that can be found in the LICENSE file.

// Package diagnostics implements the optional, passive per-session trace: a
// JSONL event log written through a parallel gzip writer and uploaded on a
// cron schedule. The supervisor records video drops, decoder
// initialization and the end of the task graph; phase transitions, HUD
// messages and keepalive outcomes are not recorded. Nothing in this
// package feeds back into the session's control flow — a Recorder that
// fails to write never fails the attempt it is recording.
//
// Each event is one gzip-compressed JSON line; klauspost/pgzip keeps the
// compression off the session's hot path so recording never becomes the
// bottleneck the video/control loops wait on.
package diagnostics

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/pgzip"
)

// Event is one line of the JSONL trace.
type Event struct {
	Time   time.Time      `json:"time"`
	Kind   string         `json:"kind"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Recorder accumulates one attempt's trace to {dir}/{sessionID}.jsonl.gz.
// All methods are safe for concurrent use since every task graph loop may
// record an event.
type Recorder struct {
	mu     sync.Mutex
	file   *os.File
	gz     *pgzip.Writer
	path   string
	logger *slog.Logger
	failed bool
}

// NewRecorder opens (creating dir if needed) the gzip-compressed trace file
// for one session.
func NewRecorder(dir, sessionID string, logger *slog.Logger) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("diagnostics: creating directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, sessionID+".jsonl.gz")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("diagnostics: creating trace file %s: %w", path, err)
	}
	gz := pgzip.NewWriter(f)
	return &Recorder{
		file:   f,
		gz:     gz,
		path:   path,
		logger: logger.With("component", "diagnostics"),
	}, nil
}

// Path returns the on-disk path of the trace file being written.
func (r *Recorder) Path() string {
	return r.path
}

// Record appends one event. Best-effort: a write failure is logged once and
// otherwise ignored, since diagnostics must never affect session control
// flow.
func (r *Recorder) Record(kind string, fields map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failed {
		return
	}

	line, err := json.Marshal(Event{Time: time.Now(), Kind: kind, Fields: fields})
	if err != nil {
		return
	}
	line = append(line, '\n')

	if _, err := r.gz.Write(line); err != nil {
		r.logger.Warn("diagnostics write failed, disabling recorder for this session", "error", err)
		r.failed = true
	}
}

// Close flushes and closes the trace file. Safe to call once, typically
// deferred from TearingDown.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	gzErr := r.gz.Close()
	fileErr := r.file.Close()
	if gzErr != nil {
		return fmt.Errorf("diagnostics: closing gzip writer: %w", gzErr)
	}
	if fileErr != nil {
		return fmt.Errorf("diagnostics: closing trace file: %w", fileErr)
	}
	return nil
}
