// Copyright (c) 2026 Lucidwave. All rights reserved.
// Use of this source code is governed by the Streamcore License
// that can be found in the LICENSE file.

package diagnostics

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRecorderWritesJSONLGzip(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRecorder(dir, "session-1", testLogger())
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	r.Record("phase_transition", map[string]any{"to": "handshaking"})
	r.Record("corruption_transition", map[string]any{"state": "corrupt"})

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	path := filepath.Join(dir, "session-1.jsonl.gz")
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening trace file: %v", err)
	}
	defer f.Close()

	gzr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	defer gzr.Close()

	scanner := bufio.NewScanner(gzr)
	var kinds []string
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("unmarshaling event line: %v", err)
		}
		kinds = append(kinds, ev.Kind)
	}

	if len(kinds) != 2 || kinds[0] != "phase_transition" || kinds[1] != "corruption_transition" {
		t.Fatalf("recorded kinds = %v, want [phase_transition corruption_transition]", kinds)
	}
}

func TestRecorderDisablesAfterWriteFailure(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRecorder(dir, "session-2", testLogger())
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	r.file.Close() // force the next gzip write to fail
	r.Record("phase_transition", nil)

	if !r.failed {
		t.Fatal("expected recorder to mark itself failed after a write error")
	}

	r.Record("should_be_skipped", nil) // must not panic
}
