// Copyright (c) 2026 Lucidwave. All rights reserved.
// Use of this source code is governed by the Streamcore License
// that can be found in the LICENSE file.

package diagnostics

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewRollupSchedulerRejectsBadCron(t *testing.T) {
	if _, err := NewRollupScheduler("not a cron expr", t.TempDir(), "", "", time.Second, testLogger()); err == nil {
		t.Fatal("expected an error for a malformed cron expression")
	}
}

func TestRollupSkipsUploadWithoutBucket(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "session-1.jsonl.gz"), []byte("fake"), 0644); err != nil {
		t.Fatalf("seeding trace file: %v", err)
	}

	rs, err := NewRollupScheduler("0 3 * * *", dir, "", "", time.Second, testLogger())
	if err != nil {
		t.Fatalf("NewRollupScheduler: %v", err)
	}

	// No bucket configured: rollup must scan without attempting any network
	// call, and must not panic or block.
	rs.rollup()
}
