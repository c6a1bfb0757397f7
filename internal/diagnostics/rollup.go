// Copyright (c) 2026 Lucidwave. All rights reserved.
// Use of this source code is governed by the Streamcore License
// that can be found in the LICENSE file.

package diagnostics

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/robfig/cron/v3"
)

// RollupScheduler periodically scans a diagnostics directory for completed
// session trace bundles and best-effort uploads them to S3 on a cron
// schedule.
type RollupScheduler struct {
	cron          *cron.Cron
	dir           string
	bucket        string
	region        string
	uploadTimeout time.Duration
	logger        *slog.Logger
}

// NewRollupScheduler registers one cron job running Rollup on cronExpr. If
// bucket is empty, Rollup still runs and reads the directory, but skips
// every bundle without uploading or logging it.
func NewRollupScheduler(cronExpr, dir, bucket, region string, uploadTimeout time.Duration, logger *slog.Logger) (*RollupScheduler, error) {
	rs := &RollupScheduler{
		dir:           dir,
		bucket:        bucket,
		region:        region,
		uploadTimeout: uploadTimeout,
		logger:        logger.With("component", "diagnostics-rollup"),
	}

	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))
	if _, err := c.AddFunc(cronExpr, rs.rollup); err != nil {
		return nil, fmt.Errorf("diagnostics: adding rollup cron job %q: %w", cronExpr, err)
	}
	rs.cron = c
	return rs, nil
}

// Start begins the cron scheduler.
func (rs *RollupScheduler) Start() {
	rs.logger.Info("diagnostics rollup scheduler started", "dir", rs.dir)
	rs.cron.Start()
}

// Stop waits for any in-flight rollup to finish, bounded by ctx.
func (rs *RollupScheduler) Stop(ctx context.Context) {
	stopCtx := rs.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		rs.logger.Warn("diagnostics rollup stop timed out")
	}
}

func (rs *RollupScheduler) rollup() {
	entries, err := os.ReadDir(rs.dir)
	if err != nil {
		rs.logger.Warn("rollup: reading diagnostics directory failed", "error", err)
		return
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl.gz") {
			continue
		}
		path := filepath.Join(rs.dir, e.Name())
		if rs.bucket == "" {
			continue
		}
		if err := rs.upload(path, e.Name()); err != nil {
			rs.logger.Warn("rollup: best-effort upload failed", "file", e.Name(), "error", err)
			continue
		}
		rs.logger.Info("rollup: uploaded session trace", "file", e.Name(), "bucket", rs.bucket)
	}
}

// upload ships one completed bundle to S3. Entirely best-effort: callers
// log and move on when this fails, never propagating into session control
// flow.
func (rs *RollupScheduler) upload(path, key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), rs.uploadTimeout)
	defer cancel()

	var opts []func(*awsconfig.LoadOptions) error
	if rs.region != "" {
		opts = append(opts, awsconfig.WithRegion(rs.region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("loading aws config: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening trace bundle: %w", err)
	}
	defer f.Close()

	client := s3.NewFromConfig(cfg)
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &rs.bucket,
		Key:    &key,
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("uploading to s3: %w", err)
	}
	return nil
}
