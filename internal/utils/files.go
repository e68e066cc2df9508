package utils

import (
	"context"
	"os"
	"time"
)

// stableChecks bounds how long WaitFileStable keeps polling a growing file.
const stableChecks = 10

// WaitFileStable waits until two consecutive stats, delay apart, report the
// same size and modification time. A file still growing after stableChecks
// rounds is returned as-is.
func WaitFileStable(ctx context.Context, path string, delay time.Duration) error {
	var last os.FileInfo
	for i := 0; i < stableChecks; i++ {
		fi, err := os.Stat(path)
		if err != nil {
			return err
		}
		if last != nil && last.Size() == fi.Size() && last.ModTime().Equal(fi.ModTime()) {
			return nil
		}
		last = fi
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil
}
