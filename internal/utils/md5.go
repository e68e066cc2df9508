// Package utils holds small file helpers shared by the watcher and tests.
package utils

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// MD5File hashes path reading chunkSize bytes at a time.
func MD5File(path string, chunkSize int64) (string, error) {
	if chunkSize <= 0 {
		chunkSize = 8192
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.CopyBuffer(h, f, make([]byte, chunkSize)); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
