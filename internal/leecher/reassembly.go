package leecher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"

	"github.com/omnicloud/swarmhub/internal/swarmerr"
)

// Reassemble writes chunks to destPath via a .part file followed by an
// atomic rename, so a reader never observes a partially written file.
// If expectedFileHash is non-nil, the concatenated bytes are checked
// against it before the rename; a mismatch removes the .part file and
// returns swarmerr.ErrFileHashMismatch. If ctx is cancelled mid-write, the
// .part file is removed and swarmerr.ErrCancelled is returned, per §4.4's
// "partial output is deleted" cancellation behavior.
func Reassemble(ctx context.Context, destPath string, chunks [][]byte, expectedFileHash *[32]byte) error {
	partPath := destPath + ".part"

	f, err := os.OpenFile(partPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("leecher: create %s: %w", partPath, err)
	}

	var hasher = sha256.New()
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			f.Close()
			RemovePartial(destPath)
			return swarmerr.ErrCancelled
		}
		if _, err := f.Write(chunk); err != nil {
			f.Close()
			RemovePartial(destPath)
			return fmt.Errorf("leecher: write chunk %d to %s: %w", i, partPath, err)
		}
		if expectedFileHash != nil {
			hasher.Write(chunk)
		}
	}
	if err := f.Close(); err != nil {
		RemovePartial(destPath)
		return fmt.Errorf("leecher: close %s: %w", partPath, err)
	}

	if expectedFileHash != nil {
		var got [32]byte
		copy(got[:], hasher.Sum(nil))
		if got != *expectedFileHash {
			RemovePartial(destPath)
			return swarmerr.ErrFileHashMismatch
		}
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		RemovePartial(destPath)
		return fmt.Errorf("leecher: mkdir %s: %w", filepath.Dir(destPath), err)
	}
	if err := os.Rename(partPath, destPath); err != nil {
		RemovePartial(destPath)
		return fmt.Errorf("leecher: rename %s to %s: %w", partPath, destPath, err)
	}
	return nil
}

// RemovePartial deletes a leftover .part file for destPath, used when
// Reassemble is cancelled mid-write.
func RemovePartial(destPath string) {
	os.Remove(destPath + ".part")
}
