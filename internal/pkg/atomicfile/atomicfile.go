// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package atomicfile replaces sensitive files so that a power loss can never
// leave them half-written: content goes to a temporary name first, is forced
// to durable storage and then renamed over the target.
package atomicfile

import (
	"bytes"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Update ensures path holds exactly content, owned by root with mode 0444.
// If the file already matches, nothing is written.
func Update(path string, content []byte, logger *zap.Logger) error {
	return UpdateOwned(path, content, 0, 0, 0o444, logger)
}

// UpdateOwned is Update with explicit ownership and mode.
func UpdateOwned(path string, content []byte, uid, gid int, mode os.FileMode, logger *zap.Logger) error {
	if upToDate(path, content, uid, gid, mode) {
		logger.Info("file is already up-to-date, skipping update", zap.String("path", path))

		return nil
	}

	tmpPath := path + ".tmp"

	logger.Info("creating", zap.String("path", tmpPath))

	if err := WriteFileSync(tmpPath, content, uid, gid, mode); err != nil {
		return err
	}

	logger.Info("renaming", zap.String("from", tmpPath), zap.String("to", path))

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("error renaming %s to %s: %w", tmpPath, path, err)
	}

	return nil
}

// WriteFileSync creates path with the given ownership and mode, writes the
// full content and forces it to durable storage. Shared with the credential
// migration for its backup and replacement files.
func WriteFileSync(path string, content []byte, uid, gid int, mode os.FileMode) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return fmt.Errorf("error creating %s for writing: %w", path, err)
	}

	defer f.Close() //nolint:errcheck

	if err = f.Chown(uid, gid); err != nil {
		return fmt.Errorf("error changing owner of %s to %d:%d: %w", path, uid, gid, err)
	}

	// the create mode is filtered by the umask, force the exact mode
	if err = f.Chmod(mode); err != nil {
		return fmt.Errorf("error changing mode of %s to %#o: %w", path, mode, err)
	}

	n, err := f.Write(content)
	if err != nil {
		return fmt.Errorf("error writing to %s: %w", path, err)
	}

	if n < len(content) {
		return fmt.Errorf("short write to %s: %d < %d", path, n, len(content))
	}

	if err = f.Sync(); err != nil {
		return fmt.Errorf("error syncing %s: %w", path, err)
	}

	if err = f.Close(); err != nil {
		return fmt.Errorf("error closing %s: %w", path, err)
	}

	return nil
}

// upToDate reports whether path is already a regular file with the expected
// ownership, mode and content. Any doubt means "update it".
func upToDate(path string, content []byte, uid, gid int, mode os.FileMode) bool {
	var st unix.Stat_t

	if err := unix.Stat(path, &st); err != nil {
		return false
	}

	if st.Mode != unix.S_IFREG|uint32(mode.Perm()) || st.Uid != uint32(uid) || st.Gid != uint32(gid) || st.Size != int64(len(content)) {
		return false
	}

	existing, err := os.ReadFile(path)
	if err != nil {
		return false
	}

	return bytes.Equal(existing, content)
}
