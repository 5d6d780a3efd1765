// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package switchroot hands the system over to the init program on the
// persistent root. See
// https://git.busybox.net/busybox/tree/util-linux/switch_root.c for the
// canonical sequence.
package switchroot

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Switch moves the root mount to prefix and executes initPath there. On
// success the process image is replaced and Switch does not return; every
// other outcome is an error, including a missing or unexecutable init.
// logCloser (the kernel log handle, if any) is closed right before the exec
// so no descriptor leaks into the new init.
func Switch(prefix, initPath string, logger *zap.Logger, logCloser io.Closer) error {
	logger.Info("switching root-mount", zap.String("prefix", prefix))

	if err := unix.Chdir(prefix); err != nil {
		return fmt.Errorf("error changing working directory to %s: %w", prefix, err)
	}

	// unlink ourselves to release the memory backing the binary before the
	// handoff; the image is already loaded, so failure here costs memory,
	// not correctness
	_ = os.Remove("/init")

	if err := unix.Mount(".", "/", "", unix.MS_MOVE, ""); err != nil {
		return fmt.Errorf("error moving root-mount: %w", err)
	}

	if err := unix.Chroot("."); err != nil {
		return fmt.Errorf("error changing root directory: %w", err)
	}

	if err := unix.Chdir("/"); err != nil {
		return fmt.Errorf("error changing working directory to /: %w", err)
	}

	logger.Info("executing init", zap.String("path", initPath))

	if logCloser != nil {
		logCloser.Close() //nolint:errcheck
	}

	if err := unix.Exec(initPath, []string{initPath}, os.Environ()); err != nil {
		return fmt.Errorf("error executing %s: %w", initPath, err)
	}

	return nil
}
