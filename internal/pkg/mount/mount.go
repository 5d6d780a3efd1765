// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package mount handles the mount points of the provisioning phase: the
// pseudo filesystems the sequence needs and the persistent root itself.
package mount

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/siderolabs/go-retry/retry"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// retryInterval is the fixed backoff between attempts to mount a root device
// that has not appeared yet.
const retryInterval = 500 * time.Millisecond

// overridden in tests for mocking support
var (
	mountFunc   = unix.Mount
	unmountFunc = unix.Unmount
	sleepUnit   = retryInterval
)

// Point represents a linux mount point.
type Point struct {
	source string
	target string
	fstype string
	flags  uintptr
	data   string
}

// NewPoint initializes and returns a Point.
func NewPoint(source, target, fstype string, flags uintptr, data string) *Point {
	return &Point{
		source: source,
		target: target,
		fstype: fstype,
		flags:  flags,
		data:   data,
	}
}

// ProcPoint is the process-info filesystem.
func ProcPoint() *Point {
	return NewPoint("proc", "/proc", "proc", 0, "")
}

// SysPoint is the system-info filesystem.
func SysPoint() *Point {
	return NewPoint("sysfs", "/sys", "sysfs", 0, "")
}

// DevPoint is the device-node filesystem at the given target.
func DevPoint(target string) *Point {
	return NewPoint("devtmpfs", target, "devtmpfs", 0, "")
}

// RootPoint is the persistent root filesystem.
func RootPoint(source, target, fstype string) *Point {
	return NewPoint(source, target, fstype, unix.MS_NOATIME, "")
}

// Source returns the mount point source field.
func (p *Point) Source() string {
	return p.source
}

// Target returns the mount point target field.
func (p *Point) Target() string {
	return p.target
}

// Mount performs a single mount attempt.
func (p *Point) Mount() error {
	if err := os.MkdirAll(p.target, 0o755); err != nil {
		return fmt.Errorf("error creating mount point directory %s: %w", p.target, err)
	}

	if err := mountFunc(p.source, p.target, p.fstype, p.flags, p.data); err != nil {
		return fmt.Errorf("error mounting %s (%s) at %s: %w", p.source, p.fstype, p.target, err)
	}

	return nil
}

// MountWithRetry mounts, retrying as long as the source device has not
// appeared yet. Device probing is asynchronous, so the root device can show
// up well after this process starts; a root device that never appears is an
// unrecoverable boot either way, so there is no retry bound. Each attempt is
// a fresh mount syscall and probes the device anew, nothing is cached across
// attempts. Any error other than a missing device aborts immediately.
func (p *Point) MountWithRetry(logger *zap.Logger) error {
	if err := os.MkdirAll(p.target, 0o755); err != nil {
		return fmt.Errorf("error creating mount point directory %s: %w", p.target, err)
	}

	var retries int

	err := backoff.Retry(func() error {
		err := mountFunc(p.source, p.target, p.fstype, p.flags, p.data)

		switch {
		case err == nil:
			return nil
		case errors.Is(err, unix.ENOENT), errors.Is(err, unix.ENXIO), errors.Is(err, unix.ENODEV):
			logger.Error("could not mount, device is missing, trying again",
				zap.String("source", p.source),
				zap.String("target", p.target),
				zap.Duration("backoff", sleepUnit),
				zap.Error(err))

			retries++

			return err
		default:
			return backoff.Permanent(fmt.Errorf("error mounting %s (%s) at %s: %w", p.source, p.fstype, p.target, err))
		}
	}, backoff.NewConstantBackOff(sleepUnit))
	if err != nil {
		return err
	}

	if retries > 0 {
		logger.Info("successfully mounted after retries",
			zap.String("source", p.source),
			zap.String("target", p.target),
			zap.Int("retries", retries))
	}

	return nil
}

// Unmount unmounts the target, retrying briefly while it is busy.
func (p *Point) Unmount() error {
	err := retry.Constant(5*time.Second, retry.WithUnits(100*time.Millisecond)).Retry(func() error {
		if err := unmountFunc(p.target, 0); err != nil {
			if errors.Is(err, unix.EBUSY) {
				return retry.ExpectedError(err)
			}

			return err
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("error unmounting %s: %w", p.target, err)
	}

	return nil
}
