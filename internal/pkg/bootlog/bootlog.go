// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package bootlog sets up boot-time logging to the kernel log.
package bootlog

import (
	"io"
	"os"

	"github.com/siderolabs/go-kmsg"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sys/unix"
)

// New builds the boot logger. Lines go to /dev/kmsg so they end up on the
// kernel log channel; if the device cannot be opened (e.g. the kernel was
// built without printk) lines go to stdout instead. The returned closer is
// non-nil when /dev/kmsg is open and must be closed before handing off to the
// persistent init.
func New() (*zap.Logger, io.Closer) {
	f, err := os.OpenFile("/dev/kmsg", os.O_WRONLY|unix.O_CLOEXEC|unix.O_NONBLOCK|unix.O_NOCTTY, 0o666)
	if err != nil {
		return logger(os.Stdout), nil
	}

	return logger(&kmsg.Writer{KmsgWriter: f}), f
}

func logger(w io.Writer) *zap.Logger {
	config := zap.NewDevelopmentEncoderConfig()
	config.ConsoleSeparator = " "
	// the kernel log adds its own timestamps
	config.EncodeTime = nil

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(config),
		zapcore.AddSync(w),
		zapcore.DebugLevel,
	)

	return zap.New(core).Named("initramfs")
}
