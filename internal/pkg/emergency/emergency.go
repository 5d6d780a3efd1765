// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package emergency is the only recovery mechanism of the boot sequence:
// there is no interactive rescue path, so an unrecoverable failure ends in a
// supervised reboot.
package emergency

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Escalate reboots the machine after a cool-down that gives the log lines a
// chance to reach the console and keeps a crash-looping device from
// hammering its storage. It never returns: if the reboot request cannot be
// issued the process parks until the hardware watchdog intervenes.
func Escalate(logger *zap.Logger) {
	// the sysrq trigger needs /proc; failure may have struck before it was
	// mounted, or after it was unmounted for the root switch
	if err := os.Mkdir("/proc", 0o775); err != nil && !os.IsExist(err) {
		logger.Error("could not create /proc", zap.Error(err))
	}

	if err := unix.Mount("proc", "/proc", "proc", 0, ""); err != nil && !errors.Is(err, unix.EBUSY) {
		logger.Error("could not mount proc at /proc", zap.Error(err))
	}

	logger.Info("triggering reboot in 60 sec")
	time.Sleep(50 * time.Second)

	logger.Info("triggering reboot in 10 sec")
	time.Sleep(5 * time.Second)

	for i := 5; i > 0; i-- {
		logger.Info(fmt.Sprintf("triggering reboot in %d sec", i))
		time.Sleep(time.Second)
	}

	unix.Sync()

	if err := os.WriteFile("/proc/sysrq-trigger", []byte("b\n"), 0o200); err != nil {
		logger.Error("could not write reboot request to /proc/sysrq-trigger", zap.Error(err))
	} else {
		logger.Info("reboot triggered")
	}

	// wait for the reboot to happen, or for the watchdog if it doesn't
	select {}
}
