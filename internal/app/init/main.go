// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// The TNG Base initramfs init. It runs as PID 1 out of the initramfs, brings
// up the pseudo filesystems, mounts the persistent root, personalizes it
// from the on-board configuration EEPROM and hands control to the real init.
// It either completes (by replacing itself with the persistent init) or
// escalates to a supervised reboot; there is no interactive recovery path.
package main

import (
	"go.uber.org/zap"

	"github.com/tinkerforge/tng-base-init/internal/pkg/bootlog"
	"github.com/tinkerforge/tng-base-init/internal/pkg/emergency"
)

func main() {
	logger, logCloser := bootlog.New()

	err := run(logger, logCloser)

	// run only comes back when the handoff to the persistent init did not
	// happen; anything else is an unrecoverable boot
	if err != nil {
		logger.Error("unrecoverable boot failure", zap.Error(err))
	}

	emergency.Escalate(logger)
}
