// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package rtclock seeds the system clock from the battery-backed hardware
// clock. This is best effort: a device without a working RTC boots with the
// default clock, which is acceptable, while losing the boot to a clock fault
// is not.
package rtclock

import (
	"errors"
	"fmt"
	"time"
	"unsafe"

	"github.com/u-root/u-root/pkg/rtc"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// stuckTimeout bounds the wait for a tick edge; an RTC that doesn't tick
// within it is considered stuck.
const stuckTimeout = 3 * time.Second

var errStuck = errors.New("RTC time seems to be stuck")

// hardwareClock is the read capability of the RTC.
type hardwareClock interface {
	Read() (time.Time, error)
}

// Sync reads the hardware clock and sets the system clock and timezone
// offset from it. Failures are logged and swallowed.
func Sync(logger *zap.Logger) {
	clock, err := rtc.OpenRTC()
	if err != nil {
		logger.Error("could not open RTC, skipping clock sync", zap.Error(err))

		return
	}

	now, err := waitForTick(clock, stuckTimeout)
	if err != nil {
		logger.Error("could not get a fresh RTC reading, skipping clock sync", zap.Error(err))

		return
	}

	local, err := setSystemTime(now)
	if err != nil {
		logger.Error("could not set system time from RTC, skipping clock sync", zap.Error(err))

		return
	}

	logger.Info("using RTC time as system time",
		zap.String("rtc_time", now.Format("2006-01-02 15:04:05")+" UTC"),
		zap.String("system_time", local.Format("2006-01-02 15:04:05 -07:00")))
}

// waitForTick polls the RTC until its seconds field changes. The RTC read is
// not synchronized to the tick, so the first reading can be up to a second
// stale; the post-edge reading is fresh.
func waitForTick(clock hardwareClock, timeout time.Duration) (time.Time, error) {
	start, err := clock.Read()
	if err != nil {
		return time.Time{}, fmt.Errorf("error reading RTC time: %w", err)
	}

	deadline := time.Now().Add(timeout)

	for {
		now, err := clock.Read()
		if err != nil {
			return time.Time{}, fmt.Errorf("error reading RTC time: %w", err)
		}

		if now.Second() != start.Second() {
			return now, nil
		}

		if time.Now().After(deadline) {
			return time.Time{}, errStuck
		}
	}
}

// timezone mirrors struct timezone of settimeofday(2); golang.org/x/sys only
// wraps the timeval half of the call.
type timezone struct {
	minuteswest int32
	dsttime     int32
}

// setSystemTime sets the system clock to the UTC instant now and the kernel
// timezone offset to the local zone's offset at that instant (daylight
// saving folded in).
func setSystemTime(now time.Time) (time.Time, error) {
	local := now.In(time.Local)
	_, offset := local.Zone() // seconds east of UTC

	tv := unix.NsecToTimeval(now.UnixNano())
	tz := timezone{minuteswest: int32(-offset / 60)}

	if _, _, errno := unix.Syscall(unix.SYS_SETTIMEOFDAY, uintptr(unsafe.Pointer(&tv)), uintptr(unsafe.Pointer(&tz)), 0); errno != 0 {
		return time.Time{}, errno
	}

	return local, nil
}
