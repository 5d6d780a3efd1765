// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package rtclock

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock serves a fixed sequence of readings, repeating the last one.
type fakeClock struct {
	readings []time.Time
	err      error
	reads    int
}

func (c *fakeClock) Read() (time.Time, error) {
	if c.err != nil {
		return time.Time{}, c.err
	}

	idx := c.reads
	if idx >= len(c.readings) {
		idx = len(c.readings) - 1
	}

	c.reads++

	return c.readings[idx], nil
}

func TestWaitForTickReturnsPostEdgeReading(t *testing.T) {
	base := time.Date(2020, 8, 27, 10, 30, 15, 0, time.UTC)
	clock := &fakeClock{readings: []time.Time{base, base, base, base.Add(time.Second)}}

	now, err := waitForTick(clock, time.Second)
	require.NoError(t, err)
	assert.Equal(t, base.Add(time.Second), now)
}

func TestWaitForTickStuckClock(t *testing.T) {
	base := time.Date(2020, 8, 27, 10, 30, 15, 0, time.UTC)
	clock := &fakeClock{readings: []time.Time{base}}

	_, err := waitForTick(clock, 10*time.Millisecond)
	assert.ErrorIs(t, err, errStuck)
}

func TestWaitForTickReadError(t *testing.T) {
	clock := &fakeClock{err: errors.New("no such device")}

	_, err := waitForTick(clock, time.Second)
	assert.ErrorContains(t, err, "error reading RTC time")
}
