// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package ethernet programs the device specific configuration blob into the
// EEPROM of the USB Ethernet controller.
//
// The controller sits at a fixed position in the USB topology; its interface
// name is discovered through sysfs. The first EEPROM byte doubles as a
// "configured" marker, so the write happens at most once per device lifetime.
package ethernet

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const (
	// ConfigSize is the fixed size of the controller EEPROM configuration.
	ConfigSize = 256

	// configuredSentinel is the first EEPROM byte of an already programmed
	// controller.
	configuredSentinel = 0xA5

	// eepromMagic is the driver validation value required for EEPROM writes.
	eepromMagic = 0x7500

	// settleDelay gives the controller time to commit the EEPROM write
	// before it is read back.
	settleDelay = 100 * time.Millisecond
)

// Controller is the EEPROM access capability of the Ethernet controller.
type Controller interface {
	// ReadEEPROM reads length bytes at offset from the controller EEPROM.
	ReadEEPROM(offset, length uint32) ([]byte, error)
	// WriteEEPROM writes data at offset 0, authorized by the driver magic.
	WriteEEPROM(magic uint32, data []byte) error
}

// InterfaceName discovers the controller's network interface name by listing
// the net/ subdirectory of its fixed sysfs device path. Anything but a single
// directory entry with a usable name means the hardware topology is not the
// one this software understands.
func InterfaceName(devicePath string) (string, error) {
	netPath := filepath.Join(devicePath, "net")

	entries, err := os.ReadDir(netPath)
	if err != nil {
		return "", fmt.Errorf("error reading net/ subdirectory of Ethernet device %s: %w", devicePath, err)
	}

	if len(entries) == 0 {
		return "", fmt.Errorf("net/ subdirectory of Ethernet device %s is empty", devicePath)
	}

	entry := entries[0]

	if !entry.IsDir() {
		return "", fmt.Errorf("directory entry %s of %s has unexpected type", entry.Name(), netPath)
	}

	if len(entry.Name()) >= unix.IFNAMSIZ {
		return "", fmt.Errorf("Ethernet device name %s is too long: %d >= %d", entry.Name(), len(entry.Name()), unix.IFNAMSIZ)
	}

	return entry.Name(), nil
}

// Configure pushes config into the controller EEPROM and verifies the
// controller accepted it. A controller already carrying the configured
// marker is left alone.
func Configure(ctrl Controller, config []byte, logger *zap.Logger) error {
	logger.Info("reading first Ethernet config byte")

	marker, err := ctrl.ReadEEPROM(0, 1)
	if err != nil {
		return fmt.Errorf("error reading first Ethernet config byte: %w", err)
	}

	if marker[0] == configuredSentinel {
		logger.Info("Ethernet already configured, skipping Ethernet configuration")

		return nil
	}

	logger.Info("writing Ethernet config")

	if err = ctrl.WriteEEPROM(eepromMagic, config); err != nil {
		return fmt.Errorf("error writing Ethernet config: %w", err)
	}

	time.Sleep(settleDelay)

	logger.Info("validating Ethernet config")

	readback, err := ctrl.ReadEEPROM(0, uint32(len(config)))
	if err != nil {
		return fmt.Errorf("error reading Ethernet config back: %w", err)
	}

	if !bytes.Equal(readback, config) {
		return errors.New("Ethernet config validation failed")
	}

	return nil
}
