// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"io"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/tinkerforge/tng-base-init/internal/pkg/atomicfile"
	"github.com/tinkerforge/tng-base-init/internal/pkg/constants"
	"github.com/tinkerforge/tng-base-init/internal/pkg/eeprom"
	"github.com/tinkerforge/tng-base-init/internal/pkg/ethernet"
	"github.com/tinkerforge/tng-base-init/internal/pkg/mount"
	"github.com/tinkerforge/tng-base-init/internal/pkg/mount/switchroot"
	"github.com/tinkerforge/tng-base-init/internal/pkg/rtclock"
	"github.com/tinkerforge/tng-base-init/internal/pkg/shadow"
)

// run is the boot sequence. It is strictly sequential: the root must be
// acquired before anything writes into it, and the root switch comes last.
// Every returned error is unrecoverable; on success run does not return.
func run(logger *zap.Logger, logCloser io.Closer) error {
	proc := mount.ProcPoint()

	logger.Info("mounting proc at /proc")

	if err := proc.Mount(); err != nil {
		return err
	}

	params := ReadBootParameters()

	sys := mount.SysPoint()

	logger.Info("mounting sysfs at /sys")

	if err := sys.Mount(); err != nil {
		return err
	}

	dev := mount.DevPoint("/dev")

	logger.Info("mounting devtmpfs at /dev")

	if err := dev.Mount(); err != nil {
		return err
	}

	// give asynchronous device probing a head start so the first root mount
	// attempt doesn't warn about a device that is just late
	time.Sleep(constants.RootSettleDelay)

	root := mount.RootPoint(params.RootDevice, constants.NewRoot, params.RootFSType)

	logger.Info("mounting root",
		zap.String("device", params.RootDevice),
		zap.String("fstype", params.RootFSType),
		zap.String("target", constants.NewRoot))

	if err := root.MountWithRetry(logger); err != nil {
		return err
	}

	logger.Info("mounting devtmpfs at /mnt/dev")

	if err := mount.DevPoint(filepath.Join(constants.NewRoot, "dev")).Mount(); err != nil {
		return err
	}

	rtclock.Sync(logger)

	record := readRecord(logger)

	if err := migratePassword(constants.NewRoot, record, logger); err != nil {
		return err
	}

	if err := configureEthernet(record, logger); err != nil {
		return err
	}

	if err := updateIdentityFiles(constants.NewRoot, record, logger); err != nil {
		return err
	}

	// release the provisioning-phase filesystems before the root moves
	for _, point := range []*mount.Point{proc, sys, dev} {
		logger.Info("unmounting", zap.String("target", point.Target()))

		if err := point.Unmount(); err != nil {
			return err
		}
	}

	return switchroot.Switch(constants.NewRoot, params.InitPath, logger, logCloser)
}

// readRecord reads the configuration record from the EEPROM. A device
// without a (valid) record boots unpersonalized, so every failure here
// degrades instead of aborting.
func readRecord(logger *zap.Logger) *eeprom.Record {
	logger.Info("opening EEPROM", zap.String("path", constants.EEPROMPath))

	dev, err := eeprom.OpenI2C(constants.EEPROMPath, constants.EEPROMAddress)
	if err != nil {
		logger.Error("could not open EEPROM, continuing without configuration record", zap.Error(err))

		return nil
	}

	defer dev.Close() //nolint:errcheck

	logger.Info("reading configuration record")

	record, err := eeprom.Read(dev)
	if err != nil {
		logger.Error("could not read configuration record, continuing without it", zap.Error(err))

		return nil
	}

	return record
}

func migratePassword(root string, record *eeprom.Record, logger *zap.Logger) error {
	if record == nil || record.Header.DataVersion < 1 {
		logger.Error("required configuration record not available, skipping password replacement")

		return nil
	}

	return shadow.Migrate(filepath.Join(root, "etc/shadow"), record.DataV1.EncryptedPassword, logger)
}

func configureEthernet(record *eeprom.Record, logger *zap.Logger) error {
	if record == nil || record.Header.DataVersion < 1 {
		logger.Error("required configuration record not available, skipping Ethernet configuration")

		return nil
	}

	logger.Info("looking up Ethernet device name")

	name, err := ethernet.InterfaceName(constants.EthernetDevicePath)
	if err != nil {
		return err
	}

	logger.Info("found Ethernet device name", zap.String("name", name))

	ctrl, err := ethernet.Open(name)
	if err != nil {
		return err
	}

	defer ctrl.Close() //nolint:errcheck

	return ethernet.Configure(ctrl, record.DataV1.EthernetConfig[:], logger)
}

// updateIdentityFiles exposes the record's identity fields below the new
// root, each updated only if its content differs.
func updateIdentityFiles(root string, record *eeprom.Record, logger *zap.Logger) error {
	if record == nil || record.Header.DataVersion < 1 {
		logger.Error("required configuration record not available, skipping identity file updates")

		return nil
	}

	logger.Info("updating identity files")

	for _, file := range []struct {
		path    string
		content string
	}{
		{constants.ProductionDateFile, record.ProductionDate() + "\n"},
		{constants.UIDFile, record.DataV1.UID + "\n"},
		{constants.HostnameFile, record.DataV1.Hostname + "\n"},
	} {
		if err := atomicfile.Update(filepath.Join(root, file.path), []byte(file.content), logger); err != nil {
			return err
		}
	}

	return nil
}
