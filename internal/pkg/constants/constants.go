// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package constants holds the fixed values of the TNG Base boot sequence.
package constants

import "time"

const (
	// NewRoot is the mount target for the persistent root filesystem.
	NewRoot = "/mnt"

	// DefaultRootDevice is the root device used when the kernel command line
	// does not carry a root= parameter.
	DefaultRootDevice = "/dev/mmcblk0p2"

	// DefaultRootFSType is the filesystem type used when the kernel command
	// line does not carry a rootfstype= parameter.
	DefaultRootFSType = "ext4"

	// DefaultInitPath is the init program used when the kernel command line
	// does not carry an init= parameter.
	DefaultInitPath = "/sbin/init"

	// KernelParamRoot is the kernel command line parameter naming the root
	// device.
	KernelParamRoot = "root"

	// KernelParamRootFSType is the kernel command line parameter naming the
	// root filesystem type.
	KernelParamRootFSType = "rootfstype"

	// KernelParamInit is the kernel command line parameter naming the init
	// program on the new root.
	KernelParamInit = "init"

	// RootSettleDelay is how long to wait before the first attempt to mount
	// the root device, so that asynchronous device probing has a head start.
	RootSettleDelay = 250 * time.Millisecond

	// EEPROMPath is the I2C bus device the configuration EEPROM sits on.
	EEPROMPath = "/dev/i2c-1"

	// EEPROMAddress is the I2C slave address of the configuration EEPROM.
	EEPROMAddress = 0x50

	// EthernetDevicePath is the sysfs path of the USB Ethernet controller.
	EthernetDevicePath = "/sys/devices/platform/soc/3f980000.usb/usb1/1-1/1-1.7/1-1.7:1.0/"

	// ProductionDateFile is written below NewRoot with the device production
	// date.
	ProductionDateFile = "/etc/tng-base-production-date"

	// UIDFile is written below NewRoot with the device unique identifier.
	UIDFile = "/etc/tng-base-uid"

	// HostnameFile is written below NewRoot with the device hostname.
	HostnameFile = "/etc/tng-base-hostname"
)
