// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package eeprom

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// SMBus plumbing from linux/i2c-dev.h and linux/i2c.h.
const (
	i2cSlave = 0x0703
	i2cSMBus = 0x0720

	smbusWrite = 0
	smbusRead  = 1

	smbusByte     = 1
	smbusByteData = 2
)

// union i2c_smbus_data is 34 bytes (block length + 32 data bytes + PEC).
type smbusData [34]byte

type smbusIoctlData struct {
	readWrite uint8
	command   uint8
	size      uint32
	data      *smbusData
}

// I2CDevice is an EEPROM behind an I2C bus device node, accessed with single
// SMBus byte transfers.
type I2CDevice struct {
	f *os.File
}

// OpenI2C opens the bus device and selects the EEPROM slave address.
func OpenI2C(path string, addr int) (*I2CDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("error opening %s: %w", path, err)
	}

	if err = unix.IoctlSetInt(int(f.Fd()), i2cSlave, addr); err != nil {
		f.Close() //nolint:errcheck

		return nil, fmt.Errorf("error setting EEPROM slave address to %#02x: %w", addr, err)
	}

	return &I2CDevice{f: f}, nil
}

// SetAddress implements Device. The 16-bit sub-address goes out as a
// register/value byte pair.
func (d *I2CDevice) SetAddress(addr uint16) error {
	var data smbusData

	data[0] = byte(addr & 0xFF)

	args := smbusIoctlData{
		readWrite: smbusWrite,
		command:   byte(addr >> 8),
		size:      smbusByteData,
		data:      &data,
	}

	return d.ioctl(&args)
}

// ReadByte implements Device.
func (d *I2CDevice) ReadByte() (byte, error) {
	var data smbusData

	args := smbusIoctlData{
		readWrite: smbusRead,
		size:      smbusByte,
		data:      &data,
	}

	if err := d.ioctl(&args); err != nil {
		return 0, err
	}

	return data[0], nil
}

// Close closes the bus device.
func (d *I2CDevice) Close() error {
	return d.f.Close()
}

func (d *I2CDevice) ioctl(args *smbusIoctlData) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), i2cSMBus, uintptr(unsafe.Pointer(args)))
	if errno != 0 {
		return errno
	}

	return nil
}
