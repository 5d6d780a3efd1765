// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package ethernet

import (
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ethtool commands from linux/ethtool.h.
const (
	ethtoolGEEPROM = 0x0000000b
	ethtoolSEEPROM = 0x0000000c
)

// struct ethtool_eeprom with an inline data buffer.
type ethtoolEEPROM struct {
	cmd    uint32
	magic  uint32
	offset uint32
	len    uint32
	data   [ConfigSize]byte
}

// struct ifreq with the data pointer variant of the union.
type ifreqData struct {
	name [unix.IFNAMSIZ]byte
	data unsafe.Pointer
	pad  [16]byte
}

// IoctlController drives the controller EEPROM through the classic
// SIOCETHTOOL ioctl. The netlink ethtool interface has no EEPROM commands,
// so the ioctl is issued directly.
type IoctlController struct {
	fd   int
	name string
}

// Open opens an ethtool control socket for the named interface.
func Open(name string) (*IoctlController, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		fd, err = unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW, unix.NETLINK_GENERIC)
		if err != nil {
			return nil, fmt.Errorf("error opening ethtool control socket: %w", err)
		}
	}

	return &IoctlController{fd: fd, name: name}, nil
}

// ReadEEPROM implements Controller.
func (c *IoctlController) ReadEEPROM(offset, length uint32) ([]byte, error) {
	if length > ConfigSize {
		return nil, fmt.Errorf("EEPROM read length %d exceeds buffer size %d", length, ConfigSize)
	}

	eeprom := ethtoolEEPROM{
		cmd:    ethtoolGEEPROM,
		offset: offset,
		len:    length,
	}

	if err := c.ioctl(&eeprom); err != nil {
		return nil, err
	}

	return eeprom.data[:length], nil
}

// WriteEEPROM implements Controller.
func (c *IoctlController) WriteEEPROM(magic uint32, data []byte) error {
	if len(data) > ConfigSize {
		return fmt.Errorf("EEPROM write length %d exceeds buffer size %d", len(data), ConfigSize)
	}

	eeprom := ethtoolEEPROM{
		cmd:   ethtoolSEEPROM,
		magic: magic,
		len:   uint32(len(data)),
	}

	copy(eeprom.data[:], data)

	return c.ioctl(&eeprom)
}

// Close closes the control socket.
func (c *IoctlController) Close() error {
	return unix.Close(c.fd)
}

func (c *IoctlController) ioctl(eeprom *ethtoolEEPROM) error {
	var ifr ifreqData

	copy(ifr.name[:unix.IFNAMSIZ-1], c.name)
	ifr.data = unsafe.Pointer(eeprom)

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(c.fd), unix.SIOCETHTOOL, uintptr(unsafe.Pointer(&ifr)))

	runtime.KeepAlive(eeprom)

	if errno != 0 {
		return errno
	}

	return nil
}
