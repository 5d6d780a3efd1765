// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package eeprom reads the device configuration record from the on-board
// EEPROM.
//
// The record personalizes the device: it carries the production date, the
// unique identifier, the hostname, the device specific password hash and the
// configuration blob for the Ethernet controller. The layout is a fixed
// little-endian header followed by a versioned payload, protected by a CRC-32
// checksum over the length and version bytes plus every payload byte.
package eeprom

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Magic identifies a programmed EEPROM ("TNG!" in little-endian).
const Magic = 0x21474E54

const (
	headerSize = 11

	productionDateSize = 4
	uidSize            = 7
	hostnameSize       = 65
	passwordSize       = 107

	// EthernetConfigSize is the fixed size of the Ethernet controller
	// configuration blob.
	EthernetConfigSize = 256

	dataV1Size = productionDateSize + uidSize + hostnameSize + passwordSize + EthernetConfigSize
)

// Device is the register-level access capability of the EEPROM. The
// underlying bus only supports single-byte transfers; reads advance an
// internal address pointer.
type Device interface {
	// SetAddress positions the read pointer.
	SetAddress(addr uint16) error
	// ReadByte reads one byte at the read pointer and advances it.
	ReadByte() (byte, error)
}

// Header is the fixed record header.
type Header struct {
	Magic       uint32
	Checksum    uint32
	DataLength  uint16
	DataVersion uint8
}

// DataV1 is the version 1 payload.
type DataV1 struct {
	ProductionDate    uint32 // packed BCD, 0x20200827 -> 2020-08-27
	UID               string
	Hostname          string
	EncryptedPassword string
	EthernetConfig    [EthernetConfigSize]byte
}

// Record is a validated configuration record.
type Record struct {
	Header Header
	DataV1 DataV1
}

// ProductionDate renders the packed BCD calendar value as YYYY-MM-DD. The
// nibbles are printed as hex digits, so a non-BCD byte cannot break the
// formatting.
func (r *Record) ProductionDate() string {
	d := r.DataV1.ProductionDate

	return fmt.Sprintf("%04X-%02X-%02X", d>>16, (d>>8)&0xFF, d&0xFF)
}

// Read reads and validates the configuration record. Any I/O error, checksum
// mismatch or layout violation makes the whole record unusable; a partially
// read record is never returned. Callers treat an error as "record absent"
// and continue the boot without personalization.
func Read(dev Device) (*Record, error) {
	if err := dev.SetAddress(0); err != nil {
		return nil, fmt.Errorf("error setting read address to zero: %w", err)
	}

	raw := make([]byte, headerSize)

	for i := range raw {
		b, err := dev.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("error reading record header at address %d: %w", i, err)
		}

		raw[i] = b
	}

	header := Header{
		Magic:       binary.LittleEndian.Uint32(raw[0:4]),
		Checksum:    binary.LittleEndian.Uint32(raw[4:8]),
		DataLength:  binary.LittleEndian.Uint16(raw[8:10]),
		DataVersion: raw[10],
	}

	if header.Magic != Magic {
		return nil, fmt.Errorf("record header has wrong magic number: %08X (actual) != %08X (expected)", header.Magic, Magic)
	}

	// the checksum at write time was seeded with the length and version
	// bytes before the payload went in
	checksum := crc32.Update(0, crc32.IEEETable, raw[8:11])

	data := make([]byte, dataV1Size)

	var one [1]byte

	for i := range int(header.DataLength) {
		b, err := dev.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("error reading record data at address %d: %w", headerSize+i, err)
		}

		// payload bytes past the known layout belong to a future version:
		// they still feed the checksum but are discarded
		if i < len(data) {
			data[i] = b
		}

		one[0] = b
		checksum = crc32.Update(checksum, crc32.IEEETable, one[:])
	}

	if checksum != header.Checksum {
		return nil, fmt.Errorf("record has wrong checksum: %08X (actual) != %08X (expected)", checksum, header.Checksum)
	}

	if header.DataVersion < 1 {
		return nil, fmt.Errorf("record header has invalid data-version: %d (actual) < 1 (expected)", header.DataVersion)
	}

	if int(header.DataLength) < dataV1Size {
		return nil, fmt.Errorf("record header has invalid data-length: %d (actual) < %d (expected)", header.DataLength, dataV1Size)
	}

	var (
		v1  DataV1
		err error
	)

	v1.ProductionDate = binary.LittleEndian.Uint32(data[0:productionDateSize])

	offset := productionDateSize

	if v1.UID, err = terminatedString(data[offset:offset+uidSize], "UID"); err != nil {
		return nil, err
	}

	offset += uidSize

	if v1.Hostname, err = terminatedString(data[offset:offset+hostnameSize], "hostname"); err != nil {
		return nil, err
	}

	offset += hostnameSize

	if v1.EncryptedPassword, err = terminatedString(data[offset:offset+passwordSize], "encrypted-password"); err != nil {
		return nil, err
	}

	offset += passwordSize

	copy(v1.EthernetConfig[:], data[offset:offset+EthernetConfigSize])

	return &Record{Header: header, DataV1: v1}, nil
}

// terminatedString decodes a null-terminated field of fixed capacity. A field
// without a terminator is corrupt, not merely unusual.
func terminatedString(b []byte, name string) (string, error) {
	idx := bytes.IndexByte(b, 0)
	if idx < 0 {
		return "", fmt.Errorf("record %s is not null-terminated", name)
	}

	return string(b[:idx]), nil
}
