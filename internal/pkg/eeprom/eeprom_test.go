// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package eeprom_test

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinkerforge/tng-base-init/internal/pkg/eeprom"
)

// fakeDevice serves record bytes one at a time, like the real bus does.
type fakeDevice struct {
	data   []byte
	pos    int
	failAt int // byte index that fails with an I/O error, -1 to disable
}

func newFakeDevice(data []byte) *fakeDevice {
	return &fakeDevice{data: data, failAt: -1}
}

func (d *fakeDevice) SetAddress(addr uint16) error {
	d.pos = int(addr)

	return nil
}

func (d *fakeDevice) ReadByte() (byte, error) {
	if d.pos == d.failAt {
		return 0, errors.New("bus transfer failed")
	}

	if d.pos >= len(d.data) {
		return 0, errors.New("read past end of device")
	}

	b := d.data[d.pos]
	d.pos++

	return b, nil
}

type payloadV1 struct {
	productionDate uint32
	uid            string
	hostname       string
	password       string
	ethernetConfig []byte
}

func defaultPayload() payloadV1 {
	config := make([]byte, eeprom.EthernetConfigSize)
	for i := range config {
		config[i] = byte(i)
	}

	return payloadV1{
		productionDate: 0x20200827,
		uid:            "AB1234",
		hostname:       "tng-base-AB1234",
		password:       "$6$salt$devicespecifichash",
		ethernetConfig: config,
	}
}

func fixedField(s string, size int) []byte {
	b := make([]byte, size)
	copy(b, s)

	return b
}

func (p payloadV1) encode() []byte {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, p.productionDate)
	data = append(data, fixedField(p.uid, 7)...)
	data = append(data, fixedField(p.hostname, 65)...)
	data = append(data, fixedField(p.password, 107)...)
	data = append(data, p.ethernetConfig...)

	return data
}

// buildRecord assembles valid record bytes the way the factory programmer
// does: header, then payload, with the checksum over {length, version} and
// every payload byte.
func buildRecord(version uint8, payload []byte) []byte {
	raw := make([]byte, 11+len(payload))
	binary.LittleEndian.PutUint32(raw[0:4], eeprom.Magic)
	binary.LittleEndian.PutUint16(raw[8:10], uint16(len(payload)))
	raw[10] = version
	copy(raw[11:], payload)

	checksum := crc32.Update(0, crc32.IEEETable, raw[8:11])
	checksum = crc32.Update(checksum, crc32.IEEETable, payload)
	binary.LittleEndian.PutUint32(raw[4:8], checksum)

	return raw
}

func TestReadValid(t *testing.T) {
	payload := defaultPayload()

	record, err := eeprom.Read(newFakeDevice(buildRecord(1, payload.encode())))
	require.NoError(t, err)

	assert.Equal(t, uint8(1), record.Header.DataVersion)
	assert.Equal(t, "AB1234", record.DataV1.UID)
	assert.Equal(t, "tng-base-AB1234", record.DataV1.Hostname)
	assert.Equal(t, "$6$salt$devicespecifichash", record.DataV1.EncryptedPassword)
	assert.Equal(t, payload.ethernetConfig, record.DataV1.EthernetConfig[:])
	assert.Equal(t, "2020-08-27", record.ProductionDate())
}

func TestReadWrongMagic(t *testing.T) {
	raw := buildRecord(1, defaultPayload().encode())
	raw[0] ^= 0xFF

	_, err := eeprom.Read(newFakeDevice(raw))
	assert.ErrorContains(t, err, "wrong magic number")
}

// Every single-bit corruption of a valid record must be rejected: either the
// magic check, the checksum, a terminator check or an out-of-bounds read
// catches it.
func TestReadBitFlips(t *testing.T) {
	valid := buildRecord(1, defaultPayload().encode())

	for i := range valid {
		for bit := range 8 {
			raw := make([]byte, len(valid))
			copy(raw, valid)
			raw[i] ^= 1 << bit

			_, err := eeprom.Read(newFakeDevice(raw))
			assert.Errorf(t, err, "flip of byte %d bit %d was accepted", i, bit)
		}
	}
}

func TestReadInvalidVersion(t *testing.T) {
	_, err := eeprom.Read(newFakeDevice(buildRecord(0, defaultPayload().encode())))
	assert.ErrorContains(t, err, "invalid data-version")
}

func TestReadShortPayload(t *testing.T) {
	payload := defaultPayload().encode()

	_, err := eeprom.Read(newFakeDevice(buildRecord(1, payload[:len(payload)-1])))
	assert.ErrorContains(t, err, "invalid data-length")
}

func TestReadUnterminatedField(t *testing.T) {
	payload := defaultPayload()
	payload.uid = "toolong" // exactly fills the field, no room for the terminator

	_, err := eeprom.Read(newFakeDevice(buildRecord(1, payload.encode())))
	assert.ErrorContains(t, err, "UID is not null-terminated")
}

// A payload longer than the known version 1 layout is forward compatible:
// the extra bytes feed the checksum and are discarded.
func TestReadOversizePayload(t *testing.T) {
	payload := append(defaultPayload().encode(), 0xDE, 0xAD, 0xBE, 0xEF)

	record, err := eeprom.Read(newFakeDevice(buildRecord(2, payload)))
	require.NoError(t, err)

	assert.Equal(t, uint8(2), record.Header.DataVersion)
	assert.Equal(t, "AB1234", record.DataV1.UID)
}

func TestReadIOError(t *testing.T) {
	dev := newFakeDevice(buildRecord(1, defaultPayload().encode()))
	dev.failAt = 100

	_, err := eeprom.Read(dev)
	assert.ErrorContains(t, err, "error reading record data")
}

func TestReadHeaderIOError(t *testing.T) {
	dev := newFakeDevice(buildRecord(1, defaultPayload().encode()))
	dev.failAt = 5

	_, err := eeprom.Read(dev)
	assert.ErrorContains(t, err, "error reading record header")
}
