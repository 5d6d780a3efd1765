// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package shadow migrates the factory default credential of the tng account
// to the device specific one from the configuration record.
//
// The image ships with the account locked ("!" in front of the hash) and set
// to a well-known default password. On first boot the locked hash is compared
// against the default password under the stored salt; only an exact match is
// replaced, so a password the user already changed is never overwritten. The
// original file is kept as a backup, and the rewrite goes through a temporary
// file so a power loss cannot corrupt the password database.
package shadow

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/GehirnInc/crypt"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	// crypt schemes the image can carry
	_ "github.com/GehirnInc/crypt/md5_crypt"
	_ "github.com/GehirnInc/crypt/sha256_crypt"
	_ "github.com/GehirnInc/crypt/sha512_crypt"

	"github.com/tinkerforge/tng-base-init/internal/pkg/atomicfile"
)

const (
	// AccountName is the account whose credential gets migrated.
	AccountName = "tng"

	// DefaultPassword is the well-known factory default credential.
	DefaultPassword = "default-tng-password"

	// BackupSuffix and TmpSuffix follow the shadow(5) conventions for the
	// backup and in-progress copies of the password database.
	BackupSuffix = "-"
	TmpSuffix    = "+"

	maxFileSize = 512 * 1024
)

// Migrate replaces the locked default credential of the tng account in the
// password database at path with devicePassword (a pre-hashed crypt(3)
// string). An account that is absent, unlocked, disabled, already migrated
// or using an uncomputable hash scheme is a logged skip; a malformed entry
// or any I/O failure is an error.
func Migrate(path, devicePassword string, logger *zap.Logger) error {
	var st unix.Stat_t

	logger.Info("opening", zap.String("path", path))

	if err := unix.Stat(path, &st); err != nil {
		return fmt.Errorf("error getting status of %s: %w", path, err)
	}

	if st.Size > maxFileSize {
		return fmt.Errorf("%s is too big: %d > %d", path, st.Size, maxFileSize)
	}

	buffer, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading %s: %w", path, err)
	}

	// the entry is either the first line or starts right after a newline
	prefix := []byte(AccountName + ":")

	var entryBegin int

	switch {
	case bytes.HasPrefix(buffer, prefix):
		entryBegin = 0
	default:
		idx := bytes.Index(buffer, append([]byte("\n"), prefix...))
		if idx < 0 {
			logger.Info("account is not present, skipping password replacement", zap.String("account", AccountName))

			return nil
		}

		entryBegin = idx + 1
	}

	encryptedBegin := entryBegin + len(prefix)
	if encryptedBegin >= len(buffer) {
		return fmt.Errorf("encrypted section for account %s is malformed", AccountName)
	}

	switch buffer[encryptedBegin] {
	case '*':
		logger.Info("account has no password set, skipping password replacement", zap.String("account", AccountName))

		return nil
	case '!':
		// locked as expected
	default:
		logger.Info("account is not locked, skipping password replacement", zap.String("account", AccountName))

		return nil
	}

	relEnd := bytes.IndexByte(buffer[encryptedBegin:], ':')
	if relEnd < 0 {
		return fmt.Errorf("encrypted section for account %s is malformed", AccountName)
	}

	encryptedEnd := encryptedBegin + relEnd

	// skip the lock marker
	encrypted := string(buffer[encryptedBegin+1 : encryptedEnd])

	salt, err := Salt(encrypted)
	if err != nil {
		return err
	}

	crypter, ok := crypterFor(encrypted)
	if !ok {
		logger.Info("account uses an uncomputable hash scheme, skipping password replacement",
			zap.String("account", AccountName), zap.String("salt", salt))

		return nil
	}

	switch err = crypter.Verify(encrypted, []byte(DefaultPassword)); {
	case errors.Is(err, crypt.ErrKeyMismatch):
		logger.Info("account does not have the default password set, skipping password replacement", zap.String("account", AccountName))

		return nil
	case err != nil:
		return fmt.Errorf("error encrypting default password: %w", err)
	}

	logger.Info("account has default password set, replacing with device specific password", zap.String("account", AccountName))

	uid, gid, mode := int(st.Uid), int(st.Gid), os.FileMode(st.Mode&0o7777)

	// the backup must be durable before the original is touched
	backupPath := path + BackupSuffix

	logger.Info("creating", zap.String("path", backupPath))

	if err = atomicfile.WriteFileSync(backupPath, buffer, uid, gid, mode); err != nil {
		return err
	}

	// splice the device password in place of the locked hash field
	replacement := make([]byte, 0, len(buffer)+len(devicePassword))
	replacement = append(replacement, buffer[:encryptedBegin]...)
	replacement = append(replacement, devicePassword...)
	replacement = append(replacement, buffer[encryptedEnd:]...)

	tmpPath := path + TmpSuffix

	logger.Info("creating", zap.String("path", tmpPath))

	if err = atomicfile.WriteFileSync(tmpPath, replacement, uid, gid, mode); err != nil {
		return err
	}

	logger.Info("renaming", zap.String("from", tmpPath), zap.String("to", path))

	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("error renaming %s to %s: %w", tmpPath, path, err)
	}

	return nil
}

// Salt extracts the salt prefix of a crypt(3) hash: a scheme-tagged hash
// keeps everything up to and including the last '$', a plain DES hash uses
// its first two characters.
func Salt(encrypted string) (string, error) {
	if len(encrypted) < 2 {
		return "", fmt.Errorf("encrypted section for account %s is malformed", AccountName)
	}

	if encrypted[0] != '$' {
		return encrypted[:2], nil
	}

	return encrypted[:strings.LastIndexByte(encrypted, '$')+1], nil
}

// crypterFor picks the crypt(3) implementation matching the stored hash.
// Plain DES hashes have no pure Go implementation and report not-ok.
func crypterFor(encrypted string) (crypt.Crypter, bool) {
	switch {
	case strings.HasPrefix(encrypted, "$1$"):
		return crypt.MD5.New(), true
	case strings.HasPrefix(encrypted, "$5$"):
		return crypt.SHA256.New(), true
	case strings.HasPrefix(encrypted, "$6$"):
		return crypt.SHA512.New(), true
	}

	return nil, false
}
