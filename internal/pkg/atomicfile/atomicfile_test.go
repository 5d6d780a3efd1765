// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package atomicfile_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tinkerforge/tng-base-init/internal/pkg/atomicfile"
)

func TestUpdateCreatesFile(t *testing.T) {
	logger := zaptest.NewLogger(t)
	path := filepath.Join(t.TempDir(), "tng-base-uid")

	require.NoError(t, atomicfile.UpdateOwned(path, []byte("AB1234\n"), os.Getuid(), os.Getgid(), 0o444, logger))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "AB1234\n", string(content))

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o444), st.Mode().Perm())

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temporary file must not survive the rename")
}

func TestUpdateIsIdempotent(t *testing.T) {
	logger := zaptest.NewLogger(t)
	path := filepath.Join(t.TempDir(), "tng-base-hostname")

	require.NoError(t, atomicfile.UpdateOwned(path, []byte("tng-base\n"), os.Getuid(), os.Getgid(), 0o444, logger))

	// push the timestamp into the past; a second update with identical
	// content must not touch the file
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, past, past))

	require.NoError(t, atomicfile.UpdateOwned(path, []byte("tng-base\n"), os.Getuid(), os.Getgid(), 0o444, logger))

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.WithinDuration(t, past, st.ModTime(), time.Minute)
}

func TestUpdateReplacesContent(t *testing.T) {
	logger := zaptest.NewLogger(t)
	path := filepath.Join(t.TempDir(), "tng-base-hostname")

	require.NoError(t, atomicfile.UpdateOwned(path, []byte("old\n"), os.Getuid(), os.Getgid(), 0o444, logger))
	require.NoError(t, atomicfile.UpdateOwned(path, []byte("new\n"), os.Getuid(), os.Getgid(), 0o444, logger))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new\n", string(content))
}

func TestUpdateReplacesWrongMode(t *testing.T) {
	logger := zaptest.NewLogger(t)
	path := filepath.Join(t.TempDir(), "tng-base-uid")

	require.NoError(t, os.WriteFile(path, []byte("AB1234\n"), 0o644))

	require.NoError(t, atomicfile.UpdateOwned(path, []byte("AB1234\n"), os.Getuid(), os.Getgid(), 0o444, logger))

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o444), st.Mode().Perm())
}

func TestWriteFileSync(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup")

	require.NoError(t, atomicfile.WriteFileSync(path, []byte("payload"), os.Getuid(), os.Getgid(), 0o600))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(content))
}
