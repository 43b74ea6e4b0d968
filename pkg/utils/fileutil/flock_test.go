//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd

package fileutil

import (
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenLockedExclusive(t *testing.T) {
	name := filepath.Join(t.TempDir(), "device.txt")

	f, l, err := OpenLocked(name, os.O_CREATE|os.O_WRONLY, 0644)
	require.NoError(t, err)

	_, _, err = OpenLocked(name, os.O_CREATE|os.O_WRONLY, 0644)
	require.Error(t, err)

	require.NoError(t, l.Release())
	require.NoError(t, f.Close())

	f, l, err = OpenLocked(name, os.O_CREATE|os.O_WRONLY, 0644)
	require.NoError(t, err)
	require.NoError(t, l.Release())
	require.NoError(t, f.Close())
}
