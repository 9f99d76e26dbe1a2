package device

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hn4dev/hn4/internal/types"
)

func TestFileDeviceReadWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "volume.img")
	cfg := &FileConfig{SectorSize: 512, StrictFlush: true, DeviceType: "ssd"}

	dev, err := OpenFile(path, 1024, cfg)
	require.NoError(t, err)
	defer dev.Close()

	require.EqualValues(t, 1024, dev.CapacitySectors())
	require.True(t, dev.Caps().Has(types.CapStrictFlush))

	want := bytes.Repeat([]byte{0x77}, 512)
	require.NoError(t, dev.WriteAt(10, want))
	require.NoError(t, dev.Flush())

	got := make([]byte, 512)
	require.NoError(t, dev.ReadAt(10, got))
	require.Equal(t, want, got)
}

func TestOpenFileGrowsToCapacity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "volume.img")
	cfg := &FileConfig{SectorSize: 4096, DeviceType: "hdd"}

	dev, err := OpenFile(path, 256, cfg)
	require.NoError(t, err)
	defer dev.Close()

	require.Equal(t, types.DeviceHDD, dev.DeviceType())

	stat, err := dev.file.Stat()
	require.NoError(t, err)
	require.EqualValues(t, 256*4096, stat.Size())
}
