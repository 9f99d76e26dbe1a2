package chronicle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hn4dev/hn4/internal/hal"
	"github.com/hn4dev/hn4/internal/types"
)

func newTestLog(t *testing.T) (*hal.Handle, *Log) {
	t.Helper()
	h := hal.NewHandle(hal.Config{})
	dev := hal.NewMemDevice(512, 32, types.DeviceSSD, 0)
	return h, Open(h, dev, 0, 32, 0, false)
}

func TestAppendAdvancesHeadAndChains(t *testing.T) {
	_, log := newTestLog(t)

	first, err := log.Append(types.OpSnapshot, types.InvalidAddr, types.Addr(100), 0)
	require.NoError(t, err)
	require.EqualValues(t, 0, first)

	second, err := log.Append(types.OpSnapshot, types.InvalidAddr, types.Addr(200), 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, second)

	entry, err := log.ReadEntry(second)
	require.NoError(t, err)
	require.EqualValues(t, 200, entry.NewLBA)

	scan, err := log.RecoveryScan()
	require.NoError(t, err)
	require.False(t, scan.ChainBroken, "second entry must chain to the first sector's CRC")
}

func TestRecoveryScanFindsWormholeEntries(t *testing.T) {
	_, log := newTestLog(t)

	_, err := log.Append(types.OpSnapshot, types.InvalidAddr, types.Addr(1), 0)
	require.NoError(t, err)
	_, err = log.Append(types.OpWormhole, types.InvalidAddr, types.Addr(42), 3)
	require.NoError(t, err)

	res, err := log.RecoveryScan()
	require.NoError(t, err)
	require.False(t, res.ChainBroken, "expected an unbroken chain for a freshly written log")
	require.Len(t, res.TornStripes, 1)
	require.EqualValues(t, 42, res.TornStripes[0].NewLBA)
	require.EqualValues(t, 3, res.TornStripes[0].PayloadTag)
}

func TestAppendRejectsReadOnly(t *testing.T) {
	_, log := newTestLog(t)
	log.SetReadOnly(true)
	_, err := log.Append(types.OpSnapshot, types.InvalidAddr, types.Addr(1), 0)
	require.Error(t, err, "expected Append to reject on a read-only chronicle")
}
