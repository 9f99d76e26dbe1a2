package volume

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hn4dev/hn4/internal/format"
	"github.com/hn4dev/hn4/internal/hal"
	"github.com/hn4dev/hn4/internal/parity"
	"github.com/hn4dev/hn4/internal/types"
)

func TestFsckOnCleanSingleModeVolume(t *testing.T) {
	h, dev := newFormattedDevice(t, 1<<20)
	v, err := Mount(h, dev, MountOptions{Writable: true})
	require.NoError(t, err)

	res, err := v.Fsck()
	require.NoError(t, err)
	require.False(t, res.Chronicle.ChainBroken, "expected an unbroken chain on a freshly formatted volume")
	require.Zero(t, res.RowsScrubbed, "expected no rows to scrub on a non-PARITY volume")
}

func TestFsckScrubsTornParityRows(t *testing.T) {
	h := hal.NewHandle(hal.Config{})
	primary := hal.NewMemDevice(512, 1<<20, types.DeviceSSD, types.CapStrictFlush)
	_, err := format.Format(h, primary, format.Params{Profile: types.ProfileGeneric, Label: "test-volume", CortexSlots: 64})
	require.NoError(t, err)
	extra1 := hal.NewMemDevice(512, 1<<20, types.DeviceSSD, types.CapStrictFlush)
	extra2 := hal.NewMemDevice(512, 1<<20, types.DeviceSSD, types.CapStrictFlush)

	v, err := Mount(h, primary, MountOptions{
		Writable:     true,
		ArrayMode:    parity.ModeParity,
		ArrayDevices: []hal.Device{extra1, extra2},
	})
	require.NoError(t, err)

	a, err := v.CreateAnchor(NewAnchorParams{
		Class:       types.ClassValid,
		Permissions: types.PermRead | types.PermWrite,
	})
	require.NoError(t, err)

	payload := make([]byte, int(v.blockBytes())-int(types.BlockHeaderSize))
	for i := range payload {
		payload[i] = 0x42
	}
	_, err = v.WriteBlock(a, 0, payload)
	require.NoError(t, err)

	res, err := v.Fsck()
	require.NoError(t, err)
	require.NotZero(t, res.RowsScrubbed, "expected at least one row to be scrubbed from the WriteStripe WORMHOLE entry")
	require.Empty(t, res.ScrubErrors)

	got, err := v.ReadBlock(a, 0)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}
