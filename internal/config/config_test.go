package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hn4dev/hn4/internal/allocator"
)

func TestLoadDefaults(t *testing.T) {
	rt, err := Load()
	require.NoError(t, err)

	require.EqualValues(t, allocator.DefaultUpdateLimitPerMille, rt.UpdateLimitPerMille)
	require.NotZero(t, rt.DefaultCortexSlots)

	halCfg := rt.HALConfig()
	require.Positive(t, halCfg.SyncTimeout)
}
