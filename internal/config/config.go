// Package config loads HN4's runtime tuning knobs via Viper: the HAL
// sync-I/O timeout, the allocator's saturation threshold, a default
// cortex slot count, and a default parity stripe unit. Of these only the
// sync-I/O timeout is consumed (through HALConfig); the other three are
// loaded and validated but not passed to the allocator, the formatter or
// the volume layer. These are operational knobs, not format-time geometry —
// format-time parameters are supplied explicitly to format.Format by the
// caller (formatter CLI flags), never defaulted from this package.
//
// Grounded on the teacher's internal/device.LoadDMGConfig: SetDefault +
// SetEnvPrefix + AutomaticEnv + optional YAML file, generalized from one
// DMG-specific config struct to HN4's own tunables.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/hn4dev/hn4/internal/allocator"
	"github.com/hn4dev/hn4/internal/hal"
	"github.com/hn4dev/hn4/internal/parity"
)

// Runtime holds the process-wide tunables a running HN4 node reads at
// startup.
type Runtime struct {
	SyncTimeoutMillis   int64  `mapstructure:"sync_timeout_millis"`
	UpdateLimitPerMille uint64 `mapstructure:"update_limit_per_mille"`
	DefaultCortexSlots  uint64 `mapstructure:"default_cortex_slots"`
	DefaultStripeUnit   uint64 `mapstructure:"default_stripe_unit"`
}

// Load reads HN4_* environment variables and an optional hn4.yaml from the
// usual search path, falling back to the package defaults (§9 "model as a
// single process-wide HAL handle... pass the handle to every volume": this
// is what seeds that handle's Config).
func Load() (*Runtime, error) {
	viper.SetConfigName("hn4")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("$HOME/.hn4")
	viper.AddConfigPath("/etc/hn4")

	viper.SetDefault("sync_timeout_millis", int64(hal.DefaultSyncTimeout/time.Millisecond))
	viper.SetDefault("update_limit_per_mille", allocator.DefaultUpdateLimitPerMille)
	viper.SetDefault("default_cortex_slots", 4096)
	viper.SetDefault("default_stripe_unit", parity.DefaultStripeUnit)

	viper.SetEnvPrefix("HN4")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading hn4 config: %w", err)
		}
	}

	var rt Runtime
	if err := viper.Unmarshal(&rt); err != nil {
		return nil, fmt.Errorf("unmarshaling hn4 config: %w", err)
	}
	return &rt, nil
}

// HALConfig adapts the loaded runtime into a hal.Config.
func (r *Runtime) HALConfig() hal.Config {
	return hal.Config{SyncTimeout: time.Duration(r.SyncTimeoutMillis) * time.Millisecond}
}
