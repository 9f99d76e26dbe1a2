package main

import (
	"fmt"

	"github.com/hn4dev/hn4/internal/config"
	"github.com/hn4dev/hn4/internal/device"
	"github.com/hn4dev/hn4/internal/hal"
	"github.com/hn4dev/hn4/internal/types"
)

// openRuntime loads the ambient config and constructs a HAL handle from it.
func openRuntime() (*config.Runtime, *hal.Handle, error) {
	rt, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	return rt, hal.NewHandle(rt.HALConfig()), nil
}

// openDevice opens flagDevice as a FileDevice, creating it at flagSectors
// capacity if it doesn't already exist.
func openDevice() (*device.FileDevice, error) {
	if flagDevice == "" {
		return nil, fmt.Errorf("a --device path is required")
	}
	cfg, err := device.LoadFileConfig()
	if err != nil {
		return nil, err
	}
	cfg.SectorSize = flagSector

	capacity := flagSectors
	if capacity == 0 {
		capacity = 1 << 20 // 512MiB at the default 512-byte sector size
	}
	return device.OpenFile(flagDevice, capacity, cfg)
}

func parseProfile(name string) (types.Profile, error) {
	switch name {
	case "pico", "Pico":
		return types.ProfilePico, nil
	case "generic", "Generic":
		return types.ProfileGeneric, nil
	case "usb", "USB":
		return types.ProfileUSB, nil
	case "gaming", "Gaming":
		return types.ProfileGaming, nil
	case "ai", "AI":
		return types.ProfileAI, nil
	case "archive", "Archive":
		return types.ProfileArchive, nil
	case "system", "System":
		return types.ProfileSystem, nil
	case "hypercloud", "HyperCloud":
		return types.ProfileHyperCloud, nil
	default:
		return types.ProfileUnknown, fmt.Errorf("unknown profile %q", name)
	}
}
