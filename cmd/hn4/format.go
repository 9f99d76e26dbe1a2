package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hn4dev/hn4/internal/format"
)

var (
	flagProfile string
	flagLabel   string
)

var formatCmd = &cobra.Command{
	Use:   "format",
	Short: "Lay down a fresh HN4 volume on a device file",
	RunE:  runFormat,
}

func init() {
	formatCmd.Flags().StringVar(&flagProfile, "profile", "generic", "format profile (pico, generic, usb, gaming, ai, archive, system, hypercloud)")
	formatCmd.Flags().StringVar(&flagLabel, "label", "", "volume label")
	rootCmd.AddCommand(formatCmd)
}

func runFormat(cmd *cobra.Command, args []string) error {
	profile, err := parseProfile(flagProfile)
	if err != nil {
		return err
	}

	dev, err := openDevice()
	if err != nil {
		return err
	}
	defer dev.Close()

	_, h, err := openRuntime()
	if err != nil {
		return err
	}

	sb, err := format.Format(h, dev, format.Params{
		Profile: profile,
		Label:   flagLabel,
	})
	if err != nil {
		return fmt.Errorf("format: %w", err)
	}

	logf("formatted %s: profile=%s label=%q capacity=%d sectors uuid=%s",
		flagDevice, sb.Profile, flagLabel, sb.TotalCapacity, sb.VolumeUUID.String())
	return nil
}
