package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hn4dev/hn4/internal/volume"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Mount a volume read-only and report its superblock state",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	dev, err := openDevice()
	if err != nil {
		return err
	}
	defer dev.Close()

	_, h, err := openRuntime()
	if err != nil {
		return err
	}

	v, err := volume.Mount(h, dev, volume.MountOptions{Writable: false})
	if err != nil {
		return fmt.Errorf("mount: %w", err)
	}

	sb := v.SB()
	fmt.Printf("profile:          %s\n", sb.Profile)
	fmt.Printf("uuid:             %s\n", sb.VolumeUUID.String())
	fmt.Printf("block size:       %d\n", sb.BlockSize)
	fmt.Printf("sector size:      %d\n", sb.SectorSize)
	fmt.Printf("total capacity:   %d sectors\n", sb.TotalCapacity)
	fmt.Printf("copy generation:  %d\n", sb.CopyGeneration)
	fmt.Printf("journal head:     %d\n", sb.JournalHead)
	fmt.Printf("degraded:         %t\n", v.Degraded())

	return volume.Unmount(v)
}
