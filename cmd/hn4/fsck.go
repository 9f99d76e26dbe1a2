package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hn4dev/hn4/internal/volume"
)

var fsckCmd = &cobra.Command{
	Use:   "fsck",
	Short: "Run the mount-time recovery scan and parity scrub against a volume",
	RunE:  runFsck,
}

func init() {
	rootCmd.AddCommand(fsckCmd)
}

func runFsck(cmd *cobra.Command, args []string) error {
	dev, err := openDevice()
	if err != nil {
		return err
	}
	defer dev.Close()

	_, h, err := openRuntime()
	if err != nil {
		return err
	}

	v, err := volume.Mount(h, dev, volume.MountOptions{Writable: true})
	if err != nil {
		return fmt.Errorf("mount: %w", err)
	}

	res, err := v.Fsck()
	if err != nil {
		volume.Unmount(v)
		return fmt.Errorf("fsck: %w", err)
	}

	logf("chronicle: scanned %d entries, chain_broken=%t, torn_stripes=%d",
		res.Chronicle.EntriesScanned, res.Chronicle.ChainBroken, len(res.Chronicle.TornStripes))
	logf("parity: rebuilt %d row(s), %d error(s)", res.RowsScrubbed, len(res.ScrubErrors))
	for _, e := range res.ScrubErrors {
		logf("  scrub error: %v", e)
	}

	return volume.Unmount(v)
}
