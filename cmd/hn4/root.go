package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagVerbose bool
	flagQuiet   bool
	flagDevice  string
	flagSectors uint64
	flagSector  uint32
)

var rootCmd = &cobra.Command{
	Use:   "hn4",
	Short: "Format, mount, and repair HN4 volumes",
	Long: `hn4 is a command-line tool for the HN4 on-disk storage engine:
it lays down a fresh volume (format), opens one against a device file
for inspection (status), and runs the mount-time recovery scrub
against a possibly-torn volume (fsck).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress non-essential output")
	rootCmd.PersistentFlags().StringVarP(&flagDevice, "device", "d", "", "path to the backing device file")
	rootCmd.PersistentFlags().Uint64Var(&flagSectors, "sectors", 0, "device capacity in sectors (used when creating a new device file)")
	rootCmd.PersistentFlags().Uint32Var(&flagSector, "sector-size", 512, "device sector size in bytes")
}

func logf(format string, args ...interface{}) {
	if flagQuiet {
		return
	}
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

func verbosef(format string, args ...interface{}) {
	if !flagVerbose || flagQuiet {
		return
	}
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}
