// Command hn4 is a thin Cobra CLI over internal/format and internal/volume:
// format, mount/status, and fsck a device file from the shell.
//
// Modeled on the teacher's cmd/root.go + cmd/list.go split (one file per
// subcommand, package-level flag vars wired in init, cobra.CheckErr at the
// Run boundary) generalized from a read-only explorer's command set to
// HN4's format/mount/fsck lifecycle.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
