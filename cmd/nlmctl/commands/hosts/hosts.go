// Package hosts implements "nlmctl hosts" subcommands.
package hosts

import "github.com/spf13/cobra"

// Cmd is the parent command for host inspection and recovery.
var Cmd = &cobra.Command{
	Use:   "hosts",
	Short: "Inspect and recover monitored NLM/NSM peers",
	Long: `List the peers nlmd currently monitors, show one in detail, or force
it unmonitored when its crash notification never arrived.

Examples:
  nlmctl hosts list
  nlmctl hosts show 42
  nlmctl hosts unmonitor 42`,
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(unmonitorCmd)
}
