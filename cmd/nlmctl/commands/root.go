// Package commands implements the CLI commands for nlmctl, the operator
// client for nlmd's admin API.
package commands

import (
	hostscmd "github.com/marmos91/dittofs/cmd/nlmctl/commands/hosts"
	lockscmd "github.com/marmos91/dittofs/cmd/nlmctl/commands/locks"
	"github.com/marmos91/dittofs/cmd/nlmctl/cmdutil"
	"github.com/spf13/cobra"
)

// Version information injected at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "nlmctl",
	Short: "nlmctl - operator client for the NLM/NSM lock daemon's admin API",
	Long: `nlmctl talks to nlmd's admin HTTP API: it lists monitored hosts,
inspects locks held on a file handle, and can force a host to be
unmonitored when its crash notification never arrived.

It never touches the NLM/NSM wire protocol or a grant decision; every
command here is a read or an operator-triggered recovery action.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cmdutil.Flags.Addr, _ = cmd.Flags().GetString("addr")
		cmdutil.Flags.Token, _ = cmd.Flags().GetString("token")
		cmdutil.Flags.Output, _ = cmd.Flags().GetString("output")
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("addr", "http://127.0.0.1:9009", "nlmd admin API base URL")
	rootCmd.PersistentFlags().String("token", "", "bearer token, if the admin API requires one")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "output format (table|json)")

	rootCmd.AddCommand(hostscmd.Cmd)
	rootCmd.AddCommand(lockscmd.Cmd)
	rootCmd.AddCommand(versionCmd)
}
