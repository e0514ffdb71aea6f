package hosts

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittofs/cmd/nlmctl/cmdutil"
	"github.com/marmos91/dittofs/internal/cli/output"
)

var showCmd = &cobra.Command{
	Use:   "show <sysid>",
	Short: "Show a single host's state",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	sysid, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid sysid %q: %w", args[0], err)
	}

	client := cmdutil.GetClient()
	host, err := client.GetHost(uint32(sysid))
	if err != nil {
		return fmt.Errorf("get host %d: %w", sysid, err)
	}

	if cmdutil.Flags.Output == "json" {
		return output.PrintJSON(os.Stdout, host)
	}
	return output.PrintTable(os.Stdout, hostTable{*host})
}
