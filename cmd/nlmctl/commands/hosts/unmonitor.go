package hosts

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittofs/cmd/nlmctl/cmdutil"
	"github.com/marmos91/dittofs/internal/cli/prompt"
)

var unmonitorForce bool

var unmonitorCmd = &cobra.Command{
	Use:   "unmonitor <sysid>",
	Short: "Force a host unmonitored",
	Long: `Force nlmd to stop monitoring a host, as if it had just issued
notify_server and notify_client with state 0. Use this when a peer crashed
behind a firewall and its real SM_NOTIFY will never arrive: until this runs,
the host's locks stay held and its sysid stays reserved.`,
	Args: cobra.ExactArgs(1),
	RunE: runUnmonitor,
}

func init() {
	unmonitorCmd.Flags().BoolVarP(&unmonitorForce, "force", "f", false, "skip the confirmation prompt")
}

func runUnmonitor(cmd *cobra.Command, args []string) error {
	sysid, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid sysid %q: %w", args[0], err)
	}

	confirmed, err := prompt.ConfirmWithForce(fmt.Sprintf("Force host %d unmonitored?", sysid), unmonitorForce)
	if err != nil {
		if prompt.IsAborted(err) {
			fmt.Println("Aborted.")
			return nil
		}
		return err
	}
	if !confirmed {
		fmt.Println("Aborted.")
		return nil
	}

	client := cmdutil.GetClient()
	if err := client.UnmonitorHost(uint32(sysid)); err != nil {
		return fmt.Errorf("unmonitor host %d: %w", sysid, err)
	}

	fmt.Printf("Host %d unmonitored.\n", sysid)
	return nil
}
