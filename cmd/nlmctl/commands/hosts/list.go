package hosts

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittofs/cmd/nlmctl/cmdutil"
	"github.com/marmos91/dittofs/pkg/adminclient"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List monitored hosts",
	RunE:  runList,
}

// hostTable adapts a slice of adminclient.Host to output.TableRenderer.
type hostTable []adminclient.Host

func (t hostTable) Headers() []string {
	return []string{"SYSID", "CALLER NAME", "NETID", "ADDR", "MONITOR STATE", "REFCOUNT", "VHOLDS"}
}

func (t hostTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, h := range t {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(h.Sysid), 10),
			h.CallerName,
			h.Netid,
			h.Addr,
			h.MonitorState,
			strconv.Itoa(h.Refcount),
			strconv.Itoa(h.VholdCount),
		})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	client := cmdutil.GetClient()
	list, err := client.ListHosts()
	if err != nil {
		return fmt.Errorf("list hosts: %w", err)
	}
	return cmdutil.PrintOutput(os.Stdout, len(list) == 0, "No hosts monitored.", hostTable(list), list)
}
