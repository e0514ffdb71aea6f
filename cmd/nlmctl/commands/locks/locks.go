// Package locks implements "nlmctl locks" subcommands.
package locks

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittofs/cmd/nlmctl/cmdutil"
	"github.com/marmos91/dittofs/pkg/adminclient"
)

// Cmd is the parent command for lock inspection.
var Cmd = &cobra.Command{
	Use:   "locks",
	Short: "Inspect locks held on a file handle",
}

var fileHandle string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List locks held on a file handle",
	Long: `List every shared or exclusive lock currently held on a file handle.

Examples:
  nlmctl locks list --fh 0a1b2c3d`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&fileHandle, "fh", "", "file handle to inspect (required)")
	Cmd.AddCommand(listCmd)
}

type lockTable []adminclient.Lock

func (t lockTable) Headers() []string {
	return []string{"ID", "OWNER", "TYPE", "OFFSET", "LENGTH", "ACQUIRED AT"}
}

func (t lockTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, l := range t {
		rows = append(rows, []string{
			l.ID,
			l.Owner,
			l.Type,
			fmt.Sprintf("%d", l.Offset),
			fmt.Sprintf("%d", l.Length),
			l.AcquiredAt,
		})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	if fileHandle == "" {
		return fmt.Errorf("--fh is required")
	}

	client := cmdutil.GetClient()
	list, err := client.ListLocks(fileHandle)
	if err != nil {
		return fmt.Errorf("list locks: %w", err)
	}
	return cmdutil.PrintOutput(os.Stdout, len(list) == 0, "No locks held.", lockTable(list), list)
}
