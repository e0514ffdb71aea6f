// Package cmdutil provides shared utilities for nlmctl commands.
package cmdutil

import (
	"fmt"
	"io"

	"github.com/marmos91/dittofs/internal/cli/output"
	"github.com/marmos91/dittofs/pkg/adminclient"
)

// Flags stores the global flag values accessible by subcommands.
var Flags = &GlobalFlags{}

// GlobalFlags holds the global flag values.
type GlobalFlags struct {
	Addr   string
	Token  string
	Output string
}

// GetClient builds an admin API client from the current flag values.
func GetClient() *adminclient.Client {
	c := adminclient.New(Flags.Addr)
	if Flags.Token != "" {
		c = c.WithToken(Flags.Token)
	}
	return c
}

// PrintOutput prints data as JSON or, by default, as a table.
// When data is empty, emptyMsg is printed instead of an empty table.
func PrintOutput(w io.Writer, isEmpty bool, emptyMsg string, table output.TableRenderer, raw any) error {
	if Flags.Output == "json" {
		return output.PrintJSON(w, raw)
	}
	if isEmpty {
		_, _ = fmt.Fprintln(w, emptyMsg)
		return nil
	}
	return output.PrintTable(w, table)
}
