// Package version is for the version command
package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/superbench/sbfleet/pkg/terminal"
)

// Version is set at build time via ldflags.
var Version = ""

func NewCmdVersion(t *terminal.Terminal) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "print the version of sbfleet",
		Run: func(cmd *cobra.Command, args []string) {
			t.Vprint(BuildVersionString())
		},
	}
	return cmd
}

func BuildVersionString() string {
	if Version == "" {
		return "dev"
	}
	return fmt.Sprintf("sbfleet %s", Version)
}
