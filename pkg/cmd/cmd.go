// Package cmd is the entrypoint to cli
package cmd

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/superbench/sbfleet/pkg/cmd/deploy"
	"github.com/superbench/sbfleet/pkg/cmd/probe"
	"github.com/superbench/sbfleet/pkg/cmd/version"
	"github.com/superbench/sbfleet/pkg/featureflag"
	"github.com/superbench/sbfleet/pkg/terminal"
)

func NewDefaultSbfleetCommand() *cobra.Command {
	cmd := NewSbfleetCommand(os.Stdin, os.Stdout, os.Stderr)
	return cmd
}

func NewSbfleetCommand(in io.Reader, out io.Writer, err io.Writer) *cobra.Command {
	featureflag.Load()
	t := terminal.New()

	cmds := &cobra.Command{
		Use:   "sbfleet",
		Short: "sbfleet bootstraps a benchmarking runtime across a fleet of accelerator hosts",
		Long: `
      sbfleet turns a list of bare hosts into a set of running, SSH-reachable,
      accelerator-aware containers ready to execute benchmark workloads.`,
		Run: runHelp,
	}

	cmds.AddCommand(deploy.NewCmdDeploy(t))
	cmds.AddCommand(probe.NewCmdProbe(t))
	cmds.AddCommand(version.NewCmdVersion(t))

	return cmds
}

func runHelp(cmd *cobra.Command, _ []string) {
	cmd.Help() //nolint:errcheck,gosec // command help
}
