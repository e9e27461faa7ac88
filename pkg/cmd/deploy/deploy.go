// Package deploy is for the deploy command
package deploy

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/superbench/sbfleet/pkg/config"
	"github.com/superbench/sbfleet/pkg/entity"
	sberrors "github.com/superbench/sbfleet/pkg/errors"
	"github.com/superbench/sbfleet/pkg/orchestrator"
	"github.com/superbench/sbfleet/pkg/remote"
	"github.com/superbench/sbfleet/pkg/store"
	"github.com/superbench/sbfleet/pkg/terminal"
)

func NewCmdDeploy(t *terminal.Terminal) *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "bootstrap the benchmark runtime across the fleet",
		Long: `Provision the fleet SSH identity, probe every host for NVIDIA/AMD/Ascend
accelerators and start an accelerator-aware workspace container on each one.
Hosts fail independently; the exit status is non-zero when any host failed a
required stage.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := RunDeploy(cmd, t, configPath)
			if err != nil {
				return sberrors.WrapAndTrace(err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "f", "fleet.yaml", "path to the fleet configuration file")
	return cmd
}

func RunDeploy(cmd *cobra.Command, t *terminal.Terminal, configPath string) error {
	reporter := sberrors.GetDefaultErrorReporter()
	defer reporter.Setup()()

	fileStore := store.NewBasicStore(*config.GlobalConfig).WithFileSystem(afero.NewOsFs())
	o := orchestrator.NewOrchestrator(t, fileStore, func(creds entity.Credentials) remote.Executor {
		return remote.NewSSHExecutor(fileStore, creds.PrivateKeyPath)
	})

	report, err := o.Run(cmd.Context(), configPath)
	if err != nil {
		reporter.ReportError(err)
		return sberrors.WrapAndTrace(err)
	}
	reporter.AddTag("run_id", report.RunID)

	if report.Failed() {
		return sberrors.WrapAndTrace(report.Err())
	}
	t.Vprint(t.Green("fleet is ready for benchmarks"))
	return nil
}
