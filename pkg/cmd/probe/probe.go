// Package probe is for the probe command
package probe

import (
	"context"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/superbench/sbfleet/pkg/config"
	"github.com/superbench/sbfleet/pkg/entity"
	sberrors "github.com/superbench/sbfleet/pkg/errors"
	"github.com/superbench/sbfleet/pkg/fanout"
	deviceprobe "github.com/superbench/sbfleet/pkg/probe"
	"github.com/superbench/sbfleet/pkg/remote"
	"github.com/superbench/sbfleet/pkg/sshconf"
	"github.com/superbench/sbfleet/pkg/store"
	"github.com/superbench/sbfleet/pkg/terminal"
)

func NewCmdProbe(t *terminal.Terminal) *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "detect accelerators on every fleet host without deploying",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := RunProbe(cmd, t, configPath)
			if err != nil {
				return sberrors.WrapAndTrace(err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "f", "fleet.yaml", "path to the fleet configuration file")
	return cmd
}

func RunProbe(cmd *cobra.Command, t *terminal.Terminal, configPath string) error {
	fileStore := store.NewBasicStore(*config.GlobalConfig).WithFileSystem(afero.NewOsFs())

	deployment, err := fileStore.GetDeploymentConfig(configPath)
	if err != nil {
		return sberrors.WrapAndTrace(err)
	}
	creds, err := sshconf.NewProvisioner(fileStore).Provision(deployment.OutputDir, deployment.Hosts)
	if err != nil {
		return sberrors.WrapAndTrace(err)
	}

	prober := deviceprobe.NewDeviceProber(remote.NewSSHExecutor(fileStore, creds.PrivateKeyPath))
	outcome := fanout.Run(cmd.Context(), "probe", deployment.Hosts, 0, fanout.Required,
		func(ctx context.Context, host entity.Host) (string, error) {
			report, err := prober.Probe(ctx, host)
			if err != nil {
				return "", sberrors.WrapAndTrace(err)
			}
			return deviceprobe.Summary(host, report), nil
		})

	for _, res := range outcome.Results {
		if res.OK {
			t.Vprint(res.Output)
		} else {
			t.Vprint(t.Red("%s: probe failed: %v", res.Host.ID(), res.Err))
		}
	}
	if outcome.StageFailed {
		return sberrors.WrapAndTrace(sberrors.NewValidationError("some hosts could not be probed"))
	}
	return nil
}
