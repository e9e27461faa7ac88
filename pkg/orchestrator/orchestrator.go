// Package orchestrator sequences the bootstrap stages across the fleet:
// config validation, credential provisioning, device probe fan-out, then
// container deploy fan-out, ending in a per-host report.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/superbench/sbfleet/pkg/bootstrap"
	"github.com/superbench/sbfleet/pkg/config"
	"github.com/superbench/sbfleet/pkg/entity"
	sberrors "github.com/superbench/sbfleet/pkg/errors"
	"github.com/superbench/sbfleet/pkg/fanout"
	"github.com/superbench/sbfleet/pkg/probe"
	"github.com/superbench/sbfleet/pkg/remote"
	"github.com/superbench/sbfleet/pkg/sshconf"
	"github.com/superbench/sbfleet/pkg/store"
	"github.com/superbench/sbfleet/pkg/terminal"
)

type OrchestratorStore interface {
	sshconf.CredentialStore
	GetDeploymentConfig(path string) (*store.DeploymentConfig, error)
}

// ExecutorFactory builds the remote executor once credentials exist. Lets
// tests substitute a scripted transport.
type ExecutorFactory func(creds entity.Credentials) remote.Executor

type Orchestrator struct {
	t           *terminal.Terminal
	store       OrchestratorStore
	newExecutor ExecutorFactory
}

func NewOrchestrator(t *terminal.Terminal, orchestratorStore OrchestratorStore, factory ExecutorFactory) Orchestrator {
	return Orchestrator{t: t, store: orchestratorStore, newExecutor: factory}
}

// FleetReport is the end-of-run summary the exit status is derived from.
type FleetReport struct {
	RunID  string
	Probe  fanout.Outcome
	Deploy fanout.Outcome
	Facts  map[string]entity.AcceleratorFacts
}

func (r FleetReport) Failed() bool {
	return r.Probe.StageFailed || r.Deploy.StageFailed
}

// Err aggregates every required-stage failure into one error, or nil when
// the whole fleet bootstrapped cleanly.
func (r FleetReport) Err() error {
	var res *multierror.Error
	for _, outcome := range []fanout.Outcome{r.Probe, r.Deploy} {
		if !outcome.StageFailed {
			continue
		}
		for _, failure := range outcome.Results.Failed() {
			res = multierror.Append(res, fmt.Errorf("%s stage on %s: %w", outcome.Name, failure.Host.ID(), failure.Err))
		}
	}
	return res.ErrorOrNil()
}

// Run executes the full bootstrap. Configuration or credential errors abort
// before any per-host work; after fan-out begins every host is attempted
// regardless of sibling failures.
func (o Orchestrator) Run(ctx context.Context, configPath string) (*FleetReport, error) {
	deployment, err := o.store.GetDeploymentConfig(configPath)
	if err != nil {
		return nil, sberrors.WrapAndTrace(err)
	}

	creds, err := sshconf.NewProvisioner(o.store).Provision(deployment.OutputDir, deployment.Hosts)
	if err != nil {
		return nil, sberrors.WrapAndTrace(err)
	}
	o.t.Vprintf("fleet identity ready in %s\n", deployment.OutputDir)

	executor := o.newExecutor(creds)
	report := &FleetReport{
		RunID: uuid.NewString(),
		Facts: map[string]entity.AcceleratorFacts{},
	}

	s := o.t.NewSpinner()
	s.Suffix = " probing fleet devices"
	s.Start()
	report.Probe = o.runProbeStage(ctx, executor, deployment, report)

	s.Suffix = " starting workspace containers"
	report.Deploy = o.runDeployStage(ctx, executor, deployment, creds, report)
	s.Stop()

	o.printSummary(report)
	return report, nil
}

func (o Orchestrator) runProbeStage(ctx context.Context, executor remote.Executor, deployment *store.DeploymentConfig, report *FleetReport) fanout.Outcome {
	prober := probe.NewDeviceProber(executor)

	// facts are written per host index only, same ownership rule as the
	// fan-out result slice
	facts := make([]entity.AcceleratorFacts, len(deployment.Hosts))
	indexByID := hostIndex(deployment.Hosts)

	outcome := fanout.Run(ctx, "probe", deployment.Hosts, 0, fanout.Required,
		func(ctx context.Context, host entity.Host) (string, error) {
			callCtx, cancel := o.callContext(ctx)
			defer cancel()
			hostReport, err := prober.Probe(callCtx, host)
			if err != nil {
				return "", sberrors.WrapAndTrace(err)
			}
			facts[indexByID[host.ID()]] = hostReport.Facts
			return probe.Summary(host, hostReport), nil
		})

	for i, host := range deployment.Hosts {
		report.Facts[host.ID()] = facts[i]
	}
	return outcome
}

func (o Orchestrator) runDeployStage(ctx context.Context, executor remote.Executor, deployment *store.DeploymentConfig, creds entity.Credentials, report *FleetReport) fanout.Outcome {
	bootstrapper := bootstrap.NewBootstrapper(executor, deployment, creds, config.GlobalConfig.GetContainerName())

	return fanout.Run(ctx, "deploy", deployment.Hosts, deployment.PullConcurrencyLimit, fanout.Required,
		func(ctx context.Context, host entity.Host) (string, error) {
			probeResult, found := report.Probe.Results.Get(host)
			if found && !probeResult.OK {
				return "", sberrors.WrapAndTrace(probeResult.Err, "skipping deploy, probe failed on", host.ID())
			}
			callCtx, cancel := o.callContext(ctx)
			defer cancel()
			output, err := bootstrapper.Deploy(callCtx, host, report.Facts[host.ID()])
			if err != nil {
				return output, sberrors.WrapAndTrace(err)
			}
			return output, nil
		})
}

func (o Orchestrator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline := time.Duration(config.GlobalConfig.GetRemoteCallDeadlineMinutes()) * time.Minute
	return context.WithTimeout(ctx, deadline)
}

func (o Orchestrator) printSummary(report *FleetReport) {
	o.t.Vprintf("\nrun %s summary:\n", report.RunID)
	for _, res := range report.Probe.Results {
		deployResult, _ := report.Deploy.Results.Get(res.Host)
		vendors := "none"
		if facts := report.Facts[res.Host.ID()]; facts.Any() {
			vendors = fmt.Sprint(facts.Vendors())
		}
		switch {
		case !res.OK:
			o.t.Vprint(o.t.Red("  %s: probe failed: %v", res.Host.ID(), res.Err))
		case !deployResult.OK:
			o.t.Vprint(o.t.Red("  %s: accelerators=%s deploy failed: %v", res.Host.ID(), vendors, deployResult.Err))
		default:
			o.t.Vprint(o.t.Green("  %s: accelerators=%s ready", res.Host.ID(), vendors))
		}
	}
	if report.Failed() {
		o.t.Vprint(o.t.Yellow("some hosts failed; the rest of the fleet is still usable"))
	}
}

func hostIndex(hosts []entity.Host) map[string]int {
	index := map[string]int{}
	for i, host := range hosts {
		index[host.ID()] = i
	}
	return index
}
