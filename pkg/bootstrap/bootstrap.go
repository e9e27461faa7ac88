// Package bootstrap turns one probed host into a running, SSH-reachable
// workspace container. Each host is handled independently; a failure here
// is that host's failure only.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/alessio/shellescape"

	"github.com/superbench/sbfleet/pkg/entity"
	sberrors "github.com/superbench/sbfleet/pkg/errors"
	"github.com/superbench/sbfleet/pkg/featureflag"
	"github.com/superbench/sbfleet/pkg/remote"
	"github.com/superbench/sbfleet/pkg/sshconf"
	"github.com/superbench/sbfleet/pkg/store"
)

// WorkspaceDir is the benchmark workspace directory under the remote user's
// home, mirrored into the container.
const WorkspaceDir = "sb-workspace"

type Bootstrapper struct {
	executor      remote.Executor
	deployment    *store.DeploymentConfig
	creds         entity.Credentials
	containerName string
}

func NewBootstrapper(executor remote.Executor, deployment *store.DeploymentConfig, creds entity.Credentials, containerName string) Bootstrapper {
	return Bootstrapper{
		executor:      executor,
		deployment:    deployment,
		creds:         creds,
		containerName: containerName,
	}
}

// Deploy runs the bootstrap sequence on one host. Steps 1-2 (workspace and
// credential setup) are fatal for the host; registry login is best-effort;
// pull, container replace and post-start config are required but scoped to
// this host.
func (b Bootstrapper) Deploy(ctx context.Context, host entity.Host, facts entity.AcceleratorFacts) (string, error) {
	notes := []string{}

	home, err := b.resolveHome(ctx, host)
	if err != nil {
		return "", sberrors.WrapAndTrace(err, "resolving home failed, cannot continue on", host.ID())
	}

	err = b.prepareWorkspace(ctx, host, home)
	if err != nil {
		return "", sberrors.WrapAndTrace(err, "workspace setup failed, cannot continue on", host.ID())
	}

	err = b.installCredentials(ctx, host, home)
	if err != nil {
		return "", sberrors.WrapAndTrace(err, "credential install failed, cannot continue on", host.ID())
	}

	loginNote := b.registryLogin(ctx, host)
	if loginNote != "" {
		notes = append(notes, loginNote)
	}

	if b.deployment.DockerPull {
		err = b.pullImage(ctx, host)
		if err != nil {
			return strings.Join(notes, "; "), sberrors.WrapAndTrace(err)
		}
	} else {
		notes = append(notes, "image pull skipped by configuration")
	}

	spec := BuildContainerSpec(b.containerName, b.deployment.DockerImage, home, facts)
	err = b.replaceContainer(ctx, host, spec)
	if err != nil {
		return strings.Join(notes, "; "), sberrors.WrapAndTrace(err)
	}

	err = b.configureContainer(ctx, host)
	if err != nil {
		return strings.Join(notes, "; "), sberrors.WrapAndTrace(err)
	}

	notes = append(notes, fmt.Sprintf("container %s running", spec.Name))
	return strings.Join(notes, "; "), nil
}

// resolveHome asks the remote side for its effective home directory. Under
// become every command runs through sudo, where $HOME expands to root's
// home while the session cwd stays the login user's; resolving once and
// using absolute paths keeps workspace, credentials and the container
// volume in the same place.
func (b Bootstrapper) resolveHome(ctx context.Context, host entity.Host) (string, error) {
	res, err := b.executor.Exec(ctx, host, `printf '%s' "$HOME"`)
	if err != nil {
		return "", sberrors.WrapAndTrace(err)
	}
	if !res.OK() {
		return "", sberrors.WrapAndTrace(fmt.Errorf("resolving home exited %d on %s: %s", res.ExitCode, host.ID(), strings.TrimSpace(res.Stderr)))
	}
	home := strings.TrimSpace(res.Stdout)
	if home == "" {
		return "", sberrors.WrapAndTrace(fmt.Errorf("empty home directory on %s", host.ID()))
	}
	return home, nil
}

func (b Bootstrapper) prepareWorkspace(ctx context.Context, host entity.Host, home string) error {
	command := fmt.Sprintf("mkdir -p %s %s",
		shellescape.Quote(path.Join(home, WorkspaceDir)),
		shellescape.Quote(path.Join(home, ".ssh")),
	)
	err := b.mustSucceed(ctx, host, command)
	if err != nil {
		return sberrors.WrapAndTrace(err)
	}
	return nil
}

// installCredentials grants the host the shared fleet identity so that
// containers can SSH into themselves and their peers during benchmarks.
func (b Bootstrapper) installCredentials(ctx context.Context, host entity.Host, home string) error {
	copies := []struct {
		local  string
		remote string
		mode   os.FileMode
	}{
		{local: b.creds.SSHConfigPath, remote: path.Join(home, ".ssh", "config"), mode: 0o644},
		{local: b.creds.PublicKeyPath, remote: path.Join(home, ".ssh", "authorized_keys"), mode: 0o644},
		{local: b.creds.PrivateKeyPath, remote: path.Join(home, ".ssh", sshconf.PrivateKeyName), mode: 0o400},
	}
	for _, c := range copies {
		err := b.executor.Copy(ctx, host, c.local, c.remote, c.mode)
		if err != nil {
			return sberrors.WrapAndTrace(err)
		}
	}
	return nil
}

// registryLogin is best-effort: missing or wrong registry credentials must
// not fail the host. Returns a note for the fleet report.
func (b Bootstrapper) registryLogin(ctx context.Context, host entity.Host) string {
	if !b.deployment.RegistryAuthConfigured() {
		return ""
	}
	command := fmt.Sprintf(
		"echo %s | docker login --username %s --password-stdin %s",
		shellescape.Quote(b.deployment.DockerPassword),
		shellescape.Quote(b.deployment.DockerUsername),
		shellescape.Quote(b.deployment.DockerRegistry),
	)
	err := b.mustSucceed(ctx, host, command)
	if err != nil {
		return fmt.Sprintf("registry login failed (ignored): %v", err)
	}
	return ""
}

func (b Bootstrapper) pullImage(ctx context.Context, host entity.Host) error {
	command := "docker pull " + shellescape.Quote(b.deployment.DockerImage)
	err := b.mustSucceed(ctx, host, command)
	if err != nil {
		return sberrors.WrapAndTrace(err, "pulling", b.deployment.DockerImage)
	}
	return nil
}

// replaceContainer implements idempotent replace: any prior container with
// the reserved name is removed unconditionally, then exactly one new one is
// started.
func (b Bootstrapper) replaceContainer(ctx context.Context, host entity.Host, spec entity.ContainerSpec) error {
	// not-found is a normal outcome here, only transport errors matter
	_, err := b.executor.Exec(ctx, host, "docker rm --force "+shellescape.Quote(spec.Name))
	if err != nil {
		return sberrors.WrapAndTrace(err)
	}

	err = b.mustSucceed(ctx, host, RunCommand(spec))
	if err != nil {
		return sberrors.WrapAndTrace(err, "starting container", spec.Name)
	}
	return nil
}

// RunCommand renders the docker run invocation for a container spec.
func RunCommand(spec entity.ContainerSpec) string {
	args := []string{"docker", "run", "-d", "--name", shellescape.Quote(spec.Name)}
	args = append(args, spec.RunArgs...)
	args = append(args, spec.DeviceArgs...)
	args = append(args, shellescape.Quote(spec.Image), "sleep", "infinity")
	return strings.Join(args, " ")
}

func (b Bootstrapper) configureContainer(ctx context.Context, host entity.Host) error {
	inContainer := func(command string) string {
		return fmt.Sprintf("docker exec %s sh -c %s", shellescape.Quote(b.containerName), shellescape.Quote(command))
	}

	commands := []string{
		inContainer("chown -R root:root /root"),
		inContainer(fmt.Sprintf(`sed -i "s/^#\?Port .*/Port %d/" /etc/ssh/sshd_config`, b.deployment.SSHPort)),
		inContainer("service ssh restart || service sshd restart"),
	}
	if !featureflag.DisableSmokeTest() {
		commands = append(commands, inContainer("sb help"))
	}

	for _, command := range commands {
		err := b.mustSucceed(ctx, host, command)
		if err != nil {
			return sberrors.WrapAndTrace(err)
		}
	}
	return nil
}

func (b Bootstrapper) mustSucceed(ctx context.Context, host entity.Host, command string) error {
	res, err := b.executor.Exec(ctx, host, command)
	if err != nil {
		return sberrors.WrapAndTrace(err)
	}
	if !res.OK() {
		return sberrors.WrapAndTrace(fmt.Errorf("command exited %d on %s: %s", res.ExitCode, host.ID(), strings.TrimSpace(res.Stderr)))
	}
	return nil
}
