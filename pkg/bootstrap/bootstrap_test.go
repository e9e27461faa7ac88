package bootstrap

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superbench/sbfleet/pkg/entity"
	"github.com/superbench/sbfleet/pkg/remote"
	"github.com/superbench/sbfleet/pkg/store"
)

// scriptedExecutor records every remote call and fails commands matching
// the configured substrings.
type scriptedExecutor struct {
	commands     []string
	copies       []string
	failCommands map[string]int // substring -> exit code
	transportErr error
	home         string // answered to the home probe, default /home/bench
}

var _ remote.Executor = (*scriptedExecutor)(nil)

func (s *scriptedExecutor) Exec(_ context.Context, _ entity.Host, command string) (remote.Result, error) {
	if s.transportErr != nil {
		return remote.Result{}, s.transportErr
	}
	s.commands = append(s.commands, command)
	for substring, code := range s.failCommands {
		if strings.Contains(command, substring) {
			return remote.Result{ExitCode: code, Stderr: "scripted failure"}, nil
		}
	}
	if strings.Contains(command, `"$HOME"`) {
		home := s.home
		if home == "" {
			home = "/home/bench"
		}
		return remote.Result{Stdout: home + "\n"}, nil
	}
	return remote.Result{}, nil
}

func (s *scriptedExecutor) Copy(_ context.Context, _ entity.Host, localPath, remotePath string, _ os.FileMode) error {
	if s.transportErr != nil {
		return s.transportErr
	}
	s.copies = append(s.copies, localPath+" -> "+remotePath)
	return nil
}

func testDeployment() *store.DeploymentConfig {
	return &store.DeploymentConfig{
		DockerImage: "superbench/superbench:latest",
		DockerPull:  true,
		SSHPort:     2222,
	}
}

func testCreds() entity.Credentials {
	return entity.Credentials{
		PrivateKeyPath: "/out/id_ed25519",
		PublicKeyPath:  "/out/id_ed25519.pub",
		SSHConfigPath:  "/out/config",
	}
}

func testHost() entity.Host {
	return entity.Host{Address: "10.0.0.1", User: "bench"}
}

func Test_DeployHappyPath(t *testing.T) {
	executor := &scriptedExecutor{failCommands: map[string]int{}}
	b := NewBootstrapper(executor, testDeployment(), testCreds(), "sb-workspace")

	output, err := b.Deploy(context.Background(), testHost(), entity.AcceleratorFacts{NvidiaPresent: true})
	require.NoError(t, err)
	assert.Contains(t, output, "container sb-workspace running")

	joined := strings.Join(executor.commands, "\n")
	assert.Contains(t, joined, "mkdir -p")
	assert.Contains(t, joined, "docker pull superbench/superbench:latest")
	assert.Contains(t, joined, "docker rm --force sb-workspace")
	assert.Contains(t, joined, "--gpus all")
	assert.Contains(t, joined, "Port 2222")
	assert.Contains(t, joined, "sb help")

	require.Len(t, executor.copies, 3)
	assert.Contains(t, executor.copies[1], "/home/bench/.ssh/authorized_keys")
}

func Test_DeployRerunReplacesContainer(t *testing.T) {
	executor := &scriptedExecutor{failCommands: map[string]int{}}
	b := NewBootstrapper(executor, testDeployment(), testCreds(), "sb-workspace")

	_, err := b.Deploy(context.Background(), testHost(), entity.AcceleratorFacts{})
	require.NoError(t, err)

	// second run against the already bootstrapped host must succeed and
	// replace the container, credentials included
	output, err := b.Deploy(context.Background(), testHost(), entity.AcceleratorFacts{})
	require.NoError(t, err)
	assert.Contains(t, output, "container sb-workspace running")

	joined := strings.Join(executor.commands, "\n")
	assert.Equal(t, 2, strings.Count(joined, "docker rm --force sb-workspace"))
	assert.Equal(t, 2, strings.Count(joined, "docker run"))
	assert.Len(t, executor.copies, 6)
}

func Test_DeployBecomeUsesResolvedHome(t *testing.T) {
	// under become the remote side reports root's home, not the login
	// user's; every path must follow it
	executor := &scriptedExecutor{failCommands: map[string]int{}, home: "/root"}
	b := NewBootstrapper(executor, testDeployment(), testCreds(), "sb-workspace")

	host := entity.Host{Address: "10.0.0.1", User: "bench", Become: true}
	_, err := b.Deploy(context.Background(), host, entity.AcceleratorFacts{})
	require.NoError(t, err)

	joined := strings.Join(executor.commands, "\n")
	assert.Contains(t, joined, "mkdir -p /root/sb-workspace /root/.ssh")
	assert.Contains(t, joined, "-v /root/sb-workspace:/root/sb-workspace")
	for _, copied := range executor.copies {
		assert.Contains(t, copied, " -> /root/.ssh/")
	}
}

func Test_DeployRemovesBeforeCreate(t *testing.T) {
	executor := &scriptedExecutor{failCommands: map[string]int{}}
	b := NewBootstrapper(executor, testDeployment(), testCreds(), "sb-workspace")

	_, err := b.Deploy(context.Background(), testHost(), entity.AcceleratorFacts{})
	require.NoError(t, err)

	removeIdx, runIdx := -1, -1
	for i, command := range executor.commands {
		if strings.Contains(command, "docker rm --force") {
			removeIdx = i
		}
		if strings.Contains(command, "docker run") {
			runIdx = i
		}
	}
	require.NotEqual(t, -1, removeIdx)
	require.NotEqual(t, -1, runIdx)
	assert.Less(t, removeIdx, runIdx, "old container must be removed before the new one starts")
}

func Test_DeployIgnoresRemoveNotFound(t *testing.T) {
	executor := &scriptedExecutor{failCommands: map[string]int{"docker rm": 1}}
	b := NewBootstrapper(executor, testDeployment(), testCreds(), "sb-workspace")

	_, err := b.Deploy(context.Background(), testHost(), entity.AcceleratorFacts{})
	assert.NoError(t, err)
}

func Test_DeployRegistryLoginFailureIsSwallowed(t *testing.T) {
	deployment := testDeployment()
	deployment.DockerRegistry = "registry.example.com"
	deployment.DockerUsername = "bench"
	deployment.DockerPassword = "hunter2"

	executor := &scriptedExecutor{failCommands: map[string]int{"docker login": 1}}
	b := NewBootstrapper(executor, deployment, testCreds(), "sb-workspace")

	output, err := b.Deploy(context.Background(), testHost(), entity.AcceleratorFacts{})
	require.NoError(t, err)
	assert.Contains(t, output, "registry login failed (ignored)")
}

func Test_DeployNoRegistryAuthSkipsLogin(t *testing.T) {
	executor := &scriptedExecutor{failCommands: map[string]int{}}
	b := NewBootstrapper(executor, testDeployment(), testCreds(), "sb-workspace")

	_, err := b.Deploy(context.Background(), testHost(), entity.AcceleratorFacts{})
	require.NoError(t, err)
	assert.NotContains(t, strings.Join(executor.commands, "\n"), "docker login")
}

func Test_DeployPullFailureFailsHost(t *testing.T) {
	executor := &scriptedExecutor{failCommands: map[string]int{"docker pull": 1}}
	b := NewBootstrapper(executor, testDeployment(), testCreds(), "sb-workspace")

	_, err := b.Deploy(context.Background(), testHost(), entity.AcceleratorFacts{})
	assert.Error(t, err)
	assert.NotContains(t, strings.Join(executor.commands, "\n"), "docker run")
}

func Test_DeployPullSkippable(t *testing.T) {
	deployment := testDeployment()
	deployment.DockerPull = false

	executor := &scriptedExecutor{failCommands: map[string]int{}}
	b := NewBootstrapper(executor, deployment, testCreds(), "sb-workspace")

	output, err := b.Deploy(context.Background(), testHost(), entity.AcceleratorFacts{})
	require.NoError(t, err)
	assert.Contains(t, output, "image pull skipped")
	assert.NotContains(t, strings.Join(executor.commands, "\n"), "docker pull")
}

func Test_DeployUnreachableHostFailsFast(t *testing.T) {
	executor := &scriptedExecutor{transportErr: fmt.Errorf("dial tcp: i/o timeout")}
	b := NewBootstrapper(executor, testDeployment(), testCreds(), "sb-workspace")

	_, err := b.Deploy(context.Background(), testHost(), entity.AcceleratorFacts{})
	assert.Error(t, err)
	assert.Empty(t, executor.copies)
}
