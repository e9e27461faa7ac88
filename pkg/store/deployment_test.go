package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superbench/sbfleet/pkg/entity"
)

const validFleetYAML = `hosts:
  - address: 10.0.0.1
    user: bench
  - address: 10.0.0.2
    user: bench
    port: 2222
    become: true
dockerImage: superbench/superbench:latest
`

func Test_GetDeploymentConfigDefaults(t *testing.T) {
	fileStore := makeTestStore()
	require.NoError(t, fileStore.WriteString("/fleet.yaml", validFleetYAML))

	deployment, err := fileStore.GetDeploymentConfig("/fleet.yaml")
	require.NoError(t, err)

	assert.Len(t, deployment.Hosts, 2)
	assert.Equal(t, "10.0.0.2", deployment.Hosts[1].Address)
	assert.True(t, deployment.Hosts[1].Become)
	assert.Equal(t, 2222, deployment.Hosts[1].Port)

	assert.True(t, deployment.DockerPull)
	assert.Equal(t, 22, deployment.SSHPort)
	assert.Equal(t, 32, deployment.PullConcurrencyLimit)
	assert.Equal(t, "outputs", deployment.OutputDir)
	assert.False(t, deployment.RegistryAuthConfigured())
}

func Test_GetDeploymentConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing image",
			yaml:    "hosts:\n  - address: 10.0.0.1\n",
			wantErr: "dockerImage is required",
		},
		{
			name:    "empty inventory",
			yaml:    "dockerImage: img\n",
			wantErr: "no hosts in inventory",
		},
		{
			name:    "host without address",
			yaml:    "hosts:\n  - user: bench\ndockerImage: img\n",
			wantErr: "empty address",
		},
		{
			name:    "bad ssh port",
			yaml:    "hosts:\n  - address: 10.0.0.1\ndockerImage: img\nsshPort: 99999\n",
			wantErr: "sshPort out of range",
		},
		{
			name:    "bad pull concurrency",
			yaml:    "hosts:\n  - address: 10.0.0.1\ndockerImage: img\npullConcurrencyLimit: -3\n",
			wantErr: "pullConcurrencyLimit must be positive",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fileStore := makeTestStore()
			require.NoError(t, fileStore.WriteString("/fleet.yaml", tt.yaml))

			_, err := fileStore.GetDeploymentConfig("/fleet.yaml")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func Test_RegistryAuthConfigured(t *testing.T) {
	deployment := DeploymentConfig{DockerUsername: "u", DockerPassword: "p"}
	assert.True(t, deployment.RegistryAuthConfigured())
	assert.False(t, DeploymentConfig{DockerUsername: "u"}.RegistryAuthConfigured())
}

func Test_HostDefaults(t *testing.T) {
	host := entity.Host{Address: "10.0.0.1"}
	assert.Equal(t, "root", host.SSHUser())
	assert.Equal(t, 22, host.SSHPort())
	assert.Equal(t, "10.0.0.1", host.ID())

	withPort := entity.Host{Address: "10.0.0.1", Port: 2222}
	assert.Equal(t, "10.0.0.1:2222", withPort.ID())
}
