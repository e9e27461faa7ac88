package store

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/superbench/sbfleet/pkg/entity"
	sberrors "github.com/superbench/sbfleet/pkg/errors"
)

// DeploymentConfig is the recognized configuration surface for one bootstrap
// run, read from fleet.yaml plus SBFLEET_* env overrides.
type DeploymentConfig struct {
	Hosts []entity.Host `mapstructure:"hosts"`

	OutputDir      string `mapstructure:"outputDir"`
	DockerImage    string `mapstructure:"dockerImage"`
	DockerRegistry string `mapstructure:"dockerRegistry"`
	DockerUsername string `mapstructure:"dockerUsername"`
	DockerPassword string `mapstructure:"dockerPassword"`
	DockerPull     bool   `mapstructure:"dockerPull"`

	SSHPort              int `mapstructure:"sshPort"`
	PullConcurrencyLimit int `mapstructure:"pullConcurrencyLimit"`
}

func (c DeploymentConfig) RegistryAuthConfigured() bool {
	return c.DockerUsername != "" && c.DockerPassword != ""
}

// GetDeploymentConfig reads and validates the fleet configuration file.
// Validation failures here are fatal; nothing host-facing has run yet.
func (f FileStore) GetDeploymentConfig(path string) (*DeploymentConfig, error) {
	v := viper.New()
	v.SetFs(f.fs)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("sbfleet")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("outputDir", f.config.GetDefaultOutputDir())
	v.SetDefault("dockerPull", true)
	v.SetDefault("sshPort", 22)
	v.SetDefault("pullConcurrencyLimit", f.config.GetDefaultPullConcurrency())

	err := v.ReadInConfig()
	if err != nil {
		return nil, sberrors.WrapAndTrace(err)
	}

	deployment := DeploymentConfig{} //nolint:exhaustruct // unmarshal target
	err = v.Unmarshal(&deployment)
	if err != nil {
		return nil, sberrors.WrapAndTrace(err)
	}

	err = deployment.Validate()
	if err != nil {
		return nil, sberrors.WrapAndTrace(err)
	}
	return &deployment, nil
}

func (c DeploymentConfig) Validate() error {
	if len(c.Hosts) == 0 {
		return sberrors.NewValidationError("no hosts in inventory")
	}
	if c.DockerImage == "" {
		return sberrors.NewValidationError("dockerImage is required")
	}
	if c.SSHPort <= 0 || c.SSHPort > 65535 {
		return sberrors.NewValidationError("sshPort out of range")
	}
	if c.PullConcurrencyLimit <= 0 {
		return sberrors.NewValidationError("pullConcurrencyLimit must be positive")
	}
	for _, host := range c.Hosts {
		if host.Address == "" {
			return sberrors.NewValidationError("host with empty address in inventory")
		}
	}
	return nil
}
