package config

import (
	"os"
	"strconv"
)

type EnvVarName string // should be caps with underscore

const (
	sentryURL           EnvVarName = "SBFLEET_SENTRY_URL"
	outputDir           EnvVarName = "SBFLEET_OUTPUT_DIR"
	pullConcurrency     EnvVarName = "SBFLEET_PULL_CONCURRENCY"
	debugRemote         EnvVarName = "SBFLEET_DEBUG_REMOTE"
	remoteCallDeadline  EnvVarName = "SBFLEET_REMOTE_CALL_DEADLINE_MINUTES"
	workspaceContainers EnvVarName = "SBFLEET_CONTAINER_NAME"
)

type ConstantsConfig struct{}

func NewConstants() *ConstantsConfig {
	return &ConstantsConfig{}
}

func (c ConstantsConfig) GetSentryURL() string {
	return getEnvOrDefault(sentryURL, "")
}

func (c ConstantsConfig) GetDefaultOutputDir() string {
	return getEnvOrDefault(outputDir, "outputs")
}

func (c ConstantsConfig) GetDefaultPullConcurrency() int {
	return getEnvIntOrDefault(pullConcurrency, 32)
}

func (c ConstantsConfig) GetDebugRemote() bool {
	return getEnvOrDefault(debugRemote, "") != ""
}

// GetRemoteCallDeadlineMinutes bounds a single remote call. Image pulls are
// the slow path so the default is generous.
func (c ConstantsConfig) GetRemoteCallDeadlineMinutes() int {
	return getEnvIntOrDefault(remoteCallDeadline, 30)
}

func (c ConstantsConfig) GetContainerName() string {
	return getEnvOrDefault(workspaceContainers, "sb-workspace")
}

func getEnvOrDefault(envVarName EnvVarName, defaultVal string) string {
	val := os.Getenv(string(envVarName))
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvIntOrDefault(envVarName EnvVarName, defaultVal int) int {
	val := os.Getenv(string(envVarName))
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

var GlobalConfig = NewConstants()
