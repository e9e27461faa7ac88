package featureflag

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/superbench/sbfleet/pkg/cmd/version"
)

// Load binds the feature flag keys to their SBFLEET_* environment
// variables. Called once by the root command before any flag is read.
func Load() {
	_ = viper.BindEnv("feature.dev", "SBFLEET_FEATURE_DEV")
	_ = viper.BindEnv("feature.disable_smoke_test", "SBFLEET_DISABLE_SMOKE_TEST")
}

func IsDev() bool {
	if viper.IsSet("feature.dev") {
		return viper.GetBool("feature.dev")
	}
	return strings.HasPrefix(version.Version, "dev") || version.Version == ""
}

func DisableSmokeTest() bool {
	return viper.GetBool("feature.disable_smoke_test")
}
