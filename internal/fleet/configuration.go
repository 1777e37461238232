package fleet

const (
	defaultConcurrencyConstant             = 4
	defaultOperationTimeoutSecondsConstant = 300
	manifestPathConfigKeySuffixConstant    = ".manifest_path"
	concurrencyConfigKeySuffixConstant     = ".concurrency"
	colorConfigKeySuffixConstant           = ".color"
	allowUnmergedPullConfigKeySuffixConst  = ".allow_unmerged_pull"
	allowDivergedPullConfigKeySuffixConst  = ".allow_diverged_pull"
	forcePushConfigKeySuffixConstant       = ".force_push"
	operationTimeoutConfigKeySuffixConst   = ".operation_timeout_seconds"
)

// CommandConfiguration captures the persisted configuration for the fleet commands.
type CommandConfiguration struct {
	ManifestPath            string `mapstructure:"manifest_path"`
	Concurrency             int    `mapstructure:"concurrency"`
	Color                   bool   `mapstructure:"color"`
	AllowUnmergedPull       bool   `mapstructure:"allow_unmerged_pull"`
	AllowDivergedPull       bool   `mapstructure:"allow_diverged_pull"`
	ForcePush               bool   `mapstructure:"force_push"`
	OperationTimeoutSeconds int    `mapstructure:"operation_timeout_seconds"`
}

// DefaultCommandConfiguration returns the configuration used when nothing is persisted.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		Concurrency:             defaultConcurrencyConstant,
		Color:                   true,
		OperationTimeoutSeconds: defaultOperationTimeoutSecondsConstant,
	}
}

// Sanitize normalizes configuration values into their supported ranges.
func (configuration CommandConfiguration) Sanitize() CommandConfiguration {
	sanitizedConfiguration := configuration
	if sanitizedConfiguration.Concurrency < 1 {
		sanitizedConfiguration.Concurrency = defaultConcurrencyConstant
	}
	if sanitizedConfiguration.OperationTimeoutSeconds < 1 {
		sanitizedConfiguration.OperationTimeoutSeconds = defaultOperationTimeoutSecondsConstant
	}
	return sanitizedConfiguration
}

// SyncPolicy derives the policy shared by every evaluation of this run.
func (configuration CommandConfiguration) SyncPolicy() SyncPolicy {
	return SyncPolicy{
		AllowUnmergedPull: configuration.AllowUnmergedPull,
		AllowDivergedPull: configuration.AllowDivergedPull,
		ForcePush:         configuration.ForcePush,
	}
}

// DefaultConfigurationValues exposes viper defaults for the fleet configuration subtree.
func DefaultConfigurationValues(configurationKeyPrefix string) map[string]any {
	defaultConfiguration := DefaultCommandConfiguration()
	return map[string]any{
		configurationKeyPrefix + manifestPathConfigKeySuffixConstant:   defaultConfiguration.ManifestPath,
		configurationKeyPrefix + concurrencyConfigKeySuffixConstant:    defaultConfiguration.Concurrency,
		configurationKeyPrefix + colorConfigKeySuffixConstant:          defaultConfiguration.Color,
		configurationKeyPrefix + allowUnmergedPullConfigKeySuffixConst: defaultConfiguration.AllowUnmergedPull,
		configurationKeyPrefix + allowDivergedPullConfigKeySuffixConst: defaultConfiguration.AllowDivergedPull,
		configurationKeyPrefix + forcePushConfigKeySuffixConstant:      defaultConfiguration.ForcePush,
		configurationKeyPrefix + operationTimeoutConfigKeySuffixConst:  defaultConfiguration.OperationTimeoutSeconds,
	}
}
