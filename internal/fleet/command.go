package fleet

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/repoteer/repoteer/internal/execshell"
	"github.com/repoteer/repoteer/internal/manifest"
)

const (
	syncCommandUseConstant            = "sync"
	syncCommandShortDescriptionConst  = "Clone missing repositories, then pull and push every repository"
	pullCommandUseConstant            = "pull"
	pullCommandShortDescriptionConst  = "Pull remote changes into every repository"
	pushCommandUseConstant            = "push"
	pushCommandShortDescriptionConst  = "Push local changes from every repository"
	statusCommandUseConstant          = "status"
	statusCommandShortDescriptionCons = "Report each repository's observed state without mutating it"
	cloneCommandUseConstant           = "clone"
	cloneCommandShortDescriptionConst = "Clone repositories that are not present yet"

	manifestFlagNameConstant            = "manifest"
	manifestFlagDescriptionConstant     = "Path to the repository manifest file"
	concurrencyFlagNameConstant         = "concurrency"
	concurrencyFlagDescriptionConstant  = "Maximum number of repositories processed in parallel"
	colorFlagNameConstant               = "color"
	colorFlagDescriptionConstant        = "Render the live progress view with in-place updates and colors"
	allowDirtyPullFlagNameConstant      = "allow-pull-when-dirty"
	allowDirtyPullFlagDescriptionConst  = "Permit pulling while the working tree has unmerged files"
	forcePushFlagNameConstant           = "force-push"
	forcePushFlagDescriptionConstant    = "Push despite uncommitted changes or diverged branches"
	runHeaderTemplateConstant           = "repoteer %s - running %s across %d repositories\n\n"
	failedOperationsErrorTemplateString = "run completed with %d failed operation(s)"
	eventChannelBufferSizeConstant      = 256
)

// LoggerProvider yields a zap logger for command execution.
type LoggerProvider func() *zap.Logger

// commandOperationSets maps each subcommand to the operations it submits to
// the scheduler.
var commandOperationSets = map[string][]OperationKind{
	syncCommandUseConstant:   {OperationClone, OperationPull, OperationPush},
	pullCommandUseConstant:   {OperationPull},
	pushCommandUseConstant:   {OperationPush},
	statusCommandUseConstant: {OperationStatus},
	cloneCommandUseConstant:  {OperationClone},
}

// CommandBuilder assembles the fleet subcommands (sync, pull, push, status, clone).
type CommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider func() CommandConfiguration
	// RepositoryService overrides the git-backed service, primarily for tests.
	RepositoryService RepositoryService
	// ManifestLoader overrides manifest loading, primarily for tests.
	ManifestLoader func(manifestPath string) ([]manifest.RepoSpec, error)
	Version        string
}

// Build constructs every fleet subcommand.
func (builder *CommandBuilder) Build() ([]*cobra.Command, error) {
	commandDescriptions := []struct {
		use   string
		short string
	}{
		{use: syncCommandUseConstant, short: syncCommandShortDescriptionConst},
		{use: pullCommandUseConstant, short: pullCommandShortDescriptionConst},
		{use: pushCommandUseConstant, short: pushCommandShortDescriptionConst},
		{use: statusCommandUseConstant, short: statusCommandShortDescriptionCons},
		{use: cloneCommandUseConstant, short: cloneCommandShortDescriptionConst},
	}

	builtCommands := make([]*cobra.Command, 0, len(commandDescriptions))
	for _, commandDescription := range commandDescriptions {
		command := &cobra.Command{
			Use:   commandDescription.use,
			Short: commandDescription.short,
			Args:  cobra.NoArgs,
			RunE:  builder.run,
		}
		command.Flags().String(manifestFlagNameConstant, "", manifestFlagDescriptionConstant)
		command.Flags().Int(concurrencyFlagNameConstant, DefaultCommandConfiguration().Concurrency, concurrencyFlagDescriptionConstant)
		command.Flags().Bool(colorFlagNameConstant, DefaultCommandConfiguration().Color, colorFlagDescriptionConstant)
		command.Flags().Bool(allowDirtyPullFlagNameConstant, false, allowDirtyPullFlagDescriptionConst)
		command.Flags().Bool(forcePushFlagNameConstant, false, forcePushFlagDescriptionConstant)
		builtCommands = append(builtCommands, command)
	}

	return builtCommands, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, _ []string) error {
	configuration, configurationError := builder.resolveConfiguration(command)
	if configurationError != nil {
		return configurationError
	}

	requestedOperations, operationsKnown := commandOperationSets[command.Name()]
	if !operationsKnown {
		return fmt.Errorf("unsupported command %q", command.Name())
	}

	repositories, manifestError := builder.loadManifest(configuration.ManifestPath)
	if manifestError != nil {
		return manifestError
	}

	logger := builder.resolveLogger()
	repositoryService, serviceError := builder.resolveRepositoryService(logger, configuration)
	if serviceError != nil {
		return serviceError
	}

	scheduler, schedulerError := NewScheduler(repositoryService, logger)
	if schedulerError != nil {
		return schedulerError
	}

	outputWriter := command.OutOrStdout()
	fmt.Fprintf(outputWriter, runHeaderTemplateConstant, builder.resolveVersion(), command.Name(), len(repositories))

	progressEvents := make(chan ProgressEvent, eventChannelBufferSizeConstant)
	liveReporter := NewLiveReporter(outputWriter, configuration.Color, repositories)
	reporterFinished := make(chan struct{})
	go func() {
		liveReporter.Consume(progressEvents)
		close(reporterFinished)
	}()

	aggregateResult, runError := scheduler.RunAll(command.Context(), RunRequest{
		Repositories: repositories,
		Operations:   requestedOperations,
		Concurrency:  configuration.Concurrency,
		Policy:       configuration.SyncPolicy(),
	}, NewChannelEventSink(progressEvents))

	close(progressEvents)
	<-reporterFinished

	if runError != nil {
		return runError
	}

	RenderSummary(outputWriter, aggregateResult)

	if aggregateResult.HasFailures() {
		return fmt.Errorf(failedOperationsErrorTemplateString, aggregateResult.Summary().Failed)
	}

	return nil
}

func (builder *CommandBuilder) resolveConfiguration(command *cobra.Command) (CommandConfiguration, error) {
	configuration := DefaultCommandConfiguration()
	if builder.ConfigurationProvider != nil {
		configuration = builder.ConfigurationProvider()
	}
	configuration = configuration.Sanitize()

	commandFlags := command.Flags()
	if commandFlags.Changed(manifestFlagNameConstant) {
		manifestFlagValue, flagError := commandFlags.GetString(manifestFlagNameConstant)
		if flagError != nil {
			return CommandConfiguration{}, flagError
		}
		configuration.ManifestPath = manifestFlagValue
	}
	if commandFlags.Changed(concurrencyFlagNameConstant) {
		concurrencyFlagValue, flagError := commandFlags.GetInt(concurrencyFlagNameConstant)
		if flagError != nil {
			return CommandConfiguration{}, flagError
		}
		configuration.Concurrency = concurrencyFlagValue
	}
	if commandFlags.Changed(colorFlagNameConstant) {
		colorFlagValue, flagError := commandFlags.GetBool(colorFlagNameConstant)
		if flagError != nil {
			return CommandConfiguration{}, flagError
		}
		configuration.Color = colorFlagValue
	}
	if commandFlags.Changed(allowDirtyPullFlagNameConstant) {
		allowDirtyPullFlagValue, flagError := commandFlags.GetBool(allowDirtyPullFlagNameConstant)
		if flagError != nil {
			return CommandConfiguration{}, flagError
		}
		configuration.AllowUnmergedPull = allowDirtyPullFlagValue
	}
	if commandFlags.Changed(forcePushFlagNameConstant) {
		forcePushFlagValue, flagError := commandFlags.GetBool(forcePushFlagNameConstant)
		if flagError != nil {
			return CommandConfiguration{}, flagError
		}
		configuration.ForcePush = forcePushFlagValue
	}

	return configuration.Sanitize(), nil
}

func (builder *CommandBuilder) loadManifest(manifestPath string) ([]manifest.RepoSpec, error) {
	if builder.ManifestLoader != nil {
		return builder.ManifestLoader(manifestPath)
	}
	return manifest.NewLoader().Load(manifestPath)
}

func (builder *CommandBuilder) resolveRepositoryService(logger *zap.Logger, configuration CommandConfiguration) (RepositoryService, error) {
	if builder.RepositoryService != nil {
		return builder.RepositoryService, nil
	}

	shellExecutor, executorError := execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner(), nil)
	if executorError != nil {
		return nil, executorError
	}

	return NewGitService(shellExecutor, nil, time.Duration(configuration.OperationTimeoutSeconds)*time.Second)
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}
	logger := builder.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func (builder *CommandBuilder) resolveVersion() string {
	trimmedVersion := strings.TrimSpace(builder.Version)
	if len(trimmedVersion) == 0 {
		return "dev"
	}
	return trimmedVersion
}
