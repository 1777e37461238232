package execshell

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	gitToolNameConstant                       = "git"
	loggerMissingMessageConstant              = "logger must be provided"
	commandRunnerMissingMessageConstant       = "command runner must be provided"
	commandFailedTemplateConstant             = "%s exited with code %d%s"
	commandTimedOutTemplateConstant           = "%s timed out after %s"
	commandExecutionFailedTemplateConstant    = "%s could not be executed: %v"
	standardErrorSuffixTemplateConstant       = ": %s"
	commandLabelSeparatorConstant             = " "
	gitTerminalPromptEnvironmentNameConstant  = "GIT_TERMINAL_PROMPT"
	gitTerminalPromptEnvironmentValueConstant = "0"
)

// ErrLoggerNotConfigured indicates the executor was constructed without a logger.
var ErrLoggerNotConfigured = errors.New(loggerMissingMessageConstant)

// ErrCommandRunnerNotConfigured indicates the executor was constructed without a runner.
var ErrCommandRunnerNotConfigured = errors.New(commandRunnerMissingMessageConstant)

// ShellCommandName identifies the executable invoked by a shell command.
type ShellCommandName string

// GitCommandName is the only external tool repoteer invokes.
const GitCommandName ShellCommandName = ShellCommandName(gitToolNameConstant)

// CommandDetails captures the arguments and environment of one invocation.
type CommandDetails struct {
	Arguments            []string
	WorkingDirectory     string
	EnvironmentVariables map[string]string
	Timeout              time.Duration
}

// ShellCommand pairs an executable name with its invocation details.
type ShellCommand struct {
	Name    ShellCommandName
	Details CommandDetails
}

// Label renders the command as a single human-readable string.
func (command ShellCommand) Label() string {
	commandParts := append([]string{string(command.Name)}, command.Details.Arguments...)
	return strings.Join(commandParts, commandLabelSeparatorConstant)
}

// ExecutionResult carries the captured output and exit code of a finished command.
type ExecutionResult struct {
	StandardOutput string
	StandardError  string
	ExitCode       int
}

// CommandRunner executes shell commands and reports their captured results.
type CommandRunner interface {
	Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error)
}

// CommandFailedError reports a command that completed with a non-zero exit code.
type CommandFailedError struct {
	Command ShellCommand
	Result  ExecutionResult
}

// Error implements the error interface for CommandFailedError.
func (failure CommandFailedError) Error() string {
	standardErrorSuffix := ""
	trimmedStandardError := strings.TrimSpace(failure.Result.StandardError)
	if len(trimmedStandardError) > 0 {
		standardErrorSuffix = fmt.Sprintf(standardErrorSuffixTemplateConstant, trimmedStandardError)
	}
	return fmt.Sprintf(commandFailedTemplateConstant, failure.Command.Label(), failure.Result.ExitCode, standardErrorSuffix)
}

// CommandTimedOutError reports a command that exceeded its execution deadline.
type CommandTimedOutError struct {
	Command ShellCommand
	Timeout time.Duration
}

// Error implements the error interface for CommandTimedOutError.
func (failure CommandTimedOutError) Error() string {
	return fmt.Sprintf(commandTimedOutTemplateConstant, failure.Command.Label(), failure.Timeout)
}

// CommandExecutionError reports a command that could not be started or observed.
type CommandExecutionError struct {
	Command ShellCommand
	Cause   error
}

// Error implements the error interface for CommandExecutionError.
func (failure CommandExecutionError) Error() string {
	return fmt.Sprintf(commandExecutionFailedTemplateConstant, failure.Command.Label(), failure.Cause)
}

// Unwrap exposes the underlying cause for errors.Is and errors.As.
func (failure CommandExecutionError) Unwrap() error {
	return failure.Cause
}

// ShellExecutor runs git commands through a CommandRunner with lifecycle
// notifications and timeouts.
type ShellExecutor struct {
	runner   CommandRunner
	observer CommandEventObserver
}

// NewShellExecutor constructs a ShellExecutor after validating its
// dependencies. When no observer is supplied, lifecycle events are logged at
// debug verbosity through the provided logger.
func NewShellExecutor(logger *zap.Logger, runner CommandRunner, observer CommandEventObserver) (*ShellExecutor, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if runner == nil {
		return nil, ErrCommandRunnerNotConfigured
	}
	if observer == nil {
		observer = NewLoggingCommandObserver(logger)
	}
	return &ShellExecutor{runner: runner, observer: observer}, nil
}

// ExecuteGit runs the git tool with the supplied details and returns the captured result.
func (executor *ShellExecutor) ExecuteGit(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	command := ShellCommand{Name: GitCommandName, Details: details}
	if command.Details.EnvironmentVariables == nil {
		command.Details.EnvironmentVariables = map[string]string{}
	}
	if _, alreadySet := command.Details.EnvironmentVariables[gitTerminalPromptEnvironmentNameConstant]; !alreadySet {
		command.Details.EnvironmentVariables[gitTerminalPromptEnvironmentNameConstant] = gitTerminalPromptEnvironmentValueConstant
	}
	return executor.execute(executionContext, command)
}

func (executor *ShellExecutor) execute(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	boundedContext := executionContext
	if command.Details.Timeout > 0 {
		var cancelExecution context.CancelFunc
		boundedContext, cancelExecution = context.WithTimeout(executionContext, command.Details.Timeout)
		defer cancelExecution()
	}

	executor.observer.CommandStarted(command)

	executionResult, runError := executor.runner.Run(boundedContext, command)
	if runError != nil {
		if command.Details.Timeout > 0 && errors.Is(boundedContext.Err(), context.DeadlineExceeded) {
			timeoutError := CommandTimedOutError{Command: command, Timeout: command.Details.Timeout}
			executor.observer.CommandExecutionFailed(command, timeoutError)
			return ExecutionResult{}, timeoutError
		}
		executionError := CommandExecutionError{Command: command, Cause: runError}
		executor.observer.CommandExecutionFailed(command, executionError)
		return ExecutionResult{}, executionError
	}

	executor.observer.CommandCompleted(command, executionResult)

	if executionResult.ExitCode != 0 {
		return executionResult, CommandFailedError{Command: command, Result: executionResult}
	}

	return executionResult, nil
}
