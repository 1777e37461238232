package execshell

import "go.uber.org/zap"

const (
	commandStartedMessageConstant         = "git command started"
	commandCompletedMessageConstant       = "git command completed"
	commandExecutionFailedMessageConstant = "git command execution failed"
	eventFieldCommandConstant             = "command"
	eventFieldWorkingDirectoryConstant    = "working_directory"
	eventFieldExitCodeConstant            = "exit_code"
)

// CommandEventObserver receives lifecycle notifications for every git
// invocation. The executor guarantees CommandStarted is followed by exactly
// one of CommandCompleted or CommandExecutionFailed.
type CommandEventObserver interface {
	// CommandStarted notifies observers that command execution is beginning.
	CommandStarted(command ShellCommand)
	// CommandCompleted notifies observers that command execution finished and supplies the result.
	CommandCompleted(command ShellCommand, result ExecutionResult)
	// CommandExecutionFailed reports failures that prevented an execution result.
	CommandExecutionFailed(command ShellCommand, failure error)
}

// LoggingCommandObserver emits one debug log entry per lifecycle event. It is
// the observer installed when no other observer is supplied, so every git
// invocation leaves a trace at debug verbosity.
type LoggingCommandObserver struct {
	logger *zap.Logger
}

// NewLoggingCommandObserver constructs an observer logging to the supplied logger.
func NewLoggingCommandObserver(logger *zap.Logger) *LoggingCommandObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingCommandObserver{logger: logger}
}

// CommandStarted implements CommandEventObserver.
func (observer *LoggingCommandObserver) CommandStarted(command ShellCommand) {
	observer.logger.Debug(
		commandStartedMessageConstant,
		zap.String(eventFieldCommandConstant, command.Label()),
		zap.String(eventFieldWorkingDirectoryConstant, command.Details.WorkingDirectory),
	)
}

// CommandCompleted implements CommandEventObserver.
func (observer *LoggingCommandObserver) CommandCompleted(command ShellCommand, result ExecutionResult) {
	observer.logger.Debug(
		commandCompletedMessageConstant,
		zap.String(eventFieldCommandConstant, command.Label()),
		zap.Int(eventFieldExitCodeConstant, result.ExitCode),
	)
}

// CommandExecutionFailed implements CommandEventObserver.
func (observer *LoggingCommandObserver) CommandExecutionFailed(command ShellCommand, failure error) {
	observer.logger.Debug(
		commandExecutionFailedMessageConstant,
		zap.String(eventFieldCommandConstant, command.Label()),
		zap.Error(failure),
	)
}
