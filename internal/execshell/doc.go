// Package execshell provides structured helpers for invoking the external git
// tool.
//
// It wraps os/exec with logging and per-invocation timeouts via ShellExecutor,
// exposes OSCommandRunner for default process execution, and defines the
// abstractions repoteer uses to run git against many repositories in a
// testable manner.
package execshell
