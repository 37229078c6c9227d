package cmdutil

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
)

// ExecOptions configures command execution.
type ExecOptions struct {
	// Dir is the working directory for the command.
	Dir string

	// Timeout is the maximum execution time.
	// If zero, no timeout is applied. Synchronization and build-like
	// commands deliberately run without one.
	Timeout time.Duration

	// Env contains environment variables for the command, each in the
	// form "KEY=value".
	Env []string

	// Sink receives the combined output after the command finishes.
	// Optional.
	Sink io.Writer
}

// Result contains the result of a command execution.
type Result struct {
	// Output is the combined stdout and stderr.
	Output []byte

	// ExitCode is the exit code of the command.
	ExitCode int

	// Duration is how long the command took to execute.
	Duration time.Duration
}

// OK reports whether the command exited cleanly.
func (r *Result) OK() bool {
	return r.ExitCode == 0
}

// Run executes a command given as an argument vector. The returned
// Result is non-nil whenever the command was started, even on failure.
func Run(ctx context.Context, opts ExecOptions, argv []string) (*Result, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env

	start := time.Now()

	var result Result
	var err error
	result.Output, err = cmd.CombinedOutput()
	result.Duration = time.Since(start)

	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if opts.Sink != nil && len(result.Output) > 0 {
		_, _ = opts.Sink.Write(result.Output)
	}

	if err != nil {
		return &result, fmt.Errorf("command failed: %w", err)
	}

	return &result, nil
}

// FormatCommand formats an argument vector into a readable string for
// logging and error messages.
// Example: ["git", "commit", "-m", "my message"] -> "git commit -m 'my message'"
func FormatCommand(argv []string) string {
	if len(argv) == 0 {
		return "<empty command>"
	}

	quoted := make([]string, len(argv))
	for i, part := range argv {
		if strings.ContainsAny(part, " \t\n\"'") {
			quoted[i] = shellquote.Join(part)
		} else {
			quoted[i] = part
		}
	}

	return strings.Join(quoted, " ")
}
