package deployment

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/kballard/go-shellquote"

	"shipway/pkg/cmdutil"
)

// Executor runs pipeline commands against their target and captures
// output for tools whose report the pipeline parses.
type Executor interface {
	// RunLocal runs a shell command on the deploying machine.
	RunLocal(ctx context.Context, command string) error

	// RunRemote runs a shell command on the environment's host, in
	// the environment's remote path.
	RunRemote(ctx context.Context, env *Environment, command string) error

	// Capture runs an argument vector locally and returns its output.
	Capture(ctx context.Context, argv []string) ([]byte, error)
}

// ShellExecutor implements Executor with sh for local commands and ssh
// for remote ones. Command output is forwarded to Sink.
type ShellExecutor struct {
	Dir    string
	Sink   io.Writer
	Logger *slog.Logger
}

// NewShellExecutor creates an executor working from the project
// directory, forwarding command output to sink.
func NewShellExecutor(dir string, sink io.Writer, logger *slog.Logger) *ShellExecutor {
	return &ShellExecutor{Dir: dir, Sink: sink, Logger: logger}
}

// RunLocal runs command through sh in the project directory.
func (e *ShellExecutor) RunLocal(ctx context.Context, command string) error {
	e.Logger.Info("running local command", "command", command)
	return e.run(ctx, command, []string{"sh", "-c", command})
}

// RunRemote runs command on the environment's host over ssh, after
// changing into the remote path.
func (e *ShellExecutor) RunRemote(ctx context.Context, env *Environment, command string) error {
	remote := command
	if env.RemotePath != "" {
		remote = fmt.Sprintf("cd %s && %s", shellquote.Join(env.RemotePath), command)
	}

	argv := []string{"ssh", "-p", strconv.Itoa(env.SSHPort), env.SSHHost, remote}
	e.Logger.Info("running remote command", "host", env.SSHHost, "command", command)
	return e.run(ctx, command, argv)
}

// Capture runs argv in the project directory and returns the combined
// output without forwarding it to the sink.
func (e *ShellExecutor) Capture(ctx context.Context, argv []string) ([]byte, error) {
	result, err := cmdutil.Run(ctx, cmdutil.ExecOptions{Dir: e.Dir}, argv)
	if err != nil {
		if result != nil && !result.OK() {
			return result.Output, &CommandError{
				Command:  cmdutil.FormatCommand(argv),
				ExitCode: result.ExitCode,
			}
		}
		return nil, err
	}
	return result.Output, nil
}

func (e *ShellExecutor) run(ctx context.Context, display string, argv []string) error {
	result, err := cmdutil.Run(ctx, cmdutil.ExecOptions{Dir: e.Dir, Sink: e.Sink}, argv)
	if err != nil {
		if result != nil && !result.OK() {
			return &CommandError{Command: display, ExitCode: result.ExitCode}
		}
		return fmt.Errorf("%s: %w", display, err)
	}
	return nil
}
