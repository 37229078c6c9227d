// Package git provides the repository operations the deployment
// pipeline needs, by shelling out to the git command.
package git

import (
	"context"
	"fmt"
	"strings"

	"shipway/pkg/cmdutil"
)

// Client is the repository surface consumed by the deployment
// pipeline.
type Client interface {
	// Head returns the currently checked-out branch and its revision.
	Head(ctx context.Context) (branch, revision string, err error)

	// ChangeReport returns the rename-aware name-status report
	// between two revisions.
	ChangeReport(ctx context.Context, from, to string) (string, error)

	// Checkout switches the working copy to the given branch.
	Checkout(ctx context.Context, branch string) error

	// Merge merges the given branch into the current one.
	Merge(ctx context.Context, branch string) error

	// Push pushes the given branch to the configured remote.
	Push(ctx context.Context, remote, branch string) error
}

// ShellClient implements Client with the git command line tool.
type ShellClient struct {
	dir string
}

// NewShellClient creates a client operating on the repository at dir.
func NewShellClient(dir string) *ShellClient {
	return &ShellClient{dir: dir}
}

func (c *ShellClient) run(ctx context.Context, args ...string) (string, error) {
	argv := append([]string{"git", "-C", c.dir}, args...)
	result, err := cmdutil.Run(ctx, cmdutil.ExecOptions{Dir: c.dir}, argv)
	if err != nil {
		return "", fmt.Errorf("git %s failed: %w: %s", args[0], err, strings.TrimSpace(string(result.Output)))
	}
	return string(result.Output), nil
}

// Head returns the checked-out branch name and the revision it points
// at.
func (c *ShellClient) Head(ctx context.Context) (string, string, error) {
	branch, err := c.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", "", err
	}

	revision, err := c.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", "", err
	}

	return strings.TrimSpace(branch), strings.TrimSpace(revision), nil
}

// ChangeReport runs a name-status diff with rename and copy detection
// between the two revisions. The output feeds the gitdiff parser.
func (c *ShellClient) ChangeReport(ctx context.Context, from, to string) (string, error) {
	return c.run(ctx, "diff", "--name-status", "--find-renames", "--find-copies", from, to)
}

// Checkout switches to the given branch, refusing to guess when the
// working copy is dirty.
func (c *ShellClient) Checkout(ctx context.Context, branch string) error {
	_, err := c.run(ctx, "checkout", branch)
	return err
}

// Merge merges branch into the currently checked-out branch.
func (c *ShellClient) Merge(ctx context.Context, branch string) error {
	_, err := c.run(ctx, "merge", branch)
	return err
}

// Push pushes branch to the given remote.
func (c *ShellClient) Push(ctx context.Context, remote, branch string) error {
	_, err := c.run(ctx, "push", remote, branch)
	return err
}
