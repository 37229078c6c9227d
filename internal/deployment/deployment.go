// Package deployment contains the deployment engine: environment
// resolution, conditional command execution and the stage pipeline
// that ties diffing, synchronization and merge-back together.
package deployment

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/kballard/go-shellquote"

	"shipway/internal/git"
	"shipway/internal/gitdiff"
	"shipway/internal/project"
	"shipway/internal/rsync"
	"shipway/internal/security"
)

// Action selects which stage sequence a deployment runs.
type Action string

const (
	// ActionSetup runs the environment's setup commands only.
	ActionSetup Action = "setup"
	// ActionDryRun runs the synchronization step in dry-run mode only.
	ActionDryRun Action = "dry-run"
	// ActionGo performs the full deployment.
	ActionGo Action = "go"
)

// ParseAction validates an action argument before any stage runs.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionSetup, ActionDryRun, ActionGo:
		return Action(s), nil
	}
	return "", fmt.Errorf("invalid action %q (expected setup, dry-run or go)", s)
}

// Recognized deployment options.
const (
	OptionForce      = "force"
	OptionRunWebpack = "run-webpack"
)

// Tracker is the persisted last-deployed-revision store consumed by
// the pipeline. It is read once to establish the diff baseline and
// written at most once, on successful production deployment.
type Tracker interface {
	LastRevision(ctx context.Context, project string) (revision string, ok bool, err error)
	SetLastRevision(ctx context.Context, project, revision string) error
}

// Notifier is told about successful production deployments.
// Notification failures do not fail the deployment.
type Notifier interface {
	ProductionDeployed(ctx context.Context, project, environment, revision, branch string) error
}

// Deps are the collaborators a Deployment needs.
type Deps struct {
	Git      git.Client
	Tracker  Tracker
	Executor Executor
	Notifier Notifier // optional
	Logger   *slog.Logger
}

// Deployment is one deployment attempt of a project to an environment.
type Deployment struct {
	Project *project.Project
	Env     *Environment
	Options map[string]bool

	// Resolved lazily from the working copy.
	Branch       string
	FromRevision string
	ToRevision   string

	deps   Deps
	diff   *gitdiff.Diff
	state  *Context
	runner *Runner
}

// New resolves the target environment and prepares a deployment. No
// external command runs until Run is called.
func New(p *project.Project, envName string, options map[string]bool, deps Deps) (*Deployment, error) {
	env, err := ResolveEnvironment(p, envName)
	if err != nil {
		return nil, err
	}

	if options == nil {
		options = make(map[string]bool)
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	d := &Deployment{
		Project: p,
		Env:     env,
		Options: options,
		deps:    deps,
	}
	d.state = &Context{deployment: d, ran: make(map[string]struct{})}
	d.runner = &Runner{Executor: deps.Executor, Logger: deps.Logger}

	return d, nil
}

// Run executes the stage sequence for the requested action. The first
// failing stage aborts the rest; effects already applied stay applied.
func (d *Deployment) Run(ctx context.Context, action Action) error {
	if err := d.resolveHead(ctx); err != nil {
		return err
	}

	d.deps.Logger.Info("starting deployment",
		"project", d.Project.Name,
		"environment", d.Env.Name,
		"action", string(action),
		"branch", d.Branch,
		"revision", d.ToRevision)

	switch action {
	case ActionSetup:
		return d.runStage(ctx, StageSetup, d.Env.SetupCommands)
	case ActionDryRun:
		_, err := d.sync(ctx, true)
		return err
	case ActionGo:
		return d.deploy(ctx)
	}
	return fmt.Errorf("invalid action %q", action)
}

// resolveHead pins the deployment to the currently checked-out branch
// and revision.
func (d *Deployment) resolveHead(ctx context.Context) error {
	if d.Branch != "" {
		return nil
	}

	branch, revision, err := d.deps.Git.Head(ctx)
	if err != nil {
		return err
	}
	if err := security.ValidateBranchName(branch); err != nil {
		return fmt.Errorf("refusing to deploy branch: %w", err)
	}

	d.Branch = branch
	d.ToRevision = revision
	return nil
}

// Diff returns the change set between the last deployed revision and
// the current head, computing it on first use. The computed diff is
// read-only for the rest of the deployment.
func (d *Deployment) Diff(ctx context.Context) (*gitdiff.Diff, error) {
	if d.diff != nil {
		return d.diff, nil
	}
	if err := d.resolveHead(ctx); err != nil {
		return nil, err
	}

	from, ok, err := d.deps.Tracker.LastRevision(ctx, d.Project.Name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &NoBaselineError{Project: d.Project.Name}
	}

	report, err := d.deps.Git.ChangeReport(ctx, from, d.ToRevision)
	if err != nil {
		return nil, err
	}

	diff, err := gitdiff.Parse(from, d.ToRevision, report)
	if err != nil {
		return nil, err
	}

	d.FromRevision = from
	d.diff = diff
	return diff, nil
}

func (d *Deployment) runStage(ctx context.Context, stage Stage, specs []CommandSpec) error {
	if err := d.runner.RunAll(ctx, specs, d.state); err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	return nil
}

// sync runs the synchronization and parses its itemized report.
func (d *Deployment) sync(ctx context.Context, dryRun bool) (*rsync.Summary, error) {
	args := rsync.Args(rsync.Options{
		Source: d.Project.Path,
		Host:   d.Env.SSHHost,
		Port:   d.Env.SSHPort,
		Target: d.Env.RemotePath,
		DryRun: dryRun,
	})

	out, err := d.deps.Executor.Capture(ctx, args)
	if err != nil {
		return nil, &StageError{Stage: StageSync, Err: err}
	}

	summary, err := rsync.ParseItemized(string(out))
	if err != nil {
		return nil, &StageError{Stage: StageSync, Err: err}
	}

	if summary.Empty() {
		d.deps.Logger.Info("no files to sync")
	} else {
		d.deps.Logger.Info("files synchronized", "dry_run", dryRun, "changes", summary)
	}

	return summary, nil
}

// deploy is the full go sequence: pre-deploy commands, real sync,
// post-deploy commands, audit record, and for production targets the
// commit-marker update and merge-back.
func (d *Deployment) deploy(ctx context.Context) error {
	if err := d.runStage(ctx, StagePreDeploy, d.Env.PreDeployCommands); err != nil {
		return err
	}
	if _, err := d.sync(ctx, false); err != nil {
		return err
	}
	if err := d.runStage(ctx, StagePostDeploy, d.Env.PostDeployCommands); err != nil {
		return err
	}
	if err := d.appendAuditRecord(ctx); err != nil {
		return &StageError{Stage: StagePostDeploy, Err: err}
	}

	if !d.Env.Production {
		d.deps.Logger.Info("deployment complete",
			"project", d.Project.Name, "environment", d.Env.Name)
		return nil
	}

	// The marker advances before merge-back; a merge-back failure
	// leaves it advanced.
	if err := d.deps.Tracker.SetLastRevision(ctx, d.Project.Name, d.ToRevision); err != nil {
		return fmt.Errorf("failed to record deployed revision: %w", err)
	}
	if err := d.mergeBack(ctx); err != nil {
		return err
	}

	if d.deps.Notifier != nil {
		if err := d.deps.Notifier.ProductionDeployed(ctx, d.Project.Name, d.Env.Name, d.ToRevision, d.Branch); err != nil {
			// Best effort only.
			d.deps.Logger.Warn("deployment notification failed", "error", err)
		}
	}

	d.deps.Logger.Info("production deployment complete",
		"project", d.Project.Name, "revision", d.ToRevision)
	return nil
}

// appendAuditRecord appends a one-line record of the deployment to the
// environment's remote log file.
func (d *Deployment) appendAuditRecord(ctx context.Context) error {
	if d.Env.RemoteLogFile == "" {
		return nil
	}

	line := fmt.Sprintf("%s %s %s %s %s",
		time.Now().UTC().Format(time.RFC3339),
		d.Project.Name,
		d.Env.Name,
		d.ToRevision,
		d.Branch)
	command := fmt.Sprintf("echo %s >> %s",
		shellquote.Join(line), shellquote.Join(d.Env.RemoteLogFile))

	return d.deps.Executor.RunRemote(ctx, d.Env, command)
}

// mergeTarget is whichever long-lived branch was not just deployed.
func (d *Deployment) mergeTarget() (string, error) {
	switch d.Branch {
	case d.Project.Branches.Primary:
		return d.Project.Branches.Secondary, nil
	case d.Project.Branches.Secondary:
		return d.Project.Branches.Primary, nil
	}
	return "", &MergeBackError{
		Branch:    d.Branch,
		Primary:   d.Project.Branches.Primary,
		Secondary: d.Project.Branches.Secondary,
	}
}

// mergeBack merges the deployed branch into its counterpart and pushes
// the result. The three operations are sequential and not
// transactional: a push failure leaves the local repository merged but
// unpushed.
func (d *Deployment) mergeBack(ctx context.Context) error {
	target, err := d.mergeTarget()
	if err != nil {
		return err
	}

	d.deps.Logger.Info("merging deployed branch back",
		"from", d.Branch, "into", target, "remote", d.Project.Upstream)

	if err := d.deps.Git.Checkout(ctx, target); err != nil {
		return err
	}
	if err := d.deps.Git.Merge(ctx, d.Branch); err != nil {
		return err
	}
	return d.deps.Git.Push(ctx, d.Project.Upstream, target)
}
