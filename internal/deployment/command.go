package deployment

import (
	"context"
	"log/slog"

	"shipway/internal/gitdiff"
	"shipway/internal/project"
)

// CommandSpec is one pipeline step: a shell command, its execution
// target and an optional gating condition.
type CommandSpec struct {
	// Command is the shell command text.
	Command string

	// Local runs the command on the deploying machine instead of the
	// remote host.
	Local bool

	// Name identifies the command for later "did this run" queries.
	Name string

	// When, if set, must evaluate true for the command to run.
	When Condition
}

func specFromConfig(cfg project.CommandConfig) (CommandSpec, error) {
	when, err := conditionFromConfig(cfg.When)
	if err != nil {
		return CommandSpec{}, err
	}
	return CommandSpec{
		Command: cfg.Cmd,
		Local:   cfg.Local,
		Name:    cfg.Name,
		When:    when,
	}, nil
}

// SpecsFromConfig converts configured command entries into runnable
// specs.
func SpecsFromConfig(cfgs []project.CommandConfig) ([]CommandSpec, error) {
	specs := make([]CommandSpec, 0, len(cfgs))
	for _, cfg := range cfgs {
		spec, err := specFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// Context is what predicates observe while a deployment runs: the
// deployment itself (and through it the diff), the target environment
// and the set of named commands that have run so far.
type Context struct {
	deployment *Deployment
	ran        map[string]struct{}
}

// HasRun reports whether a named command already ran in this
// deployment.
func (c *Context) HasRun(name string) bool {
	_, ok := c.ran[name]
	return ok
}

// Option reports whether the deployment was invoked with the named
// option.
func (c *Context) Option(name string) bool {
	return c.deployment.Options[name]
}

// Environment returns the resolved target environment.
func (c *Context) Environment() *Environment {
	return c.deployment.Env
}

// Diff returns the deployment's change set, computing it on first use.
func (c *Context) Diff(ctx context.Context) (*gitdiff.Diff, error) {
	return c.deployment.Diff(ctx)
}

// The ran-set only ever grows; re-adding a name is a no-op.
func (c *Context) markRan(name string) {
	c.ran[name] = struct{}{}
}

// Runner executes an ordered command sequence, skipping entries whose
// condition evaluates false and aborting on the first failure.
type Runner struct {
	Executor Executor
	Logger   *slog.Logger
}

// RunAll iterates the sequence in order. A skipped entry starts no
// process and its name is never recorded. A nonzero exit aborts the
// remaining entries; commands that already ran are not rolled back.
func (r *Runner) RunAll(ctx context.Context, specs []CommandSpec, state *Context) error {
	for _, spec := range specs {
		if spec.When != nil {
			ok, err := spec.When.Eval(ctx, state)
			if err != nil {
				return err
			}
			if !ok {
				r.Logger.Info("skipping command", "command", spec.Command)
				continue
			}
		}

		var err error
		if spec.Local {
			err = r.Executor.RunLocal(ctx, spec.Command)
		} else {
			err = r.Executor.RunRemote(ctx, state.Environment(), spec.Command)
		}
		if err != nil {
			return err
		}

		if spec.Name != "" {
			state.markRan(spec.Name)
		}
	}

	return nil
}
