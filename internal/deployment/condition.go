package deployment

import (
	"context"
	"fmt"

	"shipway/internal/project"
)

// Condition gates a command against the current deployment state. It
// is evaluated immediately before the command would run.
type Condition interface {
	Eval(ctx context.Context, state *Context) (bool, error)
}

// ConditionFunc adapts an injected function to the Condition
// interface.
type ConditionFunc func(ctx context.Context, state *Context) (bool, error)

func (f ConditionFunc) Eval(ctx context.Context, state *Context) (bool, error) {
	return f(ctx, state)
}

type hasFile string

func (c hasFile) Eval(ctx context.Context, state *Context) (bool, error) {
	diff, err := state.Diff(ctx)
	if err != nil {
		return false, err
	}
	return diff.HasFile(string(c)), nil
}

type hasDirectory string

func (c hasDirectory) Eval(ctx context.Context, state *Context) (bool, error) {
	diff, err := state.Diff(ctx)
	if err != nil {
		return false, err
	}
	return diff.HasDirectory(string(c)), nil
}

type commandRan string

func (c commandRan) Eval(_ context.Context, state *Context) (bool, error) {
	return state.HasRun(string(c)), nil
}

type optionSet string

func (c optionSet) Eval(_ context.Context, state *Context) (bool, error) {
	return state.Option(string(c)), nil
}

// HasFile is true when the deployment's diff contains the given path.
func HasFile(path string) Condition { return hasFile(path) }

// HasDirectory is true when the diff touches anything under the given
// directory.
func HasDirectory(path string) Condition { return hasDirectory(path) }

// CommandRan is true when the named command already ran in this
// deployment.
func CommandRan(name string) Condition { return commandRan(name) }

// OptionSet is true when the deployment was invoked with the named
// option.
func OptionSet(name string) Condition { return optionSet(name) }

// conditionFromConfig maps a configured predicate onto its built-in
// implementation.
func conditionFromConfig(cfg *project.ConditionConfig) (Condition, error) {
	if cfg == nil {
		return nil, nil
	}

	switch cfg.Kind {
	case project.CondHasFile:
		return HasFile(cfg.Arg), nil
	case project.CondHasDir:
		return HasDirectory(cfg.Arg), nil
	case project.CondCommandRan:
		return CommandRan(cfg.Arg), nil
	case project.CondOption:
		return OptionSet(cfg.Arg), nil
	}
	return nil, fmt.Errorf("unknown condition kind %q", cfg.Kind)
}
