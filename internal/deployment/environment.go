package deployment

import (
	"fmt"

	"shipway/internal/project"
)

// Environment is the resolved runtime configuration of one deployment
// target. It is immutable after construction.
type Environment struct {
	Name          string
	Production    bool
	SSHHost       string
	SSHPort       int
	RemotePath    string
	RemoteLogFile string

	SetupCommands      []CommandSpec
	PreDeployCommands  []CommandSpec
	PostDeployCommands []CommandSpec
}

// ResolveEnvironment merges the project's wildcard defaults under the
// named environment and converts the configured commands into
// runnable specs.
func ResolveEnvironment(p *project.Project, name string) (*Environment, error) {
	cfg, err := p.Environment(name)
	if err != nil {
		return nil, err
	}

	env := &Environment{
		Name:          name,
		Production:    cfg.Production,
		SSHHost:       cfg.SSHHost,
		SSHPort:       cfg.SSHPort,
		RemotePath:    cfg.RemotePath,
		RemoteLogFile: cfg.RemoteLogFile,
	}
	if env.SSHPort == 0 {
		env.SSHPort = 22
	}

	if env.SetupCommands, err = SpecsFromConfig(cfg.SetupCmds); err != nil {
		return nil, fmt.Errorf("environment %q: %w", name, err)
	}
	if env.PreDeployCommands, err = SpecsFromConfig(cfg.PreDeployCmds); err != nil {
		return nil, fmt.Errorf("environment %q: %w", name, err)
	}
	if env.PostDeployCommands, err = SpecsFromConfig(cfg.PostDeployCmds); err != nil {
		return nil, fmt.Errorf("environment %q: %w", name, err)
	}

	return env, nil
}
