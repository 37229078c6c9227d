package project

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Wildcard is the environment key whose values serve as defaults for
// every named environment.
const Wildcard = "*"

// Branches names the two long-lived branches that mirror each other
// via merge-back after a production deployment.
type Branches struct {
	Primary   string `yaml:"primary"`
	Secondary string `yaml:"secondary"`
}

// GitHubConfig enables deployment-status notification on GitHub.
type GitHubConfig struct {
	OwnerRepo string `yaml:"owner_repo"`
	TokenFile string `yaml:"token_file"`
}

// ProjectConfig is the YAML shape of one project entry.
type ProjectConfig struct {
	Path         string                          `yaml:"path"`
	Upstream     string                          `yaml:"upstream"`
	Branches     Branches                        `yaml:"branches"`
	GitHub       *GitHubConfig                   `yaml:"github"`
	Environments map[string]map[string]yaml.Node `yaml:"environments"`
}

// Config is the root configuration structure.
type Config struct {
	Projects map[string]ProjectConfig `yaml:"projects"`
}

// Project is a validated deployment project.
type Project struct {
	Name         string
	Path         string
	Upstream     string
	Branches     Branches
	GitHub       *GitHubConfig
	environments map[string]map[string]yaml.Node
}

// EnvironmentConfig is the resolved configuration of one target
// environment, after wildcard defaults have been merged in.
type EnvironmentConfig struct {
	Production     bool            `yaml:"production"`
	SSHHost        string          `yaml:"ssh_host"`
	SSHPort        int             `yaml:"ssh_port"`
	RemotePath     string          `yaml:"remote_path"`
	RemoteLogFile  string          `yaml:"remote_log_file"`
	SetupCmds      []CommandConfig `yaml:"setup_cmds"`
	PreDeployCmds  []CommandConfig `yaml:"pre_deploy_cmds"`
	PostDeployCmds []CommandConfig `yaml:"post_deploy_cmds"`
}

// CommandConfig is one configured pipeline command. In YAML it is
// either a bare command string or a mapping with cmd and the optional
// local, name and when keys.
type CommandConfig struct {
	Cmd   string
	Local bool
	Name  string
	When  *ConditionConfig
}

// UnmarshalYAML accepts both the scalar and the structured form.
func (c *CommandConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&c.Cmd)
	}

	var aux struct {
		Cmd   string           `yaml:"cmd"`
		Local bool             `yaml:"local"`
		Name  string           `yaml:"name"`
		When  *ConditionConfig `yaml:"when"`
	}
	if err := node.Decode(&aux); err != nil {
		return err
	}
	if aux.Cmd == "" {
		return fmt.Errorf("command entry is missing 'cmd'")
	}

	c.Cmd = aux.Cmd
	c.Local = aux.Local
	c.Name = aux.Name
	c.When = aux.When
	return nil
}

// ConditionKind names a built-in command predicate.
type ConditionKind string

const (
	// CondHasFile is true when the deployment's diff contains the file.
	CondHasFile ConditionKind = "has_file"
	// CondHasDir is true when the diff touches anything under the directory.
	CondHasDir ConditionKind = "has_dir"
	// CondCommandRan is true when a named command already ran.
	CondCommandRan ConditionKind = "command_ran"
	// CondOption is true when the deployment option is set.
	CondOption ConditionKind = "option"
)

// ConditionConfig is the YAML shape of a command predicate: a one-key
// mapping from the condition kind to its argument, e.g.
// {has_file: package.json}.
type ConditionConfig struct {
	Kind ConditionKind
	Arg  string
}

// UnmarshalYAML decodes the one-key mapping form.
func (c *ConditionConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]string
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("condition must be a mapping of kind to argument: %w", err)
	}
	if len(raw) != 1 {
		return fmt.Errorf("condition must have exactly one key, got %d", len(raw))
	}

	for kind, arg := range raw {
		switch ConditionKind(kind) {
		case CondHasFile, CondHasDir, CondCommandRan, CondOption:
			c.Kind = ConditionKind(kind)
			c.Arg = arg
		default:
			return fmt.Errorf("unknown condition kind %q", kind)
		}
	}
	return nil
}
