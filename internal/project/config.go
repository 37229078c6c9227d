package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"shipway/internal/security"
)

// NotFoundError reports a project name absent from the configuration.
type NotFoundError struct {
	Project string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("project %q is not configured", e.Project)
}

// EnvironmentNotFoundError reports an environment absent from a
// project's configuration.
type EnvironmentNotFoundError struct {
	Project     string
	Environment string
}

func (e *EnvironmentNotFoundError) Error() string {
	return fmt.Sprintf("project %q has no environment %q", e.Project, e.Environment)
}

// LoadConfig loads and validates the configuration from a YAML file.
func LoadConfig(configPath string) (map[string]*Project, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	projects := make(map[string]*Project)
	for name, pc := range config.Projects {
		errs := validateProjectConfig(name, pc)
		if len(errs) > 0 {
			return nil, fmt.Errorf("invalid configuration for project '%s':\n%s",
				name, strings.Join(errs, "\n"))
		}

		upstream := pc.Upstream
		if upstream == "" {
			upstream = "origin"
		}

		p := &Project{
			Name:         name,
			Path:         pc.Path,
			Upstream:     upstream,
			Branches:     pc.Branches,
			GitHub:       pc.GitHub,
			environments: pc.Environments,
		}

		// Resolving every named environment up front catches bad
		// command entries and conditions at load time instead of
		// mid-deployment.
		for envName := range pc.Environments {
			if envName == Wildcard {
				continue
			}
			if _, err := p.Environment(envName); err != nil {
				return nil, fmt.Errorf("project '%s': %w", name, err)
			}
		}

		projects[name] = p
	}

	return projects, nil
}

// validateProjectConfig validates a single project configuration.
func validateProjectConfig(name string, config ProjectConfig) []string {
	var errs []string

	if err := security.ValidateProjectName(name); err != nil {
		errs = append(errs, fmt.Sprintf("  - Project '%s': invalid name: %v", name, err))
	}

	if config.Path == "" {
		errs = append(errs, fmt.Sprintf("  - Project '%s': missing required 'path' field", name))
	} else if !filepath.IsAbs(config.Path) {
		errs = append(errs, fmt.Sprintf("  - Project '%s': path must be absolute, got '%s'", name, config.Path))
	}

	if config.Branches.Primary == "" || config.Branches.Secondary == "" {
		errs = append(errs, fmt.Sprintf("  - Project '%s': both branches.primary and branches.secondary are required", name))
	} else {
		if err := security.ValidateBranchName(config.Branches.Primary); err != nil {
			errs = append(errs, fmt.Sprintf("  - Project '%s': invalid primary branch: %v", name, err))
		}
		if err := security.ValidateBranchName(config.Branches.Secondary); err != nil {
			errs = append(errs, fmt.Sprintf("  - Project '%s': invalid secondary branch: %v", name, err))
		}
		if config.Branches.Primary == config.Branches.Secondary {
			errs = append(errs, fmt.Sprintf("  - Project '%s': primary and secondary branches must differ", name))
		}
	}

	named := 0
	for envName := range config.Environments {
		if envName != Wildcard {
			named++
		}
	}
	if named == 0 {
		errs = append(errs, fmt.Sprintf("  - Project '%s': at least one named environment is required", name))
	}

	if config.GitHub != nil {
		if parts := strings.Split(config.GitHub.OwnerRepo, "/"); len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			errs = append(errs, fmt.Sprintf("  - Project '%s': github.owner_repo must be 'owner/repo', got '%s'", name, config.GitHub.OwnerRepo))
		}
	}

	return errs
}

// Environment resolves a named environment: the wildcard entry's keys
// serve as defaults and the named entry's keys override them. The
// merge is shallow, named top-level keys replace wildcard keys whole.
func (p *Project) Environment(name string) (*EnvironmentConfig, error) {
	raw, ok := p.environments[name]
	if !ok || name == Wildcard {
		return nil, &EnvironmentNotFoundError{Project: p.Name, Environment: name}
	}

	merged := make(map[string]yaml.Node)
	for key, node := range p.environments[Wildcard] {
		merged[key] = node
	}
	for key, node := range raw {
		merged[key] = node
	}

	// Round-trip through the YAML codec to decode the merged mapping
	// into the typed config.
	data, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("environment %q: %w", name, err)
	}

	var env EnvironmentConfig
	if err := yaml.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("environment %q: %w", name, err)
	}

	if env.SSHHost != "" {
		if err := security.ValidateHost(env.SSHHost); err != nil {
			return nil, fmt.Errorf("environment %q: %w", name, err)
		}
	}

	return &env, nil
}

// EnvironmentNames returns the named environments, wildcard excluded.
func (p *Project) EnvironmentNames() []string {
	names := make([]string, 0, len(p.environments))
	for name := range p.environments {
		if name != Wildcard {
			names = append(names, name)
		}
	}
	return names
}
