// Package security validates externally supplied identifiers before
// they reach git or the remote shell.
package security

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	branchPattern  = regexp.MustCompile(`^[a-zA-Z0-9/_.-]+$`)
	projectPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	hostPattern    = regexp.MustCompile(`^[a-zA-Z0-9.-]+$`)
)

// ValidateBranchName ensures branch name is safe for git operations.
// Prevents argument and command injection through branch names.
func ValidateBranchName(branch string) error {
	if branch == "" {
		return fmt.Errorf("branch name cannot be empty")
	}
	if strings.HasPrefix(branch, "-") {
		return fmt.Errorf("branch name cannot start with '-'")
	}
	if !branchPattern.MatchString(branch) {
		return fmt.Errorf("branch name contains invalid characters")
	}
	return nil
}

// ValidateProjectName ensures project name is safe for use in paths
// and log records.
func ValidateProjectName(name string) error {
	if name == "" {
		return fmt.Errorf("project name cannot be empty")
	}
	if strings.HasPrefix(name, "-") || strings.HasPrefix(name, ".") {
		return fmt.Errorf("project name cannot start with '-' or '.'")
	}
	if !projectPattern.MatchString(name) {
		return fmt.Errorf("project name contains invalid characters")
	}
	return nil
}

// ValidateHost ensures an ssh host looks like a hostname or address
// and cannot smuggle options into the ssh invocation.
func ValidateHost(host string) error {
	if host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if strings.HasPrefix(host, "-") {
		return fmt.Errorf("host cannot start with '-'")
	}
	if !hostPattern.MatchString(host) {
		return fmt.Errorf("host contains invalid characters")
	}
	return nil
}
