package rsync

import (
	"fmt"
	"strings"
)

// Options describes one synchronization of a local tree to a remote
// host over ssh.
type Options struct {
	Source     string // local directory
	Host       string // remote ssh host
	Port       int    // remote ssh port, 0 means 22
	Target     string // remote directory
	DryRun     bool
	Exclusions []string
}

// Args builds the rsync argument vector for the given options. The
// out-format is restricted to itemized change lines so the output can
// be fed straight into ParseItemized.
func Args(opts Options) []string {
	args := []string{
		"rsync",
		"--recursive",
		"--links",
		"--perms",
		"--times",
		"--checksum",
		"--compress",
		"--delete",
		"--out-format=%i %n",
	}

	if opts.DryRun {
		args = append(args, "--dry-run")
	}
	for _, pattern := range opts.Exclusions {
		args = append(args, "--exclude="+pattern)
	}

	port := opts.Port
	if port == 0 {
		port = 22
	}
	args = append(args, "-e", fmt.Sprintf("ssh -p %d", port))

	source := strings.TrimSuffix(opts.Source, "/") + "/"
	target := strings.TrimSuffix(opts.Target, "/") + "/"
	args = append(args, source, fmt.Sprintf("%s:%s", opts.Host, target))

	return args
}
