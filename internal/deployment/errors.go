package deployment

import "fmt"

// Stage is one phase of the deployment pipeline.
type Stage string

const (
	StageSetup      Stage = "setup"
	StagePreDeploy  Stage = "pre-deploy"
	StageSync       Stage = "sync"
	StagePostDeploy Stage = "post-deploy"
)

// StageError tags a failure with the pipeline stage it happened in.
// All later stages of the same run are abandoned; nothing already
// applied is rolled back.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// CommandError reports a command that exited with a nonzero status.
type CommandError struct {
	Command  string
	ExitCode int
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q exited with code %d", e.Command, e.ExitCode)
}

// MergeBackError reports that the deployed branch matches neither of
// the two configured long-lived branches, so no merge target exists.
type MergeBackError struct {
	Branch    string
	Primary   string
	Secondary string
}

func (e *MergeBackError) Error() string {
	return fmt.Sprintf("deployed branch %q is neither %q nor %q, cannot determine merge target",
		e.Branch, e.Primary, e.Secondary)
}

// NoBaselineError reports that no previously deployed revision is
// recorded for the project, so no diff baseline exists.
type NoBaselineError struct {
	Project string
}

func (e *NoBaselineError) Error() string {
	return fmt.Sprintf("no deployed revision recorded for project %q, seed one with --last-commit-hash", e.Project)
}
