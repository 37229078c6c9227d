package main

import (
	"fmt"
	"os"
	"time"

	"shipway/internal/deployment"
	"shipway/internal/git"
	"shipway/internal/notify"
	"shipway/internal/project"
	"shipway/internal/tracker"
	"shipway/pkg/fileutil"

	"github.com/spf13/cobra"
)

var (
	deployConfigFile     string
	deployLogFile        string
	deployDBPath         string
	deployActionFlag     string
	deployForce          bool
	deployRunWebpack     bool
	deployLastCommitHash string
)

var deployCmd = &cobra.Command{
	Use:   "deploy <project> <environment>",
	Short: "Deploy a project to an environment",
	Long: `Deploy a configured project to one of its environments.

The action decides how far the pipeline goes:

  setup    run the environment's setup commands only
  dry-run  show what rsync would transfer, change nothing remotely
  go       full deployment: pre-deploy commands, sync, post-deploy commands`,
	Args: cobra.ExactArgs(2),
	RunE: runDeploy,
}

func init() {
	deployCmd.Flags().StringVarP(&deployConfigFile, "config", "c", getEnvOrDefault("SHIPWAY_CONFIG_FILE", ""), "Path to projects.yaml configuration file")
	deployCmd.Flags().StringVar(&deployLogFile, "log", getEnvOrDefault("SHIPWAY_LOG_FILE", "./shipway.log"), "Path to log file")
	deployCmd.Flags().StringVar(&deployDBPath, "db", getEnvOrDefault("SHIPWAY_DB_PATH", "./shipway.db"), "Path to SQLite database")
	deployCmd.Flags().StringVarP(&deployActionFlag, "action", "a", "setup", "Deployment action: setup, dry-run or go")
	deployCmd.Flags().BoolVar(&deployForce, "force", false, "Set the force option for conditional commands")
	deployCmd.Flags().BoolVar(&deployRunWebpack, "run-webpack", false, "Set the run-webpack option for conditional commands")
	deployCmd.Flags().StringVar(&deployLastCommitHash, "last-commit-hash", "", "Seed the last deployed revision before running")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	projectName, envName := args[0], args[1]
	ctx := cmd.Context()

	action, err := deployment.ParseAction(deployActionFlag)
	if err != nil {
		return err
	}

	configFile, err := resolveConfigFile(deployConfigFile)
	if err != nil {
		return err
	}

	logger, logFileHandle, err := setupLogging(deployLogFile)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logFileHandle.Close()

	projects, err := project.LoadConfig(configFile)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	proj, err := project.NewRegistry(projects).Get(projectName)
	if err != nil {
		return err
	}

	store, err := tracker.Open(deployDBPath)
	if err != nil {
		return fmt.Errorf("failed to open revision store: %w", err)
	}
	defer store.Close()

	if deployLastCommitHash != "" {
		logger.Info("Seeding last deployed revision",
			"project", projectName, "revision", deployLastCommitHash)
		if err := store.SetLastRevision(ctx, projectName, deployLastCommitHash); err != nil {
			return fmt.Errorf("failed to seed revision: %w", err)
		}
	}

	deps := deployment.Deps{
		Git:      git.NewShellClient(proj.Path),
		Tracker:  store,
		Executor: deployment.NewShellExecutor(proj.Path, os.Stdout, logger),
		Logger:   logger,
	}
	if proj.GitHub != nil {
		notifier, err := notify.NewGitHub(proj.GitHub, logger)
		if err != nil {
			return fmt.Errorf("failed to configure GitHub notification: %w", err)
		}
		deps.Notifier = notifier
	}

	options := map[string]bool{
		deployment.OptionForce:      deployForce,
		deployment.OptionRunWebpack: deployRunWebpack,
	}

	d, err := deployment.New(proj, envName, options, deps)
	if err != nil {
		return err
	}

	startedAt := time.Now()
	runErr := d.Run(ctx, action)
	recordAttempt(cmd, store, d, projectName, envName, action, startedAt, runErr)

	if runErr != nil {
		logger.Error("Deployment failed",
			"project", projectName, "environment", envName, "error", runErr)
		return runErr
	}

	logger.Info("Deployment finished",
		"project", projectName, "environment", envName, "action", string(action))
	return nil
}

// recordAttempt writes the attempt to the history table. A write
// failure must not mask the deployment result, so it only warns.
func recordAttempt(cmd *cobra.Command, store *tracker.Store, d *deployment.Deployment, projectName, envName string, action deployment.Action, startedAt time.Time, runErr error) {
	completedAt := time.Now()
	record := &tracker.Record{
		Project:     projectName,
		Environment: envName,
		Action:      string(action),
		Branch:      d.Branch,
		Revision:    d.ToRevision,
		StartedAt:   startedAt,
		CompletedAt: &completedAt,
		Status:      "success",
	}
	if runErr != nil {
		record.Status = "failed"
		msg := runErr.Error()
		record.ErrorMessage = &msg
	}
	if _, err := store.RecordDeployment(cmd.Context(), record); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to record deployment: %v\n", err)
	}
}

// resolveConfigFile falls back to the default search locations when no
// path was given on the command line.
func resolveConfigFile(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	searchPaths := fileutil.DefaultConfigPaths("projects.yaml")
	if found := fileutil.SearchPathsOptional(searchPaths); found != "" {
		return found, nil
	}
	fmt.Fprintf(os.Stderr, "Error: No configuration file found in default locations:\n")
	for _, path := range searchPaths {
		fmt.Fprintf(os.Stderr, "  - %s\n", path)
	}
	fmt.Fprintf(os.Stderr, "Use --config flag to specify a custom location\n")
	return "", fmt.Errorf("configuration file not found")
}
