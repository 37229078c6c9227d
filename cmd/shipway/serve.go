package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"shipway/internal/deployment"
	"shipway/internal/git"
	"shipway/internal/notify"
	"shipway/internal/project"
	"shipway/internal/server"
	"shipway/internal/tracker"

	"github.com/spf13/cobra"
)

var (
	serveConfigFile string
	serveLogFile    string
	serveDBPath     string
	serveHost       string
	servePort       int
	serveTestMode   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the deployment trigger server",
	Long: `Start the HTTP server that exposes deployment triggers.

The server accepts trigger requests per project and environment and runs
the same pipeline as the deploy command, in the background.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigFile, "config", "c", getEnvOrDefault("SHIPWAY_CONFIG_FILE", ""), "Path to projects.yaml configuration file")
	serveCmd.Flags().StringVar(&serveLogFile, "log", getEnvOrDefault("SHIPWAY_LOG_FILE", "./shipway.log"), "Path to log file")
	serveCmd.Flags().StringVar(&serveDBPath, "db", getEnvOrDefault("SHIPWAY_DB_PATH", "./shipway.db"), "Path to SQLite database")
	serveCmd.Flags().StringVar(&serveHost, "host", getEnvOrDefault("SHIPWAY_HOST", "127.0.0.1"), "Host to bind to")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", getEnvOrDefaultInt("SHIPWAY_PORT", 5000), "Port to listen on")
	serveCmd.Flags().BoolVar(&serveTestMode, "test-mode", os.Getenv("SHIPWAY_SKIP_VALIDATION") == "1", "Enable test mode (skip rate limiting)")
}

func runServe(cmd *cobra.Command, args []string) error {
	configFile, err := resolveConfigFile(serveConfigFile)
	if err != nil {
		return err
	}

	logger, logFileHandle, err := setupLogging(serveLogFile)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logFileHandle.Close()

	logger.Info("Starting shipway")

	logger.Info("Loading configuration", "config", configFile)
	projects, err := project.LoadConfig(configFile)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.Info("Configuration validated successfully", "count", len(projects))

	if len(projects) == 0 {
		logger.Warn("No projects configured in config file", "config", configFile)
		logger.Warn("The server will start but won't handle any deployments until projects are added")
	}

	registry := project.NewRegistry(projects)

	logger.Info("Initializing revision store", "db", serveDBPath)
	store, err := tracker.Open(serveDBPath)
	if err != nil {
		logger.Error("Failed to initialize revision store", "error", err)
		return fmt.Errorf("failed to initialize revision store: %w", err)
	}
	defer store.Close()

	deployer := &pipelineDeployer{
		registry: registry,
		store:    store,
		logger:   logger,
	}

	srv := server.NewServer(registry, store, deployer, logger, serveTestMode)

	logger.Info("Starting HTTP server", "host", serveHost, "port", servePort)
	if err := srv.Start(serveHost, servePort); err != nil {
		logger.Error("Server failed", "error", err)
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// pipelineDeployer runs the deployment pipeline for server triggers and
// records each attempt in the history table.
type pipelineDeployer struct {
	registry *project.Registry
	store    *tracker.Store
	logger   *slog.Logger
}

func (p *pipelineDeployer) Deploy(ctx context.Context, projectName, envName string, action deployment.Action, options map[string]bool) error {
	proj, err := p.registry.Get(projectName)
	if err != nil {
		return err
	}

	deps := deployment.Deps{
		Git:      git.NewShellClient(proj.Path),
		Tracker:  p.store,
		Executor: deployment.NewShellExecutor(proj.Path, io.Discard, p.logger),
		Logger:   p.logger,
	}
	if proj.GitHub != nil {
		notifier, err := notify.NewGitHub(proj.GitHub, p.logger)
		if err != nil {
			return fmt.Errorf("failed to configure GitHub notification: %w", err)
		}
		deps.Notifier = notifier
	}

	d, err := deployment.New(proj, envName, options, deps)
	if err != nil {
		return err
	}

	startedAt := time.Now()
	runErr := d.Run(ctx, action)

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
	if _, err := p.store.RecordDeployment(ctx, record); err != nil {
		p.logger.Warn("Failed to record deployment", "project", projectName, "error", err)
	}

	return runErr
}

// setupLogging configures slog for file logging
// Returns both the logger and the file handle (caller must close the file)
func setupLogging(logPath string) (*slog.Logger, *os.File, error) {
	// Create log directory if needed
	logDir := filepath.Dir(logPath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	// Open log file with secure permissions
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	// Create multi-writer to log to both file and console
	multiWriter := io.MultiWriter(os.Stdout, file)

	// Create JSON handler for structured logging
	handler := slog.NewJSONHandler(multiWriter, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})

	logger := slog.New(handler)

	return logger, file, nil
}

// Helper functions for environment variables
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
