// Package notify reports successful production deployments to GitHub
// as deployment records with a success status.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"shipway/internal/project"
)

// GitHub creates a deployment and marks it successful on the
// configured repository.
type GitHub struct {
	client *github.Client
	owner  string
	repo   string
	logger *slog.Logger
}

// NewGitHub builds a notifier from the project's github configuration.
// The token is read from the configured file.
func NewGitHub(cfg *project.GitHubConfig, logger *slog.Logger) (*GitHub, error) {
	parts := strings.Split(cfg.OwnerRepo, "/")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid owner/repo format: %s", cfg.OwnerRepo)
	}

	token, err := os.ReadFile(cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read github token file: %w", err)
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: strings.TrimSpace(string(token))},
	)
	tc := oauth2.NewClient(context.Background(), ts)

	return &GitHub{
		client: github.NewClient(tc),
		owner:  parts[0],
		repo:   parts[1],
		logger: logger,
	}, nil
}

// ProductionDeployed records the deployment on GitHub. Failures are
// reported to the caller, which treats notification as best effort.
func (g *GitHub) ProductionDeployed(ctx context.Context, proj, environment, revision, branch string) error {
	required := []string{}
	deployment, _, err := g.client.Repositories.CreateDeployment(ctx, g.owner, g.repo, &github.DeploymentRequest{
		Ref:              github.String(revision),
		Environment:      github.String(environment),
		Description:      github.String(fmt.Sprintf("shipway deployment of %s (%s)", proj, branch)),
		AutoMerge:        github.Bool(false),
		RequiredContexts: &required,
	})
	if err != nil {
		return fmt.Errorf("creating github deployment: %w", err)
	}

	_, _, err = g.client.Repositories.CreateDeploymentStatus(ctx, g.owner, g.repo, deployment.GetID(), &github.DeploymentStatusRequest{
		State: github.String("success"),
	})
	if err != nil {
		return fmt.Errorf("creating github deployment status: %w", err)
	}

	g.logger.Info("github deployment recorded",
		"repo", g.owner+"/"+g.repo, "environment", environment, "revision", revision)
	return nil
}
