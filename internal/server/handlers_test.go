package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"shipway/internal/deployment"
	"shipway/internal/project"
	"shipway/internal/tracker"
)

const serverTestConfig = `
projects:
  myapp:
    path: /srv/myapp
    branches:
      primary: main
      secondary: develop
    environments:
      staging:
        ssh_host: staging.example.com
        remote_path: /var/www/staging
`

type recordedDeploy struct {
	project string
	env     string
	action  deployment.Action
	options map[string]bool
}

type fakeDeployer struct {
	mu    sync.Mutex
	calls []recordedDeploy
	err   error
}

func (f *fakeDeployer) Deploy(ctx context.Context, projectName, envName string, action deployment.Action, options map[string]bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedDeploy{projectName, envName, action, options})
	return f.err
}

func newTestServer(t *testing.T) (*Server, *fakeDeployer) {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "projects.yaml")
	if err := os.WriteFile(configPath, []byte(serverTestConfig), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	projects, err := project.LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	store, err := tracker.Open(filepath.Join(t.TempDir(), "shipway.db"))
	if err != nil {
		t.Fatalf("Failed to open tracker store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	deployer := &fakeDeployer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(project.NewRegistry(projects), store, deployer, logger, true), deployer
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("Expected status ok, got %q", body["status"])
	}
}

func TestHandleStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	completed := time.Now()
	_, err := srv.Store.RecordDeployment(context.Background(), &tracker.Record{
		Project:     "myapp",
		Environment: "staging",
		Action:      "go",
		Branch:      "main",
		Revision:    "abc123",
		Status:      "success",
		StartedAt:   completed.Add(-time.Minute),
		CompletedAt: &completed,
	})
	if err != nil {
		t.Fatalf("RecordDeployment error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/status/myapp", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Project string
		History []tracker.Record
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if body.Project != "myapp" {
		t.Errorf("Expected project myapp, got %q", body.Project)
	}
	if len(body.History) != 1 {
		t.Fatalf("Expected 1 history record, got %d", len(body.History))
	}
	if body.History[0].Revision != "abc123" {
		t.Errorf("Expected revision abc123, got %q", body.History[0].Revision)
	}
}

func TestHandleStatus_UnknownProject(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/status/nope", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rec.Code)
	}
}

func TestHandleDeploy(t *testing.T) {
	srv, deployer := newTestServer(t)

	body, _ := json.Marshal(map[string]interface{}{
		"action":  "go",
		"options": map[string]bool{"force": true},
	})
	req := httptest.NewRequest(http.MethodPost, "/deploy/myapp/staging", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	srv.Wait()

	deployer.mu.Lock()
	defer deployer.mu.Unlock()
	if len(deployer.calls) != 1 {
		t.Fatalf("Expected 1 deploy call, got %d", len(deployer.calls))
	}
	call := deployer.calls[0]
	if call.project != "myapp" || call.env != "staging" {
		t.Errorf("Unexpected target: %s/%s", call.project, call.env)
	}
	if call.action != deployment.ActionGo {
		t.Errorf("Expected action go, got %q", call.action)
	}
	if !call.options["force"] {
		t.Errorf("Expected force option to be set")
	}
}

func TestHandleDeploy_DefaultsToDryRun(t *testing.T) {
	srv, deployer := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/deploy/myapp/staging", bytes.NewReader(nil))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", rec.Code)
	}

	srv.Wait()

	deployer.mu.Lock()
	defer deployer.mu.Unlock()
	if len(deployer.calls) != 1 {
		t.Fatalf("Expected 1 deploy call, got %d", len(deployer.calls))
	}
	if deployer.calls[0].action != deployment.ActionDryRun {
		t.Errorf("Expected action dry-run, got %q", deployer.calls[0].action)
	}
}

func TestHandleDeploy_UnknownProject(t *testing.T) {
	srv, deployer := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/deploy/nope/staging", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rec.Code)
	}

	deployer.mu.Lock()
	defer deployer.mu.Unlock()
	if len(deployer.calls) != 0 {
		t.Errorf("Expected no deploy calls, got %d", len(deployer.calls))
	}
}

func TestHandleDeploy_InvalidAction(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"action": "launch"})
	req := httptest.NewRequest(http.MethodPost, "/deploy/myapp/staging", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
}
