package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"shipway/internal/deployment"
	"shipway/internal/project"
)

// historyLimit bounds how many records the status endpoint returns.
const historyLimit = 20

// deployRequest is the JSON body of a trigger request.
type deployRequest struct {
	Action  string          `json:"action"`
	Options map[string]bool `json:"options"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// HandleHealth reports server liveness.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleStatus returns the recent deployment history of a project.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	projectName := chi.URLParam(r, "projectName")

	if _, err := s.Registry.Get(projectName); err != nil {
		var notFound *project.NotFoundError
		if errors.As(err, &notFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	records, err := s.Store.History(r.Context(), projectName, historyLimit)
	if err != nil {
		s.Logger.Error("Failed to load deployment history", "project", projectName, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load history"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"project": projectName,
		"history": records,
	})
}

// HandleDeploy triggers a deployment. The pipeline runs in the
// background; the response only acknowledges the trigger.
func (s *Server) HandleDeploy(w http.ResponseWriter, r *http.Request) {
	projectName := chi.URLParam(r, "projectName")
	envName := chi.URLParam(r, "envName")

	if _, err := s.Registry.Get(projectName); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}

	var req deployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Action == "" {
		req.Action = string(deployment.ActionDryRun)
	}

	action, err := deployment.ParseAction(req.Action)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s.Logger.Info("deployment triggered",
		"project", projectName, "environment", envName, "action", string(action))

	s.deployWg.Add(1)
	go func() {
		defer s.deployWg.Done()

		// Detached from the request: the deployment outlives the
		// HTTP exchange.
		ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
		defer cancel()

		if err := s.Deployer.Deploy(ctx, projectName, envName, action, req.Options); err != nil {
			s.Logger.Error("deployment failed",
				"project", projectName, "environment", envName, "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"message":     "deployment triggered",
		"project":     projectName,
		"environment": envName,
		"action":      string(action),
	})
}
