package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

// ListClients returns all clients.
func (h *Handlers) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.db.ListClients()
	if err != nil {
		h.log.Error("list clients", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.respondJSON(w, http.StatusOK, clients)
}

type createClientRequest struct {
	Name string `json:"name"`
}

// CreateClient adds a new client.
func (h *Handlers) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req createClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		h.respondError(w, http.StatusBadRequest, "client name is required")
		return
	}

	client, err := h.db.CreateClient(req.Name)
	if err != nil {
		h.log.Error("create client", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.respondJSON(w, http.StatusCreated, client)
}

// ListProjects returns all projects.
func (h *Handlers) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.db.ListProjects()
	if err != nil {
		h.log.Error("list projects", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.respondJSON(w, http.StatusOK, projects)
}

type createProjectRequest struct {
	ClientID          string              `json:"clientId"`
	Name              string              `json:"name"`
	DefaultHourlyRate decimal.NullDecimal `json:"defaultHourlyRate"`
}

// CreateProject adds a new project for an existing client.
func (h *Handlers) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		h.respondError(w, http.StatusBadRequest, "project name is required")
		return
	}
	if req.ClientID == "" {
		h.respondError(w, http.StatusBadRequest, "client is required")
		return
	}
	if req.DefaultHourlyRate.Valid && req.DefaultHourlyRate.Decimal.IsNegative() {
		h.respondError(w, http.StatusBadRequest, "hourly rate cannot be negative")
		return
	}

	if _, err := h.db.GetClient(req.ClientID); err != nil {
		h.respondError(w, http.StatusBadRequest, "unknown client")
		return
	}

	project, err := h.db.CreateProject(req.ClientID, req.Name, req.DefaultHourlyRate)
	if err != nil {
		h.log.Error("create project", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.respondJSON(w, http.StatusCreated, project)
}
