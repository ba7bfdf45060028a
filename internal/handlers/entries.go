package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"timebill/internal/models"
	"timebill/internal/storage"
)

const dateLayout = "2006-01-02"

type entryRequest struct {
	ProjectID   string `json:"projectId"`
	Date        string `json:"date"`
	Duration    int    `json:"duration"`
	Description string `json:"description"`
	Billable    bool   `json:"isBillable"`
}

func (req *entryRequest) toEntry(userID int64) (*models.TimeEntry, error) {
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		return nil, errors.New("date must be formatted YYYY-MM-DD")
	}
	e := &models.TimeEntry{
		UserID:      userID,
		ProjectID:   req.ProjectID,
		Date:        date,
		Duration:    req.Duration,
		Description: req.Description,
		Billable:    req.Billable,
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// ListEntries returns time entries, filtered by the optional status and
// mine=true query parameters.
func (h *Handlers) ListEntries(w http.ResponseWriter, r *http.Request) {
	filter := storage.EntryFilter{}
	if r.URL.Query().Get("mine") == "true" {
		filter.UserID = GetUserFromContext(r).ID
	}
	if s := r.URL.Query().Get("status"); s != "" {
		status := models.EntryStatus(s)
		if !status.Valid() {
			h.respondError(w, http.StatusBadRequest, "unknown status")
			return
		}
		filter.Status = status
	}

	entries, err := h.db.ListTimeEntries(filter)
	if err != nil {
		h.log.Error("list entries", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if entries == nil {
		entries = []models.TimeEntry{}
	}
	h.respondJSON(w, http.StatusOK, entries)
}

// CreateEntry logs new time for the authenticated user. Entries start as
// drafts.
func (h *Handlers) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, err := req.toEntry(GetUserFromContext(r).ID)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.db.GetProject(entry.ProjectID); err != nil {
		h.respondError(w, http.StatusBadRequest, "unknown project")
		return
	}

	created, err := h.db.CreateTimeEntry(entry)
	if err != nil {
		h.log.Error("create entry", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.respondJSON(w, http.StatusCreated, created)
}

// UpdateEntry modifies one of the caller's own draft or rejected entries.
func (h *Handlers) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.ownEntry(w, r)
	if !ok {
		return
	}
	if !existing.Editable() {
		h.respondError(w, http.StatusConflict, "only draft or rejected entries can be edited")
		return
	}

	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	updated, err := req.toEntry(existing.UserID)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	updated.ID = existing.ID
	updated.Status = existing.Status

	if err := h.db.UpdateTimeEntry(updated); err != nil {
		h.log.Error("update entry", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.respondJSON(w, http.StatusOK, updated)
}

// SubmitEntry sends one of the caller's own entries for approval.
func (h *Handlers) SubmitEntry(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.ownEntry(w, r)
	if !ok {
		return
	}
	h.transitionEntry(w, entry, models.EntryStatusSubmitted)
}

// ListApprovals returns the entries waiting for a manager's decision.
func (h *Handlers) ListApprovals(w http.ResponseWriter, r *http.Request) {
	entries, err := h.db.ListTimeEntries(storage.EntryFilter{Status: models.EntryStatusSubmitted})
	if err != nil {
		h.log.Error("list approvals", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if entries == nil {
		entries = []models.TimeEntry{}
	}
	h.respondJSON(w, http.StatusOK, entries)
}

// ApproveEntry marks a submitted entry as approved.
func (h *Handlers) ApproveEntry(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.loadEntry(w, r)
	if !ok {
		return
	}
	h.transitionEntry(w, entry, models.EntryStatusApproved)
}

// RejectEntry sends a submitted entry back to its owner.
func (h *Handlers) RejectEntry(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.loadEntry(w, r)
	if !ok {
		return
	}
	h.transitionEntry(w, entry, models.EntryStatusRejected)
}

func (h *Handlers) transitionEntry(w http.ResponseWriter, entry *models.TimeEntry, next models.EntryStatus) {
	if !entry.Status.CanTransition(next) {
		h.respondError(w, http.StatusConflict, "entry cannot move from "+string(entry.Status)+" to "+string(next))
		return
	}
	if err := h.db.SetEntryStatus(entry.ID, next); err != nil {
		h.log.Error("set entry status", "error", err, "entry", entry.ID)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	entry.Status = next
	h.respondJSON(w, http.StatusOK, entry)
}

func (h *Handlers) loadEntry(w http.ResponseWriter, r *http.Request) (*models.TimeEntry, bool) {
	entry, err := h.db.GetTimeEntry(chi.URLParam(r, "id"))
	if errors.Is(err, sql.ErrNoRows) {
		h.respondError(w, http.StatusNotFound, "entry not found")
		return nil, false
	}
	if err != nil {
		h.log.Error("get entry", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
		return nil, false
	}
	return entry, true
}

func (h *Handlers) ownEntry(w http.ResponseWriter, r *http.Request) (*models.TimeEntry, bool) {
	entry, ok := h.loadEntry(w, r)
	if !ok {
		return nil, false
	}
	if entry.UserID != GetUserFromContext(r).ID {
		h.respondError(w, http.StatusForbidden, "not your entry")
		return nil, false
	}
	return entry, true
}
