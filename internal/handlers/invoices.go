package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"timebill/internal/billing"
	"timebill/internal/models"
	"timebill/internal/storage"
)

// snapshot is the fresh read of everything the billing core needs. It is
// re-derived on every request so eligibility always reflects the store.
type snapshot struct {
	dir    *billing.Directory
	groups map[string][]models.TimeEntry
}

func (h *Handlers) loadSnapshot() (*snapshot, error) {
	entries, err := h.db.ListTimeEntries(storage.EntryFilter{})
	if err != nil {
		return nil, err
	}
	invoices, err := h.db.ListInvoices()
	if err != nil {
		return nil, err
	}
	projects, err := h.db.ListProjects()
	if err != nil {
		return nil, err
	}
	clients, err := h.db.ListClients()
	if err != nil {
		return nil, err
	}

	dir := billing.NewDirectory(projects, clients)
	eligible := billing.EligibleEntries(entries, invoices)
	return &snapshot{
		dir:    dir,
		groups: billing.GroupByClient(eligible, dir),
	}, nil
}

// clientGroup is one client's slice of the eligible entries.
type clientGroup struct {
	ClientID   string             `json:"clientId"`
	ClientName string             `json:"clientName"`
	Entries    []models.TimeEntry `json:"entries"`
}

// EligibleEntries returns approved, billable, not-yet-invoiced entries
// grouped by client. With ?clientId= only that client's group is returned.
func (h *Handlers) EligibleEntries(w http.ResponseWriter, r *http.Request) {
	snap, err := h.loadSnapshot()
	if err != nil {
		h.log.Error("load billing snapshot", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if clientID := r.URL.Query().Get("clientId"); clientID != "" {
		entries := snap.groups[clientID]
		if entries == nil {
			entries = []models.TimeEntry{}
		}
		h.respondJSON(w, http.StatusOK, clientGroup{
			ClientID:   clientID,
			ClientName: snap.dir.ClientName(clientID),
			Entries:    entries,
		})
		return
	}

	groups := make([]clientGroup, 0, len(snap.groups))
	for clientID, entries := range snap.groups {
		groups = append(groups, clientGroup{
			ClientID:   clientID,
			ClientName: snap.dir.ClientName(clientID),
			Entries:    entries,
		})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ClientName < groups[j].ClientName })
	h.respondJSON(w, http.StatusOK, groups)
}

type previewRequest struct {
	ClientID     string   `json:"clientId"`
	TimeEntryIDs []string `json:"timeEntryIds"`
}

// PreviewInvoice computes the totals for a would-be invoice without
// persisting anything. Safe to call on every selection change.
func (h *Handlers) PreviewInvoice(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snap, err := h.loadSnapshot()
	if err != nil {
		h.log.Error("load billing snapshot", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	summary := billing.ComputeSummary(req.TimeEntryIDs, snap.groups[req.ClientID], snap.dir, h.taxRate())
	h.respondJSON(w, http.StatusOK, summary)
}

type createInvoiceRequest struct {
	ClientID     string   `json:"clientId"`
	TimeEntryIDs []string `json:"timeEntryIds"`
	DueDate      string   `json:"dueDate"`
	Notes        string   `json:"notes"`
}

// CreateInvoice builds an invoice draft from the selected entries and
// persists it. Validation failures come back as 422 with the message the UI
// shows to the user.
func (h *Handlers) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	dueDate := time.Now().AddDate(0, 0, 30).Truncate(24 * time.Hour)
	if req.DueDate != "" {
		parsed, err := time.Parse(dateLayout, req.DueDate)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "dueDate must be formatted YYYY-MM-DD")
			return
		}
		dueDate = parsed
	}

	snap, err := h.loadSnapshot()
	if err != nil {
		h.log.Error("load billing snapshot", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	candidates := snap.groups[req.ClientID]
	draft, err := billing.BuildDraft(req.TimeEntryIDs, req.ClientID, dueDate, req.Notes, candidates, snap.dir, billing.Options{
		Currency:     h.cfg.Currency,
		PaymentTerms: h.cfg.PaymentTerms,
		TaxRate:      decimal.NewNullDecimal(h.taxRate()),
	})
	if errors.Is(err, billing.ErrNoEntriesSelected) || errors.Is(err, billing.ErrNoClientSelected) {
		h.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		h.log.Error("build invoice draft", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if len(draft.TimeEntryIDs) == 0 {
		h.respondError(w, http.StatusUnprocessableEntity, "selected entries are no longer eligible")
		return
	}

	summary := billing.ComputeSummary(req.TimeEntryIDs, candidates, snap.dir, draft.TaxRate)

	created, err := h.db.CreateInvoice(&models.Invoice{
		ClientID:     draft.ClientID,
		DueDate:      draft.DueDate,
		Notes:        draft.Notes,
		PaymentTerms: draft.PaymentTerms,
		Currency:     draft.Currency,
		TaxRate:      draft.TaxRate,
		Subtotal:     summary.TotalAmount,
		Tax:          summary.Tax,
		Total:        summary.GrandTotal,
		TimeEntryIDs: draft.TimeEntryIDs,
		ProjectIDs:   draft.ProjectIDs,
		LineItems:    draft.AdditionalLineItems,
	})
	if err != nil {
		h.log.Error("persist invoice", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.log.Info("invoice created", "invoice", created.InvoiceNumber, "client", created.ClientID,
		"entries", len(created.TimeEntryIDs), "total", created.Total)
	h.respondJSON(w, http.StatusCreated, created)
}

// ListInvoices returns all invoices, newest first.
func (h *Handlers) ListInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.db.ListInvoices()
	if err != nil {
		h.log.Error("list invoices", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if invoices == nil {
		invoices = []models.Invoice{}
	}
	h.respondJSON(w, http.StatusOK, invoices)
}

// GetInvoice returns one invoice with its line items.
func (h *Handlers) GetInvoice(w http.ResponseWriter, r *http.Request) {
	invoice, err := h.db.GetInvoice(chi.URLParam(r, "id"))
	if errors.Is(err, sql.ErrNoRows) {
		h.respondError(w, http.StatusNotFound, "invoice not found")
		return
	}
	if err != nil {
		h.log.Error("get invoice", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.respondJSON(w, http.StatusOK, invoice)
}

func (h *Handlers) taxRate() decimal.Decimal {
	if h.cfg.TaxRate.Valid {
		return h.cfg.TaxRate.Decimal
	}
	return billing.DefaultTaxRate
}
