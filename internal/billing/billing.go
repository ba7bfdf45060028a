// Package billing selects invoiceable time entries and computes invoice
// totals. Everything here is a pure function over snapshots passed in by the
// caller: no I/O, no hidden state, safe to recompute on every request.
package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"timebill/internal/models"
)

var (
	// ErrNoEntriesSelected is returned by BuildDraft when no time entries
	// were selected for the invoice.
	ErrNoEntriesSelected = errors.New("no time entries selected")
	// ErrNoClientSelected is returned by BuildDraft when no client was
	// chosen for the invoice.
	ErrNoClientSelected = errors.New("no client selected")
)

var (
	// FallbackHourlyRate applies to entries whose project has no rate set
	// or cannot be resolved.
	FallbackHourlyRate = decimal.NewFromInt(100)
	// DefaultTaxRate is the tax applied when none is configured.
	DefaultTaxRate = decimal.NewFromFloat(0.10)

	minutesPerHour = decimal.NewFromInt(60)
)

// UnknownProjectName labels breakdown rows for entries whose project no
// longer resolves.
const UnknownProjectName = "Unknown Project"

// Directory is a read-only lookup of projects and clients by id. Lookups
// report not-found instead of failing; callers apply the documented
// fallbacks.
type Directory struct {
	projects map[string]models.Project
	clients  map[string]models.Client
}

// NewDirectory builds a Directory from project and client snapshots.
func NewDirectory(projects []models.Project, clients []models.Client) *Directory {
	d := &Directory{
		projects: make(map[string]models.Project, len(projects)),
		clients:  make(map[string]models.Client, len(clients)),
	}
	for _, p := range projects {
		d.projects[p.ID] = p
	}
	for _, c := range clients {
		d.clients[c.ID] = c
	}
	return d
}

// Project looks up a project by id.
func (d *Directory) Project(id string) (models.Project, bool) {
	p, ok := d.projects[id]
	return p, ok
}

// Client looks up a client by id.
func (d *Directory) Client(id string) (models.Client, bool) {
	c, ok := d.clients[id]
	return c, ok
}

// ClientName returns the client's display name, or the empty string if the
// client is unknown.
func (d *Directory) ClientName(id string) string {
	return d.clients[id].Name
}

// EligibleEntries returns the entries that can still be invoiced: approved,
// billable, and not yet referenced by any existing invoice. Input order is
// preserved. Both collections are scanned in full on every call so the
// result always reflects the snapshot handed in.
func EligibleEntries(entries []models.TimeEntry, invoices []models.Invoice) []models.TimeEntry {
	invoiced := make(map[string]struct{})
	for _, inv := range invoices {
		for _, id := range inv.TimeEntryIDs {
			invoiced[id] = struct{}{}
		}
	}

	eligible := make([]models.TimeEntry, 0, len(entries))
	for _, e := range entries {
		if e.Status != models.EntryStatusApproved || !e.Billable {
			continue
		}
		if _, ok := invoiced[e.ID]; ok {
			continue
		}
		eligible = append(eligible, e)
	}
	return eligible
}

// GroupByClient partitions entries by the client owning their project.
// Entries whose project cannot be resolved are dropped: an entry pointing at
// a deleted project is excluded from invoicing rather than failing the whole
// operation. Entry order is preserved within each group.
func GroupByClient(entries []models.TimeEntry, dir *Directory) map[string][]models.TimeEntry {
	groups := make(map[string][]models.TimeEntry)
	for _, e := range entries {
		project, ok := dir.Project(e.ProjectID)
		if !ok {
			continue
		}
		groups[project.ClientID] = append(groups[project.ClientID], e)
	}
	return groups
}

// ProjectTotal is the per-project slice of an invoice summary.
type ProjectTotal struct {
	ProjectID string          `json:"projectId"`
	Name      string          `json:"name"`
	Hours     decimal.Decimal `json:"hours"`
	Rate      decimal.Decimal `json:"rate"`
	Amount    decimal.Decimal `json:"amount"`
}

// Summary holds the computed totals for a selection of time entries.
type Summary struct {
	TotalHours  decimal.Decimal `json:"totalHours"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	TaxRate     decimal.Decimal `json:"taxRate"`
	Tax         decimal.Decimal `json:"tax"`
	GrandTotal  decimal.Decimal `json:"grandTotal"`
	Projects    []ProjectTotal  `json:"projectBreakdown"`
}

// rateFor resolves the hourly rate for an entry's project, falling back to
// FallbackHourlyRate when the project is unknown or carries no rate.
func rateFor(project models.Project, ok bool) decimal.Decimal {
	if ok && project.DefaultHourlyRate.Valid {
		return project.DefaultHourlyRate.Decimal
	}
	return FallbackHourlyRate
}

// hoursOf converts an entry's duration in minutes to fractional hours.
// 90 minutes is exactly 1.5 hours.
func hoursOf(e models.TimeEntry) decimal.Decimal {
	return decimal.NewFromInt(int64(e.Duration)).Div(minutesPerHour)
}

// ComputeSummary computes totals for the entries in candidates whose ids are
// in selectedIDs. The per-project breakdown is ordered by first appearance;
// a project's rate is assumed constant within the batch, the last seen rate
// wins. Pure and deterministic: identical inputs yield identical output.
func ComputeSummary(selectedIDs []string, candidates []models.TimeEntry, dir *Directory, taxRate decimal.Decimal) Summary {
	selected := make(map[string]struct{}, len(selectedIDs))
	for _, id := range selectedIDs {
		selected[id] = struct{}{}
	}

	summary := Summary{
		TaxRate:  taxRate,
		Projects: []ProjectTotal{},
	}
	index := make(map[string]int)

	for _, e := range candidates {
		if _, ok := selected[e.ID]; !ok {
			continue
		}

		project, found := dir.Project(e.ProjectID)
		rate := rateFor(project, found)
		hours := hoursOf(e)
		amount := hours.Mul(rate)

		name := UnknownProjectName
		if found {
			name = project.Name
		}

		i, ok := index[e.ProjectID]
		if !ok {
			i = len(summary.Projects)
			index[e.ProjectID] = i
			summary.Projects = append(summary.Projects, ProjectTotal{
				ProjectID: e.ProjectID,
				Name:      name,
			})
		}
		summary.Projects[i].Hours = summary.Projects[i].Hours.Add(hours)
		summary.Projects[i].Rate = rate
		summary.Projects[i].Amount = summary.Projects[i].Amount.Add(amount)

		summary.TotalHours = summary.TotalHours.Add(hours)
		summary.TotalAmount = summary.TotalAmount.Add(amount)
	}

	summary.Tax = summary.TotalAmount.Mul(taxRate)
	summary.GrandTotal = summary.TotalAmount.Add(summary.Tax)
	return summary
}

// Options carries the configurable invoice defaults. Unset values fall back
// to USD, Net 30 and DefaultTaxRate. TaxRate is nullable so an explicitly
// configured zero rate is honored rather than treated as unset.
type Options struct {
	Currency     string
	PaymentTerms string
	TaxRate      decimal.NullDecimal
}

func (o Options) withDefaults() Options {
	if o.Currency == "" {
		o.Currency = "USD"
	}
	if o.PaymentTerms == "" {
		o.PaymentTerms = "Net 30"
	}
	if !o.TaxRate.Valid {
		o.TaxRate = decimal.NewNullDecimal(DefaultTaxRate)
	}
	return o
}

// Draft is the invoice creation request handed to the persistence layer.
// Field names are part of the boundary contract.
type Draft struct {
	ClientID            string            `json:"clientId"`
	TimeEntryIDs        []string          `json:"timeEntryIds"`
	ProjectIDs          []string          `json:"projectIds"`
	DueDate             time.Time         `json:"dueDate"`
	Notes               string            `json:"notes"`
	PaymentTerms        string            `json:"paymentTerms"`
	Currency            string            `json:"currency"`
	TaxRate             decimal.Decimal   `json:"taxRate"`
	AdditionalLineItems []models.LineItem `json:"additionalLineItems"`
}

// BuildDraft assembles an invoice draft from the selected entries. It fails
// with ErrNoEntriesSelected or ErrNoClientSelected on missing user input;
// both are recoverable and surfaced back to the caller. Construction only:
// nothing is persisted and candidates are not modified.
func BuildDraft(selectedIDs []string, clientID string, dueDate time.Time, notes string, candidates []models.TimeEntry, dir *Directory, opts Options) (*Draft, error) {
	if len(selectedIDs) == 0 {
		return nil, ErrNoEntriesSelected
	}
	if clientID == "" {
		return nil, ErrNoClientSelected
	}
	opts = opts.withDefaults()

	selected := make(map[string]struct{}, len(selectedIDs))
	for _, id := range selectedIDs {
		selected[id] = struct{}{}
	}

	draft := &Draft{
		ClientID:            clientID,
		TimeEntryIDs:        []string{},
		ProjectIDs:          []string{},
		DueDate:             dueDate,
		Notes:               notes,
		PaymentTerms:        opts.PaymentTerms,
		Currency:            opts.Currency,
		TaxRate:             opts.TaxRate.Decimal,
		AdditionalLineItems: []models.LineItem{},
	}

	seenProjects := make(map[string]struct{})
	for _, e := range candidates {
		if _, ok := selected[e.ID]; !ok {
			continue
		}

		project, found := dir.Project(e.ProjectID)
		rate := rateFor(project, found)
		hours := hoursOf(e)

		name := UnknownProjectName
		if found {
			name = project.Name
		}

		draft.TimeEntryIDs = append(draft.TimeEntryIDs, e.ID)
		if _, ok := seenProjects[e.ProjectID]; !ok {
			seenProjects[e.ProjectID] = struct{}{}
			draft.ProjectIDs = append(draft.ProjectIDs, e.ProjectID)
		}
		draft.AdditionalLineItems = append(draft.AdditionalLineItems, models.LineItem{
			Type:        "time",
			Description: fmt.Sprintf("%s: %s", name, e.Description),
			Quantity:    hours,
			Rate:        rate,
			Amount:      hours.Mul(rate),
			Taxable:     true,
		})
	}

	return draft, nil
}
