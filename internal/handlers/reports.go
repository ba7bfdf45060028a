package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"timebill/internal/billing"
	"timebill/internal/storage"
)

// ReportProjectItem represents a project's share of a monthly report.
type ReportProjectItem struct {
	ProjectID  string          `json:"projectId"`
	Name       string          `json:"name"`
	Entries    int             `json:"entries"`
	Hours      decimal.Decimal `json:"hours"`
	Amount     decimal.Decimal `json:"amount"`
	Percentage decimal.Decimal `json:"percentage"`
}

// TimeReportResponse is the monthly time report.
type TimeReportResponse struct {
	Year        int                 `json:"year"`
	Month       int                 `json:"month"`
	MonthName   string              `json:"monthName"`
	TotalHours  decimal.Decimal     `json:"totalHours"`
	TotalAmount decimal.Decimal     `json:"totalAmount"`
	Projects    []ReportProjectItem `json:"projects"`
	PrevYear    int                 `json:"prevYear"`
	PrevMonth   int                 `json:"prevMonth"`
	NextYear    int                 `json:"nextYear"`
	NextMonth   int                 `json:"nextMonth"`
}

// TimeReport summarizes logged time per project for one month. Year and
// month come from query params and default to the current month. Amounts
// use each project's rate with the usual fallback; all statuses count, this
// is a workload report, not an invoice.
func (h *Handlers) TimeReport(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	year := now.Year()
	month := int(now.Month())

	if yearStr := r.URL.Query().Get("year"); yearStr != "" {
		if y, err := strconv.Atoi(yearStr); err == nil {
			year = y
		}
	}
	if monthStr := r.URL.Query().Get("month"); monthStr != "" {
		if m, err := strconv.Atoi(monthStr); err == nil && m >= 1 && m <= 12 {
			month = m
		}
	}

	entries, err := h.db.ListTimeEntries(storage.EntryFilter{})
	if err != nil {
		h.log.Error("list entries for report", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	projects, err := h.db.ListProjects()
	if err != nil {
		h.log.Error("list projects for report", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	dir := billing.NewDirectory(projects, nil)

	// Select the month's entries, then total per project via the billing
	// core so rates and fallbacks match invoicing exactly.
	var ids []string
	selected := entries[:0:0]
	for _, e := range entries {
		if e.Date.Year() == year && int(e.Date.Month()) == month {
			selected = append(selected, e)
			ids = append(ids, e.ID)
		}
	}
	summary := billing.ComputeSummary(ids, selected, dir, decimal.Zero)

	counts := make(map[string]int)
	for _, e := range selected {
		counts[e.ProjectID]++
	}

	items := make([]ReportProjectItem, 0, len(summary.Projects))
	hundred := decimal.NewFromInt(100)
	for _, p := range summary.Projects {
		percentage := decimal.Zero
		if summary.TotalHours.IsPositive() {
			percentage = p.Hours.Mul(hundred).Div(summary.TotalHours).Round(1)
		}
		items = append(items, ReportProjectItem{
			ProjectID:  p.ProjectID,
			Name:       p.Name,
			Entries:    counts[p.ProjectID],
			Hours:      p.Hours,
			Amount:     p.Amount,
			Percentage: percentage,
		})
	}

	// Calculate previous and next month
	prevDate := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	nextDate := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)

	h.respondJSON(w, http.StatusOK, TimeReportResponse{
		Year:        year,
		Month:       month,
		MonthName:   time.Month(month).String(),
		TotalHours:  summary.TotalHours,
		TotalAmount: summary.TotalAmount,
		Projects:    items,
		PrevYear:    prevDate.Year(),
		PrevMonth:   int(prevDate.Month()),
		NextYear:    nextDate.Year(),
		NextMonth:   int(nextDate.Month()),
	})
}
