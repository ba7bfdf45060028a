package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EntryStatus is the approval state of a time entry.
type EntryStatus string

const (
	EntryStatusDraft     EntryStatus = "draft"
	EntryStatusSubmitted EntryStatus = "submitted"
	EntryStatusApproved  EntryStatus = "approved"
	EntryStatusRejected  EntryStatus = "rejected"
)

// Valid reports whether s is a known entry status.
func (s EntryStatus) Valid() bool {
	switch s {
	case EntryStatusDraft, EntryStatusSubmitted, EntryStatusApproved, EntryStatusRejected:
		return true
	}
	return false
}

// CanTransition reports whether an entry may move from s to next.
// Draft and rejected entries can be (re)submitted; submitted entries can be
// approved or rejected; approved is terminal.
func (s EntryStatus) CanTransition(next EntryStatus) bool {
	switch s {
	case EntryStatusDraft, EntryStatusRejected:
		return next == EntryStatusSubmitted
	case EntryStatusSubmitted:
		return next == EntryStatusApproved || next == EntryStatusRejected
	}
	return false
}

// TimeEntry represents time logged by a user against a project.
// Duration is in minutes.
type TimeEntry struct {
	ID          string      `json:"id"`
	UserID      int64       `json:"userId"`
	ProjectID   string      `json:"projectId"`
	Date        time.Time   `json:"date"`
	Duration    int         `json:"duration"`
	Description string      `json:"description"`
	Billable    bool        `json:"isBillable"`
	Status      EntryStatus `json:"status"`
}

// Editable reports whether the entry may still be modified by its owner.
func (e *TimeEntry) Editable() bool {
	return e.Status == EntryStatusDraft || e.Status == EntryStatusRejected
}

// Validate returns an error if the entry is not acceptable for saving.
func (e *TimeEntry) Validate() error {
	if e.ProjectID == "" {
		return fmt.Errorf("project is required")
	}
	if e.Duration <= 0 {
		return fmt.Errorf("duration must be a positive number of minutes")
	}
	if e.Date.IsZero() {
		return fmt.Errorf("date is required")
	}
	return nil
}

// Project represents billable work done for a client.
// DefaultHourlyRate may be unset; invoicing falls back to a default rate.
type Project struct {
	ID                string              `json:"id"`
	ClientID          string              `json:"clientId"`
	Name              string              `json:"name"`
	DefaultHourlyRate decimal.NullDecimal `json:"defaultHourlyRate"`
}

// Client represents a billable customer.
type Client struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// InvoiceStatus is the lifecycle state of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusDraft InvoiceStatus = "draft"
	InvoiceStatusSent  InvoiceStatus = "sent"
	InvoiceStatusPaid  InvoiceStatus = "paid"
)

// LineItem is one billable row on an invoice, derived from one time entry.
type LineItem struct {
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
	Amount      decimal.Decimal `json:"amount"`
	Taxable     bool            `json:"taxable"`
}

// Invoice represents a persisted invoice with its entry links and line items.
type Invoice struct {
	ID            string          `json:"id"`
	InvoiceNumber string          `json:"invoiceNumber"`
	ClientID      string          `json:"clientId"`
	Status        InvoiceStatus   `json:"status"`
	DueDate       time.Time       `json:"dueDate"`
	Notes         string          `json:"notes"`
	PaymentTerms  string          `json:"paymentTerms"`
	Currency      string          `json:"currency"`
	TaxRate       decimal.Decimal `json:"taxRate"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	TimeEntryIDs  []string        `json:"timeEntryIds"`
	ProjectIDs    []string        `json:"projectIds"`
	LineItems     []LineItem      `json:"lineItems"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Covers reports whether the invoice already references the given time entry.
func (i *Invoice) Covers(entryID string) bool {
	for _, id := range i.TimeEntryIDs {
		if id == entryID {
			return true
		}
	}
	return false
}

// Role controls what a user may do in the approval workflow.
type Role string

const (
	RoleMember  Role = "member"
	RoleManager Role = "manager"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleMember || r == RoleManager
}

// User represents a user account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session represents a user session.
type Session struct {
	Token     string    `json:"token"`
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}
