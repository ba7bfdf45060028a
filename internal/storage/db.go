package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"timebill/internal/models"

	// Import sqlite driver
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection.
type DB struct {
	conn *sql.DB
}

// NewDB opens a database connection and runs migrations.
func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(); err != nil {
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		return nil, err
	}

	return db, nil
}

func (db *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'member',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			expires_at DATETIME NOT NULL,
			last_activity DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS clients (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			client_id TEXT NOT NULL,
			name TEXT NOT NULL,
			hourly_rate TEXT,
			FOREIGN KEY (client_id) REFERENCES clients(id)
		)`,
		`CREATE TABLE IF NOT EXISTS time_entries (
			id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			project_id TEXT NOT NULL,
			entry_date DATETIME NOT NULL,
			duration_min INTEGER NOT NULL,
			description TEXT NOT NULL,
			billable INTEGER NOT NULL DEFAULT 1,
			status TEXT NOT NULL DEFAULT 'draft',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(id)
		)`,
		`CREATE TABLE IF NOT EXISTS invoices (
			id TEXT PRIMARY KEY,
			invoice_number TEXT UNIQUE NOT NULL,
			client_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'draft',
			due_date DATETIME NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			payment_terms TEXT NOT NULL DEFAULT '',
			currency TEXT NOT NULL DEFAULT 'USD',
			tax_rate TEXT NOT NULL DEFAULT '0',
			subtotal TEXT NOT NULL DEFAULT '0',
			tax TEXT NOT NULL DEFAULT '0',
			total TEXT NOT NULL DEFAULT '0',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (client_id) REFERENCES clients(id)
		)`,
		`CREATE TABLE IF NOT EXISTS invoice_entries (
			entry_id TEXT PRIMARY KEY,
			invoice_id TEXT NOT NULL,
			FOREIGN KEY (entry_id) REFERENCES time_entries(id),
			FOREIGN KEY (invoice_id) REFERENCES invoices(id)
		)`,
		`CREATE TABLE IF NOT EXISTS invoice_line_items (
			invoice_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			item_type TEXT NOT NULL,
			description TEXT NOT NULL,
			quantity TEXT NOT NULL,
			rate TEXT NOT NULL,
			amount TEXT NOT NULL,
			taxable INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (invoice_id, position),
			FOREIGN KEY (invoice_id) REFERENCES invoices(id)
		)`,
	}

	for _, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			return err
		}
	}

	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// CreateClient inserts a new client and returns it with a generated id.
func (db *DB) CreateClient(name string) (*models.Client, error) {
	c := &models.Client{ID: uuid.NewString(), Name: name}
	_, err := db.conn.Exec("INSERT INTO clients (id, name) VALUES (?, ?)", c.ID, c.Name)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetClient retrieves a single client by ID.
func (db *DB) GetClient(id string) (*models.Client, error) {
	row := db.conn.QueryRow("SELECT id, name FROM clients WHERE id = ?", id)

	var c models.Client
	if err := row.Scan(&c.ID, &c.Name); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListClients retrieves all clients ordered by name.
func (db *DB) ListClients() ([]models.Client, error) {
	rows, err := db.conn.Query("SELECT id, name FROM clients ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []models.Client
	for rows.Next() {
		var c models.Client
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// CreateProject inserts a new project and returns it with a generated id.
func (db *DB) CreateProject(clientID, name string, hourlyRate decimal.NullDecimal) (*models.Project, error) {
	p := &models.Project{
		ID:                uuid.NewString(),
		ClientID:          clientID,
		Name:              name,
		DefaultHourlyRate: hourlyRate,
	}
	_, err := db.conn.Exec(
		"INSERT INTO projects (id, client_id, name, hourly_rate) VALUES (?, ?, ?, ?)",
		p.ID, p.ClientID, p.Name, p.DefaultHourlyRate,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetProject retrieves a single project by ID.
func (db *DB) GetProject(id string) (*models.Project, error) {
	row := db.conn.QueryRow("SELECT id, client_id, name, hourly_rate FROM projects WHERE id = ?", id)

	var p models.Project
	if err := row.Scan(&p.ID, &p.ClientID, &p.Name, &p.DefaultHourlyRate); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProjects retrieves all projects ordered by name.
func (db *DB) ListProjects() ([]models.Project, error) {
	rows, err := db.conn.Query("SELECT id, client_id, name, hourly_rate FROM projects ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.ClientID, &p.Name, &p.DefaultHourlyRate); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// CreateTimeEntry inserts a new time entry in draft status.
func (db *DB) CreateTimeEntry(e *models.TimeEntry) (*models.TimeEntry, error) {
	e.ID = uuid.NewString()
	e.Status = models.EntryStatusDraft
	_, err := db.conn.Exec(
		`INSERT INTO time_entries (id, user_id, project_id, entry_date, duration_min, description, billable, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.ProjectID, e.Date, e.Duration, e.Description, e.Billable, e.Status,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// GetTimeEntry retrieves a single time entry by ID.
func (db *DB) GetTimeEntry(id string) (*models.TimeEntry, error) {
	row := db.conn.QueryRow(
		`SELECT id, user_id, project_id, entry_date, duration_min, description, billable, status
		 FROM time_entries WHERE id = ?`, id)

	var e models.TimeEntry
	if err := row.Scan(&e.ID, &e.UserID, &e.ProjectID, &e.Date, &e.Duration, &e.Description, &e.Billable, &e.Status); err != nil {
		return nil, err
	}
	return &e, nil
}

// UpdateTimeEntry updates an existing entry's editable fields.
func (db *DB) UpdateTimeEntry(e *models.TimeEntry) error {
	_, err := db.conn.Exec(
		`UPDATE time_entries SET project_id = ?, entry_date = ?, duration_min = ?, description = ?, billable = ?
		 WHERE id = ?`,
		e.ProjectID, e.Date, e.Duration, e.Description, e.Billable, e.ID,
	)
	return err
}

// SetEntryStatus moves an entry to a new status.
func (db *DB) SetEntryStatus(id string, status models.EntryStatus) error {
	_, err := db.conn.Exec("UPDATE time_entries SET status = ? WHERE id = ?", status, id)
	return err
}

// EntryFilter narrows ListTimeEntries. Zero fields are ignored.
type EntryFilter struct {
	UserID int64
	Status models.EntryStatus
}

// ListTimeEntries retrieves time entries ordered by date then creation,
// optionally filtered by owner and status.
func (db *DB) ListTimeEntries(filter EntryFilter) ([]models.TimeEntry, error) {
	query := `SELECT id, user_id, project_id, entry_date, duration_min, description, billable, status
		 FROM time_entries WHERE 1=1`
	var args []any
	if filter.UserID != 0 {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	query += " ORDER BY entry_date, created_at"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.TimeEntry
	for rows.Next() {
		var e models.TimeEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.ProjectID, &e.Date, &e.Duration, &e.Description, &e.Billable, &e.Status); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CreateInvoice persists an invoice header, its line items and its time
// entry links in one transaction. The invoice id and sequential invoice
// number are assigned here; the entry links' primary key rejects an entry
// that already sits on another invoice.
func (db *DB) CreateInvoice(inv *models.Invoice) (*models.Invoice, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRow("SELECT COUNT(*) FROM invoices").Scan(&count); err != nil {
		return nil, err
	}

	inv.ID = uuid.NewString()
	inv.InvoiceNumber = fmt.Sprintf("INV-%04d", count+1)
	inv.Status = models.InvoiceStatusDraft
	inv.CreatedAt = time.Now()

	_, err = tx.Exec(
		`INSERT INTO invoices (id, invoice_number, client_id, status, due_date, notes, payment_terms, currency, tax_rate, subtotal, tax, total, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.InvoiceNumber, inv.ClientID, inv.Status, inv.DueDate, inv.Notes,
		inv.PaymentTerms, inv.Currency, inv.TaxRate, inv.Subtotal, inv.Tax, inv.Total, inv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	for _, entryID := range inv.TimeEntryIDs {
		if _, err := tx.Exec(
			"INSERT INTO invoice_entries (entry_id, invoice_id) VALUES (?, ?)",
			entryID, inv.ID,
		); err != nil {
			return nil, fmt.Errorf("entry %s cannot be invoiced twice: %w", entryID, err)
		}
	}

	for i, item := range inv.LineItems {
		if _, err := tx.Exec(
			`INSERT INTO invoice_line_items (invoice_id, position, item_type, description, quantity, rate, amount, taxable)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			inv.ID, i, item.Type, item.Description, item.Quantity, item.Rate, item.Amount, item.Taxable,
		); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return inv, nil
}

// GetInvoice retrieves an invoice with its entry links and line items.
func (db *DB) GetInvoice(id string) (*models.Invoice, error) {
	row := db.conn.QueryRow(
		`SELECT id, invoice_number, client_id, status, due_date, notes, payment_terms, currency, tax_rate, subtotal, tax, total, created_at
		 FROM invoices WHERE id = ?`, id)

	var inv models.Invoice
	if err := row.Scan(&inv.ID, &inv.InvoiceNumber, &inv.ClientID, &inv.Status, &inv.DueDate, &inv.Notes,
		&inv.PaymentTerms, &inv.Currency, &inv.TaxRate, &inv.Subtotal, &inv.Tax, &inv.Total, &inv.CreatedAt); err != nil {
		return nil, err
	}
	if err := db.loadInvoiceDetails(&inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// ListInvoices retrieves all invoices, newest first, with entry links and
// line items loaded.
func (db *DB) ListInvoices() ([]models.Invoice, error) {
	rows, err := db.conn.Query(
		`SELECT id, invoice_number, client_id, status, due_date, notes, payment_terms, currency, tax_rate, subtotal, tax, total, created_at
		 FROM invoices ORDER BY created_at DESC, invoice_number DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []models.Invoice
	for rows.Next() {
		var inv models.Invoice
		if err := rows.Scan(&inv.ID, &inv.InvoiceNumber, &inv.ClientID, &inv.Status, &inv.DueDate, &inv.Notes,
			&inv.PaymentTerms, &inv.Currency, &inv.TaxRate, &inv.Subtotal, &inv.Tax, &inv.Total, &inv.CreatedAt); err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range invoices {
		if err := db.loadInvoiceDetails(&invoices[i]); err != nil {
			return nil, err
		}
	}
	return invoices, nil
}

func (db *DB) loadInvoiceDetails(inv *models.Invoice) error {
	inv.TimeEntryIDs = []string{}
	inv.ProjectIDs = []string{}
	inv.LineItems = []models.LineItem{}

	rows, err := db.conn.Query(
		`SELECT e.id, e.project_id FROM invoice_entries ie
		 JOIN time_entries e ON e.id = ie.entry_id
		 WHERE ie.invoice_id = ?
		 ORDER BY e.entry_date, e.created_at`, inv.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	for rows.Next() {
		var entryID, projectID string
		if err := rows.Scan(&entryID, &projectID); err != nil {
			return err
		}
		inv.TimeEntryIDs = append(inv.TimeEntryIDs, entryID)
		if _, ok := seen[projectID]; !ok {
			seen[projectID] = struct{}{}
			inv.ProjectIDs = append(inv.ProjectIDs, projectID)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	itemRows, err := db.conn.Query(
		`SELECT item_type, description, quantity, rate, amount, taxable
		 FROM invoice_line_items WHERE invoice_id = ? ORDER BY position`, inv.ID)
	if err != nil {
		return err
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var item models.LineItem
		if err := itemRows.Scan(&item.Type, &item.Description, &item.Quantity, &item.Rate, &item.Amount, &item.Taxable); err != nil {
			return err
		}
		inv.LineItems = append(inv.LineItems, item)
	}
	return itemRows.Err()
}
