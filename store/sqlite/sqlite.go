/*
Package sqlite provides the SQLite-backed implementation of billing.Store.

PURPOSE:
  Production persistence for the billing engine. In production the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  billing.Store:   All five entity groups (entries, cards, invoices,
                   payments, limits)
  billing.TxStore: WithTx for atomic multi-step sequences

KEY TABLES:
  ledger_entries:   Financial movements
  cards:            Per-card billing configuration
  invoices:         One row per (card, period) statement
  invoice_payments: Append-only payment records
  category_limits:  Monthly spend ceilings

UNIQUENESS AS CONCURRENCY CONTROL:
  idx_invoices_card_period enforces at most one invoice per (card, period).
  UpsertInvoice runs INSERT ... ON CONFLICT DO NOTHING and then reads the
  surviving row, so two racing writers both end up holding the same invoice.
  idx_limits_user_category_period does the same for limits.

MONEY:
  Monetary values are stored as decimal strings and all arithmetic happens
  in Go via shopspring/decimal. Aggregations select the raw strings and sum
  with decimals - SQLite's SUM would coerce to float.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety within the process; WithTx holds the
  write lock for the whole transaction. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/fluxo.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - billing/store.go: Interface definitions
  - billing/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/fluxo/finance-engine/billing"
)

// dateFormat stores day-granular dates; intra-day ordering never matters
// for billing periods.
const dateFormat = "2006-01-02"

// Store implements billing.Store and billing.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// dbtx is satisfied by both *sql.DB and *sql.Tx, so every query helper
// works inside and outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Cards (billing configuration)
	CREATE TABLE IF NOT EXISTS cards (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		network TEXT,
		credit_limit TEXT,
		closing_day INTEGER NOT NULL DEFAULT 0,
		due_day INTEGER NOT NULL DEFAULT 0,
		color TEXT,
		notes TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cards_user ON cards(user_id);

	-- Ledger entries
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		card_id TEXT,
		category_id TEXT,
		amount TEXT NOT NULL,
		kind TEXT NOT NULL,
		method TEXT NOT NULL,
		occurred_at TEXT NOT NULL,
		paid BOOLEAN NOT NULL DEFAULT FALSE,
		invoice_id TEXT,
		description TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_user_date
		ON ledger_entries(user_id, occurred_at);

	-- Invoice total recompute (hot path)
	CREATE INDEX IF NOT EXISTS idx_entries_invoice
		ON ledger_entries(invoice_id) WHERE invoice_id IS NOT NULL;

	-- Category limit recompute (hot path)
	CREATE INDEX IF NOT EXISTS idx_entries_user_category_kind
		ON ledger_entries(user_id, category_id, kind, occurred_at);

	-- Invoices
	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		card_id TEXT NOT NULL,
		period TEXT NOT NULL,
		closing_date TEXT NOT NULL,
		due_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'OPEN',
		total_amount TEXT NOT NULL DEFAULT '0',
		paid_amount TEXT NOT NULL DEFAULT '0',
		closed_at TEXT,
		created_at TEXT NOT NULL
	);

	-- At most one invoice per (card, period); UpsertInvoice races are
	-- decided here.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_invoices_card_period
		ON invoices(card_id, period);

	-- Closing sweep work list
	CREATE INDEX IF NOT EXISTS idx_invoices_period_status
		ON invoices(period, status);

	CREATE INDEX IF NOT EXISTS idx_invoices_card
		ON invoices(card_id, period DESC);

	-- Invoice payments (append-only)
	CREATE TABLE IF NOT EXISTS invoice_payments (
		id TEXT PRIMARY KEY,
		invoice_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		method TEXT NOT NULL,
		payer_id TEXT NOT NULL,
		note TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_invoice
		ON invoice_payments(invoice_id);

	-- Category limits
	CREATE TABLE IF NOT EXISTS category_limits (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		category_id TEXT NOT NULL,
		period TEXT NOT NULL,
		limit_amount TEXT NOT NULL,
		spent_amount TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- One limit per (user, category, period)
	CREATE UNIQUE INDEX IF NOT EXISTS idx_limits_user_category_period
		ON category_limits(user_id, category_id, period);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ENTRY STORE (billing.EntryStore interface)
// =============================================================================

func (s *Store) CreateEntry(ctx context.Context, e *billing.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createEntry(ctx, s.db, e)
}

func createEntry(ctx context.Context, db dbtx, e *billing.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries
		(id, user_id, card_id, category_id, amount, kind, method, occurred_at,
		 paid, invoice_id, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := db.ExecContext(ctx, query,
		e.ID,
		e.UserID,
		nullString(e.CardID),
		nullString(e.CategoryID),
		e.Amount.String(),
		e.Kind,
		e.Method,
		e.OccurredAt.UTC().Format(dateFormat),
		e.Paid,
		nullString(e.InvoiceID),
		nullString(e.Description),
		createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

func (s *Store) GetEntry(ctx context.Context, id string) (*billing.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEntry(ctx, s.db, id)
}

func getEntry(ctx context.Context, db dbtx, id string) (*billing.LedgerEntry, error) {
	entries, err := queryEntries(ctx, db, entrySelect+" WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

func (s *Store) ListEntries(ctx context.Context, f billing.EntryFilter) ([]billing.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listEntries(ctx, s.db, f)
}

func listEntries(ctx context.Context, db dbtx, f billing.EntryFilter) ([]billing.LedgerEntry, error) {
	query, args := entryFilterQuery(entrySelect, f)
	return queryEntries(ctx, db, query+" ORDER BY occurred_at ASC, created_at ASC", args...)
}

func (s *Store) SetEntryInvoice(ctx context.Context, entryID, invoiceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setEntryInvoice(ctx, s.db, entryID, invoiceID)
}

func setEntryInvoice(ctx context.Context, db dbtx, entryID, invoiceID string) error {
	_, err := db.ExecContext(ctx,
		"UPDATE ledger_entries SET invoice_id = ? WHERE id = ?",
		invoiceID, entryID,
	)
	return err
}

func (s *Store) EntriesByInvoice(ctx context.Context, invoiceID string, unpaidOnly bool) ([]billing.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return entriesByInvoice(ctx, s.db, invoiceID, unpaidOnly)
}

func entriesByInvoice(ctx context.Context, db dbtx, invoiceID string, unpaidOnly bool) ([]billing.LedgerEntry, error) {
	query := entrySelect + " WHERE invoice_id = ?"
	if unpaidOnly {
		query += " AND paid = FALSE"
	}
	return queryEntries(ctx, db, query+" ORDER BY occurred_at ASC, created_at ASC", invoiceID)
}

func (s *Store) MarkInvoiceEntriesPaid(ctx context.Context, invoiceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return markInvoiceEntriesPaid(ctx, s.db, invoiceID)
}

func markInvoiceEntriesPaid(ctx context.Context, db dbtx, invoiceID string) error {
	_, err := db.ExecContext(ctx,
		"UPDATE ledger_entries SET paid = TRUE WHERE invoice_id = ?",
		invoiceID,
	)
	return err
}

func (s *Store) SumEntries(ctx context.Context, f billing.EntryFilter) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sumEntries(ctx, s.db, f)
}

// sumEntries selects the amount strings and sums with decimals in Go.
// SQLite's SUM would round-trip through float64.
func sumEntries(ctx context.Context, db dbtx, f billing.EntryFilter) (decimal.Decimal, error) {
	query, args := entryFilterQuery("SELECT amount FROM ledger_entries", f)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum entries: %w", err)
	}
	defer rows.Close()

	sum := decimal.Zero
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, err
		}
		sum = sum.Add(parseDecimal(amount))
	}
	return sum, rows.Err()
}

func entryFilterQuery(base string, f billing.EntryFilter) (string, []any) {
	query := base + " WHERE 1=1"
	var args []any

	if f.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, f.UserID)
	}
	if f.CategoryID != "" {
		query += " AND category_id = ?"
		args = append(args, f.CategoryID)
	}
	if f.Kind != "" {
		query += " AND kind = ?"
		args = append(args, f.Kind)
	}
	if !f.From.IsZero() {
		query += " AND occurred_at >= ?"
		args = append(args, f.From.UTC().Format(dateFormat))
	}
	if !f.To.IsZero() {
		query += " AND occurred_at <= ?"
		args = append(args, f.To.UTC().Format(dateFormat))
	}
	return query, args
}

const entrySelect = `
	SELECT id, user_id, card_id, category_id, amount, kind, method,
	       occurred_at, paid, invoice_id, description, created_at
	FROM ledger_entries`

func queryEntries(ctx context.Context, db dbtx, query string, args ...any) ([]billing.LedgerEntry, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []billing.LedgerEntry
	for rows.Next() {
		var (
			e          billing.LedgerEntry
			cardID     sql.NullString
			categoryID sql.NullString
			amount     string
			occurredAt string
			invoiceID  sql.NullString
			desc       sql.NullString
			createdAt  string
		)

		err := rows.Scan(
			&e.ID, &e.UserID, &cardID, &categoryID, &amount, &e.Kind, &e.Method,
			&occurredAt, &e.Paid, &invoiceID, &desc, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}

		e.CardID = cardID.String
		e.CategoryID = categoryID.String
		e.Amount = parseDecimal(amount)
		e.OccurredAt, _ = time.Parse(dateFormat, occurredAt)
		e.InvoiceID = invoiceID.String
		e.Description = desc.String
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// CARD STORE (billing.CardStore interface)
// =============================================================================

func (s *Store) SaveCard(ctx context.Context, c *billing.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveCard(ctx, s.db, c)
}

func saveCard(ctx context.Context, db dbtx, c *billing.Card) error {
	query := `
		INSERT INTO cards
		(id, user_id, name, network, credit_limit, closing_day, due_day,
		 color, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			network = excluded.network,
			credit_limit = excluded.credit_limit,
			closing_day = excluded.closing_day,
			due_day = excluded.due_day,
			color = excluded.color,
			notes = excluded.notes,
			updated_at = excluded.updated_at
	`

	var creditLimit sql.NullString
	if c.CreditLimit != nil {
		creditLimit = sql.NullString{String: c.CreditLimit.String(), Valid: true}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.ExecContext(ctx, query,
		c.ID, c.UserID, c.Name, nullString(c.Network), creditLimit,
		c.ClosingDay, c.DueDay, nullString(c.Color), nullString(c.Notes),
		now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save card: %w", err)
	}
	return nil
}

func (s *Store) GetCard(ctx context.Context, id string) (*billing.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCard(ctx, s.db, id)
}

func getCard(ctx context.Context, db dbtx, id string) (*billing.Card, error) {
	cards, err := queryCards(ctx, db, cardSelect+" WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		return nil, nil
	}
	return &cards[0], nil
}

func (s *Store) ListCards(ctx context.Context, userID string) ([]billing.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listCards(ctx, s.db, userID)
}

func listCards(ctx context.Context, db dbtx, userID string) ([]billing.Card, error) {
	return queryCards(ctx, db, cardSelect+" WHERE user_id = ? ORDER BY name", userID)
}

const cardSelect = `
	SELECT id, user_id, name, network, credit_limit, closing_day, due_day,
	       color, notes, created_at, updated_at
	FROM cards`

func queryCards(ctx context.Context, db dbtx, query string, args ...any) ([]billing.Card, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()

	var cards []billing.Card
	for rows.Next() {
		var (
			c           billing.Card
			network     sql.NullString
			creditLimit sql.NullString
			color       sql.NullString
			notes       sql.NullString
			createdAt   string
			updatedAt   string
		)

		err := rows.Scan(
			&c.ID, &c.UserID, &c.Name, &network, &creditLimit,
			&c.ClosingDay, &c.DueDay, &color, &notes, &createdAt, &updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}

		c.Network = network.String
		c.Color = color.String
		c.Notes = notes.String
		if creditLimit.Valid {
			d := parseDecimal(creditLimit.String)
			c.CreditLimit = &d
		}
		c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// =============================================================================
// INVOICE STORE (billing.InvoiceStore interface)
// =============================================================================

func (s *Store) UpsertInvoice(ctx context.Context, inv billing.Invoice) (*billing.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertInvoice(ctx, s.db, inv)
}

// upsertInvoice either wins the (card, period) slot or silently loses to
// the existing row; the follow-up read returns the survivor either way.
func upsertInvoice(ctx context.Context, db dbtx, inv billing.Invoice) (*billing.Invoice, error) {
	query := `
		INSERT INTO invoices
		(id, card_id, period, closing_date, due_date, status,
		 total_amount, paid_amount, closed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, ?)
		ON CONFLICT(card_id, period) DO NOTHING
	`

	createdAt := inv.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := db.ExecContext(ctx, query,
		inv.ID, inv.CardID, inv.Period,
		inv.ClosingDate.Format(dateFormat),
		inv.DueDate.Format(dateFormat),
		inv.Status,
		inv.TotalAmount.String(),
		inv.PaidAmount.String(),
		createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert invoice: %w", err)
	}

	invoices, err := queryInvoices(ctx, db,
		invoiceSelect+" WHERE card_id = ? AND period = ?", inv.CardID, inv.Period)
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return nil, fmt.Errorf("invoice missing after upsert: %s/%s", inv.CardID, inv.Period)
	}
	return &invoices[0], nil
}

func (s *Store) GetInvoice(ctx context.Context, id string) (*billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getInvoice(ctx, s.db, id)
}

func getInvoice(ctx context.Context, db dbtx, id string) (*billing.Invoice, error) {
	invoices, err := queryInvoices(ctx, db, invoiceSelect+" WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return nil, nil
	}
	return &invoices[0], nil
}

func (s *Store) InvoicesByCard(ctx context.Context, cardID string) ([]billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return invoicesByCard(ctx, s.db, cardID)
}

func invoicesByCard(ctx context.Context, db dbtx, cardID string) ([]billing.Invoice, error) {
	return queryInvoices(ctx, db,
		invoiceSelect+" WHERE card_id = ? ORDER BY period DESC", cardID)
}

func (s *Store) OpenInvoicesForPeriod(ctx context.Context, period billing.PeriodKey) ([]billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return openInvoicesForPeriod(ctx, s.db, period)
}

func openInvoicesForPeriod(ctx context.Context, db dbtx, period billing.PeriodKey) ([]billing.Invoice, error) {
	return queryInvoices(ctx, db,
		invoiceSelect+" WHERE period = ? AND status = ? ORDER BY card_id",
		period, billing.InvoiceOpen)
}

func (s *Store) SetInvoiceTotal(ctx context.Context, id string, total decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setInvoiceTotal(ctx, s.db, id, total)
}

func setInvoiceTotal(ctx context.Context, db dbtx, id string, total decimal.Decimal) error {
	_, err := db.ExecContext(ctx,
		"UPDATE invoices SET total_amount = ? WHERE id = ?",
		total.String(), id,
	)
	return err
}

func (s *Store) CloseInvoice(ctx context.Context, id string, closedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return closeInvoice(ctx, s.db, id, closedAt)
}

// closeInvoice only fires on OPEN invoices; the status guard in the WHERE
// clause keeps the transition forward-only even under races.
func closeInvoice(ctx context.Context, db dbtx, id string, closedAt time.Time) error {
	_, err := db.ExecContext(ctx,
		"UPDATE invoices SET status = ?, closed_at = ? WHERE id = ? AND status = ?",
		billing.InvoiceClosed, closedAt.UTC().Format(time.RFC3339), id, billing.InvoiceOpen,
	)
	return err
}

func (s *Store) SetInvoicePayment(ctx context.Context, id string, paidAmount decimal.Decimal, status billing.InvoiceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setInvoicePayment(ctx, s.db, id, paidAmount, status)
}

// PAID is terminal; the status guard refuses to touch already-paid rows.
func setInvoicePayment(ctx context.Context, db dbtx, id string, paidAmount decimal.Decimal, status billing.InvoiceStatus) error {
	_, err := db.ExecContext(ctx,
		"UPDATE invoices SET paid_amount = ?, status = ? WHERE id = ? AND status != ?",
		paidAmount.String(), status, id, billing.InvoicePaid,
	)
	return err
}

const invoiceSelect = `
	SELECT id, card_id, period, closing_date, due_date, status,
	       total_amount, paid_amount, closed_at, created_at
	FROM invoices`

func queryInvoices(ctx context.Context, db dbtx, query string, args ...any) ([]billing.Invoice, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var invoices []billing.Invoice
	for rows.Next() {
		var (
			inv         billing.Invoice
			closingDate string
			dueDate     string
			total       string
			paid        string
			closedAt    sql.NullString
			createdAt   string
		)

		err := rows.Scan(
			&inv.ID, &inv.CardID, &inv.Period, &closingDate, &dueDate,
			&inv.Status, &total, &paid, &closedAt, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}

		inv.ClosingDate, _ = time.Parse(dateFormat, closingDate)
		inv.DueDate, _ = time.Parse(dateFormat, dueDate)
		inv.TotalAmount = parseDecimal(total)
		inv.PaidAmount = parseDecimal(paid)
		if closedAt.Valid {
			t, _ := time.Parse(time.RFC3339, closedAt.String)
			inv.ClosedAt = &t
		}
		inv.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// =============================================================================
// PAYMENT STORE (billing.PaymentStore interface)
// =============================================================================

func (s *Store) CreatePayment(ctx context.Context, p *billing.InvoicePayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createPayment(ctx, s.db, p)
}

func createPayment(ctx context.Context, db dbtx, p *billing.InvoicePayment) error {
	query := `
		INSERT INTO invoice_payments
		(id, invoice_id, amount, method, payer_id, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := db.ExecContext(ctx, query,
		p.ID, p.InvoiceID, p.Amount.String(), p.Method, p.PayerID,
		nullString(p.Note), createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func (s *Store) PaymentsByInvoice(ctx context.Context, invoiceID string) ([]billing.InvoicePayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return paymentsByInvoice(ctx, s.db, invoiceID)
}

func paymentsByInvoice(ctx context.Context, db dbtx, invoiceID string) ([]billing.InvoicePayment, error) {
	query := `
		SELECT id, invoice_id, amount, method, payer_id, note, created_at
		FROM invoice_payments
		WHERE invoice_id = ?
		ORDER BY created_at ASC
	`

	rows, err := db.QueryContext(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []billing.InvoicePayment
	for rows.Next() {
		var (
			p         billing.InvoicePayment
			amount    string
			note      sql.NullString
			createdAt string
		)
		if err := rows.Scan(&p.ID, &p.InvoiceID, &amount, &p.Method, &p.PayerID, &note, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		p.Amount = parseDecimal(amount)
		p.Note = note.String
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// =============================================================================
// LIMIT STORE (billing.LimitStore interface)
// =============================================================================

func (s *Store) SaveLimit(ctx context.Context, l *billing.CategoryLimit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveLimit(ctx, s.db, l)
}

func saveLimit(ctx context.Context, db dbtx, l *billing.CategoryLimit) error {
	query := `
		INSERT INTO category_limits
		(id, user_id, category_id, period, limit_amount, spent_amount,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, category_id, period) DO UPDATE SET
			limit_amount = excluded.limit_amount,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.ExecContext(ctx, query,
		l.ID, l.UserID, l.CategoryID, l.Period,
		l.LimitAmount.String(), l.SpentAmount.String(), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save limit: %w", err)
	}
	return nil
}

func (s *Store) GetLimit(ctx context.Context, userID, categoryID string, period billing.PeriodKey) (*billing.CategoryLimit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getLimit(ctx, s.db, userID, categoryID, period)
}

func getLimit(ctx context.Context, db dbtx, userID, categoryID string, period billing.PeriodKey) (*billing.CategoryLimit, error) {
	limits, err := queryLimits(ctx, db,
		limitSelect+" WHERE user_id = ? AND category_id = ? AND period = ?",
		userID, categoryID, period)
	if err != nil {
		return nil, err
	}
	if len(limits) == 0 {
		return nil, nil
	}
	return &limits[0], nil
}

func (s *Store) LimitsForPeriod(ctx context.Context, userID string, period billing.PeriodKey) ([]billing.CategoryLimit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return limitsForPeriod(ctx, s.db, userID, period)
}

func limitsForPeriod(ctx context.Context, db dbtx, userID string, period billing.PeriodKey) ([]billing.CategoryLimit, error) {
	return queryLimits(ctx, db,
		limitSelect+" WHERE user_id = ? AND period = ? ORDER BY category_id",
		userID, period)
}

func (s *Store) IncrementLimitSpend(ctx context.Context, id string, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return incrementLimitSpend(ctx, s.db, id, delta)
}

// incrementLimitSpend reads and rewrites the decimal string; the store's
// write lock (or the enclosing transaction) serializes the read-modify-write.
// SQLite arithmetic on the column would round-trip through float.
func incrementLimitSpend(ctx context.Context, db dbtx, id string, delta decimal.Decimal) error {
	var spent string
	err := db.QueryRowContext(ctx,
		"SELECT spent_amount FROM category_limits WHERE id = ?", id,
	).Scan(&spent)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}

	return setLimitSpend(ctx, db, id, parseDecimal(spent).Add(delta))
}

func (s *Store) SetLimitSpend(ctx context.Context, id string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setLimitSpend(ctx, s.db, id, amount)
}

func setLimitSpend(ctx context.Context, db dbtx, id string, amount decimal.Decimal) error {
	_, err := db.ExecContext(ctx,
		"UPDATE category_limits SET spent_amount = ?, updated_at = ? WHERE id = ?",
		amount.String(), time.Now().UTC().Format(time.RFC3339), id,
	)
	return err
}

const limitSelect = `
	SELECT id, user_id, category_id, period, limit_amount, spent_amount,
	       created_at, updated_at
	FROM category_limits`

func queryLimits(ctx context.Context, db dbtx, query string, args ...any) ([]billing.CategoryLimit, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query limits: %w", err)
	}
	defer rows.Close()

	var limits []billing.CategoryLimit
	for rows.Next() {
		var (
			l         billing.CategoryLimit
			limit     string
			spent     string
			createdAt string
			updatedAt string
		)
		if err := rows.Scan(&l.ID, &l.UserID, &l.CategoryID, &l.Period, &limit, &spent, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan limit: %w", err)
		}
		l.LimitAmount = parseDecimal(limit)
		l.SpentAmount = parseDecimal(spent)
		l.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		l.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		limits = append(limits, l)
	}
	return limits, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (billing.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction. The store's write lock
// is held for the duration, so fn must not call back into the Store.
func (s *Store) WithTx(ctx context.Context, fn func(store billing.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}

	return tx.Commit()
}

// txStore is a billing.Store bound to an open transaction. It does not
// lock; WithTx already holds the store's write lock.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) CreateEntry(ctx context.Context, e *billing.LedgerEntry) error {
	return createEntry(ctx, ts.tx, e)
}

func (ts *txStore) GetEntry(ctx context.Context, id string) (*billing.LedgerEntry, error) {
	return getEntry(ctx, ts.tx, id)
}

func (ts *txStore) ListEntries(ctx context.Context, f billing.EntryFilter) ([]billing.LedgerEntry, error) {
	return listEntries(ctx, ts.tx, f)
}

func (ts *txStore) SetEntryInvoice(ctx context.Context, entryID, invoiceID string) error {
	return setEntryInvoice(ctx, ts.tx, entryID, invoiceID)
}

func (ts *txStore) EntriesByInvoice(ctx context.Context, invoiceID string, unpaidOnly bool) ([]billing.LedgerEntry, error) {
	return entriesByInvoice(ctx, ts.tx, invoiceID, unpaidOnly)
}

func (ts *txStore) MarkInvoiceEntriesPaid(ctx context.Context, invoiceID string) error {
	return markInvoiceEntriesPaid(ctx, ts.tx, invoiceID)
}

func (ts *txStore) SumEntries(ctx context.Context, f billing.EntryFilter) (decimal.Decimal, error) {
	return sumEntries(ctx, ts.tx, f)
}

func (ts *txStore) SaveCard(ctx context.Context, c *billing.Card) error {
	return saveCard(ctx, ts.tx, c)
}

func (ts *txStore) GetCard(ctx context.Context, id string) (*billing.Card, error) {
	return getCard(ctx, ts.tx, id)
}

func (ts *txStore) ListCards(ctx context.Context, userID string) ([]billing.Card, error) {
	return listCards(ctx, ts.tx, userID)
}

func (ts *txStore) UpsertInvoice(ctx context.Context, inv billing.Invoice) (*billing.Invoice, error) {
	return upsertInvoice(ctx, ts.tx, inv)
}

func (ts *txStore) GetInvoice(ctx context.Context, id string) (*billing.Invoice, error) {
	return getInvoice(ctx, ts.tx, id)
}

func (ts *txStore) InvoicesByCard(ctx context.Context, cardID string) ([]billing.Invoice, error) {
	return invoicesByCard(ctx, ts.tx, cardID)
}

func (ts *txStore) OpenInvoicesForPeriod(ctx context.Context, period billing.PeriodKey) ([]billing.Invoice, error) {
	return openInvoicesForPeriod(ctx, ts.tx, period)
}

func (ts *txStore) SetInvoiceTotal(ctx context.Context, id string, total decimal.Decimal) error {
	return setInvoiceTotal(ctx, ts.tx, id, total)
}

func (ts *txStore) CloseInvoice(ctx context.Context, id string, closedAt time.Time) error {
	return closeInvoice(ctx, ts.tx, id, closedAt)
}

func (ts *txStore) SetInvoicePayment(ctx context.Context, id string, paidAmount decimal.Decimal, status billing.InvoiceStatus) error {
	return setInvoicePayment(ctx, ts.tx, id, paidAmount, status)
}

func (ts *txStore) CreatePayment(ctx context.Context, p *billing.InvoicePayment) error {
	return createPayment(ctx, ts.tx, p)
}

func (ts *txStore) PaymentsByInvoice(ctx context.Context, invoiceID string) ([]billing.InvoicePayment, error) {
	return paymentsByInvoice(ctx, ts.tx, invoiceID)
}

func (ts *txStore) SaveLimit(ctx context.Context, l *billing.CategoryLimit) error {
	return saveLimit(ctx, ts.tx, l)
}

func (ts *txStore) GetLimit(ctx context.Context, userID, categoryID string, period billing.PeriodKey) (*billing.CategoryLimit, error) {
	return getLimit(ctx, ts.tx, userID, categoryID, period)
}

func (ts *txStore) LimitsForPeriod(ctx context.Context, userID string, period billing.PeriodKey) ([]billing.CategoryLimit, error) {
	return limitsForPeriod(ctx, ts.tx, userID, period)
}

func (ts *txStore) IncrementLimitSpend(ctx context.Context, id string, delta decimal.Decimal) error {
	return incrementLimitSpend(ctx, ts.tx, id, delta)
}

func (ts *txStore) SetLimitSpend(ctx context.Context, id string, amount decimal.Decimal) error {
	return setLimitSpend(ctx, ts.tx, id, amount)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"invoice_payments", "ledger_entries", "invoices", "category_limits", "cards"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// parseDecimal trusts stored values; every write path serialized them with
// decimal.String.
func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
