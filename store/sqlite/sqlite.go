/*
Package sqlite provides a SQLite-backed implementation of reservation.TxStore.

PURPOSE:
  Persists reservation headers, line items and payments, plus the master
  data (clients, products, users) they reference. The ledger logic lives in
  the reservation package; this package only moves rows.

INTERFACES IMPLEMENTED:
  reservation.Store:   header, line item, payment and directory access
  reservation.TxStore: WithTx for atomic multi-table writes
  reservation.Seeder:  master data writes and Reset for demo scenarios

KEY TABLES:
  reservations:      header + total_estimated / total_paid / total_pending
  reservation_items: FK reservations (cascade), FK products
  payments:          FK reservations (cascade)
  clients, products, users: master data referenced by id

MONEY:
  Money columns are TEXT holding fixed two-decimal strings ("1250.00").
  SQLite has no exact decimal type and REAL would drift, so values are
  written with StringFixed(2) and parsed back into decimal.Decimal. Sums are
  computed by the ledger in Go, never by SQL.

DATES:
  date is TEXT "YYYY-MM-DD" and time is TEXT "HH:MM:SS", so lexical ORDER BY
  is chronological. created_at / updated_at are fixed-width UTC timestamps.

CONCURRENCY:
  A single connection is used (SetMaxOpenConns(1)) and every method takes
  sync.RWMutex. WithTx holds the write lock for the whole transaction; the
  txStore it hands out runs queries on the sql.Tx without locking again.

WAL MODE:
  Opened with WAL and foreign keys on. ":memory:" works for tests.

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - reservation/store.go: interface definitions
  - reservation/store/memory.go: in-memory implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/cafeelangel/mesalista/reservation"
)

const timestampLayout = "2006-01-02T15:04:05.000000Z"

// Store implements reservation.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
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
	db.SetMaxOpenConns(1)

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

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		role TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS clients (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL DEFAULT '',
		phone TEXT,
		email TEXT
	);

	CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		price TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS reservations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id INTEGER NOT NULL,
		created_by INTEGER NOT NULL,
		date TEXT NOT NULL,
		time TEXT NOT NULL,
		party_size INTEGER NOT NULL CHECK (party_size > 0),
		area TEXT NOT NULL,
		type TEXT NOT NULL,
		notes TEXT,
		total_estimated TEXT NOT NULL DEFAULT '0.00',
		total_paid TEXT NOT NULL DEFAULT '0.00',
		total_pending TEXT NOT NULL DEFAULT '0.00',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reservations_date_time
		ON reservations(date, time);
	CREATE INDEX IF NOT EXISTS idx_reservations_client
		ON reservations(client_id);
	CREATE INDEX IF NOT EXISTS idx_reservations_created_by
		ON reservations(created_by);

	CREATE TABLE IF NOT EXISTS reservation_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		reservation_id INTEGER NOT NULL REFERENCES reservations(id) ON DELETE CASCADE,
		product_id INTEGER NOT NULL REFERENCES products(id),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price TEXT NOT NULL,
		subtotal TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reservation_items_reservation
		ON reservation_items(reservation_id);

	CREATE TABLE IF NOT EXISTS payments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		reservation_id INTEGER NOT NULL REFERENCES reservations(id) ON DELETE CASCADE,
		amount TEXT NOT NULL,
		method TEXT NOT NULL,
		notes TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_reservation
		ON payments(reservation_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (reservation.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store reservation.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore runs every query on the open transaction. The parent lock is held.
type txStore struct {
	q querier
}

func (ts *txStore) InsertReservation(ctx context.Context, r reservation.Reservation) (int64, error) {
	return insertReservation(ctx, ts.q, r)
}

func (ts *txStore) GetReservation(ctx context.Context, id int64) (*reservation.Reservation, error) {
	return getReservation(ctx, ts.q, id)
}

func (ts *txStore) UpdateReservation(ctx context.Context, r reservation.Reservation) error {
	return updateReservation(ctx, ts.q, r)
}

func (ts *txStore) SaveTotals(ctx context.Context, id int64, t reservation.Totals) error {
	return saveTotals(ctx, ts.q, id, t)
}

func (ts *txStore) DeleteReservation(ctx context.Context, id int64) error {
	return exec(ctx, ts.q, "DELETE FROM reservations WHERE id = ?", id)
}

func (ts *txStore) ListReservations(ctx context.Context, f reservation.ListFilter) ([]reservation.Listing, error) {
	return listReservations(ctx, ts.q, f)
}

func (ts *txStore) ListReservationsBetween(ctx context.Context, from, to reservation.Date) ([]reservation.Listing, error) {
	return listBetween(ctx, ts.q, from, to)
}

func (ts *txStore) InsertLineItem(ctx context.Context, li reservation.LineItem) (int64, error) {
	return insertLineItem(ctx, ts.q, li)
}

func (ts *txStore) GetLineItem(ctx context.Context, id int64) (*reservation.LineItem, error) {
	return getLineItem(ctx, ts.q, id)
}

func (ts *txStore) UpdateLineItem(ctx context.Context, li reservation.LineItem) error {
	return updateLineItem(ctx, ts.q, li)
}

func (ts *txStore) DeleteLineItem(ctx context.Context, id int64) error {
	return exec(ctx, ts.q, "DELETE FROM reservation_items WHERE id = ?", id)
}

func (ts *txStore) LineItems(ctx context.Context, reservationID int64) ([]reservation.LineItem, error) {
	return lineItems(ctx, ts.q, reservationID)
}

func (ts *txStore) DeleteLineItems(ctx context.Context, reservationID int64) error {
	return exec(ctx, ts.q, "DELETE FROM reservation_items WHERE reservation_id = ?", reservationID)
}

func (ts *txStore) InsertPayment(ctx context.Context, p reservation.Payment) (int64, error) {
	return insertPayment(ctx, ts.q, p)
}

func (ts *txStore) GetPayment(ctx context.Context, id int64) (*reservation.Payment, error) {
	return getPayment(ctx, ts.q, id)
}

func (ts *txStore) DeletePayment(ctx context.Context, id int64) error {
	return exec(ctx, ts.q, "DELETE FROM payments WHERE id = ?", id)
}

func (ts *txStore) Payments(ctx context.Context, reservationID int64) ([]reservation.Payment, error) {
	return payments(ctx, ts.q, reservationID)
}

func (ts *txStore) DeletePayments(ctx context.Context, reservationID int64) error {
	return exec(ctx, ts.q, "DELETE FROM payments WHERE reservation_id = ?", reservationID)
}

func (ts *txStore) GetClient(ctx context.Context, id int64) (*reservation.Client, error) {
	return getClient(ctx, ts.q, id)
}

func (ts *txStore) GetProduct(ctx context.Context, id int64) (*reservation.Product, error) {
	return getProduct(ctx, ts.q, id)
}

func (ts *txStore) GetUser(ctx context.Context, id int64) (*reservation.User, error) {
	return getUser(ctx, ts.q, id)
}

// =============================================================================
// RESERVATIONS
// =============================================================================

func (s *Store) InsertReservation(ctx context.Context, r reservation.Reservation) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertReservation(ctx, s.db, r)
}

// GetReservation retrieves a header by id. Returns nil, nil if missing.
func (s *Store) GetReservation(ctx context.Context, id int64) (*reservation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getReservation(ctx, s.db, id)
}

func (s *Store) UpdateReservation(ctx context.Context, r reservation.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateReservation(ctx, s.db, r)
}

func (s *Store) SaveTotals(ctx context.Context, id int64, t reservation.Totals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveTotals(ctx, s.db, id, t)
}

func (s *Store) DeleteReservation(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return exec(ctx, s.db, "DELETE FROM reservations WHERE id = ?", id)
}

func (s *Store) ListReservations(ctx context.Context, f reservation.ListFilter) ([]reservation.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listReservations(ctx, s.db, f)
}

func (s *Store) ListReservationsBetween(ctx context.Context, from, to reservation.Date) ([]reservation.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listBetween(ctx, s.db, from, to)
}

const reservationColumns = `r.id, r.client_id, r.created_by, r.date, r.time, r.party_size,
	r.area, r.type, r.notes, r.total_estimated, r.total_paid, r.total_pending,
	r.created_at, r.updated_at`

const listingSelect = `SELECT ` + reservationColumns + `,
	COALESCE(c.first_name, ''), COALESCE(c.last_name, ''), COALESCE(u.name, '')
	FROM reservations r
	LEFT JOIN clients c ON r.client_id = c.id
	LEFT JOIN users u ON r.created_by = u.id`

func insertReservation(ctx context.Context, q querier, r reservation.Reservation) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO reservations (
			client_id, created_by, date, time, party_size, area, type, notes,
			total_estimated, total_paid, total_pending, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ClientID, r.CreatedBy, r.Date.String(), r.Time.String(), r.PartySize,
		string(r.Area), string(r.Type), nullString(r.Notes),
		money(r.Totals.Estimated), money(r.Totals.Paid), money(r.Totals.Pending),
		timestamp(r.CreatedAt), timestamp(r.UpdatedAt),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func getReservation(ctx context.Context, q querier, id int64) (*reservation.Reservation, error) {
	row := q.QueryRowContext(ctx, "SELECT "+reservationColumns+" FROM reservations r WHERE r.id = ?", id)
	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func updateReservation(ctx context.Context, q querier, r reservation.Reservation) error {
	return exec(ctx, q, `
		UPDATE reservations SET
			client_id = ?, date = ?, time = ?, party_size = ?, area = ?, type = ?, notes = ?,
			total_estimated = ?, total_paid = ?, total_pending = ?, updated_at = ?
		WHERE id = ?`,
		r.ClientID, r.Date.String(), r.Time.String(), r.PartySize,
		string(r.Area), string(r.Type), nullString(r.Notes),
		money(r.Totals.Estimated), money(r.Totals.Paid), money(r.Totals.Pending),
		timestamp(r.UpdatedAt), r.ID,
	)
}

func saveTotals(ctx context.Context, q querier, id int64, t reservation.Totals) error {
	return exec(ctx, q,
		"UPDATE reservations SET total_estimated = ?, total_paid = ?, total_pending = ? WHERE id = ?",
		money(t.Estimated), money(t.Paid), money(t.Pending), id,
	)
}

func listReservations(ctx context.Context, q querier, f reservation.ListFilter) ([]reservation.Listing, error) {
	var (
		where []string
		args  []any
	)
	if f.Date != nil {
		where = append(where, "r.date = ?")
		args = append(args, f.Date.String())
	}
	if f.ClientID != 0 {
		where = append(where, "r.client_id = ?")
		args = append(args, f.ClientID)
	}
	if f.CreatedBy != 0 {
		where = append(where, "r.created_by = ?")
		args = append(args, f.CreatedBy)
	}
	query := listingSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY r.date DESC, r.time ASC, r.id ASC"
	return queryListings(ctx, q, query, args...)
}

func listBetween(ctx context.Context, q querier, from, to reservation.Date) ([]reservation.Listing, error) {
	return queryListings(ctx, q,
		listingSelect+" WHERE r.date >= ? AND r.date <= ? ORDER BY r.date ASC, r.time ASC, r.id ASC",
		from.String(), to.String(),
	)
}

func queryListings(ctx context.Context, q querier, query string, args ...any) ([]reservation.Listing, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []reservation.Listing{}
	for rows.Next() {
		var l reservation.Listing
		r, err := scanReservation(rows, &l.ClientFirstName, &l.ClientLastName, &l.UserName)
		if err != nil {
			return nil, err
		}
		l.Reservation = r
		out = append(out, l)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

// scanReservation reads reservationColumns followed by extra destinations.
func scanReservation(sc scanner, extra ...any) (reservation.Reservation, error) {
	var (
		r                        reservation.Reservation
		date, tod                string
		area, kind               string
		notes                    sql.NullString
		estimated, paid, pending string
		createdAt, updatedAt     string
	)
	dest := append([]any{
		&r.ID, &r.ClientID, &r.CreatedBy, &date, &tod, &r.PartySize,
		&area, &kind, &notes, &estimated, &paid, &pending,
		&createdAt, &updatedAt,
	}, extra...)
	if err := sc.Scan(dest...); err != nil {
		return r, err
	}

	var err error
	if r.Date, err = reservation.ParseDate(date); err != nil {
		return r, fmt.Errorf("reservation %d: %w", r.ID, err)
	}
	if r.Time, err = reservation.ParseTimeOfDay(tod); err != nil {
		return r, fmt.Errorf("reservation %d: %w", r.ID, err)
	}
	r.Area = reservation.Area(area)
	r.Type = reservation.Kind(kind)
	r.Notes = notes.String
	if r.Totals.Estimated, err = parseMoney(estimated); err != nil {
		return r, err
	}
	if r.Totals.Paid, err = parseMoney(paid); err != nil {
		return r, err
	}
	if r.Totals.Pending, err = parseMoney(pending); err != nil {
		return r, err
	}
	r.CreatedAt = parseTimestamp(createdAt)
	r.UpdatedAt = parseTimestamp(updatedAt)
	return r, nil
}

// =============================================================================
// LINE ITEMS
// =============================================================================

func (s *Store) InsertLineItem(ctx context.Context, li reservation.LineItem) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertLineItem(ctx, s.db, li)
}

func (s *Store) GetLineItem(ctx context.Context, id int64) (*reservation.LineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getLineItem(ctx, s.db, id)
}

func (s *Store) UpdateLineItem(ctx context.Context, li reservation.LineItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateLineItem(ctx, s.db, li)
}

func (s *Store) DeleteLineItem(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return exec(ctx, s.db, "DELETE FROM reservation_items WHERE id = ?", id)
}

func (s *Store) LineItems(ctx context.Context, reservationID int64) ([]reservation.LineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lineItems(ctx, s.db, reservationID)
}

func (s *Store) DeleteLineItems(ctx context.Context, reservationID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return exec(ctx, s.db, "DELETE FROM reservation_items WHERE reservation_id = ?", reservationID)
}

const lineItemSelect = `SELECT i.id, i.reservation_id, i.product_id, COALESCE(p.name, ''),
	i.quantity, i.unit_price, i.subtotal
	FROM reservation_items i
	LEFT JOIN products p ON i.product_id = p.id`

func insertLineItem(ctx context.Context, q querier, li reservation.LineItem) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO reservation_items (reservation_id, product_id, quantity, unit_price, subtotal)
		VALUES (?, ?, ?, ?, ?)`,
		li.ReservationID, li.ProductID, li.Quantity, money(li.UnitPrice), money(li.Subtotal),
	)
	if err != nil {
		return 0, classify(err)
	}
	return res.LastInsertId()
}

func getLineItem(ctx context.Context, q querier, id int64) (*reservation.LineItem, error) {
	li, err := scanLineItem(q.QueryRowContext(ctx, lineItemSelect+" WHERE i.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &li, nil
}

func updateLineItem(ctx context.Context, q querier, li reservation.LineItem) error {
	return exec(ctx, q,
		"UPDATE reservation_items SET quantity = ?, unit_price = ?, subtotal = ? WHERE id = ?",
		li.Quantity, money(li.UnitPrice), money(li.Subtotal), li.ID,
	)
}

func lineItems(ctx context.Context, q querier, reservationID int64) ([]reservation.LineItem, error) {
	rows, err := q.QueryContext(ctx, lineItemSelect+" WHERE i.reservation_id = ? ORDER BY i.id", reservationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []reservation.LineItem{}
	for rows.Next() {
		li, err := scanLineItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, li)
	}
	return out, rows.Err()
}

func scanLineItem(sc scanner) (reservation.LineItem, error) {
	var (
		li              reservation.LineItem
		price, subtotal string
	)
	if err := sc.Scan(&li.ID, &li.ReservationID, &li.ProductID, &li.ProductName,
		&li.Quantity, &price, &subtotal); err != nil {
		return li, err
	}
	var err error
	if li.UnitPrice, err = parseMoney(price); err != nil {
		return li, err
	}
	li.Subtotal, err = parseMoney(subtotal)
	return li, err
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (s *Store) InsertPayment(ctx context.Context, p reservation.Payment) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertPayment(ctx, s.db, p)
}

func (s *Store) GetPayment(ctx context.Context, id int64) (*reservation.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPayment(ctx, s.db, id)
}

func (s *Store) DeletePayment(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return exec(ctx, s.db, "DELETE FROM payments WHERE id = ?", id)
}

func (s *Store) Payments(ctx context.Context, reservationID int64) ([]reservation.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return payments(ctx, s.db, reservationID)
}

func (s *Store) DeletePayments(ctx context.Context, reservationID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return exec(ctx, s.db, "DELETE FROM payments WHERE reservation_id = ?", reservationID)
}

const paymentSelect = `SELECT id, reservation_id, amount, method, notes, created_at FROM payments`

func insertPayment(ctx context.Context, q querier, p reservation.Payment) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO payments (reservation_id, amount, method, notes, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.ReservationID, money(p.Amount), p.Method, nullString(p.Notes), timestamp(p.CreatedAt),
	)
	if err != nil {
		return 0, classify(err)
	}
	return res.LastInsertId()
}

func getPayment(ctx context.Context, q querier, id int64) (*reservation.Payment, error) {
	p, err := scanPayment(q.QueryRowContext(ctx, paymentSelect+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func payments(ctx context.Context, q querier, reservationID int64) ([]reservation.Payment, error) {
	rows, err := q.QueryContext(ctx,
		paymentSelect+" WHERE reservation_id = ? ORDER BY created_at DESC, id DESC", reservationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []reservation.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPayment(sc scanner) (reservation.Payment, error) {
	var (
		p                 reservation.Payment
		amount, createdAt string
		notes             sql.NullString
	)
	if err := sc.Scan(&p.ID, &p.ReservationID, &amount, &p.Method, &notes, &createdAt); err != nil {
		return p, err
	}
	var err error
	p.Amount, err = parseMoney(amount)
	p.Notes = notes.String
	p.CreatedAt = parseTimestamp(createdAt)
	return p, err
}

// =============================================================================
// DIRECTORY (reservation.Directory interface)
// =============================================================================

func (s *Store) GetClient(ctx context.Context, id int64) (*reservation.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getClient(ctx, s.db, id)
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*reservation.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getProduct(ctx, s.db, id)
}

func (s *Store) GetUser(ctx context.Context, id int64) (*reservation.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getUser(ctx, s.db, id)
}

func getClient(ctx context.Context, q querier, id int64) (*reservation.Client, error) {
	var (
		c            reservation.Client
		phone, email sql.NullString
	)
	err := q.QueryRowContext(ctx,
		"SELECT id, first_name, last_name, phone, email FROM clients WHERE id = ?", id,
	).Scan(&c.ID, &c.FirstName, &c.LastName, &phone, &email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Phone, c.Email = phone.String, email.String
	return &c, nil
}

func getProduct(ctx context.Context, q querier, id int64) (*reservation.Product, error) {
	var (
		p     reservation.Product
		price string
	)
	err := q.QueryRowContext(ctx,
		"SELECT id, name, price, active FROM products WHERE id = ?", id,
	).Scan(&p.ID, &p.Name, &price, &p.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if p.Price, err = parseMoney(price); err != nil {
		return nil, err
	}
	return &p, nil
}

func getUser(ctx context.Context, q querier, id int64) (*reservation.User, error) {
	var (
		u    reservation.User
		role string
	)
	err := q.QueryRowContext(ctx, "SELECT id, name, role FROM users WHERE id = ?", id).Scan(&u.ID, &u.Name, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.Role = reservation.Role(role)
	return &u, nil
}

// =============================================================================
// SEEDER (reservation.Seeder interface)
// =============================================================================

// SaveClient inserts c, or upserts it when c.ID is set.
func (s *Store) SaveClient(ctx context.Context, c reservation.Client) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsert(ctx, s.db, c.ID, `
		INSERT INTO clients (id, first_name, last_name, phone, email)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			phone = excluded.phone,
			email = excluded.email`,
		c.FirstName, c.LastName, nullString(c.Phone), nullString(c.Email),
	)
}

func (s *Store) SaveProduct(ctx context.Context, p reservation.Product) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsert(ctx, s.db, p.ID, `
		INSERT INTO products (id, name, price, active)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			price = excluded.price,
			active = excluded.active`,
		p.Name, money(p.Price), p.Active,
	)
}

func (s *Store) SaveUser(ctx context.Context, u reservation.User) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsert(ctx, s.db, u.ID, `
		INSERT INTO users (id, name, role)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role`,
		u.Name, string(u.Role),
	)
}

// upsert runs query with a NULL id when id is zero so SQLite assigns one.
func upsert(ctx context.Context, q querier, id int64, query string, args ...any) (int64, error) {
	var idArg any
	if id != 0 {
		idArg = id
	}
	res, err := q.ExecContext(ctx, query, append([]any{idArg}, args...)...)
	if err != nil {
		return 0, err
	}
	if id != 0 {
		return id, nil
	}
	return res.LastInsertId()
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"payments", "reservation_items", "reservations", "products", "clients", "users", "sqlite_sequence"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func exec(ctx context.Context, q querier, query string, args ...any) error {
	_, err := q.ExecContext(ctx, query, args...)
	return classify(err)
}

// classify turns foreign key violations into NotFound; everything else is
// returned as-is for the service to wrap as a storage failure.
func classify(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey {
		return fmt.Errorf("%w: referenced row missing", reservation.ErrNotFound)
	}
	return err
}

func money(d decimal.Decimal) string {
	return d.StringFixed(reservation.MoneyPlaces)
}

func parseMoney(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid money value %q: %w", s, err)
	}
	return d, nil
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
