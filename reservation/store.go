/*
store.go - Persistence interfaces for reservations and their children

PURPOSE:
  Defines the boundary between the reservation aggregate and the database.
  The aggregate never issues SQL; it reads and writes rows through these
  interfaces, and groups every multi-row change inside WithTx.

KEY INTERFACES:
  ReservationStore: header rows and their derived totals
  LineItemStore:    reservation-product rows
  PaymentStore:     deposit rows
  Directory:        read-only lookup of clients, products, users
  Store:            all of the above
  TxStore:          Store plus WithTx for atomic multi-table writes
  Seeder:           master-data writes and reset, used by demo scenarios

GETTER CONTRACT:
  Get* methods return (nil, nil) when the row does not exist. Deciding
  whether absence is an error belongs to the caller.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - reservation/store/memory.go: in-memory for tests

SEE ALSO:
  - service.go: the only caller
  - ledger.go: reads children and writes totals through a Store
*/
package reservation

import "context"

// =============================================================================
// ROW STORES
// =============================================================================

type ReservationStore interface {
	// InsertReservation persists r and returns its new id. r.ID is ignored.
	InsertReservation(ctx context.Context, r Reservation) (int64, error)

	GetReservation(ctx context.Context, id int64) (*Reservation, error)

	// UpdateReservation overwrites header fields and totals of r.ID.
	UpdateReservation(ctx context.Context, r Reservation) error

	// SaveTotals overwrites only the money fields.
	SaveTotals(ctx context.Context, id int64, t Totals) error

	DeleteReservation(ctx context.Context, id int64) error

	// ListReservations returns headers joined with display names,
	// ordered by date descending then time ascending.
	ListReservations(ctx context.Context, f ListFilter) ([]Listing, error)

	// ListReservationsBetween returns headers with from <= date <= to,
	// joined with display names, ordered by date then time ascending.
	ListReservationsBetween(ctx context.Context, from, to Date) ([]Listing, error)
}

type LineItemStore interface {
	// InsertLineItem persists li (Subtotal already computed) and returns its id.
	InsertLineItem(ctx context.Context, li LineItem) (int64, error)
	GetLineItem(ctx context.Context, id int64) (*LineItem, error)
	UpdateLineItem(ctx context.Context, li LineItem) error
	DeleteLineItem(ctx context.Context, id int64) error

	// LineItems returns a reservation's items ordered by id, with ProductName set.
	LineItems(ctx context.Context, reservationID int64) ([]LineItem, error)
	DeleteLineItems(ctx context.Context, reservationID int64) error
}

type PaymentStore interface {
	InsertPayment(ctx context.Context, p Payment) (int64, error)
	GetPayment(ctx context.Context, id int64) (*Payment, error)
	DeletePayment(ctx context.Context, id int64) error

	// Payments returns a reservation's payments, newest first.
	Payments(ctx context.Context, reservationID int64) ([]Payment, error)
	DeletePayments(ctx context.Context, reservationID int64) error
}

// Directory resolves master data owned by other parts of the system.
type Directory interface {
	GetClient(ctx context.Context, id int64) (*Client, error)
	GetProduct(ctx context.Context, id int64) (*Product, error)
	GetUser(ctx context.Context, id int64) (*User, error)
}

// =============================================================================
// COMPOSED STORES
// =============================================================================

type Store interface {
	ReservationStore
	LineItemStore
	PaymentStore
	Directory
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	// If fn returns nil, it is committed.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Ping checks that the backing storage is reachable.
	Ping(ctx context.Context) error
}

// Seeder writes master data and wipes everything. Demo and test use only.
type Seeder interface {
	SaveClient(ctx context.Context, c Client) (int64, error)
	SaveProduct(ctx context.Context, p Product) (int64, error)
	SaveUser(ctx context.Context, u User) (int64, error)
	Reset(ctx context.Context) error
}
