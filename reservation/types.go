/*
Package reservation provides the reservation ledger core.

PURPOSE:
  A reservation is a booking header that owns two kinds of child rows:
  line items (ordered products with a price snapshot) and payments
  ("anticipos", partial deposits). The header carries three money fields
  that are always derived from those children:

    total_estimada  = sum(line item subtotals), or the seed when no items exist yet
    total_pagado    = sum(payment amounts)
    total_pendiente = total_estimada - total_pagado   (negative when overpaid)

KEY CONCEPTS IN THIS FILE (types.go):
  - Reservation: header record plus Totals
  - LineItem: product/quantity association with unit price snapshot
  - Payment: immutable deposit against a reservation
  - Client, Product, User: master data referenced by id
  - Patch / LineItemPatch: typed partial updates

DESIGN PRINCIPLES:
  1. Precision: money is decimal.Decimal, rounded to 2 places on write
  2. Derivation: totals are recomputed from source rows, never patched incrementally
  3. Explicit actors: every mutation receives the acting user and role as values

SEE ALSO:
  - ledger.go: totals derivation
  - service.go: the aggregate that coordinates stores and ledger
  - access.go: who may modify what
*/
package reservation

import (
	"time"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the fixed precision of every stored money field.
const MoneyPlaces = 2

// Money rounds d to the stored precision.
func Money(d decimal.Decimal) decimal.Decimal { return d.Round(MoneyPlaces) }

// MustMoney parses a decimal literal, panicking on malformed input. Tests and seed data only.
func MustMoney(s string) decimal.Decimal {
	return Money(decimal.RequireFromString(s))
}

// =============================================================================
// ENUMERATIONS
// =============================================================================

// Area is the dining space a reservation occupies.
type Area string

const (
	AreaRestaurant Area = "Restaurante"
	AreaMainHall   Area = "Salón Principal"
	AreaSmallHall  Area = "Salón pequeño"
)

var validAreas = map[Area]bool{
	AreaRestaurant: true,
	AreaMainHall:   true,
	AreaSmallHall:  true,
}

func (a Area) Valid() bool { return validAreas[a] }

// Kind is the reservation type: open menu or pre-ordered menu.
type Kind string

const (
	KindOpenMenu Kind = "Carta abierta"
	KindPreOrder Kind = "Orden previa"
)

func (k Kind) Valid() bool { return k == KindOpenMenu || k == KindPreOrder }

// Role is the actor's role as asserted by the upstream authentication step.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "visualizador"
)

// Actor identifies who performs an operation.
type Actor struct {
	ID   int64
	Role Role
}

// =============================================================================
// TOTALS
// =============================================================================

// Totals are the three derived money fields of a reservation header.
type Totals struct {
	Estimated decimal.Decimal
	Paid      decimal.Decimal
	Pending   decimal.Decimal
}

// NewTotals builds Totals from estimated and paid, deriving pending.
func NewTotals(estimated, paid decimal.Decimal) Totals {
	estimated, paid = Money(estimated), Money(paid)
	return Totals{Estimated: estimated, Paid: paid, Pending: Money(estimated.Sub(paid))}
}

// Balanced reports whether Pending == Estimated - Paid.
func (t Totals) Balanced() bool {
	return t.Pending.Equal(t.Estimated.Sub(t.Paid))
}

// Equal compares the three fields numerically.
func (t Totals) Equal(o Totals) bool {
	return t.Estimated.Equal(o.Estimated) && t.Paid.Equal(o.Paid) && t.Pending.Equal(o.Pending)
}

// =============================================================================
// RESERVATION HEADER
// =============================================================================

type Reservation struct {
	ID        int64
	ClientID  int64
	CreatedBy int64
	Date      Date
	Time      TimeOfDay
	PartySize int
	Area      Area
	Type      Kind
	Notes     string
	Totals    Totals
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Listing is a reservation header joined with display names.
type Listing struct {
	Reservation
	ClientFirstName string
	ClientLastName  string
	UserName        string
}

// ListFilter narrows List results. Zero values mean "any"; set fields are ANDed.
type ListFilter struct {
	Date      *Date
	ClientID  int64
	CreatedBy int64
}

// =============================================================================
// CHILD ROWS
// =============================================================================

// LineItem associates a product with a reservation.
// Subtotal is always Quantity * UnitPrice.
type LineItem struct {
	ID            int64
	ReservationID int64
	ProductID     int64
	ProductName   string // read side only
	Quantity      int
	UnitPrice     decimal.Decimal
	Subtotal      decimal.Decimal
}

// Reprice recomputes Subtotal from Quantity and UnitPrice.
func (li *LineItem) Reprice() {
	li.UnitPrice = Money(li.UnitPrice)
	li.Subtotal = Money(li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity))))
}

// Payment is a deposit recorded against a reservation. Immutable once stored.
type Payment struct {
	ID            int64
	ReservationID int64
	Amount        decimal.Decimal
	Method        string
	Notes         string
	CreatedAt     time.Time
}

// Known payment method labels. Method is free-form; these are what the dashboard offers.
const (
	MethodCash     = "Efectivo"
	MethodDebit    = "Tarjeta de débito"
	MethodCredit   = "Tarjeta de crédito"
	MethodTransfer = "Transferencia"
)

// =============================================================================
// MASTER DATA
// =============================================================================

type Client struct {
	ID        int64
	FirstName string
	LastName  string
	Phone     string
	Email     string
}

type Product struct {
	ID     int64
	Name   string
	Price  decimal.Decimal
	Active bool
}

type User struct {
	ID   int64
	Name string
	Role Role
}

// =============================================================================
// INPUTS AND PATCHES
// =============================================================================

// CreateInput carries the fields of a new reservation. Time is required;
// nil means it was not supplied. Seed is optional.
type CreateInput struct {
	ClientID  int64
	Date      Date
	Time      *TimeOfDay
	PartySize int
	Area      Area
	Type      Kind
	Notes     string
	Seed      *decimal.Decimal
}

// Patch is a partial header update. Nil fields are left unchanged.
//
// Estimated and Paid are administrative corrections that bypass the ledger;
// when either is set and Pending is not, Pending is re-derived.
type Patch struct {
	ClientID  *int64
	Date      *Date
	Time      *TimeOfDay
	PartySize *int
	Area      *Area
	Type      *Kind
	Notes     *string

	Estimated *decimal.Decimal
	Paid      *decimal.Decimal
	Pending   *decimal.Decimal
}

// Empty reports whether the patch sets nothing.
func (p Patch) Empty() bool {
	return p.ClientID == nil && p.Date == nil && p.Time == nil && p.PartySize == nil &&
		p.Area == nil && p.Type == nil && p.Notes == nil &&
		p.Estimated == nil && p.Paid == nil && p.Pending == nil
}

// LineItemPatch updates quantity and/or unit price of a line item.
type LineItemPatch struct {
	Quantity  *int
	UnitPrice *decimal.Decimal
}

// PaymentInput carries a new payment.
type PaymentInput struct {
	Amount decimal.Decimal
	Method string
	Notes  string
}

// Complete is the composed read model of one reservation.
type Complete struct {
	Reservation Reservation
	Client      *Client
	LineItems   []LineItem
	Payments    []Payment
}
