/*
service.go - Reservation aggregate

PURPOSE:
  Service is the single entry point for every reservation operation. It owns
  the header, coordinates line items and payments, and keeps the three money
  fields consistent by running the ledger after each child mutation.

MUTATION FLOW:
  ┌──────────────────────────────────────────────────────────────────────┐
  │                                                                      │
  │  validate   ──▶  lock reservation  ──▶  WithTx {                     │
  │  input                                   load header (NotFound)      │
  │                                          access policy (Denied)      │
  │                                          referenced rows (NotFound)  │
  │                                          write child row             │
  │                                          Ledger.Recalculate          │
  │                                        }  ──▶  notify                │
  │                                                                      │
  └──────────────────────────────────────────────────────────────────────┘

CONCURRENCY:
  Money-affecting operations on the same reservation are serialized by a
  per-reservation lock, and each one recomputes totals from source rows
  inside the same storage transaction that wrote the child row. Two
  concurrent deposits can therefore never lose an update.

ACCESS:
  The actor is an explicit argument. Update, Delete and every child
  mutation are checked against CanModify using the OWNING reservation's
  creator, so line item and payment ids cannot be used to bypass the gate.
  A missing reservation is reported as NotFound before any access check.

SEE ALSO:
  - ledger.go: totals derivation
  - access.go: CanModify
  - weekly.go: Upcoming view
*/
package reservation

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// OVERPAYMENT POLICY
// =============================================================================

// OverpaymentPolicy decides whether a payment may exceed the pending balance.
type OverpaymentPolicy string

const (
	// OverpaymentAllow accepts any positive amount; pending may go negative.
	OverpaymentAllow OverpaymentPolicy = "allow"
	// OverpaymentReject refuses payments larger than the pending balance.
	OverpaymentReject OverpaymentPolicy = "reject"
)

func ParseOverpaymentPolicy(s string) (OverpaymentPolicy, error) {
	switch p := OverpaymentPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", OverpaymentAllow:
		return OverpaymentAllow, nil
	case OverpaymentReject:
		return OverpaymentReject, nil
	default:
		return "", invalid("overpayment_policy", "must be allow or reject")
	}
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	store       TxStore
	ledger      Ledger
	notifier    Notifier
	overpayment OverpaymentPolicy
	now         func() time.Time
	loc         *time.Location
	locks       *keyedMutex
}

type Option func(*Service)

// WithNotifier sets who is told about committed changes.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithOverpaymentPolicy(p OverpaymentPolicy) Option {
	return func(s *Service) { s.overpayment = p }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the zone that defines "today" for the weekly view.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func NewService(store TxStore, opts ...Option) *Service {
	s := &Service{
		store:       store,
		notifier:    NopNotifier{},
		overpayment: OverpaymentAllow,
		now:         time.Now,
		loc:         time.Local,
		locks:       newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OverpaymentPolicy returns the configured policy.
func (s *Service) OverpaymentPolicy() OverpaymentPolicy { return s.overpayment }

// Ping checks storage reachability.
func (s *Service) Ping(ctx context.Context) error {
	return storageErr("ping", s.store.Ping(ctx))
}

func (s *Service) tx(ctx context.Context, op string, fn func(Store) error) error {
	return storageErr(op, s.store.WithTx(ctx, fn))
}

func (s *Service) emit(ctx context.Context, e Event) {
	e.At = s.now()
	s.notifier.Notify(ctx, e)
}

// loadForChange fetches reservation id and applies the access policy.
func loadForChange(ctx context.Context, st Store, actor Actor, id int64) (*Reservation, error) {
	r, err := st.GetReservation(ctx, id)
	if err != nil {
		return nil, storageErr("load reservation", err)
	}
	if r == nil {
		return nil, &NotFoundError{Kind: "reservation", ID: id}
	}
	if err := authorize(actor, r); err != nil {
		return nil, err
	}
	return r, nil
}

// =============================================================================
// HEADER OPERATIONS
// =============================================================================

// Create persists a new reservation owned by actor. Any authenticated role may create.
func (s *Service) Create(ctx context.Context, actor Actor, in CreateInput) (int64, error) {
	if err := validateCreate(in); err != nil {
		return 0, err
	}
	client, err := s.store.GetClient(ctx, in.ClientID)
	if err != nil {
		return 0, storageErr("load client", err)
	}
	if client == nil {
		return 0, &NotFoundError{Kind: "client", ID: in.ClientID}
	}

	seed := decimal.Zero
	if in.Seed != nil {
		seed = *in.Seed
	}
	now := s.now()
	r := Reservation{
		ClientID:  in.ClientID,
		CreatedBy: actor.ID,
		Date:      in.Date,
		Time:      *in.Time,
		PartySize: in.PartySize,
		Area:      in.Area,
		Type:      in.Type,
		Notes:     strings.TrimSpace(in.Notes),
		Totals:    NewTotals(seed, decimal.Zero),
		CreatedAt: now,
		UpdatedAt: now,
	}
	id, err := s.store.InsertReservation(ctx, r)
	if err != nil {
		return 0, storageErr("insert reservation", err)
	}
	s.emit(ctx, Event{Type: EventCreated, ReservationID: id, ActorID: actor.ID, Date: r.Date, Totals: r.Totals})
	return id, nil
}

func validateCreate(in CreateInput) error {
	v := &ValidationError{}
	if in.ClientID <= 0 {
		v.Add("cliente_id", "is required")
	}
	if in.Date.IsZero() {
		v.Add("fecha", "is required")
	}
	if in.Time == nil {
		v.Add("hora", "is required")
	}
	if in.PartySize < 1 {
		v.Add("cantidad_personas", "must be at least 1")
	}
	if in.Area == "" {
		v.Add("area", "is required")
	} else if !in.Area.Valid() {
		v.Add("area", "unknown area "+string(in.Area))
	}
	if in.Type == "" {
		v.Add("tipo_reservacion", "is required")
	} else if !in.Type.Valid() {
		v.Add("tipo_reservacion", "unknown type "+string(in.Type))
	}
	if in.Seed != nil && in.Seed.IsNegative() {
		v.Add("total_estimada", "must not be negative")
	}
	return v.orNil()
}

// Update applies the provided header fields. Money fields in the patch are an
// administrative override that bypasses the ledger.
func (s *Service) Update(ctx context.Context, actor Actor, id int64, p Patch) error {
	if err := validatePatch(p); err != nil {
		return err
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	var updated Reservation
	err := s.tx(ctx, "update reservation", func(st Store) error {
		r, err := loadForChange(ctx, st, actor, id)
		if err != nil {
			return err
		}
		if p.ClientID != nil && *p.ClientID != r.ClientID {
			c, err := st.GetClient(ctx, *p.ClientID)
			if err != nil {
				return storageErr("load client", err)
			}
			if c == nil {
				return &NotFoundError{Kind: "client", ID: *p.ClientID}
			}
		}
		applyPatch(r, p)
		r.UpdatedAt = s.now()
		if err := st.UpdateReservation(ctx, *r); err != nil {
			return storageErr("update reservation", err)
		}
		updated = *r
		return nil
	})
	if err != nil {
		return err
	}
	s.emit(ctx, Event{Type: EventUpdated, ReservationID: id, ActorID: actor.ID, Date: updated.Date, Totals: updated.Totals})
	return nil
}

func validatePatch(p Patch) error {
	v := &ValidationError{}
	if p.Empty() {
		v.Add("body", "no fields to update")
	}
	if p.ClientID != nil && *p.ClientID <= 0 {
		v.Add("cliente_id", "must be a positive id")
	}
	if p.Date != nil && p.Date.IsZero() {
		v.Add("fecha", "must not be empty")
	}
	if p.PartySize != nil && *p.PartySize < 1 {
		v.Add("cantidad_personas", "must be at least 1")
	}
	if p.Area != nil && !p.Area.Valid() {
		v.Add("area", "unknown area "+string(*p.Area))
	}
	if p.Type != nil && !p.Type.Valid() {
		v.Add("tipo_reservacion", "unknown type "+string(*p.Type))
	}
	if p.Estimated != nil && p.Estimated.IsNegative() {
		v.Add("total_estimada", "must not be negative")
	}
	if p.Paid != nil && p.Paid.IsNegative() {
		v.Add("total_pagado", "must not be negative")
	}
	return v.orNil()
}

func applyPatch(r *Reservation, p Patch) {
	if p.ClientID != nil {
		r.ClientID = *p.ClientID
	}
	if p.Date != nil {
		r.Date = *p.Date
	}
	if p.Time != nil {
		r.Time = *p.Time
	}
	if p.PartySize != nil {
		r.PartySize = *p.PartySize
	}
	if p.Area != nil {
		r.Area = *p.Area
	}
	if p.Type != nil {
		r.Type = *p.Type
	}
	if p.Notes != nil {
		r.Notes = strings.TrimSpace(*p.Notes)
	}

	if p.Estimated == nil && p.Paid == nil && p.Pending == nil {
		return
	}
	t := r.Totals
	if p.Estimated != nil {
		t.Estimated = Money(*p.Estimated)
	}
	if p.Paid != nil {
		t.Paid = Money(*p.Paid)
	}
	if p.Pending != nil {
		t.Pending = Money(*p.Pending)
	} else {
		t.Pending = Money(t.Estimated.Sub(t.Paid))
	}
	r.Totals = t
}

// Delete removes a reservation with all its line items and payments in one transaction.
func (s *Service) Delete(ctx context.Context, actor Actor, id int64) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	var gone Reservation
	err := s.tx(ctx, "delete reservation", func(st Store) error {
		r, err := loadForChange(ctx, st, actor, id)
		if err != nil {
			return err
		}
		if err := st.DeleteLineItems(ctx, id); err != nil {
			return storageErr("delete line items", err)
		}
		if err := st.DeletePayments(ctx, id); err != nil {
			return storageErr("delete payments", err)
		}
		if err := st.DeleteReservation(ctx, id); err != nil {
			return storageErr("delete reservation", err)
		}
		gone = *r
		return nil
	})
	if err != nil {
		return err
	}
	s.emit(ctx, Event{Type: EventDeleted, ReservationID: id, ActorID: actor.ID, Date: gone.Date})
	return nil
}

// =============================================================================
// READS
// =============================================================================

func (s *Service) FindByID(ctx context.Context, id int64) (*Reservation, error) {
	r, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return nil, storageErr("load reservation", err)
	}
	if r == nil {
		return nil, &NotFoundError{Kind: "reservation", ID: id}
	}
	return r, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Listing, error) {
	rows, err := s.store.ListReservations(ctx, f)
	if err != nil {
		return nil, storageErr("list reservations", err)
	}
	return rows, nil
}

// GetComplete composes header, client, line items and payments.
// Client is nil if the referenced client has since been removed.
func (s *Service) GetComplete(ctx context.Context, id int64) (*Complete, error) {
	r, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	client, err := s.store.GetClient(ctx, r.ClientID)
	if err != nil {
		return nil, storageErr("load client", err)
	}
	items, err := s.LineItems(ctx, id)
	if err != nil {
		return nil, err
	}
	payments, err := s.Payments(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Complete{Reservation: *r, Client: client, LineItems: items, Payments: payments}, nil
}

// LineItems lists a reservation's items. An unknown reservation yields an empty list.
func (s *Service) LineItems(ctx context.Context, reservationID int64) ([]LineItem, error) {
	items, err := s.store.LineItems(ctx, reservationID)
	if err != nil {
		return nil, storageErr("list line items", err)
	}
	return items, nil
}

// Payments lists a reservation's payments, newest first.
func (s *Service) Payments(ctx context.Context, reservationID int64) ([]Payment, error) {
	payments, err := s.store.Payments(ctx, reservationID)
	if err != nil {
		return nil, storageErr("list payments", err)
	}
	return payments, nil
}

// =============================================================================
// LINE ITEMS
// =============================================================================

// AddLineItem attaches quantity units of a product, snapshotting its current price.
func (s *Service) AddLineItem(ctx context.Context, actor Actor, reservationID, productID int64, quantity int) (int64, error) {
	v := &ValidationError{}
	if productID <= 0 {
		v.Add("producto_id", "is required")
	}
	if quantity <= 0 {
		v.Add("cantidad", "must be greater than 0")
	}
	if err := v.orNil(); err != nil {
		return 0, err
	}

	unlock := s.locks.Lock(reservationID)
	defer unlock()

	var (
		itemID int64
		totals Totals
		date   Date
	)
	err := s.tx(ctx, "add line item", func(st Store) error {
		r, err := loadForChange(ctx, st, actor, reservationID)
		if err != nil {
			return err
		}
		product, err := st.GetProduct(ctx, productID)
		if err != nil {
			return storageErr("load product", err)
		}
		if product == nil {
			return &NotFoundError{Kind: "product", ID: productID}
		}
		if !product.Active {
			return &InactiveProductError{ProductID: productID}
		}

		li := LineItem{
			ReservationID: reservationID,
			ProductID:     productID,
			Quantity:      quantity,
			UnitPrice:     product.Price,
		}
		li.Reprice()
		if itemID, err = st.InsertLineItem(ctx, li); err != nil {
			return storageErr("insert line item", err)
		}
		totals, _, err = s.ledger.Recalculate(ctx, st, reservationID, TriggerLineItems)
		date = r.Date
		return err
	})
	if err != nil {
		return 0, err
	}
	s.emit(ctx, Event{Type: EventItemAdded, ReservationID: reservationID, SubjectID: itemID, ActorID: actor.ID, Date: date, Totals: totals})
	return itemID, nil
}

// UpdateLineItem merges p into the item, recomputes its subtotal and the
// owning reservation's totals.
func (s *Service) UpdateLineItem(ctx context.Context, actor Actor, itemID int64, p LineItemPatch) error {
	v := &ValidationError{}
	if p.Quantity == nil && p.UnitPrice == nil {
		v.Add("body", "cantidad or precio_unitario is required")
	}
	if p.Quantity != nil && *p.Quantity <= 0 {
		v.Add("cantidad", "must be greater than 0")
	}
	if p.UnitPrice != nil && p.UnitPrice.IsNegative() {
		v.Add("precio_unitario", "must not be negative")
	}
	if err := v.orNil(); err != nil {
		return err
	}

	owner, err := s.lineItemOwner(ctx, itemID)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(owner)
	defer unlock()

	var (
		totals Totals
		date   Date
	)
	err = s.tx(ctx, "update line item", func(st Store) error {
		li, err := st.GetLineItem(ctx, itemID)
		if err != nil {
			return storageErr("load line item", err)
		}
		if li == nil {
			return &NotFoundError{Kind: "line item", ID: itemID}
		}
		r, err := loadForChange(ctx, st, actor, li.ReservationID)
		if err != nil {
			return err
		}
		if p.Quantity != nil {
			li.Quantity = *p.Quantity
		}
		if p.UnitPrice != nil {
			li.UnitPrice = *p.UnitPrice
		}
		li.Reprice()
		if err := st.UpdateLineItem(ctx, *li); err != nil {
			return storageErr("update line item", err)
		}
		totals, _, err = s.ledger.Recalculate(ctx, st, li.ReservationID, TriggerLineItems)
		date = r.Date
		return err
	})
	if err != nil {
		return err
	}
	s.emit(ctx, Event{Type: EventItemUpdated, ReservationID: owner, SubjectID: itemID, ActorID: actor.ID, Date: date, Totals: totals})
	return nil
}

// RemoveLineItem deletes an item and recomputes the former owner's totals.
func (s *Service) RemoveLineItem(ctx context.Context, actor Actor, itemID int64) error {
	owner, err := s.lineItemOwner(ctx, itemID)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(owner)
	defer unlock()

	var (
		totals Totals
		date   Date
	)
	err = s.tx(ctx, "remove line item", func(st Store) error {
		li, err := st.GetLineItem(ctx, itemID)
		if err != nil {
			return storageErr("load line item", err)
		}
		if li == nil {
			return &NotFoundError{Kind: "line item", ID: itemID}
		}
		r, err := loadForChange(ctx, st, actor, li.ReservationID)
		if err != nil {
			return err
		}
		if err := st.DeleteLineItem(ctx, itemID); err != nil {
			return storageErr("delete line item", err)
		}
		totals, _, err = s.ledger.Recalculate(ctx, st, li.ReservationID, TriggerLineItems)
		date = r.Date
		return err
	})
	if err != nil {
		return err
	}
	s.emit(ctx, Event{Type: EventItemRemoved, ReservationID: owner, SubjectID: itemID, ActorID: actor.ID, Date: date, Totals: totals})
	return nil
}

func (s *Service) lineItemOwner(ctx context.Context, itemID int64) (int64, error) {
	li, err := s.store.GetLineItem(ctx, itemID)
	if err != nil {
		return 0, storageErr("load line item", err)
	}
	if li == nil {
		return 0, &NotFoundError{Kind: "line item", ID: itemID}
	}
	return li.ReservationID, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

// AddPayment records a deposit and recomputes the reservation's totals.
func (s *Service) AddPayment(ctx context.Context, actor Actor, reservationID int64, in PaymentInput) (int64, error) {
	v := &ValidationError{}
	if !in.Amount.IsPositive() {
		v.Add("monto", "must be greater than 0")
	}
	if strings.TrimSpace(in.Method) == "" {
		v.Add("metodo_pago", "is required")
	}
	if err := v.orNil(); err != nil {
		return 0, err
	}
	amount := Money(in.Amount)
	if !amount.IsPositive() {
		return 0, invalid("monto", "must be at least 0.01")
	}

	unlock := s.locks.Lock(reservationID)
	defer unlock()

	var (
		paymentID int64
		totals    Totals
		date      Date
	)
	err := s.tx(ctx, "add payment", func(st Store) error {
		r, err := loadForChange(ctx, st, actor, reservationID)
		if err != nil {
			return err
		}
		if s.overpayment == OverpaymentReject && amount.GreaterThan(r.Totals.Pending) {
			return &OverpaymentError{
				ReservationID: reservationID,
				Pending:       r.Totals.Pending.StringFixed(MoneyPlaces),
				Requested:     amount.StringFixed(MoneyPlaces),
			}
		}
		p := Payment{
			ReservationID: reservationID,
			Amount:        amount,
			Method:        strings.TrimSpace(in.Method),
			Notes:         strings.TrimSpace(in.Notes),
			CreatedAt:     s.now(),
		}
		if paymentID, err = st.InsertPayment(ctx, p); err != nil {
			return storageErr("insert payment", err)
		}
		totals, _, err = s.ledger.Recalculate(ctx, st, reservationID, TriggerPayments)
		date = r.Date
		return err
	})
	if err != nil {
		return 0, err
	}
	s.emit(ctx, Event{Type: EventPaymentAdded, ReservationID: reservationID, SubjectID: paymentID, ActorID: actor.ID, Date: date, Totals: totals})
	return paymentID, nil
}

// RemovePayment deletes a deposit and recomputes the former owner's totals.
func (s *Service) RemovePayment(ctx context.Context, actor Actor, paymentID int64) error {
	p, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return storageErr("load payment", err)
	}
	if p == nil {
		return &NotFoundError{Kind: "payment", ID: paymentID}
	}
	owner := p.ReservationID
	unlock := s.locks.Lock(owner)
	defer unlock()

	var (
		totals Totals
		date   Date
	)
	err = s.tx(ctx, "remove payment", func(st Store) error {
		p, err := st.GetPayment(ctx, paymentID)
		if err != nil {
			return storageErr("load payment", err)
		}
		if p == nil {
			return &NotFoundError{Kind: "payment", ID: paymentID}
		}
		r, err := loadForChange(ctx, st, actor, p.ReservationID)
		if err != nil {
			return err
		}
		if err := st.DeletePayment(ctx, paymentID); err != nil {
			return storageErr("delete payment", err)
		}
		totals, _, err = s.ledger.Recalculate(ctx, st, p.ReservationID, TriggerPayments)
		date = r.Date
		return err
	})
	if err != nil {
		return err
	}
	s.emit(ctx, Event{Type: EventPaymentRemoved, ReservationID: owner, SubjectID: paymentID, ActorID: actor.ID, Date: date, Totals: totals})
	return nil
}
