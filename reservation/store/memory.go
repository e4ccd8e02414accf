// Package store provides in-memory reservation.TxStore implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/cafeelangel/mesalista/reservation"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu   sync.RWMutex
	data *tables
	fail error
}

// tables holds every row. Its methods assume the caller holds Memory.mu.
type tables struct {
	nextID       int64
	reservations map[int64]reservation.Reservation
	items        map[int64]reservation.LineItem
	payments     map[int64]reservation.Payment
	clients      map[int64]reservation.Client
	products     map[int64]reservation.Product
	users        map[int64]reservation.User
}

func newTables() *tables {
	return &tables{
		reservations: make(map[int64]reservation.Reservation),
		items:        make(map[int64]reservation.LineItem),
		payments:     make(map[int64]reservation.Payment),
		clients:      make(map[int64]reservation.Client),
		products:     make(map[int64]reservation.Product),
		users:        make(map[int64]reservation.User),
	}
}

func NewMemory() *Memory {
	return &Memory{data: newTables()}
}

// SetFailure makes every subsequent call return err until cleared with nil.
func (m *Memory) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

func (m *Memory) read(fn func(t *tables) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fail != nil {
		return m.fail
	}
	return fn(m.data)
}

func (m *Memory) write(fn func(t *tables) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	return fn(m.data)
}

func (m *Memory) Ping(context.Context) error {
	return m.read(func(*tables) error { return nil })
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For the memory store this is a snapshot plus rollback on error; writers are
// serialized for the whole duration of fn.
func (m *Memory) WithTx(ctx context.Context, fn func(reservation.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}

	snapshot := m.data.clone()
	if err := fn(&txView{t: m.data}); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

func (t *tables) clone() *tables {
	c := newTables()
	c.nextID = t.nextID
	for k, v := range t.reservations {
		c.reservations[k] = v
	}
	for k, v := range t.items {
		c.items[k] = v
	}
	for k, v := range t.payments {
		c.payments[k] = v
	}
	for k, v := range t.clients {
		c.clients[k] = v
	}
	for k, v := range t.products {
		c.products[k] = v
	}
	for k, v := range t.users {
		c.users[k] = v
	}
	return c
}

func (t *tables) id() int64 {
	t.nextID++
	return t.nextID
}

// =============================================================================
// ROW OPERATIONS (lock-free, shared by Memory and txView)
// =============================================================================

func (t *tables) insertReservation(r reservation.Reservation) int64 {
	r.ID = t.id()
	t.reservations[r.ID] = r
	return r.ID
}

func (t *tables) getReservation(id int64) *reservation.Reservation {
	r, ok := t.reservations[id]
	if !ok {
		return nil
	}
	return &r
}

func (t *tables) updateReservation(r reservation.Reservation) {
	if _, ok := t.reservations[r.ID]; ok {
		t.reservations[r.ID] = r
	}
}

func (t *tables) saveTotals(id int64, totals reservation.Totals) {
	if r, ok := t.reservations[id]; ok {
		r.Totals = totals
		t.reservations[id] = r
	}
}

func (t *tables) listing(r reservation.Reservation) reservation.Listing {
	l := reservation.Listing{Reservation: r}
	if c, ok := t.clients[r.ClientID]; ok {
		l.ClientFirstName, l.ClientLastName = c.FirstName, c.LastName
	}
	if u, ok := t.users[r.CreatedBy]; ok {
		l.UserName = u.Name
	}
	return l
}

func (t *tables) listReservations(f reservation.ListFilter) []reservation.Listing {
	out := []reservation.Listing{}
	for _, r := range t.reservations {
		if f.Date != nil && !r.Date.Equal(*f.Date) {
			continue
		}
		if f.ClientID != 0 && r.ClientID != f.ClientID {
			continue
		}
		if f.CreatedBy != 0 && r.CreatedBy != f.CreatedBy {
			continue
		}
		out = append(out, t.listing(r))
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		if a.Time != b.Time {
			return a.Time.Before(b.Time)
		}
		return a.ID < b.ID
	})
	return out
}

func (t *tables) listBetween(from, to reservation.Date) []reservation.Listing {
	out := []reservation.Listing{}
	for _, r := range t.reservations {
		if r.Date.Between(from, to) {
			out = append(out, t.listing(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Time != b.Time {
			return a.Time.Before(b.Time)
		}
		return a.ID < b.ID
	})
	return out
}

func (t *tables) insertLineItem(li reservation.LineItem) int64 {
	li.ID = t.id()
	li.ProductName = ""
	t.items[li.ID] = li
	return li.ID
}

func (t *tables) getLineItem(id int64) *reservation.LineItem {
	li, ok := t.items[id]
	if !ok {
		return nil
	}
	li.ProductName = t.products[li.ProductID].Name
	return &li
}

func (t *tables) lineItems(reservationID int64) []reservation.LineItem {
	out := []reservation.LineItem{}
	for _, li := range t.items {
		if li.ReservationID == reservationID {
			li.ProductName = t.products[li.ProductID].Name
			out = append(out, li)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *tables) deleteLineItems(reservationID int64) {
	for id, li := range t.items {
		if li.ReservationID == reservationID {
			delete(t.items, id)
		}
	}
}

func (t *tables) insertPayment(p reservation.Payment) int64 {
	p.ID = t.id()
	t.payments[p.ID] = p
	return p.ID
}

func (t *tables) getPayment(id int64) *reservation.Payment {
	p, ok := t.payments[id]
	if !ok {
		return nil
	}
	return &p
}

func (t *tables) listPayments(reservationID int64) []reservation.Payment {
	out := []reservation.Payment{}
	for _, p := range t.payments {
		if p.ReservationID == reservationID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (t *tables) deletePayments(reservationID int64) {
	for id, p := range t.payments {
		if p.ReservationID == reservationID {
			delete(t.payments, id)
		}
	}
}

func (t *tables) getClient(id int64) *reservation.Client {
	c, ok := t.clients[id]
	if !ok {
		return nil
	}
	return &c
}

func (t *tables) getProduct(id int64) *reservation.Product {
	p, ok := t.products[id]
	if !ok {
		return nil
	}
	return &p
}

func (t *tables) getUser(id int64) *reservation.User {
	u, ok := t.users[id]
	if !ok {
		return nil
	}
	return &u
}

// =============================================================================
// reservation.Store ON MEMORY
// =============================================================================

func (m *Memory) InsertReservation(_ context.Context, r reservation.Reservation) (id int64, err error) {
	err = m.write(func(t *tables) error { id = t.insertReservation(r); return nil })
	return id, err
}

func (m *Memory) GetReservation(_ context.Context, id int64) (r *reservation.Reservation, err error) {
	err = m.read(func(t *tables) error { r = t.getReservation(id); return nil })
	return r, err
}

func (m *Memory) UpdateReservation(_ context.Context, r reservation.Reservation) error {
	return m.write(func(t *tables) error { t.updateReservation(r); return nil })
}

func (m *Memory) SaveTotals(_ context.Context, id int64, totals reservation.Totals) error {
	return m.write(func(t *tables) error { t.saveTotals(id, totals); return nil })
}

func (m *Memory) DeleteReservation(_ context.Context, id int64) error {
	return m.write(func(t *tables) error { delete(t.reservations, id); return nil })
}

func (m *Memory) ListReservations(_ context.Context, f reservation.ListFilter) (out []reservation.Listing, err error) {
	err = m.read(func(t *tables) error { out = t.listReservations(f); return nil })
	return out, err
}

func (m *Memory) ListReservationsBetween(_ context.Context, from, to reservation.Date) (out []reservation.Listing, err error) {
	err = m.read(func(t *tables) error { out = t.listBetween(from, to); return nil })
	return out, err
}

func (m *Memory) InsertLineItem(_ context.Context, li reservation.LineItem) (id int64, err error) {
	err = m.write(func(t *tables) error { id = t.insertLineItem(li); return nil })
	return id, err
}

func (m *Memory) GetLineItem(_ context.Context, id int64) (li *reservation.LineItem, err error) {
	err = m.read(func(t *tables) error { li = t.getLineItem(id); return nil })
	return li, err
}

func (m *Memory) UpdateLineItem(_ context.Context, li reservation.LineItem) error {
	return m.write(func(t *tables) error {
		if _, ok := t.items[li.ID]; ok {
			li.ProductName = ""
			t.items[li.ID] = li
		}
		return nil
	})
}

func (m *Memory) DeleteLineItem(_ context.Context, id int64) error {
	return m.write(func(t *tables) error { delete(t.items, id); return nil })
}

func (m *Memory) LineItems(_ context.Context, reservationID int64) (out []reservation.LineItem, err error) {
	err = m.read(func(t *tables) error { out = t.lineItems(reservationID); return nil })
	return out, err
}

func (m *Memory) DeleteLineItems(_ context.Context, reservationID int64) error {
	return m.write(func(t *tables) error { t.deleteLineItems(reservationID); return nil })
}

func (m *Memory) InsertPayment(_ context.Context, p reservation.Payment) (id int64, err error) {
	err = m.write(func(t *tables) error { id = t.insertPayment(p); return nil })
	return id, err
}

func (m *Memory) GetPayment(_ context.Context, id int64) (p *reservation.Payment, err error) {
	err = m.read(func(t *tables) error { p = t.getPayment(id); return nil })
	return p, err
}

func (m *Memory) DeletePayment(_ context.Context, id int64) error {
	return m.write(func(t *tables) error { delete(t.payments, id); return nil })
}

func (m *Memory) Payments(_ context.Context, reservationID int64) (out []reservation.Payment, err error) {
	err = m.read(func(t *tables) error { out = t.listPayments(reservationID); return nil })
	return out, err
}

func (m *Memory) DeletePayments(_ context.Context, reservationID int64) error {
	return m.write(func(t *tables) error { t.deletePayments(reservationID); return nil })
}

func (m *Memory) GetClient(_ context.Context, id int64) (c *reservation.Client, err error) {
	err = m.read(func(t *tables) error { c = t.getClient(id); return nil })
	return c, err
}

func (m *Memory) GetProduct(_ context.Context, id int64) (p *reservation.Product, err error) {
	err = m.read(func(t *tables) error { p = t.getProduct(id); return nil })
	return p, err
}

func (m *Memory) GetUser(_ context.Context, id int64) (u *reservation.User, err error) {
	err = m.read(func(t *tables) error { u = t.getUser(id); return nil })
	return u, err
}

// =============================================================================
// SEEDER
// =============================================================================

// SaveClient inserts c, or replaces it when c.ID is set.
func (m *Memory) SaveClient(_ context.Context, c reservation.Client) (int64, error) {
	err := m.write(func(t *tables) error {
		if c.ID == 0 {
			c.ID = t.id()
		} else if c.ID > t.nextID {
			t.nextID = c.ID
		}
		t.clients[c.ID] = c
		return nil
	})
	return c.ID, err
}

func (m *Memory) SaveProduct(_ context.Context, p reservation.Product) (int64, error) {
	err := m.write(func(t *tables) error {
		if p.ID == 0 {
			p.ID = t.id()
		} else if p.ID > t.nextID {
			t.nextID = p.ID
		}
		p.Price = reservation.Money(p.Price)
		t.products[p.ID] = p
		return nil
	})
	return p.ID, err
}

func (m *Memory) SaveUser(_ context.Context, u reservation.User) (int64, error) {
	err := m.write(func(t *tables) error {
		if u.ID == 0 {
			u.ID = t.id()
		} else if u.ID > t.nextID {
			t.nextID = u.ID
		}
		t.users[u.ID] = u
		return nil
	})
	return u.ID, err
}

func (m *Memory) Reset(context.Context) error {
	return m.write(func(t *tables) error {
		*t = *newTables()
		return nil
	})
}

// =============================================================================
// TRANSACTIONAL VIEW
// =============================================================================

// txView is the Store handed to WithTx callbacks. Memory.mu is already held.
type txView struct {
	t *tables
}

func (v *txView) InsertReservation(_ context.Context, r reservation.Reservation) (int64, error) {
	return v.t.insertReservation(r), nil
}

func (v *txView) GetReservation(_ context.Context, id int64) (*reservation.Reservation, error) {
	return v.t.getReservation(id), nil
}

func (v *txView) UpdateReservation(_ context.Context, r reservation.Reservation) error {
	v.t.updateReservation(r)
	return nil
}

func (v *txView) SaveTotals(_ context.Context, id int64, totals reservation.Totals) error {
	v.t.saveTotals(id, totals)
	return nil
}

func (v *txView) DeleteReservation(_ context.Context, id int64) error {
	delete(v.t.reservations, id)
	return nil
}

func (v *txView) ListReservations(_ context.Context, f reservation.ListFilter) ([]reservation.Listing, error) {
	return v.t.listReservations(f), nil
}

func (v *txView) ListReservationsBetween(_ context.Context, from, to reservation.Date) ([]reservation.Listing, error) {
	return v.t.listBetween(from, to), nil
}

func (v *txView) InsertLineItem(_ context.Context, li reservation.LineItem) (int64, error) {
	return v.t.insertLineItem(li), nil
}

func (v *txView) GetLineItem(_ context.Context, id int64) (*reservation.LineItem, error) {
	return v.t.getLineItem(id), nil
}

func (v *txView) UpdateLineItem(_ context.Context, li reservation.LineItem) error {
	if _, ok := v.t.items[li.ID]; ok {
		li.ProductName = ""
		v.t.items[li.ID] = li
	}
	return nil
}

func (v *txView) DeleteLineItem(_ context.Context, id int64) error {
	delete(v.t.items, id)
	return nil
}

func (v *txView) LineItems(_ context.Context, reservationID int64) ([]reservation.LineItem, error) {
	return v.t.lineItems(reservationID), nil
}

func (v *txView) DeleteLineItems(_ context.Context, reservationID int64) error {
	v.t.deleteLineItems(reservationID)
	return nil
}

func (v *txView) InsertPayment(_ context.Context, p reservation.Payment) (int64, error) {
	return v.t.insertPayment(p), nil
}

func (v *txView) GetPayment(_ context.Context, id int64) (*reservation.Payment, error) {
	return v.t.getPayment(id), nil
}

func (v *txView) DeletePayment(_ context.Context, id int64) error {
	delete(v.t.payments, id)
	return nil
}

func (v *txView) Payments(_ context.Context, reservationID int64) ([]reservation.Payment, error) {
	return v.t.listPayments(reservationID), nil
}

func (v *txView) DeletePayments(_ context.Context, reservationID int64) error {
	v.t.deletePayments(reservationID)
	return nil
}

func (v *txView) GetClient(_ context.Context, id int64) (*reservation.Client, error) {
	return v.t.getClient(id), nil
}

func (v *txView) GetProduct(_ context.Context, id int64) (*reservation.Product, error) {
	return v.t.getProduct(id), nil
}

func (v *txView) GetUser(_ context.Context, id int64) (*reservation.User, error) {
	return v.t.getUser(id), nil
}
