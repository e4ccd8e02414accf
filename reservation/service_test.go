package reservation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cafeelangel/mesalista/reservation"
	"github.com/cafeelangel/mesalista/reservation/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	admin  = reservation.Actor{ID: 1, Role: reservation.RoleAdmin}
	editor = reservation.Actor{ID: 2, Role: reservation.RoleEditor}
	viewer = reservation.Actor{ID: 7, Role: reservation.RoleViewer}
	other  = reservation.Actor{ID: 9, Role: reservation.RoleViewer}
)

const (
	clientID         int64 = 100
	activeProduct    int64 = 200
	inactiveProduct  int64 = 201
	expensiveProduct int64 = 202
)

var fixedNow = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []reservation.Event
}

func (r *recorder) Notify(_ context.Context, e reservation.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []reservation.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]reservation.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func seed(t *testing.T, m *store.Memory) {
	t.Helper()
	ctx := context.Background()
	_, err := m.SaveClient(ctx, reservation.Client{ID: clientID, FirstName: "Lucía", LastName: "Hernández"})
	require.NoError(t, err)
	_, err = m.SaveProduct(ctx, reservation.Product{ID: activeProduct, Name: "Paella", Price: money("50.00"), Active: true})
	require.NoError(t, err)
	_, err = m.SaveProduct(ctx, reservation.Product{ID: inactiveProduct, Name: "Pozole", Price: money("80.00"), Active: false})
	require.NoError(t, err)
	_, err = m.SaveProduct(ctx, reservation.Product{ID: expensiveProduct, Name: "Cordero", Price: money("125.50"), Active: true})
	require.NoError(t, err)
	for _, u := range []reservation.User{
		{ID: admin.ID, Name: "Ana", Role: admin.Role},
		{ID: editor.ID, Name: "Beto", Role: editor.Role},
		{ID: viewer.ID, Name: "Carla", Role: viewer.Role},
		{ID: other.ID, Name: "Diego", Role: other.Role},
	} {
		_, err = m.SaveUser(ctx, u)
		require.NoError(t, err)
	}
}

func newTestService(t *testing.T, opts ...reservation.Option) (*reservation.Service, *store.Memory, *recorder) {
	t.Helper()
	m := store.NewMemory()
	seed(t, m)
	rec := &recorder{}
	opts = append([]reservation.Option{
		reservation.WithClock(func() time.Time { return fixedNow }),
		reservation.WithLocation(time.UTC),
		reservation.WithNotifier(rec),
	}, opts...)
	return reservation.NewService(m, opts...), m, rec
}

func at(s string) *reservation.TimeOfDay {
	tm := reservation.MustTime(s)
	return &tm
}

func baseInput() reservation.CreateInput {
	return reservation.CreateInput{
		ClientID:  clientID,
		Date:      reservation.MustDate("2025-03-15"),
		Time:      at("19:30"),
		PartySize: 4,
		Area:      reservation.AreaRestaurant,
		Type:      reservation.KindOpenMenu,
	}
}

func mustCreate(t *testing.T, svc *reservation.Service, actor reservation.Actor, in reservation.CreateInput) int64 {
	t.Helper()
	id, err := svc.Create(context.Background(), actor, in)
	require.NoError(t, err)
	return id
}

func totalsOf(t *testing.T, svc *reservation.Service, id int64) reservation.Totals {
	t.Helper()
	r, err := svc.FindByID(context.Background(), id)
	require.NoError(t, err)
	return r.Totals
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreate_SeedEstimate(t *testing.T) {
	svc, _, rec := newTestService(t)
	in := baseInput()
	s := money("350")
	in.Seed = &s

	id := mustCreate(t, svc, viewer, in)

	r, err := svc.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, viewer.ID, r.CreatedBy)
	assertTotals(t, r.Totals, "350.00", "0.00", "350.00")
	assert.Equal(t, []reservation.EventType{reservation.EventCreated}, rec.types())
}

func TestCreate_ValidationCollectsAllFields(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Create(context.Background(), admin, reservation.CreateInput{
		PartySize: 0,
		Area:      "Terraza",
	})

	var verr *reservation.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, reservation.ErrValidation)
	for _, f := range []string{"cliente_id", "fecha", "hora", "cantidad_personas", "area", "tipo_reservacion"} {
		assert.Contains(t, verr.Fields, f)
	}
}

func TestCreate_RequiresTime(t *testing.T) {
	// GIVEN: an otherwise valid input with no time of day
	// WHEN: creating
	// THEN: it fails on "hora" alone and nothing is stored as midnight

	svc, _, rec := newTestService(t)
	in := baseInput()
	in.Time = nil

	_, err := svc.Create(context.Background(), admin, in)

	var verr *reservation.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, map[string]string{"hora": "is required"}, verr.Fields)
	rows, err := svc.List(context.Background(), reservation.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Empty(t, rec.types())
}

func TestCreate_UnknownClient(t *testing.T) {
	svc, _, _ := newTestService(t)
	in := baseInput()
	in.ClientID = 555

	_, err := svc.Create(context.Background(), admin, in)

	assert.ErrorIs(t, err, reservation.ErrNotFound)
}

// =============================================================================
// SCENARIO A - full money flow
// =============================================================================

func TestScenarioA_ItemPaymentRemoveItem(t *testing.T) {
	// GIVEN: a reservation created with seed 0
	// WHEN: adding 2 x 50.00, a 40.00 deposit, then removing the item
	// THEN: totals go 100/0/100, 100/40/60, 0/40/-40

	svc, _, rec := newTestService(t)
	ctx := context.Background()
	in := baseInput()
	zero := decimal.Zero
	in.Seed = &zero
	id := mustCreate(t, svc, editor, in)

	itemID, err := svc.AddLineItem(ctx, editor, id, activeProduct, 2)
	require.NoError(t, err)
	assertTotals(t, totalsOf(t, svc, id), "100.00", "0.00", "100.00")

	_, err = svc.AddPayment(ctx, editor, id, reservation.PaymentInput{Amount: money("40.00"), Method: reservation.MethodCash})
	require.NoError(t, err)
	assertTotals(t, totalsOf(t, svc, id), "100.00", "40.00", "60.00")

	require.NoError(t, svc.RemoveLineItem(ctx, editor, itemID))
	assertTotals(t, totalsOf(t, svc, id), "0.00", "40.00", "-40.00")

	assert.Equal(t, []reservation.EventType{
		reservation.EventCreated,
		reservation.EventItemAdded,
		reservation.EventPaymentAdded,
		reservation.EventItemRemoved,
	}, rec.types())
	last := rec.events[len(rec.events)-1]
	assertTotals(t, last.Totals, "0.00", "40.00", "-40.00")
}

func TestPaymentOnSeededReservation_KeepsSeed(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	in := baseInput()
	s := money("1200")
	in.Seed = &s
	id := mustCreate(t, svc, admin, in)

	_, err := svc.AddPayment(ctx, admin, id, reservation.PaymentInput{Amount: money("200"), Method: reservation.MethodDebit})
	require.NoError(t, err)

	assertTotals(t, totalsOf(t, svc, id), "1200.00", "200.00", "1000.00")
}

// =============================================================================
// LINE ITEMS
// =============================================================================

func TestScenarioC_InactiveProduct(t *testing.T) {
	// GIVEN: a reservation with one item
	// WHEN: attaching an inactive product
	// THEN: InvalidState, no row, totals unchanged

	svc, _, _ := newTestService(t)
	ctx := context.Background()
	id := mustCreate(t, svc, admin, baseInput())
	_, err := svc.AddLineItem(ctx, admin, id, activeProduct, 1)
	require.NoError(t, err)
	before := totalsOf(t, svc, id)

	_, err = svc.AddLineItem(ctx, admin, id, inactiveProduct, 3)

	var inactive *reservation.InactiveProductError
	assert.ErrorAs(t, err, &inactive)
	assert.ErrorIs(t, err, reservation.ErrInvalidState)
	items, err := svc.LineItems(ctx, id)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.True(t, before.Equal(totalsOf(t, svc, id)))
}

func TestAddLineItem_Failures(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	id := mustCreate(t, svc, admin, baseInput())

	_, err := svc.AddLineItem(ctx, admin, id, activeProduct, 0)
	assert.ErrorIs(t, err, reservation.ErrValidation)

	_, err = svc.AddLineItem(ctx, admin, 9999, activeProduct, 1)
	assert.ErrorIs(t, err, reservation.ErrNotFound)

	_, err = svc.AddLineItem(ctx, admin, id, 9999, 1)
	var nf *reservation.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "product", nf.Kind)
}

func TestAddLineItem_SnapshotsPrice(t *testing.T) {
	// GIVEN: an item added at 50.00
	// WHEN: the product price changes afterwards
	// THEN: the stored unit price is still 50.00

	svc, m, _ := newTestService(t)
	ctx := context.Background()
	id := mustCreate(t, svc, admin, baseInput())
	_, err := svc.AddLineItem(ctx, admin, id, activeProduct, 1)
	require.NoError(t, err)

	_, err = m.SaveProduct(ctx, reservation.Product{ID: activeProduct, Name: "Paella", Price: money("75.00"), Active: true})
	require.NoError(t, err)

	items, err := svc.LineItems(ctx, id)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "50.00", items[0].UnitPrice.StringFixed(2))
	assert.Equal(t, "Paella", items[0].ProductName)
}

func TestUpdateLineItem_MergesAndRecomputes(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	id := mustCreate(t, svc, admin, baseInput())
	a, err := svc.AddLineItem(ctx, admin, id, activeProduct, 2)
	require.NoError(t, err)
	_, err = svc.AddLineItem(ctx, admin, id, expensiveProduct, 1)
	require.NoError(t, err)
	assertTotals(t, totalsOf(t, svc, id), "225.50", "0.00", "225.50")

	qty := 3
	require.NoError(t, svc.UpdateLineItem(ctx, admin, a, reservation.LineItemPatch{Quantity: &qty}))
	assertTotals(t, totalsOf(t, svc, id), "275.50", "0.00", "275.50")

	price := money("45.00")
	require.NoError(t, svc.UpdateLineItem(ctx, admin, a, reservation.LineItemPatch{UnitPrice: &price}))
	assertTotals(t, totalsOf(t, svc, id), "260.50", "0.00", "260.50")

	items, err := svc.LineItems(ctx, id)
	require.NoError(t, err)
	for _, li := range items {
		assert.True(t, li.Subtotal.Equal(li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))))
	}
}

func TestUpdateLineItem_Failures(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	id := mustCreate(t, svc, admin, baseInput())
	itemID, err := svc.AddLineItem(ctx, admin, id, activeProduct, 2)
	require.NoError(t, err)

	zero := 0
	assert.ErrorIs(t, svc.UpdateLineItem(ctx, admin, itemID, reservation.LineItemPatch{Quantity: &zero}), reservation.ErrValidation)
	assert.ErrorIs(t, svc.UpdateLineItem(ctx, admin, itemID, reservation.LineItemPatch{}), reservation.ErrValidation)
	one := 1
	assert.ErrorIs(t, svc.UpdateLineItem(ctx, admin, 9999, reservation.LineItemPatch{Quantity: &one}), reservation.ErrNotFound)
	assert.ErrorIs(t, svc.RemoveLineItem(ctx, admin, 9999), reservation.ErrNotFound)
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestAddPayment_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	id := mustCreate(t, svc, admin, baseInput())

	_, err := svc.AddPayment(ctx, admin, id, reservation.PaymentInput{Amount: decimal.Zero, Method: reservation.MethodCash})
	assert.ErrorIs(t, err, reservation.ErrValidation)

	_, err = svc.AddPayment(ctx, admin, id, reservation.PaymentInput{Amount: money("-5"), Method: reservation.MethodCash})
	assert.ErrorIs(t, err, reservation.ErrValidation)

	_, err = svc.AddPayment(ctx, admin, id, reservation.PaymentInput{Amount: money("5"), Method: "   "})
	assert.ErrorIs(t, err, reservation.ErrValidation)

	_, err = svc.AddPayment(ctx, admin, 9999, reservation.PaymentInput{Amount: money("5"), Method: reservation.MethodCash})
	assert.ErrorIs(t, err, reservation.ErrNotFound)
}

func TestOverpayment_AllowedByDefault(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	assert.Equal(t, reservation.OverpaymentAllow, svc.OverpaymentPolicy())
	in := baseInput()
	s := money("100")
	in.Seed = &s
	id := mustCreate(t, svc, admin, in)

	_, err := svc.AddPayment(ctx, admin, id, reservation.PaymentInput{Amount: money("150"), Method: reservation.MethodCredit})
	require.NoError(t, err)

	assertTotals(t, totalsOf(t, svc, id), "100.00", "150.00", "-50.00")
}

func TestOverpayment_RejectPolicy(t *testing.T) {
	// GIVEN: the reject policy and a pending balance of 100
	// WHEN: depositing 100.01
	// THEN: InvalidState and no payment stored; exactly 100 is accepted

	svc, _, _ := newTestService(t, reservation.WithOverpaymentPolicy(reservation.OverpaymentReject))
	ctx := context.Background()
	assert.Equal(t, reservation.OverpaymentReject, svc.OverpaymentPolicy())
	in := baseInput()
	s := money("100")
	in.Seed = &s
	id := mustCreate(t, svc, admin, in)

	_, err := svc.AddPayment(ctx, admin, id, reservation.PaymentInput{Amount: money("100.01"), Method: reservation.MethodCash})
	var over *reservation.OverpaymentError
	require.ErrorAs(t, err, &over)
	assert.ErrorIs(t, err, reservation.ErrInvalidState)
	assert.Equal(t, "100.00", over.Pending)

	payments, err := svc.Payments(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, payments)

	_, err = svc.AddPayment(ctx, admin, id, reservation.PaymentInput{Amount: money("100"), Method: reservation.MethodCash})
	require.NoError(t, err)
	assertTotals(t, totalsOf(t, svc, id), "100.00", "100.00", "0.00")
}

func TestScenarioD_RemoveMissingPayment(t *testing.T) {
	svc, _, rec := newTestService(t)
	ctx := context.Background()
	id := mustCreate(t, svc, admin, baseInput())
	before := totalsOf(t, svc, id)

	err := svc.RemovePayment(ctx, admin, 424242)

	assert.ErrorIs(t, err, reservation.ErrNotFound)
	assert.True(t, before.Equal(totalsOf(t, svc, id)))
	assert.Equal(t, []reservation.EventType{reservation.EventCreated}, rec.types())
}

func TestPayments_NewestFirst(t *testing.T) {
	m := store.NewMemory()
	seed(t, m)
	now := fixedNow
	svc := reservation.NewService(m, reservation.WithClock(func() time.Time {
		now = now.Add(time.Minute)
		return now
	}))
	ctx := context.Background()
	id := mustCreate(t, svc, admin, baseInput())

	first, err := svc.AddPayment(ctx, admin, id, reservation.PaymentInput{Amount: money("10"), Method: reservation.MethodCash})
	require.NoError(t, err)
	second, err := svc.AddPayment(ctx, admin, id, reservation.PaymentInput{Amount: money("20"), Method: reservation.MethodCash})
	require.NoError(t, err)

	payments, err := svc.Payments(ctx, id)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, second, payments[0].ID)
	assert.Equal(t, first, payments[1].ID)

	require.NoError(t, svc.RemovePayment(ctx, admin, second))
	assertTotals(t, totalsOf(t, svc, id), "0.00", "10.00", "-10.00")
}

// =============================================================================
// UPDATE / DELETE
// =============================================================================

func TestUpdate_AppliesOnlyProvidedFields(t *testing.T) {
	svc, m, _ := newTestService(t)
	ctx := context.Background()
	id := mustCreate(t, svc, admin, baseInput())
	_, err := svc.AddLineItem(ctx, admin, id, activeProduct, 2)
	require.NoError(t, err)

	party := 10
	area := reservation.AreaMainHall
	require.NoError(t, svc.Update(ctx, admin, id, reservation.Patch{PartySize: &party, Area: &area}))

	r, err := svc.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 10, r.PartySize)
	assert.Equal(t, reservation.AreaMainHall, r.Area)
	assert.Equal(t, reservation.KindOpenMenu, r.Type)
	assertTotals(t, r.Totals, "100.00", "0.00", "100.00")

	// switching to an unknown client fails
	missing := int64(555)
	assert.ErrorIs(t, svc.Update(ctx, admin, id, reservation.Patch{ClientID: &missing}), reservation.ErrNotFound)

	// switching to a known one works
	newClient, err := m.SaveClient(ctx, reservation.Client{FirstName: "Mario"})
	require.NoError(t, err)
	require.NoError(t, svc.Update(ctx, admin, id, reservation.Patch{ClientID: &newClient}))
}

func TestUpdate_MoneyOverrideRederivesPending(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	id := mustCreate(t, svc, admin, baseInput())

	est := money("900")
	require.NoError(t, svc.Update(ctx, admin, id, reservation.Patch{Estimated: &est}))

	assertTotals(t, totalsOf(t, svc, id), "900.00", "0.00", "900.00")
}

func TestUpdate_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	id := mustCreate(t, svc, admin, baseInput())

	assert.ErrorIs(t, svc.Update(ctx, admin, id, reservation.Patch{}), reservation.ErrValidation)
	zero := 0
	assert.ErrorIs(t, svc.Update(ctx, admin, id, reservation.Patch{PartySize: &zero}), reservation.ErrValidation)
	one := 1
	assert.ErrorIs(t, svc.Update(ctx, admin, 9999, reservation.Patch{PartySize: &one}), reservation.ErrNotFound)
}

func TestDelete_Cascade(t *testing.T) {
	// GIVEN: a reservation with items and payments
	// WHEN: deleting it
	// THEN: header and every child are gone

	svc, _, rec := newTestService(t)
	ctx := context.Background()
	id := mustCreate(t, svc, admin, baseInput())
	keep := mustCreate(t, svc, admin, baseInput())
	for _, rid := range []int64{id, keep} {
		_, err := svc.AddLineItem(ctx, admin, rid, activeProduct, 1)
		require.NoError(t, err)
		_, err = svc.AddPayment(ctx, admin, rid, reservation.PaymentInput{Amount: money("10"), Method: reservation.MethodCash})
		require.NoError(t, err)
	}

	require.NoError(t, svc.Delete(ctx, admin, id))

	_, err := svc.FindByID(ctx, id)
	assert.ErrorIs(t, err, reservation.ErrNotFound)
	items, err := svc.LineItems(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, items)
	payments, err := svc.Payments(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, payments)

	items, err = svc.LineItems(ctx, keep)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	assert.ErrorIs(t, svc.Delete(ctx, admin, id), reservation.ErrNotFound)
	assert.Equal(t, reservation.EventDeleted, rec.types()[len(rec.types())-1])
}

func TestDelete_RollsBackOnFailure(t *testing.T) {
	// GIVEN: storage that breaks in the middle of the cascade
	// WHEN: deleting
	// THEN: StorageFailure and nothing was removed

	m := store.NewMemory()
	seed(t, m)
	svc := reservation.NewService(failingTx{Memory: m, failOn: "DeleteReservation"})
	ctx := context.Background()
	id := mustCreate(t, svc, admin, baseInput())
	_, err := svc.AddLineItem(ctx, admin, id, activeProduct, 1)
	require.NoError(t, err)

	err = svc.Delete(ctx, admin, id)

	assert.ErrorIs(t, err, reservation.ErrStorage)
	assert.False(t, reservation.IsClientError(err))
	items, err := m.LineItems(ctx, id)
	require.NoError(t, err)
	assert.Len(t, items, 1, "line items restored by rollback")
}

// failingTx injects an error into one store method inside transactions.
type failingTx struct {
	*store.Memory
	failOn string
}

func (f failingTx) WithTx(ctx context.Context, fn func(reservation.Store) error) error {
	return f.Memory.WithTx(ctx, func(st reservation.Store) error {
		return fn(failingView{Store: st, failOn: f.failOn})
	})
}

type failingView struct {
	reservation.Store
	failOn string
}

func (v failingView) DeleteReservation(ctx context.Context, id int64) error {
	if v.failOn == "DeleteReservation" {
		return errors.New("disk full")
	}
	return v.Store.DeleteReservation(ctx, id)
}

// =============================================================================
// ACCESS GATE THROUGH THE AGGREGATE
// =============================================================================

func TestViewer_OnlyOwnReservations(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	mine := mustCreate(t, svc, viewer, baseInput())
	theirs := mustCreate(t, svc, other, baseInput())

	_, err := svc.AddLineItem(ctx, viewer, mine, activeProduct, 1)
	require.NoError(t, err)

	_, err = svc.AddLineItem(ctx, viewer, theirs, activeProduct, 1)
	assert.ErrorIs(t, err, reservation.ErrAuthorizationDenied)
	_, err = svc.AddPayment(ctx, viewer, theirs, reservation.PaymentInput{Amount: money("5"), Method: reservation.MethodCash})
	assert.ErrorIs(t, err, reservation.ErrAuthorizationDenied)
	party := 2
	assert.ErrorIs(t, svc.Update(ctx, viewer, theirs, reservation.Patch{PartySize: &party}), reservation.ErrAuthorizationDenied)
	assert.ErrorIs(t, svc.Delete(ctx, viewer, theirs), reservation.ErrAuthorizationDenied)

	// child ids of someone else's reservation are gated by the owner too
	itemID, err := svc.AddLineItem(ctx, editor, theirs, activeProduct, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.RemoveLineItem(ctx, viewer, itemID), reservation.ErrAuthorizationDenied)
	payID, err := svc.AddPayment(ctx, editor, theirs, reservation.PaymentInput{Amount: money("5"), Method: reservation.MethodCash})
	require.NoError(t, err)
	assert.ErrorIs(t, svc.RemovePayment(ctx, viewer, payID), reservation.ErrAuthorizationDenied)

	// missing reservation is NotFound even for a viewer
	assert.ErrorIs(t, svc.Delete(ctx, viewer, 9999), reservation.ErrNotFound)
}

// =============================================================================
// READS
// =============================================================================

func TestList_FiltersAndOrder(t *testing.T) {
	svc, m, _ := newTestService(t)
	ctx := context.Background()
	second, err := m.SaveClient(ctx, reservation.Client{FirstName: "Otro"})
	require.NoError(t, err)

	mk := func(actor reservation.Actor, client int64, date, tm string) int64 {
		in := baseInput()
		in.ClientID = client
		in.Date = reservation.MustDate(date)
		in.Time = at(tm)
		return mustCreate(t, svc, actor, in)
	}
	a := mk(admin, clientID, "2025-03-15", "21:00")
	b := mk(viewer, clientID, "2025-03-15", "13:00")
	c := mk(viewer, second, "2025-03-20", "14:00")

	all, err := svc.List(ctx, reservation.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{c, b, a}, []int64{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, "Lucía", all[1].ClientFirstName)
	assert.Equal(t, "Carla", all[1].UserName)

	d := reservation.MustDate("2025-03-15")
	got, err := svc.List(ctx, reservation.ListFilter{Date: &d, CreatedBy: viewer.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, b, got[0].ID)

	got, err = svc.List(ctx, reservation.ListFilter{ClientID: second})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, c, got[0].ID)
}

func TestGetComplete(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	id := mustCreate(t, svc, admin, baseInput())
	_, err := svc.AddLineItem(ctx, admin, id, activeProduct, 2)
	require.NoError(t, err)
	_, err = svc.AddPayment(ctx, admin, id, reservation.PaymentInput{Amount: money("30"), Method: reservation.MethodTransfer, Notes: "SPEI"})
	require.NoError(t, err)

	full, err := svc.GetComplete(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, full.Client)
	assert.Equal(t, "Hernández", full.Client.LastName)
	assert.Len(t, full.LineItems, 1)
	require.Len(t, full.Payments, 1)
	assert.Equal(t, "SPEI", full.Payments[0].Notes)
	assertTotals(t, full.Reservation.Totals, "100.00", "30.00", "70.00")

	_, err = svc.GetComplete(ctx, 9999)
	assert.ErrorIs(t, err, reservation.ErrNotFound)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestConcurrentPayments_NoLostUpdate(t *testing.T) {
	// GIVEN: a reservation with estimated 1000
	// WHEN: 40 deposits of 5.00 land concurrently
	// THEN: paid is exactly 200 and the ledger balances

	svc, _, _ := newTestService(t)
	ctx := context.Background()
	in := baseInput()
	s := money("1000")
	in.Seed = &s
	id := mustCreate(t, svc, admin, in)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddPayment(ctx, admin, id, reservation.PaymentInput{Amount: money("5"), Method: reservation.MethodCash})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assertTotals(t, totalsOf(t, svc, id), "1000.00", "200.00", "800.00")
}

func TestStorageFailure_IsOpaque(t *testing.T) {
	svc, m, _ := newTestService(t)
	m.SetFailure(errors.New("connection refused"))

	_, err := svc.FindByID(context.Background(), 1)

	assert.ErrorIs(t, err, reservation.ErrStorage)
	assert.False(t, reservation.IsNotFound(err))
}
