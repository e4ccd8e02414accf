/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built data sets for demos and manual testing of the
	dashboard. Each scenario resets the database, loads the same master
	data (users, clients, products), then creates reservations through the
	Service so totals are produced by the ledger exactly as in production.

AVAILABLE SCENARIOS:

	empty-week:       Master data only, nothing booked
	weekend-banquet:  Banquets on the coming weekend with pre-ordered food and deposits
	overpaid-deposit: A reservation whose deposits exceed its remaining order

DATES:

	All dates are relative to the service's "today", so the weekly view
	always has something to show.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "weekend-banquet"}

NOTE:

	Scenarios reset the database. Admin only, and refused in production.

SEE ALSO:
  - handlers.go: Handler struct
  - reservation/service.go: Every reservation is created through the Service
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/cafeelangel/mesalista/reservation"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "empty-week",
		Name:        "Empty Week",
		Description: "Users, clients and menu loaded; no reservations",
	},
	{
		ID:          "weekend-banquet",
		Name:        "Weekend Banquet",
		Description: "Pre-ordered banquets in both halls this weekend, partially paid",
	},
	{
		ID:          "overpaid-deposit",
		Name:        "Overpaid Deposit",
		Description: "A pre-order trimmed after the deposit, leaving a negative balance",
	},
}

var scenarioLoaders = map[string]func(*Handler, context.Context) error{
	"empty-week":       (*Handler).loadEmptyWeekScenario,
	"weekend-banquet":  (*Handler).loadWeekendBanquetScenario,
	"overpaid-deposit": (*Handler).loadOverpaidDepositScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, "", scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeData(w, http.StatusOK, "", s)
			return
		}
	}
	writeData(w, http.StatusOK, "", nil)
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	if !h.scenariosAvailable(w) {
		return
	}
	var req LoadScenarioRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		h.writeServiceError(w, r, &reservation.ValidationError{
			Fields: map[string]string{"scenario_id": "unknown scenario " + req.ScenarioID},
		})
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	h.currentScenario = ""
	if err := h.reset(ctx); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if err := load(h, ctx); err != nil {
		h.writeServiceError(w, r, fmt.Errorf("load scenario %s: %w", req.ScenarioID, err))
		return
	}
	h.currentScenario = req.ScenarioID

	h.log.Info().Str("scenario", req.ScenarioID).Msg("scenario loaded")
	writeData(w, http.StatusOK, "Escenario cargado", map[string]string{"scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if !h.scenariosAvailable(w) {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.reset(r.Context()); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.currentScenario = ""
	writeData(w, http.StatusOK, "Base de datos reiniciada", nil)
}

func (h *Handler) scenariosAvailable(w http.ResponseWriter) bool {
	if h.production {
		writeFailure(w, http.StatusForbidden, "No disponible en producción", nil)
		return false
	}
	if h.seeder == nil {
		writeFailure(w, http.StatusNotImplemented, "El almacenamiento no admite escenarios", nil)
		return false
	}
	return true
}

// reset clears the store and every cached weekly view.
func (h *Handler) reset(ctx context.Context) error {
	if err := h.seeder.Reset(ctx); err != nil {
		return fmt.Errorf("reset database: %w", err)
	}
	if err := h.weekly.Invalidate(ctx); err != nil {
		h.log.Warn().Err(err).Msg("cache invalidation after reset failed")
	}
	return nil
}

// =============================================================================
// MASTER DATA
// =============================================================================

// Fixed ids so tokens minted with cmd/devtoken keep working across reloads.
const (
	demoAdminID  int64 = 1
	demoEditorID int64 = 2
	demoViewerID int64 = 3

	demoClientLucia int64 = 1
	demoClientRamon int64 = 2
	demoClientSofia int64 = 3

	demoProductPaella int64 = 1
	demoProductMole   int64 = 2
	demoProductFlan   int64 = 3
	demoProductAgua   int64 = 4
	demoProductPozole int64 = 5
)

var (
	demoAdmin  = reservation.Actor{ID: demoAdminID, Role: reservation.RoleAdmin}
	demoEditor = reservation.Actor{ID: demoEditorID, Role: reservation.RoleEditor}
	demoViewer = reservation.Actor{ID: demoViewerID, Role: reservation.RoleViewer}
)

func (h *Handler) loadMasterData(ctx context.Context) error {
	users := []reservation.User{
		{ID: demoAdminID, Name: "Ana Administradora", Role: reservation.RoleAdmin},
		{ID: demoEditorID, Name: "Eduardo Editor", Role: reservation.RoleEditor},
		{ID: demoViewerID, Name: "Valeria Recepción", Role: reservation.RoleViewer},
	}
	for _, u := range users {
		if _, err := h.seeder.SaveUser(ctx, u); err != nil {
			return fmt.Errorf("save user %d: %w", u.ID, err)
		}
	}

	clients := []reservation.Client{
		{ID: demoClientLucia, FirstName: "Lucía", LastName: "Hernández", Phone: "555-0101", Email: "lucia@example.com"},
		{ID: demoClientRamon, FirstName: "Ramón", LastName: "Ortega", Phone: "555-0102"},
		{ID: demoClientSofia, FirstName: "Sofía", LastName: "Ibarra", Phone: "555-0103", Email: "sofia@example.com"},
	}
	for _, c := range clients {
		if _, err := h.seeder.SaveClient(ctx, c); err != nil {
			return fmt.Errorf("save client %d: %w", c.ID, err)
		}
	}

	products := []reservation.Product{
		{ID: demoProductPaella, Name: "Paella valenciana", Price: reservation.MustMoney("185.00"), Active: true},
		{ID: demoProductMole, Name: "Mole poblano", Price: reservation.MustMoney("160.00"), Active: true},
		{ID: demoProductFlan, Name: "Flan napolitano", Price: reservation.MustMoney("55.50"), Active: true},
		{ID: demoProductAgua, Name: "Agua de jamaica (jarra)", Price: reservation.MustMoney("90.00"), Active: true},
		{ID: demoProductPozole, Name: "Pozole rojo", Price: reservation.MustMoney("140.00"), Active: false},
	}
	for _, p := range products {
		if _, err := h.seeder.SaveProduct(ctx, p); err != nil {
			return fmt.Errorf("save product %d: %w", p.ID, err)
		}
	}
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadEmptyWeekScenario(ctx context.Context) error {
	return h.loadMasterData(ctx)
}

type demoItem struct {
	product  int64
	quantity int
}

type demoPayment struct {
	amount string
	method string
	notes  string
}

func demoTime(s string) *reservation.TimeOfDay {
	tm := reservation.MustTime(s)
	return &tm
}

// book creates a reservation and attaches its items and payments in order.
func (h *Handler) book(ctx context.Context, actor reservation.Actor, in reservation.CreateInput, items []demoItem, payments []demoPayment) (int64, error) {
	id, err := h.svc.Create(ctx, actor, in)
	if err != nil {
		return 0, err
	}
	for _, it := range items {
		if _, err := h.svc.AddLineItem(ctx, actor, id, it.product, it.quantity); err != nil {
			return 0, err
		}
	}
	for _, p := range payments {
		in := reservation.PaymentInput{Amount: reservation.MustMoney(p.amount), Method: p.method, Notes: p.notes}
		if _, err := h.svc.AddPayment(ctx, actor, id, in); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// nextWeekday returns the first date on or after from that falls on day.
func nextWeekday(from reservation.Date, day int) reservation.Date {
	offset := (day - int(from.Weekday()) + 7) % 7
	return from.AddDays(offset)
}

func (h *Handler) loadWeekendBanquetScenario(ctx context.Context) error {
	if err := h.loadMasterData(ctx); err != nil {
		return err
	}
	today := h.svc.Today()
	saturday := nextWeekday(today, 6)
	sunday := saturday.AddDays(1)

	// Saturday wedding in the main hall, half paid
	if _, err := h.book(ctx, demoEditor, reservation.CreateInput{
		ClientID:  demoClientLucia,
		Date:      saturday,
		Time:      demoTime("14:00"),
		PartySize: 40,
		Area:      reservation.AreaMainHall,
		Type:      reservation.KindPreOrder,
		Notes:     "Boda civil, mesa de honor al frente",
	}, []demoItem{
		{demoProductPaella, 20},
		{demoProductMole, 20},
		{demoProductFlan, 40},
		{demoProductAgua, 10},
	}, []demoPayment{
		{"4000.00", reservation.MethodTransfer, "Anticipo 1"},
		{"1500.00", reservation.MethodCash, "Anticipo 2"},
	}); err != nil {
		return err
	}

	// Sunday family lunch in the small hall, booked by reception
	if _, err := h.book(ctx, demoViewer, reservation.CreateInput{
		ClientID:  demoClientRamon,
		Date:      sunday,
		Time:      demoTime("13:30"),
		PartySize: 12,
		Area:      reservation.AreaSmallHall,
		Type:      reservation.KindPreOrder,
		Notes:     "Cumpleaños 60",
	}, []demoItem{
		{demoProductMole, 12},
		{demoProductAgua, 3},
	}, []demoPayment{
		{"1000.00", reservation.MethodDebit, ""},
	}); err != nil {
		return err
	}

	// Walk-in style table today, open menu with a flat estimate
	seed := reservation.MustMoney("1200.00")
	_, err := h.book(ctx, demoAdmin, reservation.CreateInput{
		ClientID:  demoClientSofia,
		Date:      today,
		Time:      demoTime("20:00"),
		PartySize: 6,
		Area:      reservation.AreaRestaurant,
		Type:      reservation.KindOpenMenu,
		Seed:      &seed,
	}, nil, nil)
	return err
}

func (h *Handler) loadOverpaidDepositScenario(ctx context.Context) error {
	if err := h.loadMasterData(ctx); err != nil {
		return err
	}
	date := h.svc.Today().AddDays(2)

	// Fully paid up front, then the dessert course is cancelled.
	id, err := h.book(ctx, demoEditor, reservation.CreateInput{
		ClientID:  demoClientSofia,
		Date:      date,
		Time:      demoTime("19:00"),
		PartySize: 10,
		Area:      reservation.AreaSmallHall,
		Type:      reservation.KindPreOrder,
		Notes:     "Cena de graduación",
	}, []demoItem{
		{demoProductPaella, 10},
		{demoProductFlan, 10},
	}, []demoPayment{
		{"2405.00", reservation.MethodCredit, "Liquidación total"},
	})
	if err != nil {
		return err
	}

	items, err := h.svc.LineItems(ctx, id)
	if err != nil {
		return err
	}
	for _, li := range items {
		if li.ProductID == demoProductFlan {
			return h.svc.RemoveLineItem(ctx, demoEditor, li.ID)
		}
	}
	return errors.New("dessert line item missing")
}
