/*
handlers.go - HTTP API handlers for the reservation ledger

PURPOSE:
  Exposes reservation.Service over REST. Handlers parse the request, call
  the service with the authenticated actor, and serialize the result into
  the uniform envelope {success, message, data, error}.

ENDPOINTS:
  Reservations:
    GET    /api/reservations                 List (fecha, cliente_id, usuario_id filters)
    POST   /api/reservations                 Create
    GET    /api/reservations/upcoming        Weekly view (?days=)
    GET    /api/reservations/{id}            Header
    GET    /api/reservations/{id}/full       Header + client + items + payments
    PUT    /api/reservations/{id}            Partial update
    DELETE /api/reservations/{id}            Delete with children

  Line items:
    GET    /api/reservations/{id}/items      List
    POST   /api/reservations/{id}/items      Add product
    PUT    /api/reservations/items/{itemId}  Change quantity / unit price
    DELETE /api/reservations/items/{itemId}  Remove

  Payments (anticipos):
    GET    /api/reservations/{id}/payments   List, newest first
    POST   /api/reservations/{id}/payments   Record payment
    DELETE /api/reservations/payments/{paymentId}

ERROR HANDLING:
  writeServiceError is the only place domain errors become status codes:
  - 400: reservation.ErrValidation (field map in "fields")
  - 403: reservation.ErrAuthorizationDenied
  - 404: reservation.ErrNotFound
  - 409: reservation.ErrInvalidState (inactive product, overpayment)
  - 500: anything else; logged, never echoed to the client

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Actor extraction
  - scenarios.go: Demo data loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/cafeelangel/mesalista/cache"
	"github.com/cafeelangel/mesalista/reservation"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Deps are the collaborators of the HTTP layer.
type Deps struct {
	Service     *reservation.Service
	Weekly      *cache.WeeklyCache // optional
	Users       UserLookup         // optional; skips the user existence check when nil
	Seeder      reservation.Seeder // optional; scenarios are unavailable when nil
	JWTSecret   string
	Production  bool
	WindowDays  int
	CORSOrigins []string
	Logger      zerolog.Logger
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	svc         *reservation.Service
	weekly      *cache.WeeklyCache
	users       UserLookup
	seeder      reservation.Seeder
	jwtSecret   string
	production  bool
	windowDays  int
	corsOrigins []string
	log         zerolog.Logger

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler from its dependencies.
func NewHandler(d Deps) *Handler {
	weekly := d.Weekly
	if weekly == nil {
		weekly = cache.NewWeeklyCache(nil, 0, d.Logger)
	}
	window := d.WindowDays
	if window < 1 {
		window = reservation.DefaultWindowDays
	}
	return &Handler{
		svc:         d.Service,
		weekly:      weekly,
		users:       d.Users,
		seeder:      d.Seeder,
		jwtSecret:   d.JWTSecret,
		production:  d.Production,
		windowDays:  window,
		corsOrigins: d.CORSOrigins,
		log:         d.Logger.With().Str("component", "api").Logger(),
	}
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports liveness and database reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ping(r.Context()); err != nil {
		h.log.Error().Err(err).Msg("health check failed")
		writeFailure(w, http.StatusServiceUnavailable, "Base de datos no disponible", nil)
		return
	}
	writeData(w, http.StatusOK, "", map[string]string{"status": "ok"})
}

// =============================================================================
// RESERVATION HANDLERS
// =============================================================================

// ListReservations returns reservations matching the optional query filters.
func (h *Handler) ListReservations(w http.ResponseWriter, r *http.Request) {
	f, err := parseListFilter(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	rows, err := h.svc.List(r.Context(), f)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", toListingDTOs(rows))
}

func parseListFilter(r *http.Request) (reservation.ListFilter, error) {
	q := r.URL.Query()
	v := &reservation.ValidationError{}
	var f reservation.ListFilter
	if s := q.Get("fecha"); s != "" {
		d, err := reservation.ParseDate(s)
		if err != nil {
			v.Add("fecha", err.Error())
		} else {
			f.Date = &d
		}
	}
	if s := q.Get("cliente_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id <= 0 {
			v.Add("cliente_id", "must be a positive id")
		}
		f.ClientID = id
	}
	if s := q.Get("usuario_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id <= 0 {
			v.Add("usuario_id", "must be a positive id")
		}
		f.CreatedBy = id
	}
	if len(v.Fields) > 0 {
		return reservation.ListFilter{}, v
	}
	return f, nil
}

// Upcoming returns the weekly view, served through the cache when enabled.
func (h *Handler) Upcoming(w http.ResponseWriter, r *http.Request) {
	days := h.windowDays
	if s := r.URL.Query().Get("days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 366 {
			h.writeServiceError(w, r, &reservation.ValidationError{
				Fields: map[string]string{"days": "must be between 1 and 366"},
			})
			return
		}
		days = n
	}
	view, err := h.weekly.Upcoming(r.Context(), h.svc, days)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", toWeeklyDTO(view))
}

// GetReservation returns a reservation header.
func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	res, err := h.svc.FindByID(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", toReservationDTO(*res))
}

// GetComplete returns a reservation with client, line items and payments.
func (h *Handler) GetComplete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	c, err := h.svc.GetComplete(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", toCompleteDTO(c))
}

// CreateReservation creates a reservation owned by the caller.
func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req CreateReservationRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	in, err := req.ToInput()
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	id, err := h.svc.Create(r.Context(), actorOf(r), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "Reservación creada exitosamente", IDDTO{ID: id})
}

// UpdateReservation applies a partial update.
func (h *Handler) UpdateReservation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	var req UpdateReservationRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	patch, err := req.ToPatch()
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if err := h.svc.Update(r.Context(), actorOf(r), id, patch); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Reservación actualizada exitosamente", nil)
}

// DeleteReservation removes a reservation with its line items and payments.
func (h *Handler) DeleteReservation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if err := h.svc.Delete(r.Context(), actorOf(r), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Reservación eliminada exitosamente", nil)
}

// =============================================================================
// LINE ITEM HANDLERS
// =============================================================================

// ListLineItems returns the products attached to a reservation.
func (h *Handler) ListLineItems(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	items, err := h.svc.LineItems(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", toLineItemDTOs(items))
}

// AddLineItem attaches a product at its current price.
func (h *Handler) AddLineItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	var req AddLineItemRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	itemID, err := h.svc.AddLineItem(r.Context(), actorOf(r), id, req.ProductoID, req.Cantidad)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "Producto agregado a la reservación", IDDTO{ID: itemID})
}

// UpdateLineItem changes quantity and/or unit price.
func (h *Handler) UpdateLineItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r, "itemId")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	var req UpdateLineItemRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	patch := reservation.LineItemPatch{Quantity: req.Cantidad, UnitPrice: req.PrecioUnitario}
	if err := h.svc.UpdateLineItem(r.Context(), actorOf(r), itemID, patch); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Producto actualizado exitosamente", nil)
}

// RemoveLineItem detaches a product.
func (h *Handler) RemoveLineItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r, "itemId")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if err := h.svc.RemoveLineItem(r.Context(), actorOf(r), itemID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Producto eliminado de la reservación", nil)
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// ListPayments returns a reservation's payments, newest first.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	payments, err := h.svc.Payments(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", toPaymentDTOs(payments))
}

// AddPayment records an advance payment.
func (h *Handler) AddPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	var req AddPaymentRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	in := reservation.PaymentInput{Amount: req.Monto, Method: req.MetodoPago, Notes: req.Observaciones}
	payID, err := h.svc.AddPayment(r.Context(), actorOf(r), id, in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "Anticipo registrado exitosamente", IDDTO{ID: payID})
}

// RemovePayment deletes a payment.
func (h *Handler) RemovePayment(w http.ResponseWriter, r *http.Request) {
	payID, err := pathID(r, "paymentId")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if err := h.svc.RemovePayment(r.Context(), actorOf(r), payID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Anticipo eliminado exitosamente", nil)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeData(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, Response{Success: true, Message: message, Data: data})
}

func writeFailure(w http.ResponseWriter, status int, message string, err error) {
	resp := Response{Success: false, Message: message}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps a domain error onto a status code.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *reservation.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, Response{
			Message: "Datos inválidos",
			Error:   verr.Error(),
			Fields:  verr.Fields,
		})
	case errors.Is(err, reservation.ErrNotFound):
		writeFailure(w, http.StatusNotFound, "Recurso no encontrado", err)
	case errors.Is(err, reservation.ErrAuthorizationDenied):
		writeFailure(w, http.StatusForbidden, "Acceso denegado", err)
	case errors.Is(err, reservation.ErrInvalidState):
		writeFailure(w, http.StatusConflict, "Operación no permitida", err)
	default:
		h.log.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeFailure(w, http.StatusInternalServerError, "Error interno del servidor", nil)
	}
}

// pathID parses a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, &reservation.ValidationError{Fields: map[string]string{name: "must be a positive id"}}
	}
	return id, nil
}

// actorOf returns the authenticated actor. Routes using it sit behind
// Authenticate, so the zero actor only appears if the router is miswired,
// and it is denied by the access policy.
func actorOf(r *http.Request) reservation.Actor {
	a, _ := ActorFrom(r.Context())
	return a
}
