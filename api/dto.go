/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures the dashboard speaks. Field names follow the
  dashboard's Spanish contract (cliente_id, fecha, anticipos, ...) while the
  domain keeps its own names.

NAMING CONVENTION:
  - *DTO:     Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts go out as fixed two-place strings ("150.00"). Requests accept
  either JSON numbers or strings.

VALIDATION:
  Struct tags are checked with go-playground/validator before the request
  reaches the service; failures come back as a reservation.ValidationError
  keyed by JSON field name. The service re-validates everything.

SEE ALSO:
  - handlers.go: Uses these types
  - reservation/types.go: Domain types
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/cafeelangel/mesalista/reservation"
)

// =============================================================================
// ENVELOPE
// =============================================================================

// Response is the uniform envelope of every endpoint.
type Response struct {
	Success bool              `json:"success"`
	Message string            `json:"message,omitempty"`
	Data    any               `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// IDDTO is returned by create endpoints.
type IDDTO struct {
	ID int64 `json:"id"`
}

// =============================================================================
// RESERVATIONS
// =============================================================================

// ReservationDTO is a reservation header. The name fields are filled on listings.
type ReservationDTO struct {
	ID               int64  `json:"id"`
	ClienteID        int64  `json:"cliente_id"`
	UsuarioID        int64  `json:"usuario_id"`
	Fecha            string `json:"fecha"`
	Hora             string `json:"hora"`
	CantidadPersonas int    `json:"cantidad_personas"`
	Area             string `json:"area"`
	TipoReservacion  string `json:"tipo_reservacion"`
	Observaciones    string `json:"observaciones"`
	TotalEstimada    string `json:"total_estimada"`
	TotalPagado      string `json:"total_pagado"`
	TotalPendiente   string `json:"total_pendiente"`
	CreatedAt        string `json:"created_at,omitempty"`
	UpdatedAt        string `json:"updated_at,omitempty"`

	ClienteNombre   string `json:"cliente_nombre,omitempty"`
	ClienteApellido string `json:"cliente_apellido,omitempty"`
	UsuarioNombre   string `json:"usuario_nombre,omitempty"`
}

// CreateReservationRequest is the body of POST /api/reservations.
type CreateReservationRequest struct {
	ClienteID        int64            `json:"cliente_id" validate:"required,gt=0"`
	Fecha            string           `json:"fecha" validate:"required"`
	Hora             string           `json:"hora" validate:"required"`
	CantidadPersonas int              `json:"cantidad_personas" validate:"required,gt=0"`
	Area             string           `json:"area" validate:"required"`
	TipoReservacion  string           `json:"tipo_reservacion" validate:"required"`
	Observaciones    string           `json:"observaciones"`
	TotalEstimada    *decimal.Decimal `json:"total_estimada" validate:"omitempty,gte=0"`
}

// UpdateReservationRequest is the body of PUT /api/reservations/{id}.
// Absent fields are left unchanged.
type UpdateReservationRequest struct {
	ClienteID        *int64           `json:"cliente_id" validate:"omitempty,gt=0"`
	Fecha            *string          `json:"fecha"`
	Hora             *string          `json:"hora"`
	CantidadPersonas *int             `json:"cantidad_personas" validate:"omitempty,gt=0"`
	Area             *string          `json:"area"`
	TipoReservacion  *string          `json:"tipo_reservacion"`
	Observaciones    *string          `json:"observaciones"`
	TotalEstimada    *decimal.Decimal `json:"total_estimada" validate:"omitempty,gte=0"`
	TotalPagado      *decimal.Decimal `json:"total_pagado" validate:"omitempty,gte=0"`
	TotalPendiente   *decimal.Decimal `json:"total_pendiente"`
}

// WeeklyDTO is the upcoming view. The last three fields keep the names the
// dashboard already reads.
type WeeklyDTO struct {
	Desde                  string                      `json:"desde"`
	Hasta                  string                      `json:"hasta"`
	Dias                   []string                    `json:"dias"`
	Reservaciones          []ReservationDTO            `json:"reservaciones"`
	ReservacionesAgrupadas map[string][]ReservationDTO `json:"reservacionesAgrupadas"`
	TotalReservaciones     int                         `json:"totalReservaciones"`
}

// CompleteDTO is a reservation with its client, line items and payments.
type CompleteDTO struct {
	Reservacion ReservationDTO `json:"reservacion"`
	Cliente     *ClientDTO     `json:"cliente"`
	Productos   []LineItemDTO  `json:"productos"`
	Anticipos   []PaymentDTO   `json:"anticipos"`
}

type ClientDTO struct {
	ID       int64  `json:"id"`
	Nombre   string `json:"nombre"`
	Apellido string `json:"apellido"`
	Telefono string `json:"telefono,omitempty"`
	Email    string `json:"email,omitempty"`
}

// =============================================================================
// LINE ITEMS AND PAYMENTS
// =============================================================================

type LineItemDTO struct {
	ID             int64  `json:"id"`
	ReservacionID  int64  `json:"reservacion_id"`
	ProductoID     int64  `json:"producto_id"`
	ProductoNombre string `json:"producto_nombre,omitempty"`
	Cantidad       int    `json:"cantidad"`
	PrecioUnitario string `json:"precio_unitario"`
	Subtotal       string `json:"subtotal"`
}

// AddLineItemRequest is the body of POST /api/reservations/{id}/items.
type AddLineItemRequest struct {
	ProductoID int64 `json:"producto_id" validate:"required,gt=0"`
	Cantidad   int   `json:"cantidad" validate:"required,gt=0"`
}

// UpdateLineItemRequest is the body of PUT /api/reservations/items/{itemId}.
type UpdateLineItemRequest struct {
	Cantidad       *int             `json:"cantidad" validate:"omitempty,gt=0"`
	PrecioUnitario *decimal.Decimal `json:"precio_unitario" validate:"omitempty,gte=0"`
}

type PaymentDTO struct {
	ID            int64  `json:"id"`
	ReservacionID int64  `json:"reservacion_id"`
	Monto         string `json:"monto"`
	MetodoPago    string `json:"metodo_pago"`
	Observaciones string `json:"observaciones"`
	Fecha         string `json:"fecha"`
}

// AddPaymentRequest is the body of POST /api/reservations/{id}/payments.
type AddPaymentRequest struct {
	Monto         decimal.Decimal `json:"monto" validate:"required,gt=0"`
	MetodoPago    string          `json:"metodo_pago" validate:"required"`
	Observaciones string          `json:"observaciones"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo data set.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the body of POST /api/scenarios/load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func money(d decimal.Decimal) string {
	return d.StringFixed(reservation.MoneyPlaces)
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func toReservationDTO(r reservation.Reservation) ReservationDTO {
	return ReservationDTO{
		ID:               r.ID,
		ClienteID:        r.ClientID,
		UsuarioID:        r.CreatedBy,
		Fecha:            r.Date.String(),
		Hora:             r.Time.String(),
		CantidadPersonas: r.PartySize,
		Area:             string(r.Area),
		TipoReservacion:  string(r.Type),
		Observaciones:    r.Notes,
		TotalEstimada:    money(r.Totals.Estimated),
		TotalPagado:      money(r.Totals.Paid),
		TotalPendiente:   money(r.Totals.Pending),
		CreatedAt:        timestamp(r.CreatedAt),
		UpdatedAt:        timestamp(r.UpdatedAt),
	}
}

func toListingDTO(l reservation.Listing) ReservationDTO {
	dto := toReservationDTO(l.Reservation)
	dto.ClienteNombre = l.ClientFirstName
	dto.ClienteApellido = l.ClientLastName
	dto.UsuarioNombre = l.UserName
	return dto
}

func toListingDTOs(rows []reservation.Listing) []ReservationDTO {
	dtos := make([]ReservationDTO, len(rows))
	for i, l := range rows {
		dtos[i] = toListingDTO(l)
	}
	return dtos
}

func toWeeklyDTO(v *reservation.WeeklyView) WeeklyDTO {
	grouped := make(map[string][]ReservationDTO, len(v.ByDay))
	for day, rows := range v.ByDay {
		grouped[day] = toListingDTOs(rows)
	}
	days := v.Days
	if days == nil {
		days = []string{}
	}
	return WeeklyDTO{
		Desde:                  v.From.String(),
		Hasta:                  v.To.String(),
		Dias:                   days,
		Reservaciones:          toListingDTOs(v.All),
		ReservacionesAgrupadas: grouped,
		TotalReservaciones:     v.Total,
	}
}

func toLineItemDTO(li reservation.LineItem) LineItemDTO {
	return LineItemDTO{
		ID:             li.ID,
		ReservacionID:  li.ReservationID,
		ProductoID:     li.ProductID,
		ProductoNombre: li.ProductName,
		Cantidad:       li.Quantity,
		PrecioUnitario: money(li.UnitPrice),
		Subtotal:       money(li.Subtotal),
	}
}

func toLineItemDTOs(items []reservation.LineItem) []LineItemDTO {
	dtos := make([]LineItemDTO, len(items))
	for i, li := range items {
		dtos[i] = toLineItemDTO(li)
	}
	return dtos
}

func toPaymentDTO(p reservation.Payment) PaymentDTO {
	return PaymentDTO{
		ID:            p.ID,
		ReservacionID: p.ReservationID,
		Monto:         money(p.Amount),
		MetodoPago:    p.Method,
		Observaciones: p.Notes,
		Fecha:         timestamp(p.CreatedAt),
	}
}

func toPaymentDTOs(payments []reservation.Payment) []PaymentDTO {
	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p)
	}
	return dtos
}

func toCompleteDTO(c *reservation.Complete) CompleteDTO {
	dto := CompleteDTO{
		Reservacion: toReservationDTO(c.Reservation),
		Productos:   toLineItemDTOs(c.LineItems),
		Anticipos:   toPaymentDTOs(c.Payments),
	}
	if c.Client != nil {
		dto.Cliente = &ClientDTO{
			ID:       c.Client.ID,
			Nombre:   c.Client.FirstName,
			Apellido: c.Client.LastName,
			Telefono: c.Client.Phone,
			Email:    c.Client.Email,
		}
	}
	return dto
}

// ToInput parses date and time and maps the request onto the domain input.
func (req CreateReservationRequest) ToInput() (reservation.CreateInput, error) {
	v := &reservation.ValidationError{}
	date, err := reservation.ParseDate(req.Fecha)
	if err != nil {
		v.Add("fecha", err.Error())
	}
	tm, err := reservation.ParseTimeOfDay(req.Hora)
	if err != nil {
		v.Add("hora", err.Error())
	}
	if len(v.Fields) > 0 {
		return reservation.CreateInput{}, v
	}
	return reservation.CreateInput{
		ClientID:  req.ClienteID,
		Date:      date,
		Time:      &tm,
		PartySize: req.CantidadPersonas,
		Area:      reservation.Area(req.Area),
		Type:      reservation.Kind(req.TipoReservacion),
		Notes:     req.Observaciones,
		Seed:      req.TotalEstimada,
	}, nil
}

// ToPatch parses date and time and maps the request onto a domain patch.
func (req UpdateReservationRequest) ToPatch() (reservation.Patch, error) {
	v := &reservation.ValidationError{}
	p := reservation.Patch{
		ClientID:  req.ClienteID,
		PartySize: req.CantidadPersonas,
		Notes:     req.Observaciones,
		Estimated: req.TotalEstimada,
		Paid:      req.TotalPagado,
		Pending:   req.TotalPendiente,
	}
	if req.Fecha != nil {
		date, err := reservation.ParseDate(*req.Fecha)
		if err != nil {
			v.Add("fecha", err.Error())
		}
		p.Date = &date
	}
	if req.Hora != nil {
		tm, err := reservation.ParseTimeOfDay(*req.Hora)
		if err != nil {
			v.Add("hora", err.Error())
		}
		p.Time = &tm
	}
	if req.Area != nil {
		area := reservation.Area(*req.Area)
		p.Area = &area
	}
	if req.TipoReservacion != nil {
		kind := reservation.Kind(*req.TipoReservacion)
		p.Type = &kind
	}
	if len(v.Fields) > 0 {
		return reservation.Patch{}, v
	}
	return p, nil
}

// =============================================================================
// DECODING AND VALIDATION
// =============================================================================

const maxBodyBytes = 1 << 20

var validate = validator.New()

func init() {
	// Report fields by their JSON name.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Let numeric tags (gt, gte, required) work on decimal.Decimal.
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if v, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := v.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
}

// decodeAndValidate reads a JSON body into dst and checks its tags. Both kinds
// of failure come back as *reservation.ValidationError.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &reservation.ValidationError{Fields: map[string]string{"body": "request body is empty"}}
		}
		return &reservation.ValidationError{Fields: map[string]string{"body": "invalid JSON: " + err.Error()}}
	}
	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		v := &reservation.ValidationError{}
		for _, fe := range fieldErrs {
			v.Add(fe.Field(), describe(fe))
		}
		return v
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	default:
		return "failed " + fe.Tag()
	}
}
