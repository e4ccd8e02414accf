/*
errors.go - Error taxonomy for the reservation core

PURPOSE:
  Every failure the core can produce maps to exactly one sentinel, so the
  transport layer can pick a status with errors.Is and never parse strings.

ERROR CATEGORIES:
  1. ErrValidation          - malformed or missing input (caller error)
  2. ErrNotFound            - reservation, line item, payment, client or product missing
  3. ErrInvalidState        - input is well formed but the referenced state forbids it
  4. ErrAuthorizationDenied - access policy said no
  5. ErrStorage             - persistence failed; detail is logged, never shown

  Nothing here is retried. Every failure is terminal for its request.

SEE ALSO:
  - service.go: produces these errors
  - api/handlers.go: maps them to HTTP statuses
*/
package reservation

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrInvalidState        = errors.New("invalid state")
	ErrAuthorizationDenied = errors.New("authorization denied")
	ErrStorage             = errors.New("storage failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError lists every offending field with a message.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = msg
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// orNil returns e when it has fields, nil otherwise.
func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func invalid(field, msg string) error {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// NotFoundError names the missing entity.
type NotFoundError struct {
	Kind string // "reservation", "line item", "payment", "client", "product"
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InactiveProductError is returned when attaching a product that is not active.
type InactiveProductError struct {
	ProductID int64
}

func (e *InactiveProductError) Error() string {
	return fmt.Sprintf("product %d is not active", e.ProductID)
}

func (e *InactiveProductError) Unwrap() error { return ErrInvalidState }

// OverpaymentError is returned under OverpaymentReject when a payment exceeds
// the pending balance.
type OverpaymentError struct {
	ReservationID int64
	Pending       string
	Requested     string
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("payment %s exceeds pending balance %s of reservation %d",
		e.Requested, e.Pending, e.ReservationID)
}

func (e *OverpaymentError) Unwrap() error { return ErrInvalidState }

// AccessDeniedError is returned when the access policy rejects an actor.
type AccessDeniedError struct {
	Actor         Actor
	ReservationID int64
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("user %d (%s) may not modify reservation %d",
		e.Actor.ID, e.Actor.Role, e.ReservationID)
}

func (e *AccessDeniedError) Unwrap() error { return ErrAuthorizationDenied }

// StorageError wraps a persistence failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

// Unwrap exposes both the sentinel and the driver error.
func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

// storageErr wraps err unless it is already classified.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsClientError(err) || errors.Is(err, ErrStorage) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is caused by the caller.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrAuthorizationDenied)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
