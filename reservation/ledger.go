/*
ledger.go - Money ledger recalculation

PURPOSE:
  Derives total_estimada, total_pagado and total_pendiente of a reservation
  from its child rows. Totals are never incremented or decremented in place;
  they are recomputed from the full set of line items and payments every
  time, so a recompute is idempotent and self-healing.

TRIGGERS:
  Which child changed decides how total_estimada is derived:

    TriggerLineItems  estimada = sum(subtotals); 0 once the last item is gone
                      (a caller-supplied seed is NOT restored)
    TriggerPayments   estimada keeps its stored value (seed or last item sum)

  In both cases pagado = sum(amounts) and pendiente = estimada - pagado.

CRITICAL INVARIANTS:
  1. pendiente == estimada - pagado after every committed recompute
  2. all three fields carry exactly 2 decimal places
  3. a reservation deleted concurrently makes the recompute a no-op

EXAMPLE FLOW:
  1. Create with seed 0:        0.00 / 0.00 / 0.00
  2. Add item 2 x 50.00:      100.00 / 0.00 / 100.00
  3. Add payment 40.00:       100.00 / 40.00 / 60.00
  4. Remove the item:           0.00 / 40.00 / -40.00

SEE ALSO:
  - service.go: the only caller, always inside a transaction
*/
package reservation

import (
	"context"

	"github.com/shopspring/decimal"
)

// Trigger names the kind of child mutation that caused a recompute.
type Trigger int

const (
	TriggerLineItems Trigger = iota
	TriggerPayments
)

func (t Trigger) String() string {
	if t == TriggerPayments {
		return "payments"
	}
	return "line_items"
}

// =============================================================================
// PURE COMPUTATION
// =============================================================================

// ComputeTotals derives the totals from the current header values and the full
// set of child rows.
func ComputeTotals(current Totals, items []LineItem, payments []Payment, trigger Trigger) Totals {
	estimated := current.Estimated
	if trigger == TriggerLineItems {
		estimated = SumSubtotals(items)
	}
	return NewTotals(estimated, SumPayments(payments))
}

func SumSubtotals(items []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, li := range items {
		sum = sum.Add(li.Subtotal)
	}
	return Money(sum)
}

func SumPayments(payments []Payment) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range payments {
		sum = sum.Add(p.Amount)
	}
	return Money(sum)
}

// =============================================================================
// LEDGER - Recompute and persist
// =============================================================================

// Ledger recomputes and stores reservation totals.
type Ledger struct{}

// Recalculate loads the reservation's rows from s, recomputes the totals and
// saves them. s should be a transactional view so the read and the write see
// the same rows. ok is false when the reservation no longer exists.
func (Ledger) Recalculate(ctx context.Context, s Store, reservationID int64, trigger Trigger) (totals Totals, ok bool, err error) {
	r, err := s.GetReservation(ctx, reservationID)
	if err != nil {
		return Totals{}, false, storageErr("load reservation", err)
	}
	if r == nil {
		return Totals{}, false, nil
	}

	var items []LineItem
	if trigger == TriggerLineItems {
		if items, err = s.LineItems(ctx, reservationID); err != nil {
			return Totals{}, false, storageErr("load line items", err)
		}
	}
	payments, err := s.Payments(ctx, reservationID)
	if err != nil {
		return Totals{}, false, storageErr("load payments", err)
	}

	totals = ComputeTotals(r.Totals, items, payments, trigger)
	if err := s.SaveTotals(ctx, reservationID, totals); err != nil {
		return Totals{}, false, storageErr("save totals", err)
	}
	return totals, true, nil
}
