package reservation

import (
	"context"
	"time"
)

// EventType names a committed change to a reservation.
type EventType string

const (
	EventCreated        EventType = "reservation.created"
	EventUpdated        EventType = "reservation.updated"
	EventDeleted        EventType = "reservation.deleted"
	EventItemAdded      EventType = "item.added"
	EventItemUpdated    EventType = "item.updated"
	EventItemRemoved    EventType = "item.removed"
	EventPaymentAdded   EventType = "payment.added"
	EventPaymentRemoved EventType = "payment.removed"
)

// Event describes a committed mutation. Totals is the post-commit state and is
// zero for EventDeleted.
type Event struct {
	Type          EventType
	ReservationID int64
	SubjectID     int64 // line item or payment id, when applicable
	ActorID       int64
	Date          Date
	Totals        Totals
	At            time.Time
}

// Notifier receives events after commit. Implementations must not block for
// long and must handle their own failures; the mutation already happened.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) {}

// Notifiers fans an event out to each notifier in order.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, e Event) {
	for _, n := range ns {
		if n != nil {
			n.Notify(ctx, e)
		}
	}
}
