package events

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/cafeelangel/mesalista/reservation"
)

// LogNotifier writes one structured line per committed change.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) LogNotifier {
	return LogNotifier{log: logger.With().Str("component", "events").Logger()}
}

func (n LogNotifier) Notify(_ context.Context, e reservation.Event) {
	ev := n.log.Info().
		Str("event", string(e.Type)).
		Int64("reservation_id", e.ReservationID).
		Int64("actor_id", e.ActorID)
	if e.SubjectID != 0 {
		ev = ev.Int64("subject_id", e.SubjectID)
	}
	if e.Type != reservation.EventDeleted {
		ev = ev.
			Str("estimated", e.Totals.Estimated.StringFixed(reservation.MoneyPlaces)).
			Str("paid", e.Totals.Paid.StringFixed(reservation.MoneyPlaces)).
			Str("pending", e.Totals.Pending.StringFixed(reservation.MoneyPlaces))
	}
	ev.Msg("reservation changed")
}
