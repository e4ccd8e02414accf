package reservation

import (
	"context"
	"sort"
)

// DefaultWindowDays is the span of the upcoming view.
const DefaultWindowDays = 7

// WeeklyView is the upcoming reservations of a rolling window, flat and bucketed by date.
type WeeklyView struct {
	From  Date
	To    Date
	Days  []string             // bucket keys in ascending order
	ByDay map[string][]Listing // YYYY-MM-DD -> reservations in time order
	All   []Listing
	Total int
}

// Today returns the current calendar date in the service's zone.
func (s *Service) Today() Date {
	return DateOf(s.now().In(s.loc))
}

// Upcoming returns reservations dated today through today+windowDays-1,
// grouped by calendar date. windowDays < 1 means DefaultWindowDays.
func (s *Service) Upcoming(ctx context.Context, windowDays int) (*WeeklyView, error) {
	if windowDays < 1 {
		windowDays = DefaultWindowDays
	}
	from := s.Today()
	to := from.AddDays(windowDays - 1)

	rows, err := s.store.ListReservationsBetween(ctx, from, to)
	if err != nil {
		return nil, storageErr("list upcoming", err)
	}
	view := GroupByDate(rows)
	view.From, view.To = from, to
	return view, nil
}

// GroupByDate buckets rows by their date key, keeping input order within a bucket.
func GroupByDate(rows []Listing) *WeeklyView {
	view := &WeeklyView{
		Days:  []string{},
		ByDay: make(map[string][]Listing),
		All:   rows,
		Total: len(rows),
	}
	if view.All == nil {
		view.All = []Listing{}
	}
	for _, r := range rows {
		key := r.Date.String()
		if _, seen := view.ByDay[key]; !seen {
			view.Days = append(view.Days, key)
		}
		view.ByDay[key] = append(view.ByDay[key], r)
	}
	sort.Strings(view.Days)
	return view
}
