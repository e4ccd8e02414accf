package cache

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cafeelangel/mesalista/reservation"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// fakeRedis is a map-backed stand-in returning canned redis command results.
// Scan pages one key at a time to exercise the cursor loop.
type fakeRedis struct {
	data    map[string]string
	ttls    map[string]time.Duration
	failGet error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.failGet != nil {
		return redis.NewStringResult("", f.failGet)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Incr(_ context.Context, key string) *redis.IntCmd {
	n, _ := strconv.ParseInt(f.data[key], 10, 64)
	n++
	f.data[key] = strconv.FormatInt(n, 10)
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	f.data[key] = string(value.([]byte))
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Scan(_ context.Context, cursor uint64, match string, _ int64) *redis.ScanCmd {
	prefix := strings.TrimSuffix(match, "*")
	var keys []string
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return redis.NewScanCmdResult(nil, 0, nil)
	}
	next := uint64(1)
	if len(keys) == 1 {
		next = 0
	}
	return redis.NewScanCmdResult(keys[:1], next, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

type source struct {
	today  reservation.Date
	calls  int
	days   []int
	err    error
	during func()
}

func (s *source) Today() reservation.Date { return s.today }

func (s *source) Upcoming(_ context.Context, days int) (*reservation.WeeklyView, error) {
	s.calls++
	s.days = append(s.days, days)
	if s.during != nil {
		s.during()
	}
	if s.err != nil {
		return nil, s.err
	}
	row := reservation.Listing{
		Reservation: reservation.Reservation{
			ID:     5,
			Date:   s.today.AddDays(1),
			Time:   reservation.MustTime("14:00"),
			Area:   reservation.AreaMainHall,
			Totals: reservation.NewTotals(reservation.MustMoney("300"), reservation.MustMoney("100")),
		},
		ClientFirstName: "Lucía",
	}
	view := reservation.GroupByDate([]reservation.Listing{row})
	view.From, view.To = s.today, s.today.AddDays(days-1)
	return view, nil
}

func newTestCache(rdb commands) *WeeklyCache {
	c := NewWeeklyCache(nil, time.Minute, zerolog.Nop())
	c.rdb = rdb
	return c
}

// =============================================================================
// TESTS
// =============================================================================

func TestKey(t *testing.T) {
	assert.Equal(t, "reservations:upcoming:3:2025-03-10:7", Key(3, reservation.MustDate("2025-03-10"), 7))
}

func TestUpcoming_MissThenHit(t *testing.T) {
	// GIVEN: an empty cache
	// WHEN: the weekly view is requested twice
	// THEN: the source is consulted once and the cached copy round-trips

	rdb := newFakeRedis()
	c := newTestCache(rdb)
	src := &source{today: reservation.MustDate("2025-03-10")}
	ctx := context.Background()

	first, err := c.Upcoming(ctx, src, 0)
	require.NoError(t, err)
	second, err := c.Upcoming(ctx, src, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls)
	assert.Equal(t, []int{reservation.DefaultWindowDays}, src.days)
	assert.Equal(t, time.Minute, rdb.ttls["reservations:upcoming:0:2025-03-10:7"])

	assert.Equal(t, first.Days, second.Days)
	assert.Equal(t, "2025-03-16", second.To.String())
	require.Len(t, second.All, 1)
	got := second.ByDay["2025-03-11"][0]
	assert.Equal(t, int64(5), got.ID)
	assert.Equal(t, "Lucía", got.ClientFirstName)
	assert.Equal(t, "14:00:00", got.Time.String())
	assert.Equal(t, "200.00", got.Totals.Pending.StringFixed(2))
}

func TestUpcoming_SourceErrorNotCached(t *testing.T) {
	rdb := newFakeRedis()
	c := newTestCache(rdb)
	src := &source{today: reservation.MustDate("2025-03-10"), err: errors.New("db down")}

	_, err := c.Upcoming(context.Background(), src, 7)

	assert.Error(t, err)
	assert.Empty(t, rdb.data)
}

func TestGet_RedisErrorIsMiss(t *testing.T) {
	rdb := newFakeRedis()
	rdb.failGet = errors.New("connection refused")
	c := newTestCache(rdb)

	_, ok := c.Get(context.Background(), 0, reservation.MustDate("2025-03-10"), 7)
	assert.False(t, ok)

	src := &source{today: reservation.MustDate("2025-03-10")}
	_, err := c.Upcoming(context.Background(), src, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
	assert.Empty(t, rdb.data, "nothing is cached while redis is failing")
}

func TestNotify_InvalidatesAllViews(t *testing.T) {
	// GIVEN: cached views for several days and an unrelated key
	// WHEN: any reservation event arrives
	// THEN: only weekly view keys are gone

	rdb := newFakeRedis()
	c := newTestCache(rdb)
	ctx := context.Background()
	for _, day := range []string{"2025-03-10", "2025-03-11", "2025-03-12"} {
		c.Set(ctx, 0, reservation.MustDate(day), 7, &reservation.WeeklyView{})
	}
	rdb.data["sessions:abc"] = "keep"

	c.Notify(ctx, reservation.Event{Type: reservation.EventPaymentAdded, ReservationID: 1})

	assert.Equal(t, map[string]string{
		"sessions:abc":                     "keep",
		"reservations:generation:upcoming": "1",
	}, rdb.data)
	gen, err := c.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)
}

func TestUpcoming_ChangeDuringReadIsNotServedStale(t *testing.T) {
	// GIVEN: an empty cache and a reservation committed while the view is read
	// WHEN: the weekly view is requested again
	// THEN: the source is consulted again instead of serving the older view

	rdb := newFakeRedis()
	c := newTestCache(rdb)
	ctx := context.Background()
	src := &source{today: reservation.MustDate("2025-03-10")}
	src.during = func() {
		src.during = nil
		c.Notify(ctx, reservation.Event{Type: reservation.EventCreated, ReservationID: 9})
	}

	_, err := c.Upcoming(ctx, src, 7)
	require.NoError(t, err)
	_, err = c.Upcoming(ctx, src, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)

	// the second read happened after the change and is cached
	_, err = c.Upcoming(ctx, src, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestDisabledCache(t *testing.T) {
	// GIVEN: no redis client
	// WHEN: the cache is used
	// THEN: every call passes through to the source

	c := NewWeeklyCache(nil, time.Minute, zerolog.Nop())
	src := &source{today: reservation.MustDate("2025-03-10")}
	ctx := context.Background()

	assert.False(t, c.Enabled())
	_, err := c.Upcoming(ctx, src, 3)
	require.NoError(t, err)
	_, err = c.Upcoming(ctx, src, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
	assert.NoError(t, c.Invalidate(ctx))
	c.Notify(ctx, reservation.Event{Type: reservation.EventDeleted})
}

func TestNewRedisClient_EmptyURL(t *testing.T) {
	assert.Nil(t, NewRedisClient(context.Background(), "", zerolog.Nop()))
	assert.Nil(t, NewRedisClient(context.Background(), "not a url", zerolog.Nop()))
}
