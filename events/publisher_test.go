package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cafeelangel/mesalista/reservation"
)

type fakeChannel struct {
	published []amqp.Publishing
	keys      []string
	err       error
	closed    bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func paymentEvent() reservation.Event {
	return reservation.Event{
		Type:          reservation.EventPaymentAdded,
		ReservationID: 12,
		SubjectID:     40,
		ActorID:       7,
		Date:          reservation.MustDate("2025-03-15"),
		Totals:        reservation.NewTotals(reservation.MustMoney("100"), reservation.MustMoney("40")),
		At:            time.Date(2025, time.March, 10, 18, 0, 0, 0, time.UTC),
	}
}

func TestPublish_PersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	p := NewPublisher(ch, "reservation_events", zerolog.Nop())

	require.NoError(t, p.Publish(context.Background(), paymentEvent()))

	require.Len(t, ch.published, 1)
	pub := ch.published[0]
	assert.Equal(t, "reservation_events", ch.keys[0])
	assert.Equal(t, amqp.Persistent, pub.DeliveryMode)
	assert.Equal(t, "application/json", pub.ContentType)
	assert.Equal(t, "payment.added", pub.Type)
	_, err := uuid.Parse(pub.MessageId)
	assert.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(pub.Body, &msg))
	assert.Equal(t, pub.MessageId, msg.ID)
	assert.Equal(t, int64(12), msg.ReservationID)
	assert.Equal(t, "2025-03-15", msg.Date)
	assert.Equal(t, "60.00", msg.Pending)
}

func TestNotify_LogsAndSwallowsFailures(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	var buf bytes.Buffer
	p := NewPublisher(ch, "q", zerolog.New(&buf))

	assert.NotPanics(t, func() { p.Notify(context.Background(), paymentEvent()) })
	assert.Contains(t, buf.String(), "event publish failed")
	assert.Contains(t, buf.String(), "channel closed")
}

func TestNotify_CancelledRequestContextStillPublishes(t *testing.T) {
	ch := &fakeChannel{}
	p := NewPublisher(ch, "q", zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p.Notify(ctx, paymentEvent())

	assert.Len(t, ch.published, 1)
}

func TestClose(t *testing.T) {
	ch := &fakeChannel{}
	p := NewPublisher(ch, "q", zerolog.Nop())

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(zerolog.New(&buf))

	n.Notify(context.Background(), paymentEvent())
	n.Notify(context.Background(), reservation.Event{Type: reservation.EventDeleted, ReservationID: 12, ActorID: 7})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	var first, second map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &first))
	require.NoError(t, json.Unmarshal(lines[1], &second))
	assert.Equal(t, "payment.added", first["event"])
	assert.Equal(t, "60.00", first["pending"])
	assert.EqualValues(t, 40, first["subject_id"])
	assert.NotContains(t, second, "pending")
	assert.NotContains(t, second, "subject_id")
}
