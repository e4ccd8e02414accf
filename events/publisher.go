// Package events publishes committed reservation changes to RabbitMQ.
//
// Publishing is best effort: the reservation change has already been
// committed when Notify runs, so failures are logged and dropped, never
// returned to the request.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/cafeelangel/mesalista/reservation"
)

const publishTimeout = 3 * time.Second

// Message is the JSON body of every published event.
type Message struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	ReservationID int64     `json:"reservacion_id"`
	SubjectID     int64     `json:"subject_id,omitempty"`
	ActorID       int64     `json:"usuario_id"`
	Date          string    `json:"fecha,omitempty"`
	Estimated     string    `json:"total_estimada"`
	Paid          string    `json:"total_pagado"`
	Pending       string    `json:"total_pendiente"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewMessage converts a domain event into its wire form.
func NewMessage(e reservation.Event) Message {
	m := Message{
		ID:            uuid.NewString(),
		Type:          string(e.Type),
		ReservationID: e.ReservationID,
		SubjectID:     e.SubjectID,
		ActorID:       e.ActorID,
		Estimated:     e.Totals.Estimated.StringFixed(reservation.MoneyPlaces),
		Paid:          e.Totals.Paid.StringFixed(reservation.MoneyPlaces),
		Pending:       e.Totals.Pending.StringFixed(reservation.MoneyPlaces),
		OccurredAt:    e.At.UTC(),
	}
	if !e.Date.IsZero() {
		m.Date = e.Date.String()
	}
	return m
}

// channel is the subset of *amqp.Channel the publisher needs.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher implements reservation.Notifier on top of a durable queue.
type Publisher struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    channel
	queue string
	log   zerolog.Logger
}

// Dial connects to the broker and declares queue as durable.
func Dial(url, queue string, logger zerolog.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("rabbitmq queue declare %q: %w", queue, err)
	}
	p := NewPublisher(ch, queue, logger)
	p.conn = conn
	return p, nil
}

// NewPublisher wraps an already open channel.
func NewPublisher(ch channel, queue string, logger zerolog.Logger) *Publisher {
	return &Publisher{ch: ch, queue: queue, log: logger.With().Str("component", "events").Logger()}
}

// Notify publishes e as a persistent JSON message.
func (p *Publisher) Notify(ctx context.Context, e reservation.Event) {
	if err := p.Publish(ctx, e); err != nil {
		p.log.Error().Err(err).
			Str("event", string(e.Type)).
			Int64("reservation_id", e.ReservationID).
			Msg("event publish failed")
	}
}

// Publish is Notify with the error returned.
func (p *Publisher) Publish(ctx context.Context, e reservation.Event) error {
	msg := NewMessage(e)
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// The request context may be cancelled right after the response is written.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.ID,
			Type:         msg.Type,
			Timestamp:    msg.OccurredAt,
			Body:         body,
		},
	)
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
