package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/diagnosis/parcel-bookings/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data any) error
	Close() error
}

// Envelope is what goes on the wire for every subject.
type Envelope struct {
	ID         string          `json:"id"`
	Subject    string          `json:"subject"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

func Encode(subject string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}
	return json.Marshal(Envelope{
		ID:         uuid.NewString(),
		Subject:    subject,
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	})
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url,
		nats.Name("parcel-bookings"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data any) error {
	payload, err := Encode(subject, data)
	if err != nil {
		return err
	}
	logger.DebugContext(ctx, "Publishing event", "subject", subject, "bytes", len(payload))
	return n.conn.Publish(subject, payload)
}

// Close flushes pending messages before closing the connection.
func (n *NATSEventBus) Close() error {
	return n.conn.Drain()
}

// NopPublisher is used when NATS is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }
func (NopPublisher) Close() error                               { return nil }

const (
	UserRegistered = "user.registered"

	BookingCreated  = "booking.created"
	BookingUpdated  = "booking.updated"
	BookingCanceled = "booking.canceled"

	PaymentIntentCreated = "payment.intent.created"
)

type UserRegisteredEvent struct {
	UserID       int64     `json:"user_id"`
	Email        string    `json:"email"`
	RegisteredAt time.Time `json:"registered_at"`
}

type BookingCreatedEvent struct {
	BookingID  int64     `json:"booking_id"`
	UserID     int64     `json:"user_id"`
	ParcelID   int64     `json:"parcel_id"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	Nights     int       `json:"nights"`
	PriceCents int64     `json:"price_cents"`
	ServiceIDs []int64   `json:"service_ids"`
}

type BookingUpdatedEvent struct {
	BookingID int64     `json:"booking_id"`
	UserID    int64     `json:"user_id"`
	ParcelID  int64     `json:"parcel_id"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	UpdatedAt time.Time `json:"updated_at"`
}

type BookingCanceledEvent struct {
	BookingID  int64     `json:"booking_id"`
	UserID     int64     `json:"user_id"`
	CanceledAt time.Time `json:"canceled_at"`
}

type PaymentIntentCreatedEvent struct {
	BookingID int64  `json:"booking_id"`
	IntentID  string `json:"intent_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}
