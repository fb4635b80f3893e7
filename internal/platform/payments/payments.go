package payments

import (
	"context"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

type Intent struct {
	BookingID      int64
	UserID         int64
	AmountCents    int64
	IdempotencyKey string
}

type IntentResult struct {
	ID           string
	ClientSecret string
	Currency     string
}

// Provider creates payment intents. A nil result with a nil error means no
// payment is required.
type Provider interface {
	CreateIntent(ctx context.Context, in Intent) (*IntentResult, error)
}

type Stripe struct {
	api      *client.API
	currency string
}

// NewStripe builds a client for key. backends may be nil to use Stripe's
// default endpoints.
func NewStripe(key, currency string, backends *stripe.Backends) *Stripe {
	return &Stripe{api: client.New(key, backends), currency: currency}
}

func (s *Stripe) CreateIntent(ctx context.Context, in Intent) (*IntentResult, error) {
	if in.AmountCents <= 0 {
		return nil, nil
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(in.AmountCents),
		Currency: stripe.String(s.currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("booking_id", strconv.FormatInt(in.BookingID, 10))
	params.AddMetadata("user_id", strconv.FormatInt(in.UserID, 10))
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe payment intent: %w", err)
	}
	return &IntentResult{ID: pi.ID, ClientSecret: pi.ClientSecret, Currency: s.currency}, nil
}

// Nop is used when no Stripe key is configured.
type Nop struct{}

func (Nop) CreateIntent(context.Context, Intent) (*IntentResult, error) { return nil, nil }
