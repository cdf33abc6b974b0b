package xstripe

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
)

// Client is a thin facade over the Stripe API client.
//
// It performs no internal retries; callers decide how to handle failures.
type Client struct {
	cl *client.API
}

func NewClient(cl *client.API) *Client {
	return &Client{cl: cl}
}

func (c *Client) CreateSession(_ context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return c.cl.CheckoutSessions.New(params)
}

// SessionLineItems drains the paid line items of a checkout session.
func (c *Client) SessionLineItems(_ context.Context, id string) ([]*stripe.LineItem, error) {
	iter := c.cl.CheckoutSessions.ListLineItems(id, &stripe.CheckoutSessionListLineItemsParams{})

	var items []*stripe.LineItem
	for iter.Next() {
		items = append(items, iter.LineItem())
	}

	if err := iter.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

// ChargeOffSession confirms a payment intent against a stored customer and
// payment method without the customer present.
func (c *Client) ChargeOffSession(_ context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	params.Confirm = stripe.Bool(true)
	params.OffSession = stripe.Bool(true)

	return c.cl.PaymentIntents.New(params)
}

// IsCardDeclined reports whether err is a card decline as opposed to a
// gateway failure.
func IsCardDeclined(err error) bool {
	var serr *stripe.Error
	if errors.As(err, &serr) {
		return serr.Type == stripe.ErrorTypeCard
	}

	return false
}

