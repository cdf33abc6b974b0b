package xstripe

import (
	"context"

	"github.com/stripe/stripe-go/v72"
)

type MockClient struct {
	FnCreateSession    func(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	FnSessionLineItems func(ctx context.Context, id string) ([]*stripe.LineItem, error)
	FnChargeOffSession func(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

func (c *MockClient) CreateSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if c.FnCreateSession == nil {
		result := &stripe.CheckoutSession{
			ID:                 "cs_test_id",
			PaymentMethodTypes: []string{"card"},
			Mode:               stripe.CheckoutSessionModePayment,
			SuccessURL:         *params.SuccessURL,
			CancelURL:          *params.CancelURL,
			ClientReferenceID:  *params.ClientReferenceID,
		}

		return result, nil
	}

	return c.FnCreateSession(ctx, params)
}

func (c *MockClient) SessionLineItems(ctx context.Context, id string) ([]*stripe.LineItem, error) {
	if c.FnSessionLineItems == nil {
		result := []*stripe.LineItem{
			{ID: "li_id", AmountTotal: 500},
		}

		return result, nil
	}

	return c.FnSessionLineItems(ctx, id)
}

func (c *MockClient) ChargeOffSession(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if c.FnChargeOffSession == nil {
		result := &stripe.PaymentIntent{
			ID:     "pi_id",
			Status: stripe.PaymentIntentStatusSucceeded,
		}

		return result, nil
	}

	return c.FnChargeOffSession(ctx, params)
}
