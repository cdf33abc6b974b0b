package share

import (
	"context"
	"encoding/json"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/webhook"

	"github.com/everwish/everwish/libs/logging"
	"github.com/everwish/everwish/services/share/model"
)

const (
	eventCheckoutSessionCompleted = "checkout.session.completed"

	// Metadata keys minted at checkout creation and consumed by the webhook.
	mdKeyGiftCard  = "gift_card"
	mdKeyShortCode = "share_short_code"
)

const (
	// ErrInvalidWebhookSignature - the notification payload failed signature verification.
	ErrInvalidWebhookSignature model.Error = "share: invalid webhook signature"
)

// parseStripeNotification verifies the payload signature and returns the
// completed checkout session carrying a gift-card purchase.
//
// The skip result is true for valid events this service does not act on:
// event types other than checkout.session.completed and sessions without
// gift-card metadata. Those must be acknowledged, not errored.
func parseStripeNotification(payload []byte, sigHeader, secret string) (*stripe.CheckoutSession, bool, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, secret)
	if err != nil {
		return nil, false, ErrInvalidWebhookSignature
	}

	if event.Type != eventCheckoutSessionCompleted {
		return nil, true, nil
	}

	sess := &stripe.CheckoutSession{}
	if err := json.Unmarshal(event.Data.Raw, sess); err != nil {
		return nil, false, err
	}

	if sess.Metadata[mdKeyGiftCard] != "true" || sess.Metadata[mdKeyShortCode] == "" {
		return nil, true, nil
	}

	return sess, false, nil
}

// verifyGiftCardPaid checks the session's paid line items cover the expected
// gift-card amount. When the listing itself fails the check is skipped and
// the session counts as paid.
func (s *Service) verifyGiftCardPaid(ctx context.Context, sessionID string, expAmount int64) bool {
	items, err := s.stripeCl.SessionLineItems(ctx, sessionID)
	if err != nil {
		logging.Logger(ctx, "share").Warn().Err(err).
			Str("session_id", sessionID).
			Msg("line item verification skipped")

		return true
	}

	var total int64
	for i := range items {
		total += items[i].AmountTotal
	}

	return total >= expAmount
}

// paymentMethodFromSession extracts the stored customer and payment method
// from a completed session, when the payment flow attached them.
func paymentMethodFromSession(sess *stripe.CheckoutSession) (string, string, bool) {
	if sess.Customer == nil || sess.PaymentIntent == nil || sess.PaymentIntent.PaymentMethod == nil {
		return "", "", false
	}

	return sess.Customer.ID, sess.PaymentIntent.PaymentMethod.ID, true
}
