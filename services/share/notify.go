package share

import (
	"context"

	"github.com/everwish/everwish/libs/logging"
)

// confirmationNotifier announces a ready gift-card link to the recipient.
// Delivery is best effort and never affects the pipeline outcome.
type confirmationNotifier interface {
	GiftCardReady(ctx context.Context, email, link string)
}

type logNotifier struct{}

func newLogNotifier() *logNotifier { return &logNotifier{} }

func (n *logNotifier) GiftCardReady(ctx context.Context, email, link string) {
	logging.Logger(ctx, "share").Info().
		Str("func", "GiftCardReady").
		Str("email", email).
		Msg("gift card link ready")
}
