// Package model provides the domain types shared across the share service.
package model

import (
	"time"

	uuid "github.com/satori/go.uuid"
	"github.com/shopspring/decimal"

	"github.com/everwish/everwish/libs/datastore"
)

const (
	// ErrShareNotFound - no share record exists for the short code.
	ErrShareNotFound Error = "model: share not found"

	// ErrOrderNotFound - no fulfillment order exists for the reference.
	ErrOrderNotFound Error = "model: fulfillment order not found"

	// ErrNoGiftCardIntent - the share was created without a gift-card intent.
	ErrNoGiftCardIntent Error = "model: share has no gift card intent"

	// ErrPaymentMethodMissing - no stored customer or payment method to charge.
	ErrPaymentMethodMissing Error = "model: payment method missing"

	// ErrAlreadyRedeemed - the gift card was already redeemed; no charge is made.
	ErrAlreadyRedeemed Error = "model: gift card already redeemed"

	// ErrPaymentDeclined - the off-session charge was declined by the card issuer.
	ErrPaymentDeclined Error = "model: payment declined"

	// ErrPaymentGatewayUnavailable - the payment gateway failed for a reason other than a decline.
	ErrPaymentGatewayUnavailable Error = "model: payment gateway unavailable"

	// ErrCampaignFailed - the issuance provider rejected or failed the campaign.
	ErrCampaignFailed Error = "model: gift card campaign failed"
)

// Error is a sentinel error type.
type Error string

func (e Error) Error() string {
	return string(e)
}

// Gift statuses on a share record.
//
// The lifecycle is monotonic: none -> pending -> {sent, failed, charge_failed},
// sent -> {redeemed, charge_failed, charge_succeeded_fulfill_failed}.
// Terminal diagnostic states are never reported as pending.
const (
	GiftStatusNone     = "none"
	GiftStatusPending  = "pending"
	GiftStatusSent     = "sent"
	GiftStatusFailed   = "failed"
	GiftStatusRedeemed = "redeemed"

	// GiftStatusChargeFailed - the redemption-time charge was declined or errored; nothing was issued.
	GiftStatusChargeFailed = "charge_failed"

	// GiftStatusChargeSucceededFulfillFailed - the charge settled but issuance failed; needs operator attention.
	GiftStatusChargeSucceededFulfillFailed = "charge_succeeded_fulfill_failed"
)

// Fulfillment order statuses.
const (
	OrderStatusPending = "pending"
	OrderStatusSent    = "sent"
	OrderStatusFailed  = "failed"
)

// ShareRecord is a shared greeting card, optionally carrying a gift-card intent.
type ShareRecord struct {
	ID                    uuid.UUID          `db:"id"`
	ShortCode             string             `db:"short_code"`
	SenderName            string             `db:"sender_name"`
	RecipientName         string             `db:"recipient_name"`
	Note                  string             `db:"note"`
	CardID                *string            `db:"card_id"`
	CustomCardID          *string            `db:"custom_card_id"`
	VoiceNoteKey          *string            `db:"voice_note_key"`
	YoutubeClip           *string            `db:"youtube_clip"`
	GiftBrandCode         string             `db:"gift_brand_code"`
	GiftAmount            int64              `db:"gift_amount"`
	GiftStatus            string             `db:"gift_status"`
	GiftLink              *string            `db:"gift_link"`
	GiftRecipientEmail    string             `db:"gift_recipient_email"`
	StripeCustomerID      string             `db:"stripe_customer_id"`
	StripePaymentMethodID string             `db:"stripe_payment_method_id"`
	Metadata              datastore.Metadata `db:"metadata"`
	CreatedAt             time.Time          `db:"created_at"`
	UpdatedAt             time.Time          `db:"updated_at"`
}

// HasGiftCardIntent reports whether a gift card was attached at creation.
func (s *ShareRecord) HasGiftCardIntent() bool {
	return s.GiftBrandCode != "" && s.GiftAmount > 0
}

// HasPaymentMethod reports whether an off-session charge can be attempted.
func (s *ShareRecord) HasPaymentMethod() bool {
	return s.StripeCustomerID != "" && s.StripePaymentMethodID != ""
}

// GiftAmountDisplay renders the minor-unit amount as a decimal string, e.g. "25.00".
func (s *ShareRecord) GiftAmountDisplay() string {
	return decimal.New(s.GiftAmount, -2).StringFixed(2)
}

// FulfillmentOrder is a single fulfillment attempt keyed by payment reference.
//
// PaymentRef carries the idempotency key: the checkout session id on the
// webhook path, or the payment intent id on the redemption path. The table
// enforces uniqueness so concurrent attempts collapse onto one row.
type FulfillmentOrder struct {
	ID             uuid.UUID `db:"id"`
	PaymentRef     string    `db:"payment_ref"`
	ShareID        uuid.UUID `db:"share_id"`
	BrandCode      string    `db:"brand_code"`
	Amount         int64     `db:"amount"`
	Currency       string    `db:"currency"`
	RecipientEmail string    `db:"recipient_email"`
	RecipientName  string    `db:"recipient_name"`
	SenderName     string    `db:"sender_name"`
	Status         string    `db:"status"`
	CampaignID     *string   `db:"campaign_id"`
	GiftLink       *string   `db:"gift_link"`
	RawResponse    *string   `db:"raw_response"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// IsTerminal reports whether no further fulfillment work applies to the order.
func (o *FulfillmentOrder) IsTerminal() bool {
	return o.Status == OrderStatusSent || o.Status == OrderStatusFailed
}
