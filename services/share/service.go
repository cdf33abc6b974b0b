// Package share implements shareable greeting cards and the gift-card
// fulfillment pipeline attached to them.
//
// Fulfillment has two entry points producing the same intent: the Stripe
// webhook after an upfront checkout, and the redemption endpoint which
// charges a stored payment method off-session. Both funnel into fulfill,
// where the fulfillment_orders payment_ref uniqueness constraint is the
// idempotency boundary against redelivery and concurrent attempts.
package share

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	uuid "github.com/satori/go.uuid"
	"github.com/stripe/stripe-go/v72"

	"github.com/everwish/everwish/libs/backoff"
	"github.com/everwish/everwish/libs/backoff/retrypolicy"
	"github.com/everwish/everwish/libs/clients/giftbit"
	"github.com/everwish/everwish/libs/datastore"
	"github.com/everwish/everwish/libs/logging"
	"github.com/everwish/everwish/libs/ptr"
	"github.com/everwish/everwish/libs/shortid"
	"github.com/everwish/everwish/services/share/model"
	"github.com/everwish/everwish/services/share/xstripe"
)

const (
	// The webhook path is not user-facing, so it affords a single attempt.
	webhookPollWait = 2 * time.Second

	// The redemption path blocks a user-facing request; it retries a little
	// longer but stays bounded.
	redeemPollWait     = 3 * time.Second
	redeemPollAttempts = 3

	// Delay between poll attempts. The per-attempt wait happens inside the
	// operation so it stays context-aware.
	pollRetryInterval = 10 * time.Millisecond
)

const errLinkNotReady model.Error = "share: gift card link not ready"

type orderStore interface {
	GetByPaymentRef(ctx context.Context, dbi sqlx.QueryerContext, paymentRef string) (*model.FulfillmentOrder, error)
	CreateIfAbsent(ctx context.Context, dbi sqlx.QueryerContext, req *model.FulfillmentOrder) (*model.FulfillmentOrder, bool, error)
	SetStatus(ctx context.Context, dbi sqlx.ExecerContext, id uuid.UUID, status string, campaignID, link, rawResponse *string) error
}

type shareStore interface {
	GetByShortCode(ctx context.Context, dbi sqlx.QueryerContext, shortCode string) (*model.ShareRecord, error)
	Create(ctx context.Context, dbi sqlx.QueryerContext, req *model.ShareRecord) (*model.ShareRecord, error)
	SetGiftStatus(ctx context.Context, dbi sqlx.ExecerContext, id uuid.UUID, status string, link *string) error
	SetPaymentMethod(ctx context.Context, dbi sqlx.ExecerContext, id uuid.UUID, customerID, paymentMethodID string) error
	ShortCodeExists(ctx context.Context, dbi sqlx.QueryerContext, shortCode string) (bool, error)
}

type stripeClient interface {
	CreateSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	SessionLineItems(ctx context.Context, id string) ([]*stripe.LineItem, error)
	ChargeOffSession(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type issuanceClient interface {
	CreateCampaign(ctx context.Context, req *giftbit.CreateCampaignRequest) (*giftbit.CreateCampaignResponse, error)
	GetLinks(ctx context.Context, campaignUUID string) (*giftbit.LinksResponse, error)
	ListBrands(ctx context.Context) (*giftbit.BrandsResponse, error)
}

type waitFunc func(ctx context.Context, dur time.Duration) error

// Config carries the static settings for the share service.
type Config struct {
	StripeWebhookSecret string

	// GiftCardAddonFee is the service fee in minor units charged on top of
	// the card's face value at checkout.
	GiftCardAddonFee int64

	Currency string

	CheckoutSuccessURL string
	CheckoutCancelURL  string
}

type Service struct {
	cfg Config

	dbi *sqlx.DB

	orderRepo orderStore
	shareRepo shareStore

	stripeCl stripeClient
	issueCl  issuanceClient

	notifier confirmationNotifier
	codeGen  *shortid.Generator

	waitFn              waitFunc
	newRedeemPollPolicy func() retrypolicy.Retry
}

func NewService(cfg Config, dbi *sqlx.DB, orderRepo orderStore, shareRepo shareStore, stripeCl stripeClient, issueCl issuanceClient) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}

	return &Service{
		cfg:                 cfg,
		dbi:                 dbi,
		orderRepo:           orderRepo,
		shareRepo:           shareRepo,
		stripeCl:            stripeCl,
		issueCl:             issueCl,
		notifier:            newLogNotifier(),
		codeGen:             shortid.New(),
		waitFn:              waitFor,
		newRedeemPollPolicy: newRedeemPollPolicy,
	}
}

// CreateShareRequest is the input for minting a share record.
type CreateShareRequest struct {
	SenderName         string             `json:"senderName" valid:"required"`
	RecipientName      string             `json:"recipientName" valid:"required"`
	Note               string             `json:"note" valid:"-"`
	CardID             *string            `json:"cardId" valid:"-"`
	CustomCardID       *string            `json:"customCardId" valid:"-"`
	VoiceNoteKey       *string            `json:"voiceNoteKey" valid:"-"`
	YoutubeClip        *string            `json:"youtubeClip" valid:"-"`
	GiftBrandCode      string             `json:"giftBrandCode" valid:"-"`
	GiftAmount         int64              `json:"giftAmount" valid:"-"`
	GiftRecipientEmail string             `json:"giftRecipientEmail" valid:"email,optional"`
	Metadata           datastore.Metadata `json:"metadata" valid:"-"`
}

const errCardRefConflict model.Error = "share: cardId and customCardId are mutually exclusive"

// CreateShare allocates a short code and persists a new share record.
func (s *Service) CreateShare(ctx context.Context, req *CreateShareRequest) (*model.ShareRecord, error) {
	if req.CardID != nil && req.CustomCardID != nil {
		return nil, errCardRefConflict
	}

	shortCode, err := s.codeGen.Generate(ctx, func(ctx context.Context, id string) (bool, error) {
		return s.shareRepo.ShortCodeExists(ctx, s.dbi, id)
	})
	if err != nil {
		return nil, err
	}

	rec := &model.ShareRecord{
		ShortCode:          shortCode,
		SenderName:         req.SenderName,
		RecipientName:      req.RecipientName,
		Note:               req.Note,
		CardID:             req.CardID,
		CustomCardID:       req.CustomCardID,
		VoiceNoteKey:       req.VoiceNoteKey,
		YoutubeClip:        req.YoutubeClip,
		GiftBrandCode:      req.GiftBrandCode,
		GiftAmount:         req.GiftAmount,
		GiftRecipientEmail: req.GiftRecipientEmail,
		Metadata:           req.Metadata,
	}

	return s.shareRepo.Create(ctx, s.dbi, rec)
}

// GetShare fetches a share record by short code.
func (s *Service) GetShare(ctx context.Context, shortCode string) (*model.ShareRecord, error) {
	return s.shareRepo.GetByShortCode(ctx, s.dbi, shortCode)
}

// ListBrands proxies the issuance provider's marketplace.
func (s *Service) ListBrands(ctx context.Context) (*giftbit.BrandsResponse, error) {
	return s.issueCl.ListBrands(ctx)
}

// CreateCheckoutSession mints a Stripe checkout session for the share's
// gift-card add-on. The session metadata is what the webhook path later
// consumes, and the payment method is stored for off-session use.
func (s *Service) CreateCheckoutSession(ctx context.Context, shortCode string) (*stripe.CheckoutSession, error) {
	sh, err := s.shareRepo.GetByShortCode(ctx, s.dbi, shortCode)
	if err != nil {
		return nil, err
	}

	if !sh.HasGiftCardIntent() {
		return nil, model.ErrNoGiftCardIntent
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(s.cfg.CheckoutSuccessURL),
		CancelURL:          stripe.String(s.cfg.CheckoutCancelURL),
		ClientReferenceID:  stripe.String(sh.ShortCode),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(s.cfg.Currency),
					UnitAmount: stripe.Int64(sh.GiftAmount + s.cfg.GiftCardAddonFee),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("Gift card: %s %s", sh.GiftBrandCode, sh.GiftAmountDisplay())),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			SetupFutureUsage: stripe.String("off_session"),
		},
	}

	params.AddMetadata(mdKeyGiftCard, "true")
	params.AddMetadata(mdKeyShortCode, sh.ShortCode)

	return s.stripeCl.CreateSession(ctx, params)
}

// HandleStripeNotification processes a signed webhook payload from Stripe.
//
// Events other than completed gift-card checkouts are acknowledged without
// action. Metadata alone is not trusted: the paid line items are checked
// against the expected gift-card price before fulfillment.
func (s *Service) HandleStripeNotification(ctx context.Context, payload []byte, sigHeader string) error {
	lg := logging.Logger(ctx, "share").With().Str("func", "HandleStripeNotification").Logger()

	sess, skip, err := parseStripeNotification(payload, sigHeader, s.cfg.StripeWebhookSecret)
	if err != nil {
		return err
	}

	if skip {
		return nil
	}

	sh, err := s.shareRepo.GetByShortCode(ctx, s.dbi, sess.Metadata[mdKeyShortCode])
	if err != nil {
		return err
	}

	if !sh.HasGiftCardIntent() {
		lg.Warn().Str("short_code", sh.ShortCode).Msg("session references share without gift card intent")
		return nil
	}

	if custID, pmID, ok := paymentMethodFromSession(sess); ok {
		if err := s.shareRepo.SetPaymentMethod(ctx, s.dbi, sh.ID, custID, pmID); err != nil {
			lg.Warn().Err(err).Msg("failed to store payment method")
		}
	}

	if !s.verifyGiftCardPaid(ctx, sess.ID, sh.GiftAmount+s.cfg.GiftCardAddonFee) {
		lg.Warn().Str("session_id", sess.ID).Msg("no paid line item covers the gift card")
		return nil
	}

	_, err = s.fulfill(ctx, sh, sess.ID, fulfillModeWebhook)

	return err
}

// RedeemResult reports the outcome of a redemption attempt.
type RedeemResult struct {
	// AlreadyRedeemed short-circuits the charge; treated as success.
	AlreadyRedeemed bool

	// Charged reports whether money moved during this attempt.
	Charged bool

	GiftCardLink *string
}

// RedeemGiftCard charges the stored payment method off-session and runs
// fulfillment. The payment reference is minted only once a charge truly
// succeeds, so a declined charge leaves no order row behind.
func (s *Service) RedeemGiftCard(ctx context.Context, shortCode string) (*RedeemResult, error) {
	lg := logging.Logger(ctx, "share").With().Str("func", "RedeemGiftCard").Logger()

	sh, err := s.shareRepo.GetByShortCode(ctx, s.dbi, shortCode)
	if err != nil {
		return nil, err
	}

	if !sh.HasGiftCardIntent() {
		return nil, model.ErrNoGiftCardIntent
	}

	if !sh.HasPaymentMethod() {
		return nil, model.ErrPaymentMethodMissing
	}

	if sh.GiftStatus == model.GiftStatusRedeemed {
		return &RedeemResult{AlreadyRedeemed: true, GiftCardLink: sh.GiftLink}, nil
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(sh.GiftAmount),
		Currency:      stripe.String(s.cfg.Currency),
		Customer:      stripe.String(sh.StripeCustomerID),
		PaymentMethod: stripe.String(sh.StripePaymentMethodID),
		Description:   stripe.String("Gift card redemption " + sh.ShortCode),
	}
	params.AddMetadata(mdKeyShortCode, sh.ShortCode)

	intent, err := s.stripeCl.ChargeOffSession(ctx, params)
	if err != nil {
		lg.Error().Err(err).Str("short_code", sh.ShortCode).Msg("off-session charge failed")

		if serr := s.shareRepo.SetGiftStatus(ctx, s.dbi, sh.ID, model.GiftStatusChargeFailed, nil); serr != nil {
			lg.Error().Err(serr).Msg("failed to update share status")
		}

		if xstripe.IsCardDeclined(err) {
			return nil, model.ErrPaymentDeclined
		}

		return nil, model.ErrPaymentGatewayUnavailable
	}

	order, err := s.fulfill(ctx, sh, intent.ID, fulfillModeRedemption)
	if err != nil {
		return &RedeemResult{Charged: true}, err
	}

	return &RedeemResult{Charged: true, GiftCardLink: order.GiftLink}, nil
}

type fulfillMode int

const (
	fulfillModeWebhook fulfillMode = iota
	fulfillModeRedemption
)

// fulfill runs the issuance pipeline for a paid gift card.
//
// The insert against the payment_ref uniqueness constraint decides ownership:
// when another attempt already minted the order, its current state is
// returned untouched, which makes webhook redelivery and double redemption
// no-ops.
func (s *Service) fulfill(ctx context.Context, sh *model.ShareRecord, paymentRef string, mode fulfillMode) (*model.FulfillmentOrder, error) {
	lg := logging.Logger(ctx, "share").With().
		Str("func", "fulfill").
		Str("payment_ref", paymentRef).
		Logger()

	order, created, err := s.orderRepo.CreateIfAbsent(ctx, s.dbi, &model.FulfillmentOrder{
		PaymentRef:     paymentRef,
		ShareID:        sh.ID,
		BrandCode:      sh.GiftBrandCode,
		Amount:         sh.GiftAmount,
		Currency:       s.cfg.Currency,
		RecipientEmail: sh.GiftRecipientEmail,
		RecipientName:  sh.RecipientName,
		SenderName:     sh.SenderName,
	})
	if err != nil {
		return nil, err
	}

	if !created {
		lg.Info().Msg("payment reference already fulfilled")
		return order, nil
	}

	// Uniqueness, not security.
	campaignID := fmt.Sprintf("%s-%d", order.ID, time.Now().Unix())

	resp, err := s.issueCl.CreateCampaign(ctx, &giftbit.CreateCampaignRequest{
		ID:      campaignID,
		Message: sh.Note,
		Subject: "A gift card from " + sh.SenderName,
		Contacts: []giftbit.Contact{
			{FirstName: sh.RecipientName, Email: sh.GiftRecipientEmail},
		},
		BrandCodes:   []string{sh.GiftBrandCode},
		PriceInCents: sh.GiftAmount,
		DeliveryType: giftbit.DeliveryShortlink,
	})
	if err != nil {
		s.failFulfillment(ctx, order, sh, mode, err)
		return nil, model.ErrCampaignFailed
	}

	cuuid := resp.Campaign.UUID

	// Mark the order sent before resolving the link: even if polling never
	// succeeds there must be a durable record that the card was issued and
	// money should not be refunded automatically.
	raw := marshalRaw(resp)
	if err := s.orderRepo.SetStatus(ctx, s.dbi, order.ID, model.OrderStatusSent, ptr.FromString(cuuid), nil, raw); err != nil {
		lg.Error().Err(err).Msg("failed to mark order sent")
	}

	wait, policy := webhookPollWait, retrypolicy.NoRetry
	if mode == fulfillModeRedemption {
		wait, policy = redeemPollWait, s.newRedeemPollPolicy()
	}

	link, err := s.pollForLink(ctx, cuuid, wait, policy)
	if err != nil {
		// Not a fulfillment failure; the provider generates links
		// asynchronously and this one was not ready within budget.
		lg.Warn().Err(err).Str("campaign_uuid", cuuid).Msg("gift card link not available")
	}

	var linkPtr *string
	if link != "" {
		linkPtr = ptr.FromString(link)

		if err := s.orderRepo.SetStatus(ctx, s.dbi, order.ID, model.OrderStatusSent, nil, linkPtr, nil); err != nil {
			lg.Error().Err(err).Msg("failed to persist gift card link")
		}
	}

	shareStatus := model.GiftStatusSent
	if mode == fulfillModeRedemption {
		shareStatus = model.GiftStatusRedeemed
	}

	if err := s.shareRepo.SetGiftStatus(ctx, s.dbi, sh.ID, shareStatus, linkPtr); err != nil {
		lg.Error().Err(err).Msg("failed to update share status")
	}

	if linkPtr != nil {
		s.notifier.GiftCardReady(ctx, sh.GiftRecipientEmail, *linkPtr)
	}

	order.Status = model.OrderStatusSent
	order.CampaignID = ptr.FromString(cuuid)
	order.GiftLink = linkPtr

	return order, nil
}

func (s *Service) failFulfillment(ctx context.Context, order *model.FulfillmentOrder, sh *model.ShareRecord, mode fulfillMode, cause error) {
	lg := logging.Logger(ctx, "share").With().
		Str("func", "failFulfillment").
		Str("payment_ref", order.PaymentRef).
		Logger()

	lg.Error().Err(cause).Msg("campaign creation failed")

	raw := marshalRaw(map[string]string{"error": cause.Error()})
	if err := s.orderRepo.SetStatus(ctx, s.dbi, order.ID, model.OrderStatusFailed, nil, nil, raw); err != nil {
		lg.Error().Err(err).Msg("failed to update order status")
	}

	shareStatus := model.GiftStatusFailed
	if mode == fulfillModeRedemption {
		// Money moved but nothing was delivered. This state exists so
		// operations staff can find and manually resolve these cases.
		shareStatus = model.GiftStatusChargeSucceededFulfillFailed
	}

	if err := s.shareRepo.SetGiftStatus(ctx, s.dbi, sh.ID, shareStatus, nil); err != nil {
		lg.Error().Err(err).Msg("failed to update share status")
	}
}

// pollForLink waits, then asks the provider for the campaign's shortlink,
// retrying under the given policy. Every failure is treated as "not ready
// yet"; only context cancellation aborts early.
func (s *Service) pollForLink(ctx context.Context, campaignUUID string, wait time.Duration, policy retrypolicy.Retry) (string, error) {
	op := func() (interface{}, error) {
		if err := s.waitFn(ctx, wait); err != nil {
			return nil, err
		}

		resp, err := s.issueCl.GetLinks(ctx, campaignUUID)
		if err != nil {
			return nil, err
		}

		if len(resp.Links) == 0 || resp.Links[0].Shortlink == "" {
			return nil, errLinkNotReady
		}

		return resp.Links[0].Shortlink, nil
	}

	isRetriable := func(err error) bool {
		return ctx.Err() == nil
	}

	link, err := backoff.Retry(ctx, op, policy, isRetriable)
	if err != nil {
		return "", err
	}

	return link.(string), nil
}

func newRedeemPollPolicy() retrypolicy.Retry {
	policy, err := retrypolicy.New(
		retrypolicy.WithInitialInterval(pollRetryInterval),
		retrypolicy.WithMaximumAttempts(redeemPollAttempts-1),
	)
	if err != nil {
		return retrypolicy.NoRetry
	}

	return policy
}

func waitFor(ctx context.Context, dur time.Duration) error {
	t := time.NewTimer(dur)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func marshalRaw(v interface{}) *string {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}

	raw := string(b)

	return &raw
}
