package share

import (
	"errors"
	"net/http"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi"

	"github.com/everwish/everwish/libs/handlers"
	"github.com/everwish/everwish/libs/middleware"
	"github.com/everwish/everwish/libs/requestutils"
	"github.com/everwish/everwish/services/share/model"
)

// Router returns the routes for shares.
func Router(svc *Service) chi.Router {
	r := chi.NewRouter()

	r.Method(http.MethodPost, "/", middleware.InstrumentHandler("CreateShare", CreateShare(svc)))
	r.Method(http.MethodGet, "/{shortCode}", middleware.InstrumentHandler("GetShare", GetShare(svc)))
	r.Method(http.MethodPost, "/{shortCode}/checkout", middleware.InstrumentHandler("CreateCheckout", CreateCheckout(svc)))
	r.Method(http.MethodPost, "/{shortCode}/giftcard/redeem", middleware.InstrumentHandler("RedeemGiftCard", RedeemGiftCard(svc)))

	return r
}

// WebhookRouter returns the routes for payment gateway notifications.
func WebhookRouter(svc *Service) chi.Router {
	r := chi.NewRouter()

	r.Method(http.MethodPost, "/stripe", middleware.InstrumentHandler("HandleStripeWebhook", HandleStripeWebhook(svc)))

	return r
}

// GiftCardsRouter returns the routes for the gift-card marketplace.
func GiftCardsRouter(svc *Service) chi.Router {
	r := chi.NewRouter()

	r.Method(http.MethodGet, "/brands", middleware.InstrumentHandler("ListBrands", ListBrands(svc)))

	return r
}

// ShareResponse is the public shape of a share record.
type ShareResponse struct {
	ShortCode          string    `json:"shortCode"`
	SenderName         string    `json:"senderName"`
	RecipientName      string    `json:"recipientName"`
	Note               string    `json:"note,omitempty"`
	CardID             *string   `json:"cardId,omitempty"`
	CustomCardID       *string   `json:"customCardId,omitempty"`
	VoiceNoteKey       *string   `json:"voiceNoteKey,omitempty"`
	YoutubeClip        *string   `json:"youtubeClip,omitempty"`
	GiftBrandCode      string    `json:"giftBrandCode,omitempty"`
	GiftAmount         int64     `json:"giftAmount,omitempty"`
	GiftStatus         string    `json:"giftStatus"`
	GiftLink           *string   `json:"giftCardLink,omitempty"`
	GiftRecipientEmail string    `json:"giftRecipientEmail,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
}

func newShareResponse(rec *model.ShareRecord) *ShareResponse {
	return &ShareResponse{
		ShortCode:          rec.ShortCode,
		SenderName:         rec.SenderName,
		RecipientName:      rec.RecipientName,
		Note:               rec.Note,
		CardID:             rec.CardID,
		CustomCardID:       rec.CustomCardID,
		VoiceNoteKey:       rec.VoiceNoteKey,
		YoutubeClip:        rec.YoutubeClip,
		GiftBrandCode:      rec.GiftBrandCode,
		GiftAmount:         rec.GiftAmount,
		GiftStatus:         rec.GiftStatus,
		GiftLink:           rec.GiftLink,
		GiftRecipientEmail: rec.GiftRecipientEmail,
		CreatedAt:          rec.CreatedAt,
	}
}

// CreateShare handles requests to mint a share record.
func CreateShare(svc *Service) handlers.AppHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		ctx := r.Context()

		var req CreateShareRequest
		if err := requestutils.ReadJSON(ctx, r.Body, &req); err != nil {
			return handlers.WrapError(err, "Error in request body", http.StatusBadRequest)
		}

		if _, err := govalidator.ValidateStruct(req); err != nil {
			return handlers.WrapValidationError(err)
		}

		rec, err := svc.CreateShare(ctx, &req)
		if err != nil {
			switch {
			case errors.Is(err, errCardRefConflict):
				return handlers.WrapError(err, "cardId and customCardId are mutually exclusive", http.StatusBadRequest)
			default:
				return handlers.WrapError(err, "Error creating share", http.StatusInternalServerError)
			}
		}

		return handlers.RenderContent(ctx, newShareResponse(rec), w, http.StatusCreated)
	}
}

// GetShare handles requests to fetch a share record for rendering.
func GetShare(svc *Service) handlers.AppHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		ctx := r.Context()

		rec, err := svc.GetShare(ctx, chi.URLParam(r, "shortCode"))
		if err != nil {
			if errors.Is(err, model.ErrShareNotFound) {
				return handlers.WrapError(err, "Share not found", http.StatusNotFound)
			}

			return handlers.WrapError(err, "Error retrieving share", http.StatusInternalServerError)
		}

		return handlers.RenderContent(ctx, newShareResponse(rec), w, http.StatusOK)
	}
}

// CheckoutResponse carries the hosted checkout session for the client.
type CheckoutResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url,omitempty"`
}

// CreateCheckout handles requests to start a gift-card checkout session.
func CreateCheckout(svc *Service) handlers.AppHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		ctx := r.Context()

		sess, err := svc.CreateCheckoutSession(ctx, chi.URLParam(r, "shortCode"))
		if err != nil {
			switch {
			case errors.Is(err, model.ErrShareNotFound):
				return handlers.WrapError(err, "Share not found", http.StatusNotFound)
			case errors.Is(err, model.ErrNoGiftCardIntent):
				return handlers.WrapError(err, "Share has no gift card", http.StatusBadRequest)
			default:
				return handlers.WrapError(err, "Error creating checkout session", http.StatusInternalServerError)
			}
		}

		resp := &CheckoutResponse{SessionID: sess.ID, URL: sess.URL}

		return handlers.RenderContent(ctx, resp, w, http.StatusCreated)
	}
}

// RedeemResponse is the redemption outcome returned to the recipient.
//
// Charged is included on failure after a successful charge so the caller
// knows money moved even though fulfillment did not complete.
type RedeemResponse struct {
	Success      bool    `json:"success"`
	Redeemed     bool    `json:"redeemed"`
	GiftCardLink *string `json:"giftCardLink,omitempty"`
	Error        string  `json:"error,omitempty"`
	Charged      bool    `json:"charged,omitempty"`
}

// RedeemGiftCard handles requests to claim a share's gift card.
func RedeemGiftCard(svc *Service) handlers.AppHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		ctx := r.Context()

		result, err := svc.RedeemGiftCard(ctx, chi.URLParam(r, "shortCode"))
		if err != nil {
			switch {
			case errors.Is(err, model.ErrShareNotFound):
				return handlers.WrapError(err, "Share not found", http.StatusNotFound)

			case errors.Is(err, model.ErrNoGiftCardIntent):
				return handlers.WrapError(err, "Share has no gift card", http.StatusBadRequest)

			case errors.Is(err, model.ErrPaymentMethodMissing):
				return handlers.WrapError(err, "No stored payment method", http.StatusBadRequest)

			case errors.Is(err, model.ErrPaymentDeclined):
				return handlers.WrapError(err, "Payment declined", http.StatusPaymentRequired)

			case errors.Is(err, model.ErrPaymentGatewayUnavailable):
				return handlers.WrapError(err, "Payment gateway unavailable", http.StatusPaymentRequired)

			case errors.Is(err, model.ErrCampaignFailed):
				app := handlers.WrapError(err, "Gift card fulfillment failed", http.StatusInternalServerError)
				app.Data = &RedeemResponse{
					Error:   "Gift card fulfillment failed",
					Charged: result != nil && result.Charged,
				}

				return app

			default:
				return handlers.WrapError(err, "Error redeeming gift card", http.StatusInternalServerError)
			}
		}

		resp := &RedeemResponse{
			Success:      true,
			Redeemed:     true,
			GiftCardLink: result.GiftCardLink,
		}
		if result.Charged {
			resp.Charged = true
		}

		return handlers.RenderContent(ctx, resp, w, http.StatusOK)
	}
}

// HandleStripeWebhook handles signed notifications from the payment gateway.
func HandleStripeWebhook(svc *Service) handlers.AppHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		ctx := r.Context()

		payload, err := requestutils.Read(ctx, r.Body)
		if err != nil {
			return handlers.WrapError(err, "Error reading request body", http.StatusServiceUnavailable)
		}

		if err := svc.HandleStripeNotification(ctx, payload, r.Header.Get("Stripe-Signature")); err != nil {
			if errors.Is(err, ErrInvalidWebhookSignature) {
				return handlers.WrapError(err, "Invalid webhook signature", http.StatusBadRequest)
			}

			// Non-2xx prompts the gateway to redeliver; the idempotency
			// check makes the redelivery safe.
			return handlers.WrapError(err, "Error processing webhook", http.StatusInternalServerError)
		}

		return handlers.RenderContent(ctx, struct{}{}, w, http.StatusOK)
	}
}

// ListBrands proxies the issuance provider's brand marketplace.
func ListBrands(svc *Service) handlers.AppHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		ctx := r.Context()

		brands, err := svc.ListBrands(ctx)
		if err != nil {
			return handlers.WrapError(err, "Error listing brands", http.StatusInternalServerError)
		}

		return handlers.RenderContent(ctx, brands, w, http.StatusOK)
	}
}
