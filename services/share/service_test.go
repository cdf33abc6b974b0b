package share

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	uuid "github.com/satori/go.uuid"
	should "github.com/stretchr/testify/assert"
	must "github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v72"

	"github.com/everwish/everwish/libs/clients/giftbit"
	"github.com/everwish/everwish/services/share/model"
	"github.com/everwish/everwish/services/share/storage/repository"
	"github.com/everwish/everwish/services/share/xstripe"
)

const testWebhookSecret = "whsec_test"

func testService(orderRepo orderStore, shareRepo shareStore, stripeCl stripeClient, issueCl issuanceClient) *Service {
	cfg := Config{
		StripeWebhookSecret: testWebhookSecret,
		GiftCardAddonFee:    500,
		Currency:            "usd",
		CheckoutSuccessURL:  "https://everwish.example.com/success",
		CheckoutCancelURL:   "https://everwish.example.com/cancel",
	}

	svc := NewService(cfg, nil, orderRepo, shareRepo, stripeCl, issueCl)

	// Collapse poll waits so tests run instantly.
	svc.waitFn = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }

	return svc
}

func testShare() *model.ShareRecord {
	return &model.ShareRecord{
		ID:                    uuid.NewV4(),
		ShortCode:             "ab3xk9m",
		SenderName:            "Alex",
		RecipientName:         "Sam",
		Note:                  "Happy birthday!",
		GiftBrandCode:         "starbucks",
		GiftAmount:            2500,
		GiftStatus:            model.GiftStatusPending,
		GiftRecipientEmail:    "sam@example.com",
		StripeCustomerID:      "cus_1",
		StripePaymentMethodID: "pm_1",
	}
}

// inMemOrders tracks fulfillment orders per payment reference the way the
// uniqueness constraint would.
type inMemOrders struct {
	rows     map[string]*model.FulfillmentOrder
	statuses map[string][]string
}

func newInMemOrders() *inMemOrders {
	return &inMemOrders{
		rows:     map[string]*model.FulfillmentOrder{},
		statuses: map[string][]string{},
	}
}

func (s *inMemOrders) repo() *repository.MockOrder {
	return &repository.MockOrder{
		FnCreateIfAbsent: func(ctx context.Context, dbi sqlx.QueryerContext, req *model.FulfillmentOrder) (*model.FulfillmentOrder, bool, error) {
			if existing, ok := s.rows[req.PaymentRef]; ok {
				cpy := *existing
				return &cpy, false, nil
			}

			row := *req
			row.ID = uuid.NewV4()
			row.Status = model.OrderStatusPending
			s.rows[req.PaymentRef] = &row

			cpy := row
			return &cpy, true, nil
		},

		FnSetStatus: func(ctx context.Context, dbi sqlx.ExecerContext, id uuid.UUID, status string, campaignID, link, rawResponse *string) error {
			for _, row := range s.rows {
				if row.ID != id {
					continue
				}

				row.Status = status
				if campaignID != nil {
					row.CampaignID = campaignID
				}
				if link != nil {
					row.GiftLink = link
				}
				if rawResponse != nil {
					row.RawResponse = rawResponse
				}

				s.statuses[row.PaymentRef] = append(s.statuses[row.PaymentRef], status)

				return nil
			}

			return model.ErrOrderNotFound
		},
	}
}

func TestService_Fulfill_Idempotent(t *testing.T) {
	orders := newInMemOrders()
	sh := testShare()

	var numCampaigns int
	issueCl := &giftbit.MockClient{
		FnCreateCampaign: func(ctx context.Context, req *giftbit.CreateCampaignRequest) (*giftbit.CreateCampaignResponse, error) {
			numCampaigns++
			return &giftbit.CreateCampaignResponse{
				Campaign: giftbit.Campaign{UUID: "campaign-uuid-1", Status: "ACCEPTED"},
			}, nil
		},

		FnGetLinks: func(ctx context.Context, campaignUUID string) (*giftbit.LinksResponse, error) {
			return &giftbit.LinksResponse{
				Links: []giftbit.Link{{Shortlink: "https://gift.example.com/abc"}},
			}, nil
		},
	}

	svc := testService(orders.repo(), &repository.MockShare{}, &xstripe.MockClient{}, issueCl)

	first, err := svc.fulfill(context.Background(), sh, "cs_test_1", fulfillModeWebhook)
	must.NoError(t, err)

	second, err := svc.fulfill(context.Background(), sh, "cs_test_1", fulfillModeWebhook)
	must.NoError(t, err)

	should.Equal(t, 1, numCampaigns)
	should.Equal(t, 1, len(orders.rows))

	should.Equal(t, first.ID, second.ID)
	should.Equal(t, model.OrderStatusSent, second.Status)

	must.NotNil(t, second.GiftLink)
	should.Equal(t, "https://gift.example.com/abc", *second.GiftLink)
}

func TestService_Fulfill_CampaignFailure(t *testing.T) {
	type tcGiven struct {
		mode fulfillMode
	}

	type tcExpected struct {
		shareStatus string
	}

	type testCase struct {
		name  string
		given tcGiven
		exp   tcExpected
	}

	tests := []testCase{
		{
			name:  "webhook_marks_failed",
			given: tcGiven{mode: fulfillModeWebhook},
			exp:   tcExpected{shareStatus: model.GiftStatusFailed},
		},

		{
			name:  "redemption_flags_charged",
			given: tcGiven{mode: fulfillModeRedemption},
			exp:   tcExpected{shareStatus: model.GiftStatusChargeSucceededFulfillFailed},
		},
	}

	for i := range tests {
		tc := tests[i]

		t.Run(tc.name, func(t *testing.T) {
			orders := newInMemOrders()
			sh := testShare()

			issueCl := &giftbit.MockClient{
				FnCreateCampaign: func(ctx context.Context, req *giftbit.CreateCampaignRequest) (*giftbit.CreateCampaignResponse, error) {
					return nil, errors.New("invalid brand")
				},
			}

			var shareStatus string
			shareRepo := &repository.MockShare{
				FnSetGiftStatus: func(ctx context.Context, dbi sqlx.ExecerContext, id uuid.UUID, status string, link *string) error {
					shareStatus = status
					return nil
				},
			}

			svc := testService(orders.repo(), shareRepo, &xstripe.MockClient{}, issueCl)

			_, err := svc.fulfill(context.Background(), sh, "pi_test_1", tc.given.mode)
			should.ErrorIs(t, err, model.ErrCampaignFailed)

			// Never left at pending.
			should.Equal(t, tc.exp.shareStatus, shareStatus)
			should.Equal(t, model.OrderStatusFailed, orders.rows["pi_test_1"].Status)
			should.NotNil(t, orders.rows["pi_test_1"].RawResponse)
		})
	}
}

func TestService_RedeemGiftCard(t *testing.T) {
	t.Run("share_not_found", func(t *testing.T) {
		shareRepo := &repository.MockShare{
			FnGetByShortCode: func(ctx context.Context, dbi sqlx.QueryerContext, shortCode string) (*model.ShareRecord, error) {
				return nil, model.ErrShareNotFound
			},
		}

		svc := testService(&repository.MockOrder{}, shareRepo, &xstripe.MockClient{}, &giftbit.MockClient{})

		_, err := svc.RedeemGiftCard(context.Background(), "zzzzzzz")
		should.ErrorIs(t, err, model.ErrShareNotFound)
	})

	t.Run("no_gift_intent", func(t *testing.T) {
		sh := testShare()
		sh.GiftBrandCode = ""

		shareRepo := &repository.MockShare{
			FnGetByShortCode: func(ctx context.Context, dbi sqlx.QueryerContext, shortCode string) (*model.ShareRecord, error) {
				return sh, nil
			},
		}

		svc := testService(&repository.MockOrder{}, shareRepo, &xstripe.MockClient{}, &giftbit.MockClient{})

		_, err := svc.RedeemGiftCard(context.Background(), sh.ShortCode)
		should.ErrorIs(t, err, model.ErrNoGiftCardIntent)
	})

	t.Run("already_redeemed_no_second_charge", func(t *testing.T) {
		sh := testShare()
		sh.GiftStatus = model.GiftStatusRedeemed
		link := "https://gift.example.com/abc"
		sh.GiftLink = &link

		shareRepo := &repository.MockShare{
			FnGetByShortCode: func(ctx context.Context, dbi sqlx.QueryerContext, shortCode string) (*model.ShareRecord, error) {
				return sh, nil
			},
		}

		var numCharges int
		stripeCl := &xstripe.MockClient{
			FnChargeOffSession: func(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
				numCharges++
				return &stripe.PaymentIntent{ID: "pi_1"}, nil
			},
		}

		svc := testService(&repository.MockOrder{}, shareRepo, stripeCl, &giftbit.MockClient{})

		result, err := svc.RedeemGiftCard(context.Background(), sh.ShortCode)
		must.NoError(t, err)

		should.True(t, result.AlreadyRedeemed)
		should.False(t, result.Charged)
		should.Equal(t, 0, numCharges)

		must.NotNil(t, result.GiftCardLink)
		should.Equal(t, link, *result.GiftCardLink)
	})

	t.Run("payment_method_missing", func(t *testing.T) {
		sh := testShare()
		sh.StripePaymentMethodID = ""

		shareRepo := &repository.MockShare{
			FnGetByShortCode: func(ctx context.Context, dbi sqlx.QueryerContext, shortCode string) (*model.ShareRecord, error) {
				return sh, nil
			},
		}

		var numOrders int
		orderRepo := &repository.MockOrder{
			FnCreateIfAbsent: func(ctx context.Context, dbi sqlx.QueryerContext, req *model.FulfillmentOrder) (*model.FulfillmentOrder, bool, error) {
				numOrders++
				return req, true, nil
			},
		}

		svc := testService(orderRepo, shareRepo, &xstripe.MockClient{}, &giftbit.MockClient{})

		_, err := svc.RedeemGiftCard(context.Background(), sh.ShortCode)
		should.ErrorIs(t, err, model.ErrPaymentMethodMissing)
		should.Equal(t, 0, numOrders)
	})

	t.Run("payment_method_checked_before_redeemed", func(t *testing.T) {
		sh := testShare()
		sh.GiftStatus = model.GiftStatusRedeemed
		sh.StripeCustomerID = ""
		sh.StripePaymentMethodID = ""

		shareRepo := &repository.MockShare{
			FnGetByShortCode: func(ctx context.Context, dbi sqlx.QueryerContext, shortCode string) (*model.ShareRecord, error) {
				return sh, nil
			},
		}

		svc := testService(&repository.MockOrder{}, shareRepo, &xstripe.MockClient{}, &giftbit.MockClient{})

		_, err := svc.RedeemGiftCard(context.Background(), sh.ShortCode)
		should.ErrorIs(t, err, model.ErrPaymentMethodMissing)
	})

	t.Run("charge_declined_no_order_row", func(t *testing.T) {
		sh := testShare()

		var shareStatus string
		shareRepo := &repository.MockShare{
			FnGetByShortCode: func(ctx context.Context, dbi sqlx.QueryerContext, shortCode string) (*model.ShareRecord, error) {
				return sh, nil
			},
			FnSetGiftStatus: func(ctx context.Context, dbi sqlx.ExecerContext, id uuid.UUID, status string, link *string) error {
				shareStatus = status
				return nil
			},
		}

		var numOrders int
		orderRepo := &repository.MockOrder{
			FnCreateIfAbsent: func(ctx context.Context, dbi sqlx.QueryerContext, req *model.FulfillmentOrder) (*model.FulfillmentOrder, bool, error) {
				numOrders++
				return req, true, nil
			},
		}

		stripeCl := &xstripe.MockClient{
			FnChargeOffSession: func(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
				return nil, &stripe.Error{Type: stripe.ErrorTypeCard, Code: stripe.ErrorCodeCardDeclined}
			},
		}

		svc := testService(orderRepo, shareRepo, stripeCl, &giftbit.MockClient{})

		_, err := svc.RedeemGiftCard(context.Background(), sh.ShortCode)
		should.ErrorIs(t, err, model.ErrPaymentDeclined)

		should.Equal(t, model.GiftStatusChargeFailed, shareStatus)
		should.Equal(t, 0, numOrders)
	})

	t.Run("gateway_unavailable", func(t *testing.T) {
		sh := testShare()

		shareRepo := &repository.MockShare{
			FnGetByShortCode: func(ctx context.Context, dbi sqlx.QueryerContext, shortCode string) (*model.ShareRecord, error) {
				return sh, nil
			},
		}

		stripeCl := &xstripe.MockClient{
			FnChargeOffSession: func(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
				return nil, &stripe.Error{Type: stripe.ErrorTypeAPI}
			},
		}

		svc := testService(&repository.MockOrder{}, shareRepo, stripeCl, &giftbit.MockClient{})

		_, err := svc.RedeemGiftCard(context.Background(), sh.ShortCode)
		should.ErrorIs(t, err, model.ErrPaymentGatewayUnavailable)
	})

	t.Run("campaign_fails_after_charge", func(t *testing.T) {
		orders := newInMemOrders()
		sh := testShare()

		var shareStatus string
		shareRepo := &repository.MockShare{
			FnGetByShortCode: func(ctx context.Context, dbi sqlx.QueryerContext, shortCode string) (*model.ShareRecord, error) {
				return sh, nil
			},
			FnSetGiftStatus: func(ctx context.Context, dbi sqlx.ExecerContext, id uuid.UUID, status string, link *string) error {
				shareStatus = status
				return nil
			},
		}

		issueCl := &giftbit.MockClient{
			FnCreateCampaign: func(ctx context.Context, req *giftbit.CreateCampaignRequest) (*giftbit.CreateCampaignResponse, error) {
				return nil, errors.New("service busy")
			},
		}

		svc := testService(orders.repo(), shareRepo, &xstripe.MockClient{}, issueCl)

		result, err := svc.RedeemGiftCard(context.Background(), sh.ShortCode)
		should.ErrorIs(t, err, model.ErrCampaignFailed)

		must.NotNil(t, result)
		should.True(t, result.Charged)
		should.Equal(t, model.GiftStatusChargeSucceededFulfillFailed, shareStatus)
	})

	t.Run("poll_exhausted_still_redeemed", func(t *testing.T) {
		orders := newInMemOrders()
		sh := testShare()

		var shareStatus string
		var shareLink *string
		shareRepo := &repository.MockShare{
			FnGetByShortCode: func(ctx context.Context, dbi sqlx.QueryerContext, shortCode string) (*model.ShareRecord, error) {
				return sh, nil
			},
			FnSetGiftStatus: func(ctx context.Context, dbi sqlx.ExecerContext, id uuid.UUID, status string, link *string) error {
				shareStatus, shareLink = status, link
				return nil
			},
		}

		var numPolls int
		issueCl := &giftbit.MockClient{
			FnCreateCampaign: func(ctx context.Context, req *giftbit.CreateCampaignRequest) (*giftbit.CreateCampaignResponse, error) {
				return &giftbit.CreateCampaignResponse{
					Campaign: giftbit.Campaign{UUID: "campaign-uuid-1"},
				}, nil
			},
			FnGetLinks: func(ctx context.Context, campaignUUID string) (*giftbit.LinksResponse, error) {
				numPolls++
				return nil, errors.New("service busy")
			},
		}

		svc := testService(orders.repo(), shareRepo, &xstripe.MockClient{}, issueCl)

		result, err := svc.RedeemGiftCard(context.Background(), sh.ShortCode)
		must.NoError(t, err)

		should.Equal(t, 3, numPolls)
		should.True(t, result.Charged)
		should.Nil(t, result.GiftCardLink)

		// Issued but link never resolved: sent, not failed.
		should.Equal(t, model.OrderStatusSent, orders.rows["pi_id"].Status)
		should.Equal(t, model.GiftStatusRedeemed, shareStatus)
		should.Nil(t, shareLink)
	})

	t.Run("success_with_link", func(t *testing.T) {
		orders := newInMemOrders()
		sh := testShare()

		var shareStatus string
		var shareLink *string
		shareRepo := &repository.MockShare{
			FnGetByShortCode: func(ctx context.Context, dbi sqlx.QueryerContext, shortCode string) (*model.ShareRecord, error) {
				return sh, nil
			},
			FnSetGiftStatus: func(ctx context.Context, dbi sqlx.ExecerContext, id uuid.UUID, status string, link *string) error {
				shareStatus, shareLink = status, link
				return nil
			},
		}

		issueCl := &giftbit.MockClient{
			FnGetLinks: func(ctx context.Context, campaignUUID string) (*giftbit.LinksResponse, error) {
				return &giftbit.LinksResponse{
					Links: []giftbit.Link{{Shortlink: "https://gift.example.com/abc"}},
				}, nil
			},
		}

		svc := testService(orders.repo(), shareRepo, &xstripe.MockClient{}, issueCl)

		result, err := svc.RedeemGiftCard(context.Background(), sh.ShortCode)
		must.NoError(t, err)

		should.True(t, result.Charged)
		must.NotNil(t, result.GiftCardLink)
		should.Equal(t, "https://gift.example.com/abc", *result.GiftCardLink)

		should.Equal(t, model.GiftStatusRedeemed, shareStatus)
		must.NotNil(t, shareLink)
		should.Equal(t, "https://gift.example.com/abc", *shareLink)
	})
}

func signWebhookPayload(payload []byte, secret string) string {
	ts := time.Now().Unix()

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))

	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func giftCardSessionPayload(shortCode string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": "cs_test_1",
				"object": "checkout.session",
				"metadata": {"gift_card": "true", "share_short_code": %q},
				"customer": {"id": "cus_1"},
				"payment_intent": {"id": "pi_1", "payment_method": {"id": "pm_1"}}
			}
		}
	}`, shortCode))
}

func TestService_HandleStripeNotification(t *testing.T) {
	t.Run("invalid_signature", func(t *testing.T) {
		svc := testService(&repository.MockOrder{}, &repository.MockShare{}, &xstripe.MockClient{}, &giftbit.MockClient{})

		payload := giftCardSessionPayload("ab3xk9m")

		err := svc.HandleStripeNotification(context.Background(), payload, "t=1,v1=bogus")
		should.ErrorIs(t, err, ErrInvalidWebhookSignature)
	})

	t.Run("unrelated_event_acknowledged", func(t *testing.T) {
		var numOrders int
		orderRepo := &repository.MockOrder{
			FnCreateIfAbsent: func(ctx context.Context, dbi sqlx.QueryerContext, req *model.FulfillmentOrder) (*model.FulfillmentOrder, bool, error) {
				numOrders++
				return req, true, nil
			},
		}

		svc := testService(orderRepo, &repository.MockShare{}, &xstripe.MockClient{}, &giftbit.MockClient{})

		payload := []byte(`{"id": "evt_1", "type": "invoice.paid", "data": {"object": {}}}`)

		err := svc.HandleStripeNotification(context.Background(), payload, signWebhookPayload(payload, testWebhookSecret))
		must.NoError(t, err)
		should.Equal(t, 0, numOrders)
	})

	t.Run("fulfills_verified_session", func(t *testing.T) {
		orders := newInMemOrders()
		sh := testShare()

		var shareStatus string
		var custID, pmID string
		shareRepo := &repository.MockShare{
			FnGetByShortCode: func(ctx context.Context, dbi sqlx.QueryerContext, shortCode string) (*model.ShareRecord, error) {
				must.Equal(t, sh.ShortCode, shortCode)
				return sh, nil
			},
			FnSetGiftStatus: func(ctx context.Context, dbi sqlx.ExecerContext, id uuid.UUID, status string, link *string) error {
				shareStatus = status
				return nil
			},
			FnSetPaymentMethod: func(ctx context.Context, dbi sqlx.ExecerContext, id uuid.UUID, customerID, paymentMethodID string) error {
				custID, pmID = customerID, paymentMethodID
				return nil
			},
		}

		stripeCl := &xstripe.MockClient{
			FnSessionLineItems: func(ctx context.Context, id string) ([]*stripe.LineItem, error) {
				return []*stripe.LineItem{{AmountTotal: 3000}}, nil
			},
		}

		issueCl := &giftbit.MockClient{
			FnGetLinks: func(ctx context.Context, campaignUUID string) (*giftbit.LinksResponse, error) {
				return &giftbit.LinksResponse{
					Links: []giftbit.Link{{Shortlink: "https://gift.example.com/abc"}},
				}, nil
			},
		}

		svc := testService(orders.repo(), shareRepo, stripeCl, issueCl)

		payload := giftCardSessionPayload(sh.ShortCode)

		err := svc.HandleStripeNotification(context.Background(), payload, signWebhookPayload(payload, testWebhookSecret))
		must.NoError(t, err)

		// One order row keyed by the session id, share marked sent.
		must.NotNil(t, orders.rows["cs_test_1"])
		should.Equal(t, model.OrderStatusSent, orders.rows["cs_test_1"].Status)
		should.Equal(t, model.GiftStatusSent, shareStatus)

		// Payment method stored for the deferred redemption charge.
		should.Equal(t, "cus_1", custID)
		should.Equal(t, "pm_1", pmID)
	})

	t.Run("unpaid_line_items_skip_fulfillment", func(t *testing.T) {
		orders := newInMemOrders()
		sh := testShare()

		shareRepo := &repository.MockShare{
			FnGetByShortCode: func(ctx context.Context, dbi sqlx.QueryerContext, shortCode string) (*model.ShareRecord, error) {
				return sh, nil
			},
		}

		stripeCl := &xstripe.MockClient{
			FnSessionLineItems: func(ctx context.Context, id string) ([]*stripe.LineItem, error) {
				return []*stripe.LineItem{{AmountTotal: 100}}, nil
			},
		}

		svc := testService(orders.repo(), shareRepo, stripeCl, &giftbit.MockClient{})

		payload := giftCardSessionPayload(sh.ShortCode)

		err := svc.HandleStripeNotification(context.Background(), payload, signWebhookPayload(payload, testWebhookSecret))
		must.NoError(t, err)
		should.Empty(t, orders.rows)
	})

	t.Run("verification_error_fails_open", func(t *testing.T) {
		orders := newInMemOrders()
		sh := testShare()

		shareRepo := &repository.MockShare{
			FnGetByShortCode: func(ctx context.Context, dbi sqlx.QueryerContext, shortCode string) (*model.ShareRecord, error) {
				return sh, nil
			},
		}

		stripeCl := &xstripe.MockClient{
			FnSessionLineItems: func(ctx context.Context, id string) ([]*stripe.LineItem, error) {
				return nil, errors.New("connection reset")
			},
		}

		issueCl := &giftbit.MockClient{
			FnGetLinks: func(ctx context.Context, campaignUUID string) (*giftbit.LinksResponse, error) {
				return &giftbit.LinksResponse{
					Links: []giftbit.Link{{Shortlink: "https://gift.example.com/abc"}},
				}, nil
			},
		}

		svc := testService(orders.repo(), shareRepo, stripeCl, issueCl)

		payload := giftCardSessionPayload(sh.ShortCode)

		err := svc.HandleStripeNotification(context.Background(), payload, signWebhookPayload(payload, testWebhookSecret))
		must.NoError(t, err)

		// A failed listing must not block fulfillment of a paid session.
		must.NotNil(t, orders.rows["cs_test_1"])
		should.Equal(t, model.OrderStatusSent, orders.rows["cs_test_1"].Status)
	})

	t.Run("link_not_ready_single_attempt", func(t *testing.T) {
		orders := newInMemOrders()
		sh := testShare()

		var shareStatus string
		var shareLink *string
		shareRepo := &repository.MockShare{
			FnGetByShortCode: func(ctx context.Context, dbi sqlx.QueryerContext, shortCode string) (*model.ShareRecord, error) {
				return sh, nil
			},
			FnSetGiftStatus: func(ctx context.Context, dbi sqlx.ExecerContext, id uuid.UUID, status string, link *string) error {
				shareStatus, shareLink = status, link
				return nil
			},
		}

		stripeCl := &xstripe.MockClient{
			FnSessionLineItems: func(ctx context.Context, id string) ([]*stripe.LineItem, error) {
				return []*stripe.LineItem{{AmountTotal: 3000}}, nil
			},
		}

		var numPolls int
		issueCl := &giftbit.MockClient{
			FnCreateCampaign: func(ctx context.Context, req *giftbit.CreateCampaignRequest) (*giftbit.CreateCampaignResponse, error) {
				return &giftbit.CreateCampaignResponse{
					Campaign: giftbit.Campaign{UUID: "campaign-uuid-1"},
				}, nil
			},
			FnGetLinks: func(ctx context.Context, campaignUUID string) (*giftbit.LinksResponse, error) {
				numPolls++
				return &giftbit.LinksResponse{}, nil
			},
		}

		svc := testService(orders.repo(), shareRepo, stripeCl, issueCl)

		payload := giftCardSessionPayload(sh.ShortCode)

		err := svc.HandleStripeNotification(context.Background(), payload, signWebhookPayload(payload, testWebhookSecret))
		must.NoError(t, err)

		// The webhook path affords exactly one poll; the pending link is
		// resolved out-of-band, not a fulfillment failure.
		should.Equal(t, 1, numPolls)
		should.Equal(t, model.OrderStatusSent, orders.rows["cs_test_1"].Status)
		should.Equal(t, model.GiftStatusSent, shareStatus)
		should.Nil(t, shareLink)
	})
}

func TestService_CreateCheckoutSession(t *testing.T) {
	sh := testShare()

	shareRepo := &repository.MockShare{
		FnGetByShortCode: func(ctx context.Context, dbi sqlx.QueryerContext, shortCode string) (*model.ShareRecord, error) {
			return sh, nil
		},
	}

	var captured *stripe.CheckoutSessionParams
	stripeCl := &xstripe.MockClient{
		FnCreateSession: func(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
			captured = params
			return &stripe.CheckoutSession{ID: "cs_test_1"}, nil
		},
	}

	svc := testService(&repository.MockOrder{}, shareRepo, stripeCl, &giftbit.MockClient{})

	sess, err := svc.CreateCheckoutSession(context.Background(), sh.ShortCode)
	must.NoError(t, err)
	should.Equal(t, "cs_test_1", sess.ID)

	must.NotNil(t, captured)

	// Face value plus the add-on fee.
	should.Equal(t, int64(3000), *captured.LineItems[0].PriceData.UnitAmount)

	// The line item names the brand and the face value.
	should.Equal(t, "Gift card: starbucks 25.00", *captured.LineItems[0].PriceData.ProductData.Name)

	// The metadata the webhook path consumes.
	should.Equal(t, "true", captured.Metadata[mdKeyGiftCard])
	should.Equal(t, sh.ShortCode, captured.Metadata[mdKeyShortCode])

	// Payment method stored for off-session use at redemption.
	should.Equal(t, "off_session", *captured.PaymentIntentData.SetupFutureUsage)
}

func TestService_CreateShare(t *testing.T) {
	t.Run("card_refs_mutually_exclusive", func(t *testing.T) {
		svc := testService(&repository.MockOrder{}, &repository.MockShare{}, &xstripe.MockClient{}, &giftbit.MockClient{})

		cardID, customID := "card-1", "custom-1"

		_, err := svc.CreateShare(context.Background(), &CreateShareRequest{
			SenderName:    "Alex",
			RecipientName: "Sam",
			CardID:        &cardID,
			CustomCardID:  &customID,
		})
		should.ErrorIs(t, err, errCardRefConflict)
	})

	t.Run("allocates_short_code", func(t *testing.T) {
		var created *model.ShareRecord
		shareRepo := &repository.MockShare{
			FnCreate: func(ctx context.Context, dbi sqlx.QueryerContext, req *model.ShareRecord) (*model.ShareRecord, error) {
				created = req

				row := *req
				row.ID = uuid.NewV4()
				row.GiftStatus = model.GiftStatusPending

				return &row, nil
			},
		}

		svc := testService(&repository.MockOrder{}, shareRepo, &xstripe.MockClient{}, &giftbit.MockClient{})

		rec, err := svc.CreateShare(context.Background(), &CreateShareRequest{
			SenderName:         "Alex",
			RecipientName:      "Sam",
			GiftBrandCode:      "starbucks",
			GiftAmount:         2500,
			GiftRecipientEmail: "sam@example.com",
		})
		must.NoError(t, err)

		should.Len(t, created.ShortCode, 7)
		should.Equal(t, created.ShortCode, rec.ShortCode)
		should.Equal(t, model.GiftStatusPending, rec.GiftStatus)
	})
}
