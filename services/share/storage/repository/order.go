package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	uuid "github.com/satori/go.uuid"

	"github.com/everwish/everwish/services/share/model"
)

const orderCols = `id, payment_ref, share_id, brand_code, amount, currency,
	recipient_email, recipient_name, sender_name, status, campaign_id, gift_link,
	raw_response, created_at, updated_at`

type Order struct{}

func NewOrder() *Order { return &Order{} }

func (r *Order) GetByPaymentRef(ctx context.Context, dbi sqlx.QueryerContext, paymentRef string) (*model.FulfillmentOrder, error) {
	const q = `SELECT ` + orderCols + ` FROM fulfillment_orders WHERE payment_ref = $1`

	result := &model.FulfillmentOrder{}
	if err := sqlx.GetContext(ctx, dbi, result, q, paymentRef); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrOrderNotFound
		}

		return nil, err
	}

	return result, nil
}

// CreateIfAbsent inserts an order for req.PaymentRef unless one exists.
//
// The second return value reports whether this call created the row. On a
// payment_ref conflict the insert is a no-op and the existing row is
// returned, so concurrent attempts on one payment reference collapse onto
// the attempt that won the insert.
func (r *Order) CreateIfAbsent(ctx context.Context, dbi sqlx.QueryerContext, req *model.FulfillmentOrder) (*model.FulfillmentOrder, bool, error) {
	const q = `INSERT INTO fulfillment_orders (payment_ref, share_id, brand_code, amount, currency, recipient_email, recipient_name, sender_name, status)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (payment_ref) DO NOTHING
	RETURNING ` + orderCols

	result := &model.FulfillmentOrder{}
	err := dbi.QueryRowxContext(ctx, q,
		req.PaymentRef, req.ShareID, req.BrandCode, req.Amount, req.Currency,
		req.RecipientEmail, req.RecipientName, req.SenderName, model.OrderStatusPending,
	).StructScan(result)
	if err == nil {
		return result, true, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}

	existing, err := r.GetByPaymentRef(ctx, dbi, req.PaymentRef)
	if err != nil {
		return nil, false, err
	}

	return existing, false, nil
}

// SetStatus updates the order status together with any provider diagnostics.
// Nil campaignID, link and rawResponse leave the stored values untouched.
func (r *Order) SetStatus(ctx context.Context, dbi sqlx.ExecerContext, id uuid.UUID, status string, campaignID, link, rawResponse *string) error {
	const q = `UPDATE fulfillment_orders
	SET status = $2,
		campaign_id = COALESCE($3, campaign_id),
		gift_link = COALESCE($4, gift_link),
		raw_response = COALESCE($5, raw_response),
		updated_at = CURRENT_TIMESTAMP
	WHERE id = $1`

	result, err := dbi.ExecContext(ctx, q, id, status, campaignID, link, rawResponse)
	if err != nil {
		return err
	}

	numAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if numAffected == 0 {
		return model.ErrOrderNotFound
	}

	return nil
}
