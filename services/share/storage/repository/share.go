package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	uuid "github.com/satori/go.uuid"

	"github.com/everwish/everwish/services/share/model"
)

const shareCols = `id, short_code, sender_name, recipient_name, note, card_id,
	custom_card_id, voice_note_key, youtube_clip, gift_brand_code, gift_amount,
	gift_status, gift_link, gift_recipient_email, stripe_customer_id,
	stripe_payment_method_id, metadata, created_at, updated_at`

type Share struct{}

func NewShare() *Share { return &Share{} }

func (r *Share) GetByShortCode(ctx context.Context, dbi sqlx.QueryerContext, shortCode string) (*model.ShareRecord, error) {
	const q = `SELECT ` + shareCols + ` FROM share_records WHERE short_code = $1`

	result := &model.ShareRecord{}
	if err := sqlx.GetContext(ctx, dbi, result, q, shortCode); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrShareNotFound
		}

		return nil, err
	}

	return result, nil
}

func (r *Share) GetByID(ctx context.Context, dbi sqlx.QueryerContext, id uuid.UUID) (*model.ShareRecord, error) {
	const q = `SELECT ` + shareCols + ` FROM share_records WHERE id = $1`

	result := &model.ShareRecord{}
	if err := sqlx.GetContext(ctx, dbi, result, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrShareNotFound
		}

		return nil, err
	}

	return result, nil
}

func (r *Share) Create(ctx context.Context, dbi sqlx.QueryerContext, req *model.ShareRecord) (*model.ShareRecord, error) {
	const q = `INSERT INTO share_records (short_code, sender_name, recipient_name, note, card_id, custom_card_id, voice_note_key, youtube_clip, gift_brand_code, gift_amount, gift_status, gift_recipient_email, metadata)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	RETURNING ` + shareCols

	giftStatus := model.GiftStatusNone
	if req.HasGiftCardIntent() {
		giftStatus = model.GiftStatusPending
	}

	result := &model.ShareRecord{}
	err := dbi.QueryRowxContext(ctx, q,
		req.ShortCode, req.SenderName, req.RecipientName, req.Note,
		req.CardID, req.CustomCardID, req.VoiceNoteKey, req.YoutubeClip,
		req.GiftBrandCode, req.GiftAmount, giftStatus, req.GiftRecipientEmail,
		req.Metadata,
	).StructScan(result)
	if err != nil {
		return nil, err
	}

	return result, nil
}

// SetGiftStatus updates the gift status; a nil link leaves the stored link untouched.
func (r *Share) SetGiftStatus(ctx context.Context, dbi sqlx.ExecerContext, id uuid.UUID, status string, link *string) error {
	const q = `UPDATE share_records
	SET gift_status = $2,
		gift_link = COALESCE($3, gift_link),
		updated_at = CURRENT_TIMESTAMP
	WHERE id = $1`

	result, err := dbi.ExecContext(ctx, q, id, status, link)
	if err != nil {
		return err
	}

	numAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if numAffected == 0 {
		return model.ErrShareNotFound
	}

	return nil
}

func (r *Share) SetPaymentMethod(ctx context.Context, dbi sqlx.ExecerContext, id uuid.UUID, customerID, paymentMethodID string) error {
	const q = `UPDATE share_records
	SET stripe_customer_id = $2,
		stripe_payment_method_id = $3,
		updated_at = CURRENT_TIMESTAMP
	WHERE id = $1`

	result, err := dbi.ExecContext(ctx, q, id, customerID, paymentMethodID)
	if err != nil {
		return err
	}

	numAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if numAffected == 0 {
		return model.ErrShareNotFound
	}

	return nil
}

func (r *Share) ShortCodeExists(ctx context.Context, dbi sqlx.QueryerContext, shortCode string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM share_records WHERE short_code = $1)`

	var result bool
	if err := sqlx.GetContext(ctx, dbi, &result, q, shortCode); err != nil {
		return false, err
	}

	return result, nil
}
