package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	uuid "github.com/satori/go.uuid"

	"github.com/everwish/everwish/services/share/model"
)

type MockOrder struct {
	FnGetByPaymentRef func(ctx context.Context, dbi sqlx.QueryerContext, paymentRef string) (*model.FulfillmentOrder, error)
	FnCreateIfAbsent  func(ctx context.Context, dbi sqlx.QueryerContext, req *model.FulfillmentOrder) (*model.FulfillmentOrder, bool, error)
	FnSetStatus       func(ctx context.Context, dbi sqlx.ExecerContext, id uuid.UUID, status string, campaignID, link, rawResponse *string) error
}

func (r *MockOrder) GetByPaymentRef(ctx context.Context, dbi sqlx.QueryerContext, paymentRef string) (*model.FulfillmentOrder, error) {
	if r.FnGetByPaymentRef == nil {
		return &model.FulfillmentOrder{PaymentRef: paymentRef}, nil
	}

	return r.FnGetByPaymentRef(ctx, dbi, paymentRef)
}

func (r *MockOrder) CreateIfAbsent(ctx context.Context, dbi sqlx.QueryerContext, req *model.FulfillmentOrder) (*model.FulfillmentOrder, bool, error) {
	if r.FnCreateIfAbsent == nil {
		result := *req
		result.ID = uuid.NewV4()
		result.Status = model.OrderStatusPending

		return &result, true, nil
	}

	return r.FnCreateIfAbsent(ctx, dbi, req)
}

func (r *MockOrder) SetStatus(ctx context.Context, dbi sqlx.ExecerContext, id uuid.UUID, status string, campaignID, link, rawResponse *string) error {
	if r.FnSetStatus == nil {
		return nil
	}

	return r.FnSetStatus(ctx, dbi, id, status, campaignID, link, rawResponse)
}

type MockShare struct {
	FnGetByShortCode   func(ctx context.Context, dbi sqlx.QueryerContext, shortCode string) (*model.ShareRecord, error)
	FnGetByID          func(ctx context.Context, dbi sqlx.QueryerContext, id uuid.UUID) (*model.ShareRecord, error)
	FnCreate           func(ctx context.Context, dbi sqlx.QueryerContext, req *model.ShareRecord) (*model.ShareRecord, error)
	FnSetGiftStatus    func(ctx context.Context, dbi sqlx.ExecerContext, id uuid.UUID, status string, link *string) error
	FnSetPaymentMethod func(ctx context.Context, dbi sqlx.ExecerContext, id uuid.UUID, customerID, paymentMethodID string) error
	FnShortCodeExists  func(ctx context.Context, dbi sqlx.QueryerContext, shortCode string) (bool, error)
}

func (r *MockShare) GetByShortCode(ctx context.Context, dbi sqlx.QueryerContext, shortCode string) (*model.ShareRecord, error) {
	if r.FnGetByShortCode == nil {
		return &model.ShareRecord{ID: uuid.NewV4(), ShortCode: shortCode}, nil
	}

	return r.FnGetByShortCode(ctx, dbi, shortCode)
}

func (r *MockShare) GetByID(ctx context.Context, dbi sqlx.QueryerContext, id uuid.UUID) (*model.ShareRecord, error) {
	if r.FnGetByID == nil {
		return &model.ShareRecord{ID: id}, nil
	}

	return r.FnGetByID(ctx, dbi, id)
}

func (r *MockShare) Create(ctx context.Context, dbi sqlx.QueryerContext, req *model.ShareRecord) (*model.ShareRecord, error) {
	if r.FnCreate == nil {
		result := *req
		result.ID = uuid.NewV4()

		return &result, nil
	}

	return r.FnCreate(ctx, dbi, req)
}

func (r *MockShare) SetGiftStatus(ctx context.Context, dbi sqlx.ExecerContext, id uuid.UUID, status string, link *string) error {
	if r.FnSetGiftStatus == nil {
		return nil
	}

	return r.FnSetGiftStatus(ctx, dbi, id, status, link)
}

func (r *MockShare) SetPaymentMethod(ctx context.Context, dbi sqlx.ExecerContext, id uuid.UUID, customerID, paymentMethodID string) error {
	if r.FnSetPaymentMethod == nil {
		return nil
	}

	return r.FnSetPaymentMethod(ctx, dbi, id, customerID, paymentMethodID)
}

func (r *MockShare) ShortCodeExists(ctx context.Context, dbi sqlx.QueryerContext, shortCode string) (bool, error) {
	if r.FnShortCodeExists == nil {
		return false, nil
	}

	return r.FnShortCodeExists(ctx, dbi, shortCode)
}
