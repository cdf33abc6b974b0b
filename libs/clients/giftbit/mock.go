package giftbit

import "context"

// MockClient is a mock implementation of Client for tests.
type MockClient struct {
	FnCreateCampaign func(ctx context.Context, req *CreateCampaignRequest) (*CreateCampaignResponse, error)
	FnGetLinks       func(ctx context.Context, campaignUUID string) (*LinksResponse, error)
	FnListBrands     func(ctx context.Context) (*BrandsResponse, error)
}

func (c *MockClient) CreateCampaign(ctx context.Context, req *CreateCampaignRequest) (*CreateCampaignResponse, error) {
	if c.FnCreateCampaign == nil {
		return &CreateCampaignResponse{}, nil
	}
	return c.FnCreateCampaign(ctx, req)
}

func (c *MockClient) GetLinks(ctx context.Context, campaignUUID string) (*LinksResponse, error) {
	if c.FnGetLinks == nil {
		return &LinksResponse{}, nil
	}
	return c.FnGetLinks(ctx, campaignUUID)
}

func (c *MockClient) ListBrands(ctx context.Context) (*BrandsResponse, error) {
	if c.FnListBrands == nil {
		return &BrandsResponse{}, nil
	}
	return c.FnListBrands(ctx)
}
