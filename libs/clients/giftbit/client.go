// Package giftbit provides a client for the gift-card issuance provider.
//
// Campaign creation is accepted synchronously by the provider, but redemption
// shortlinks are generated asynchronously on its side; callers are expected
// to poll GetLinks until links become available.
package giftbit

import (
	"context"
	"errors"
	"net/url"
	"os"

	"github.com/google/go-querystring/query"

	"github.com/everwish/everwish/libs/clients"
)

// DeliveryShortlink requests an embeddable redemption shortlink instead of provider-sent email
const DeliveryShortlink = "SHORTLINK"

// Contact is a gift recipient
type Contact struct {
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname,omitempty"`
	Email     string `json:"email"`
}

// CreateCampaignRequest is the request structure for campaign creation
type CreateCampaignRequest struct {
	ID           string    `json:"id"`
	Message      string    `json:"message"`
	Subject      string    `json:"subject"`
	Contacts     []Contact `json:"contacts"`
	BrandCodes   []string  `json:"brand_codes"`
	PriceInCents int64     `json:"price_in_cents"`
	DeliveryType string    `json:"delivery_type"`
}

// Campaign describes a created campaign
type Campaign struct {
	UUID   string `json:"uuid"`
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateCampaignResponse is the response structure from campaign creation
type CreateCampaignResponse struct {
	Campaign Campaign `json:"campaign"`
}

// Link is a single redeemable shortlink produced by a campaign
type Link struct {
	Shortlink      string `json:"shortlink"`
	Status         string `json:"status"`
	RecipientEmail string `json:"recipient_email"`
}

// LinksResponse is the response structure from link retrieval
type LinksResponse struct {
	Links []Link `json:"links"`
}

// Brand is a gift-card brand available in the provider marketplace
type Brand struct {
	BrandCode       string `json:"brand_code"`
	Name            string `json:"name"`
	ImageURL        string `json:"image_url"`
	MinPriceInCents int64  `json:"min_price_in_cents"`
	MaxPriceInCents int64  `json:"max_price_in_cents"`
}

// BrandsResponse is the response structure from the marketplace brand listing
type BrandsResponse struct {
	Brands []Brand `json:"brands"`
}

// Client abstracts over the issuance provider api
type Client interface {
	CreateCampaign(ctx context.Context, req *CreateCampaignRequest) (*CreateCampaignResponse, error)
	GetLinks(ctx context.Context, campaignUUID string) (*LinksResponse, error)
	ListBrands(ctx context.Context) (*BrandsResponse, error)
}

// New returns a new HTTPClient, retrieving the base URL from the environment
func New() (Client, error) {
	serverEnvKey := "GIFTBIT_SERVER"
	serverURL := os.Getenv(serverEnvKey)
	if len(serverURL) == 0 {
		return nil, errors.New(serverEnvKey + " was empty")
	}
	client, err := clients.NewInstrumented("giftbit", serverURL, os.Getenv("GIFTBIT_TOKEN"))
	if err != nil {
		return nil, err
	}
	return &HTTPClient{client}, nil
}

// NewClient returns a new HTTPClient for the given server and token
func NewClient(serverURL, authToken string) (Client, error) {
	client, err := clients.NewInstrumented("giftbit", serverURL, authToken)
	if err != nil {
		return nil, err
	}
	return &HTTPClient{client}, nil
}

// HTTPClient wraps SimpleHTTPClient
type HTTPClient struct {
	client *clients.SimpleHTTPClient
}

// CreateCampaign submits a send campaign to the provider
func (hc *HTTPClient) CreateCampaign(ctx context.Context, campaignReq *CreateCampaignRequest) (*CreateCampaignResponse, error) {
	req, err := hc.client.NewRequest(ctx, "POST", "/campaign", campaignReq, nil)
	if err != nil {
		return nil, err
	}

	var resp CreateCampaignResponse
	if _, err := hc.client.Do(ctx, req, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

type linksQuery struct {
	CampaignUUID string `url:"campaign_uuid"`
}

// GenerateQueryString - implement the QueryStringBody interface
func (q *linksQuery) GenerateQueryString() (url.Values, error) {
	return query.Values(q)
}

// GetLinks retrieves the redemption shortlinks generated for a campaign
func (hc *HTTPClient) GetLinks(ctx context.Context, campaignUUID string) (*LinksResponse, error) {
	req, err := hc.client.NewRequest(ctx, "GET", "/links", nil, &linksQuery{CampaignUUID: campaignUUID})
	if err != nil {
		return nil, err
	}

	var resp LinksResponse
	if _, err := hc.client.Do(ctx, req, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// ListBrands retrieves the gift-card brands available in the marketplace
func (hc *HTTPClient) ListBrands(ctx context.Context) (*BrandsResponse, error) {
	req, err := hc.client.NewRequest(ctx, "GET", "/marketplace", nil, nil)
	if err != nil {
		return nil, err
	}

	var resp BrandsResponse
	if _, err := hc.client.Do(ctx, req, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}
