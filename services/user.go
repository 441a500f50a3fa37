package services

import (
	"context"
	"net/http"
	"net/url"

	"github.com/franduoc2023/vinoteca/middleware"
)

// UserClient talks to the user service. Every call is authenticated; token
// acquisition failure surfaces as the request's error, which callers treat
// as "not logged in".
type UserClient struct {
	baseURL string
	client  *http.Client
}

// NewUserClient builds a client for the user service at baseURL. All
// requests carry a bearer token from tokens.
func NewUserClient(baseURL string, tokens middleware.TokenProvider) *UserClient {
	return &UserClient{
		baseURL: baseURL,
		client:  &http.Client{Transport: &middleware.BearerTransport{Tokens: tokens}},
	}
}

func (c *UserClient) GetMyProfile(ctx context.Context) (*UserProfile, error) {
	var p UserProfile
	if err := doJSON(ctx, c.client, http.MethodGet, joinURL(c.baseURL, "/me"), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *UserClient) UpdateMyProfile(ctx context.Context, req UpdateUserProfileRequest) (*UserProfile, error) {
	var p UserProfile
	if err := doJSON(ctx, c.client, http.MethodPut, joinURL(c.baseURL, "/me"), req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *UserClient) GetMyPreferences(ctx context.Context) (*UserPreferences, error) {
	var p UserPreferences
	if err := doJSON(ctx, c.client, http.MethodGet, joinURL(c.baseURL, "/me/preferences"), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *UserClient) UpdateMyPreferences(ctx context.Context, req UpdateUserPreferencesRequest) (*UserPreferences, error) {
	var p UserPreferences
	if err := doJSON(ctx, c.client, http.MethodPut, joinURL(c.baseURL, "/me/preferences"), req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetMyWishlist never returns a nil slice for an empty wishlist.
func (c *UserClient) GetMyWishlist(ctx context.Context) ([]WishlistItem, error) {
	var items []WishlistItem
	if err := doJSON(ctx, c.client, http.MethodGet, joinURL(c.baseURL, "/me/wishlist"), nil, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []WishlistItem{}
	}
	return items, nil
}

func (c *UserClient) AddToWishlist(ctx context.Context, productID, productType string) (*WishlistItem, error) {
	if productType == "" {
		productType = ProductTypeWine
	}
	body := wishlistItemRequest{ProductID: productID, ProductType: productType}
	var item WishlistItem
	if err := doJSON(ctx, c.client, http.MethodPost, joinURL(c.baseURL, "/me/wishlist"), body, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *UserClient) RemoveFromWishlist(ctx context.Context, itemID string) error {
	path := "/me/wishlist/" + url.PathEscape(itemID)
	return doJSON(ctx, c.client, http.MethodDelete, joinURL(c.baseURL, path), nil, nil)
}
