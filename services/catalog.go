package services

import (
	"context"
	"net/http"
)

// CatalogClient reads the public product catalog. No authentication.
type CatalogClient struct {
	baseURL string
	client  *http.Client
}

// NewCatalogClient builds a client for the catalog service at baseURL. A
// nil httpClient uses http.DefaultClient.
func NewCatalogClient(baseURL string, httpClient *http.Client) *CatalogClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &CatalogClient{baseURL: baseURL, client: httpClient}
}

func (c *CatalogClient) GetWines(ctx context.Context) ([]Wine, error) {
	var wines []Wine
	if err := doJSON(ctx, c.client, http.MethodGet, joinURL(c.baseURL, "/wines"), nil, &wines); err != nil {
		return nil, err
	}
	return wines, nil
}

func (c *CatalogClient) GetCheeses(ctx context.Context) ([]Cheese, error) {
	var cheeses []Cheese
	if err := doJSON(ctx, c.client, http.MethodGet, joinURL(c.baseURL, "/cheeses"), nil, &cheeses); err != nil {
		return nil, err
	}
	return cheeses, nil
}
