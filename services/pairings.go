package services

import (
	"context"
	"net/http"

	"github.com/franduoc2023/vinoteca/middleware"
)

// PairingsClient talks to the pairing assistant. Calls work logged out;
// when a session exists the user id rides along so the assistant can keep
// per-user history.
type PairingsClient struct {
	baseURL string
	client  *http.Client
}

// NewPairingsClient builds a client for the assistant at baseURL. session
// supplies the optional identity header.
func NewPairingsClient(baseURL string, session middleware.Session) *PairingsClient {
	return &PairingsClient{
		baseURL: baseURL,
		client:  &http.Client{Transport: &middleware.UserIDTransport{Session: session}},
	}
}

func (c *PairingsClient) Chat(ctx context.Context, req PairingRequest) (*PairingResponse, error) {
	var res PairingResponse
	if err := doJSON(ctx, c.client, http.MethodPost, joinURL(c.baseURL, "/pairings/chat"), req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetHistory returns the caller's stored chat turns. The backend answers
// an empty list for anonymous callers.
func (c *PairingsClient) GetHistory(ctx context.Context) ([]PairingHistoryItem, error) {
	var items []PairingHistoryItem
	if err := doJSON(ctx, c.client, http.MethodGet, joinURL(c.baseURL, "/pairings/history"), nil, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []PairingHistoryItem{}
	}
	return items, nil
}
