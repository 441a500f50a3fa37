package middleware

import (
	"context"
	"fmt"
	"net/http"
)

// TokenProvider yields the bearer token outbound API calls should present.
// Both flow variants satisfy it, the web one refreshing silently as needed.
type TokenProvider interface {
	BearerToken(ctx context.Context) (string, error)
}

// UserIDTransport stamps requests with the X-User-Id header from the current
// identity, for endpoints that personalize without requiring a token. Requests
// made while logged out go out without the header.
type UserIDTransport struct {
	// Base transport, http.DefaultTransport when nil.
	Base http.RoundTripper
	// Session supplies the identity.
	Session Session
}

func (t *UserIDTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if p := t.Session.Profile(); p != nil && p.OID != "" {
		req = req.Clone(req.Context())
		req.Header.Set("X-User-Id", p.OID)
	}
	return t.base().RoundTrip(req)
}

func (t *UserIDTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// BearerTransport attaches an Authorization header to every request. Token
// acquisition failure fails the request itself, which callers surface the
// same way as any other transport error.
type BearerTransport struct {
	// Base transport, http.DefaultTransport when nil.
	Base http.RoundTripper
	// Tokens supplies the bearer token. Required.
	Tokens TokenProvider
}

func (t *BearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	tok, err := t.Tokens.BearerToken(req.Context())
	if err != nil {
		return nil, fmt.Errorf("acquiring bearer token: %w", err)
	}
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+tok)
	return t.base().RoundTrip(req)
}

func (t *BearerTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}
