// Package httpx resolves which *http.Client a component should use for
// provider traffic.
package httpx

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
)

// ClientFromContext returns the HTTP client to use. It first checks the
// context for an oauth2.HTTPClient override, then the explicit client if not
// nil, then falls back to the default client. Tests use the context override
// to point flows at fake authorities.
func ClientFromContext(ctx context.Context, explicit *http.Client) *http.Client {
	if hc, ok := ctx.Value(oauth2.HTTPClient).(*http.Client); ok {
		return hc
	}
	if explicit != nil {
		return explicit
	}
	return http.DefaultClient
}
