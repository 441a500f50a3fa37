// Package middleware protects application routes and decorates outbound API
// requests with the session's identity.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/franduoc2023/vinoteca/claims"
)

var baseLogAttr = slog.String("component", "middleware")

// Session is the slice of the session manager the guard needs.
type Session interface {
	IsAuthenticated() bool
	Profile() *claims.Profile
}

type profileCtxKey struct{}

// ProfileFromContext returns the identity the guard attached to an
// authenticated request.
func ProfileFromContext(ctx context.Context) (*claims.Profile, bool) {
	p, ok := ctx.Value(profileCtxKey{}).(*claims.Profile)
	return p, ok && p != nil
}

// Guard denies unauthenticated requests, bouncing them to the login entry
// point with the attempted route carried as return_to so a completed login
// lands back where the user was headed.
type Guard struct {
	// Session answers the authentication question. Required.
	Session Session
	// LoginURL is the login entry point. Defaults to "/login".
	LoginURL string
}

func (g *Guard) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Session.IsAuthenticated() {
			loginURL := g.LoginURL
			if loginURL == "" {
				loginURL = "/login"
			}
			if r.Method == http.MethodGet {
				loginURL += "?return_to=" + url.QueryEscape(r.URL.RequestURI())
			}
			slog.DebugContext(r.Context(), "Denying unauthenticated request",
				baseLogAttr, slog.String("path", r.URL.Path))
			http.Redirect(w, r, loginURL, http.StatusSeeOther)
			return
		}

		ctx := context.WithValue(r.Context(), profileCtxKey{}, g.Session.Profile())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
