// Package webauth drives the redirect-based login flow used in the browser
// context. Authorization, token acquisition, and verification are delegated
// to the federated identity library (go-oidc plus x/oauth2); this package
// only adapts the library's account and redirect surface into the session
// contract the rest of the application consumes.
package webauth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/franduoc2023/vinoteca/b2c"
	"github.com/franduoc2023/vinoteca/claims"
	"github.com/franduoc2023/vinoteca/internal/metrics"
	"github.com/franduoc2023/vinoteca/returnurl"
	"github.com/franduoc2023/vinoteca/tokenstore"
)

var baseLogAttr = slog.String("component", "web-auth")

func errAttr(err error) slog.Attr { return slog.String("err", err.Error()) }

const (
	stateCookieName = "__vinoteca_oauth_state"
	stateTTL        = 5 * time.Minute
)

// ErrNoAccount is returned by SilentToken when no account is cached; API
// call sites surface it as a failed request, which the UI treats as "not
// logged in".
var ErrNoAccount = fmt.Errorf("webauth: no account, user is not logged in")

// Config for the web flow.
type Config struct {
	// Issuer enables standard OIDC discovery and library-side ID token
	// verification. Exactly one of Issuer or Authority must be set.
	Issuer string
	// Authority configures explicit B2C-style endpoints for authorities
	// without a standard discovery document. In this mode the identity
	// token is decoded without local verification, as it arrives directly
	// from the token endpoint over TLS.
	Authority *b2c.Authority
	// ClientID of the registered application. Required.
	ClientID string
	// ClientSecret if the client is confidential. Optional; SPAs and
	// public clients leave it empty.
	ClientSecret string
	// RedirectURI registered for the web platform. Required.
	RedirectURI string
	// Scopes override the requested scope set in Issuer mode. Defaults to
	// openid, profile, email. Ignored in Authority mode, which always uses
	// the authority's scope set.
	Scopes []string
	// HomeURL is where a completed login lands when no return URL was
	// saved. Defaults to "/home".
	HomeURL string
	// Store receives the completed session. Required.
	Store *tokenstore.Store
	// Accounts is the library-side persisted account list. Defaults to an
	// in-memory cache.
	Accounts AccountCache
	// ReturnURLs persists the route the user wanted before login. Defaults
	// to an in-memory store; multi-instance deployments use the Redis one.
	ReturnURLs returnurl.Store
	// HTTPClient for provider traffic. Optional.
	HTTPClient *http.Client
	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Flow adapts the federated identity library to the session contract. It is
// constructed once at startup and is safe for concurrent handlers.
type Flow struct {
	cfg        Config
	o2cfg      oauth2.Config
	verifier   *oidc.IDTokenVerifier
	endSession string
	accountKey string
}

// New constructs the flow, performing issuer discovery when configured.
func New(ctx context.Context, cfg Config) (*Flow, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("webauth: client id is required")
	}
	if cfg.RedirectURI == "" {
		return nil, fmt.Errorf("webauth: redirect uri is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("webauth: token store is required")
	}
	if (cfg.Issuer == "") == (cfg.Authority == nil) {
		return nil, fmt.Errorf("webauth: exactly one of Issuer or Authority must be set")
	}
	if cfg.Accounts == nil {
		cfg.Accounts = NewMemAccountCache()
	}
	if cfg.ReturnURLs == nil {
		cfg.ReturnURLs = returnurl.NewMemStore()
	}
	if cfg.HomeURL == "" {
		cfg.HomeURL = "/home"
	}

	f := &Flow{cfg: cfg}

	switch {
	case cfg.Issuer != "":
		if cfg.HTTPClient != nil {
			ctx = oidc.ClientContext(ctx, cfg.HTTPClient)
		}
		provider, err := oidc.NewProvider(ctx, cfg.Issuer)
		if err != nil {
			return nil, fmt.Errorf("webauth: discovering issuer: %w", err)
		}
		scopes := cfg.Scopes
		if len(scopes) == 0 {
			scopes = []string{oidc.ScopeOpenID, "profile", "email"}
		}
		f.o2cfg = oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.RedirectURI,
			Scopes:       scopes,
		}
		f.verifier = provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})

		var extra struct {
			EndSessionEndpoint string `json:"end_session_endpoint"`
		}
		if err := provider.Claims(&extra); err == nil {
			f.endSession = extra.EndSessionEndpoint
		}
		f.accountKey = cfg.Issuer + ";" + cfg.ClientID

	default:
		a := *cfg.Authority
		a.ClientID = cfg.ClientID
		a.RedirectURI = cfg.RedirectURI
		if err := a.Validate(); err != nil {
			return nil, err
		}
		f.o2cfg = oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     a.Endpoint(),
			RedirectURL:  cfg.RedirectURI,
			Scopes:       a.Scopes(),
		}
		f.endSession = a.LogoutURL()
		f.accountKey = a.Domain + ";" + cfg.ClientID
	}

	return f, nil
}

// Login starts the redirect round trip. The attempted route may be passed as
// a return_to query parameter; it is persisted under the login's state value
// and consumed exactly once when the redirect returns. This handler
// navigates away from the application, so there is no synchronous result.
func (f *Flow) Login(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()

	f.cfg.Metrics.LoginAttempt("web")

	if returnTo := r.URL.Query().Get("return_to"); returnTo != "" {
		if err := f.cfg.ReturnURLs.Save(r.Context(), state, returnTo); err != nil {
			slog.ErrorContext(r.Context(), "saving return url", baseLogAttr, errAttr(err))
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(stateTTL.Seconds()),
	})

	http.Redirect(w, r, f.o2cfg.AuthCodeURL(state), http.StatusSeeOther)
}

// HandleRedirect consumes the provider's redirect back into the app: it
// validates state, exchanges the code, marks the returned account active,
// derives the profile, and navigates to the saved return URL exactly once.
func (f *Flow) HandleRedirect(w http.ResponseWriter, r *http.Request) {
	ctx := f.providerContext(r.Context())
	q := r.URL.Query()

	if perr := q.Get("error"); perr != "" {
		slog.ErrorContext(ctx, "provider returned error on redirect", baseLogAttr,
			slog.String("error", perr),
			slog.String("description", q.Get("error_description")))
		f.cfg.Metrics.LoginFailure("web", "provider_error")
		http.Redirect(w, r, f.cfg.HomeURL, http.StatusSeeOther)
		return
	}

	state := q.Get("state")
	cookie, err := r.Cookie(stateCookieName)
	if state == "" || err != nil || cookie.Value != state {
		slog.WarnContext(ctx, "redirect state did not match, ignoring", baseLogAttr)
		f.cfg.Metrics.LoginFailure("web", "state_mismatch")
		http.Error(w, "state did not match", http.StatusBadRequest)
		return
	}
	clearStateCookie(w)

	code := q.Get("code")
	if code == "" {
		f.cfg.Metrics.LoginFailure("web", "missing_code")
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}

	token, err := f.o2cfg.Exchange(ctx, code)
	if err != nil {
		slog.ErrorContext(ctx, "code exchange failed", baseLogAttr, errAttr(err))
		f.cfg.Metrics.TokenExchange("failure")
		f.cfg.Metrics.LoginFailure("web", "exchange")
		http.Error(w, "login failed", http.StatusBadGateway)
		return
	}
	f.cfg.Metrics.TokenExchange("success")

	rawID, _ := token.Extra("id_token").(string)
	profile, err := f.profileFromIDToken(ctx, rawID)
	if err != nil {
		slog.ErrorContext(ctx, "deriving profile from id token", baseLogAttr, errAttr(err))
		f.cfg.Metrics.LoginFailure("web", "id_token")
		http.Error(w, "login failed", http.StatusBadGateway)
		return
	}

	// Mark the returned account active, then publish the session in one
	// atomic replace.
	acct := &Account{Token: token, IDToken: rawID}
	if err := f.cfg.Accounts.Set(f.accountKey, acct); err != nil {
		slog.ErrorContext(ctx, "caching account", baseLogAttr, errAttr(err))
	}
	f.setSession(acct, profile)

	returnTo, err := f.cfg.ReturnURLs.Pop(r.Context(), state)
	if err != nil {
		slog.ErrorContext(ctx, "popping return url", baseLogAttr, errAttr(err))
	}
	if returnTo == "" {
		returnTo = f.cfg.HomeURL
	}

	slog.InfoContext(ctx, "login complete", baseLogAttr, slog.String("oid", profile.OID))
	http.Redirect(w, r, returnTo, http.StatusSeeOther)
}

// Resync reconciles local session state with the library's account list. It
// runs whenever no interaction is in progress: after construction, after a
// page load, and after logout elsewhere. With no cached account the local
// profile is dropped; with one, the profile is derived if missing.
func (f *Flow) Resync(ctx context.Context) {
	acct, err := f.cfg.Accounts.Get(f.accountKey)
	if err != nil {
		slog.ErrorContext(ctx, "reading account cache", baseLogAttr, errAttr(err))
		return
	}
	if acct == nil {
		if f.cfg.Store.Profile() != nil {
			f.cfg.Store.Clear()
		}
		return
	}
	if f.cfg.Store.Profile() == nil {
		f.deriveFromAccount(ctx, acct)
	}
}

func (f *Flow) deriveFromAccount(ctx context.Context, acct *Account) {
	profile, err := f.profileFromIDToken(ctx, acct.IDToken)
	if err != nil {
		slog.WarnContext(ctx, "cached account yielded no profile", baseLogAttr, errAttr(err))
		return
	}
	f.setSession(acct, profile)
}

func (f *Flow) setSession(acct *Account, profile claims.Profile) {
	f.cfg.Store.Set(tokenstore.Session{
		Profile:      &profile,
		AccessToken:  acct.AccessToken,
		IDToken:      acct.IDToken,
		RefreshToken: acct.RefreshToken,
	})
}

func (f *Flow) profileFromIDToken(ctx context.Context, rawID string) (claims.Profile, error) {
	if rawID == "" {
		return claims.Profile{}, fmt.Errorf("no id_token present")
	}
	if f.verifier != nil {
		idt, err := f.verifier.Verify(ctx, rawID)
		if err != nil {
			return claims.Profile{}, fmt.Errorf("verifying id_token: %w", err)
		}
		var cl map[string]any
		if err := idt.Claims(&cl); err != nil {
			return claims.Profile{}, fmt.Errorf("decoding id_token claims: %w", err)
		}
		p := claims.FromClaims(cl)
		if p.Empty() {
			return claims.Profile{}, fmt.Errorf("id_token yielded no profile")
		}
		return p, nil
	}
	p := claims.FromIDToken(rawID)
	if p.Empty() {
		return claims.Profile{}, fmt.Errorf("id_token yielded no profile")
	}
	return p, nil
}

// IsAuthenticated reports whether the library holds an account. If one
// exists but no profile has been derived yet (fresh page load before any
// resync), the profile is derived here so the very first check is correct.
func (f *Flow) IsAuthenticated() bool {
	acct, err := f.cfg.Accounts.Get(f.accountKey)
	if err != nil || acct == nil {
		return false
	}
	if f.cfg.Store.Profile() == nil {
		f.deriveFromAccount(context.Background(), acct)
	}
	return true
}

// Profile returns the current profile, or nil.
func (f *Flow) Profile() *claims.Profile {
	return f.cfg.Store.Profile()
}

// Logout clears local session state, then hands the browser to the
// provider's logout page.
func (f *Flow) Logout(w http.ResponseWriter, r *http.Request) {
	f.cfg.Store.Clear()
	if err := f.cfg.Accounts.Delete(f.accountKey); err != nil {
		slog.ErrorContext(r.Context(), "deleting cached account", baseLogAttr, errAttr(err))
	}

	target := f.endSession
	if target == "" {
		target = f.cfg.HomeURL
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// SilentToken acquires a bearer token without user interaction, refreshing
// through the library's token source when needed. When the authority issues
// no access token for the requested scopes, the identity token is used as
// the bearer instead.
func (f *Flow) SilentToken(ctx context.Context) (string, error) {
	acct, err := f.cfg.Accounts.Get(f.accountKey)
	if err != nil {
		return "", fmt.Errorf("webauth: reading account cache: %w", err)
	}
	if acct == nil {
		return "", ErrNoAccount
	}

	// Some authorities issue no access token when only identity scopes are
	// requested. There is nothing to refresh then; the identity token
	// serves as the bearer.
	if acct.AccessToken == "" && acct.RefreshToken == "" {
		if acct.IDToken != "" {
			return acct.IDToken, nil
		}
		return "", fmt.Errorf("webauth: account holds no usable token")
	}

	fresh, err := f.o2cfg.TokenSource(f.providerContext(ctx), acct.Token).Token()
	if err != nil {
		return "", fmt.Errorf("webauth: acquiring token silently: %w", err)
	}

	if fresh.AccessToken != acct.AccessToken {
		idToken := acct.IDToken
		if raw, ok := fresh.Extra("id_token").(string); ok && raw != "" {
			idToken = raw
		}
		refreshed := &Account{Token: fresh, IDToken: idToken}
		if err := f.cfg.Accounts.Set(f.accountKey, refreshed); err != nil {
			slog.ErrorContext(ctx, "caching refreshed account", baseLogAttr, errAttr(err))
		}
		if p := f.cfg.Store.Profile(); p != nil {
			f.setSession(refreshed, *p)
		}
		acct = refreshed
	}

	if fresh.AccessToken != "" {
		return fresh.AccessToken, nil
	}
	if acct.IDToken != "" {
		return acct.IDToken, nil
	}
	return "", fmt.Errorf("webauth: account holds no usable token")
}

// BearerToken makes the web flow satisfy the same token-provider contract
// as the native flow.
func (f *Flow) BearerToken(ctx context.Context) (string, error) {
	return f.SilentToken(ctx)
}

func (f *Flow) providerContext(ctx context.Context) context.Context {
	if f.cfg.HTTPClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, f.cfg.HTTPClient)
	}
	return ctx
}

func clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}
