package webauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/franduoc2023/vinoteca/internal/idptest"
	"github.com/franduoc2023/vinoteca/tokenstore"
)

const webRedirectURI = "http://app.example/auth/callback"

func newAuthorityFlow(t *testing.T, idp *idptest.Server) (*Flow, *tokenstore.Store) {
	t.Helper()
	store := tokenstore.New()
	authority := idp.Authority(webRedirectURI)
	f, err := New(context.Background(), Config{
		Authority:   &authority,
		ClientID:    idptest.ClientID,
		RedirectURI: webRedirectURI,
		Store:       store,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f, store
}

// startLogin drives Login and returns the state value plus the state cookie
// to be replayed on the callback request.
func startLogin(t *testing.T, f *Flow, returnTo string) (string, *http.Cookie) {
	t.Helper()

	target := "/login"
	if returnTo != "" {
		target += "?return_to=" + url.QueryEscape(returnTo)
	}
	rec := httptest.NewRecorder()
	f.Login(rec, httptest.NewRequest(http.MethodGet, target, nil))

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("Login status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parsing Location: %v", err)
	}
	state := loc.Query().Get("state")
	if state == "" {
		t.Fatal("authorize redirect carries no state")
	}

	for _, c := range rec.Result().Cookies() {
		if c.Name == stateCookieName {
			if c.Value != state {
				t.Fatalf("state cookie %q does not match state %q", c.Value, state)
			}
			return state, c
		}
	}
	t.Fatal("no state cookie set")
	return "", nil
}

func callback(f *Flow, rawQuery string, cookie *http.Cookie) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?"+rawQuery, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	f.HandleRedirect(rec, req)
	return rec
}

func TestRedirectRoundTrip(t *testing.T) {
	idp := idptest.New(t)
	f, store := newAuthorityFlow(t, idp)

	state, cookie := startLogin(t, f, "/wishlist")
	rec := callback(f, "code=test-code&state="+state, cookie)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("callback status = %d, want %d: %s", rec.Code, http.StatusSeeOther, rec.Body.String())
	}
	if got := rec.Header().Get("Location"); got != "/wishlist" {
		t.Errorf("redirected to %q, want /wishlist", got)
	}

	p := store.Profile()
	if p == nil || p.OID != "123" {
		t.Errorf("profile = %+v, want oid 123", p)
	}
	if !f.IsAuthenticated() {
		t.Error("IsAuthenticated = false after round trip")
	}
}

func TestRedirectDefaultsToHome(t *testing.T) {
	idp := idptest.New(t)
	f, _ := newAuthorityFlow(t, idp)

	state, cookie := startLogin(t, f, "")
	rec := callback(f, "code=test-code&state="+state, cookie)

	if got := rec.Header().Get("Location"); got != "/home" {
		t.Errorf("redirected to %q, want /home", got)
	}
}

func TestRedirectStateMismatch(t *testing.T) {
	idp := idptest.New(t)
	f, store := newAuthorityFlow(t, idp)

	_, cookie := startLogin(t, f, "")
	rec := callback(f, "code=test-code&state=forged", cookie)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if store.Current().Authenticated() {
		t.Error("store authenticated after state mismatch")
	}
	if n := len(idp.TokenRequests()); n != 0 {
		t.Errorf("token endpoint saw %d requests, want 0", n)
	}
}

func TestRedirectProviderError(t *testing.T) {
	idp := idptest.New(t)
	f, store := newAuthorityFlow(t, idp)

	state, cookie := startLogin(t, f, "/wishlist")
	rec := callback(f, "error=access_denied&error_description=cancelled&state="+state, cookie)

	if rec.Code != http.StatusSeeOther {
		t.Errorf("status = %d, want redirect", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "/home" {
		t.Errorf("redirected to %q, want /home", got)
	}
	if store.Current().Authenticated() {
		t.Error("store authenticated after provider error")
	}
	if n := len(idp.TokenRequests()); n != 0 {
		t.Errorf("token endpoint saw %d requests, want 0", n)
	}
}

func TestIssuerModeVerifiesIDToken(t *testing.T) {
	idp := idptest.New(t)
	store := tokenstore.New()
	f, err := New(context.Background(), Config{
		Issuer:      idp.URL,
		ClientID:    idptest.ClientID,
		RedirectURI: webRedirectURI,
		Store:       store,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	state, cookie := startLogin(t, f, "/wishlist")
	rec := callback(f, "code=test-code&state="+state, cookie)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("callback status = %d: %s", rec.Code, rec.Body.String())
	}
	if p := store.Profile(); p == nil || p.OID != "123" {
		t.Errorf("profile = %+v, want oid 123", p)
	}
}

func TestResync(t *testing.T) {
	idp := idptest.New(t)
	f, store := newAuthorityFlow(t, idp)
	ctx := context.Background()

	// Simulate a cached account from an earlier visit, before any local
	// profile exists.
	acct := &Account{
		Token: &oauth2.Token{
			AccessToken: "cached-at",
			Expiry:      time.Now().Add(time.Hour),
		},
		IDToken: idp.IDToken(),
	}
	if err := f.cfg.Accounts.Set(f.accountKey, acct); err != nil {
		t.Fatalf("Set: %v", err)
	}

	f.Resync(ctx)
	if p := store.Profile(); p == nil || p.OID != "123" {
		t.Errorf("profile after resync = %+v, want oid 123", p)
	}

	// Account disappears (logged out elsewhere): resync drops the profile.
	if err := f.cfg.Accounts.Delete(f.accountKey); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	f.Resync(ctx)
	if p := store.Profile(); p != nil {
		t.Errorf("profile after account removal = %+v, want nil", p)
	}
}

func TestIsAuthenticatedDerivesProfileOnFirstCheck(t *testing.T) {
	idp := idptest.New(t)
	f, store := newAuthorityFlow(t, idp)

	if f.IsAuthenticated() {
		t.Fatal("authenticated with empty account cache")
	}

	acct := &Account{
		Token:   &oauth2.Token{AccessToken: "cached-at", Expiry: time.Now().Add(time.Hour)},
		IDToken: idp.IDToken(),
	}
	if err := f.cfg.Accounts.Set(f.accountKey, acct); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if !f.IsAuthenticated() {
		t.Fatal("IsAuthenticated = false with cached account")
	}
	if p := store.Profile(); p == nil || p.OID != "123" {
		t.Errorf("first check did not derive profile, got %+v", p)
	}
}

func TestLogoutClearsEverything(t *testing.T) {
	idp := idptest.New(t)
	f, store := newAuthorityFlow(t, idp)

	state, cookie := startLogin(t, f, "")
	callback(f, "code=test-code&state="+state, cookie)
	if !f.IsAuthenticated() {
		t.Fatal("not authenticated before logout")
	}

	rec := httptest.NewRecorder()
	f.Logout(rec, httptest.NewRequest(http.MethodGet, "/logout", nil))

	if f.IsAuthenticated() {
		t.Error("IsAuthenticated = true immediately after logout")
	}
	if store.Current().Authenticated() {
		t.Error("store still authenticated after logout")
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parsing Location: %v", err)
	}
	if loc.Path == "" || loc.Path == "/auth/callback" {
		t.Errorf("logout redirected to %q", loc)
	}
}

func TestSilentToken(t *testing.T) {
	idp := idptest.New(t)
	f, _ := newAuthorityFlow(t, idp)
	ctx := context.Background()

	if _, err := f.SilentToken(ctx); !errors.Is(err, ErrNoAccount) {
		t.Errorf("SilentToken with no account = %v, want ErrNoAccount", err)
	}

	// A valid cached access token is returned without a refresh.
	acct := &Account{
		Token:   &oauth2.Token{AccessToken: "cached-at", Expiry: time.Now().Add(time.Hour)},
		IDToken: idp.IDToken(),
	}
	if err := f.cfg.Accounts.Set(f.accountKey, acct); err != nil {
		t.Fatalf("Set: %v", err)
	}
	tok, err := f.SilentToken(ctx)
	if err != nil {
		t.Fatalf("SilentToken: %v", err)
	}
	if tok != "cached-at" {
		t.Errorf("SilentToken = %q, want cached-at", tok)
	}
	if n := len(idp.TokenRequests()); n != 0 {
		t.Errorf("silent acquisition hit the token endpoint %d times", n)
	}

	// No access token issued: the identity token serves as the bearer.
	idOnly := &Account{Token: &oauth2.Token{}, IDToken: "raw-id-token"}
	if err := f.cfg.Accounts.Set(f.accountKey, idOnly); err != nil {
		t.Fatalf("Set: %v", err)
	}
	tok, err = f.SilentToken(ctx)
	if err != nil {
		t.Fatalf("SilentToken fallback: %v", err)
	}
	if tok != "raw-id-token" {
		t.Errorf("SilentToken = %q, want id token fallback", tok)
	}
}
