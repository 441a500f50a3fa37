package nativeauth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/franduoc2023/vinoteca/claims"
	"github.com/franduoc2023/vinoteca/internal/idptest"
	"github.com/franduoc2023/vinoteca/tokenstore"
)

const redirectURI = "msauth://com.contoso.app/callback"

type fakeBrowser struct {
	mu     sync.Mutex
	opened []string
	closed int
}

func (b *fakeBrowser) Open(_ context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened = append(b.opened, url)
	return nil
}

func (b *fakeBrowser) Close(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed++
	return nil
}

func (b *fakeBrowser) lastOpened(t *testing.T) string {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.opened) == 0 {
		t.Fatal("browser was never opened")
	}
	return b.opened[len(b.opened)-1]
}

// loginState extracts the state parameter from the last opened authorize URL.
func loginState(t *testing.T, b *fakeBrowser) string {
	t.Helper()
	u, err := url.Parse(b.lastOpened(t))
	if err != nil {
		t.Fatalf("parsing authorize URL: %v", err)
	}
	st := u.Query().Get("state")
	if st == "" {
		t.Fatal("authorize URL carries no state")
	}
	return st
}

func newTestFlow(t *testing.T, idp *idptest.Server) (*Flow, *fakeBrowser, *tokenstore.Store) {
	t.Helper()
	browser := &fakeBrowser{}
	store := tokenstore.New()
	f, err := New(Config{
		Authority: idp.Authority(redirectURI),
		Store:     store,
		Browser:   browser,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f, browser, store
}

func TestLoginOpensAuthorizeURL(t *testing.T) {
	idp := idptest.New(t)
	f, browser, _ := newTestFlow(t, idp)

	if err := f.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got, want := f.State(), StateAwaitingCallback; got != want {
		t.Errorf("state = %v, want %v", got, want)
	}

	u, err := url.Parse(browser.lastOpened(t))
	if err != nil {
		t.Fatalf("parsing opened URL: %v", err)
	}
	q := u.Query()
	for param, want := range map[string]string{
		"response_type": "code",
		"response_mode": "query",
		"client_id":     idptest.ClientID,
		"redirect_uri":  redirectURI,
	} {
		if got := q.Get(param); got != want {
			t.Errorf("%s = %q, want %q", param, got, want)
		}
	}
	if q.Get("state") == "" {
		t.Error("authorize URL carries no state")
	}
}

func TestRoundTrip(t *testing.T) {
	idp := idptest.New(t)
	f, browser, store := newTestFlow(t, idp)
	ctx := context.Background()

	if err := f.Login(ctx); err != nil {
		t.Fatalf("Login: %v", err)
	}

	f.HandleAppURL(ctx, redirectURI+"?code=test-code&state="+loginState(t, browser))

	if got, want := f.State(), StateAuthenticated; got != want {
		t.Fatalf("state = %v, want %v (err: %v)", got, want, f.LastError())
	}
	if browser.closed != 1 {
		t.Errorf("browser closed %d times, want 1", browser.closed)
	}

	sess := store.Current()
	if sess.Profile == nil || sess.Profile.OID != "123" {
		t.Errorf("profile = %+v, want oid 123", sess.Profile)
	}
	if sess.AccessToken != "test-access-token" {
		t.Errorf("access token = %q", sess.AccessToken)
	}
	if sess.RefreshToken != "test-refresh-token" {
		t.Errorf("refresh token = %q", sess.RefreshToken)
	}
	if !f.IsAuthenticated() {
		t.Error("IsAuthenticated = false after successful round trip")
	}

	// The exchange must be form encoded with the full parameter set.
	reqs := idp.TokenRequests()
	if len(reqs) != 1 {
		t.Fatalf("token endpoint saw %d requests, want 1", len(reqs))
	}
	form := reqs[0]
	if got := form.Get("grant_type"); got != "authorization_code" {
		t.Errorf("grant_type = %q", got)
	}
	if got := form.Get("redirect_uri"); got != redirectURI {
		t.Errorf("redirect_uri = %q", got)
	}
	if got := form.Get("scope"); got != "openid profile email" {
		t.Errorf("scope = %q", got)
	}
}

func TestCallbackPrefixMismatchIgnored(t *testing.T) {
	idp := idptest.New(t)
	f, _, store := newTestFlow(t, idp)
	ctx := context.Background()

	if err := f.Login(ctx); err != nil {
		t.Fatalf("Login: %v", err)
	}
	before := store.Current()

	f.HandleAppURL(ctx, "someotherapp://callback?code=test-code")

	if diff := cmp.Diff(before, store.Current()); diff != "" {
		t.Errorf("store mutated by foreign URL (-before +after):\n%s", diff)
	}
	if got, want := f.State(), StateAwaitingCallback; got != want {
		t.Errorf("state = %v, want %v", got, want)
	}
	if n := len(idp.TokenRequests()); n != 0 {
		t.Errorf("token endpoint saw %d requests, want 0", n)
	}
}

func TestCallbackProviderError(t *testing.T) {
	idp := idptest.New(t)
	f, browser, store := newTestFlow(t, idp)
	ctx := context.Background()

	if err := f.Login(ctx); err != nil {
		t.Fatalf("Login: %v", err)
	}

	f.HandleAppURL(ctx, redirectURI+"?error=access_denied&error_description=user+cancelled&state="+loginState(t, browser))

	if got, want := f.State(), StateFailed; got != want {
		t.Errorf("state = %v, want %v", got, want)
	}
	var perr *ProviderError
	if !errors.As(f.LastError(), &perr) || perr.Code != "access_denied" {
		t.Errorf("LastError = %v, want ProviderError access_denied", f.LastError())
	}
	if n := len(idp.TokenRequests()); n != 0 {
		t.Errorf("token endpoint saw %d requests, want 0", n)
	}
	if store.Current().Authenticated() {
		t.Error("store authenticated after provider error")
	}
}

func TestCallbackMissingCode(t *testing.T) {
	idp := idptest.New(t)
	f, browser, _ := newTestFlow(t, idp)
	ctx := context.Background()

	if err := f.Login(ctx); err != nil {
		t.Fatalf("Login: %v", err)
	}
	f.HandleAppURL(ctx, redirectURI+"?state="+loginState(t, browser))

	if got, want := f.State(), StateFailed; got != want {
		t.Errorf("state = %v, want %v", got, want)
	}
}

func TestExchangeFailureLeavesStoreUntouched(t *testing.T) {
	idp := idptest.New(t)
	idp.FailTokenEndpoint(http.StatusInternalServerError)
	f, browser, store := newTestFlow(t, idp)
	ctx := context.Background()

	if err := f.Login(ctx); err != nil {
		t.Fatalf("Login: %v", err)
	}
	f.HandleAppURL(ctx, redirectURI+"?code=test-code&state="+loginState(t, browser))

	if got, want := f.State(), StateFailed; got != want {
		t.Errorf("state = %v, want %v", got, want)
	}
	if diff := cmp.Diff(tokenstore.Session{}, store.Current()); diff != "" {
		t.Errorf("store mutated by failed exchange (-want +got):\n%s", diff)
	}
}

func TestMissingIDTokenFails(t *testing.T) {
	idp := idptest.New(t)
	idp.OmitIDToken()
	f, browser, store := newTestFlow(t, idp)
	ctx := context.Background()

	if err := f.Login(ctx); err != nil {
		t.Fatalf("Login: %v", err)
	}
	f.HandleAppURL(ctx, redirectURI+"?code=test-code&state="+loginState(t, browser))

	if got, want := f.State(), StateFailed; got != want {
		t.Errorf("state = %v, want %v", got, want)
	}
	if store.Current().Authenticated() {
		t.Error("store authenticated without id_token")
	}
}

func TestStaleStateIgnored(t *testing.T) {
	idp := idptest.New(t)
	f, browser, _ := newTestFlow(t, idp)
	ctx := context.Background()

	if err := f.Login(ctx); err != nil {
		t.Fatalf("first Login: %v", err)
	}
	orphaned := loginState(t, browser)

	// A second login supersedes the first request.
	if err := f.Login(ctx); err != nil {
		t.Fatalf("second Login: %v", err)
	}
	current := loginState(t, browser)
	if orphaned == current {
		t.Fatal("second login reused the state value")
	}

	f.HandleAppURL(ctx, redirectURI+"?code=test-code&state="+orphaned)
	if got, want := f.State(), StateAwaitingCallback; got != want {
		t.Fatalf("state after stale callback = %v, want %v", got, want)
	}

	f.HandleAppURL(ctx, redirectURI+"?code=test-code&state="+current)
	if got, want := f.State(), StateAuthenticated; got != want {
		t.Errorf("state after current callback = %v, want %v (err: %v)", got, want, f.LastError())
	}
}

func TestLogout(t *testing.T) {
	idp := idptest.New(t)
	f, browser, store := newTestFlow(t, idp)
	ctx := context.Background()

	if err := f.Login(ctx); err != nil {
		t.Fatalf("Login: %v", err)
	}
	f.HandleAppURL(ctx, redirectURI+"?code=test-code&state="+loginState(t, browser))
	if !f.IsAuthenticated() {
		t.Fatal("not authenticated before logout")
	}

	if err := f.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if f.IsAuthenticated() {
		t.Error("IsAuthenticated = true immediately after logout")
	}
	if diff := cmp.Diff(tokenstore.Session{}, store.Current()); diff != "" {
		t.Errorf("logout left residue (-want +got):\n%s", diff)
	}

	u, err := url.Parse(browser.lastOpened(t))
	if err != nil {
		t.Fatalf("parsing logout URL: %v", err)
	}
	if !strings.HasSuffix(u.Path, "/logout") {
		t.Errorf("last opened URL %q is not the logout page", u)
	}
}

func TestLoginTimeout(t *testing.T) {
	idp := idptest.New(t)
	browser := &fakeBrowser{}
	store := tokenstore.New()
	f, err := New(Config{
		Authority:    idp.Authority(redirectURI),
		Store:        store,
		Browser:      browser,
		LoginTimeout: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := f.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for f.State() != StateIdle {
		if time.Now().After(deadline) {
			t.Fatalf("state = %v, want idle after timeout", f.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !errors.Is(f.LastError(), ErrLoginTimeout) {
		t.Errorf("LastError = %v, want ErrLoginTimeout", f.LastError())
	}
}

func TestBearerTokenFallback(t *testing.T) {
	idp := idptest.New(t)
	f, _, store := newTestFlow(t, idp)
	ctx := context.Background()

	if _, err := f.BearerToken(ctx); err == nil {
		t.Error("BearerToken succeeded while unauthenticated")
	}

	store.Set(tokenstore.Session{
		Profile:     &claims.Profile{OID: "123"},
		AccessToken: "at", IDToken: "it",
	})
	if tok, _ := f.BearerToken(ctx); tok != "at" {
		t.Errorf("BearerToken = %q, want access token", tok)
	}

	store.Set(tokenstore.Session{Profile: &claims.Profile{OID: "123"}, IDToken: "it"})
	if tok, _ := f.BearerToken(ctx); tok != "it" {
		t.Errorf("BearerToken = %q, want id token fallback", tok)
	}
}
