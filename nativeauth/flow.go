// Package nativeauth drives the manual authorization-code flow used inside
// the native mobile shell, where no federated identity SDK is available. The
// flow opens the authorize page in a closable in-app browser and completes
// later, when the OS hands the app a deep-link callback URL.
package nativeauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/franduoc2023/vinoteca/b2c"
	"github.com/franduoc2023/vinoteca/claims"
	"github.com/franduoc2023/vinoteca/internal/httpx"
	"github.com/franduoc2023/vinoteca/internal/metrics"
	"github.com/franduoc2023/vinoteca/tokenstore"
)

var baseLogAttr = slog.String("component", "native-auth")

func errAttr(err error) slog.Attr { return slog.String("err", err.Error()) }

// State is the flow's position in the login state machine.
type State int

const (
	StateIdle State = iota
	StateAwaitingCallback
	StateExchangingCode
	StateAuthenticated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingCallback:
		return "awaiting-callback"
	case StateExchangingCode:
		return "exchanging-code"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Browser opens URLs in a closable in-app browser. The shell supplies the
// real implementation; tests supply fakes.
type Browser interface {
	Open(ctx context.Context, url string) error
	Close(ctx context.Context) error
}

// ProviderError is the error/error_description pair returned by the identity
// provider on the callback. It is recorded and logged, never shown to the
// user automatically.
type ProviderError struct {
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("provider returned %s", e.Code)
	}
	return fmt.Sprintf("provider returned %s: %s", e.Code, e.Description)
}

// ErrLoginTimeout is recorded when an opt-in login timeout fires before the
// callback arrives.
var ErrLoginTimeout = fmt.Errorf("nativeauth: login abandoned, no callback before timeout")

// Config for the native flow.
type Config struct {
	// Authority the flow authenticates against. Required.
	Authority b2c.Authority
	// Store receives the completed session. Required.
	Store *tokenstore.Store
	// Browser used for the authorize and logout pages. Required.
	Browser Browser
	// HTTPClient for the code exchange. Defaults to http.DefaultClient; a
	// client on the context overrides both.
	HTTPClient *http.Client
	// LoginTimeout, when positive, returns an abandoned login to idle after
	// this long in the awaiting-callback state. Zero waits indefinitely.
	LoginTimeout time.Duration
	// Metrics is optional.
	Metrics *metrics.Metrics
}

// authorizationRequest is one login attempt. It is discarded when its
// callback is consumed or a newer login supersedes it.
type authorizationRequest struct {
	state string
	url   string
}

// Flow is the native login state machine. All externally triggered entry
// points (Login, HandleAppURL, Logout) may be called from the shell's event
// loop; internal state is mutex-guarded so a stray goroutine cannot observe
// a half-applied transition.
type Flow struct {
	cfg Config

	mu      sync.Mutex
	state   State
	pending *authorizationRequest
	lastErr error
}

func New(cfg Config) (*Flow, error) {
	if err := cfg.Authority.Validate(); err != nil {
		return nil, err
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("nativeauth: token store is required")
	}
	if cfg.Browser == nil {
		return nil, fmt.Errorf("nativeauth: browser is required")
	}
	return &Flow{cfg: cfg}, nil
}

// Login builds a fresh authorization request and opens it in the in-app
// browser. It does not wait for a token; completion arrives later through
// HandleAppURL. Calling Login while a previous attempt is still pending
// simply issues a new request and orphans the old one.
func (f *Flow) Login(ctx context.Context) error {
	req := &authorizationRequest{state: uuid.NewString()}
	req.url = f.cfg.Authority.AuthorizeURL(req.state)

	f.cfg.Metrics.LoginAttempt("native")

	f.mu.Lock()
	f.pending = req
	f.state = StateAwaitingCallback
	f.lastErr = nil
	f.mu.Unlock()

	slog.InfoContext(ctx, "opening authorize page", baseLogAttr,
		slog.String("state", req.state))

	if err := f.cfg.Browser.Open(ctx, req.url); err != nil {
		f.fail(req, fmt.Errorf("opening browser: %w", err), "browser_open")
		return fmt.Errorf("nativeauth: opening browser: %w", err)
	}

	if f.cfg.LoginTimeout > 0 {
		time.AfterFunc(f.cfg.LoginTimeout, func() { f.expire(req) })
	}
	return nil
}

// expire returns the machine to idle if the given request is still the one
// being waited on.
func (f *Flow) expire(req *authorizationRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending != req || f.state != StateAwaitingCallback {
		return
	}
	f.pending = nil
	f.state = StateIdle
	f.lastErr = ErrLoginTimeout
	f.cfg.Metrics.LoginFailure("native", "timeout")
	slog.Warn("login abandoned, callback never arrived", baseLogAttr,
		slog.String("state", req.state))
}

// Run consumes app-URL events until the context is cancelled or the channel
// closes. The shell bridges its deep-link notifications onto the channel;
// cancelling the context is the unsubscribe.
func (f *Flow) Run(ctx context.Context, urls <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-urls:
			if !ok {
				return
			}
			f.HandleAppURL(ctx, raw)
		}
	}
}

// HandleAppURL processes one OS inter-app-return event. URLs that do not
// start with the configured redirect URI belong to someone else and are
// ignored without touching any state. Failures are recorded on the flow and
// logged; nothing is surfaced to the caller because the OS event has no
// useful place to deliver an error.
func (f *Flow) HandleAppURL(ctx context.Context, raw string) {
	if !strings.HasPrefix(raw, f.cfg.Authority.RedirectURI) {
		slog.WarnContext(ctx, "app url does not match redirect uri, ignoring",
			baseLogAttr, slog.String("url", raw))
		return
	}

	if err := f.cfg.Browser.Close(ctx); err != nil {
		slog.WarnContext(ctx, "closing in-app browser", baseLogAttr, errAttr(err))
	}

	u, err := url.Parse(raw)
	if err != nil {
		slog.WarnContext(ctx, "unparseable callback url, ignoring", baseLogAttr, errAttr(err))
		return
	}
	q := u.Query()

	f.mu.Lock()
	req := f.pending
	f.mu.Unlock()

	// A state value from a superseded or unknown attempt is a stray event.
	if cbState := q.Get("state"); cbState != "" && req != nil && cbState != req.state {
		slog.WarnContext(ctx, "callback state does not match pending login, ignoring",
			baseLogAttr, slog.String("state", cbState))
		return
	}

	if perr := q.Get("error"); perr != "" {
		f.fail(req, &ProviderError{Code: perr, Description: q.Get("error_description")}, "provider_error")
		return
	}

	code := q.Get("code")
	if code == "" {
		f.fail(req, fmt.Errorf("callback carried neither code nor error"), "missing_code")
		return
	}

	f.mu.Lock()
	f.state = StateExchangingCode
	f.mu.Unlock()

	sess, err := f.exchange(ctx, code)
	if err != nil {
		f.cfg.Metrics.TokenExchange("failure")
		f.fail(req, err, "exchange")
		return
	}
	f.cfg.Metrics.TokenExchange("success")

	// Single atomic replace: tokens and profile land together.
	f.cfg.Store.Set(sess)

	f.mu.Lock()
	f.state = StateAuthenticated
	f.pending = nil
	f.lastErr = nil
	f.mu.Unlock()

	slog.InfoContext(ctx, "login complete", baseLogAttr,
		slog.String("oid", sess.Profile.OID))
}

func (f *Flow) fail(req *authorizationRequest, err error, reason string) {
	f.cfg.Metrics.LoginFailure("native", reason)
	slog.Error("login failed", baseLogAttr, errAttr(err))

	f.mu.Lock()
	if req == nil || f.pending == req {
		f.pending = nil
		f.state = StateFailed
		f.lastErr = err
	}
	f.mu.Unlock()
}

// tokenResponse is the subset of the token endpoint's JSON the flow
// consumes.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
}

// exchange posts the authorization code to the token endpoint and builds
// the session. The token store is not touched on any failure path.
func (f *Flow) exchange(ctx context.Context, code string) (tokenstore.Session, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", f.cfg.Authority.ClientID)
	form.Set("code", code)
	form.Set("redirect_uri", f.cfg.Authority.RedirectURI)
	form.Set("scope", f.cfg.Authority.ScopeString())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		f.cfg.Authority.TokenURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return tokenstore.Session{}, fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := httpx.ClientFromContext(ctx, f.cfg.HTTPClient).Do(req)
	if err != nil {
		return tokenstore.Session{}, fmt.Errorf("posting code exchange: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return tokenstore.Session{}, fmt.Errorf("token endpoint returned %d: %s",
			res.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr tokenResponse
	if err := json.NewDecoder(res.Body).Decode(&tr); err != nil {
		return tokenstore.Session{}, fmt.Errorf("decoding token response: %w", err)
	}
	if tr.IDToken == "" {
		return tokenstore.Session{}, fmt.Errorf("token response carried no id_token")
	}

	profile := claims.FromIDToken(tr.IDToken)
	if profile.Empty() {
		return tokenstore.Session{}, fmt.Errorf("identity token yielded no profile")
	}

	return tokenstore.Session{
		Profile:      &profile,
		AccessToken:  tr.AccessToken,
		IDToken:      tr.IDToken,
		RefreshToken: tr.RefreshToken,
	}, nil
}

// Logout clears the local session, then opens the provider's logout page.
// The remote page is fire and forget; local state is already gone when it
// loads.
func (f *Flow) Logout(ctx context.Context) error {
	f.cfg.Store.Clear()

	f.mu.Lock()
	f.state = StateIdle
	f.pending = nil
	f.lastErr = nil
	f.mu.Unlock()

	if err := f.cfg.Browser.Open(ctx, f.cfg.Authority.LogoutURL()); err != nil {
		slog.WarnContext(ctx, "opening logout page", baseLogAttr, errAttr(err))
		return fmt.Errorf("nativeauth: opening logout page: %w", err)
	}
	return nil
}

// IsAuthenticated is a pure local check: true iff the store holds a usable
// profile. Token expiry is not validated against the server.
func (f *Flow) IsAuthenticated() bool {
	return f.cfg.Store.Current().Authenticated()
}

// Profile returns the current profile, or nil.
func (f *Flow) Profile() *claims.Profile {
	return f.cfg.Store.Profile()
}

// AccessToken returns the stored access token, if any.
func (f *Flow) AccessToken() string {
	return f.cfg.Store.Current().AccessToken
}

// BearerToken returns the token API calls should present: the access token
// when one was issued, falling back to the identity token.
func (f *Flow) BearerToken(context.Context) (string, error) {
	sess := f.cfg.Store.Current()
	if !sess.Authenticated() {
		return "", fmt.Errorf("nativeauth: not authenticated")
	}
	if sess.AccessToken != "" {
		return sess.AccessToken, nil
	}
	if sess.IDToken != "" {
		return sess.IDToken, nil
	}
	return "", fmt.Errorf("nativeauth: session holds no usable token")
}

// State returns the machine's current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// LastError returns the most recent terminal failure, if any.
func (f *Flow) LastError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}
