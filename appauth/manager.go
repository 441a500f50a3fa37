// Package appauth is the session façade the rest of the application talks
// to. It picks the platform-appropriate flow once, at construction, and
// presents one login/logout/is-authenticated contract regardless of which
// flow is underneath.
package appauth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/franduoc2023/vinoteca/claims"
	"github.com/franduoc2023/vinoteca/nativeauth"
	"github.com/franduoc2023/vinoteca/platform"
	"github.com/franduoc2023/vinoteca/tokenstore"
	"github.com/franduoc2023/vinoteca/webauth"
)

// Interaction carries the platform-specific context a user-visible auth
// round trip needs. On the web it wraps the HTTP exchange being redirected;
// the native shell passes nil.
type Interaction struct {
	W http.ResponseWriter
	R *http.Request
}

// Flow is the capability set both flow variants provide. The two variants
// are selected once and composed, never subclassed.
type Flow interface {
	Login(ctx context.Context, in *Interaction) error
	Logout(ctx context.Context, in *Interaction) error
	IsAuthenticated() bool
	Profile() *claims.Profile
	BearerToken(ctx context.Context) (string, error)
}

// Config for the session manager.
type Config struct {
	// Platform pins the flow selection. Zero value means detect.
	Platform platform.Platform
	// Native flow implementation; required when the platform is native.
	Native *nativeauth.Flow
	// Web flow implementation; required when the platform is web.
	Web *webauth.Flow
	// Store is the shared token store both flows write into. Required.
	Store *tokenstore.Store
}

// Manager owns the logical session. It is created at application start,
// injected into every consumer, and lives for the process lifetime; the
// flow choice never changes after construction.
type Manager struct {
	platform platform.Platform
	flow     Flow
	store    *tokenstore.Store
}

func New(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("appauth: token store is required")
	}

	p := cfg.Platform
	if p == "" {
		p = platform.Detect()
	}

	var flow Flow
	switch {
	case p.IsNative():
		if cfg.Native == nil {
			return nil, fmt.Errorf("appauth: native platform but no native flow configured")
		}
		flow = nativeFlow{cfg.Native}
	default:
		if cfg.Web == nil {
			return nil, fmt.Errorf("appauth: web platform but no web flow configured")
		}
		flow = webFlow{cfg.Web}
	}

	return &Manager{platform: p, flow: flow, store: cfg.Store}, nil
}

// Platform returns the platform the manager was constructed for.
func (m *Manager) Platform() platform.Platform { return m.platform }

// Login starts the active flow's login round trip. Completion is observed
// later through the profile stream, not through this call.
func (m *Manager) Login(ctx context.Context, in *Interaction) error {
	return m.flow.Login(ctx, in)
}

// Logout tears the session down on both the local and provider side.
func (m *Manager) Logout(ctx context.Context, in *Interaction) error {
	return m.flow.Logout(ctx, in)
}

// IsAuthenticated never fails; authentication problems surface as false.
func (m *Manager) IsAuthenticated() bool {
	return m.flow.IsAuthenticated()
}

// Profile returns the current identity, or nil when logged out.
func (m *Manager) Profile() *claims.Profile {
	return m.flow.Profile()
}

// BearerToken returns the token API calls should present.
func (m *Manager) BearerToken(ctx context.Context) (string, error) {
	return m.flow.BearerToken(ctx)
}

// Subscribe returns a conflated stream of profile changes. Unsubscribe on
// teardown.
func (m *Manager) Subscribe() chan *claims.Profile {
	return m.store.Subscribe()
}

// Unsubscribe releases a channel from Subscribe.
func (m *Manager) Unsubscribe(ch chan *claims.Profile) {
	m.store.Unsubscribe(ch)
}

// nativeFlow adapts the deep-link driven flow to the façade contract. The
// interaction argument is unused: the native round trip runs through the
// in-app browser, not an HTTP exchange.
type nativeFlow struct {
	*nativeauth.Flow
}

func (f nativeFlow) Login(ctx context.Context, _ *Interaction) error {
	return f.Flow.Login(ctx)
}

func (f nativeFlow) Logout(ctx context.Context, _ *Interaction) error {
	return f.Flow.Logout(ctx)
}

// webFlow adapts the redirect flow, which needs the HTTP exchange being
// navigated away from.
type webFlow struct {
	*webauth.Flow
}

func (f webFlow) Login(_ context.Context, in *Interaction) error {
	if in == nil || in.W == nil || in.R == nil {
		return fmt.Errorf("appauth: web login requires the HTTP interaction")
	}
	f.Flow.Login(in.W, in.R)
	return nil
}

func (f webFlow) Logout(_ context.Context, in *Interaction) error {
	if in == nil || in.W == nil || in.R == nil {
		return fmt.Errorf("appauth: web logout requires the HTTP interaction")
	}
	f.Flow.Logout(in.W, in.R)
	return nil
}
