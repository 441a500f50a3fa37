// Package b2c builds endpoint URLs for an Azure AD B2C style authority,
// where endpoints hang off a tenant and user-flow policy rather than being
// individually discovered.
package b2c

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

// baseScopes are always requested, in addition to the configured API scopes.
var baseScopes = []string{"openid", "profile", "email"}

// Authority describes one tenant + policy pair on a B2C login domain. The
// zero value is not usable; all fields except APIScopes are required.
type Authority struct {
	// Domain is the login host, e.g. "contoso.b2clogin.com". https is
	// assumed unless the value carries an explicit scheme, which local
	// authority stubs use.
	Domain string
	// Tenant is the tenant name, e.g. "contoso.onmicrosoft.com".
	Tenant string
	// Policy is the user-flow policy, e.g. "B2C_1_susi".
	Policy string
	// ClientID of the registered application.
	ClientID string
	// RedirectURI registered for the current platform. Native shells use a
	// custom URL scheme here; web uses an https URL.
	RedirectURI string
	// APIScopes are the backend API scopes requested alongside the standard
	// openid/profile/email set.
	APIScopes []string
}

func (a Authority) Validate() error {
	switch {
	case a.Domain == "":
		return fmt.Errorf("b2c: authority domain is required")
	case a.Tenant == "":
		return fmt.Errorf("b2c: tenant is required")
	case a.Policy == "":
		return fmt.Errorf("b2c: policy is required")
	case a.ClientID == "":
		return fmt.Errorf("b2c: client id is required")
	case a.RedirectURI == "":
		return fmt.Errorf("b2c: redirect uri is required")
	}
	return nil
}

func (a Authority) baseURL() string {
	host := a.Domain
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	return fmt.Sprintf("%s/%s/%s/oauth2/v2.0", host, a.Tenant, a.Policy)
}

// Scopes returns the full requested scope set: openid, profile, email, plus
// the configured API scopes.
func (a Authority) Scopes() []string {
	return append(append([]string{}, baseScopes...), a.APIScopes...)
}

// ScopeString is Scopes joined the way the authorize and token endpoints
// expect it.
func (a Authority) ScopeString() string {
	return strings.Join(a.Scopes(), " ")
}

// AuthorizeURL builds the manual authorization-code request URL with the
// given anti-replay state value.
func (a Authority) AuthorizeURL(state string) string {
	q := url.Values{}
	q.Set("client_id", a.ClientID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", a.RedirectURI)
	q.Set("scope", a.ScopeString())
	q.Set("response_mode", "query")
	q.Set("state", state)
	return a.baseURL() + "/authorize?" + q.Encode()
}

// TokenURL is the authorization-code exchange endpoint.
func (a Authority) TokenURL() string {
	return a.baseURL() + "/token"
}

// LogoutURL is the provider's session-end page. Opening it is fire and
// forget; local state is cleared before navigating there.
func (a Authority) LogoutURL() string {
	q := url.Values{}
	q.Set("post_logout_redirect_uri", a.RedirectURI)
	return a.baseURL() + "/logout?" + q.Encode()
}

// Endpoint returns the oauth2 endpoint pair for use with x/oauth2 based
// flows.
func (a Authority) Endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:  a.baseURL() + "/authorize",
		TokenURL: a.TokenURL(),
	}
}
