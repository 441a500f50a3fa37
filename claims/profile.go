// Package claims maps identity-token claims to the profile shape the rest of
// the application consumes. Both auth flows use the same mapping so a user
// looks identical regardless of how they signed in.
package claims

import (
	"github.com/golang-jwt/jwt/v5"
)

// Profile is the read-only identity summary derived from a decoded identity
// token. It is always replaced wholesale from a fresh decode, never mutated
// field by field.
type Profile struct {
	// Name is given_name, falling back to name.
	Name string `json:"name,omitempty"`
	// Email is emails[0], falling back to email. B2C policies issue the
	// array form; plain OIDC providers issue the scalar.
	Email string `json:"email,omitempty"`
	// OID is the stable subject identifier (oid, falling back to sub). It
	// is the cross-service user id sent to backends.
	OID string `json:"oid,omitempty"`
}

// Empty reports whether no identity could be derived. Callers must treat an
// empty profile as "not authenticated".
func (p Profile) Empty() bool {
	return p == Profile{}
}

// FromIDToken decodes the payload segment of a compact identity token and
// maps its claims. The signature is not checked here: the token was received
// directly from the provider's token endpoint over TLS, and the native flow
// has no key material to verify against. A malformed token yields an empty
// profile rather than an error.
func FromIDToken(raw string) Profile {
	tok, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return Profile{}
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Profile{}
	}
	return FromClaims(mc)
}

// FromClaims maps an already-decoded claim set to a Profile. Used by the web
// flow, which receives claims from the federated identity library instead of
// a compact token.
func FromClaims(c map[string]any) Profile {
	return Profile{
		Name:  stringClaim(c, "given_name", "name"),
		Email: emailClaim(c),
		OID:   stringClaim(c, "oid", "sub"),
	}
}

func stringClaim(c map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := c[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// emailClaim prefers the B2C emails array over the scalar email claim.
func emailClaim(c map[string]any) string {
	if arr, ok := c["emails"].([]any); ok && len(arr) > 0 {
		if v, ok := arr[0].(string); ok && v != "" {
			return v
		}
	}
	if arr, ok := c["emails"].([]string); ok && len(arr) > 0 && arr[0] != "" {
		return arr[0]
	}
	return stringClaim(c, "email")
}
