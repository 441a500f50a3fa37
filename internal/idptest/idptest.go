// Package idptest runs a fake identity authority for flow tests. It serves
// the B2C-shaped authorize/token/logout endpoints as well as standard OIDC
// discovery and JWKS, and signs issued identity tokens with a throwaway RSA
// key so library-side verification also works against it.
package idptest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/franduoc2023/vinoteca/b2c"
)

const (
	Tenant   = "contoso.onmicrosoft.com"
	Policy   = "B2C_1_susi"
	ClientID = "test-client"
)

// Server is a fake authority. Mutate the exported fields before driving a
// flow against it; they are read under the server's lock.
type Server struct {
	*httptest.Server

	mu sync.Mutex
	// Code is the single authorization code the token endpoint accepts.
	code string
	// claims are embedded in issued identity tokens, on top of the
	// iss/aud/exp set the server always writes.
	claims map[string]any
	// tokenStatus, when non-zero, forces the token endpoint to fail with
	// that HTTP status.
	tokenStatus int

	accessToken   string
	refreshToken  string
	omitIDToken   bool
	tokenRequests []url.Values
	logoutCalls   int

	key *rsa.PrivateKey
}

func New(t *testing.T) *Server {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating signing key: %v", err)
	}

	s := &Server{
		code:         "test-code",
		claims:       map[string]any{"name": "Alex", "email": "a@x.com", "oid": "123"},
		accessToken:  "test-access-token",
		refreshToken: "test-refresh-token",
		key:          key,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Authority returns a b2c.Authority pointed at this server.
func (s *Server) Authority(redirectURI string) b2c.Authority {
	return b2c.Authority{
		Domain:      s.URL,
		Tenant:      Tenant,
		Policy:      Policy,
		ClientID:    ClientID,
		RedirectURI: redirectURI,
	}
}

// SetClaims replaces the custom claims embedded in issued identity tokens.
func (s *Server) SetClaims(c map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims = c
}

// SetCode replaces the authorization code the token endpoint accepts.
func (s *Server) SetCode(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.code = code
}

// FailTokenEndpoint makes every exchange fail with the given status.
func (s *Server) FailTokenEndpoint(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenStatus = status
}

// OmitIDToken makes the token endpoint respond without an id_token.
func (s *Server) OmitIDToken() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.omitIDToken = true
}

// TokenRequests returns the form bodies received by the token endpoint.
func (s *Server) TokenRequests() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values{}, s.tokenRequests...)
}

// LogoutCalls reports how many times the logout endpoint was opened.
func (s *Server) LogoutCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logoutCalls
}

// IDToken signs an identity token carrying the server's current claims.
func (s *Server) IDToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idTokenLocked()
}

func (s *Server) idTokenLocked() string {
	mc := jwt.MapClaims{
		"iss": s.URL,
		"aud": ClientID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	for k, v := range s.claims {
		mc[k] = v
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, mc)
	tok.Header["kid"] = "idptest"
	signed, err := tok.SignedString(s.key)
	if err != nil {
		panic(fmt.Sprintf("idptest: signing token: %v", err))
	}
	return signed
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/.well-known/openid-configuration"):
		s.handleDiscovery(w)
	case strings.HasSuffix(r.URL.Path, "/keys"):
		s.handleJWKS(w)
	case strings.HasSuffix(r.URL.Path, "/authorize"):
		s.handleAuthorize(w, r)
	case strings.HasSuffix(r.URL.Path, "/token"):
		s.handleToken(w, r)
	case strings.HasSuffix(r.URL.Path, "/logout"):
		s.mu.Lock()
		s.logoutCalls++
		s.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleDiscovery(w http.ResponseWriter) {
	writeJSON(w, map[string]any{
		"issuer":                                s.URL,
		"authorization_endpoint":                s.URL + "/authorize",
		"token_endpoint":                        s.URL + "/token",
		"jwks_uri":                              s.URL + "/keys",
		"end_session_endpoint":                  s.URL + "/logout",
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"subject_types_supported":               []string{"public"},
		"response_types_supported":              []string{"code"},
	})
}

func (s *Server) handleJWKS(w http.ResponseWriter) {
	pub := &s.key.PublicKey
	writeJSON(w, map[string]any{
		"keys": []map[string]any{{
			"kty": "RSA",
			"alg": "RS256",
			"use": "sig",
			"kid": "idptest",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}

// handleAuthorize immediately redirects back with the accepted code, as if
// the user had signed in.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirect, err := url.Parse(q.Get("redirect_uri"))
	if err != nil || redirect.String() == "" {
		http.Error(w, "missing redirect_uri", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	code := s.code
	s.mu.Unlock()

	rq := redirect.Query()
	rq.Set("code", code)
	rq.Set("state", q.Get("state"))
	redirect.RawQuery = rq.Encode()
	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenRequests = append(s.tokenRequests, r.PostForm)

	if s.tokenStatus != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(s.tokenStatus)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "server_error"})
		return
	}
	if r.PostForm.Get("code") != s.code {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "invalid_grant"})
		return
	}

	resp := map[string]any{
		"token_type":    "Bearer",
		"expires_in":    3600,
		"access_token":  s.accessToken,
		"refresh_token": s.refreshToken,
	}
	if !s.omitIDToken {
		resp["id_token"] = s.idTokenLocked()
	}
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
