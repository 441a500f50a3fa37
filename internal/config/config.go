// Package config loads the environment the command binaries run with. A
// local .env file fills in anything the process environment does not
// provide; deployed containers rely on injected variables alone.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/franduoc2023/vinoteca/b2c"
)

// LoadEnv loads the .env file at path, falling back to ./.env. A missing
// file is not an error.
func LoadEnv(path string) {
	if path == "" {
		path = os.Getenv("VINOTECA_ENV_FILE")
	}
	if path != "" {
		if err := godotenv.Load(path); err == nil {
			return
		}
	}
	_ = godotenv.Load()
}

// Env is the shared configuration surface of the command binaries.
type Env struct {
	// Authority settings.
	B2CDomain   string
	B2CTenant   string
	B2CPolicy   string
	ClientID    string
	RedirectURI string
	APIScopes   []string

	// Backend collaborator base URLs.
	CatalogAPIBaseURL  string
	UserAPIBaseURL     string
	PairingsAPIBaseURL string

	// Listen address of the web shell.
	ListenAddr string
	// RedisAddr enables the redis return-URL store when non-empty.
	RedisAddr string
}

// FromEnv reads the configuration out of the process environment.
func FromEnv() (*Env, error) {
	e := &Env{
		B2CDomain:          os.Getenv("VINOTECA_B2C_DOMAIN"),
		B2CTenant:          os.Getenv("VINOTECA_B2C_TENANT"),
		B2CPolicy:          os.Getenv("VINOTECA_B2C_POLICY"),
		ClientID:           os.Getenv("VINOTECA_CLIENT_ID"),
		RedirectURI:        os.Getenv("VINOTECA_REDIRECT_URI"),
		CatalogAPIBaseURL:  getenvDefault("VINOTECA_CATALOG_API", "http://localhost:8081/api"),
		UserAPIBaseURL:     getenvDefault("VINOTECA_USER_API", "http://localhost:8082/api"),
		PairingsAPIBaseURL: getenvDefault("VINOTECA_PAIRINGS_API", "http://localhost:8083/api"),
		ListenAddr:         getenvDefault("VINOTECA_LISTEN_ADDR", "localhost:8100"),
		RedisAddr:          os.Getenv("VINOTECA_REDIS_ADDR"),
	}
	if scope := os.Getenv("VINOTECA_API_SCOPE"); scope != "" {
		e.APIScopes = []string{scope}
	}

	var missing []string
	for _, f := range []struct{ name, v string }{
		{"VINOTECA_B2C_DOMAIN", e.B2CDomain},
		{"VINOTECA_B2C_TENANT", e.B2CTenant},
		{"VINOTECA_B2C_POLICY", e.B2CPolicy},
		{"VINOTECA_CLIENT_ID", e.ClientID},
		{"VINOTECA_REDIRECT_URI", e.RedirectURI},
	} {
		if f.v == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("config: missing required environment: %v", missing)
	}
	return e, nil
}

// Authority assembles the configured identity authority.
func (e *Env) Authority() b2c.Authority {
	return b2c.Authority{
		Domain:      e.B2CDomain,
		Tenant:      e.B2CTenant,
		Policy:      e.B2CPolicy,
		ClientID:    e.ClientID,
		RedirectURI: e.RedirectURI,
		APIScopes:   e.APIScopes,
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
