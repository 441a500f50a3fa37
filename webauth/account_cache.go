package webauth

import (
	"sync"

	"golang.org/x/oauth2"
)

// Account is one cached login with an authority: the oauth2 token plus the
// raw identity token, which oauth2.Token does not carry through
// serialization on its own.
type Account struct {
	*oauth2.Token
	IDToken string `json:"id_token,omitempty"`
}

// AccountCache is the persisted account list of the identity library. The
// application supports a single active account per authority/client pair,
// so implementations hold at most one Account per key.
type AccountCache interface {
	// Get returns the cached account, or nil when none is cached.
	Get(key string) (*Account, error)
	// Set stores the account, replacing any previous one.
	Set(key string, acct *Account) error
	// Delete removes the cached account. Deleting a missing key is not an
	// error.
	Delete(key string) error
}

// MemAccountCache keeps accounts in process memory. Sessions do not survive
// a restart with this cache; deployments wanting durable web sessions plug
// in their own implementation.
type MemAccountCache struct {
	mu sync.Mutex
	m  map[string]*Account
}

var _ AccountCache = (*MemAccountCache)(nil)

func NewMemAccountCache() *MemAccountCache {
	return &MemAccountCache{m: make(map[string]*Account)}
}

func (c *MemAccountCache) Get(key string) (*Account, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m[key], nil
}

func (c *MemAccountCache) Set(key string, acct *Account) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = acct
	return nil
}

func (c *MemAccountCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
	return nil
}
