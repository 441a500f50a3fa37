// Package tokenstore holds the in-memory authenticated session shared by
// both auth flows. The session is only ever replaced or cleared as a whole,
// so readers never observe tokens and profile that disagree.
package tokenstore

import (
	"sync"

	"github.com/franduoc2023/vinoteca/claims"
)

// Session is the logical authenticated state. A session is authenticated iff
// Profile is non-nil.
type Session struct {
	Profile      *claims.Profile
	AccessToken  string
	IDToken      string
	RefreshToken string
}

// Authenticated reports whether the session holds a usable identity.
func (s Session) Authenticated() bool {
	return s.Profile != nil && !s.Profile.Empty()
}

// Store is the single mutable shared resource of the auth subsystem. It is
// written by the active flow and read by everything else. Profile changes are
// published to subscribers as latest-value streams: a slow subscriber sees
// the newest profile, not every intermediate one.
type Store struct {
	mu      sync.RWMutex
	session Session
	subs    map[chan *claims.Profile]struct{}
}

func New() *Store {
	return &Store{subs: make(map[chan *claims.Profile]struct{})}
}

// Set replaces the full session atomically. Partial updates are not
// supported; callers build the complete session first.
func (s *Store) Set(sess Session) {
	s.mu.Lock()
	s.session = sess
	s.publishLocked(sess.Profile)
	s.mu.Unlock()
}

// Clear zeroes every field, including the refresh token, so logout leaves no
// recoverable residue in memory. Calling Clear on an empty store is a no-op
// beyond notifying subscribers.
func (s *Store) Clear() {
	s.Set(Session{})
}

// Current returns a copy of the session.
func (s *Store) Current() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// Profile returns the current profile, or nil when unauthenticated.
func (s *Store) Profile() *claims.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Profile
}

// Subscribe returns a channel receiving the profile after every session
// replace. The channel is conflated: if the subscriber lags, older values
// are dropped in favor of the newest.
func (s *Store) Subscribe() chan *claims.Profile {
	ch := make(chan *claims.Profile, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel previously returned by Subscribe.
func (s *Store) Unsubscribe(ch chan *claims.Profile) {
	s.mu.Lock()
	delete(s.subs, ch)
	s.mu.Unlock()
}

func (s *Store) publishLocked(p *claims.Profile) {
	for ch := range s.subs {
		select {
		case ch <- p:
		default:
			// drop the stale value, then deliver the latest
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- p:
			default:
			}
		}
	}
}
