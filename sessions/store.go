// Package sessions holds the client-side belief about who is logged in.
//
// Store is the only owner of the session. Other components read it through
// getters and change it only through SetAuth, SetTokens, ApplyRefresh,
// Logout and UpdateUser. Durable storage is written by the Store and nobody else.
package sessions

import (
	"encoding/json"
	"sync"

	"github.com/jrsteele09/budget-session/storage"
	"github.com/jrsteele09/budget-session/users"
	"github.com/rs/zerolog/log"
)

// Snapshot is a consistent copy of the session at one point in time.
type Snapshot struct {
	User            *users.User
	AccessToken     string
	RefreshToken    string
	IsAuthenticated bool
	Verified        bool
}

// Store is the single owned session store.
type Store struct {
	mu            sync.RWMutex
	durable       storage.Durable
	user          *users.User
	accessToken   string
	refreshToken  string
	authenticated bool
	verified      bool
}

// New creates an empty store persisting into durable.
func New(durable storage.Durable) *Store {
	return &Store{durable: durable}
}

// Rehydrate loads the persisted session. A cached access token makes the
// session provisionally authenticated, but it stays unverified until a live
// round-trip confirms it.
func (s *Store) Rehydrate() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.user = nil
	s.accessToken = ""
	s.refreshToken = ""
	s.verified = false

	if raw, ok := s.read(storage.KeyUser); ok {
		var u users.User
		if err := json.Unmarshal([]byte(raw), &u); err != nil || u.ID == "" {
			log.Warn().Err(err).Msg("Discarding unreadable persisted user")
		} else {
			s.user = &u
		}
	}
	if v, ok := s.read(storage.KeyRefreshToken); ok {
		s.refreshToken = v
	}
	if v, ok := s.read(storage.KeyAccessToken); ok {
		s.accessToken = v
	}
	s.recompute()

	log.Debug().
		Bool("user", s.user != nil).
		Bool("refresh_token", s.refreshToken != "").
		Bool("access_token", s.accessToken != "").
		Msg("Session rehydrated")
	return s.snapshot()
}

// SetAuth overwrites the whole session after a successful login, signup or
// OAuth completion.
func (s *Store) SetAuth(user users.User, accessToken, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.user = &user
	s.accessToken = accessToken
	s.refreshToken = refreshToken
	s.verified = true
	s.recompute()
	s.persist()
}

// SetTokens stores the result of a refresh cycle. The refresh token is only
// replaced when refreshToken is non-empty, i.e. when the server rotated it.
func (s *Store) SetTokens(accessToken, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accessToken = accessToken
	if refreshToken != "" {
		s.refreshToken = refreshToken
	}
	s.verified = true
	s.recompute()
	s.persist()
}

// ApplyRefresh stores the result of a refresh that was made with used. It
// is dropped, and false returned, when the refresh token changed meanwhile,
// which includes a Logout or a new login while the refresh was in flight.
func (s *Store) ApplyRefresh(used, accessToken, refreshToken string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if used == "" || s.refreshToken != used {
		return false
	}
	s.accessToken = accessToken
	if refreshToken != "" {
		s.refreshToken = refreshToken
	}
	s.verified = true
	s.recompute()
	s.persist()
	return true
}

// Logout clears memory and durable storage in one critical section. It is
// safe to call when already logged out.
func (s *Store) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasAuthenticated := s.authenticated
	s.user = nil
	s.accessToken = ""
	s.refreshToken = ""
	s.verified = false
	s.recompute()

	if err := s.durable.Remove(storage.SessionKeys...); err != nil {
		log.Err(err).Msg("Failed to remove persisted session")
	}
	if wasAuthenticated {
		log.Info().Msg("Session cleared")
	}
}

// UpdateUser shallow-merges patch into the current user. No-op when there is
// no user.
func (s *Store) UpdateUser(patch users.Patch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.user == nil {
		return
	}
	merged := s.user.Merge(patch)
	s.user = &merged
	s.persist()
}

// User returns a copy of the current user, or nil.
func (s *Store) User() *users.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// AccessToken returns the current access credential.
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// RefreshToken returns the current refresh credential.
func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// IsAuthenticated is true iff there is a user and an access token.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// Verified reports whether the credentials came from a live server response
// rather than from rehydration.
func (s *Store) Verified() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.verified
}

// Snapshot returns a consistent copy of the session.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot()
}

func (s *Store) snapshot() Snapshot {
	snap := Snapshot{
		AccessToken:     s.accessToken,
		RefreshToken:    s.refreshToken,
		IsAuthenticated: s.authenticated,
		Verified:        s.verified,
	}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	return snap
}

// recompute derives the authenticated flag. Callers hold s.mu.
func (s *Store) recompute() {
	s.authenticated = s.user != nil && s.accessToken != ""
}

// persist writes the current state. Empty values are removed rather than
// stored so a later rehydrate never sees a blank credential. Callers hold s.mu.
func (s *Store) persist() {
	set := make(map[string]string, 3)
	var remove []string

	if s.user != nil {
		raw, err := json.Marshal(s.user)
		if err != nil {
			log.Err(err).Msg("Failed to encode user for storage")
		} else {
			set[storage.KeyUser] = string(raw)
		}
	} else {
		remove = append(remove, storage.KeyUser)
	}

	if s.refreshToken != "" {
		set[storage.KeyRefreshToken] = s.refreshToken
	} else {
		remove = append(remove, storage.KeyRefreshToken)
	}

	if s.accessToken != "" {
		set[storage.KeyAccessToken] = s.accessToken
	} else {
		remove = append(remove, storage.KeyAccessToken)
	}

	if len(set) > 0 {
		if err := s.durable.SetMany(set); err != nil {
			log.Err(err).Msg("Failed to persist session")
		}
	}
	if len(remove) > 0 {
		if err := s.durable.Remove(remove...); err != nil {
			log.Err(err).Msg("Failed to remove stale session entries")
		}
	}
}

func (s *Store) read(key string) (string, bool) {
	v, ok, err := s.durable.Get(key)
	if err != nil {
		log.Err(err).Str("key", key).Msg("Failed to read persisted session")
		return "", false
	}
	return v, ok && v != ""
}
