// Package storage defines the durable key/value storage the session store
// persists into. It plays the role browser local storage plays for a web
// client: small string values under fixed keys that survive a restart.
package storage

// Fixed keys used by the session store. They must stay stable across
// releases so that rehydration after an upgrade is deterministic.
const (
	KeyUser         = "budget.session.user"
	KeyRefreshToken = "budget.session.refreshToken"
	KeyAccessToken  = "budget.session.accessToken"
)

// SessionKeys lists every key owned by the session store.
var SessionKeys = []string{KeyUser, KeyRefreshToken, KeyAccessToken}

// Durable is a persistent string key/value store.
// SetMany and Remove must apply all of their keys atomically.
type Durable interface {
	Get(key string) (string, bool, error)
	SetMany(entries map[string]string) error
	Remove(keys ...string) error
}
