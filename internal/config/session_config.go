package config

import "path/filepath"

type SessionConfig interface {
	GetStoragePath() string
	GetLoadingRefreshSeconds() int
}

type Session struct {
	vars *EnvVars
}

var _ SessionConfig = Session{}

// GetStoragePath is the SQLite file holding the persisted session
func (s Session) GetStoragePath() string {
	folder := "./data"
	if s.vars != nil && s.vars.DataFolder != "" {
		folder = s.vars.DataFolder
	}
	return filepath.Join(folder, "session.db")
}

// GetLoadingRefreshSeconds is how often the loading page re-requests the route
// while the session is still being checked
func (Session) GetLoadingRefreshSeconds() int {
	return 1
}
