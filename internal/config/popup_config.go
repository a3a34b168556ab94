package config

import "time"

type PopupConfig interface {
	GetOAuthClientID() string
	GetOAuthProviders() []string
	GetPopupWidth() int
	GetPopupHeight() int
	GetPopupPollInterval() time.Duration
	GetPopupCloseCountdown() int
	GetBroadcastChannelName() string
	GetCompletionMessageType() string
	GetNavigationChannelName() string
	GetBrowserCommand() string
}

type Popup struct {
	vars *EnvVars
}

var _ PopupConfig = Popup{}

func (p Popup) GetOAuthClientID() string {
	if p.vars == nil {
		return "budget-dashboard"
	}
	return p.vars.OAuthClientID
}

func (p Popup) GetOAuthProviders() []string {
	if p.vars == nil {
		return nil
	}
	return p.vars.OAuthProviders
}

func (Popup) GetPopupWidth() int {
	return 500
}

func (Popup) GetPopupHeight() int {
	return 600
}

func (p Popup) GetPopupPollInterval() time.Duration {
	if p.vars == nil || p.vars.PopupPoll <= 0 {
		return 500 * time.Millisecond
	}
	return p.vars.PopupPoll
}

// GetPopupCloseCountdown is the number of seconds the popup shows its success
// message before closing itself
func (Popup) GetPopupCloseCountdown() int {
	return 3
}

// GetBroadcastChannelName is shared with the popup page; both sides must agree on it
func (Popup) GetBroadcastChannelName() string {
	return "oauth-login"
}

// GetCompletionMessageType is the message discriminator meaning "OAuth completed"
func (Popup) GetCompletionMessageType() string {
	return "OAUTH_LOGIN_SUCCESS"
}

func (Popup) GetNavigationChannelName() string {
	return "budget-navigation"
}

func (p Popup) GetBrowserCommand() string {
	if p.vars == nil {
		return ""
	}
	return p.vars.BrowserCommand
}
