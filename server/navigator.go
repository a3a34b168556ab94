package server

import (
	"encoding/json"
	"sync"

	"github.com/jrsteele09/budget-session/broadcast"
	"github.com/jrsteele09/budget-session/gateway"
	"github.com/jrsteele09/budget-session/guard"
	"github.com/rs/zerolog/log"
)

// Navigation messages are published on the navigation channel. Every open
// dashboard page listens on it through the websocket bridge.
const (
	navigateMessage = "navigate"
	openMessage     = "open"
	closeMessage    = "close"
)

type navigation struct {
	Type     string `json:"type"`
	Location string `json:"location,omitempty"`
	URL      string `json:"url,omitempty"`
	Window   string `json:"window,omitempty"`
	Features string `json:"features,omitempty"`
}

// Navigator tracks the page the user is on and drives the open pages: hard
// navigations, and opening and closing login popups.
type Navigator struct {
	hub     *broadcast.Hub
	channel string

	mu      sync.RWMutex
	current string
}

var (
	_ gateway.Navigator  = (*Navigator)(nil)
	_ guard.PathRecorder = (*Navigator)(nil)
)

func NewNavigator(hub *broadcast.Hub, channel string) *Navigator {
	return &Navigator{hub: hub, channel: channel}
}

func (n *Navigator) CurrentPath() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.current
}

func (n *Navigator) SetCurrentPath(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.current = path
}

// HardNavigate makes every open page load path from scratch.
func (n *Navigator) HardNavigate(path string) {
	n.mu.Lock()
	n.current = path
	n.mu.Unlock()
	delivered := n.send(navigation{Type: navigateMessage, Location: path})
	log.Info().Str("location", path).Int("pages", delivered).Msg("Hard navigation")
}

// CloseWindow asks the popup page running in the named window to close.
func (n *Navigator) CloseWindow(name string) {
	n.send(navigation{Type: closeMessage, Window: name})
}

func (n *Navigator) send(msg navigation) int {
	raw, err := json.Marshal(msg)
	if err != nil {
		log.Err(err).Str("type", msg.Type).Msg("Failed to encode navigation message")
		return 0
	}
	return n.publish(raw)
}

func (n *Navigator) publish(raw []byte) int {
	return n.hub.Publish(n.channel, raw)
}

func encodeOpenRequest(url, name, features string) ([]byte, error) {
	return json.Marshal(navigation{Type: openMessage, URL: url, Window: name, Features: features})
}
