// Package broadcast provides named publish/subscribe channels shared by every
// page and component of the host, with the semantics of a browser
// BroadcastChannel: a message reaches every other subscriber of the same
// name, never its sender.
package broadcast

import (
	"sync"

	"github.com/rs/zerolog/log"
)

const subscriptionBuffer = 16

type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]struct{})}
}

// Subscription receives the messages published on one channel.
type Subscription struct {
	hub     *Hub
	channel string
	ch      chan []byte
	once    sync.Once
}

// Subscribe joins the named channel.
func (h *Hub) Subscribe(channel string) *Subscription {
	s := &Subscription{hub: h, channel: channel, ch: make(chan []byte, subscriptionBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[channel] == nil {
		h.subs[channel] = make(map[*Subscription]struct{})
	}
	h.subs[channel][s] = struct{}{}
	return s
}

// C delivers messages. It is closed by Close.
func (s *Subscription) C() <-chan []byte {
	return s.ch
}

func (s *Subscription) Channel() string {
	return s.channel
}

// Publish sends data to the other subscribers of the channel.
func (s *Subscription) Publish(data []byte) int {
	return s.hub.publish(s.channel, data, s)
}

// Close leaves the channel. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		delete(s.hub.subs[s.channel], s)
		if len(s.hub.subs[s.channel]) == 0 {
			delete(s.hub.subs, s.channel)
		}
		close(s.ch)
	})
}

// Publish sends data to every subscriber of channel and returns how many
// received it.
func (h *Hub) Publish(channel string, data []byte) int {
	return h.publish(channel, data, nil)
}

func (h *Hub) publish(channel string, data []byte, sender *Subscription) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.subs[channel] {
		if sub == sender {
			continue
		}
		msg := append([]byte(nil), data...)
		select {
		case sub.ch <- msg:
			delivered++
		default:
			log.Warn().Str("channel", channel).Msg("Dropping broadcast message for slow subscriber")
		}
	}
	return delivered
}

// Subscribers returns the number of subscribers on channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[channel])
}
