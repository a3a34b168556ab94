// Package oauthpopup runs a third-party login in a separate window and picks
// up its result from whichever signalling path delivers it first: a direct
// message to the opener, or a named broadcast channel. A popup that closes
// without signalling abandons the attempt.
package oauthpopup

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/budget-session/internal/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	DefaultWidth        = 500
	DefaultHeight       = 600
	DefaultPollInterval = 500 * time.Millisecond
)

type State int

const (
	Idle State = iota
	Opened
	Completed
	Abandoned
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Opened:
		return "OPENED"
	case Completed:
		return "COMPLETED"
	case Abandoned:
		return "ABANDONED"
	}
	return "UNKNOWN"
}

// SuccessFunc finalises a completed login. It runs exactly once per
// completed attempt.
type SuccessFunc func(ctx context.Context, msg Message) error

// Result is how an attempt settled.
type Result struct {
	Attempt  string
	Provider string
	State    State
	Message  Message
}

type Attempt struct {
	ID       string
	Provider string
	URL      string
	Features Features

	baseCtx  context.Context
	window   Window
	cancel   context.CancelFunc
	state    State
	consumed bool
	done     chan struct{}
	result   Result
	err      error
}

// Done is closed once the attempt has settled.
func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// Wait blocks until the attempt settles or ctx ends. An abandoned attempt
// is not an error; a blocked, superseded or failed one is.
func (a *Attempt) Wait(ctx context.Context) (Result, error) {
	select {
	case <-a.done:
		return a.result, a.err
	case <-ctx.Done():
		return Result{Attempt: a.ID, Provider: a.Provider, State: Opened}, ctx.Err()
	}
}

type Handshake struct {
	mu        sync.Mutex
	opener    Opener
	subscribe Subscriber
	onSuccess SuccessFunc
	providers map[string]*oauth2.Config

	width        int
	height       int
	pollInterval time.Duration
	channelName  string
	messageType  string

	current *Attempt
}

type Option func(*Handshake)

func WithPopupSize(width, height int) Option {
	return func(h *Handshake) {
		h.width = width
		h.height = height
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(h *Handshake) {
		h.pollInterval = d
	}
}

func WithChannelName(name string) Option {
	return func(h *Handshake) {
		h.channelName = name
	}
}

func WithMessageType(messageType string) Option {
	return func(h *Handshake) {
		h.messageType = messageType
	}
}

// WithSubscriber sets how the broadcast channel is joined. Without one only
// direct messages are watched.
func WithSubscriber(s Subscriber) Option {
	return func(h *Handshake) {
		h.subscribe = s
	}
}

func New(opener Opener, providers map[string]*oauth2.Config, onSuccess SuccessFunc, options ...Option) *Handshake {
	h := &Handshake{
		opener:       opener,
		onSuccess:    onSuccess,
		providers:    providers,
		width:        DefaultWidth,
		height:       DefaultHeight,
		pollInterval: DefaultPollInterval,
		channelName:  DefaultChannelName,
		messageType:  DefaultMessageType,
	}
	for _, opt := range options {
		opt(h)
	}
	return h
}

// ProviderConfigs builds one oauth2 config per provider, each pointing at
// {authBaseURL}/{provider}.
func ProviderConfigs(authBaseURL, redirectURL, clientID string, names []string) map[string]*oauth2.Config {
	configs := make(map[string]*oauth2.Config, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		configs[name] = &oauth2.Config{
			ClientID:    clientID,
			RedirectURL: redirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL: strings.TrimRight(authBaseURL, "/") + "/" + name,
			},
		}
	}
	return configs
}

// Providers lists the configured provider names in order.
func (h *Handshake) Providers() []string {
	names := make([]string, 0, len(h.providers))
	for name := range h.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OpenPopup starts a login with provider, replacing any attempt in progress.
// If the window cannot be opened the attempt is abandoned at once and the
// error matches ErrPopupBlocked.
func (h *Handshake) OpenPopup(ctx context.Context, provider string, screen Screen) (*Attempt, error) {
	cfg, ok := h.providers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownProvider, provider)
	}

	id := uuid.New().String()
	a := &Attempt{
		ID:       id,
		Provider: provider,
		URL:      cfg.AuthCodeURL(id, oauth2.SetAuthURLParam("display", "popup")),
		Features: Centered(screen, h.width, h.height),
		baseCtx:  context.WithoutCancel(ctx),
		state:    Opened,
		done:     make(chan struct{}),
		result:   Result{Attempt: id, Provider: provider, State: Opened},
	}

	h.mu.Lock()
	previous := h.current
	h.current = a
	h.mu.Unlock()
	if previous != nil {
		h.settle(previous, Abandoned, Message{}, apperrors.ErrAttemptSuperseded)
	}

	// Join the channel before the window exists so no signal is missed.
	var ch Channel
	if h.subscribe != nil {
		ch = h.subscribe(h.channelName)
	}

	win, err := h.opener.Open(ctx, a.URL, id, a.Features.String())
	if err == nil && win == nil {
		err = fmt.Errorf("no window returned")
	}
	if err != nil {
		if ch != nil {
			ch.Close()
		}
		blocked := fmt.Errorf("%w: %w", apperrors.ErrPopupBlocked, err)
		h.settle(a, Abandoned, Message{}, blocked)
		log.Warn().Err(err).Str("provider", provider).Msg("Login popup blocked")
		return a, blocked
	}

	watchCtx, cancel := context.WithCancel(a.baseCtx)
	h.mu.Lock()
	a.window = win
	a.cancel = cancel
	stillOpen, settledErr := a.state == Opened, a.err
	h.mu.Unlock()
	if !stillOpen {
		// Superseded while the window was opening.
		cancel()
		if ch != nil {
			ch.Close()
		}
		_ = win.Close()
		return a, settledErr
	}

	log.Info().Str("provider", provider).Str("attempt", id).Msg("Login popup opened")
	go h.watch(watchCtx, a, win, ch)
	return a, nil
}

// Current returns the authoritative attempt, if any.
func (h *Handshake) Current() *Attempt {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// State returns the state of the current attempt, or Idle.
func (h *Handshake) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return Idle
	}
	return h.current.state
}

// Close tears down the current attempt. Signals arriving afterwards are
// ignored.
func (h *Handshake) Close() {
	h.mu.Lock()
	a := h.current
	h.current = nil
	h.mu.Unlock()
	if a != nil {
		h.settle(a, Abandoned, Message{}, apperrors.ErrAttemptSuperseded)
	}
}

func (h *Handshake) watch(ctx context.Context, a *Attempt, win Window, ch Channel) {
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()
	if ch != nil {
		defer ch.Close()
	}

	direct := win.Messages()
	var broadcast <-chan []byte
	if ch != nil {
		broadcast = ch.C()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-direct:
			if !ok {
				direct = nil
				continue
			}
			if h.signal(a, raw, "direct") {
				return
			}
		case raw, ok := <-broadcast:
			if !ok {
				broadcast = nil
				continue
			}
			if h.signal(a, raw, "broadcast") {
				return
			}
		case <-ticker.C:
			if !win.Closed() {
				continue
			}
			// A popup posts before it closes; take anything already queued.
			if h.drain(a, direct, broadcast) {
				return
			}
			log.Info().Str("attempt", a.ID).Msg("Login popup closed without completing")
			h.settle(a, Abandoned, Message{}, nil)
			return
		}
	}
}

// drain handles messages already waiting on either path without blocking
// and reports whether one finished the attempt.
func (h *Handshake) drain(a *Attempt, direct, broadcast <-chan []byte) bool {
	for {
		select {
		case raw, ok := <-direct:
			if !ok {
				direct = nil
				continue
			}
			if h.signal(a, raw, "direct") {
				return true
			}
		case raw, ok := <-broadcast:
			if !ok {
				broadcast = nil
				continue
			}
			if h.signal(a, raw, "broadcast") {
				return true
			}
		default:
			return false
		}
	}
}

// signal handles one message from either path and reports whether the
// attempt is finished.
func (h *Handshake) signal(a *Attempt, raw []byte, path string) bool {
	msg, ok := parseMessage(raw, h.messageType, a.ID)
	if !ok {
		return false
	}
	if msg.Provider == "" {
		msg.Provider = a.Provider
	}
	msg.Attempt = a.ID

	h.mu.Lock()
	if a.consumed || a.state != Opened {
		h.mu.Unlock()
		return true
	}
	a.consumed = true
	h.mu.Unlock()

	log.Info().Str("attempt", a.ID).Str("via", path).Msg("Login popup completed")

	var err error
	if h.onSuccess != nil {
		err = h.onSuccess(a.baseCtx, msg)
	}
	h.settle(a, Completed, msg, err)
	return true
}

// settle moves a to its final state, cancels its watcher and closes its
// window. Only the first call has any effect, and a success already being
// finalised cannot be abandoned.
func (h *Handshake) settle(a *Attempt, state State, msg Message, err error) {
	h.mu.Lock()
	if a.state != Opened || (state == Abandoned && a.consumed) {
		h.mu.Unlock()
		return
	}
	a.state = state
	a.consumed = true
	a.result = Result{Attempt: a.ID, Provider: a.Provider, State: state, Message: msg}
	a.err = err
	cancel, win := a.cancel, a.window
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if win != nil && !win.Closed() {
		if cerr := win.Close(); cerr != nil {
			log.Debug().Err(cerr).Str("attempt", a.ID).Msg("Closing login popup")
		}
	}
	close(a.done)
}
