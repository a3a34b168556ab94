// Package browser opens login popups in the user's browser and tracks them by
// window name. The popup page reports back to the host over HTTP, so the
// registry turns those requests into direct messages and close events.
package browser

import (
	"context"
	"fmt"
	"sync"

	apperrors "github.com/jrsteele09/budget-session/internal/errors"
	"github.com/jrsteele09/budget-session/oauthpopup"
	"github.com/rs/zerolog/log"
)

// Launcher shows url in a window called name.
type Launcher func(ctx context.Context, url, name, features string) error

// CloseFunc asks the page running in the named window to close itself.
type CloseFunc func(name string)

type Registry struct {
	mu       sync.RWMutex
	windows  map[string]*Window
	launch   Launcher
	closeReq CloseFunc
}

var _ oauthpopup.Opener = (*Registry)(nil)

type Option func(*Registry)

// WithCloseRequest sets how a window is told to close itself.
func WithCloseRequest(f CloseFunc) Option {
	return func(r *Registry) {
		r.closeReq = f
	}
}

func NewRegistry(launch Launcher, options ...Option) *Registry {
	r := &Registry{
		windows: make(map[string]*Window),
		launch:  launch,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Open launches url and registers the window under name, replacing any
// window already registered with that name. A launch failure means the popup
// was blocked.
func (r *Registry) Open(ctx context.Context, url, name, features string) (oauthpopup.Window, error) {
	if name == "" {
		return nil, fmt.Errorf("window name cannot be empty")
	}
	if r.launch == nil {
		return nil, fmt.Errorf("no launcher configured")
	}

	w := newWindow(r, name)
	r.mu.Lock()
	previous := r.windows[name]
	r.windows[name] = w
	r.mu.Unlock()
	if previous != nil {
		previous.markClosed()
	}

	if err := r.launch(ctx, url, name, features); err != nil {
		r.remove(w)
		w.markClosed()
		return nil, fmt.Errorf("launch %s: %w", name, err)
	}
	log.Debug().Str("window", name).Msg("Popup window launched")
	return w, nil
}

// Deliver hands msg to the named window's opener as a direct message.
func (r *Registry) Deliver(name string, msg []byte) error {
	w, err := r.lookup(name)
	if err != nil {
		return err
	}
	select {
	case w.messages <- msg:
		return nil
	default:
		log.Warn().Str("window", name).Msg("Popup message dropped, opener is not reading")
		return nil
	}
}

// MarkClosed records that the named window has gone away.
func (r *Registry) MarkClosed(name string) error {
	w, err := r.lookup(name)
	if err != nil {
		return err
	}
	r.remove(w)
	w.markClosed()
	return nil
}

// Len returns the number of open windows.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.windows)
}

func (r *Registry) lookup(name string) (*Window, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.windows[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrWindowNotFound, name)
	}
	return w, nil
}

func (r *Registry) remove(w *Window) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.windows[w.name] == w {
		delete(r.windows, w.name)
	}
}
