package browser

import (
	"sync/atomic"

	"github.com/jrsteele09/budget-session/oauthpopup"
)

const messageBuffer = 4

// Window is a popup known to the registry.
type Window struct {
	registry *Registry
	name     string
	closed   atomic.Bool
	messages chan []byte
}

var _ oauthpopup.Window = (*Window)(nil)

func newWindow(r *Registry, name string) *Window {
	return &Window{registry: r, name: name, messages: make(chan []byte, messageBuffer)}
}

func (w *Window) Name() string {
	return w.name
}

func (w *Window) Closed() bool {
	return w.closed.Load()
}

// Close forgets the window and asks its page to close.
func (w *Window) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	w.registry.remove(w)
	if w.registry.closeReq != nil {
		w.registry.closeReq(w.name)
	}
	return nil
}

// Messages is never closed.
func (w *Window) Messages() <-chan []byte {
	return w.messages
}

func (w *Window) markClosed() {
	w.closed.Store(true)
}
