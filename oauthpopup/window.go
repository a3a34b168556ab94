package oauthpopup

import (
	"context"
	"fmt"
)

// Window is a handle to an opened popup.
type Window interface {
	// Closed reports whether the window has gone away.
	Closed() bool
	// Close closes the window. Closing a closed window is a no-op.
	Close() error
	// Messages delivers messages posted directly to the opener. It may be nil
	// when the window cannot reach the opener.
	Messages() <-chan []byte
}

// Opener opens popup windows, like window.open. A nil Window or an error
// means the popup was blocked.
type Opener interface {
	Open(ctx context.Context, url, name, features string) (Window, error)
}

// Channel is a subscription to a named broadcast channel.
type Channel interface {
	C() <-chan []byte
	Close()
}

// Subscriber joins a named broadcast channel. It may return nil when no
// channel is available.
type Subscriber func(name string) Channel

// Screen is the outer geometry of the page that starts the login.
type Screen struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Features is the window.open feature set for the popup.
type Features struct {
	Width  int
	Height int
	Left   int
	Top    int
}

// Centered places a width x height popup in the middle of screen.
func Centered(screen Screen, width, height int) Features {
	f := Features{Width: width, Height: height, Left: screen.Left, Top: screen.Top}
	if screen.Width > width {
		f.Left += (screen.Width - width) / 2
	}
	if screen.Height > height {
		f.Top += (screen.Height - height) / 2
	}
	return f
}

func (f Features) String() string {
	return fmt.Sprintf("width=%d,height=%d,left=%d,top=%d,toolbar=no,menubar=no,location=yes,status=no,scrollbars=yes,resizable=yes",
		f.Width, f.Height, f.Left, f.Top)
}
