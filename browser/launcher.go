package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	sysbrowser "github.com/pkg/browser"
)

var errNoListener = errors.New("no page is listening")

func init() {
	sysbrowser.Stdout = io.Discard
	sysbrowser.Stderr = io.Discard
}

// SystemLauncher opens the URL in the system browser, or with command when
// one is set (the BROWSER convention).
func SystemLauncher(command string) Launcher {
	command = strings.TrimSpace(command)
	return func(ctx context.Context, url, name, features string) error {
		if command == "" {
			return sysbrowser.OpenURL(url)
		}
		// The browser outlives the request that opened it.
		fields := strings.Fields(command)
		cmd := exec.Command(fields[0], append(fields[1:], url)...)
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("start %s: %w", fields[0], err)
		}
		go func() { _ = cmd.Wait() }()
		return nil
	}
}

// PageLauncher asks an open dashboard page to call window.open. publish
// returns how many pages received the request.
func PageLauncher(publish func(msg []byte) int, encode func(url, name, features string) ([]byte, error)) Launcher {
	return func(ctx context.Context, url, name, features string) error {
		msg, err := encode(url, name, features)
		if err != nil {
			return err
		}
		if publish(msg) == 0 {
			return errNoListener
		}
		return nil
	}
}

// FirstOf tries each launcher in turn until one succeeds.
func FirstOf(launchers ...Launcher) Launcher {
	return func(ctx context.Context, url, name, features string) error {
		var errs []error
		for _, l := range launchers {
			err := l(ctx, url, name, features)
			if err == nil {
				return nil
			}
			errs = append(errs, err)
		}
		if len(errs) == 0 {
			return errors.New("no launcher configured")
		}
		return errors.Join(errs...)
	}
}
