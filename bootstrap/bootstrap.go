// Package bootstrap reconciles a rehydrated session with the API once per
// process start, before any private page is rendered.
package bootstrap

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/jrsteele09/budget-session/users"
	"github.com/rs/zerolog/log"
)

type Outcome int

const (
	Pending Outcome = iota
	Authenticated
	Unauthenticated
)

func (o Outcome) String() string {
	switch o {
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	}
	return "pending"
}

// Session is the part of the session store the bootstrapper touches.
type Session interface {
	AccessToken() string
	RefreshToken() string
	User() *users.User
	SetAuth(user users.User, accessToken, refreshToken string)
	Logout()
}

// AuthAPI is satisfied by gateway.AuthClient.
type AuthAPI interface {
	RefreshSession(ctx context.Context) error
	Me(ctx context.Context) (*users.User, error)
}

type Bootstrapper struct {
	session Session
	api     AuthAPI

	once     sync.Once
	mu       sync.Mutex
	checking atomic.Bool
	done     chan struct{}
	outcome  Outcome
}

// New returns a bootstrapper that reports Checking until its first run
// settles.
func New(session Session, api AuthAPI) *Bootstrapper {
	b := &Bootstrapper{
		session: session,
		api:     api,
		done:    make(chan struct{}),
	}
	b.checking.Store(true)
	return b
}

// Start launches the check in the background the first time it is called.
// Later calls do nothing. The check outlives ctx's cancellation.
func (b *Bootstrapper) Start(ctx context.Context) {
	b.once.Do(func() {
		b.mu.Lock()
		done := b.done
		b.mu.Unlock()
		go b.settle(context.WithoutCancel(ctx), done)
	})
}

// Run starts the check if needed and waits for it to settle.
func (b *Bootstrapper) Run(ctx context.Context) Outcome {
	b.Start(ctx)
	select {
	case <-b.Done():
	case <-ctx.Done():
	}
	return b.Outcome()
}

// Rerun performs the check again, for example after the user asks to
// retry. If a check is already running it waits for that one instead.
func (b *Bootstrapper) Rerun(ctx context.Context) Outcome {
	b.mu.Lock()
	if b.checking.Load() {
		done := b.done
		b.mu.Unlock()
		b.Start(ctx)
		<-done
		return b.Outcome()
	}
	b.checking.Store(true)
	b.done = make(chan struct{})
	done := b.done
	b.mu.Unlock()

	b.settle(ctx, done)
	return b.Outcome()
}

// Checking is true until the current check settles.
func (b *Bootstrapper) Checking() bool {
	return b.checking.Load()
}

// Done is closed when the current check settles.
func (b *Bootstrapper) Done() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}

func (b *Bootstrapper) Outcome() Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outcome
}

func (b *Bootstrapper) settle(ctx context.Context, done chan struct{}) {
	outcome := Unauthenticated
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Session check panicked")
			b.session.Logout()
			outcome = Unauthenticated
		}
		b.mu.Lock()
		b.outcome = outcome
		b.checking.Store(false)
		close(done)
		b.mu.Unlock()
		log.Info().Str("outcome", outcome.String()).Msg("Session check settled")
	}()

	outcome = b.check(ctx)
}

func (b *Bootstrapper) check(ctx context.Context) Outcome {
	switch {
	case b.session.RefreshToken() != "":
		if err := b.api.RefreshSession(ctx); err != nil {
			log.Info().Err(err).Msg("Stored session could not be refreshed")
			b.session.Logout()
			return Unauthenticated
		}
		if b.session.AccessToken() == "" {
			b.session.Logout()
			return Unauthenticated
		}
		if b.session.User() == nil {
			// Tokens survived but the user record did not.
			u, err := b.api.Me(ctx)
			if err != nil {
				log.Info().Err(err).Msg("Could not restore user after refresh")
				b.session.Logout()
				return Unauthenticated
			}
			b.session.SetAuth(*u, b.session.AccessToken(), b.session.RefreshToken())
		}
		return Authenticated

	case b.session.AccessToken() != "" && b.session.User() != nil:
		u, err := b.api.Me(ctx)
		if err != nil {
			log.Info().Err(err).Msg("Cached access token rejected")
			b.session.Logout()
			return Unauthenticated
		}
		b.session.SetAuth(*u, b.session.AccessToken(), "")
		return Authenticated

	default:
		b.session.Logout()
		return Unauthenticated
	}
}
