package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/budget-session/apifake"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type fakeAPIConfig struct {
	Port          string        `env:"FAKE_API_PORT"          envDefault:":8081"`
	Secret        string        `env:"FAKE_API_SECRET"`
	AccessTTL     time.Duration `env:"FAKE_API_ACCESS_TTL"    envDefault:"5m"`
	RefreshTTL    time.Duration `env:"FAKE_API_REFRESH_TTL"   envDefault:"168h"`
	Rotate        bool          `env:"FAKE_API_ROTATE"        envDefault:"true"`
	RefreshCookie bool          `env:"FAKE_API_REFRESH_COOKIE"`
	Providers     []string      `env:"FAKE_API_PROVIDERS"     envDefault:"google,github" envSeparator:","`
	SeedEmail     string        `env:"FAKE_API_SEED_EMAIL"    envDefault:"demo@example.com"`
	SeedPassword  string        `env:"FAKE_API_SEED_PASSWORD" envDefault:"demo"`
	SeedCurrency  string        `env:"FAKE_API_SEED_CURRENCY" envDefault:"USD"`
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	var c fakeAPIConfig
	if err := env.Parse(&c); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	options := []apifake.Option{
		apifake.WithAccessTTL(c.AccessTTL),
		apifake.WithRefreshTTL(c.RefreshTTL),
		apifake.WithRotation(c.Rotate),
		apifake.WithRefreshCookie(c.RefreshCookie),
		apifake.WithProviders(c.Providers...),
	}
	if c.Secret != "" {
		options = append(options, apifake.WithSecret(c.Secret))
	}
	api := apifake.New(options...)

	if c.SeedEmail != "" {
		if _, err := api.Accounts().Create(c.SeedEmail, c.SeedPassword, "Demo", c.SeedCurrency); err != nil {
			log.Fatal().Err(err).Msg("Failed to seed demo account")
		}
		log.Info().Str("email", c.SeedEmail).Msg("Seeded demo account")
	}

	figure.NewFigure("Fake API", "cybermedium", true).Print()
	fmt.Println()

	server := &http.Server{Addr: c.Port, Handler: api}
	go func() {
		log.Info().Str("addr", c.Port).Strs("routes", api.Routes()).Msg("Fake API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server.ListenAndServe")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server.Shutdown")
	}
}
