package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/budget-session/broadcast"
	"github.com/jrsteele09/budget-session/gateway"
	"github.com/jrsteele09/budget-session/internal/config"
	"github.com/jrsteele09/budget-session/server"
	"github.com/jrsteele09/budget-session/sessions"
	"github.com/jrsteele09/budget-session/storage/sqlitestore"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Error().Err(err).Msg("Error running dashboard")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Dashboard stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	setupLogging(c)
	displayAppname(c.GetAppName())

	if err := os.MkdirAll(filepath.Dir(c.GetStoragePath()), 0o700); err != nil {
		return fmt.Errorf("create data folder: %w", err)
	}
	durable, err := sqlitestore.Open(c.GetStoragePath())
	if err != nil {
		return fmt.Errorf("open session storage: %w", err)
	}
	defer durable.Close()

	store := sessions.New(durable)
	snapshot := store.Rehydrate()
	log.Info().Bool("provisional", snapshot.IsAuthenticated).Msg("Session restored")

	hub := broadcast.NewHub()
	navigator := server.NewNavigator(hub, c.GetNavigationChannelName())
	gw, err := gateway.NewFromConfig(c, store, gateway.WithNavigator(navigator))
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	dashboard, err := server.New(c, server.Deps{
		Session:   store,
		Gateway:   gw,
		Navigator: navigator,
		Hub:       hub,
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	defer dashboard.Close()
	dashboard.Start(context.Background())

	httpServer := &http.Server{Addr: c.GetPort(), Handler: dashboard}
	go listenAndServe(httpServer)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

func setupLogging(c config.Config) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func listenAndServe(server *http.Server) {
	log.Info().Str("addr", server.Addr).Msg("Dashboard listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
