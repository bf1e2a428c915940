package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tickshare/tickshare/go/clients/timerapi"
	"github.com/tickshare/tickshare/go/internal/auth"
)

// ensureToken logs in with the configured credentials when no usable
// token is stored, persisting the issued token for subsequent runs. The
// daemon keeps running without one; only authenticated requests fail.
func ensureToken(ctx context.Context, services *Services) {
	if token, err := services.Tokens.Token(); err == nil && !auth.Expired(token, time.Now()) {
		return
	}

	email := os.Getenv("TICKSHARE_EMAIL")
	password := os.Getenv("TICKSHARE_PASSWORD")
	if email == "" || password == "" {
		log.Warn().Msg("no usable auth token and no TICKSHARE_EMAIL/TICKSHARE_PASSWORD set, authenticated requests will fail")
		return
	}

	resp, err := services.API.Login(ctx, timerapi.LoginRequest{Email: email, Password: password})
	if err != nil {
		log.Error().Err(err).Str("email", email).Msg("login failed")
		return
	}
	if err := services.Tokens.SetToken(resp.Token); err != nil {
		log.Error().Err(err).Msg("failed to persist auth token")
		return
	}
	log.Info().Str("email", email).Msg("logged in, auth token stored")
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	config, err := loadConfig(getEnv("CONFIG_FILE", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	services := setupServices(config)
	server := setupServer(config, services)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ensureToken(ctx, services)

	engineDone := make(chan error, 1)
	go func() {
		engineDone <- services.Engine.Run(ctx)
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("share view listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}

	if err := <-engineDone; err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("engine stopped with error")
	}
}
