package main

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/roomcast/roomcast/internal/logging"
	"github.com/roomcast/roomcast/internal/server"
)

func main() {
	// A missing .env is fine; the process environment still applies.
	_ = godotenv.Load()

	cfg, err := server.NewConfigFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration")
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFile)

	hub := server.NewHub(logger)
	go hub.Run()

	srv := server.NewServer(hub, cfg, logger)
	router := srv.Router(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
	)

	httpServer := server.CreateServer(cfg.Port, router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}

	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		logger.Error().Err(err).Msg("hub shutdown")
	}
}
