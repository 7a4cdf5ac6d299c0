package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"videoclient/internal/infra"
	"videoclient/internal/mockapi"
)

func main() {
	// Load .env if present
	_ = godotenv.Load(".env", ".env.local")

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "mockapi").Logger()

	svc := mockapi.New(mockapi.Options{
		JWTSecret:      cfg.MockJWTSecret,
		AccessTTL:      cfg.MockAccessTTL,
		JobTicks:       cfg.MockJobTicks,
		SubmitLimit:    cfg.MockSubmitLimit,
		Users:          cfg.MockUsers,
		AllowedOrigins: cfg.MockAllowedOrigins,
		Logger:         &logger,
	})
	server := infra.NewHTTPServer(cfg, svc.Router())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().Msgf("mock video service listening on %s", server.Addr())
	if err := server.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("http server failed")
	}
	logger.Info().Msg("server stopped")
}
