package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/harborline/storefront/cmd/mockapi/server"
	"github.com/harborline/storefront/pkg/config"
	"github.com/harborline/storefront/pkg/env"
	"github.com/harborline/storefront/pkg/logger"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "mockapi"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	logg = logger.New(logger.Options{
		ServiceName: "mockapi",
		Level:       logger.ParseLevel(env.Get(config.EnvLogLevel, "info")),
	})

	srv, err := server.New(server.Options{
		JWTIssuer: env.Get(config.EnvJWTIssuer, "storefront-mockapi"),
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build mock server", err)
		os.Exit(1)
	}

	addr := ":" + env.Get("MOCKAPI_PORT", "8085")
	ctx := logg.WithField(context.Background(), "addr", addr)
	logg.Info(ctx, "mock commerce API listening")
	if err := http.ListenAndServe(addr, srv.Router()); err != nil {
		logg.Error(ctx, "server stopped", err)
		os.Exit(1)
	}
}
