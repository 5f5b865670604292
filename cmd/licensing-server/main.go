package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/jhsobrinho/educareapp-sub000/internal/app"
)

func main() {
	// .env is optional; real deployments configure via environment
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded environment from .env")
	}

	application, err := app.NewApplication()
	if err != nil {
		slog.Error("failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
