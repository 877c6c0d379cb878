package main

import (
	"flag"
	"log/slog"
	"os"

	"dopagent/internal/app"
)

func main() {
	configPath := flag.String("config", "", "path to settings.yaml (default ./settings.yaml)")
	flag.Parse()

	application, err := app.NewApplication(*configPath)
	if err != nil {
		slog.Error("Failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("Application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
