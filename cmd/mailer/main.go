package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/NasaVasa/pricealert/internal/app"
	"github.com/NasaVasa/pricealert/internal/config"
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	mailer, err := app.NewMailer(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize mailer:", err)
		os.Exit(1)
	}

	if err := mailer.Run(ctx); err != nil {
		mailer.Shutdown()
		fmt.Fprintln(os.Stderr, "mailer error:", err)
		os.Exit(1)
	}
	mailer.Shutdown()
}
