package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/fang"
	"github.com/ximatai/openai"
	"github.com/ximatai/openai/internal/chat"
)

// config is read from the environment.
type config struct {
	APIKey       string `env:"OPENAI_API_KEY,notEmpty"`
	BaseURL      string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	Model        string `env:"OPENAI_MODEL" envDefault:"gpt-4o"`
	Organization string `env:"OPENAI_ORGANIZATION"`
	StoragePath  string `env:"OPENAI_CHAT_STORAGE"`
	Debug        bool   `env:"OPENAI_DEBUG"`

	// Client side rate limits; zero leaves the client unlimited.
	RequestsPerMinute int `env:"OPENAI_REQUESTS_PER_MINUTE"`
	TokensPerMinute   int `env:"OPENAI_TOKENS_PER_MINUTE"`
}

func loadConfig() (config, error) {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	if cfg.StoragePath == "" {
		cfg.StoragePath = chat.DefaultStoragePath
	}

	return cfg, nil
}

func newLogger(cfg config) *slog.Logger {
	if !cfg.Debug {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newClient(cfg config, logger *slog.Logger) *openai.Client {
	opts := []openai.ClientOption{
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithOrganization(cfg.Organization),
		openai.WithLogger(logger),
	}

	if cfg.RequestsPerMinute > 0 || cfg.TokensPerMinute > 0 {
		opts = append(opts, openai.WithRateLimiters(
			openai.NewRateLimitersPerMinute(cfg.RequestsPerMinute, cfg.TokensPerMinute),
		))
	}

	return openai.NewClient(cfg.APIKey, opts...)
}

var (
	cfg    config
	logger *slog.Logger
	client *openai.Client
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := fang.Execute(ctx, rootCmd); err != nil {
		os.Exit(1)
	}
}
