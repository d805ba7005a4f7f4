package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/cockroachdb/pebble"
	"github.com/spf13/cobra"
	"github.com/ximatai/openai/internal/chat"
	"github.com/ximatai/openai/session"
	"github.com/ximatai/openai/storage"
	pebbleStorage "github.com/ximatai/openai/storage/pebble"
)

// pebbleLogger sends pebble's own logging to the structured logger.
type pebbleLogger struct {
	logger *slog.Logger
}

func (l *pebbleLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "pebble")
}

func (l *pebbleLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...), "component", "pebble")
}

func (l *pebbleLogger) Fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(1)
}

func (l *pebbleLogger) Eventf(ctx context.Context, format string, args ...any) {}

func (l *pebbleLogger) IsTracingEnabled(ctx context.Context) bool {
	return false
}

// openStorage opens the chat history, in memory when temporary.
func openStorage(temporary bool) (*pebbleStorage.Backend[string, session.Exchange], error) {
	var (
		opts  = &pebble.Options{LoggerAndTracer: &pebbleLogger{logger: logger}}
		codec = &storage.JSONCodec[string, session.Exchange]{}
		b     *pebbleStorage.Backend[string, session.Exchange]
		err   error
	)

	if temporary {
		b, err = pebbleStorage.NewMemBackend(opts, codec)
	} else {
		b, err = pebbleStorage.NewBackend(cfg.StoragePath, opts, codec)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create pebble backend: %w", err)
	}

	return b, nil
}

func runChat(cmd *cobra.Command, temporary bool) error {
	backend, err := openStorage(temporary)
	if err != nil {
		return err
	}
	defer backend.Close(cmd.Context())

	s := session.Connect(client, cfg.Model,
		session.WithStorage(backend),
		session.WithLogger(logger),
	)

	chatSession, restore, err := chat.NewSession(cmd.Context(), s, cmd.InOrStdin(), cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("failed to create chat session: %w", err)
	}
	defer restore()

	chatSession.Run(cmd.Context())

	return nil
}

var chatCommand = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	RunE: func(cmd *cobra.Command, args []string) error {
		temporary, _ := cmd.Flags().GetBool("temporary")
		return runChat(cmd, temporary)
	},
}

func init() {
	chatCommand.Flags().BoolP("temporary", "t", false, "Use a temporary in-memory chat storage backend")

	rootCmd.AddCommand(
		chatCommand,
	)
}
