package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	apperrors "github.com/target/storefront-admin/internal/errors"
	"github.com/target/storefront-admin/internal/tui"
)

func main() {
	// Diagnostics go to stderr so command output stays readable.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(&cli{logger: logger})
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, tui.RenderError(userMessage(err)))
		stop()
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

// userMessage prefers the display message of a classified error.
func userMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return err.Error()
}
