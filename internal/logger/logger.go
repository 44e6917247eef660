// Package logger builds the slog.Logger used across the tool. Development
// gets human-readable text at debug level, production gets JSON at info.
package logger

import (
	"log/slog"
	"os"
)

func Init(env string) *slog.Logger {
	switch env {
	case "production":
		return slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}
