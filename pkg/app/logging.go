package app

import (
	"io"
	"log/slog"

	"github.com/rhuss/identity/pkg/config"
	"github.com/rhuss/identity/pkg/debug"
)

// NewLogger builds the slog logger described by cfg. Levels are parsed
// by debug.ParseLevel, so "trace" is accepted.
func NewLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: debug.ParseLevel(cfg.Level)}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
