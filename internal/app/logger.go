package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger. Production keeps info level without
// source annotations; everywhere else logs debug with file:line so a failed
// stock mutation can be traced straight to the call site. LOG_FORMAT=json
// selects the JSON handler for log shippers.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if !cfg.IsProduction() {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	}
	if cfg != nil && cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
