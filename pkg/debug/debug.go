// Package debug provides category-based debug logging.
//
// Two orthogonal controls:
//   - Categories (WHAT to debug): IDENTITY_DEBUG env or log.debug in the config
//   - Levels (HOW MUCH detail): log.level in the config
//
// Usage:
//
//	debug.Log("chain", "scheme decided", "scheme", name, "decision", d)
//	if debug.Enabled("storage") { /* expensive formatting */ }
//
// Categories: chain, schemes, storage, hasher, config, all.
// Levels: error, warn, info, debug, trace.
package debug

import (
	"context"
	"log/slog"
	"os"
	"slices"
	"strings"
)

// EnvVar names the environment variable holding the enabled categories.
const EnvVar = "IDENTITY_DEBUG"

// LevelTrace is below slog.LevelDebug for maximum verbosity.
const LevelTrace = slog.LevelDebug - 4

// categories holds the set of enabled debug categories.
// Access is read-only after Init(), so no synchronization needed.
var categories map[string]bool

func init() {
	// Available before the configuration is loaded.
	categories = parseCategories(os.Getenv(EnvVar))
}

// Init sets the enabled categories from the configuration. The
// environment takes precedence.
func Init(configCategories string) {
	cats := os.Getenv(EnvVar)
	if cats == "" {
		cats = configCategories
	}
	categories = parseCategories(cats)
}

// Enabled reports whether debug output is active for the given category.
func Enabled(category string) bool {
	return categories["all"] || categories[category]
}

// Log emits a debug message for the given category.
// If the category is not enabled, this is a no-op.
func Log(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Trace emits a trace-level message for the given category.
// Only visible when the log level is trace.
func Trace(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Log(context.Background(), LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

// ParseLevel converts a level string to a slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "INFO", "":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Categories returns the enabled categories, sorted.
func Categories() []string {
	result := make([]string, 0, len(categories))
	for k := range categories {
		result = append(result, k)
	}
	slices.Sort(result)
	return result
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	if s == "" {
		return m
	}
	for _, cat := range strings.Split(s, ",") {
		cat = strings.TrimSpace(strings.ToLower(cat))
		if cat != "" {
			m[cat] = true
		}
	}
	return m
}
