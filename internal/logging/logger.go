package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// redacted lists attribute keys whose values never reach the log output.
var redacted = map[string]struct{}{
	"password":      {},
	"password_hash": {},
	"code":          {},
	"token":         {},
	"access_token":  {},
	"refresh_token": {},
	"authorization": {},
	"auth_token":    {},
}

// New creates a JSON slog logger configured at the provided level and tagged
// with the service name and environment. If the level string is invalid it
// defaults to info.
func New(level, app, env string) *slog.Logger {
	return newLogger(os.Stdout, level).With(slog.String("app", app), slog.String("env", env))
}

func newLogger(w io.Writer, level string) *slog.Logger {
	lvl := new(slog.LevelVar)
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl.Set(slog.LevelInfo)
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl, ReplaceAttr: redact})
	return slog.New(handler)
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if _, ok := redacted[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, "[REDACTED]")
	}
	return a
}

// Discard returns a logger that drops all output. Useful for tests.
func Discard() *slog.Logger {
	handler := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}
