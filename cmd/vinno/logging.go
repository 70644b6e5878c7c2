package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"vinnodrive/internal/config"
)

const logLevelEnvKey = "VINNO_LOG_LEVEL"

// logStderr is where diagnostics go; tests swap it.
var logStderr io.Writer = os.Stderr

// levelSetting is a log level together with the setting it came from, named
// the way a user would write it.
type levelSetting struct {
	raw    string
	origin string
}

// resolveLogLevel applies flag > env > config precedence. A zero origin
// means nothing was set.
func resolveLogLevel(flagLevel, envLevel, configLevel string) levelSetting {
	for _, s := range []levelSetting{
		{raw: flagLevel, origin: "--log-level"},
		{raw: envLevel, origin: logLevelEnvKey},
		{raw: configLevel, origin: "log_level"},
	} {
		if strings.TrimSpace(s.raw) != "" {
			return s
		}
	}
	return levelSetting{}
}

// setupLogging installs the default logger. A bad --log-level fails the
// command; a bad env or config value falls back to the default level and is
// reported as a warning. Structured output selects JSON log lines.
func setupLogging(flagLevel, configLevel string, structured bool) (string, error) {
	setting := resolveLogLevel(flagLevel, os.Getenv(logLevelEnvKey), configLevel)
	level, err := parseLogLevel(setting.raw)
	if err != nil {
		if setting.origin == "--log-level" {
			return "", fmt.Errorf("invalid --log-level %q", setting.raw)
		}
		level = slog.LevelWarn
		slog.SetDefault(newLogger(level, structured))
		return fmt.Sprintf("warning: invalid %s=%q; defaulting to %s", setting.origin, setting.raw, config.DefaultLogLevel), nil
	}
	slog.SetDefault(newLogger(level, structured))
	return "", nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		value = config.DefaultLogLevel
	}
	switch value {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelWarn, fmt.Errorf("invalid log level %q", raw)
}

func newLogger(level slog.Level, structured bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if structured {
		return slog.New(slog.NewJSONHandler(logStderr, opts))
	}
	return slog.New(slog.NewTextHandler(logStderr, opts))
}
