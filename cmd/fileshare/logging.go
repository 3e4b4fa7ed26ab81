package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"fileshare/internal/config"
)

const logLevelEnvKey = "FILESHARE_LOG_LEVEL"

type logLevelSource string

const (
	levelFromFlag    logLevelSource = "flag"
	levelFromEnv     logLevelSource = "env"
	levelFromConfig  logLevelSource = "config"
	levelFromDefault logLevelSource = "default"
)

// configureLoggerForCLI installs the default slog logger. The level comes
// from the flag, then FILESHARE_LOG_LEVEL, then the config file. A bad flag
// is an error; a bad env or config value falls back to debug with a warning.
func configureLoggerForCLI(flagLevel, configLevel string) (string, error) {
	envLevel := os.Getenv(logLevelEnvKey)
	rawLevel, source := pickLogLevel(flagLevel, envLevel, configLevel)

	level, err := parseLogLevel(rawLevel)
	if err == nil {
		slog.SetDefault(newLogger(level))
		return "", nil
	}

	switch source {
	case levelFromFlag:
		return "", fmt.Errorf("invalid --log-level %q", flagLevel)
	case levelFromEnv:
		slog.SetDefault(newLogger(slog.LevelDebug))
		return fmt.Sprintf("warning: invalid %s=%q; defaulting to %s", logLevelEnvKey, envLevel, config.DefaultLogLevel), nil
	default:
		slog.SetDefault(newLogger(slog.LevelDebug))
		return fmt.Sprintf("warning: invalid log_level=%q; defaulting to %s", configLevel, config.DefaultLogLevel), nil
	}
}

func pickLogLevel(flagLevel, envLevel, configLevel string) (string, logLevelSource) {
	switch {
	case strings.TrimSpace(flagLevel) != "":
		return flagLevel, levelFromFlag
	case strings.TrimSpace(envLevel) != "":
		return envLevel, levelFromEnv
	case strings.TrimSpace(configLevel) != "":
		return configLevel, levelFromConfig
	default:
		return "", levelFromDefault
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case "":
		return slog.LevelDebug, nil
	case "warning":
		value = "warn"
	}

	if numeric, err := strconv.Atoi(value); err == nil {
		return slog.Level(numeric), nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelDebug, fmt.Errorf("invalid log level %q", raw)
	}
	return level, nil
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
