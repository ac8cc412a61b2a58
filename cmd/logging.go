// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Cybenetics Labs

package cmd

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// newLogger returns a console logger for long-running commands. Level is
// controlled by POWENETICS_LOG_LEVEL (debug, info, warn, error).
func newLogger(component string) zerolog.Logger {
	level := zerolog.InfoLevel
	if raw := os.Getenv("POWENETICS_LOG_LEVEL"); raw != "" {
		if parsed, err := zerolog.ParseLevel(raw); err == nil {
			level = parsed
		}
	}

	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}

	return zerolog.New(output).Level(level).With().Timestamp().Str("component", component).Logger()
}
