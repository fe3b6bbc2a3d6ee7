// Package logging configures the process logger from the loaded config.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"sourcerer/internal/config"
)

// Setup configures the standard logrus logger to write to stderr.
func Setup(cfg *config.Config) {
	Configure(logrus.StandardLogger(), cfg, os.Stderr)
}

// Configure applies cfg to l. An unparseable level falls back to info;
// debug mode always wins over the configured level.
func Configure(l *logrus.Logger, cfg *config.Config, w io.Writer) {
	l.SetOutput(w)

	if cfg.LogJSON {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: !cfg.Debug})
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	if cfg.Debug && level < logrus.DebugLevel {
		level = logrus.DebugLevel
	}
	l.SetLevel(level)
}
