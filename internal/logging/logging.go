// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup initializes the global logger with a console writer on stdout and,
// when file is non-empty, a rotating file sink. It returns the configured
// logger and also installs it as the zerolog global.
func Setup(level, file string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var w io.Writer = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	if file != "" {
		w = io.MultiWriter(w, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		})
	}

	zerolog.TimeFieldFormat = time.RFC3339
	logger := zerolog.New(w).Level(lvl).With().Timestamp().Str("app", "roomcast").Logger()
	log.Logger = logger
	return logger
}
