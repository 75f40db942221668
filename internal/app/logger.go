package app

import (
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig configures the global logger
type LogConfig struct {
	Level string
	File  string
}

// InitLogger points the global zerolog logger at a rotating log file. The
// terminal belongs to the TUI, so nothing is written to stderr. The returned
// closer releases the file.
func InitLogger(cfg LogConfig) io.Closer {
	if cfg.File == "" {
		log.Logger = zerolog.New(io.Discard)
		return io.NopCloser(nil)
	}

	out := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:     out,
		NoColor: true,
	}).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	return out
}

// parseLevel falls back to info for empty or unknown names
func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
