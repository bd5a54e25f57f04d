package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"escrowline/internal/config"
)

// New builds the process logger. Console output is human readable when
// console is set; a configured log file always receives JSON lines.
func New(cfg config.LogConfig, console bool) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if console {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	if cfg.File != "" {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 50),
			MaxBackups: orDefault(cfg.MaxBackups, 3),
			Compress:   true,
		})
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("service", "escrowline").Logger()
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
