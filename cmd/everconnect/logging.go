package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/SVOIcom/everscale-connect-backend/internal/config"
)

// logSink is where this process writes log lines. Workers write to stderr
// only; the coordinator forwards their output into its own sink.
type logSink struct {
	io.Writer
	file *lumberjack.Logger
}

func (s *logSink) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newSink(cfg config.LogConfig, r role) *logSink {
	if r == roleWorker || cfg.File == "" {
		return &logSink{Writer: os.Stderr}
	}
	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    100, // megabytes
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	}
	return &logSink{Writer: io.MultiWriter(os.Stderr, file), file: file}
}

func newLogger(cfg config.LogConfig, r role) (*slog.Logger, *logSink) {
	sink := newSink(cfg, r)
	logger := slog.New(slog.NewJSONHandler(sink, &slog.HandlerOptions{Level: parseLevel(cfg.Level)}))
	logger = logger.With("role", string(r), "pid", os.Getpid())
	return logger, sink
}
