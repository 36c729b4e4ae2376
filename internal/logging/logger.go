package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ducminhle1904/equity-backtest/internal/config"
)

// Logger wraps logrus with a component field so every subsystem tags its
// own entries.
type Logger struct {
	*logrus.Logger
	component string
}

// New builds a logger from the process config. Output goes to stderr plus
// a rotating file so the CLI's stdout stays reserved for the report JSON.
func New(cfg *config.Config) *Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}

	logger.SetOutput(io.MultiWriter(os.Stderr, fileWriter(cfg.LogDir)))

	return &Logger{Logger: logger}
}

// NewNop returns a logger that discards everything. Used in tests.
func NewNop() *Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &Logger{Logger: logger}
}

func fileWriter(dir string) io.Writer {
	return &lumberjack.Logger{
		Filename:   filepath.Join(dir, "backtest.log"),
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
}

// WithComponent returns a child logger tagged with the component name.
func (l *Logger) WithComponent(name string) *logrus.Entry {
	return l.Logger.WithField("component", name)
}
