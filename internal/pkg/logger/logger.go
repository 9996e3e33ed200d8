package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"shopping-assistant-pipeline/internal/config"
)

type Fields = logrus.Fields

type Logger struct {
	entry *logrus.Entry
}

func New(cfg config.LogConfig) (*Logger, error) {
	base := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	base.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "text":
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	default:
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	}

	output, err := outputFor(cfg)
	if err != nil {
		return nil, err
	}
	base.SetOutput(output)

	return &Logger{entry: logrus.NewEntry(base)}, nil
}

// NewNop discards everything.
func NewNop() *Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	return &Logger{entry: logrus.NewEntry(base)}
}

// NewWithWriter logs JSON at debug level into w.
func NewWithWriter(w io.Writer) *Logger {
	base := logrus.New()
	base.SetOutput(w)
	base.SetLevel(logrus.DebugLevel)
	base.SetFormatter(&logrus.JSONFormatter{})
	return &Logger{entry: logrus.NewEntry(base)}
}

func outputFor(cfg config.LogConfig) (io.Writer, error) {
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	case "file":
		if cfg.File == "" {
			return nil, fmt.Errorf("log output is file but no log file configured")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		return &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported log output %q", cfg.Output)
	}
}

func (l *Logger) WithFields(fields Fields) *Logger {
	return &Logger{entry: l.entry.WithFields(fields)}
}

func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

func (l *Logger) WithError(err error) *Logger {
	return &Logger{entry: l.entry.WithError(err)}
}

func (l *Logger) Debug(msg string, keyvals ...any) {
	l.withKV(keyvals).Debug(msg)
}

func (l *Logger) Info(msg string, keyvals ...any) {
	l.withKV(keyvals).Info(msg)
}

func (l *Logger) Warn(msg string, keyvals ...any) {
	l.withKV(keyvals).Warn(msg)
}

func (l *Logger) Error(msg string, keyvals ...any) {
	l.withKV(keyvals).Error(msg)
}

// withKV turns alternating key/value pairs into logrus fields; a dangling key
// is logged under "extra".
func (l *Logger) withKV(keyvals []any) *logrus.Entry {
	if len(keyvals) == 0 {
		return l.entry
	}
	fields := make(logrus.Fields, len(keyvals)/2+1)
	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		if i+1 >= len(keyvals) {
			fields["extra"] = key
			break
		}
		fields[key] = keyvals[i+1]
	}
	return l.entry.WithFields(fields)
}

func (l *Logger) LogService(service, operation string, duration time.Duration, fields map[string]any, err error) {
	entry := l.entry.WithFields(logrus.Fields{
		"service":     service,
		"operation":   operation,
		"duration_ms": duration.Milliseconds(),
	})
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	if err != nil {
		entry.WithError(err).Error("service operation failed")
		return
	}
	entry.Debug("service operation completed")
}

func (l *Logger) LogAgent(workflowID, stage, operation string, duration time.Duration, fields map[string]any, err error) {
	entry := l.entry.WithFields(logrus.Fields{
		"workflow_id": workflowID,
		"stage":       stage,
		"operation":   operation,
		"duration_ms": duration.Milliseconds(),
	})
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	if err != nil {
		entry.WithError(err).Warn("stage operation failed")
		return
	}
	entry.Info("stage operation completed")
}

func (l *Logger) LogWorkflow(workflowID, requestID, event string, duration time.Duration, err error) {
	entry := l.entry.WithFields(logrus.Fields{
		"workflow_id": workflowID,
		"request_id":  requestID,
		"event":       event,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("workflow event")
		return
	}
	entry.Info("workflow event")
}
