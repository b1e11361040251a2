package logging

import (
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Appender is an output for log entries. This is a subset of the `zapcore.Core` interface.
type Appender interface {
	// Write submits a structured log entry to the appender for logging.
	Write(zapcore.Entry, []zapcore.Field) error
	// Sync is for signaling that any buffered logs to `Write` should be flushed. E.g: at shutdown.
	Sync() error
}

// NewWriterAppender creates a console encoded appender writing to w.
func NewWriterAppender(w zapcore.WriteSyncer) Appender {
	return zapcore.NewCore(zapcore.NewConsoleEncoder(NewZapLoggerConfig()), w, zapcore.DebugLevel)
}

// FileAppender writes json encoded entries to a size rotated file.
type FileAppender struct {
	zapcore.Core
	out *lumberjack.Logger
}

// FileAppenderConfig describes the rotation policy of a FileAppender.
type FileAppenderConfig struct {
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewFileAppender creates an appender writing to cfg.Filename. The file and its directory are
// created on first write.
func NewFileAppender(cfg FileAppenderConfig) *FileAppender {
	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	out := &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    maxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	encoderCfg := NewZapLoggerConfig()
	encoderCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	return &FileAppender{
		Core: zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(out), zapcore.DebugLevel),
		out:  out,
	}
}

// Close closes the underlying file.
func (fa *FileAppender) Close() error {
	return fa.out.Close()
}
