package logger

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseLevel maps a textual level onto a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zap.DebugLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// New builds a JSON logger writing to stderr and, when file is non-nil, to
// the given log file as well.
func New(level string, file *FileSyncer) *zap.Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderCfg.EncodeCaller = zapcore.ShortCallerEncoder

	sink := zapcore.Lock(os.Stderr)
	var out zapcore.WriteSyncer = sink
	if file != nil {
		out = zapcore.NewMultiWriteSyncer(sink, file)
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), out, ParseLevel(level))
	return zap.New(core, zap.AddCaller())
}

// FileSyncer is a log file that can be reopened after rotation.
type FileSyncer struct {
	path string
	cur  atomic.Pointer[os.File]
}

// OpenFile opens (or creates) path for appending.
func OpenFile(path string) (*FileSyncer, error) {
	fs := &FileSyncer{path: path}
	if err := fs.Reload(); err != nil {
		return nil, err
	}
	return fs, nil
}

// Reload reopens the file, closing the previous handle.
func (fs *FileSyncer) Reload() error {
	file, err := os.OpenFile(fs.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	if old := fs.cur.Swap(file); old != nil {
		return old.Close()
	}
	return nil
}

func (fs *FileSyncer) Write(p []byte) (int, error) {
	return fs.cur.Load().Write(p)
}

func (fs *FileSyncer) Sync() error {
	return fs.cur.Load().Sync()
}

func (fs *FileSyncer) Close() error {
	return fs.cur.Load().Close()
}
