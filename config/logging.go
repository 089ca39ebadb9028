package config

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogWriter is the writer used for application and database logs.
var LogWriter io.Writer = os.Stdout

// InitLogging sends the standard logger to stdout and a rotated log file.
// The returned closer flushes the file on shutdown.
func InitLogging(cfg Log) (io.Closer, io.Writer) {
	if cfg.File == "" {
		LogWriter = os.Stdout
		log.SetOutput(LogWriter)
		return io.NopCloser(nil), LogWriter
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), os.ModePerm); err != nil {
		log.Printf("Warning: Failed to create logs directory: %v", err)
		LogWriter = os.Stdout
		log.SetOutput(LogWriter)
		return io.NopCloser(nil), LogWriter
	}

	rotating := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}

	LogWriter = io.MultiWriter(os.Stdout, rotating)
	log.SetOutput(LogWriter)
	return rotating, LogWriter
}
