package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"facegate/config"

	log "github.com/sirupsen/logrus"
)

// Init configures the global logrus logger from cfg. File logging problems are
// reported and the logger falls back to stdout only.
func Init(cfg config.LogConfig) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.Warnf("Invalid log level '%s', defaulting to 'info': %v", cfg.Level, err)
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(formatter(cfg.Format))

	writers := []io.Writer{os.Stdout}
	if cfg.File != "" {
		if file, err := openLogFile(cfg.File); err != nil {
			log.Errorf("Failed to open log file '%s': %v", cfg.File, err)
		} else {
			writers = append(writers, file)
			log.Infof("Logging additionally to file: %s", cfg.File)
		}
	}
	log.SetOutput(io.MultiWriter(writers...))

	log.WithField("level", level.String()).Debug("Logger initialized")
	return nil
}

func formatter(format string) log.Formatter {
	if strings.EqualFold(format, "json") {
		return &log.JSONFormatter{}
	}
	return &log.TextFormatter{FullTimestamp: true}
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0660)
}
