package log

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger *logrus.Logger

func init() {
	logger = logrus.New()
	logger.SetOutput(os.Stderr)
	if err := SetLevel(os.Getenv("LOG_LEVEL")); err != nil {
		logger.SetLevel(logrus.InfoLevel)
	}
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

// SetLevel changes the shared logger level. An empty level means info.
func SetLevel(level string) error {
	if strings.TrimSpace(level) == "" {
		logger.SetLevel(logrus.InfoLevel)
		return nil
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", level)
	}
	logger.SetLevel(lvl)
	return nil
}

// GetLogger returns the shared logger instance
func GetLogger() *logrus.Logger {
	return logger
}
