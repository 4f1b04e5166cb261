package logger

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/sudo-init-do/agrihub/internal/config"
)

var logger *logrus.Logger

func init() {
	logger = logrus.New()
}

func Init(config *config.Config) (err error) {
	level, err := logrus.ParseLevel(config.LogLevel)
	if err != nil {
		return
	}
	logger.SetLevel(level)
	logger.SetOutput(os.Stdout)

	formatter := &logrus.TextFormatter{
		FullTimestamp: true,
	}
	logger.SetFormatter(formatter)

	return nil
}

func NewSublogger(tag string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{"module": "agrihub." + tag})
}

// L returns the root logger, for libraries that want a *logrus.Logger.
func L() *logrus.Logger {
	return logger
}
