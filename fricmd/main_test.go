package fricmd

import (
	"os"
	"testing"

	"github.com/arloliu/go-fri/logger"
)

func TestMain(m *testing.M) {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		level = logger.InfoLevel
	}

	logger.SetLevel(level)

	os.Exit(m.Run())
}
