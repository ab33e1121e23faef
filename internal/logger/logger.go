package logger

import (
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	logger *logrus.Logger
	once   sync.Once
	mu     sync.Mutex
)

// Init creates the shared logger with the defaults: JSON output at info level.
func Init() {
	mu.Lock()
	defer mu.Unlock()
	logger = New("info", "json")
}

func Get() *logrus.Logger {
	once.Do(func() {
		mu.Lock()
		ready := logger != nil
		mu.Unlock()
		if !ready {
			Init()
		}
	})
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// Configure applies level and format to the shared logger. Unknown levels
// fall back to info; any format other than "text" produces JSON.
func Configure(level, format string) *logrus.Logger {
	log := Get()
	apply(log, level, format)
	return log
}

// New returns a standalone logger writing to stderr.
func New(level, format string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	apply(log, level, format)
	return log
}

func apply(log *logrus.Logger, level, format string) {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	if strings.EqualFold(strings.TrimSpace(format), "text") {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		return
	}
	log.SetFormatter(&logrus.JSONFormatter{})
}
