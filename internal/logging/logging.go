package logging

import (
	"log"
	"os"
	"sync"
	"sync/atomic"
)

// DebugEnv enables DevLog output when set to 1.
const DebugEnv = "SITESMITH_DEBUG"

var (
	mu     sync.RWMutex
	shared = log.New(os.Stderr, "sitesmith: ", log.LstdFlags)

	devMode atomic.Bool
)

func init() {
	devMode.Store(os.Getenv(DebugEnv) == "1")
}

// SetDevMode turns DevLog output on or off.
func SetDevMode(on bool) {
	devMode.Store(on)
}

// Install points the package helpers at l, usually the rotating file logger.
func Install(l *log.Logger) {
	if l == nil {
		return
	}
	mu.Lock()
	shared = l
	mu.Unlock()
}

// Shared returns the logger the package helpers write to.
func Shared() *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return shared
}

// DevLog logs only in debug mode.
func DevLog(format string, args ...interface{}) {
	if devMode.Load() {
		Shared().Printf("[DEV] "+format, args...)
	}
}

// ErrorLog always logs.
func ErrorLog(format string, args ...interface{}) {
	Shared().Printf("[ERROR] "+format, args...)
}
