package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewFileLogger returns a logger writing to a size-rotated file at path.
// The returned closer flushes and closes the file.
func NewFileLogger(path string, maxSizeMB int) (*log.Logger, io.Closer, error) {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	w := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: 3,
		MaxAge:     14,
	}
	return log.New(w, "", log.LstdFlags|log.Lmicroseconds), w, nil
}
