package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// ConsoleLogger writes operational log lines to a file and to stderr.
// Stdout is owned by the MCP stdio transport and must stay clean.
type ConsoleLogger struct {
	file   *os.File
	logger *log.Logger
	mu     sync.Mutex
}

// NewConsoleLogger creates a logger appending to logPath and mirroring to
// stderr.
func NewConsoleLogger(logPath string) (*ConsoleLogger, error) {
	logDir := filepath.Dir(logPath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	multiWriter := io.MultiWriter(file, os.Stderr)
	logger := log.New(multiWriter, "", log.LstdFlags)

	return &ConsoleLogger{
		file:   file,
		logger: logger,
	}, nil
}

// Log writes a formatted message to the log file and stderr.
func (cl *ConsoleLogger) Log(format string, v ...interface{}) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.logger.Printf(format, v...)
}

// GetWriter returns the io.Writer used by the logger.
func (cl *ConsoleLogger) GetWriter() io.Writer {
	return cl.logger.Writer()
}

// Close closes the log file.
func (cl *ConsoleLogger) Close() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.file.Close()
}
