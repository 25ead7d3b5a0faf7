// Package log provides the process-wide debug sink and the leveled loggers built on top of it.
package log

import (
	"io"
	"log"
	"os"
	"sync"
)

// Sink collects log output. Until a file is configured, writes are buffered in
// memory so early startup messages survive; once a file is set the buffer is
// flushed into it. An empty path switches the sink to discard mode.
type Sink struct {
	mu      sync.Mutex
	file    *os.File
	buffer  []byte
	discard bool
}

var (
	globalSink = &Sink{}
	stdLogger  = log.New(globalSink, "", log.LstdFlags|log.Lmicroseconds)
)

// Write implements io.Writer.
func (s *Sink) Write(p []byte) (n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.discard {
		return len(p), nil
	}

	if s.file != nil {
		n, err = s.file.Write(p)
		_ = s.file.Sync()
		return n, err
	}

	// p may be reused by the caller
	b := make([]byte, len(p))
	copy(b, p)
	s.buffer = append(s.buffer, b...)
	return len(p), nil
}

// Sync implements zapcore.WriteSyncer.
func (s *Sink) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	return s.file.Sync()
}

// Writer returns the global sink for loggers that need an io.Writer.
func Writer() io.Writer {
	return globalSink
}

// SetFile points the sink at path, creating the file if needed.
// If path is empty, buffered and future output is discarded.
func SetFile(path string) error {
	globalSink.mu.Lock()
	defer globalSink.mu.Unlock()

	if globalSink.file != nil {
		_ = globalSink.file.Close()
		globalSink.file = nil
	}

	if path == "" {
		globalSink.discard = true
		globalSink.buffer = nil
		return nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec
	if err != nil {
		globalSink.discard = true
		globalSink.buffer = nil
		return err
	}

	globalSink.file = f
	globalSink.discard = false

	if len(globalSink.buffer) > 0 {
		_, _ = f.Write(globalSink.buffer)
		_ = f.Sync()
		globalSink.buffer = nil
	}

	return nil
}

// Printf writes a formatted trace line.
func Printf(format string, args ...any) {
	stdLogger.Printf(format, args...)
}

// Println writes a trace line.
func Println(v ...any) {
	stdLogger.Println(v...)
}

// Close closes the log file if open.
func Close() error {
	globalSink.mu.Lock()
	defer globalSink.mu.Unlock()

	if globalSink.file == nil {
		return nil
	}

	err := globalSink.file.Close()
	globalSink.file = nil
	return err
}
