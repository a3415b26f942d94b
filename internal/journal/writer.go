package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// RawWriter persists structured per-cycle entries independent of the
// indexed query layer, mirroring the teacher's
// internal/analytics/journal.Writer: a thin append-only JSONL sink that
// operators can tail without going through the Store's query surface.
type RawWriter interface {
	Write(entry CycleLog) error
}

// WriterFunc adapts a function to RawWriter.
type WriterFunc func(CycleLog) error

func (f WriterFunc) Write(entry CycleLog) error {
	if f == nil {
		return nil
	}
	return f(entry)
}

// NopWriter discards every entry.
func NopWriter() RawWriter { return WriterFunc(func(CycleLog) error { return nil }) }

// FileRawWriter appends one JSON line per cycle to a single file.
type FileRawWriter struct {
	path string
	mu   sync.Mutex
}

// NewFileRawWriter creates a writer appending to path.
func NewFileRawWriter(path string) (*FileRawWriter, error) {
	if path == "" {
		return nil, fmt.Errorf("journal raw writer: path required")
	}
	return &FileRawWriter{path: path}, nil
}

// Write appends entry as a JSON line.
func (w *FileRawWriter) Write(entry CycleLog) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cycle log: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal raw file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			fmt.Fprintf(os.Stderr, "journal: close %s: %v\n", w.path, cerr)
		}
	}()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append cycle log: %w", err)
	}
	return nil
}
