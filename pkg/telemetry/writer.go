package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Writer appends records to a JSONL file under a base directory, one file
// per day. Each record is serialized fully before the single write call, so
// a record is never partially visible.
type Writer struct {
	baseDir string

	mu      sync.Mutex
	file    *os.File
	curName string
}

// NewWriter creates a JSONL writer rooted at baseDir.
func NewWriter(baseDir string) (*Writer, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}
	return &Writer{baseDir: baseDir}, nil
}

// Emit appends one record.
func (w *Writer) Emit(record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	file, err := w.fileLocked(record.Timestamp)
	if err != nil {
		return err
	}
	_, err = file.Write(data)
	return err
}

// Close releases the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *Writer) fileLocked(ts time.Time) (*os.File, error) {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	name := fmt.Sprintf("runs-%s.jsonl", ts.UTC().Format("2006-01-02"))
	if w.file != nil && w.curName == name {
		return w.file, nil
	}
	if w.file != nil {
		_ = w.file.Close()
	}
	file, err := os.OpenFile(filepath.Join(w.baseDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	w.file = file
	w.curName = name
	return file, nil
}
