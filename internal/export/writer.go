package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Writer delivers rendered artifacts somewhere.
type Writer interface {
	Write(a Artifact) error
	Close() error
}

// StdoutWriter writes artifacts to a stream, one after another.
type StdoutWriter struct {
	out io.Writer
	mu  sync.Mutex
}

func NewStdoutWriter(out io.Writer) *StdoutWriter {
	return &StdoutWriter{out: out}
}

func (w *StdoutWriter) Write(a Artifact) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data := a.Data
	if len(data) > 0 && data[len(data)-1] != '\n' {
		data = append(data[:len(data):len(data)], '\n')
	}
	_, err := w.out.Write(data)
	return err
}

func (w *StdoutWriter) Close() error {
	return nil
}

// FileWriter writes each artifact to its own file in a directory.
type FileWriter struct {
	dir  string
	name string
	mu   sync.Mutex
}

// NewFileWriter creates dir if needed. A non-empty name overrides the file
// name derived from the artifact.
func NewFileWriter(dir, name string) (*FileWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &FileWriter{dir: dir, name: name}, nil
}

func (w *FileWriter) Write(a Artifact) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	name := w.name
	if name == "" {
		name = a.FileName()
	}
	if err := os.WriteFile(filepath.Join(w.dir, name), a.Data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func (w *FileWriter) Close() error {
	return nil
}

// MultiWriter writes to several destinations in order.
type MultiWriter struct {
	writers []Writer
}

func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

func (w *MultiWriter) Write(a Artifact) error {
	for _, writer := range w.writers {
		if err := writer.Write(a); err != nil {
			return err
		}
	}
	return nil
}

func (w *MultiWriter) Close() error {
	for _, writer := range w.writers {
		if err := writer.Close(); err != nil {
			return err
		}
	}
	return nil
}
