package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// JSONStdoutWriter prints every row as one JSON object per line.
type JSONStdoutWriter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout}
}

func (w *JSONStdoutWriter) emit(kind string, v any) error {
	data, err := json.Marshal(map[string]any{"type": kind, "row": v})
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}

// WriteSnapshot outputs a snapshot row in JSON format.
func (w *JSONStdoutWriter) WriteSnapshot(row SnapshotRow) error {
	return w.emit("snapshot", row)
}

// WriteCommand outputs a command row in JSON format.
func (w *JSONStdoutWriter) WriteCommand(row CommandRow) error {
	return w.emit("command", row)
}

// WriteLink outputs a link row in JSON format.
func (w *JSONStdoutWriter) WriteLink(row LinkRow) error {
	return w.emit("link", row)
}
