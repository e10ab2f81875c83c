package sink

import (
	"errors"
	"io"
)

// MultiWriter fans rows out to multiple writers. Every writer is attempted;
// failures are joined.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a new MultiWriter.
func NewMultiWriter(ws ...Writer) *MultiWriter {
	return &MultiWriter{writers: ws}
}

// Len returns the number of writers.
func (mw *MultiWriter) Len() int { return len(mw.writers) }

// WriteSnapshot sends a snapshot row to all writers.
func (mw *MultiWriter) WriteSnapshot(row SnapshotRow) error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.WriteSnapshot(row); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteSnapshots sends multiple rows to all writers, using batch if supported.
func (mw *MultiWriter) WriteSnapshots(rows []SnapshotRow) error {
	var errs []error
	for _, w := range mw.writers {
		if bw, ok := w.(batchSnapshotWriter); ok {
			if err := bw.WriteSnapshots(rows); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		for _, r := range rows {
			if err := w.WriteSnapshot(r); err != nil {
				errs = append(errs, err)
				break
			}
		}
	}
	return errors.Join(errs...)
}

// WriteCommand sends a command row to all writers.
func (mw *MultiWriter) WriteCommand(row CommandRow) error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.WriteCommand(row); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteLink sends a link row to all writers.
func (mw *MultiWriter) WriteLink(row LinkRow) error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.WriteLink(row); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every writer that implements io.Closer.
func (mw *MultiWriter) Close() error {
	var errs []error
	for _, w := range mw.writers {
		if c, ok := w.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
