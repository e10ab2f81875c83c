package sink

import (
	"encoding/json"
	"errors"
	"os"
	"sync"
)

// FileWriter writes snapshots, commands and link events to JSONL files.
type FileWriter struct {
	mu       sync.Mutex
	snapFile *os.File
	cmdFile  *os.File
	linkFile *os.File
	snapEnc  *json.Encoder
	cmdEnc   *json.Encoder
	linkEnc  *json.Encoder
}

// NewFileWriter creates a FileWriter. commandPath or linkPath may be empty
// to skip those logs.
func NewFileWriter(snapshotPath, commandPath, linkPath string) (*FileWriter, error) {
	sf, err := os.Create(snapshotPath)
	if err != nil {
		return nil, err
	}
	fw := &FileWriter{snapFile: sf, snapEnc: json.NewEncoder(sf)}
	if commandPath != "" {
		cf, err := os.Create(commandPath)
		if err != nil {
			fw.Close()
			return nil, err
		}
		fw.cmdFile = cf
		fw.cmdEnc = json.NewEncoder(cf)
	}
	if linkPath != "" {
		lf, err := os.Create(linkPath)
		if err != nil {
			fw.Close()
			return nil, err
		}
		fw.linkFile = lf
		fw.linkEnc = json.NewEncoder(lf)
	}
	return fw, nil
}

// WriteSnapshot logs a single snapshot row.
func (f *FileWriter) WriteSnapshot(row SnapshotRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapEnc.Encode(row)
}

// WriteSnapshots logs multiple snapshot rows.
func (f *FileWriter) WriteSnapshots(rows []SnapshotRow) error {
	for _, r := range rows {
		if err := f.WriteSnapshot(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteCommand logs a command row, if enabled.
func (f *FileWriter) WriteCommand(row CommandRow) error {
	if f.cmdEnc == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cmdEnc.Encode(row)
}

// WriteLink logs a link row, if enabled.
func (f *FileWriter) WriteLink(row LinkRow) error {
	if f.linkEnc == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.linkEnc.Encode(row)
}

// Close closes any underlying files.
func (f *FileWriter) Close() error {
	var errs []error
	for _, file := range []*os.File{f.snapFile, f.cmdFile, f.linkFile} {
		if file != nil {
			errs = append(errs, file.Close())
		}
	}
	return errors.Join(errs...)
}
