package mtr

import (
	"encoding/binary"
	"os"
	"sync"
)

// FileRedoSink is a RedoSink backed by an append-only file, adapted from
// the teacher's redo_log_manager.go buffered-append-then-fsync discipline:
// one record is written as (lsn, count, then per-record type/space/page/len
// fields) and the file is synced after every Write call.
type FileRedoSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileRedoSink opens (creating if needed) a redo file at path.
func NewFileRedoSink(path string) (*FileRedoSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileRedoSink{file: f}, nil
}

// Write implements RedoSink.
func (s *FileRedoSink) Write(lsn int64, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := binary.Write(s.file, binary.BigEndian, lsn); err != nil {
		return err
	}
	if err := binary.Write(s.file, binary.BigEndian, uint32(len(records))); err != nil {
		return err
	}
	for _, rec := range records {
		if err := binary.Write(s.file, binary.BigEndian, rec.Type); err != nil {
			return err
		}
		if err := binary.Write(s.file, binary.BigEndian, rec.SpaceID); err != nil {
			return err
		}
		if err := binary.Write(s.file, binary.BigEndian, rec.PageNo); err != nil {
			return err
		}
		if err := binary.Write(s.file, binary.BigEndian, uint32(len(rec.Payload))); err != nil {
			return err
		}
		if _, err := s.file.Write(rec.Payload); err != nil {
			return err
		}
	}
	return s.file.Sync()
}

// Close closes the underlying file.
func (s *FileRedoSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// NullRedoSink discards records; useful for tests and for L8/L9 workers
// that do not themselves need redo (their mutations are re-derivable from
// the scan they're driven by).
type NullRedoSink struct{}

func (NullRedoSink) Write(int64, []Record) error { return nil }
