package onlinelog

import (
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/OneOfOne/xxhash"
	"github.com/ixrow/storage-core/server/innodb/kerrors"
)

// Log is the shared block-writer mechanics behind both log variants (spec
// §4.4 "Log storage contract"): an in-memory head that appenders write
// into under a single mutex, flushed to an on-disk tail of fixed-size
// blocks once it fills. It adapts the teacher's
// manager.RedoLogManager file-append pattern (buffer, flush-on-full,
// fsync) to the build log's block/checksum framing instead of the redo
// log's fixed binary header.
type Log struct {
	mu sync.Mutex

	file      *os.File
	blockSize int
	maxSize   int64

	head        []byte
	onDiskBytes int64
}

// newLog opens (creating/truncating) the backing file for a build log.
// blockSize is the fixed on-disk block size; maxSize bounds total on-disk
// bytes before ONLINE_LOG_TOO_BIG aborts the ALTER (spec §4.4).
func newLog(path string, blockSize int, maxSize int64) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.TempFileWriteFail, err)
	}
	return &Log{file: f, blockSize: blockSize, maxSize: maxSize}, nil
}

// appendRecord adds one already-encoded, self-delimiting record to the
// head, flushing the current head first if the record would not fit.
func (l *Log) appendRecord(rec []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(rec) > l.blockSize {
		return kerrors.New(kerrors.TooBigRecord)
	}
	if len(l.head)+len(rec) > l.blockSize {
		if err := l.flushHeadLocked(); err != nil {
			return err
		}
	}
	l.head = append(l.head, rec...)
	return nil
}

// flushHeadLocked pads the head out to a fixed-size block (the unused
// tail bytes are zero, which doubles as the "trailing null byte marks
// end-of-list" sentinel spec §4.4 names), checksums it with xxhash, and
// appends both to the file.
func (l *Log) flushHeadLocked() error {
	if len(l.head) == 0 {
		return nil
	}
	block := make([]byte, l.blockSize)
	copy(block, l.head)

	h := xxhash.New64()
	h.Write(block)
	trailer := make([]byte, 8)
	binary.BigEndian.PutUint64(trailer, h.Sum64())

	if _, err := l.file.Write(block); err != nil {
		return kerrors.Wrap(kerrors.TempFileWriteFail, err)
	}
	if _, err := l.file.Write(trailer); err != nil {
		return kerrors.Wrap(kerrors.TempFileWriteFail, err)
	}
	if err := l.file.Sync(); err != nil {
		return kerrors.Wrap(kerrors.TempFileWriteFail, err)
	}

	l.onDiskBytes += int64(l.blockSize + 8)
	l.head = l.head[:0]

	if l.maxSize > 0 && l.onDiskBytes > l.maxSize {
		return kerrors.New(kerrors.OnlineLogTooBig)
	}
	return nil
}

// flush forces the current head to disk even if it is not full.
func (l *Log) flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushHeadLocked()
}

// close flushes any pending head and closes the backing file.
func (l *Log) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.flushHeadLocked(); err != nil {
		return err
	}
	return l.file.Close()
}

// readBlocks returns every block written so far, flushed blocks read back
// from disk (with checksum verification) plus the in-memory head as a
// final, zero-padded "virtual" block. This is what the applier's
// catch-up phase scans (spec §4.4's "periodically re-reads ... to observe
// new blocks"); it is finished once it has consumed every block returned
// here and head-bytes equals tail-bytes (i.e. a subsequent call returns no
// new data).
func (l *Log) readBlocks() ([][]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return nil, kerrors.Wrap(kerrors.Corruption, err)
	}

	var blocks [][]byte
	buf := make([]byte, l.blockSize+8)
	for {
		n, err := io.ReadFull(l.file, buf)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, kerrors.Wrap(kerrors.Corruption, err)
		}
		block := append([]byte(nil), buf[:l.blockSize]...)
		trailer := buf[l.blockSize:n]
		h := xxhash.New64()
		h.Write(block)
		if binary.BigEndian.Uint64(trailer) != h.Sum64() {
			return nil, kerrors.New(kerrors.Corruption)
		}
		blocks = append(blocks, block)
	}

	if _, err := l.file.Seek(0, io.SeekEnd); err != nil {
		return nil, kerrors.Wrap(kerrors.Corruption, err)
	}

	if len(l.head) > 0 {
		pending := make([]byte, l.blockSize)
		copy(pending, l.head)
		blocks = append(blocks, pending)
	}
	return blocks, nil
}
