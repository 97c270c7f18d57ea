package bulkload

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pierrec/lz4/v4"

	"github.com/ixrow/storage-core/server/innodb/kerrors"
	"github.com/ixrow/storage-core/server/innodb/recordcodec"
)

// spillRun writes a sorted batch to a compressed scratch file as one run
// (spec §4.5: "write the sorted batch to a temporary file as one run"),
// each row framed by a 4-byte length prefix so runReader (opened by openRun) can stream it back
// one record at a time during merge.
func spillRun(dir, name string, seq int, rows []recordcodec.Record, layout *recordcodec.Layout) (string, error) {
	path := runFileName(dir, name, "run", seq)
	f, err := os.Create(path)
	if err != nil {
		return "", kerrors.Wrap(kerrors.TempFileWriteFail, err)
	}
	defer f.Close()

	zw := lz4.NewWriter(f)

	for _, row := range rows {
		if err := writeFrame(zw, recordcodec.Encode(layout, row)); err != nil {
			return "", err
		}
	}
	if err := zw.Close(); err != nil {
		return "", kerrors.Wrap(kerrors.TempFileWriteFail, err)
	}
	return path, nil
}

// writeFrame writes one length-prefixed record frame.
func writeFrame(w io.Writer, buf []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(buf)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return kerrors.Wrap(kerrors.TempFileWriteFail, err)
	}
	if _, err := w.Write(buf); err != nil {
		return kerrors.Wrap(kerrors.TempFileWriteFail, err)
	}
	return nil
}

func runFileName(dir, name, kind string, seq int) string {
	return filepath.Join(dir, fmt.Sprintf("%s.%s-%04d.lz4", filepath.Base(name), kind, seq))
}

// runReader streams a spilled run's rows back in the order they were
// written (already key-sorted, since spillRun only ever receives sorted
// batches or sorted merge output).
type runReader struct {
	f  *os.File
	zr *lz4.Reader
}

func openRun(path string) (*runReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.TempFileWriteFail, err)
	}
	return &runReader{f: f, zr: lz4.NewReader(f)}, nil
}

// next returns the next record, or ok=false at clean end of run.
func (r *runReader) next(layout *recordcodec.Layout) (recordcodec.Record, bool, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r.zr, lenBuf[:]); err != nil {
		if err == io.EOF {
			return recordcodec.Record{}, false, nil
		}
		return recordcodec.Record{}, false, kerrors.Wrap(kerrors.Corruption, err)
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.zr, buf); err != nil {
		return recordcodec.Record{}, false, kerrors.Wrap(kerrors.Corruption, err)
	}
	return recordcodec.Decode(layout, buf), true, nil
}

func (r *runReader) close() error {
	return r.f.Close()
}
