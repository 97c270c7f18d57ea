package bulkload

import (
	"fmt"
	"os"

	"github.com/pierrec/lz4/v4"

	"github.com/ixrow/storage-core/server/innodb/kerrors"
	"github.com/ixrow/storage-core/server/innodb/recordcodec"
)

// mergePass runs one run-doubling pass over runs, merging them pairwise
// (spec §4.5: "merge runs pairwise until a single run remains; each merge
// pass doubles run size"). An odd run out carries over to the next pass
// unmerged.
func mergePass(dir, name string, pass int, runs []string, layout *recordcodec.Layout, unique bool) ([]string, error) {
	var out []string
	seq := 0
	for i := 0; i+1 < len(runs); i += 2 {
		merged, err := mergeTwoRuns(dir, name, pass, seq, runs[i], runs[i+1], layout, unique)
		if err != nil {
			return nil, err
		}
		seq++
		out = append(out, merged)
	}
	if len(runs)%2 == 1 {
		out = append(out, runs[len(runs)-1])
	}
	return out, nil
}

func mergeTwoRuns(dir, name string, pass, seq int, aPath, bPath string, layout *recordcodec.Layout, unique bool) (string, error) {
	ra, err := openRun(aPath)
	if err != nil {
		return "", err
	}
	defer ra.close()
	rb, err := openRun(bPath)
	if err != nil {
		return "", err
	}
	defer rb.close()

	outPath, err := spillMerged(dir, name, pass, seq, layout, ra, rb, unique)
	if err != nil {
		return "", err
	}
	os.Remove(aPath)
	os.Remove(bPath)
	return outPath, nil
}

// spillMerged streams ra and rb in key order into a fresh run file,
// failing with DUPLICATE_KEY the moment two rows tie on a unique index's
// key (spec §4.5: "if duplicates appear in a UNIQUE index, fail").
func spillMerged(dir, name string, pass, seq int, layout *recordcodec.Layout, ra, rb *runReader, unique bool) (string, error) {
	path := runFileName(dir, name, fmt.Sprintf("merge%d", pass), seq)
	f, err := os.Create(path)
	if err != nil {
		return "", kerrors.Wrap(kerrors.TempFileWriteFail, err)
	}
	defer f.Close()

	zw := lz4.NewWriter(f)

	write := func(rec recordcodec.Record) error {
		return writeFrame(zw, recordcodec.Encode(layout, rec))
	}

	rowA, okA, err := ra.next(layout)
	if err != nil {
		return "", err
	}
	rowB, okB, err := rb.next(layout)
	if err != nil {
		return "", err
	}

	var lastKey []recordcodec.Value
	haveLast := false
	emit := func(rec recordcodec.Record) error {
		key := rec.PrimaryKey(layout)
		if unique && haveLast && recordcodec.CompareKeys(lastKey, key) == 0 {
			return kerrors.Newf(kerrors.DuplicateKey, name, "")
		}
		lastKey = key
		haveLast = true
		return write(rec)
	}

	for okA && okB {
		c := recordcodec.CompareKeys(rowA.PrimaryKey(layout), rowB.PrimaryKey(layout))
		switch {
		case c <= 0:
			if err := emit(rowA); err != nil {
				return "", err
			}
			rowA, okA, err = ra.next(layout)
		default:
			if err := emit(rowB); err != nil {
				return "", err
			}
			rowB, okB, err = rb.next(layout)
		}
		if err != nil {
			return "", err
		}
	}
	for okA {
		if err := emit(rowA); err != nil {
			return "", err
		}
		rowA, okA, err = ra.next(layout)
		if err != nil {
			return "", err
		}
	}
	for okB {
		if err := emit(rowB); err != nil {
			return "", err
		}
		rowB, okB, err = rb.next(layout)
		if err != nil {
			return "", err
		}
	}
	if err := zw.Close(); err != nil {
		return "", kerrors.Wrap(kerrors.TempFileWriteFail, err)
	}
	return path, nil
}
