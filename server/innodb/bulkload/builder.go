package bulkload

import (
	"context"
	"math"
	"sort"

	"github.com/ixrow/storage-core/logger"
	"github.com/ixrow/storage-core/server/innodb/clust"
	"github.com/ixrow/storage-core/server/innodb/cursor"
	"github.com/ixrow/storage-core/server/innodb/kerrors"
	"github.com/ixrow/storage-core/server/innodb/mvcc"
	"github.com/ixrow/storage-core/server/innodb/recordcodec"
)

// indexBuild accumulates one IndexDef's in-flight sort batch and the runs
// spilled so far.
type indexBuild struct {
	def      IndexDef
	pending  []recordcodec.Record
	firstRun []recordcodec.Record // retained sorted batch while still the only one
	runs     []string
	batches  int
}

// Build runs the clustered-index scan once and populates every index in
// defs (spec §4.5). source.Layout is used both to reconstruct the visible
// version of each row from undo and to read the clustered row's PK.
func Build(source *clust.Index, view *mvcc.ReadView, undo *mvcc.UndoLog, defs []IndexDef, opts Options) (map[string]*cursor.Tree, int64, error) {
	if opts.BufferBound < 0 {
		return nil, 0, kerrors.New(kerrors.OutOfMemory)
	}
	if opts.BufferBound == 0 {
		opts.BufferBound = DefaultBufferBound
	}
	ctx := opts.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	builds := make([]*indexBuild, len(defs))
	for i, def := range defs {
		builds[i] = &indexBuild{def: def}
	}

	var rowsScanned int64
	report := func(mergePasses, mergeTotal int) {
		if opts.Reporter == nil {
			return
		}
		opts.Reporter(Progress{
			RowsScanned:      rowsScanned,
			RowsEstimated:    opts.EstimatedRows,
			MergePasses:      mergePasses,
			MergePassesTotal: mergeTotal,
		})
	}

	leaf := source.Tree.FirstLeaf()
	for leaf != nil {
		cursor.LockShared(leaf)
		entries := append([]cursor.Entry(nil), cursor.NodeEntries(leaf)...)
		next := leaf.Next()
		cursor.UnlockShared(leaf)

		for _, e := range entries {
			select {
			case <-ctx.Done():
				return nil, rowsScanned, kerrors.New(kerrors.Interrupted)
			default:
			}

			rowsScanned++
			visible, found, err := mvcc.VisibleVersion(source.Layout, e.Record, view, undo)
			if err != nil {
				return nil, rowsScanned, err
			}
			if !found || visible.DeleteMarked {
				continue
			}

			for _, ib := range builds {
				newRow, err := ib.def.Translate(visible)
				if err != nil {
					return nil, rowsScanned, kerrors.Wrap(kerrors.ComputeValueFailed, err)
				}
				if err := checkNotNull(ib.def.Layout, newRow); err != nil {
					return nil, rowsScanned, err
				}
				ib.pending = append(ib.pending, newRow)
				if len(ib.pending) >= opts.BufferBound {
					if err := finalizeBatch(opts.ScratchDir, ib); err != nil {
						return nil, rowsScanned, err
					}
				}
			}
		}
		report(0, 0)
		leaf = next
	}

	for _, ib := range builds {
		if len(ib.pending) > 0 {
			if err := finalizeBatch(opts.ScratchDir, ib); err != nil {
				return nil, rowsScanned, err
			}
		}
	}

	result := make(map[string]*cursor.Tree, len(builds))
	for _, ib := range builds {
		order := ib.def.Order
		if order == 0 {
			order = cursor.DefaultOrder
		}
		fill := ib.def.FillFrac
		if fill == 0 {
			fill = DefaultFillFraction
		}

		var rows []recordcodec.Record
		if ib.batches <= 1 {
			rows = ib.firstRun
		} else {
			mergeTotal := int(math.Ceil(math.Log2(float64(ib.batches))))
			runs := ib.runs
			pass := 0
			for len(runs) > 1 {
				var err error
				runs, err = mergePass(opts.ScratchDir, ib.def.Name, pass, runs, ib.def.Layout, ib.def.Unique)
				if err != nil {
					return nil, rowsScanned, err
				}
				pass++
				report(pass, mergeTotal)
			}
			var err error
			rows, err = drainRun(runs[0], ib.def.Layout)
			if err != nil {
				return nil, rowsScanned, err
			}
		}

		entries := make([]cursor.Entry, len(rows))
		for i, row := range rows {
			entries[i] = cursor.Entry{Key: row.PrimaryKey(ib.def.Layout), Record: row}
		}
		result[ib.def.Name] = cursor.BuildFromSorted(order, entries, fill)
	}

	return result, rowsScanned, nil
}

func checkNotNull(layout *recordcodec.Layout, row recordcodec.Record) error {
	for i, col := range layout.Columns {
		if !col.Nullable && row.Values[i].IsNull() {
			return kerrors.New(kerrors.InvalidNull)
		}
	}
	return nil
}

// finalizeBatch sorts ib.pending and either retains it in memory (if it is
// still the only batch produced so far) or spills it to disk alongside any
// previously retained batch, per spec §4.5's "if only one batch was
// produced ... bulk-insert directly; otherwise write ... as one run".
func finalizeBatch(dir string, ib *indexBuild) error {
	rows := ib.pending
	ib.pending = nil
	sort.Slice(rows, func(i, j int) bool {
		return recordcodec.CompareKeys(rows[i].PrimaryKey(ib.def.Layout), rows[j].PrimaryKey(ib.def.Layout)) < 0
	})
	if ib.def.Unique {
		for i := 1; i < len(rows); i++ {
			if recordcodec.CompareKeys(rows[i-1].PrimaryKey(ib.def.Layout), rows[i].PrimaryKey(ib.def.Layout)) == 0 {
				return kerrors.Newf(kerrors.DuplicateKey, ib.def.Name, "")
			}
		}
	}

	if ib.batches == 0 {
		ib.firstRun = rows
		ib.batches++
		return nil
	}
	if ib.firstRun != nil {
		path, err := spillRun(dir, ib.def.Name, len(ib.runs), ib.firstRun, ib.def.Layout)
		if err != nil {
			return err
		}
		ib.runs = append(ib.runs, path)
		ib.firstRun = nil
	}
	path, err := spillRun(dir, ib.def.Name, len(ib.runs), rows, ib.def.Layout)
	if err != nil {
		return err
	}
	logger.Debugf("bulkload: spilled run %s for index %s (%d rows)", path, ib.def.Name, len(rows))
	ib.runs = append(ib.runs, path)
	ib.batches++
	return nil
}

func drainRun(path string, layout *recordcodec.Layout) ([]recordcodec.Record, error) {
	r, err := openRun(path)
	if err != nil {
		return nil, err
	}
	defer r.close()

	var rows []recordcodec.Record
	for {
		rec, ok, err := r.next(layout)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		rows = append(rows, rec)
	}
	return rows, nil
}
