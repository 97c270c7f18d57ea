package fk

import (
	"encoding/binary"

	"github.com/OneOfOne/xxhash"
	"github.com/ixrow/storage-core/server/innodb/cursor"
	"github.com/ixrow/storage-core/server/innodb/recordcodec"
)

// scanPrefix implements spec §4.3's "detail floor": position a cursor on
// the referenced index with GE search, then iterate while the leading
// columns equal the probe prefix, following leaf sibling links with at
// most one leaf latched at a time (each leaf is unlatched before the next
// one is latched).
func scanPrefix(tree *cursor.Tree, prefix []recordcodec.Value) []cursor.Entry {
	pos := tree.Descend(prefix, cursor.ModeGE, false)
	pos.Savepoints.ReleaseAll()

	leaf := pos.Leaf
	idx := pos.Index
	var matches []cursor.Entry
	for {
		entries := cursor.NodeEntries(leaf)
		for ; idx < len(entries); idx++ {
			if !keyHasPrefix(entries[idx].Key, prefix) {
				cursor.UnlockShared(leaf)
				return matches
			}
			matches = append(matches, entries[idx])
		}
		next := leaf.Next()
		cursor.UnlockShared(leaf)
		if next == nil {
			return matches
		}
		cursor.LockShared(next)
		leaf = next
		idx = 0
	}
}

func keyHasPrefix(key, prefix []recordcodec.Value) bool {
	if len(key) < len(prefix) {
		return false
	}
	for i := range prefix {
		if recordcodec.Compare(key[i], prefix[i]) != 0 {
			return false
		}
	}
	return true
}

// resourceTriplet maps a (table, key) pair onto the lock manager's
// (tableID, pageID, rowID) addressing scheme, since the FK checker only
// knows logical table names and column values, never physical page
// addresses (spec.md §1 excludes physical layout from this engine).
func resourceTriplet(table string, key []recordcodec.Value) (tableID, pageID uint32, rowID uint64) {
	h := xxhash.New64()
	h.Write([]byte(table))
	for _, v := range key {
		h.Write(valueBytes(v))
	}
	sum := h.Sum64()
	return uint32(sum), uint32(sum >> 32), sum
}

func valueBytes(v recordcodec.Value) []byte {
	switch v.Kind {
	case recordcodec.KindInt:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, uint64(v.Int))
		return b
	case recordcodec.KindDecimal:
		return []byte(v.Decimal.String())
	default:
		return v.Bytes
	}
}
