package recordcodec

import (
	"bytes"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// DefaultCollator is the collation-aware comparator used whenever a
// collation is not otherwise specified; English is used as a stand-in for
// "whatever the column's configured collation is" since collation
// selection itself lives in the SQL layer, out of scope here.
var DefaultCollator = collate.New(language.English)

// Compare orders two Values the way a B-tree key comparison must: integers
// and decimals numerically, byte/string columns collation-aware via
// DefaultCollator (spec P2: "re-derived ... equal under the configured
// collation"). NULL sorts before any non-NULL value.
func Compare(a, b Value) int {
	if a.IsNull() && b.IsNull() {
		return 0
	}
	if a.IsNull() {
		return -1
	}
	if b.IsNull() {
		return 1
	}
	switch a.Kind {
	case KindInt:
		switch {
		case a.Int < b.Int:
			return -1
		case a.Int > b.Int:
			return 1
		default:
			return 0
		}
	case KindDecimal:
		return a.Decimal.Cmp(b.Decimal)
	case KindBytes:
		return DefaultCollator.Compare(a.Bytes, b.Bytes)
	default:
		return bytes.Compare(a.Bytes, b.Bytes)
	}
}

// CompareKeys compares two key tuples lexicographically, column by column.
func CompareKeys(a, b []Value) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}
