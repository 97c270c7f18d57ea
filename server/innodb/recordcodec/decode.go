package recordcodec

import (
	"github.com/shopspring/decimal"

	"github.com/ixrow/storage-core/util"
)

// Decode parses the byte form produced by Encode back into a Record. The
// caller supplies the same Layout used to encode; mismatched layouts
// produce undefined results (the wire format carries no self-describing
// schema, matching spec §6's fixed external record format).
func Decode(layout *Layout, buf []byte) Record {
	cursor, extraSize := util.ReadLength(buf, 0)
	nullable := nullableColumns(layout)
	nullBitmapLen := (len(nullable) + 7) / 8
	nullBitmap := buf[cursor : cursor+nullBitmapLen]
	cursor += nullBitmapLen

	isNull := make(map[int]bool, len(nullable))
	for i, colIdx := range nullable {
		if nullBitmap[i/8]&(1<<uint(i%8)) != 0 {
			isNull[colIdx] = true
		}
	}

	varLenEnd := cursor + (extraSize - nullBitmapLen)
	var varLens []int
	for cursor < varLenEnd {
		var l uint64
		cursor, l = util.ReadLength(buf, cursor)
		varLens = append(varLens, int(l))
	}

	values := make([]Value, len(layout.Columns))
	varIdx := 0
	for i, col := range layout.Columns {
		if isNull[i] {
			values[i] = NullValue()
			continue
		}
		switch col.Type {
		case ColFixed:
			var n uint64
			cursor, n = util.ReadLength(buf, cursor)
			cursor, raw := util.ReadBytes(buf, cursor, int(n))
			values[i] = decodeFixed(col, raw)
		case ColVariable:
			l := varLens[varIdx]
			varIdx++
			var raw []byte
			cursor, raw = util.ReadBytes(buf, cursor, l)
			values[i] = BytesValue(append([]byte(nil), raw...))
		case ColExtern:
			var raw []byte
			cursor, raw = util.ReadBytes(buf, cursor, 20)
			values[i] = BytesValue(append([]byte(nil), raw...))
		}
	}

	return Record{Values: values}
}

func decodeFixed(col Column, raw []byte) Value {
	if col.Name == "DB_TRX_ID" || col.Name == "DB_ROLL_PTR" {
		_, n := util.ReadUB8(pad8(raw), 0)
		return IntValue(int64(n))
	}
	if d, err := decimal.NewFromString(string(raw)); err == nil && len(raw) > 0 && looksNumeric(raw) {
		return DecimalValue(d)
	}
	if len(raw) == 8 {
		_, n := util.ReadUB8(raw, 0)
		return IntValue(int64(n))
	}
	return BytesValue(raw)
}

func pad8(raw []byte) []byte {
	if len(raw) >= 8 {
		return raw
	}
	out := make([]byte, 8)
	copy(out, raw)
	return out
}

func looksNumeric(raw []byte) bool {
	for _, b := range raw {
		if (b < '0' || b > '9') && b != '.' && b != '-' {
			return false
		}
	}
	return true
}
