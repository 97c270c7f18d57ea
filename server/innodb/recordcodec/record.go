package recordcodec

import (
	"github.com/ixrow/storage-core/util"
)

// ColumnType distinguishes how a column is physically stored.
type ColumnType int

const (
	ColFixed ColumnType = iota
	ColVariable
	ColExtern // off-page, referenced by a 20-byte pointer
)

// Column describes one column of a clustered or secondary index record.
type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

// Layout describes a record's column set and fixes where the system
// columns sit. Per spec §9's Open Question, DB_TRX_ID/DB_ROLL_PTR must
// always be prefix-adjacent to the primary key; NewLayout asserts this by
// construction rather than assuming it at encode time.
type Layout struct {
	Columns    []Column
	PKColCount int // leading N columns form the primary key
}

// NewLayout builds a Layout, fixing DB_TRX_ID/DB_ROLL_PTR as the first two
// columns immediately following the primary key prefix.
func NewLayout(pkCols []Column, userCols []Column) *Layout {
	if len(pkCols) == 0 {
		panic("recordcodec: a layout must have at least one primary-key column")
	}
	cols := make([]Column, 0, len(pkCols)+2+len(userCols))
	cols = append(cols, pkCols...)
	cols = append(cols, Column{Name: "DB_TRX_ID", Type: ColFixed}, Column{Name: "DB_ROLL_PTR", Type: ColFixed})
	cols = append(cols, userCols...)
	return &Layout{Columns: cols, PKColCount: len(pkCols)}
}

// ExternRef is the 20-byte off-page column pointer from spec §6: {space-id:
// 4, page-no: 4, offset: 4, length: 8}, with the two high bits of the
// length field used as the owner/inherited flags.
type ExternRef struct {
	SpaceID    uint32
	PageNo     uint32
	Offset     uint32
	Length     uint64 // high 62 bits only; top two bits carry flags
	Owner      bool   // bit7: this record owns the blob, may free on purge
	Inherited  bool   // bit6: rollback must not free
}

const (
	externOwnerFlag     = uint64(1) << 63
	externInheritedFlag = uint64(1) << 62
	externLengthMask    = externInheritedFlag - 1
)

// Encode writes the 20-byte wire form of an ExternRef.
func (r ExternRef) Encode() []byte {
	buf := make([]byte, 0, 20)
	buf = util.WriteUB4(buf, r.SpaceID)
	buf = util.WriteUB4(buf, r.PageNo)
	buf = util.WriteUB4(buf, r.Offset)
	lenField := r.Length & externLengthMask
	if r.Owner {
		lenField |= externOwnerFlag
	}
	if r.Inherited {
		lenField |= externInheritedFlag
	}
	buf = util.WriteUB8(buf, lenField)
	return buf
}

// DecodeExternRef parses the 20-byte wire form produced by Encode.
func DecodeExternRef(buf []byte) ExternRef {
	cur, spaceID := util.ReadUB4(buf, 0)
	cur, pageNo := util.ReadUB4(buf, cur)
	cur, offset := util.ReadUB4(buf, cur)
	_, lenField := util.ReadUB8(buf, cur)
	return ExternRef{
		SpaceID:   spaceID,
		PageNo:    pageNo,
		Offset:    offset,
		Length:    lenField &^ (externOwnerFlag | externInheritedFlag),
		Owner:     lenField&externOwnerFlag != 0,
		Inherited: lenField&externInheritedFlag != 0,
	}
}

// Record is one decoded physical record: its column values plus the
// system bits spec §3 names (trx_id, roll_ptr folded into Values at their
// layout position; delete-mark and info bits kept out-of-band).
type Record struct {
	Values       []Value
	DeleteMarked bool
	InfoBits     byte
}

// PrimaryKey returns the leading PK-column slice.
func (r Record) PrimaryKey(layout *Layout) []Value {
	return r.Values[:layout.PKColCount]
}

// TrxID returns the DB_TRX_ID system column, stored as the first column
// after the primary key.
func (r Record) TrxID(layout *Layout) int64 {
	return r.Values[layout.PKColCount].Int
}

// RollPtr returns the DB_ROLL_PTR system column.
func (r Record) RollPtr(layout *Layout) int64 {
	return r.Values[layout.PKColCount+1].Int
}

// Encode produces the physical byte form: extra-size byte, a null bitmap
// of ceil(n_nullable/8) bytes, per-variable-length-field length bytes,
// then the fixed and variable payloads in column order (spec §6).
func Encode(layout *Layout, rec Record) []byte {
	nullable := nullableColumns(layout)
	nullBitmap := make([]byte, (len(nullable)+7)/8)
	for i, colIdx := range nullable {
		if rec.Values[colIdx].IsNull() {
			nullBitmap[i/8] |= 1 << uint(i%8)
		}
	}

	var varLens []byte
	var body []byte
	for i, col := range layout.Columns {
		v := rec.Values[i]
		if v.IsNull() {
			continue
		}
		switch col.Type {
		case ColFixed:
			body = encodeFixed(body, v)
		case ColVariable:
			enc := encodeVariable(v)
			varLens = util.WriteLength(varLens, int64(len(enc)))
			body = append(body, enc...)
		case ColExtern:
			ref := DecodeExternRef(v.Bytes)
			body = append(body, ref.Encode()...)
		}
	}

	extraSize := len(nullBitmap) + len(varLens)
	out := make([]byte, 0, 1+extraSize+len(body))
	out = util.WriteLength(out, int64(extraSize))
	out = append(out, nullBitmap...)
	out = append(out, varLens...)
	out = append(out, body...)
	return out
}

func nullableColumns(layout *Layout) []int {
	var idx []int
	for i, col := range layout.Columns {
		if col.Nullable {
			idx = append(idx, i)
		}
	}
	return idx
}

// encodeFixed writes a length-prefixed payload so Decode can read a fixed
// column without needing to know its width up front; "fixed" here means
// fixed in column count, not in wire width (DECIMAL and DB_TRX_ID/
// DB_ROLL_PTR all live in ColFixed columns but differ in byte length).
func encodeFixed(buf []byte, v Value) []byte {
	switch v.Kind {
	case KindInt:
		return util.WriteWithLength(buf, util.ConvertULong8Bytes(uint64(v.Int)))
	case KindDecimal:
		return util.WriteWithLength(buf, []byte(v.Decimal.String()))
	default:
		return util.WriteWithLength(buf, v.Bytes)
	}
}

func encodeVariable(v Value) []byte {
	switch v.Kind {
	case KindDecimal:
		return []byte(v.Decimal.String())
	case KindInt:
		return util.ConvertLong8Bytes(v.Int)
	default:
		return v.Bytes
	}
}
