// Package onlinelog implements the online build log (spec §4.4, L7): the
// append-only {INSERT, DELETE} stream a secondary-index build replays onto
// the new structure, and the ternary {INSERT_ROW, UPDATE_ROW, DELETE_ROW}
// stream a whole-table rebuild replays through a column map.
package onlinelog

import (
	"errors"

	"github.com/ixrow/storage-core/server/innodb/kerrors"
	"github.com/ixrow/storage-core/server/innodb/recordcodec"
	"github.com/ixrow/storage-core/util"
)

// Opcode is the one-byte record tag. 0 is never assigned: it is the
// trailing null byte spec §4.4 reserves for "end-of-list-in-block", so a
// reader scanning a block stops the moment it sees one.
type Opcode byte

const (
	opEndOfList Opcode = 0x00
	OpInsertRow Opcode = 0x41 // variant (b), ROW_INSERT: INSERT_ROW(new-format row)
	OpUpdateRow Opcode = 0x42 // variant (b), ROW_UPDATE: UPDATE_ROW(old-pk, new-format row)
	OpDeleteRow Opcode = 0x43 // variant (b), ROW_DELETE: DELETE_ROW(old-pk)
	OpInsert    Opcode = 0x61 // variant (a), SEC_INSERT: INSERT(entry, trx_id)
	OpDelete    Opcode = 0x62 // variant (a), SEC_DELETE: DELETE(entry)
)

// writeExtraSize and readExtraSize frame the header/PK-prefix length using
// the same util.WriteLength/ReadLength variable-length integer encoding
// recordcodec.Encode already uses for its own extra_size field, shifted by
// one so the reserved zero value never collides with a real size (spec
// §4.4: "on disk it is always normalized to (extra_size + 1) and re-shifted
// on read").
func writeExtraSize(buf []byte, size int) []byte {
	return util.WriteLength(buf, int64(size)+1)
}

func readExtraSize(buf []byte, cur int) (int, int) {
	cur, raw := util.ReadLength(buf, cur)
	return cur, int(raw) - 1
}

// IndexRecord is one decoded variant-(a) entry.
type IndexRecord struct {
	Op     Opcode
	TrxID  int64 // only meaningful for OpInsert
	Header []byte
	Body   []byte
}

// EncodeInsert writes an INSERT(entry, trx_id) record: 6 bytes of trx_id,
// extra_size bytes of header, then the length-framed body.
func EncodeInsert(trxID int64, header, body []byte) []byte {
	buf := []byte{byte(OpInsert)}
	buf = writeExtraSize(buf, len(header))
	buf = util.WriteUB6(buf, uint64(trxID))
	buf = append(buf, header...)
	buf = util.WriteWithLength(buf, body)
	return buf
}

// EncodeDelete writes a DELETE(entry) record.
func EncodeDelete(body []byte) []byte {
	buf := []byte{byte(OpDelete)}
	buf = writeExtraSize(buf, 0)
	buf = util.WriteWithLength(buf, body)
	return buf
}

// DecodeIndexRecord parses one variant-(a) record starting at offset,
// returning the record and the number of bytes it consumed. err is the
// package's end-of-list sentinel if the opcode at offset is 0, and
// kerrors.Corruption for an unknown opcode.
func DecodeIndexRecord(buf []byte, offset int) (IndexRecord, int, error) {
	op := Opcode(buf[offset])
	if op == opEndOfList {
		return IndexRecord{}, 0, errEndOfList
	}
	cur := offset + 1
	var extraSize int
	cur, extraSize = readExtraSize(buf, cur)

	rec := IndexRecord{Op: op}
	switch op {
	case OpInsert:
		var trxID uint64
		cur, trxID = util.ReadUB6(buf, cur)
		rec.TrxID = int64(trxID)
		cur, rec.Header = util.ReadBytes(buf, cur, extraSize)
	case OpDelete:
		// extraSize is always 0 for DELETE; nothing else to read.
	default:
		return IndexRecord{}, 0, kerrors.New(kerrors.Corruption)
	}

	var bodyLen uint64
	cur, bodyLen = util.ReadLength(buf, cur)
	cur, rec.Body = util.ReadBytes(buf, cur, int(bodyLen))
	return rec, cur - offset, nil
}

// errEndOfList is a private sentinel the block scanner checks for by
// identity; it never escapes this package.
var errEndOfList = errors.New("onlinelog: end of list in block")

// TableRecord is one decoded variant-(b) entry.
type TableRecord struct {
	Op    Opcode
	OldPK []byte // encoded key tuple; present for UPDATE_ROW (unless same_pk) and DELETE_ROW
	Row   []byte // recordcodec-encoded old-format row; present for INSERT_ROW/UPDATE_ROW
}

// EncodeInsertRow writes an INSERT_ROW(new-format row) record. row is the
// old-format (pre-rebuild) encoding of the row as ordinary DML saw it;
// Apply converts it through the column map.
func EncodeInsertRow(row []byte) []byte {
	buf := []byte{byte(OpInsertRow)}
	buf = writeExtraSize(buf, 0)
	buf = util.WriteWithLength(buf, row)
	return buf
}

// EncodeUpdateRow writes an UPDATE_ROW record. When samePK is true the
// old-primary-key prefix is omitted, per spec §4.4's same_pk fast path:
// the row's own (unchanged) key serves as both old and new PK.
func EncodeUpdateRow(oldPK []byte, samePK bool, row []byte) []byte {
	buf := []byte{byte(OpUpdateRow)}
	if samePK {
		buf = writeExtraSize(buf, 0)
	} else {
		buf = writeExtraSize(buf, len(oldPK))
		buf = append(buf, oldPK...)
	}
	buf = util.WriteWithLength(buf, row)
	return buf
}

// EncodeDeleteRow writes a DELETE_ROW(old-primary-key) record. Unlike
// UPDATE_ROW there is no row body that could stand in for the key when it
// is unchanged, so the old-PK tuple is always present.
func EncodeDeleteRow(oldPK []byte) []byte {
	buf := []byte{byte(OpDeleteRow)}
	buf = writeExtraSize(buf, len(oldPK))
	buf = append(buf, oldPK...)
	return buf
}

// DecodeTableRecord parses one variant-(b) record starting at offset.
func DecodeTableRecord(buf []byte, offset int) (TableRecord, int, error) {
	op := Opcode(buf[offset])
	if op == opEndOfList {
		return TableRecord{}, 0, errEndOfList
	}
	cur := offset + 1
	var extraSize int
	cur, extraSize = readExtraSize(buf, cur)

	rec := TableRecord{Op: op}
	switch op {
	case OpInsertRow:
		var rowLen uint64
		cur, rowLen = util.ReadLength(buf, cur)
		cur, rec.Row = util.ReadBytes(buf, cur, int(rowLen))
	case OpUpdateRow:
		if extraSize > 0 {
			cur, rec.OldPK = util.ReadBytes(buf, cur, extraSize)
		}
		var rowLen uint64
		cur, rowLen = util.ReadLength(buf, cur)
		cur, rec.Row = util.ReadBytes(buf, cur, int(rowLen))
	case OpDeleteRow:
		cur, rec.OldPK = util.ReadBytes(buf, cur, extraSize)
	default:
		return TableRecord{}, 0, kerrors.New(kerrors.Corruption)
	}
	return rec, cur - offset, nil
}

// EncodeKeyTuple frames a primary-key value tuple so it can be embedded as
// the old-PK prefix of an UPDATE_ROW/DELETE_ROW record.
func EncodeKeyTuple(key []recordcodec.Value) []byte {
	var buf []byte
	buf = util.WriteLength(buf, int64(len(key)))
	for _, v := range key {
		buf = util.WriteWithLength(buf, keyValueBytes(v))
	}
	return buf
}

// DecodeKeyTuple parses the bytes EncodeKeyTuple produced. cols names the
// physical type of each tuple position (the child/old layout's leading PK
// columns) so integers round-trip rather than coming back as raw bytes.
func DecodeKeyTuple(buf []byte, cols []recordcodec.Column) []recordcodec.Value {
	cur, n := util.ReadLength(buf, 0)
	values := make([]recordcodec.Value, int(n))
	for i := 0; i < int(n); i++ {
		var raw []byte
		var l uint64
		cur, l = util.ReadLength(buf, cur)
		cur, raw = util.ReadBytes(buf, cur, int(l))
		values[i] = decodeKeyValue(cols[i], raw)
	}
	return values
}

func keyValueBytes(v recordcodec.Value) []byte {
	switch v.Kind {
	case recordcodec.KindInt:
		return util.ConvertLong8Bytes(v.Int)
	case recordcodec.KindDecimal:
		return []byte(v.Decimal.String())
	default:
		return v.Bytes
	}
}

func decodeKeyValue(col recordcodec.Column, raw []byte) recordcodec.Value {
	if col.Type == recordcodec.ColFixed && len(raw) == 8 {
		_, n := util.ReadUB8(raw, 0)
		return recordcodec.IntValue(int64(n))
	}
	return recordcodec.BytesValue(raw)
}
