// Package recordcodec encodes and decodes physical clustered/secondary
// index records: fixed columns, variable-length columns, and off-page
// extern columns (spec §3, §6).
package recordcodec

import (
	"github.com/shopspring/decimal"
)

// Kind discriminates a Value's physical representation.
type Kind byte

const (
	KindNull Kind = iota
	KindInt
	KindBytes
	KindDecimal
)

// Value is one column value. Exactly one of the typed fields is
// meaningful, selected by Kind — a small closed tagged union per spec §9's
// "manually-tagged polymorphism... model each as a closed tagged union"
// guidance.
type Value struct {
	Kind    Kind
	Int     int64
	Bytes   []byte
	Decimal decimal.Decimal
}

// NullValue returns the NULL value.
func NullValue() Value { return Value{Kind: KindNull} }

// IntValue wraps an integer column value.
func IntValue(v int64) Value { return Value{Kind: KindInt, Int: v} }

// BytesValue wraps a variable-length byte/string column value.
func BytesValue(v []byte) Value { return Value{Kind: KindBytes, Bytes: v} }

// DecimalValue wraps a DECIMAL column value.
func DecimalValue(v decimal.Decimal) Value { return Value{Kind: KindDecimal, Decimal: v} }

// IsNull reports whether v represents SQL NULL.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Equal reports exact value equality (not collation-aware; see Compare in
// this package for collation-aware key comparison).
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindInt:
		return v.Int == o.Int
	case KindBytes:
		return string(v.Bytes) == string(o.Bytes)
	case KindDecimal:
		return v.Decimal.Equal(o.Decimal)
	default:
		return false
	}
}
