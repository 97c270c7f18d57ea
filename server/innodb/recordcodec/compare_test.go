package recordcodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareInts(t *testing.T) {
	assert.Equal(t, -1, Compare(IntValue(1), IntValue(2)))
	assert.Equal(t, 1, Compare(IntValue(5), IntValue(2)))
	assert.Equal(t, 0, Compare(IntValue(5), IntValue(5)))
}

func TestCompareNullSortsFirst(t *testing.T) {
	assert.Equal(t, -1, Compare(NullValue(), IntValue(0)))
	assert.Equal(t, 1, Compare(IntValue(0), NullValue()))
	assert.Equal(t, 0, Compare(NullValue(), NullValue()))
}

func TestCompareKeysLexicographic(t *testing.T) {
	a := []Value{IntValue(1), BytesValue([]byte("a"))}
	b := []Value{IntValue(1), BytesValue([]byte("b"))}
	assert.Negative(t, CompareKeys(a, b))

	c := []Value{IntValue(2), BytesValue([]byte("a"))}
	assert.Negative(t, CompareKeys(a, c))
}
