package tp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSize(t *testing.T) {
	for _, tc := range []struct {
		t    Type
		size int
	}{
		{Type{Kind: Char, Signed: true}, 1},
		{Type{Kind: Short, Signed: true}, 2},
		{Type{Kind: Int, Signed: true}, 4},
		{Type{Kind: Long}, 8},
		{Type{Kind: Float}, 4},
		{Type{Kind: Double}, 8},
		{Type{Kind: Char, Pointer: true}, 8},
		{Type{Kind: Int, Signed: true, Pointer: true}, 8},
	} {
		assert.Equal(t, tc.size, tc.t.Size(), "%v", tc.t)
	}
}

func TestElem(t *testing.T) {
	p := Type{Kind: Short, Signed: true, Pointer: true}

	assert.Equal(t, 8, p.Size())
	assert.Equal(t, 2, p.Elem().Size())
	assert.Equal(t, "short*", p.String())
	assert.Equal(t, "unsigned char", Type{Kind: Char}.String())
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("long")
	require.NoError(t, err)
	assert.Equal(t, Long, k)

	_, err = ParseKind("string")
	assert.Error(t, err)
}
