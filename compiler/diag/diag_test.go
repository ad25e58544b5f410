package diag

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/errors"

	"github.com/slowlang/subc/compiler/ast"
)

func TestLowering(t *testing.T) {
	n := &ast.AddressOf{Base: ast.Base{Pos: ast.Pos{Line: 4, Col: 10}}}

	e := Lowering(n, "", "operand must be an identifier")
	assert.Equal(t, ast.Pos{Line: 4, Col: 10}, e.Position())
	assert.Equal(t, "lowering: address-of: operand must be an identifier", e.Error())

	e = Lowering(&ast.Ident{Name: "f"}, "f", "float variables are not supported")
	assert.Equal(t, `lowering: identifier "f": float variables are not supported`, e.Error())

	e = Lowering(&ast.Call{Name: "g"}, "y", "bad")
	assert.Equal(t, `lowering: call "g": bad (y)`, e.Error())
}

func TestEmissionCaller(t *testing.T) {
	e := Emission(nil, "t3", "no register for temp")

	assert.Contains(t, e.Error(), "emission: no register for temp (t3)")
	assert.Contains(t, e.Error(), "diag_test.go:")
	assert.False(t, e.Position().IsValid())
}

func TestRender(t *testing.T) {
	var err error = UnsupportedOperator(&ast.Binary{Base: ast.Base{Pos: ast.Pos{Line: 2, Col: 7}}, Op: "&&"}, "&&")
	err = errors.Wrap(err, "func %v", "main")

	var b bytes.Buffer
	Render(&b, "t.c", err, false)

	assert.Equal(t, "t.c:2:7: error: func main: unsupported operator \"&&\" in binary \"&&\"\n", b.String())

	var p Positioned
	require.True(t, errors.As(err, &p))

	b.Reset()
	Render(&b, "t.c", &AllocationError{Func: "f", Temp: "t9", Groups: 8, Pool: 7}, true)

	assert.Contains(t, b.String(), "t.c: ")
	assert.Contains(t, b.String(), red+"error:"+reset)
	assert.Contains(t, b.String(), "needs 8 registers at t9, pool has 7")
}

func TestColorful(t *testing.T) {
	assert.False(t, Colorful(&bytes.Buffer{}))
}
