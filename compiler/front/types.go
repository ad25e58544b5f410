package front

import (
	"math"

	"github.com/slowlang/subc/compiler/ast"
	"github.com/slowlang/subc/compiler/tp"
)

var (
	intType  = tp.Type{Kind: tp.Int, Signed: true}
	longType = tp.Type{Kind: tp.Long, Signed: true}
)

// typeOf is the static type of e after integer promotion.
func (s *funContext) typeOf(e ast.Expr) tp.Type {
	switch e := e.(type) {
	case *ast.Const:
		if e.Value < math.MinInt32 || e.Value > math.MaxInt32 {
			return longType
		}

		return intType
	case *ast.Ident:
		if e.Sym == nil {
			return intType
		}

		return promote(e.Sym.Type)
	case *ast.Group:
		return s.typeOf(e.X)
	case *ast.AddressOf:
		id, ok := e.X.(*ast.Ident)
		if !ok || id.Sym == nil {
			return tp.Type{Kind: tp.Long, Pointer: true}
		}

		t := id.Sym.Type
		t.Pointer = true

		return t
	case *ast.Deref:
		id, ok := e.X.(*ast.Ident)
		if !ok || id.Sym == nil {
			return intType
		}

		return promote(id.Sym.Type.Elem())
	case *ast.Assign:
		return s.typeOf(e.Target)
	case *ast.Call:
		t, ok := s.results[e.Name]
		if !ok {
			return intType
		}

		return promote(t)
	case *ast.Binary:
		if op, ok := ops[e.Op]; !ok || op.IsCompare() {
			return intType
		}

		return common(s.typeOf(e.Left), s.typeOf(e.Right))
	default:
		return intType
	}
}

// unsigned reports whether comparing l and r needs unsigned condition codes.
// Operands are extended to 64 bits per their own signedness first, so
// an unsigned common type of 4 or 8 bytes compares exactly as unsigned 64 bit values.
func (s *funContext) unsigned(l, r ast.Expr) bool {
	t := common(s.typeOf(l), s.typeOf(r))

	return t.Pointer || !t.Signed
}

func promote(t tp.Type) tp.Type {
	if !t.Pointer && t.Size() < 4 {
		return intType
	}

	return t
}

// common is the type both operands convert to.
func common(a, b tp.Type) tp.Type {
	switch {
	case a.Pointer:
		return a
	case b.Pointer:
		return b
	case a.Size() > b.Size():
		return a
	case b.Size() > a.Size():
		return b
	}

	return tp.Type{Kind: a.Kind, Signed: a.Signed && b.Signed}
}
