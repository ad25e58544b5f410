package front

import (
	"context"

	"tlog.app/go/errors"

	"github.com/slowlang/subc/compiler/ast"
	"github.com/slowlang/subc/compiler/ir"
)

// Leaves returns the condition leaves of e in left to right order.
// Groups are transparent, && and || are interior nodes.
func Leaves(e ast.Expr, dst []ast.Expr) []ast.Expr {
	e = ast.Strip(e)

	if b, ok := e.(*ast.Binary); ok && ast.IsLogical(b.Op) {
		dst = Leaves(b.Left, dst)
		dst = Leaves(b.Right, dst)

		return dst
	}

	return append(dst, e)
}

// tests lowers each condition leaf into its own code list ending in a comparison.
// A leaf which is not a comparison is tested against zero.
func (s *funContext) tests(ctx context.Context, cond ast.Expr, dst []*ir.Test) (_ []*ir.Test, err error) {
	for _, leaf := range Leaves(cond, nil) {
		t, err := s.test(ctx, leaf)
		if err != nil {
			return nil, err
		}

		dst = append(dst, t)
	}

	return dst, nil
}

func (s *funContext) test(ctx context.Context, leaf ast.Expr) (t *ir.Test, err error) {
	t = &ir.Test{Leaf: leaf}

	outer := s.code
	s.code = nil

	defer func() {
		t.Code = s.code
		s.code = outer
	}()

	if b, ok := leaf.(*ast.Binary); ok {
		if op, ok := ops[b.Op]; ok && op.IsCompare() {
			t.Op = op
			t.Unsigned = s.unsigned(b.Left, b.Right)

			t.L, t.R, err = s.operands(ctx, b)
			if err != nil {
				return nil, errors.Wrap(err, "condition")
			}

			return t, nil
		}
	}

	t.Op = ir.Ne

	t.L, err = s.expr(ctx, leaf)
	if err != nil {
		return nil, errors.Wrap(err, "condition")
	}

	t.R = s.constant(0)

	return t, nil
}
