package back

import (
	"github.com/slowlang/subc/compiler/ast"
	"github.com/slowlang/subc/compiler/diag"
	"github.com/slowlang/subc/compiler/format"
	"github.com/slowlang/subc/compiler/ir"
)

func (s *funContext) ifStmt(x *ir.If) (err error) {
	end := s.names.Label()

	for i, arm := range x.Arms {
		next := end
		if i+1 < len(x.Arms) || x.Else != nil {
			next = s.names.Label()
		}

		body := s.names.Label()

		if s.cfg.Comments {
			s.comment("if %s", format.Expr(nil, arm.Cond))
		}

		err = s.branch(arm.Cond, arm.Tests, body, next)
		if err != nil {
			return err
		}

		s.label(body)

		err = s.block(arm.Body)
		if err != nil {
			return err
		}

		s.ins("jmp %s", end)

		if next != end {
			s.label(next)
		}
	}

	err = s.block(x.Else)
	if err != nil {
		return err
	}

	s.label(end)

	return nil
}

func (s *funContext) while(x *ir.While) (err error) {
	start := s.names.Label()
	body := s.names.Label()
	end := s.names.Label()

	s.label(start)

	if x.Cond != nil {
		if s.cfg.Comments {
			s.comment("while %s", format.Expr(nil, x.Cond))
		}

		err = s.branch(x.Cond, x.Tests, body, end)
		if err != nil {
			return err
		}
	}

	s.label(body)

	err = s.block(x.Body)
	if err != nil {
		return err
	}

	s.ins("jmp %s", start)
	s.label(end)

	return nil
}

// branch jumps to body when cond holds and to out otherwise.
// body is placed right after. An || root branches into the body on each
// true operand and ends with a single jump out.
func (s *funContext) branch(cond ast.Expr, tests []*ir.Test, body, out string) error {
	if b, ok := ast.Strip(cond).(*ast.Binary); ok && b.Op == ast.Or {
		err := s.cond(cond, tests, body, out, out)
		if err != nil {
			return err
		}

		s.ins("jmp %s", out)

		return nil
	}

	return s.cond(cond, tests, body, out, body)
}

// cond evaluates e with short circuit and jumps to t or f.
// next is the label placed right after the emitted code, a jump to it is omitted.
func (s *funContext) cond(e ast.Expr, tests []*ir.Test, t, f, next string) error {
	e = ast.Strip(e)

	if b, ok := e.(*ast.Binary); ok && ast.IsLogical(b.Op) {
		mid := s.names.Label()

		var err error
		if b.Op == ast.And {
			err = s.cond(b.Left, tests, mid, f, mid)
		} else {
			err = s.cond(b.Left, tests, t, mid, mid)
		}

		if err != nil {
			return err
		}

		s.label(mid)

		return s.cond(b.Right, tests, t, f, next)
	}

	var test *ir.Test

	for _, x := range tests {
		if x.Leaf == e {
			test = x
			break
		}
	}

	if test == nil {
		err := diag.Emission(nil, "", "no test for condition %s", format.Expr(nil, e))
		err.Pos = e.Position()

		return err
	}

	err := s.block(test.Code)
	if err != nil {
		return err
	}

	l, err := s.value(test.L, RAX)
	if err != nil {
		return err
	}

	r, err := s.operand(test.R, RCX)
	if err != nil {
		return err
	}

	s.ins("cmp %v, %s", l, r)

	switch next {
	case f:
		s.ins("j%s %s", cc(test.Op, test.Unsigned), t)
	case t:
		s.ins("j%s %s", cc(test.Op.Negate(), test.Unsigned), f)
	default:
		s.ins("j%s %s", cc(test.Op, test.Unsigned), t)
		s.ins("jmp %s", f)
	}

	return nil
}
