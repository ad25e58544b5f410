package format

import (
	"github.com/nikandfor/hacked/hfmt"

	"github.com/slowlang/subc/compiler/ast"
	"github.com/slowlang/subc/compiler/ir"
)

func Program(b []byte, p *ir.Program) []byte {
	for _, name := range p.Externs {
		b = app(b, 0, "extern %v\n", name)
	}

	for i, f := range p.Funcs {
		if i != 0 || len(p.Externs) != 0 {
			b = append(b, '\n')
		}

		b = Func(b, f)
	}

	return b
}

func Func(b []byte, f *ir.Func) []byte {
	b = app(b, 0, "func %v(", f.Sym.Name)

	for i, p := range f.Params {
		if i != 0 {
			b = append(b, ", "...)
		}

		b = app(b, 0, "%v %v", p.Name, p.Type)
	}

	b = app(b, 0, ") %v {\n", f.Sym.Type)

	for _, l := range f.Locals {
		b = app(b, 1, "local %v %v\n", l.Name, l.Type)
	}

	b = block(b, f.Body, 1)

	b = app(b, 0, "}\n")

	return b
}

func block(b []byte, code []ir.Stmt, d int) []byte {
	for _, s := range code {
		switch s := s.(type) {
		case *ir.If:
			for i, arm := range s.Arms {
				if i == 0 {
					b = app(b, d, "if ")
				} else {
					b = app(b, d, "} else if ")
				}

				b = Expr(b, arm.Cond)
				b = append(b, " {\n"...)

				b = tests(b, arm.Tests, d+1)
				b = app(b, d, "then\n")
				b = block(b, arm.Body, d+1)
			}

			if s.Else != nil {
				b = app(b, d, "} else {\n")
				b = block(b, s.Else, d+1)
			}

			b = app(b, d, "}\n")
		case *ir.While:
			b = app(b, d, "while ")

			if s.Cond == nil {
				b = append(b, "forever"...)
			} else {
				b = Expr(b, s.Cond)
			}

			b = append(b, " {\n"...)

			b = tests(b, s.Tests, d+1)
			b = app(b, d, "do\n")
			b = block(b, s.Body, d+1)
			b = app(b, d, "}\n")
		case interface{ String() string }:
			b = app(b, d, "%v\n", s.String())
		default:
			b = app(b, d, "<%T>\n", s)
		}
	}

	return b
}

func tests(b []byte, tests []*ir.Test, d int) []byte {
	for _, t := range tests {
		b = block(b, t.Code, d)
		b = app(b, d, "%v\n", t)
	}

	return b
}

// Expr renders a source expression in C syntax.
func Expr(b []byte, e ast.Expr) []byte {
	switch e := e.(type) {
	case *ast.Const:
		b = hfmt.Appendf(b, "%d", e.Value)
	case *ast.Ident:
		b = append(b, e.Name...)
	case *ast.Group:
		b = append(b, '(')
		b = Expr(b, e.X)
		b = append(b, ')')
	case *ast.Binary:
		b = Expr(b, e.Left)
		b = hfmt.Appendf(b, " %s ", e.Op)
		b = Expr(b, e.Right)
	case *ast.AddressOf:
		b = append(b, '&')
		b = Expr(b, e.X)
	case *ast.Deref:
		b = append(b, '*')
		b = Expr(b, e.X)
	case *ast.Assign:
		b = Expr(b, e.Target)
		b = append(b, " = "...)
		b = Expr(b, e.Value)
	case *ast.Call:
		b = append(b, e.Name...)
		b = append(b, '(')

		for i, a := range e.Args {
			if i != 0 {
				b = append(b, ", "...)
			}

			b = Expr(b, a)
		}

		b = append(b, ')')
	default:
		b = hfmt.Appendf(b, "<%T>", e)
	}

	return b
}

func app(b []byte, d int, f string, args ...any) []byte {
	const tabs = "\t\t\t\t\t\t\t\t\t\t\t\t\t\t\t"
	b = append(b, tabs[:min(d, len(tabs))]...)
	b = hfmt.Appendf(b, f, args...)
	return b
}
