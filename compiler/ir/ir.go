package ir

import (
	"fmt"
	"strings"

	"github.com/slowlang/subc/compiler/ast"
	"github.com/slowlang/subc/compiler/tp"
)

type (
	Op string

	// Expr is the source of a Move.
	Expr interface {
		Uses() []Symbol
		String() string
	}

	// Symbol is a value holder: Var or Temp.
	Symbol interface {
		Expr
		symbol()
	}

	Const int64

	// Temp is a compiler introduced value living in a register.
	// It is defined once and used at most twice.
	Temp string

	// Var is a named parameter or local. It always lives on the stack.
	Var struct {
		Name string
		Type tp.Type
	}

	Binop struct {
		Op   Op
		L, R Symbol

		// Unsigned makes a comparison treat full width values as unsigned.
		Unsigned bool
	}

	Call struct {
		Name string
		Args []Symbol
	}

	Address struct {
		Var Var
	}

	Deref struct {
		Var Var
	}

	Stmt interface {
		stmt()
	}

	Move struct {
		Dest Symbol
		Src  Expr
	}

	// Return with nil Value returns nothing.
	Return struct {
		Value Symbol
	}

	Noop struct{}

	// Test is a lowered condition leaf: Code computes L and R,
	// then they are compared with Op.
	Test struct {
		Leaf ast.Expr

		Code     []Stmt
		Op       Op
		L, R     Symbol
		Unsigned bool
	}

	// Arm is one if or else-if branch.
	// Tests hold the condition leaves in left to right order.
	Arm struct {
		Cond  ast.Expr
		Tests []*Test
		Body  []Stmt
	}

	If struct {
		Arms []Arm
		Else []Stmt
	}

	While struct {
		Cond  ast.Expr
		Tests []*Test
		Body  []Stmt
	}

	Func struct {
		Sym    *ast.Symbol
		Params []Var
		Locals []Var
		Body   []Stmt
	}

	Program struct {
		File    string
		Funcs   []*Func
		Externs []string
	}
)

const (
	Add Op = "+"
	Sub Op = "-"
	Mul Op = "*"
	Div Op = "/"
	Mod Op = "%"

	Eq Op = "=="
	Ne Op = "!="
	Lt Op = "<"
	Le Op = "<="
	Gt Op = ">"
	Ge Op = ">="
)

var revcond = map[Op]Op{
	Eq: Ne,
	Ne: Eq,
	Lt: Ge,
	Ge: Lt,
	Gt: Le,
	Le: Gt,
}

func (Var) symbol()  {}
func (Temp) symbol() {}

func (*Move) stmt()   {}
func (*Return) stmt() {}
func (*Noop) stmt()   {}
func (*Test) stmt()   {}
func (*If) stmt()     {}
func (*While) stmt()  {}

func (x Const) Uses() []Symbol   { return nil }
func (x Var) Uses() []Symbol     { return []Symbol{x} }
func (x Temp) Uses() []Symbol    { return []Symbol{x} }
func (x Binop) Uses() []Symbol   { return []Symbol{x.L, x.R} }
func (x Call) Uses() []Symbol    { return x.Args }
func (x Address) Uses() []Symbol { return []Symbol{x.Var} }
func (x Deref) Uses() []Symbol   { return []Symbol{x.Var} }

func (x Const) String() string   { return fmt.Sprintf("%d", int64(x)) }
func (x Var) String() string     { return x.Name }
func (x Temp) String() string    { return string(x) }
func (x Binop) String() string   { return fmt.Sprintf("%v %v %v", x.L, x.Op.Text(x.Unsigned), x.R) }
func (x Address) String() string { return "&" + x.Var.Name }
func (x Deref) String() string   { return "*" + x.Var.Name }

func (x Call) String() string {
	var b strings.Builder

	b.WriteString(x.Name)
	b.WriteByte('(')

	for i, a := range x.Args {
		if i != 0 {
			b.WriteString(", ")
		}

		b.WriteString(a.String())
	}

	b.WriteByte(')')

	return b.String()
}

func (x *Move) String() string { return fmt.Sprintf("%v = %v", x.Dest, x.Src) }
func (x *Noop) String() string { return "noop" }
func (x *Test) String() string { return fmt.Sprintf("test %v %v %v", x.L, x.Op.Text(x.Unsigned), x.R) }

func (x *Return) String() string {
	if x.Value == nil {
		return "return"
	}

	return fmt.Sprintf("return %v", x.Value)
}

func (op Op) IsCompare() bool {
	_, ok := revcond[op]
	return ok
}

func (op Op) IsArith() bool {
	switch op {
	case Add, Sub, Mul, Div, Mod:
		return true
	}

	return false
}

// Text is op as printed. Unsigned comparisons get a u suffix.
func (op Op) Text(unsigned bool) string {
	if unsigned && op.IsCompare() && op != Eq && op != Ne {
		return string(op) + "u"
	}

	return string(op)
}

// Negate returns the comparison that holds exactly when op does not.
func (op Op) Negate() Op {
	r, ok := revcond[op]
	if !ok {
		panic(op)
	}

	return r
}

// Width is the storage width of s in bytes. Temps are always full registers.
func Width(s Symbol) int {
	if v, ok := s.(Var); ok {
		return v.Type.Size()
	}

	return 8
}

// Walk calls f for every linear statement in emission order.
// Control holders are entered: each condition's test code and the test
// itself come first, then the bodies.
func Walk(code []Stmt, f func(Stmt)) {
	for _, s := range code {
		switch s := s.(type) {
		case *If:
			for _, arm := range s.Arms {
				walkTests(arm.Tests, f)
				Walk(arm.Body, f)
			}

			Walk(s.Else, f)
		case *While:
			walkTests(s.Tests, f)
			Walk(s.Body, f)
		default:
			f(s)
		}
	}
}

func walkTests(tests []*Test, f func(Stmt)) {
	for _, t := range tests {
		Walk(t.Code, f)
		f(t)
	}
}
