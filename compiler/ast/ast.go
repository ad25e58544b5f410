package ast

import (
	"fmt"

	"github.com/slowlang/subc/compiler/tp"
)

type (
	Pos struct {
		Line int `json:"line"`
		Col  int `json:"col"`
	}

	Node interface {
		Position() Pos
	}

	Expr interface {
		Node
		expr()
	}

	Stmt interface {
		Node
		stmt()
	}

	Base struct {
		Pos Pos
	}

	// Symbol is a declared identifier with its type.
	// Symbols are immutable after the tree is built.
	Symbol struct {
		Name string
		Type tp.Type
		Pos  Pos
	}

	Program struct {
		File  string
		Funcs []*Func
	}

	// Func is a function definition or, with nil Body, a declaration.
	Func struct {
		Base

		Sym    *Symbol
		Params []*Symbol
		Body   *Block

		// Scope holds Params, Body.Scope is its child.
		Scope *Scope
	}

	Block struct {
		Base

		Stmts []Stmt
		Scope *Scope
	}

	Decl struct {
		Base

		Sym  *Symbol
		Init Expr
	}

	ExprStmt struct {
		Base

		X Expr
	}

	Return struct {
		Base

		Value Expr
	}

	// If is a chain: Then runs when Cond holds, otherwise ElseIf is tried,
	// otherwise Else. At most one of ElseIf and Else is set.
	If struct {
		Base

		Cond   Expr
		Then   *Block
		ElseIf *If
		Else   *Block
	}

	While struct {
		Base

		Cond Expr
		Body *Block
	}

	For struct {
		Base

		Init Stmt
		Cond Expr
		Post Expr
		Body *Block
	}

	Const struct {
		Base

		Value int64
	}

	Ident struct {
		Base

		Name string
		Sym  *Symbol
	}

	Binary struct {
		Base

		Op    string
		Left  Expr
		Right Expr
	}

	Group struct {
		Base

		X Expr
	}

	AddressOf struct {
		Base

		X Expr
	}

	Deref struct {
		Base

		X Expr
	}

	Assign struct {
		Base

		Target Expr
		Value  Expr
	}

	Call struct {
		Base

		Name string
		Args []Expr
	}
)

const (
	And = "&&"
	Or  = "||"
)

func (b Base) Position() Pos { return b.Pos }

func (*Decl) stmt()     {}
func (*ExprStmt) stmt() {}
func (*Return) stmt()   {}
func (*If) stmt()       {}
func (*While) stmt()    {}
func (*For) stmt()      {}
func (*Block) stmt()    {}

func (*Const) expr()     {}
func (*Ident) expr()     {}
func (*Binary) expr()    {}
func (*Group) expr()     {}
func (*AddressOf) expr() {}
func (*Deref) expr()     {}
func (*Assign) expr()    {}
func (*Call) expr()      {}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

func (p Pos) IsValid() bool {
	return p.Line > 0
}

// IsLogical reports whether op combines conditions with short-circuit evaluation.
func IsLogical(op string) bool {
	return op == And || op == Or
}

// Strip removes enclosing groups.
func Strip(e Expr) Expr {
	for {
		g, ok := e.(*Group)
		if !ok {
			return e
		}

		e = g.X
	}
}

// Describe returns a short human readable name of a node for diagnostics.
func Describe(n Node) string {
	switch n := n.(type) {
	case *Const:
		return fmt.Sprintf("constant %d", n.Value)
	case *Ident:
		return fmt.Sprintf("identifier %q", n.Name)
	case *Binary:
		return fmt.Sprintf("binary %q", n.Op)
	case *Group:
		return "group"
	case *AddressOf:
		return "address-of"
	case *Deref:
		return "dereference"
	case *Assign:
		return "assignment"
	case *Call:
		return fmt.Sprintf("call %q", n.Name)
	case *Decl:
		return fmt.Sprintf("declaration of %q", n.Sym.Name)
	case *ExprStmt:
		return "expression statement"
	case *Return:
		return "return"
	case *If:
		return "if"
	case *While:
		return "while"
	case *For:
		return "for"
	case *Block:
		return "block"
	case *Func:
		return fmt.Sprintf("function %q", n.Sym.Name)
	case nil:
		return "<nil>"
	default:
		return fmt.Sprintf("%T", n)
	}
}
